// Package aliasx derives stable identifiers for logical file names: the key
// alias used to look up the encryption key and the key under which the file's
// metadata record is stored. The derivation uses SHA-256, so distinct names
// do not collide in practice and the same name always maps to the same
// identifiers across process restarts.
package aliasx

import (
	"crypto/sha256"
	"encoding/hex"
)

const (
	keyAliasPrefix    = "storage_key_"
	metadataKeyPrefix = "file_meta_"

	derivedIDBytes = 16
)

// DerivedID returns the canonical identifier for a logical file name:
// the first 16 bytes of SHA-256(name), hex-encoded.
func DerivedID(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:derivedIDBytes])
}

// KeyAlias returns the key alias for a logical file name.
func KeyAlias(name string) string {
	return keyAliasPrefix + DerivedID(name)
}

// MetadataKey returns the metadata record key for a logical file name.
func MetadataKey(name string) string {
	return metadataKeyPrefix + DerivedID(name)
}
