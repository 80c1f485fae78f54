// Package cryptox implements the cryptographic primitives used by the vault:
// passphrase-based master key derivation, per-alias data keys, AES-GCM
// payload encryption and streaming file hashing.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32

	// hashChunkSize bounds memory use when hashing large files.
	hashChunkSize = 64 * 1024
)

// DeriveMasterKey stretches a passphrase into a 32-byte master key using
// argon2id with the given salt. Same passphrase and salt always yield the
// same key, across process restarts.
func DeriveMasterKey(password []byte, salt []byte) []byte {
	return argon2.IDKey(password, salt, 1, 64*1024, 4, KeySize)
}

// DeriveDataKey derives a per-alias AES-256 key from the master key via
// HKDF-SHA256, binding the alias as the info parameter. The derivation is
// deterministic so key material never needs to be persisted: the key is
// re-created from the alias on every operation.
func DeriveDataKey(masterKey []byte, alias string) ([]byte, error) {
	r := hkdf.New(sha256.New, masterKey, nil, []byte(alias))
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("hkdf expand: %w", err)
	}
	return key, nil
}

// Encrypt seals plaintext with AES-256-GCM under key. A fresh random nonce
// is generated per call and returned separately.
func Encrypt(plaintext, key []byte) (ciphertext, nonce []byte, err error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, err
	}

	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, err
	}

	nonce = make([]byte, aesgcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, err
	}

	ciphertext = aesgcm.Seal(nil, nonce, plaintext, nil)
	return ciphertext, nonce, nil
}

// Decrypt opens an AES-256-GCM ciphertext produced by Encrypt. It fails if
// the key or nonce is wrong or the ciphertext has been tampered with.
func Decrypt(ciphertext, nonce, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return aesgcm.Open(nil, nonce, ciphertext, nil)
}

// HashReader computes the SHA-256 digest of r, streaming in fixed-size
// chunks, and returns it as a fixed-length lowercase hex string.
func HashReader(r io.Reader) (string, error) {
	h := sha256.New()
	buf := make([]byte, hashChunkSize)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashBytes returns the lowercase hex SHA-256 digest of data.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
