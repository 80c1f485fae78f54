// Package keyring manages encryption key lifecycle for the vault. Keys are
// derived on demand from a master key and a key alias, cached in memory and
// never written to disk; the only persisted artifact is the argon2 salt.
package keyring

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkozlov/sentryvault/internal/common"
	"github.com/pkozlov/sentryvault/internal/cryptox"
)

const saltFileName = ".vault_salt"

// Keyring derives and caches per-alias data keys.
type Keyring struct {
	mu        sync.Mutex
	masterKey []byte
	keys      map[string][]byte
}

// New builds a Keyring around an already-derived master key.
func New(masterKey []byte) *Keyring {
	return &Keyring{
		masterKey: masterKey,
		keys:      make(map[string][]byte),
	}
}

// Open derives the master key from a passphrase and the salt persisted under
// dir, creating the salt on first use. The passphrase is wiped before return.
func Open(passphrase []byte, dir string) (*Keyring, error) {
	defer common.WipeByteArray(passphrase)

	salt, err := loadOrCreateSalt(dir)
	if err != nil {
		return nil, err
	}

	return New(cryptox.DeriveMasterKey(passphrase, salt)), nil
}

// Key returns the data key for the given alias, deriving it on first use.
func (k *Keyring) Key(alias string) ([]byte, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if key, ok := k.keys[alias]; ok {
		return key, nil
	}

	key, err := cryptox.DeriveDataKey(k.masterKey, alias)
	if err != nil {
		return nil, fmt.Errorf("derive key for alias %s: %w", alias, err)
	}

	k.keys[alias] = key
	return key, nil
}

// RemoveKey wipes and drops the cached key for the alias. Removing an
// unknown alias is a no-op.
func (k *Keyring) RemoveKey(alias string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if key, ok := k.keys[alias]; ok {
		common.WipeByteArray(key)
		delete(k.keys, alias)
	}
}

// Close wipes all cached key material, including the master key.
func (k *Keyring) Close() {
	k.mu.Lock()
	defer k.mu.Unlock()

	for alias, key := range k.keys {
		common.WipeByteArray(key)
		delete(k.keys, alias)
	}
	common.WipeByteArray(k.masterKey)
}

func loadOrCreateSalt(dir string) ([]byte, error) {
	path := filepath.Join(dir, saltFileName)

	salt, err := os.ReadFile(path)
	if err == nil {
		return salt, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read salt: %w", err)
	}

	if err := os.MkdirAll(dir, 0o770); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}

	salt = common.GenerateRandByteArray(16)
	if err := os.WriteFile(path, salt, 0o600); err != nil {
		return nil, fmt.Errorf("write salt: %w", err)
	}

	return salt, nil
}
