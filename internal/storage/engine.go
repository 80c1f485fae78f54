// Package storage implements the secure storage engine: authenticated
// encryption of file payloads at rest, companion metadata records and
// name-derived key management.
//
// On disk a stored file is `<name>.sec` inside the storage root (optionally
// one level deeper under a caller-supplied subdirectory). The file holds a
// one-byte format version, the AES-GCM nonce and the ciphertext of the
// snappy-compressed payload. The encryption key is never persisted: it is
// re-derived from the logical name on every operation.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/golang/snappy"

	"github.com/pkozlov/sentryvault/internal/aliasx"
	"github.com/pkozlov/sentryvault/internal/common"
	"github.com/pkozlov/sentryvault/internal/cryptox"
	"github.com/pkozlov/sentryvault/internal/filex"
	"github.com/pkozlov/sentryvault/internal/logging"
	"github.com/pkozlov/sentryvault/internal/metadata"
)

const (
	// SecureExt is the canonical extension of ciphertext files.
	SecureExt = ".sec"

	// formatV1: version byte | 12-byte nonce | ciphertext of snappy(payload).
	formatV1 = 0x01

	nonceSize  = 12
	headerSize = 1 + nonceSize
)

// KeyProvider supplies and retires per-alias encryption keys.
type KeyProvider interface {
	Key(alias string) ([]byte, error)
	RemoveKey(alias string)
}

// StoredFile identifies a file written by the engine.
type StoredFile struct {
	Name    string
	Path    string
	Size    int64
	SavedAt time.Time
}

// Engine orchestrates encrypted file I/O: filesystem, key provider and
// metadata repository. Operations on the same logical name are serialized;
// operations on distinct names may run concurrently.
type Engine struct {
	root   string
	keys   KeyProvider
	meta   metadata.Repository
	log    logging.Logger
	locks  *namedLocks
	locked atomic.Bool
}

func NewEngine(root string, keys KeyProvider, meta metadata.Repository, log logging.Logger) *Engine {
	return &Engine{
		root:  root,
		keys:  keys,
		meta:  meta,
		log:   log.With("component", "storage"),
		locks: newNamedLocks(),
	}
}

// Save encrypts data and writes it as `<dir>/<name>.sec`, then stores the
// companion metadata record. The ciphertext is written before the metadata is
// committed; if the metadata commit fails the file is rolled back so that a
// stored file without a metadata record never survives a successful Save.
func (e *Engine) Save(ctx context.Context, data []byte, name, dir string, tags ...string) (*StoredFile, error) {
	if err := e.check(name, dir); err != nil {
		return nil, err
	}
	defer e.locks.acquire(aliasx.DerivedID(name))()

	targetDir, err := filex.EnsureDir(e.root, dir)
	if err != nil {
		return nil, fmt.Errorf("save %s: %w: %w", name, common.ErrIO, err)
	}

	key, err := e.keys.Key(aliasx.KeyAlias(name))
	if err != nil {
		return nil, fmt.Errorf("save %s: %w: %w", name, common.ErrCrypto, err)
	}

	ciphertext, nonce, err := cryptox.Encrypt(snappy.Encode(nil, data), key)
	if err != nil {
		return nil, fmt.Errorf("save %s: %w: %w", name, common.ErrCrypto, err)
	}

	blob := make([]byte, 0, headerSize+len(ciphertext))
	blob = append(blob, formatV1)
	blob = append(blob, nonce...)
	blob = append(blob, ciphertext...)

	path := filepath.Join(targetDir, name+SecureExt)
	if err := os.WriteFile(path, blob, 0o600); err != nil {
		return nil, fmt.Errorf("save %s: %w: %w", name, common.ErrIO, err)
	}

	now := time.Now()
	meta := metadata.FileMetadata{
		FileName:     name,
		MimeType:     MimeTypeFor(name),
		Size:         int64(len(data)),
		LastModified: now,
		Tags:         tags,
	}
	if err := e.meta.Put(ctx, aliasx.MetadataKey(name), meta); err != nil {
		if rmErr := os.Remove(path); rmErr != nil {
			e.log.Error(ctx, "rollback of ciphertext file failed", "path", path, "error", rmErr)
		}
		return nil, fmt.Errorf("save %s: metadata commit: %w: %w", name, common.ErrIO, err)
	}

	e.log.Debug(ctx, "file saved", "name", name, "dir", dir, "bytes", len(data))
	return &StoredFile{Name: name, Path: path, Size: int64(len(blob)), SavedAt: now}, nil
}

// Read decrypts and returns the plaintext of a stored file. It fails with
// common.ErrNotFound if the ciphertext file is absent and common.ErrCrypto
// if the envelope is corrupted or the key does not match.
func (e *Engine) Read(ctx context.Context, name, dir string) ([]byte, error) {
	if err := e.check(name, dir); err != nil {
		return nil, err
	}
	defer e.locks.acquire(aliasx.DerivedID(name))()

	path := filepath.Join(e.root, dir, name+SecureExt)
	blob, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("read %s: %w", name, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w: %w", name, common.ErrIO, err)
	}

	if len(blob) < headerSize || blob[0] != formatV1 {
		return nil, fmt.Errorf("read %s: %w: malformed envelope", name, common.ErrCrypto)
	}

	key, err := e.keys.Key(aliasx.KeyAlias(name))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w: %w", name, common.ErrCrypto, err)
	}

	compressed, err := cryptox.Decrypt(blob[headerSize:], blob[1:headerSize], key)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w: %w", name, common.ErrCrypto, err)
	}

	data, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w: %w", name, common.ErrCrypto, err)
	}
	if data == nil {
		data = []byte{}
	}

	return data, nil
}

// Delete removes a stored file, then its metadata record and cached key.
// If the filesystem deletion fails, metadata and key are left untouched.
func (e *Engine) Delete(ctx context.Context, name, dir string) (*StoredFile, error) {
	if err := e.check(name, dir); err != nil {
		return nil, err
	}
	defer e.locks.acquire(aliasx.DerivedID(name))()

	path := filepath.Join(e.root, dir, name+SecureExt)
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("delete %s: %w", name, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("delete %s: %w: %w", name, common.ErrIO, err)
	}

	if err := os.Remove(path); err != nil {
		return nil, fmt.Errorf("delete %s: %w: %w", name, common.ErrIO, err)
	}

	e.keys.RemoveKey(aliasx.KeyAlias(name))

	if err := e.meta.Remove(ctx, aliasx.MetadataKey(name)); err != nil {
		return nil, fmt.Errorf("delete %s: metadata cleanup: %w: %w", name, common.ErrIO, err)
	}

	e.log.Debug(ctx, "file deleted", "name", name, "dir", dir)
	return &StoredFile{Name: name, Path: path, Size: info.Size(), SavedAt: info.ModTime()}, nil
}

// List returns the logical names (extension stripped) of all stored files in
// the target directory. An absent or unreadable directory yields an empty
// slice, never an error.
func (e *Engine) List(ctx context.Context, dir string) []string {
	names := []string{}
	if e.locked.Load() {
		return names
	}

	entries, err := os.ReadDir(filepath.Join(e.root, dir))
	if err != nil {
		e.log.Debug(ctx, "listing degraded to empty result", "dir", dir, "error", err)
		return names
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), SecureExt) {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), SecureExt))
	}

	return names
}

// Lockdown makes every subsequent operation fail with common.ErrValidation
// until Unlock is called. It is engaged by the critical violation response.
func (e *Engine) Lockdown() { e.locked.Store(true) }

// Unlock lifts a previously engaged lockdown.
func (e *Engine) Unlock() { e.locked.Store(false) }

// Locked reports whether the engine is in lockdown.
func (e *Engine) Locked() bool { return e.locked.Load() }

// check validates the operation inputs and rejects everything while the
// engine is locked down.
func (e *Engine) check(name, dir string) error {
	if e.locked.Load() {
		return fmt.Errorf("%w: storage is locked down", common.ErrValidation)
	}
	if name == "" || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: invalid file name %q", common.ErrValidation, name)
	}
	if dir != "" && (filepath.IsAbs(dir) || strings.Contains(dir, "..")) {
		return fmt.Errorf("%w: invalid directory %q", common.ErrValidation, dir)
	}
	return nil
}
