package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkozlov/sentryvault/internal/aliasx"
	"github.com/pkozlov/sentryvault/internal/common"
	"github.com/pkozlov/sentryvault/internal/dbx"
	"github.com/pkozlov/sentryvault/internal/keyring"
	"github.com/pkozlov/sentryvault/internal/logging"
	"github.com/pkozlov/sentryvault/internal/metadata"
	"github.com/pkozlov/sentryvault/internal/migrations"
)

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func setupMetaRepo(t *testing.T) *metadata.SQLiteRepository {
	t.Helper()
	db, err := dbx.OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	goose.SetBaseFS(migrations.Migrations)
	require.NoError(t, goose.SetDialect("sqlite3"))
	require.NoError(t, goose.Up(db, "."))
	return metadata.NewSQLiteRepository(db)
}

func setupEngine(t *testing.T) (*Engine, *metadata.SQLiteRepository, string) {
	t.Helper()
	root := t.TempDir()

	keys, err := keyring.Open([]byte("test-passphrase"), root)
	require.NoError(t, err)
	t.Cleanup(keys.Close)

	repo := setupMetaRepo(t)
	return NewEngine(root, keys, repo, testLogger()), repo, root
}

func TestSaveRead_RoundTrip(t *testing.T) {
	e, _, _ := setupEngine(t)
	ctx := context.Background()

	tests := []struct {
		name string
		data []byte
	}{
		{"report", []byte{1, 2, 3}},
		{"empty.txt", []byte{}},
		{"notes.txt", []byte("line one\nline two")},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			handle, err := e.Save(ctx, tc.data, tc.name, "")
			require.NoError(t, err)
			assert.Equal(t, tc.name, handle.Name)
			assert.FileExists(t, handle.Path)

			got, err := e.Read(ctx, tc.name, "")
			require.NoError(t, err)
			assert.Equal(t, len(tc.data), len(got))
			if len(tc.data) > 0 {
				assert.Equal(t, tc.data, got)
			}
		})
	}
}

func TestSave_CiphertextOnlyOnDisk(t *testing.T) {
	e, _, _ := setupEngine(t)
	ctx := context.Background()

	data := []byte("top secret payload, long enough to beat compression framing")
	handle, err := e.Save(ctx, data, "secret.txt", "")
	require.NoError(t, err)

	raw, err := os.ReadFile(handle.Path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "top secret", "plaintext must not appear on disk")
	assert.Equal(t, byte(formatV1), raw[0])
}

func TestSave_Overwrite(t *testing.T) {
	e, _, _ := setupEngine(t)
	ctx := context.Background()

	_, err := e.Save(ctx, []byte("v1"), "doc", "")
	require.NoError(t, err)
	_, err = e.Save(ctx, []byte("v2"), "doc", "")
	require.NoError(t, err)

	got, err := e.Read(ctx, "doc", "")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)

	assert.Equal(t, []string{"doc"}, e.List(ctx, ""))
}

func TestSave_Subdirectory(t *testing.T) {
	e, _, root := setupEngine(t)
	ctx := context.Background()

	handle, err := e.Save(ctx, []byte("nested"), "doc", "documents")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "documents", "doc"+SecureExt), handle.Path)

	got, err := e.Read(ctx, "doc", "documents")
	require.NoError(t, err)
	assert.Equal(t, []byte("nested"), got)

	assert.Contains(t, e.List(ctx, "documents"), "doc")
	assert.Empty(t, e.List(ctx, ""))
}

func TestSave_WritesMetadata(t *testing.T) {
	e, repo, _ := setupEngine(t)
	ctx := context.Background()

	_, err := e.Save(ctx, []byte("%PDF-1.7"), "report.pdf", "", "work", "q3")
	require.NoError(t, err)

	meta, err := repo.Get(ctx, aliasx.MetadataKey("report.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", meta.FileName)
	assert.Equal(t, "application/pdf", meta.MimeType)
	assert.Equal(t, int64(8), meta.Size)
	assert.Equal(t, []string{"work", "q3"}, meta.Tags)
}

func TestRead_NotFound(t *testing.T) {
	e, _, _ := setupEngine(t)

	_, err := e.Read(context.Background(), "never-saved", "")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestRead_CorruptedEnvelope(t *testing.T) {
	e, _, _ := setupEngine(t)
	ctx := context.Background()

	handle, err := e.Save(ctx, []byte("payload"), "doc", "")
	require.NoError(t, err)

	raw, err := os.ReadFile(handle.Path)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	require.NoError(t, os.WriteFile(handle.Path, raw, 0o600))

	_, err = e.Read(ctx, "doc", "")
	assert.ErrorIs(t, err, common.ErrCrypto)
}

func TestRead_TruncatedFile(t *testing.T) {
	e, _, root := setupEngine(t)

	require.NoError(t, os.WriteFile(filepath.Join(root, "stub"+SecureExt), []byte{formatV1, 1, 2}, 0o600))

	_, err := e.Read(context.Background(), "stub", "")
	assert.ErrorIs(t, err, common.ErrCrypto)
}

func TestDelete(t *testing.T) {
	e, repo, _ := setupEngine(t)
	ctx := context.Background()

	_, err := e.Save(ctx, []byte("data"), "doc", "")
	require.NoError(t, err)

	handle, err := e.Delete(ctx, "doc", "")
	require.NoError(t, err)
	assert.NoFileExists(t, handle.Path)
	assert.NotContains(t, e.List(ctx, ""), "doc")

	_, err = repo.Get(ctx, aliasx.MetadataKey("doc"))
	assert.ErrorIs(t, err, common.ErrNotFound)

	_, err = e.Delete(ctx, "doc", "")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestDelete_NeverSaved(t *testing.T) {
	e, _, _ := setupEngine(t)

	_, err := e.Delete(context.Background(), "never-saved", "")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestList_AbsentDirectory(t *testing.T) {
	e, _, _ := setupEngine(t)

	assert.Empty(t, e.List(context.Background(), "no-such-dir"))
}

func TestList_IgnoresForeignFiles(t *testing.T) {
	e, _, root := setupEngine(t)
	ctx := context.Background()

	_, err := e.Save(ctx, []byte("data"), "doc", "")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, "stray.tmp"), []byte("x"), 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub.sec"), 0o770))

	assert.Equal(t, []string{"doc"}, e.List(ctx, ""))
}

// failingMetaRepo rejects every write to exercise the save rollback path.
type failingMetaRepo struct{}

func (failingMetaRepo) Put(context.Context, string, metadata.FileMetadata) error {
	return errors.New("disk full")
}
func (failingMetaRepo) Get(context.Context, string) (*metadata.FileMetadata, error) {
	return nil, common.ErrNotFound
}
func (failingMetaRepo) Remove(context.Context, string) error { return nil }

func TestSave_RollsBackFileOnMetadataFailure(t *testing.T) {
	root := t.TempDir()
	keys, err := keyring.Open([]byte("test-passphrase"), root)
	require.NoError(t, err)
	t.Cleanup(keys.Close)

	e := NewEngine(root, keys, failingMetaRepo{}, testLogger())
	ctx := context.Background()

	_, err = e.Save(ctx, []byte("data"), "doc", "")
	require.ErrorIs(t, err, common.ErrIO)

	assert.NoFileExists(t, filepath.Join(root, "doc"+SecureExt))
	assert.Empty(t, e.List(ctx, ""))
}

func TestLockdown_RejectsOperations(t *testing.T) {
	e, _, _ := setupEngine(t)
	ctx := context.Background()

	_, err := e.Save(ctx, []byte("data"), "doc", "")
	require.NoError(t, err)

	e.Lockdown()
	assert.True(t, e.Locked())

	_, err = e.Save(ctx, []byte("x"), "other", "")
	assert.ErrorIs(t, err, common.ErrValidation)
	_, err = e.Read(ctx, "doc", "")
	assert.ErrorIs(t, err, common.ErrValidation)
	_, err = e.Delete(ctx, "doc", "")
	assert.ErrorIs(t, err, common.ErrValidation)
	assert.Empty(t, e.List(ctx, ""))

	e.Unlock()
	got, err := e.Read(ctx, "doc", "")
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), got)
}

func TestCheck_RejectsBadInputs(t *testing.T) {
	e, _, _ := setupEngine(t)
	ctx := context.Background()

	tests := []struct {
		name string
		dir  string
	}{
		{"", ""},
		{"../escape", ""},
		{`..\escape`, ""},
		{"doc", "../outside"},
		{"doc", "/absolute"},
	}

	for _, tc := range tests {
		t.Run(fmt.Sprintf("%s_%s", tc.name, tc.dir), func(t *testing.T) {
			_, err := e.Save(ctx, []byte("x"), tc.name, tc.dir)
			assert.ErrorIs(t, err, common.ErrValidation)
		})
	}
}

func TestConcurrentSaves_DistinctNames(t *testing.T) {
	e, _, _ := setupEngine(t)
	ctx := context.Background()

	const n = 8
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			_, err := e.Save(ctx, []byte{byte(i)}, fmt.Sprintf("file-%d", i), "")
			errs <- err
		}(i)
	}
	for i := 0; i < n; i++ {
		require.NoError(t, <-errs)
	}

	assert.Len(t, e.List(ctx, ""), n)
}
