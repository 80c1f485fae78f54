package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pkozlov/sentryvault/internal/common"
	"github.com/pkozlov/sentryvault/internal/dbx"
)

// SQLiteRepository persists metadata records and their tags in SQLite.
// Writes touch two tables, so they run inside a transaction.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Put(ctx context.Context, key string, meta FileMetadata) error {

	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {

		query := `INSERT INTO file_metadata (meta_key, file_name, mime_type, size, last_modified)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(meta_key) DO UPDATE SET file_name = excluded.file_name,
				mime_type = excluded.mime_type,
				size = excluded.size,
				last_modified = excluded.last_modified
		`
		_, err := tx.ExecContext(ctx, query,
			key, meta.FileName, meta.MimeType, meta.Size, meta.LastModified.UnixMilli())
		if err != nil {
			return fmt.Errorf("failed to upsert metadata: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM file_metadata_tags WHERE meta_key = ?`, key); err != nil {
			return fmt.Errorf("failed to clear tags: %w", err)
		}

		for i, tag := range meta.Tags {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO file_metadata_tags (meta_key, pos, tag) VALUES (?, ?, ?)`,
				key, i, tag)
			if err != nil {
				return fmt.Errorf("failed to insert tag: %w", err)
			}
		}

		return nil
	})
}

func (r *SQLiteRepository) Get(ctx context.Context, key string) (*FileMetadata, error) {

	query := `SELECT file_name, mime_type, size, last_modified FROM file_metadata WHERE meta_key = ?`
	row := r.db.QueryRowContext(ctx, query, key)

	m := &FileMetadata{}
	var lastModified int64
	err := row.Scan(&m.FileName, &m.MimeType, &m.Size, &lastModified)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan metadata: %w", err)
	}
	m.LastModified = time.UnixMilli(lastModified)

	rows, err := r.db.QueryContext(ctx,
		`SELECT tag FROM file_metadata_tags WHERE meta_key = ? ORDER BY pos`, key)
	if err != nil {
		return nil, fmt.Errorf("failed to select tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, err
		}
		m.Tags = append(m.Tags, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return m, nil
}

func (r *SQLiteRepository) Remove(ctx context.Context, key string) error {

	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {

		if _, err := tx.ExecContext(ctx, `DELETE FROM file_metadata_tags WHERE meta_key = ?`, key); err != nil {
			return fmt.Errorf("failed to delete tags: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM file_metadata WHERE meta_key = ?`, key); err != nil {
			return fmt.Errorf("failed to delete metadata: %w", err)
		}
		return nil
	})
}
