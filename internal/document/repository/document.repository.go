package repository

import (
	"context"
	"database/sql"
	"livecollab/internal/document/model"
	"livecollab/pkg/logger"
)

// ArchiveRepository writes document snapshots to Postgres. It is write-only:
// nothing in the engine reads snapshots back.
type ArchiveRepository struct {
	DB *sql.DB
}

func NewArchiveRepository(db *sql.DB) *ArchiveRepository {
	return &ArchiveRepository{DB: db}
}

const createSnapshotsTable = `
	CREATE TABLE IF NOT EXISTS document_snapshots (
		document_key TEXT PRIMARY KEY,
		content      TEXT NOT NULL,
		version      BIGINT NOT NULL,
		modified_at  TIMESTAMPTZ NOT NULL,
		archived_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`

func (r *ArchiveRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.DB.ExecContext(ctx, createSnapshotsTable)
	if err != nil {
		logger.Sugar.Errorf("Failed to create document_snapshots table: %v", err)
	}
	return err
}

// SaveSnapshot upserts the latest snapshot of a document.
func (r *ArchiveRepository) SaveSnapshot(ctx context.Context, snap model.Snapshot) error {
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO document_snapshots (document_key, content, version, modified_at, archived_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (document_key) DO UPDATE
		SET content = EXCLUDED.content, version = EXCLUDED.version,
			modified_at = EXCLUDED.modified_at, archived_at = NOW()`,
		snap.Key, snap.Text, snap.Version, snap.ModifiedAt)
	if err != nil {
		logger.Sugar.Errorf("Failed to archive doc %s at version %d: %v", snap.Key, snap.Version, err)
	}
	return err
}
