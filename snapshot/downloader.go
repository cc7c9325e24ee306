// Package snapshot pulls the authoritative working set from the backend and
// atomically replaces the local mirror with it.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"sitemanager/remote"
	"sitemanager/store"
)

// Fetcher reads a raw snapshot from the backend.
type Fetcher interface {
	FetchSnapshot(ctx context.Context, projectID string) (*remote.Snapshot, error)
}

// Emitter receives download outcomes.
type Emitter interface {
	EmitSnapshotApplied(projectID string, rows, rebased int, took time.Duration)
	EmitSnapshotFailed(projectID string, err error)
}

// Result describes one completed refresh.
type Result struct {
	ProjectID string
	Rows      int
	Rebased   int
}

// Downloader refreshes the local mirror.
type Downloader struct {
	db     *store.DB
	remote Fetcher
	emit   Emitter
	log    *zap.Logger
}

// NewDownloader creates a Downloader.
func NewDownloader(db *store.DB, f Fetcher, emit Emitter, log *zap.Logger) *Downloader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Downloader{db: db, remote: f, emit: emit, log: log}
}

// Refresh fetches everything for the active project and replaces the mirror
// in one transaction. On any failure the mirror is untouched. A snapshot
// whose project was switched away from during the fetch is discarded and
// store.ErrStaleSnapshot is returned.
func (d *Downloader) Refresh(ctx context.Context) (*Result, error) {
	start := time.Now()
	projectID, err := d.db.ActiveProject()
	if err != nil {
		return nil, err
	}

	raw, err := d.remote.FetchSnapshot(ctx, projectID)
	if err != nil {
		d.fail(projectID, err)
		return nil, err
	}

	res, err := d.db.ReplaceSnapshot(Denormalize(raw))
	if errors.Is(err, store.ErrStaleSnapshot) {
		d.log.Info("discarded snapshot for inactive project", zap.String("project", projectID))
		return nil, err
	}
	if err != nil {
		err = fmt.Errorf("apply snapshot: %w", err)
		d.fail(projectID, err)
		return nil, err
	}

	took := time.Since(start)
	d.log.Info("snapshot applied",
		zap.String("project", projectID),
		zap.Int("rows", res.Rows),
		zap.Int("rebased", res.Rebased),
		zap.Duration("took", took))
	if d.emit != nil {
		d.emit.EmitSnapshotApplied(projectID, res.Rows, res.Rebased, took)
	}
	return &Result{ProjectID: projectID, Rows: res.Rows, Rebased: res.Rebased}, nil
}

func (d *Downloader) fail(projectID string, err error) {
	d.log.Warn("snapshot refresh failed", zap.String("project", projectID), zap.Error(err))
	if d.emit != nil {
		d.emit.EmitSnapshotFailed(projectID, err)
	}
}
