package store

import (
	"context"
	"time"

	"github.com/agentfusion/contextd/internal/errors"
)

// SeedBootstrap inserts PENDING rows for paths not yet tracked in
// bootstrap_progress. Existing rows keep their status so a resumed
// bootstrap skips completed work.
func (s *Store) SeedBootstrap(ctx context.Context, root string, relPaths []string) error {
	if len(relPaths) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.StoreError("begin bootstrap seed", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixNano()
	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO bootstrap_progress(root, rel_path, status, attempts, updated_at)
		 VALUES (?, ?, ?, 0, ?)`)
	if err != nil {
		return errors.StoreError("prepare bootstrap seed", err)
	}
	defer stmt.Close()

	for _, rel := range relPaths {
		if _, err := stmt.ExecContext(ctx, root, rel, BootstrapPending, now); err != nil {
			return errors.StoreError("seed bootstrap entry", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.StoreError("commit bootstrap seed", err)
	}
	return nil
}

// ClaimBootstrapBatch atomically moves up to limit PENDING rows to
// IN_PROGRESS and returns their paths.
func (s *Store) ClaimBootstrapBatch(ctx context.Context, root string, limit int) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.StoreError("begin bootstrap claim", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx,
		`SELECT rel_path FROM bootstrap_progress
		 WHERE root = ? AND status = ? ORDER BY rel_path LIMIT ?`,
		root, BootstrapPending, limit)
	if err != nil {
		return nil, errors.StoreError("select pending bootstrap", err)
	}
	var paths []string
	for rows.Next() {
		var rel string
		if err := rows.Scan(&rel); err != nil {
			rows.Close()
			return nil, errors.StoreError("scan bootstrap path", err)
		}
		paths = append(paths, rel)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, errors.StoreError("iterate bootstrap paths", err)
	}
	if len(paths) == 0 {
		return nil, tx.Commit()
	}

	now := time.Now().UnixNano()
	stmt, err := tx.PrepareContext(ctx,
		`UPDATE bootstrap_progress SET status = ?, attempts = attempts + 1, updated_at = ?
		 WHERE root = ? AND rel_path = ?`)
	if err != nil {
		return nil, errors.StoreError("prepare bootstrap claim", err)
	}
	defer stmt.Close()
	for _, rel := range paths {
		if _, err := stmt.ExecContext(ctx, BootstrapInProgress, now, root, rel); err != nil {
			return nil, errors.StoreError("claim bootstrap entry", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.StoreError("commit bootstrap claim", err)
	}
	return paths, nil
}

// FinishBootstrapEntry marks a claimed path DONE or FAILED.
func (s *Store) FinishBootstrapEntry(ctx context.Context, root, relPath string, status BootstrapStatus) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE bootstrap_progress SET status = ?, updated_at = ?
		 WHERE root = ? AND rel_path = ?`,
		status, time.Now().UnixNano(), root, relPath)
	if err != nil {
		return errors.StoreError("finish bootstrap entry", err)
	}
	return nil
}

// ResetInFlightBootstrap returns IN_PROGRESS rows to PENDING. Called on
// startup so entries orphaned by a crash are retried.
func (s *Store) ResetInFlightBootstrap(ctx context.Context, root string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE bootstrap_progress SET status = ?, updated_at = ?
		 WHERE root = ? AND status = ?`,
		BootstrapPending, time.Now().UnixNano(), root, BootstrapInProgress)
	if err != nil {
		return 0, errors.StoreError("reset in-flight bootstrap", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// BootstrapProgress reports per-status counts for a root.
func (s *Store) BootstrapProgress(ctx context.Context, root string) (BootstrapCounts, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM bootstrap_progress WHERE root = ? GROUP BY status`, root)
	if err != nil {
		return BootstrapCounts{}, errors.StoreError("bootstrap progress", err)
	}
	defer rows.Close()

	var counts BootstrapCounts
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return BootstrapCounts{}, errors.StoreError("scan bootstrap count", err)
		}
		switch BootstrapStatus(status) {
		case BootstrapPending:
			counts.Pending = n
		case BootstrapInProgress:
			counts.InProgress = n
		case BootstrapDone:
			counts.Done = n
		case BootstrapFailed:
			counts.Failed = n
		}
	}
	return counts, rows.Err()
}

// ClearBootstrap removes all bootstrap rows for a root.
func (s *Store) ClearBootstrap(ctx context.Context, root string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM bootstrap_progress WHERE root = ?`, root)
	if err != nil {
		return errors.StoreError("clear bootstrap", err)
	}
	return nil
}
