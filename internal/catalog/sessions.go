package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"videoanalyzer/internal/model"
)

// CreateSession persists a new session and returns its assigned id.
func (s *Store) CreateSession(ctx context.Context, sess model.ScanSession) (int64, error) {
	pending, err := json.Marshal(sess.PendingFiles)
	if err != nil {
		return 0, fmt.Errorf("catalog: marshal pending files: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO scan_sessions (folder_path, started_at, total_files, processed_files, status, pending_files, error_count)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sess.FolderPath, sess.StartedAt, sess.TotalFiles, sess.ProcessedFiles, string(sess.Status), string(pending), sess.ErrorCount,
	)
	if err != nil {
		return 0, fmt.Errorf("catalog: create session: %w", err)
	}
	return res.LastInsertId()
}

// UpdateSession overwrites the mutable fields of an existing session.
func (s *Store) UpdateSession(ctx context.Context, sess model.ScanSession) error {
	pending, err := json.Marshal(sess.PendingFiles)
	if err != nil {
		return fmt.Errorf("catalog: marshal pending files: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE scan_sessions SET
			completed_at = ?, total_files = ?, processed_files = ?, status = ?,
			last_checkpoint_at = ?, pending_files = ?, error_count = ?
		WHERE id = ?`,
		sess.CompletedAt, sess.TotalFiles, sess.ProcessedFiles, string(sess.Status),
		sess.LastCheckpointAt, string(pending), sess.ErrorCount, sess.ID,
	)
	if err != nil {
		return fmt.Errorf("catalog: update session %d: %w", sess.ID, err)
	}
	return nil
}

// GetSession fetches a session by id.
func (s *Store) GetSession(ctx context.Context, id int64) (model.ScanSession, error) {
	row := s.db.QueryRowContext(ctx, sessionColumnsSQL+` FROM scan_sessions WHERE id = ?`, id)
	return scanSession(row)
}

// ActiveSession returns the single in_progress session, if any, enforcing
// spec §3's "at most one session has status in_progress" invariant at the
// read side (the write side enforces it by checking before start_scan).
func (s *Store) ActiveSession(ctx context.Context) (model.ScanSession, bool, error) {
	row := s.db.QueryRowContext(ctx, sessionColumnsSQL+` FROM scan_sessions WHERE status = ? ORDER BY id DESC LIMIT 1`, string(model.SessionInProgress))
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return model.ScanSession{}, false, nil
	}
	if err != nil {
		return model.ScanSession{}, false, err
	}
	return sess, true, nil
}

const sessionColumnsSQL = `SELECT
	id, folder_path, started_at, completed_at, total_files, processed_files,
	status, last_checkpoint_at, pending_files, error_count`

func scanSession(row rowScanner) (model.ScanSession, error) {
	var sess model.ScanSession
	var status, pending string

	err := row.Scan(
		&sess.ID, &sess.FolderPath, &sess.StartedAt, &sess.CompletedAt, &sess.TotalFiles, &sess.ProcessedFiles,
		&status, &sess.LastCheckpointAt, &pending, &sess.ErrorCount,
	)
	if err != nil {
		return model.ScanSession{}, err
	}
	sess.Status = model.SessionStatus(status)
	if err := json.Unmarshal([]byte(pending), &sess.PendingFiles); err != nil {
		return model.ScanSession{}, fmt.Errorf("catalog: unmarshal pending files: %w", err)
	}
	return sess, nil
}
