package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"videoanalyzer/internal/model"
)

// InsertRecord inserts a new video record and returns its assigned id.
func (s *Store) InsertRecord(ctx context.Context, rec model.VideoRecord) (int64, error) {
	return s.UpsertRecords(ctx, []model.VideoRecord{rec})
}

// UpsertRecords writes a batch of records in a single transaction, upserting
// on conflict of file_path per spec §4.4's "batched insert is upsert on
// conflict". Returns the id of the last written row (or -1 if the batch was
// empty) — batch writers track ids internally and generally do not need
// this, but it gives single-record callers the row id without a SELECT.
func (s *Store) UpsertRecords(ctx context.Context, recs []model.VideoRecord) (int64, error) {
	if len(recs) == 0 {
		return -1, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return -1, fmt.Errorf("catalog: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, upsertRecordSQL)
	if err != nil {
		return -1, fmt.Errorf("catalog: prepare upsert: %w", err)
	}
	defer stmt.Close()

	var lastID int64 = -1
	for _, rec := range recs {
		if rec.ScannedAt.IsZero() {
			rec.ScannedAt = time.Now().UTC()
		}
		res, err := stmt.ExecContext(ctx,
			rec.FilePath, rec.FileName, rec.FileSize, rec.DurationSeconds,
			string(rec.VideoCodec), rec.Width, rec.Height, rec.FrameRate, rec.BitRate, rec.BitDepth,
			string(rec.HDRFormat), string(rec.AudioCodec), rec.AudioChannels,
			boolToInt(rec.IsAtmos), boolToInt(rec.IsDTSX), string(rec.ContainerFormat),
			rec.ScanSessionID, rec.ScannedAt, rec.FileHash, nullableBoolPtr(rec.IsCorrupted), rec.CorruptionDetails,
		)
		if err != nil {
			return -1, fmt.Errorf("catalog: upsert %s: %w", rec.FilePath, err)
		}
		if id, err := res.LastInsertId(); err == nil && id > 0 {
			lastID = id
		}
	}

	if err := tx.Commit(); err != nil {
		return -1, fmt.Errorf("catalog: commit upsert: %w", err)
	}
	return lastID, nil
}

const upsertRecordSQL = `
INSERT INTO video_records (
	file_path, file_name, file_size, duration_seconds,
	video_codec, width, height, frame_rate, bit_rate, bit_depth,
	hdr_format, audio_codec, audio_channels,
	is_atmos, is_dtsx, container_format,
	scan_session_id, scanned_at, file_hash, is_corrupted, corruption_details
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(file_path) DO UPDATE SET
	file_name = excluded.file_name,
	file_size = excluded.file_size,
	duration_seconds = excluded.duration_seconds,
	video_codec = excluded.video_codec,
	width = excluded.width,
	height = excluded.height,
	frame_rate = excluded.frame_rate,
	bit_rate = excluded.bit_rate,
	bit_depth = excluded.bit_depth,
	hdr_format = excluded.hdr_format,
	audio_codec = excluded.audio_codec,
	audio_channels = excluded.audio_channels,
	is_atmos = excluded.is_atmos,
	is_dtsx = excluded.is_dtsx,
	container_format = excluded.container_format,
	scan_session_id = excluded.scan_session_id,
	scanned_at = excluded.scanned_at,
	file_hash = excluded.file_hash,
	is_corrupted = excluded.is_corrupted,
	corruption_details = excluded.corruption_details
`

// UpdateRecord updates an existing record identified by id.
func (s *Store) UpdateRecord(ctx context.Context, rec model.VideoRecord) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE video_records SET
			file_path = ?, file_name = ?, file_size = ?, duration_seconds = ?,
			video_codec = ?, width = ?, height = ?, frame_rate = ?, bit_rate = ?, bit_depth = ?,
			hdr_format = ?, audio_codec = ?, audio_channels = ?,
			is_atmos = ?, is_dtsx = ?, container_format = ?,
			scan_session_id = ?, file_hash = ?, is_corrupted = ?, corruption_details = ?
		WHERE id = ?`,
		rec.FilePath, rec.FileName, rec.FileSize, rec.DurationSeconds,
		string(rec.VideoCodec), rec.Width, rec.Height, rec.FrameRate, rec.BitRate, rec.BitDepth,
		string(rec.HDRFormat), string(rec.AudioCodec), rec.AudioChannels,
		boolToInt(rec.IsAtmos), boolToInt(rec.IsDTSX), string(rec.ContainerFormat),
		rec.ScanSessionID, rec.FileHash, nullableBoolPtr(rec.IsCorrupted), rec.CorruptionDetails,
		rec.ID,
	)
	if err != nil {
		return fmt.Errorf("catalog: update record %d: %w", rec.ID, err)
	}
	return nil
}

// DeleteRecord deletes the record with the given id.
func (s *Store) DeleteRecord(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM video_records WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("catalog: delete record %d: %w", id, err)
	}
	return nil
}

// DeleteBySession deletes every record belonging to a scan session.
func (s *Store) DeleteBySession(ctx context.Context, sessionID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM video_records WHERE scan_session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("catalog: delete by session %d: %w", sessionID, err)
	}
	return nil
}

// DeleteAll truncates the catalog.
func (s *Store) DeleteAll(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM video_records`)
	if err != nil {
		return fmt.Errorf("catalog: delete all: %w", err)
	}
	return nil
}

// GetRecord fetches a single record by id.
func (s *Store) GetRecord(ctx context.Context, id int64) (model.VideoRecord, error) {
	row := s.db.QueryRowContext(ctx, recordColumnsSQL+` FROM video_records WHERE id = ?`, id)
	return scanRecord(row)
}

var recordColumnsSQL = `SELECT
	id, file_path, file_name, file_size, duration_seconds,
	video_codec, width, height, frame_rate, bit_rate, bit_depth,
	hdr_format, audio_codec, audio_channels, is_atmos, is_dtsx, container_format,
	scan_session_id, scanned_at, file_hash, is_corrupted, corruption_details`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (model.VideoRecord, error) {
	var rec model.VideoRecord
	var videoCodec, hdrFormat, audioCodec, containerFormat string
	var isAtmos, isDTSX int
	var isCorrupted sql.NullBool

	err := row.Scan(
		&rec.ID, &rec.FilePath, &rec.FileName, &rec.FileSize, &rec.DurationSeconds,
		&videoCodec, &rec.Width, &rec.Height, &rec.FrameRate, &rec.BitRate, &rec.BitDepth,
		&hdrFormat, &audioCodec, &rec.AudioChannels, &isAtmos, &isDTSX, &containerFormat,
		&rec.ScanSessionID, &rec.ScannedAt, &rec.FileHash, &isCorrupted, &rec.CorruptionDetails,
	)
	if err != nil {
		return model.VideoRecord{}, err
	}

	rec.VideoCodec = model.VideoCodec(videoCodec)
	rec.HDRFormat = model.HDRFormat(hdrFormat)
	rec.AudioCodec = model.AudioCodec(audioCodec)
	rec.ContainerFormat = model.Container(containerFormat)
	rec.IsAtmos = isAtmos != 0
	rec.IsDTSX = isDTSX != 0
	if isCorrupted.Valid {
		v := isCorrupted.Bool
		rec.IsCorrupted = &v
	}
	return rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableBoolPtr(b *bool) any {
	if b == nil {
		return nil
	}
	return boolToInt(*b)
}
