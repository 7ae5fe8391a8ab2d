package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"videoanalyzer/internal/model"
)

// Statistics summarizes the whole catalog via grouped aggregate queries —
// spec §4.4 requires this, not a streamed scan of every row.
type Statistics struct {
	TotalRecords     int
	TotalFileSize    uint64
	ByVideoCodec     map[model.VideoCodec]int
	ByHDRFormat      map[model.HDRFormat]int
	ByAudioCodec     map[model.AudioCodec]int
	ByContainer      map[model.Container]int
	ByResolutionBand map[model.ResolutionBand]int
	AtmosCount       int
	DTSXCount        int
}

// FetchStatistics computes totals and per-bucket counts across every enum
// dimension plus resolution bands, atmos_count, and dtsx_count.
func (s *Store) FetchStatistics(ctx context.Context) (Statistics, error) {
	stats := Statistics{
		ByVideoCodec:     map[model.VideoCodec]int{},
		ByHDRFormat:      map[model.HDRFormat]int{},
		ByAudioCodec:     map[model.AudioCodec]int{},
		ByContainer:      map[model.Container]int{},
		ByResolutionBand: map[model.ResolutionBand]int{},
	}

	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(file_size), 0) FROM video_records`)
	if err := row.Scan(&stats.TotalRecords, &stats.TotalFileSize); err != nil {
		return Statistics{}, fmt.Errorf("catalog: totals: %w", err)
	}

	if err := groupCount(ctx, s.db, "video_codec", func(k string, n int) {
		stats.ByVideoCodec[model.VideoCodec(k)] = n
	}); err != nil {
		return Statistics{}, err
	}
	if err := groupCount(ctx, s.db, "hdr_format", func(k string, n int) {
		stats.ByHDRFormat[model.HDRFormat(k)] = n
	}); err != nil {
		return Statistics{}, err
	}
	if err := groupCount(ctx, s.db, "audio_codec", func(k string, n int) {
		stats.ByAudioCodec[model.AudioCodec(k)] = n
	}); err != nil {
		return Statistics{}, err
	}
	if err := groupCount(ctx, s.db, "container_format", func(k string, n int) {
		stats.ByContainer[model.Container(k)] = n
	}); err != nil {
		return Statistics{}, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT height, COUNT(*) FROM video_records WHERE height IS NOT NULL GROUP BY height`)
	if err != nil {
		return Statistics{}, fmt.Errorf("catalog: resolution groups: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var height, n int
		if err := rows.Scan(&height, &n); err != nil {
			return Statistics{}, fmt.Errorf("catalog: scan resolution group: %w", err)
		}
		band := model.ResolutionBandForHeight(height)
		stats.ByResolutionBand[band] += n
	}
	if err := rows.Err(); err != nil {
		return Statistics{}, err
	}

	immersiveRow := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(is_atmos), 0),
			COALESCE(SUM(is_dtsx), 0)
		FROM video_records`)
	if err := immersiveRow.Scan(&stats.AtmosCount, &stats.DTSXCount); err != nil {
		return Statistics{}, fmt.Errorf("catalog: immersive counts: %w", err)
	}

	return stats, nil
}

func groupCount(ctx context.Context, db *sql.DB, column string, assign func(key string, count int)) error {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`SELECT %s, COUNT(*) FROM video_records GROUP BY %s`, column, column))
	if err != nil {
		return fmt.Errorf("catalog: group by %s: %w", column, err)
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("catalog: scan group %s: %w", column, err)
		}
		assign(key, n)
	}
	return rows.Err()
}
