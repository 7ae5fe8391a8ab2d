package catalog

import (
	"context"
	"fmt"
	"strings"

	"videoanalyzer/internal/model"
)

// SortColumn is the recognized sort_column vocabulary from spec §4.4.
type SortColumn string

const (
	SortFileName   SortColumn = "file_name"
	SortFileSize   SortColumn = "file_size"
	SortDuration   SortColumn = "duration"
	SortResolution SortColumn = "resolution"
	SortVideoCodec SortColumn = "video_codec"
	SortHDRFormat  SortColumn = "hdr_format"
	SortAudioCodec SortColumn = "audio_codec"
	SortBitRate    SortColumn = "bit_rate"
	SortContainer  SortColumn = "container"
)

var sortColumnExpr = map[SortColumn]string{
	SortFileName:   "file_name",
	SortFileSize:   "file_size",
	SortDuration:   "duration_seconds",
	SortResolution: "height",
	SortVideoCodec: "video_codec",
	SortHDRFormat:  "hdr_format",
	SortAudioCodec: "audio_codec",
	SortBitRate:    "bit_rate",
	SortContainer:  "container_format",
}

// Filter is every optional predicate fetch_filtered accepts. Every field is
// optional (zero value = not applied) and composes with AND, except
// ResolutionCategories (OR'd internally) and the ImmersiveAudio convenience
// flag, which is itself an OR of is_atmos/is_dtsx.
type Filter struct {
	SearchText           string
	VideoCodecs          []model.VideoCodec
	HDRFormats           []model.HDRFormat
	AudioCodecs          []model.AudioCodec
	Containers           []model.Container
	ResolutionCategories []model.ResolutionBand
	HasAtmos             *bool
	HasDTSX              *bool
	ImmersiveAudio       bool
	MinDurationSeconds   *float64
	MaxDurationSeconds   *float64
	MinFileSize          *uint64
	MaxFileSize          *uint64

	SortColumn    SortColumn
	SortAscending bool
	Limit         int
	Offset        int
}

// FetchFiltered runs the composed filter/sort/paginate query from spec
// §4.4. Every predicate is optional; resolution categories OR together
// internally and then AND with the rest.
func (s *Store) FetchFiltered(ctx context.Context, f Filter) ([]model.VideoRecord, error) {
	query, args := buildFilterQuery(f)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog: fetch filtered: %w", err)
	}
	defer rows.Close()

	var out []model.VideoRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("catalog: scan filtered row: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func buildFilterQuery(f Filter) (string, []any) {
	var where []string
	var args []any

	if f.SearchText != "" {
		where = append(where, "file_name LIKE ? ESCAPE '\\'")
		args = append(args, "%"+escapeLike(strings.ToLower(f.SearchText))+"%")
		// Case-insensitive match: SQLite's LIKE is case-insensitive for ASCII
		// by default, which matches spec's "case-insensitive substring" rule.
	}
	if clause, a := inClause("video_codec", stringsOf(f.VideoCodecs)); clause != "" {
		where = append(where, clause)
		args = append(args, a...)
	}
	if clause, a := inClause("hdr_format", stringsOf(f.HDRFormats)); clause != "" {
		where = append(where, clause)
		args = append(args, a...)
	}
	if clause, a := inClause("audio_codec", stringsOf(f.AudioCodecs)); clause != "" {
		where = append(where, clause)
		args = append(args, a...)
	}
	if clause, a := inClause("container_format", stringsOf(f.Containers)); clause != "" {
		where = append(where, clause)
		args = append(args, a...)
	}
	if len(f.ResolutionCategories) > 0 {
		clause, a := resolutionCategoriesClause(f.ResolutionCategories)
		where = append(where, clause)
		args = append(args, a...)
	}
	if f.HasAtmos != nil {
		where = append(where, "is_atmos = ?")
		args = append(args, boolToInt(*f.HasAtmos))
	}
	if f.HasDTSX != nil {
		where = append(where, "is_dtsx = ?")
		args = append(args, boolToInt(*f.HasDTSX))
	}
	if f.ImmersiveAudio {
		where = append(where, "(is_atmos = 1 OR is_dtsx = 1)")
	}
	if f.MinDurationSeconds != nil {
		where = append(where, "duration_seconds >= ?")
		args = append(args, *f.MinDurationSeconds)
	}
	if f.MaxDurationSeconds != nil {
		where = append(where, "duration_seconds <= ?")
		args = append(args, *f.MaxDurationSeconds)
	}
	if f.MinFileSize != nil {
		where = append(where, "file_size >= ?")
		args = append(args, *f.MinFileSize)
	}
	if f.MaxFileSize != nil {
		where = append(where, "file_size <= ?")
		args = append(args, *f.MaxFileSize)
	}

	query := recordColumnsSQL + " FROM video_records"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	orderExpr := sortColumnExpr[f.SortColumn]
	if orderExpr == "" {
		orderExpr = "file_name"
	}
	direction := "DESC"
	if f.SortAscending {
		direction = "ASC"
	}
	query += fmt.Sprintf(" ORDER BY %s %s", orderExpr, direction)

	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
		if f.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, f.Offset)
		}
	}

	return query, args
}

// resolutionCategoriesClause expresses each named band as a half-open
// height range and ORs them together, matching the bands defined in
// model.ResolutionBandForHeight.
func resolutionCategoriesClause(bands []model.ResolutionBand) (string, []any) {
	bounds := map[model.ResolutionBand][2]int{
		model.ResolutionBand8K:    {4320, -1},
		model.ResolutionBand4K:    {2160, 4320},
		model.ResolutionBand1440p: {1440, 2160},
		model.ResolutionBand1080p: {1080, 1440},
		model.ResolutionBand720p:  {720, 1080},
		model.ResolutionBand480p:  {480, 720},
		model.ResolutionBand360p:  {360, 480},
		model.ResolutionBandSD:    {0, 360},
	}

	var parts []string
	var args []any
	for _, band := range bands {
		b, ok := bounds[band]
		if !ok {
			continue
		}
		if b[1] < 0 {
			parts = append(parts, "(height >= ?)")
			args = append(args, b[0])
		} else {
			parts = append(parts, "(height >= ? AND height < ?)")
			args = append(args, b[0], b[1])
		}
	}
	if len(parts) == 0 {
		return "(1 = 0)", nil
	}
	return "(" + strings.Join(parts, " OR ") + ")", args
}

func inClause[T ~string](column string, values []T) (string, []any) {
	if len(values) == 0 {
		return "", nil
	}
	placeholders := make([]string, len(values))
	args := make([]any, len(values))
	for i, v := range values {
		placeholders[i] = "?"
		args[i] = string(v)
	}
	return fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholders, ", ")), args
}

func stringsOf[T ~string](vs []T) []T { return vs }

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "%", "\\%")
	s = strings.ReplaceAll(s, "_", "\\_")
	return s
}
