package catalog

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"videoanalyzer/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.sqlite")
	store, err := Open(path, DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func intp(v int) *int         { return &v }
func f64p(v float64) *float64 { return &v }
func i64p(v int64) *int64     { return &v }

func testFilePath(i int) string {
	return filepath.Join("/media", fmt.Sprintf("file-%d.mkv", i))
}

func sampleRecord(path string, height int) model.VideoRecord {
	return model.VideoRecord{
		FilePath:        path,
		FileName:        filepath.Base(path),
		FileSize:        1_000_000,
		DurationSeconds: f64p(120),
		VideoCodec:      model.VideoCodecHEVC,
		Width:           intp(height * 16 / 9),
		Height:          intp(height),
		FrameRate:       f64p(23.976),
		BitRate:         i64p(8_000_000),
		BitDepth:        intp(10),
		HDRFormat:       model.HDRFormatHDR10,
		AudioCodec:      model.AudioCodecEAC3,
		AudioChannels:   intp(6),
		ContainerFormat: model.ContainerMKV,
	}
}

func TestOpen_RunsMigrations(t *testing.T) {
	store := openTestStore(t)
	var count int
	err := store.DB().QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name IN ('video_records','scan_sessions')`).Scan(&count)
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestOpen_MigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.sqlite")
	store, err := Open(path, DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store2, err := Open(path, DefaultConfig())
	require.NoError(t, err)
	defer store2.Close()
}

func TestUpsertRecords_ConflictOnFilePath(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	rec := sampleRecord("/media/movie.mkv", 1080)
	id1, err := store.InsertRecord(ctx, rec)
	require.NoError(t, err)
	require.Greater(t, id1, int64(0))

	rec.FileSize = 2_000_000
	_, err = store.InsertRecord(ctx, rec)
	require.NoError(t, err)

	out, err := store.FetchFiltered(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.EqualValues(t, 2_000_000, out[0].FileSize)
}

func TestFetchFiltered_ResolutionCategories(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	heights := []int{720, 1080, 1080, 2160, 2160, 2160, 4320}
	for i, h := range heights {
		rec := sampleRecord(testFilePath(i), h)
		_, err := store.InsertRecord(ctx, rec)
		require.NoError(t, err)
	}
	// 3 records with null height
	for i := 0; i < 3; i++ {
		rec := sampleRecord(testFilePath(100 + i), 0)
		rec.Height = nil
		rec.Width = nil
		_, err := store.InsertRecord(ctx, rec)
		require.NoError(t, err)
	}

	out, err := store.FetchFiltered(ctx, Filter{
		ResolutionCategories: []model.ResolutionBand{model.ResolutionBand4K, model.ResolutionBand8K},
	})
	require.NoError(t, err)
	require.Len(t, out, 4)
}

func TestFetchFiltered_ImmersiveAudioOrFilter(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	atmos := sampleRecord("/media/atmos.mkv", 1080)
	atmos.IsAtmos = true
	dtsx := sampleRecord("/media/dtsx.mkv", 1080)
	dtsx.IsDTSX = true
	plain := sampleRecord("/media/plain.mkv", 1080)

	for _, r := range []model.VideoRecord{atmos, dtsx, plain} {
		_, err := store.InsertRecord(ctx, r)
		require.NoError(t, err)
	}

	out, err := store.FetchFiltered(ctx, Filter{ImmersiveAudio: true})
	require.NoError(t, err)
	require.Len(t, out, 2)
}

func TestFetchFiltered_SearchTextCaseInsensitive(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	_, err := store.InsertRecord(ctx, sampleRecord("/media/The.Matrix.1999.mkv", 1080))
	require.NoError(t, err)

	out, err := store.FetchFiltered(ctx, Filter{SearchText: "matrix"})
	require.NoError(t, err)
	require.Len(t, out, 1)
}

func TestFetchStatistics_SumsMatchCounts(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for i, h := range []int{1080, 2160, 2160, 0} {
		rec := sampleRecord(testFilePath(200+i), h)
		if h == 0 {
			rec.Height = nil
			rec.Width = nil
		}
		_, err := store.InsertRecord(ctx, rec)
		require.NoError(t, err)
	}

	stats, err := store.FetchStatistics(ctx)
	require.NoError(t, err)
	require.Equal(t, 4, stats.TotalRecords)

	var bucketSum int
	for _, n := range stats.ByResolutionBand {
		bucketSum += n
	}
	require.Equal(t, 3, bucketSum) // one record has a null height and is excluded
}

func TestDeleteBySession(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	sessionID, err := store.CreateSession(ctx, model.ScanSession{
		FolderPath: "/media",
		Status:     model.SessionInProgress,
	})
	require.NoError(t, err)

	rec := sampleRecord("/media/a.mkv", 1080)
	rec.ScanSessionID = &sessionID
	_, err = store.InsertRecord(ctx, rec)
	require.NoError(t, err)

	require.NoError(t, store.DeleteBySession(ctx, sessionID))

	out, err := store.FetchFiltered(ctx, Filter{})
	require.NoError(t, err)
	require.Empty(t, out)
}
