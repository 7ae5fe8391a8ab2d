package duplicate

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"videoanalyzer/internal/model"
)

func ptr[T any](v T) *T { return &v }

func TestDetectFuzzy_GroupsByBucketAndScoresConfidence(t *testing.T) {
	records := []model.VideoRecord{
		{FilePath: "/a.mkv", FileSize: 1_000_000_000, DurationSeconds: ptr(3600.0), Width: ptr(1920), Height: ptr(1080), VideoCodec: model.VideoCodecH264, ContainerFormat: model.ContainerMKV},
		{FilePath: "/b.mkv", FileSize: 1_000_050_000, DurationSeconds: ptr(3601.0), Width: ptr(1920), Height: ptr(1080), VideoCodec: model.VideoCodecH264, ContainerFormat: model.ContainerMKV},
		{FilePath: "/c.mkv", FileSize: 50_000_000, DurationSeconds: ptr(300.0), Width: ptr(1280), Height: ptr(720), VideoCodec: model.VideoCodecH264, ContainerFormat: model.ContainerMKV},
	}

	d := New(afero.NewMemMapFs())
	groups, err := d.Detect(context.Background(), records, MethodFuzzy)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Len(t, groups[0].Files, 2)
	assert.Equal(t, MethodFuzzy, groups[0].MatchType)
	assert.GreaterOrEqual(t, groups[0].Confidence, 0.9)
	assert.Equal(t, uint64(1_000_000_000), groups[0].PotentialSavings)
}

func TestDetectFuzzy_NoMatchesBelowTwoMembers(t *testing.T) {
	records := []model.VideoRecord{
		{FilePath: "/a.mkv", FileSize: 100, DurationSeconds: ptr(10.0), Width: ptr(640), Height: ptr(480)},
	}
	d := New(afero.NewMemMapFs())
	groups, err := d.Detect(context.Background(), records, MethodFuzzy)
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func writeFile(t *testing.T, fs afero.Fs, path string, content []byte) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, path, content, 0o644))
}

func TestDetectPartialHash_GroupsIdenticalLeadingWindows(t *testing.T) {
	fs := afero.NewMemMapFs()
	content := make([]byte, 10)
	for i := range content {
		content[i] = byte(i)
	}
	writeFile(t, fs, "/a.mkv", content)
	writeFile(t, fs, "/b.mkv", content)
	writeFile(t, fs, "/c.mkv", []byte("different content here"))

	records := []model.VideoRecord{
		{FilePath: "/a.mkv", FileSize: uint64(len(content))},
		{FilePath: "/b.mkv", FileSize: uint64(len(content))},
		{FilePath: "/c.mkv", FileSize: 23},
	}

	d := New(fs)
	groups, err := d.Detect(context.Background(), records, MethodPartialHash)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Len(t, groups[0].Files, 2)
	assert.Equal(t, MethodPartialHash, groups[0].MatchType)
	assert.Equal(t, 0.95, groups[0].Confidence)
	assert.NotEmpty(t, groups[0].Hash)
}

func TestDetectPartialHash_ExcludesUnreadableFiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/a.mkv", []byte("hello"))

	records := []model.VideoRecord{
		{FilePath: "/a.mkv", FileSize: 5},
		{FilePath: "/missing.mkv", FileSize: 5},
	}

	d := New(fs)
	groups, err := d.Detect(context.Background(), records, MethodPartialHash)
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestDetectFullHash_PreGroupsBySizeBeforeHashing(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/a.mkv", []byte("identical-bytes"))
	writeFile(t, fs, "/b.mkv", []byte("identical-bytes"))
	writeFile(t, fs, "/c.mkv", []byte("unique-size-xx"))

	records := []model.VideoRecord{
		{FilePath: "/a.mkv", FileSize: 15},
		{FilePath: "/b.mkv", FileSize: 15},
		{FilePath: "/c.mkv", FileSize: 14},
	}

	d := New(fs)
	groups, err := d.Detect(context.Background(), records, MethodFullHash)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, MethodFullHash, groups[0].MatchType)
	assert.Equal(t, 1.0, groups[0].Confidence)
}

func TestGroupsSortedByTotalSizeDescending(t *testing.T) {
	fs := afero.NewMemMapFs()
	records := []model.VideoRecord{
		{FilePath: "/small1.mkv", FileSize: 10_000_000, DurationSeconds: ptr(100.0), Width: ptr(640), Height: ptr(480)},
		{FilePath: "/small2.mkv", FileSize: 10_100_000, DurationSeconds: ptr(100.0), Width: ptr(640), Height: ptr(480)},
		{FilePath: "/big1.mkv", FileSize: 5_000_000_000, DurationSeconds: ptr(7200.0), Width: ptr(3840), Height: ptr(2160)},
		{FilePath: "/big2.mkv", FileSize: 5_000_100_000, DurationSeconds: ptr(7200.0), Width: ptr(3840), Height: ptr(2160)},
	}
	d := New(fs)
	groups, err := d.Detect(context.Background(), records, MethodFuzzy)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Greater(t, groupTotalSize(groups[0]), groupTotalSize(groups[1]))
}
