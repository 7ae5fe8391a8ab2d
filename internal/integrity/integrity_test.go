package integrity

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFakeDecoder(t *testing.T, dir, stderr string, exitCode int) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake-binary tests assume a POSIX shell")
	}
	path := filepath.Join(dir, "ffmpeg")
	body := "#!/bin/sh\n"
	if stderr != "" {
		body += "cat >&2 <<'EOF'\n" + stderr + "\nEOF\n"
	}
	body += "exit " + strconv.Itoa(exitCode) + "\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
	return path
}

func TestClassifyLine_FirstMatchWins(t *testing.T) {
	assert.Equal(t, InvalidData, classifyLine("Invalid data found when processing input"))
	assert.Equal(t, MissingData, classifyLine("moov atom not found"))
	assert.Equal(t, Truncated, classifyLine("Truncated file?"))
	assert.Equal(t, SyncError, classifyLine("timestamp discontinuity detected, dropping frame"))
	assert.Equal(t, DecodeError, classifyLine("error while decoding macroblock"))
	assert.Equal(t, HeaderError, classifyLine("header parsing failed unexpectedly"))
	assert.Equal(t, Unknown, classifyLine("something unexpected happened"))
}

func TestExtractTimestamp(t *testing.T) {
	assert.Equal(t, "12.500000", extractTimestamp("Error, timestamp=12.500000 out of range"))
	assert.Equal(t, "3.2", extractTimestamp("pts_time=3.2 discontinuity"))
	assert.Equal(t, "", extractTimestamp("no numbers here at all"))
}

func TestClassifyStderr_BoundsToWindow(t *testing.T) {
	stderr := "invalid data line one\nheader corrupt line two\ntruncated line three\n"
	errs := classifyStderr(stderr, 2)
	require.Len(t, errs, 2)
	assert.Equal(t, "header corrupt line two", errs[0].Line)
	assert.Equal(t, "truncated line three", errs[1].Line)
}

func TestChecker_Check_CleanFileReportsNotCorrupted(t *testing.T) {
	bin := writeFakeDecoder(t, t.TempDir(), "", 0)
	c, err := NewChecker(bin)
	require.NoError(t, err)

	results, err := c.Check(context.Background(), []string{"/movies/a.mkv"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Corrupted)
	assert.Empty(t, results[0].Errors)
}

func TestChecker_Check_StderrMarksCorrupted(t *testing.T) {
	bin := writeFakeDecoder(t, t.TempDir(), "Invalid data found when processing input", 1)
	c, err := NewChecker(bin)
	require.NoError(t, err)

	results, err := c.Check(context.Background(), []string{"/movies/bad.mkv"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Corrupted)
	require.Len(t, results[0].Errors, 1)
	assert.Equal(t, InvalidData, results[0].Errors[0].Type)
}

func TestChecker_Check_WithMaxConcurrencyReturnsEveryResult(t *testing.T) {
	bin := writeFakeDecoder(t, t.TempDir(), "", 0)
	c, err := NewChecker(bin, WithMaxConcurrency(2))
	require.NoError(t, err)

	paths := make([]string, 10)
	for i := range paths {
		paths[i] = filepath.Join("/movies", strconv.Itoa(i)+".mkv")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	results, err := c.Check(ctx, paths)
	require.NoError(t, err)
	assert.Len(t, results, 10)
}

func TestMarshalUnmarshalDetails_RoundTrip(t *testing.T) {
	errs := []CorruptionError{{Type: InvalidData, Line: "bad frame", Timestamp: "1.5"}}
	s, err := MarshalDetails(errs)
	require.NoError(t, err)
	require.NotNil(t, s)

	back, err := UnmarshalDetails(s)
	require.NoError(t, err)
	assert.Equal(t, errs, back)
}

func TestMarshalDetails_EmptyYieldsNil(t *testing.T) {
	s, err := MarshalDetails(nil)
	require.NoError(t, err)
	assert.Nil(t, s)
}
