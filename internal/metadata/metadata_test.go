package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"videoanalyzer/internal/model"
	"videoanalyzer/internal/probe"
)

func TestParse_VideoStreamSelection_IgnoresCoverArt(t *testing.T) {
	rec := &probe.Record{
		Streams: []probe.Stream{
			{CodecType: "video", CodecName: "hevc", Width: 1920, Height: 1080},
			{CodecType: "video", CodecName: "mjpeg", Width: 300, Height: 300}, // cover art
		},
	}
	m := Parse(rec, "/x/movie.mkv", 1000)
	assert.Equal(t, model.VideoCodecHEVC, m.VideoCodec)
	require.NotNil(t, m.Width)
	assert.Equal(t, 1920, *m.Width)
}

func TestParse_BitRate_StreamPreferredOverContainer(t *testing.T) {
	rec := &probe.Record{
		Format:  probe.Format{BitRate: "5000000"},
		Streams: []probe.Stream{{CodecType: "video", CodecName: "h264", BitRate: "8000000"}},
	}
	m := Parse(rec, "/x/a.mp4", 1000)
	require.NotNil(t, m.BitRate)
	assert.EqualValues(t, 8000000, *m.BitRate)
}

func TestParse_BitRate_ContainerFallback(t *testing.T) {
	rec := &probe.Record{
		Format:  probe.Format{BitRate: "5000000"},
		Streams: []probe.Stream{{CodecType: "video", CodecName: "h264"}},
	}
	m := Parse(rec, "/x/a.mp4", 1000)
	require.NotNil(t, m.BitRate)
	assert.EqualValues(t, 5000000, *m.BitRate)
}

func TestParse_FrameRate(t *testing.T) {
	cases := []struct {
		name     string
		avg      string
		r        string
		expected float64
		ok       bool
	}{
		{"avg rational", "24000/1001", "", 24000.0 / 1001.0, true},
		{"falls back to r_frame_rate", "0/0", "30/1", 30, true},
		{"plain float", "23.976", "", 23.976, true},
		{"unparseable", "", "", 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := &probe.Record{Streams: []probe.Stream{{CodecType: "video", CodecName: "h264", AvgFrameRate: tc.avg, RFrameRate: tc.r}}}
			m := Parse(rec, "/x/a.mp4", 1000)
			if !tc.ok {
				assert.Nil(t, m.FrameRate)
				return
			}
			require.NotNil(t, m.FrameRate)
			assert.InDelta(t, tc.expected, *m.FrameRate, 0.001)
		})
	}
}

func TestParse_BitDepth(t *testing.T) {
	cases := []struct {
		name     string
		raw      string
		pixFmt   string
		expected *int
	}{
		{"explicit", "10", "", intp(10)},
		{"infer 10le", "", "yuv420p10le", intp(10)},
		{"infer p010", "", "p010le", intp(10)},
		{"infer 12be", "", "yuv420p12be", intp(12)},
		{"unknown", "", "yuv420p", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := &probe.Record{Streams: []probe.Stream{{CodecType: "video", CodecName: "hevc", BitsPerRawSample: tc.raw, PixFmt: tc.pixFmt}}}
			m := Parse(rec, "/x/a.mkv", 1000)
			if tc.expected == nil {
				assert.Nil(t, m.BitDepth)
				return
			}
			require.NotNil(t, m.BitDepth)
			assert.Equal(t, *tc.expected, *m.BitDepth)
		})
	}
}

func TestParse_ContainerResolution(t *testing.T) {
	t.Run("format name substring match", func(t *testing.T) {
		rec := &probe.Record{Format: probe.Format{FormatName: "matroska,webm"}}
		m := Parse(rec, "/x/a.mkv", 1000)
		assert.Equal(t, model.ContainerMKV, m.ContainerFormat)
	})
	t.Run("falls back to extension when format name unrecognized", func(t *testing.T) {
		rec := &probe.Record{Format: probe.Format{FormatName: "zzz_unknown"}}
		m := Parse(rec, "/x/a.avi", 1000)
		assert.Equal(t, model.ContainerAVI, m.ContainerFormat)
	})
}

func TestClassifyHDR(t *testing.T) {
	cases := []struct {
		name      string
		stream    probe.Stream
		expected  model.HDRFormat
	}{
		{
			name:     "dolby vision only",
			stream:   probe.Stream{SideDataList: []probe.SideData{{SideDataType: "DOVI configuration record"}}},
			expected: model.HDRFormatDolbyVision,
		},
		{
			name: "dolby vision + hdr10 dual layer",
			stream: probe.Stream{
				SideDataList:  []probe.SideData{{SideDataType: "Dolby Vision Metadata"}},
				ColorTransfer: "smpte2084",
			},
			expected: model.HDRFormatDolbyVisionHDR10,
		},
		{
			name:     "hdr10plus",
			stream:   probe.Stream{SideDataList: []probe.SideData{{SideDataType: "HDR Dynamic Metadata SMPTE2094-40 (HDR10+)"}}},
			expected: model.HDRFormatHDR10Plus,
		},
		{
			name:     "hlg",
			stream:   probe.Stream{ColorTransfer: "arib-std-b67"},
			expected: model.HDRFormatHLG,
		},
		{
			name:     "hdr10",
			stream:   probe.Stream{ColorTransfer: "smpte2084", ColorPrimaries: "bt2020"},
			expected: model.HDRFormatHDR10,
		},
		{
			name:     "10-bit alone is not HDR",
			stream:   probe.Stream{PixFmt: "yuv420p10le", BitsPerRawSample: "10"},
			expected: model.HDRFormatSDR,
		},
		{
			name:     "sdr",
			stream:   probe.Stream{ColorTransfer: "bt709"},
			expected: model.HDRFormatSDR,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.stream.CodecType = "video"
			tc.stream.CodecName = "hevc"
			rec := &probe.Record{Streams: []probe.Stream{tc.stream}}
			m := Parse(rec, "/x/a.mkv", 1000)
			assert.Equal(t, tc.expected, m.HDRFormat)
		})
	}
}

func TestDetectAtmos(t *testing.T) {
	cases := []struct {
		name     string
		codec    string
		stream   probe.Stream
		expected bool
	}{
		{"wrong codec never atmos", "aac", probe.Stream{Profile: "atmos"}, false},
		{"profile marker", "truehd", probe.Stream{Profile: "Dolby TrueHD+Atmos"}, true},
		{"title marker", "eac3", probe.Stream{Tags: map[string]string{"title": "English Atmos"}}, true},
		{"side data marker", "eac3", probe.Stream{SideDataList: []probe.SideData{{SideDataType: "Dolby"}}}, true},
		{"heuristic truehd 8ch", "truehd", probe.Stream{Channels: 8}, true},
		{"truehd 6ch no marker", "truehd", probe.Stream{Channels: 6}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.stream.CodecType = "audio"
			tc.stream.CodecName = tc.codec
			rec := &probe.Record{Streams: []probe.Stream{{CodecType: "video", CodecName: "h264"}, tc.stream}}
			m := Parse(rec, "/x/a.mkv", 1000)
			assert.Equal(t, tc.expected, m.IsAtmos)
		})
	}
}

func TestDetectDTSX_NoHeuristicFallback(t *testing.T) {
	cases := []struct {
		name     string
		codec    string
		stream   probe.Stream
		expected bool
	}{
		{"wrong codec never dtsx", "aac", probe.Stream{Profile: "dts:x"}, false},
		{"profile marker", "dts", probe.Stream{Profile: "DTS:X"}, true},
		{"dts-hd ma with x marker", "dts-hd", probe.Stream{Profile: "DTS-HD MA + X"}, true},
		{"plain dts-hd ma is not dtsx", "dts-hd", probe.Stream{Profile: "DTS-HD MA"}, false},
		{"8 channels alone is not enough", "dts", probe.Stream{Channels: 8}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.stream.CodecType = "audio"
			tc.stream.CodecName = tc.codec
			rec := &probe.Record{Streams: []probe.Stream{{CodecType: "video", CodecName: "h264"}, tc.stream}}
			m := Parse(rec, "/x/a.mkv", 1000)
			assert.Equal(t, tc.expected, m.IsDTSX)
		})
	}
}

func TestResolveChannels_LayoutInference(t *testing.T) {
	cases := []struct {
		layout   string
		expected int
	}{
		{"7.1", 8}, {"5.1(side)", 6}, {"stereo", 2}, {"mono", 1}, {"4.0(quad)", 4}, {"", 2},
	}
	for _, tc := range cases {
		t.Run(tc.layout, func(t *testing.T) {
			rec := &probe.Record{Streams: []probe.Stream{
				{CodecType: "video", CodecName: "h264"},
				{CodecType: "audio", CodecName: "aac", ChannelLayout: tc.layout},
			}}
			m := Parse(rec, "/x/a.mkv", 1000)
			require.NotNil(t, m.AudioChannels)
			assert.Equal(t, tc.expected, *m.AudioChannels)
		})
	}
}

func intp(v int) *int { return &v }
