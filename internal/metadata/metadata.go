// Package metadata is a pure transform from a probe record and filesystem
// stat into a normalized video record ready for the catalog.
package metadata

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"videoanalyzer/internal/model"
	"videoanalyzer/internal/probe"
)

// Metadata is the normalized, derived set of attributes produced from one
// probe record. It mirrors model.VideoRecord's probe-derived fields.
type Metadata struct {
	DurationSeconds *float64
	VideoCodec      model.VideoCodec
	Width           *int
	Height          *int
	FrameRate       *float64
	BitRate         *int64
	BitDepth        *int
	HDRFormat       model.HDRFormat
	AudioCodec      model.AudioCodec
	AudioChannels   *int
	IsAtmos         bool
	IsDTSX          bool
	ContainerFormat model.Container
}

// Parse derives Metadata from a probe record, the absolute file path
// (used only for container extension fallback), and the file size (unused
// directly by this function but accepted to mirror the signature spec
// §4.2 describes — callers combine it into the VideoRecord separately).
func Parse(rec *probe.Record, filePath string, fileSize uint64) Metadata {
	var m Metadata

	m.DurationSeconds = resolveDuration(rec)
	m.ContainerFormat = resolveContainer(rec, filePath)

	videoStream, hasVideo := rec.PrimaryVideoStream()
	if hasVideo {
		m.VideoCodec = model.NormalizeVideoCodec(videoStream.CodecName)
		if videoStream.Width > 0 {
			w := videoStream.Width
			m.Width = &w
		}
		if videoStream.Height > 0 {
			h := videoStream.Height
			m.Height = &h
		}
		m.FrameRate = resolveFrameRate(videoStream)
		m.BitRate = resolveBitRate(videoStream, rec.Format)
		m.BitDepth = resolveBitDepth(videoStream)
		m.HDRFormat = classifyHDR(videoStream)
	} else {
		m.VideoCodec = model.VideoCodecUnknown
		m.HDRFormat = model.HDRFormatSDR
	}

	audioStream, hasAudio := rec.PrimaryAudioStream()
	if hasAudio {
		m.AudioCodec = model.NormalizeAudioCodec(audioStream.CodecName)
		m.AudioChannels = resolveChannels(audioStream)
		m.IsAtmos = detectAtmos(audioStream, m.AudioCodec)
		m.IsDTSX = detectDTSX(audioStream, m.AudioCodec)
	} else {
		m.AudioCodec = model.AudioCodecUnknown
	}

	return m
}

func resolveDuration(rec *probe.Record) *float64 {
	if v, ok := parseFloat(rec.Format.Duration); ok {
		return &v
	}
	return nil
}

// resolveContainer matches the format name against known substrings, then
// falls back to the file extension, then to a mimetype sniff of the file
// itself as a last resort (spec §10 DOMAIN STACK: mimetype is wired here
// for container formats ffprobe's format_name can't identify, e.g. a
// renamed/extensionless file).
func resolveContainer(rec *probe.Record, filePath string) model.Container {
	if c, ok := model.ContainerFromFormatName(rec.Format.FormatName); ok {
		return c
	}
	if c, ok := model.ContainerFromExtension(filepath.Ext(filePath)); ok {
		return c
	}
	if mt, err := mimetype.DetectFile(filePath); err == nil {
		if c, ok := model.ContainerFromFormatName(mt.String()); ok {
			return c
		}
	}
	return model.ContainerUnknown
}

// resolveBitRate prefers the video stream's reported bitrate, else the
// container's, else unknown.
func resolveBitRate(stream probe.Stream, format probe.Format) *int64 {
	if v, ok := parseInt64(stream.BitRate); ok {
		return &v
	}
	if v, ok := parseInt64(format.BitRate); ok {
		return &v
	}
	return nil
}

// resolveFrameRate prefers avg_frame_rate, else r_frame_rate. Both come as
// "numerator/denominator"; a plain float is accepted as a fallback parse.
func resolveFrameRate(stream probe.Stream) *float64 {
	for _, raw := range []string{stream.AvgFrameRate, stream.RFrameRate} {
		if v, ok := parseRational(raw); ok {
			return &v
		}
	}
	return nil
}

func parseRational(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "0/0" {
		return 0, false
	}
	if num, den, ok := strings.Cut(raw, "/"); ok {
		n, errN := strconv.ParseFloat(num, 64)
		d, errD := strconv.ParseFloat(den, 64)
		if errN == nil && errD == nil && d > 0 {
			return n / d, true
		}
		return 0, false
	}
	if v, err := strconv.ParseFloat(raw, 64); err == nil {
		return v, true
	}
	return 0, false
}

// resolveBitDepth prefers the explicit bits-per-raw-sample field, then
// infers from a pixel-format substring.
func resolveBitDepth(stream probe.Stream) *int {
	if v, ok := parseInt(stream.BitsPerRawSample); ok && v > 0 {
		return &v
	}
	pix := strings.ToLower(stream.PixFmt)
	switch {
	case strings.Contains(pix, "10le"), strings.Contains(pix, "10be"), strings.Contains(pix, "p010"):
		v := 10
		return &v
	case strings.Contains(pix, "12le"), strings.Contains(pix, "12be"):
		v := 12
		return &v
	}
	return nil
}

// classifyHDR implements spec §4.2's priority-ordered HDR classification:
// Dolby Vision (optionally layered with HDR10) > HDR10+ > HLG > HDR10 > SDR.
// Bit depth alone is never sufficient evidence; 10-bit SDR content exists.
func classifyHDR(stream probe.Stream) model.HDRFormat {
	sideTypes := make([]string, 0, len(stream.SideDataList))
	for _, sd := range stream.SideDataList {
		sideTypes = append(sideTypes, strings.ToLower(sd.SideDataType))
	}
	hasSideData := func(substrs ...string) bool {
		for _, t := range sideTypes {
			for _, s := range substrs {
				if strings.Contains(t, s) {
					return true
				}
			}
		}
		return false
	}

	transfer := strings.ToLower(stream.ColorTransfer)
	primaries := strings.ToLower(stream.ColorPrimaries)
	isPQ := strings.Contains(transfer, "smpte2084") || strings.Contains(transfer, "pq")
	isBT2020 := strings.Contains(primaries, "bt2020") || strings.Contains(primaries, "2020")

	if hasSideData("dolby vision", "dovi") {
		if isPQ {
			return model.HDRFormatDolbyVisionHDR10
		}
		return model.HDRFormatDolbyVision
	}
	if hasSideData("hdr10+", "hdr dynamic metadata") {
		return model.HDRFormatHDR10Plus
	}
	if strings.Contains(transfer, "arib-std-b67") || strings.Contains(transfer, "hlg") {
		return model.HDRFormatHLG
	}
	if isPQ && isBT2020 {
		return model.HDRFormatHDR10
	}
	return model.HDRFormatSDR
}

// resolveChannels prefers the probe's reported channel count, else infers
// from a channel_layout substring.
func resolveChannels(stream probe.Stream) *int {
	if stream.Channels > 0 {
		v := stream.Channels
		return &v
	}
	layout := strings.ToLower(stream.ChannelLayout)
	var v int
	switch {
	case strings.Contains(layout, "7.1"), strings.Contains(layout, "octagonal"):
		v = 8
	case strings.Contains(layout, "5.1"), strings.Contains(layout, "hexagonal"):
		v = 6
	case strings.Contains(layout, "stereo"):
		v = 2
	case strings.Contains(layout, "mono"):
		v = 1
	case strings.Contains(layout, "quad"):
		v = 4
	default:
		v = 2
	}
	return &v
}

// detectAtmos applies only when the normalized audio codec is truehd or
// eac3, per spec §4.2's invariant "is_atmos implies audio_codec ∈
// {truehd, eac3}".
func detectAtmos(stream probe.Stream, codec model.AudioCodec) bool {
	if codec != model.AudioCodecTrueHD && codec != model.AudioCodecEAC3 {
		return false
	}
	title := strings.ToLower(stream.Tags["title"])
	profile := strings.ToLower(stream.Profile)
	longName := strings.ToLower(stream.CodecLongName)

	if strings.Contains(profile, "atmos") || strings.Contains(longName, "atmos") || strings.Contains(title, "atmos") {
		return true
	}
	for _, sd := range stream.SideDataList {
		t := strings.ToLower(sd.SideDataType)
		if strings.Contains(t, "atmos") || strings.Contains(t, "dolby") {
			return true
		}
	}
	// Heuristic fallback: a TrueHD bed with 8+ channels is treated as
	// Atmos even when the explicit flag is absent from the metadata.
	if codec == model.AudioCodecTrueHD && stream.Channels >= 8 {
		return true
	}
	return false
}

// detectDTSX applies only when the normalized audio codec is dts or
// dts-hd. No heuristic fallback: explicit metadata evidence is required.
func detectDTSX(stream probe.Stream, codec model.AudioCodec) bool {
	if codec != model.AudioCodecDTS && codec != model.AudioCodecDTSHD {
		return false
	}
	title := strings.ToLower(stream.Tags["title"])
	profile := strings.ToLower(stream.Profile)
	longName := strings.ToLower(stream.CodecLongName)

	markers := []string{"dts:x", "dts-x", "dtsx"}
	for _, s := range []string{profile, longName, title} {
		for _, marker := range markers {
			if strings.Contains(s, marker) {
				return true
			}
		}
	}
	if strings.Contains(profile, "dts-hd ma") && strings.Contains(profile, "x") {
		return true
	}
	return false
}

func parseFloat(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	return v, err == nil
}

func parseInt64(raw string) (int64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	return v, err == nil
}

func parseInt(raw string) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	return v, err == nil
}
