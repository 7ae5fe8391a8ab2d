// Package model holds the data types shared by the catalog, scan, probe,
// metadata, duplicate, and integrity packages.
package model

import "strings"

// VideoCodec is the normalized video codec vocabulary persisted in the catalog.
type VideoCodec string

const (
	VideoCodecH264    VideoCodec = "h264"
	VideoCodecHEVC    VideoCodec = "hevc"
	VideoCodecVP9     VideoCodec = "vp9"
	VideoCodecAV1     VideoCodec = "av1"
	VideoCodecProRes  VideoCodec = "prores"
	VideoCodecDNxHD   VideoCodec = "dnxhd"
	VideoCodecMPEG2   VideoCodec = "mpeg2video"
	VideoCodecMPEG4   VideoCodec = "mpeg4"
	VideoCodecVP8     VideoCodec = "vp8"
	VideoCodecWMV3    VideoCodec = "wmv3"
	VideoCodecVC1     VideoCodec = "vc1"
	VideoCodecMJPEG   VideoCodec = "mjpeg"
	VideoCodecUnknown VideoCodec = "unknown"
)

// videoCodecAliases maps raw ffprobe codec_name values to the normalized vocabulary.
var videoCodecAliases = map[string]VideoCodec{
	"avc":        VideoCodecH264,
	"h264":       VideoCodecH264,
	"h265":       VideoCodecHEVC,
	"hevc":       VideoCodecHEVC,
	"vp9":        VideoCodecVP9,
	"vp08":       VideoCodecVP8,
	"vp8":        VideoCodecVP8,
	"av01":       VideoCodecAV1,
	"av1":        VideoCodecAV1,
	"prores":     VideoCodecProRes,
	"dnxhd":      VideoCodecDNxHD,
	"mpeg2video": VideoCodecMPEG2,
	"mpeg2":      VideoCodecMPEG2,
	"mpeg4":      VideoCodecMPEG4,
	"mp4v":       VideoCodecMPEG4,
	"wmv3":       VideoCodecWMV3,
	"vc-1":       VideoCodecVC1,
	"vc1":        VideoCodecVC1,
	"mjpg":       VideoCodecMJPEG,
	"mjpeg":      VideoCodecMJPEG,
}

// NormalizeVideoCodec maps a raw probe codec name to the canonical vocabulary.
func NormalizeVideoCodec(raw string) VideoCodec {
	key := strings.ToLower(strings.TrimSpace(raw))
	if key == "" {
		return VideoCodecUnknown
	}
	if c, ok := videoCodecAliases[key]; ok {
		return c
	}
	return VideoCodecUnknown
}

// AudioCodec is the normalized audio codec vocabulary.
type AudioCodec string

const (
	AudioCodecAAC     AudioCodec = "aac"
	AudioCodecAC3     AudioCodec = "ac3"
	AudioCodecEAC3    AudioCodec = "eac3"
	AudioCodecTrueHD  AudioCodec = "truehd"
	AudioCodecDTS     AudioCodec = "dts"
	AudioCodecDTSHD   AudioCodec = "dts-hd"
	AudioCodecFLAC    AudioCodec = "flac"
	AudioCodecOpus    AudioCodec = "opus"
	AudioCodecVorbis  AudioCodec = "vorbis"
	AudioCodecMP3     AudioCodec = "mp3"
	AudioCodecPCM     AudioCodec = "pcm"
	AudioCodecALAC    AudioCodec = "alac"
	AudioCodecWMA     AudioCodec = "wma"
	AudioCodecUnknown AudioCodec = "unknown"
)

var audioCodecAliases = map[string]AudioCodec{
	"aac":       AudioCodecAAC,
	"ac3":       AudioCodecAC3,
	"eac3":      AudioCodecEAC3,
	"e-ac-3":    AudioCodecEAC3,
	"truehd":    AudioCodecTrueHD,
	"dts":       AudioCodecDTS,
	"dtshd":     AudioCodecDTSHD,
	"dts-hd":    AudioCodecDTSHD,
	"dts_hd":    AudioCodecDTSHD,
	"flac":      AudioCodecFLAC,
	"opus":      AudioCodecOpus,
	"vorbis":    AudioCodecVorbis,
	"mp3":       AudioCodecMP3,
	"pcm_s16le": AudioCodecPCM,
	"pcm_s24le": AudioCodecPCM,
	"pcm":       AudioCodecPCM,
	"alac":      AudioCodecALAC,
	"wmav2":     AudioCodecWMA,
	"wma":       AudioCodecWMA,
}

// NormalizeAudioCodec maps a raw probe codec name to the canonical vocabulary.
func NormalizeAudioCodec(raw string) AudioCodec {
	key := strings.ToLower(strings.TrimSpace(raw))
	if key == "" {
		return AudioCodecUnknown
	}
	if strings.HasPrefix(key, "pcm") {
		return AudioCodecPCM
	}
	if c, ok := audioCodecAliases[key]; ok {
		return c
	}
	return AudioCodecUnknown
}

// HDRFormat is the derived HDR classification vocabulary.
type HDRFormat string

const (
	HDRFormatSDR              HDRFormat = "sdr"
	HDRFormatHDR10            HDRFormat = "hdr10"
	HDRFormatHDR10Plus        HDRFormat = "hdr10plus"
	HDRFormatDolbyVision      HDRFormat = "dolby_vision"
	HDRFormatHLG              HDRFormat = "hlg"
	HDRFormatDolbyVisionHDR10 HDRFormat = "dolby_vision_hdr10"
)

// Container is the normalized container vocabulary.
type Container string

const (
	ContainerMKV     Container = "mkv"
	ContainerMP4     Container = "mp4"
	ContainerMOV     Container = "mov"
	ContainerAVI     Container = "avi"
	ContainerWMV     Container = "wmv"
	ContainerWebM    Container = "webm"
	ContainerFLV     Container = "flv"
	ContainerM4V     Container = "m4v"
	ContainerTS      Container = "ts"
	ContainerMTS     Container = "mts"
	ContainerM2TS    Container = "m2ts"
	ContainerVOB     Container = "vob"
	ContainerMPG     Container = "mpg"
	ContainerUnknown Container = "unknown"
)

// containerSubstrings maps a substring found in ffprobe's format_name to a container.
// Order matters: checked in the order below, first match wins.
var containerSubstrings = []struct {
	substr string
	c      Container
}{
	{"matroska", ContainerMKV},
	{"webm", ContainerWebM},
	{"mp4", ContainerMP4},
	{"quicktime", ContainerMOV},
	{"mov", ContainerMOV},
	{"avi", ContainerAVI},
	{"asf", ContainerWMV},
	{"flv", ContainerFLV},
	{"mpegts", ContainerTS},
	{"mpeg", ContainerMPG},
}

// ContainerFromFormatName resolves a container from ffprobe's format_name field.
func ContainerFromFormatName(formatName string) (Container, bool) {
	lower := strings.ToLower(formatName)
	for _, e := range containerSubstrings {
		if strings.Contains(lower, e.substr) {
			return e.c, true
		}
	}
	return "", false
}

var extensionContainers = map[string]Container{
	".mkv":  ContainerMKV,
	".mp4":  ContainerMP4,
	".mov":  ContainerMOV,
	".avi":  ContainerAVI,
	".wmv":  ContainerWMV,
	".webm": ContainerWebM,
	".flv":  ContainerFLV,
	".m4v":  ContainerM4V,
	".ts":   ContainerTS,
	".mts":  ContainerMTS,
	".m2ts": ContainerM2TS,
	".vob":  ContainerVOB,
	".mpg":  ContainerMPG,
	".mpeg": ContainerMPG,
}

// ContainerFromExtension resolves a container from a file extension (including the leading dot).
func ContainerFromExtension(ext string) (Container, bool) {
	c, ok := extensionContainers[strings.ToLower(ext)]
	return c, ok
}

// SupportedExtensions is the discovery allowlist (case-insensitive, without the leading dot).
var SupportedExtensions = map[string]bool{
	"mkv": true, "mp4": true, "mov": true, "avi": true, "wmv": true,
	"webm": true, "flv": true, "m4v": true, "ts": true, "mts": true,
	"m2ts": true, "vob": true, "mpg": true, "mpeg": true, "m2v": true,
	"3gp": true, "ogv": true, "divx": true, "rm": true, "rmvb": true,
	"asf": true,
}

// ResolutionBand is a coarse bucket of image height used for filtering and aggregation.
type ResolutionBand string

const (
	ResolutionBand8K    ResolutionBand = "8K"
	ResolutionBand4K    ResolutionBand = "4K"
	ResolutionBand1440p ResolutionBand = "1440p"
	ResolutionBand1080p ResolutionBand = "1080p"
	ResolutionBand720p  ResolutionBand = "720p"
	ResolutionBand480p  ResolutionBand = "480p"
	ResolutionBand360p  ResolutionBand = "360p"
	ResolutionBandSD    ResolutionBand = "SD"
)

var resolutionBandsDesc = []struct {
	band ResolutionBand
	min  int
}{
	{ResolutionBand8K, 4320},
	{ResolutionBand4K, 2160},
	{ResolutionBand1440p, 1440},
	{ResolutionBand1080p, 1080},
	{ResolutionBand720p, 720},
	{ResolutionBand480p, 480},
	{ResolutionBand360p, 360},
	{ResolutionBandSD, 0},
}

// ResolutionBandForHeight is a total function of height: every non-negative
// height maps to exactly one band (inclusive lower bound, exclusive upper).
func ResolutionBandForHeight(height int) ResolutionBand {
	for _, b := range resolutionBandsDesc {
		if height >= b.min {
			return b.band
		}
	}
	return ResolutionBandSD
}

// AllResolutionBands lists every band, highest resolution first.
func AllResolutionBands() []ResolutionBand {
	bands := make([]ResolutionBand, len(resolutionBandsDesc))
	for i, b := range resolutionBandsDesc {
		bands[i] = b.band
	}
	return bands
}
