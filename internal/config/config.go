// Package config loads and resolves runtime configuration for the video
// analyzer: binary paths, scan tuning, and logging.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// appDirName is the subdirectory created under the per-user application
// data directory, matching spec §6's persistent state layout.
const appDirName = "VideoAnalyzer"

// FileConfig is the on-disk YAML configuration shape.
type FileConfig struct {
	DataDir    string     `yaml:"dataDir,omitempty"`
	LogLevel   string     `yaml:"logLevel,omitempty"`
	LogFile    string     `yaml:"logFile,omitempty"`
	FFprobeBin string     `yaml:"ffprobeBin,omitempty"`
	FFmpegBin  string     `yaml:"ffmpegBin,omitempty"`
	Scan       ScanConfig `yaml:"scan,omitempty"`
}

// ScanConfig tunes the Scan Engine's pipeline. Defaults match spec §4.3.
type ScanConfig struct {
	MaxConcurrency     int           `yaml:"maxConcurrency,omitempty"`
	BatchSize          int           `yaml:"batchSize,omitempty"`
	CheckpointInterval time.Duration `yaml:"checkpointInterval,omitempty"`
	MaxRetries         int           `yaml:"maxRetries,omitempty"`
	ProbeTimeout       time.Duration `yaml:"probeTimeout,omitempty"`
	StaleCheckpointAge time.Duration `yaml:"staleCheckpointAge,omitempty"`
}

// Config is the fully resolved, defaulted configuration.
type Config struct {
	DataDir    string
	LogLevel   string
	LogFile    string
	FFprobeBin string
	FFmpegBin  string
	Scan       ScanConfig
}

func defaultScanConfig() ScanConfig {
	return ScanConfig{
		MaxConcurrency:     12,
		BatchSize:          50,
		CheckpointInterval: 10 * time.Second,
		MaxRetries:         3,
		ProbeTimeout:       15 * time.Second,
		StaleCheckpointAge: 24 * time.Hour,
	}
}

// Load reads the YAML file at path (if it exists), applies environment
// variable overrides, fills in defaults, and returns a resolved Config.
// A missing file is not an error: defaults are used and, if path is
// non-empty, a default file is written so the next run has something to
// edit (mirrors the teacher's "creates defaults if missing" behavior).
func Load(path string) (*Config, error) {
	fc := FileConfig{Scan: defaultScanConfig()}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &fc); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		case os.IsNotExist(err):
			if err := writeDefault(path, fc); err != nil {
				return nil, fmt.Errorf("config: write default %s: %w", path, err)
			}
		default:
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	applyEnvOverrides(&fc)

	cfg := &Config{
		DataDir:    fc.DataDir,
		LogLevel:   fc.LogLevel,
		LogFile:    fc.LogFile,
		FFprobeBin: fc.FFprobeBin,
		FFmpegBin:  fc.FFmpegBin,
		Scan:       mergeScanDefaults(fc.Scan),
	}

	if cfg.DataDir == "" {
		dir, err := DefaultDataDir()
		if err != nil {
			return nil, fmt.Errorf("config: resolve data dir: %w", err)
		}
		cfg.DataDir = dir
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	return cfg, nil
}

func mergeScanDefaults(sc ScanConfig) ScanConfig {
	def := defaultScanConfig()
	if sc.MaxConcurrency <= 0 {
		sc.MaxConcurrency = def.MaxConcurrency
	}
	if sc.BatchSize <= 0 {
		sc.BatchSize = def.BatchSize
	}
	if sc.CheckpointInterval <= 0 {
		sc.CheckpointInterval = def.CheckpointInterval
	}
	if sc.MaxRetries <= 0 {
		sc.MaxRetries = def.MaxRetries
	}
	if sc.ProbeTimeout <= 0 {
		sc.ProbeTimeout = def.ProbeTimeout
	}
	if sc.StaleCheckpointAge <= 0 {
		sc.StaleCheckpointAge = def.StaleCheckpointAge
	}
	return sc
}

func writeDefault(path string, fc FileConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(fc)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// DefaultDataDir returns the per-user application data directory for this
// program: <UserConfigDir>/VideoAnalyzer. A dedicated xdg-directories
// library is not used here; os.UserConfigDir is the standard-library
// equivalent and the only thing this call needs is cross-platform
// per-user path resolution, with no additional behavior a third-party
// package would add. See DESIGN.md.
func DefaultDataDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, appDirName), nil
}

// DatabasePath returns the catalog database file path under dataDir.
func DatabasePath(dataDir string) string {
	return filepath.Join(dataDir, "video_analyzer.sqlite")
}

// CheckpointPath returns the checkpoint file path under dataDir.
func CheckpointPath(dataDir string) string {
	return filepath.Join(dataDir, "scan_checkpoint.json")
}

func applyEnvOverrides(fc *FileConfig) {
	if v := os.Getenv("VIDEOANALYZER_DATA_DIR"); v != "" {
		fc.DataDir = v
	}
	if v := os.Getenv("VIDEOANALYZER_LOG_LEVEL"); v != "" {
		fc.LogLevel = v
	}
	if v := os.Getenv("VIDEOANALYZER_LOG_FILE"); v != "" {
		fc.LogFile = v
	}
	if v := os.Getenv("VIDEOANALYZER_FFPROBE_BIN"); v != "" {
		fc.FFprobeBin = v
	}
	if v := os.Getenv("VIDEOANALYZER_FFMPEG_BIN"); v != "" {
		fc.FFmpegBin = v
	}
	if v := os.Getenv("VIDEOANALYZER_MAX_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			fc.Scan.MaxConcurrency = n
		}
	}
	if v := os.Getenv("VIDEOANALYZER_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			fc.Scan.BatchSize = n
		}
	}
}

// ResolveFFprobeBin determines the effective ffprobe binary path.
//
// Resolution order:
//  1. Explicit ffprobeBin from config/env.
//  2. Derived from a concrete ffmpegBin path (".../ffmpeg" -> ".../ffprobe")
//     if the derived binary exists on disk.
//  3. Empty string — caller falls back to PATH resolution ("ffprobe").
func ResolveFFprobeBin(ffprobeBin, ffmpegBin string) string {
	return resolveFFprobeBinWithStat(ffprobeBin, ffmpegBin, os.Stat)
}

func resolveFFprobeBinWithStat(ffprobeBin, ffmpegBin string, stat func(string) (os.FileInfo, error)) string {
	ffprobeBin = strings.TrimSpace(ffprobeBin)
	if ffprobeBin != "" {
		return ffprobeBin
	}

	ffmpegBin = strings.TrimSpace(ffmpegBin)
	if ffmpegBin == "" || !strings.ContainsRune(ffmpegBin, '/') {
		return ""
	}
	if filepath.Base(ffmpegBin) != "ffmpeg" {
		return ""
	}

	candidate := filepath.Join(filepath.Dir(ffmpegBin), "ffprobe")
	if fi, err := stat(candidate); err == nil && fi != nil && !fi.IsDir() {
		return candidate
	}
	return ""
}
