package model

import "time"

// SessionStatus is the lifecycle state of a ScanSession.
type SessionStatus string

const (
	SessionInProgress SessionStatus = "in_progress"
	SessionPaused     SessionStatus = "paused"
	SessionCompleted  SessionStatus = "completed"
	SessionCancelled  SessionStatus = "cancelled"
	SessionFailed     SessionStatus = "failed"
)

// IsTerminal reports whether the session has reached a state it cannot leave.
func (s SessionStatus) IsTerminal() bool {
	switch s {
	case SessionCompleted, SessionCancelled, SessionFailed:
		return true
	default:
		return false
	}
}

// VideoRecord is one catalogued file. See spec §3.
type VideoRecord struct {
	ID                int64
	FilePath          string
	FileName          string
	FileSize          uint64
	DurationSeconds   *float64
	VideoCodec        VideoCodec
	Width             *int
	Height            *int
	FrameRate         *float64
	BitRate           *int64
	BitDepth          *int
	HDRFormat         HDRFormat
	AudioCodec        AudioCodec
	AudioChannels     *int
	IsAtmos           bool
	IsDTSX            bool
	ContainerFormat   Container
	ScanSessionID     *int64
	ScannedAt         time.Time
	FileHash          *string
	IsCorrupted       *bool
	CorruptionDetails *string // JSON-serialized []integrity.CorruptionError
}

// ResolutionCategory returns the resolution band for this record's height, if known.
func (v VideoRecord) ResolutionCategory() (ResolutionBand, bool) {
	if v.Height == nil {
		return "", false
	}
	return ResolutionBandForHeight(*v.Height), true
}

// ScanSession is one invocation of the Scan Engine. See spec §3.
type ScanSession struct {
	ID               int64
	FolderPath       string
	StartedAt        time.Time
	CompletedAt      *time.Time
	TotalFiles       int
	ProcessedFiles   int
	Status           SessionStatus
	LastCheckpointAt *time.Time
	PendingFiles     []string
	ErrorCount       int
}

// Checkpoint is the durable, out-of-database recovery snapshot. See spec §3.
type Checkpoint struct {
	SessionID        int64     `json:"session_id"`
	FolderPath       string    `json:"folder_path"`
	TotalFiles       int       `json:"total_files"`
	ProcessedFiles   int       `json:"processed_files"`
	PendingFilePaths []string  `json:"pending_file_paths"`
	SavedAt          time.Time `json:"saved_at"`
}

// RecoveryInfo is presented to a client on process start when a
// recoverable (not stale) checkpoint is found. See spec §4.3 "Crash recovery".
type RecoveryInfo struct {
	Checkpoint         Checkpoint
	RemainingFileCount int
	FolderPath         string
	ProgressPercentage float64
}
