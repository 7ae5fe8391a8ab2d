// Package scan implements the Scan Engine: discovery → probe → parse →
// batched persist, with pause/resume/cancel and durable checkpointing.
package scan

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	retry "github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/afero"
	"golang.org/x/time/rate"

	"videoanalyzer/internal/catalog"
	"videoanalyzer/internal/checkpoint"
	"videoanalyzer/internal/metadata"
	"videoanalyzer/internal/model"
	"videoanalyzer/internal/probe"
	"videoanalyzer/internal/telemetry"
)

var (
	filesProcessedTotal = telemetry.Default.Counter("scan_files_processed_total", "result")
	sessionsTotal       = telemetry.Default.Counter("scan_sessions_total", "outcome")
	scanDuration        = telemetry.Default.Histogram("scan_duration_seconds")
)

// State is the Scan Engine's lifecycle state. See spec §4.3.
type State string

const (
	StateIdle      State = "idle"
	StateScanning  State = "scanning"
	StatePaused    State = "paused"
	StateCancelled State = "cancelled"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Config tunes the engine's concurrency, batching, and checkpointing.
type Config struct {
	MaxConcurrency     int
	BatchSize          int
	CheckpointInterval time.Duration
	ProgressThrottle   time.Duration
	RetryAttempts      uint
	RetryBaseDelay     time.Duration
	RetryMaxDelay      time.Duration
	StaleCheckpointAge time.Duration
	LogBufferSize      int
}

// DefaultConfig matches spec §4.3's stated defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency:     12,
		BatchSize:          50,
		CheckpointInterval: 10 * time.Second,
		ProgressThrottle:   100 * time.Millisecond,
		RetryAttempts:      3,
		RetryBaseDelay:     500 * time.Millisecond,
		RetryMaxDelay:      2 * time.Second,
		StaleCheckpointAge: 24 * time.Hour,
		LogBufferSize:      200,
	}
}

type cmdKind int

const (
	cmdPause cmdKind = iota
	cmdResume
	cmdCancel
)

type command struct {
	kind  cmdKind
	reply chan error
}

type fileResult struct {
	path   string
	record model.VideoRecord
	err    error
}

// Engine orchestrates one scan session at a time. It is the single
// serialization domain for pending list, counters, batch buffer, and
// session state — see spec §5. Construct with New and drive it with
// StartScan/Pause/Resume/Cancel; subscribe to Progress/Log/Completion.
type Engine struct {
	store       *catalog.Store
	checkpoints *checkpoint.Store
	prober      *probe.Runner
	fs          afero.Fs
	cfg         Config
	logger      zerolog.Logger

	progressCh   chan ProgressEvent
	completionCh chan CompletionEvent
	logBuffer    *logRing
	logCh        chan LogEvent

	mu      sync.Mutex
	state   State
	session model.ScanSession
	cmdCh   chan command
	runID   string
}

// New constructs an Engine in the idle state.
func New(store *catalog.Store, checkpoints *checkpoint.Store, prober *probe.Runner, fs afero.Fs, cfg Config, logger zerolog.Logger) *Engine {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Engine{
		store:        store,
		checkpoints:  checkpoints,
		prober:       prober,
		fs:           fs,
		cfg:          cfg,
		logger:       logger,
		progressCh:   make(chan ProgressEvent, 64),
		completionCh: make(chan CompletionEvent, 4),
		logBuffer:    newLogRing(cfg.LogBufferSize),
		logCh:        make(chan LogEvent, 256),
		state:        StateIdle,
	}
}

// Progress returns the channel clients should read progress events from.
func (e *Engine) Progress() <-chan ProgressEvent { return e.progressCh }

// Log returns the channel clients should read log events from.
func (e *Engine) Log() <-chan LogEvent { return e.logCh }

// Completion returns the channel clients should read completion events from.
func (e *Engine) Completion() <-chan CompletionEvent { return e.completionCh }

// RecentLogs returns the buffered FIFO window of recent log entries.
func (e *Engine) RecentLogs() []LogEvent { return e.logBuffer.all() }

// RunID returns the correlation id of the most recently started session.
func (e *Engine) RunID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runID
}

// State reports the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// CurrentSession reports the session the engine last started or resumed.
// The zero value is returned if no session has run yet.
func (e *Engine) CurrentSession() model.ScanSession {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session
}

// StartScan begins a new session over folderPath. Rejects if a session is
// already active — see spec §4.3 start_scan.
func (e *Engine) StartScan(ctx context.Context, folderPath string) error {
	e.mu.Lock()
	if e.state == StateScanning || e.state == StatePaused {
		e.mu.Unlock()
		return model.ErrScanAlreadyInProgress
	}
	e.mu.Unlock()

	files, err := discover(e.fs, folderPath)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrFolderAccessDenied, err)
	}

	sessionID, err := e.store.CreateSession(ctx, model.ScanSession{
		FolderPath:     folderPath,
		StartedAt:      time.Now().UTC(),
		TotalFiles:     len(files),
		ProcessedFiles: 0,
		Status:         model.SessionInProgress,
		PendingFiles:   files,
	})
	if err != nil {
		return fmt.Errorf("scan: create session: %w", err)
	}

	e.beginRun(ctx, folderPath, sessionID, files, 0)
	return nil
}

// ResumeFromCheckpoint rehydrates pending list and counters from a
// previously saved checkpoint and resumes scanning — see spec §4.3
// resume_from_checkpoint and "Crash recovery".
func (e *Engine) ResumeFromCheckpoint(ctx context.Context, cp model.Checkpoint) error {
	e.mu.Lock()
	if e.state == StateScanning || e.state == StatePaused {
		e.mu.Unlock()
		return model.ErrScanAlreadyInProgress
	}
	e.mu.Unlock()

	if err := e.store.UpdateSession(ctx, model.ScanSession{
		ID:             cp.SessionID,
		FolderPath:     cp.FolderPath,
		TotalFiles:     cp.TotalFiles,
		ProcessedFiles: cp.ProcessedFiles,
		Status:         model.SessionInProgress,
		PendingFiles:   cp.PendingFilePaths,
	}); err != nil {
		return fmt.Errorf("scan: rehydrate session: %w", err)
	}

	e.beginRun(ctx, cp.FolderPath, cp.SessionID, cp.PendingFilePaths, cp.ProcessedFiles)
	return nil
}

// RecoveryInfo checks the checkpoint store for a recoverable session on
// process start. Returns (nil, nil) if nothing is recoverable. A stale
// checkpoint (older than StaleCheckpointAge) is pruned and its session
// marked failed rather than offered for recovery.
func (e *Engine) RecoveryInfo(ctx context.Context) (*model.RecoveryInfo, error) {
	cp, err := e.checkpoints.Load()
	if err != nil || cp == nil {
		return nil, err
	}

	if checkpoint.IsStale(*cp, e.cfg.StaleCheckpointAge, time.Now().UTC()) {
		_ = e.checkpoints.Discard()
		if sess, ferr := e.store.GetSession(ctx, cp.SessionID); ferr == nil {
			sess.Status = model.SessionFailed
			now := time.Now().UTC()
			sess.CompletedAt = &now
			_ = e.store.UpdateSession(ctx, sess)
		}
		return nil, nil
	}

	if _, statErr := e.fs.Stat(cp.FolderPath); statErr != nil {
		_ = e.checkpoints.Discard()
		return nil, nil
	}

	remaining := 0
	for _, p := range cp.PendingFilePaths {
		if _, statErr := e.fs.Stat(p); statErr == nil {
			remaining++
		}
	}
	if remaining == 0 {
		_ = e.checkpoints.Discard()
		return nil, nil
	}

	progress := 0.0
	if cp.TotalFiles > 0 {
		progress = float64(cp.ProcessedFiles) / float64(cp.TotalFiles) * 100
	}
	return &model.RecoveryInfo{
		Checkpoint:         *cp,
		RemainingFileCount: remaining,
		FolderPath:         cp.FolderPath,
		ProgressPercentage: progress,
	}, nil
}

// Pause flushes the insert batch, persists state and checkpoint, and
// quiesces producers. In-flight probes are allowed to finish.
func (e *Engine) Pause(ctx context.Context) error { return e.sendCommand(cmdPause) }

// Resume restarts production using the in-memory pending list.
func (e *Engine) Resume(ctx context.Context) error { return e.sendCommand(cmdResume) }

// Cancel flushes the insert batch, marks the session cancelled, and
// deletes the checkpoint. In-flight probes run to completion.
func (e *Engine) Cancel(ctx context.Context) error { return e.sendCommand(cmdCancel) }

func (e *Engine) sendCommand(kind cmdKind) error {
	e.mu.Lock()
	ch := e.cmdCh
	e.mu.Unlock()
	if ch == nil {
		return errors.New("scan: no active session")
	}
	reply := make(chan error, 1)
	ch <- command{kind: kind, reply: reply}
	return <-reply
}

func (e *Engine) beginRun(ctx context.Context, folderPath string, sessionID int64, pending []string, processedSoFar int) {
	e.mu.Lock()
	e.state = StateScanning
	e.cmdCh = make(chan command)
	e.runID = uuid.NewString()
	e.session = model.ScanSession{
		ID:             sessionID,
		FolderPath:     folderPath,
		StartedAt:      time.Now().UTC(),
		TotalFiles:     processedSoFar + len(pending),
		ProcessedFiles: processedSoFar,
		Status:         model.SessionInProgress,
		PendingFiles:   pending,
	}
	e.mu.Unlock()

	go e.run(ctx, folderPath, sessionID, pending, processedSoFar)
}

func (e *Engine) updateSessionSnapshot(sess model.ScanSession) {
	e.mu.Lock()
	e.session = sess
	e.mu.Unlock()
}

// metadataToRecord converts a parsed Metadata plus path/size into a
// VideoRecord ready for insertion.
func metadataToRecord(meta metadata.Metadata, path string, size uint64) model.VideoRecord {
	return model.VideoRecord{
		FilePath:        path,
		FileName:        filepath.Base(path),
		FileSize:        size,
		DurationSeconds: meta.DurationSeconds,
		VideoCodec:      meta.VideoCodec,
		Width:           meta.Width,
		Height:          meta.Height,
		FrameRate:       meta.FrameRate,
		BitRate:         meta.BitRate,
		BitDepth:        meta.BitDepth,
		HDRFormat:       meta.HDRFormat,
		AudioCodec:      meta.AudioCodec,
		AudioChannels:   meta.AudioChannels,
		IsAtmos:         meta.IsAtmos,
		IsDTSX:          meta.IsDTSX,
		ContainerFormat: meta.ContainerFormat,
		ScannedAt:       time.Now().UTC(),
	}
}

// processFile runs probe + parse for one path, retrying transient probe
// failures with exponential backoff per spec §4.3 step 4.
func (e *Engine) processFile(ctx context.Context, path string) fileResult {
	var rec model.VideoRecord
	err := retry.Do(
		func() error {
			info, statErr := e.fs.Stat(path)
			if statErr != nil {
				return statErr
			}
			probeRec, probeErr := e.prober.Probe(ctx, path)
			if probeErr != nil {
				return probeErr
			}
			size := uint64(0)
			if info.Size() > 0 {
				size = uint64(info.Size())
			}
			meta := metadata.Parse(probeRec, path, size)
			rec = metadataToRecord(meta, path, size)
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(e.cfg.RetryAttempts+1),
		retry.Delay(e.cfg.RetryBaseDelay),
		retry.MaxDelay(e.cfg.RetryMaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return fileResult{path: path, err: err}
	}
	return fileResult{path: path, record: rec}
}

// run is the engine's single serialization domain for one session: it
// owns pending/processed/buffer/session state and mutates them only here.
func (e *Engine) run(parent context.Context, folderPath string, sessionID int64, files []string, processedSoFar int) {
	ctx, cancelWorkers := context.WithCancel(parent)
	defer cancelWorkers()

	cmdCh := e.cmdCh
	pending := append([]string(nil), files...)
	processed := processedSoFar
	errorCount := 0
	total := processedSoFar + len(pending)
	var buffer []model.VideoRecord

	workCh := make(chan string)
	resultCh := make(chan fileResult)
	workersDone := make(chan struct{})

	workers := pool.New().WithMaxGoroutines(e.cfg.MaxConcurrency)
	for i := 0; i < e.cfg.MaxConcurrency; i++ {
		workers.Go(func() {
			for path := range workCh {
				resultCh <- e.processFile(ctx, path)
			}
		})
	}
	go func() { workers.Wait(); close(workersDone) }()

	ticker := time.NewTicker(e.cfg.CheckpointInterval)
	defer ticker.Stop()

	progressLimiter := rate.Sometimes{Interval: e.cfg.ProgressThrottle}

	paused := false
	cancelled := false
	dispatchIdx := 0
	inFlight := 0
	workClosed := false
	lastCheckpoint := time.Now()
	startedAt := time.Now()

	closeWork := func() {
		if !workClosed {
			close(workCh)
			workClosed = true
		}
	}

	if len(pending) == 0 {
		closeWork()
	}

	emitProgress := func(current string, force bool) {
		st := e.State()
		if force {
			publish(e.progressCh, ProgressEvent{Total: total, Processed: processed, CurrentFile: current, State: st})
			return
		}
		progressLimiter.Do(func() {
			publish(e.progressCh, ProgressEvent{Total: total, Processed: processed, CurrentFile: current, State: st})
		})
	}

	runLogger := e.logger.With().Str("run_id", e.RunID()).Str("folder", folderPath).Logger()
	emitLog := func(level LogLevel, msg, path string) {
		ev := LogEvent{Timestamp: time.Now().UTC(), Level: level, Message: msg, FilePath: path}
		e.logBuffer.add(ev)
		publish(e.logCh, ev)

		evt := runLogger.Info()
		switch level {
		case LogWarning:
			evt = runLogger.Warn()
		case LogError:
			evt = runLogger.Error()
		}
		if path != "" {
			evt = evt.Str("file_path", path)
		}
		evt.Msg(msg)
	}

	flush := func() {
		if len(buffer) == 0 {
			return
		}
		if _, err := e.store.UpsertRecords(context.Background(), buffer); err != nil {
			emitLog(LogError, fmt.Sprintf("batch insert failed: %v", err), "")
		}
		buffer = buffer[:0]
	}

	saveCheckpoint := func() {
		_ = e.checkpoints.Save(model.Checkpoint{
			SessionID:        sessionID,
			FolderPath:       folderPath,
			TotalFiles:       total,
			ProcessedFiles:   processed,
			PendingFilePaths: append([]string(nil), pending[dispatchIdx:]...),
		})
		lastCheckpoint = time.Now()
	}

	setState := func(s State) {
		e.mu.Lock()
		e.state = s
		e.mu.Unlock()
	}

	finalize := func(final State) {
		flush()
		now := time.Now().UTC()
		sess, err := e.store.GetSession(context.Background(), sessionID)
		if err == nil {
			sess.Status = model.SessionStatus(final)
			sess.ProcessedFiles = processed
			sess.ErrorCount = errorCount
			sess.CompletedAt = &now
			sess.PendingFiles = append([]string(nil), pending[dispatchIdx:]...)
			_ = e.store.UpdateSession(context.Background(), sess)
			e.updateSessionSnapshot(sess)
		}
		if final == StateCompleted || final == StateCancelled {
			_ = e.checkpoints.Discard()
		} else {
			saveCheckpoint()
		}
		setState(final)
		e.mu.Lock()
		e.cmdCh = nil
		e.mu.Unlock()
		sessionsTotal.WithLabelValues(string(final))
		scanDuration.Observe(time.Since(startedAt).Seconds())
		emitProgress("", true)
		publish(e.completionCh, CompletionEvent{
			Total: total, Processed: processed,
			Duration: time.Since(startedAt), FolderPath: folderPath, State: final,
		})
	}

	for {
		var dispatchCh chan string
		var nextPath string
		if !paused && !cancelled && dispatchIdx < len(pending) {
			dispatchCh = workCh
			nextPath = pending[dispatchIdx]
		}

		select {
		case dispatchCh <- nextPath:
			dispatchIdx++
			inFlight++
			emitProgress(nextPath, false)

		case res := <-resultCh:
			inFlight--
			processed++
			if res.err != nil {
				errorCount++
				emitLog(LogError, fmt.Sprintf("probe failed: %v", res.err), res.path)
				filesProcessedTotal.WithLabelValues("error")
			} else {
				buffer = append(buffer, res.record)
				emitLog(LogSuccess, "scanned", res.path)
				filesProcessedTotal.WithLabelValues("ok")
				if len(buffer) >= e.cfg.BatchSize {
					flush()
				}
			}
			emitProgress(res.path, false)
			if (dispatchIdx >= len(pending) || cancelled) && inFlight == 0 {
				closeWork()
			}

		case <-ticker.C:
			if time.Since(lastCheckpoint) >= e.cfg.CheckpointInterval {
				flush()
				saveCheckpoint()
			}

		case cmd := <-cmdCh:
			switch cmd.kind {
			case cmdPause:
				paused = true
				flush()
				saveCheckpoint()
				setState(StatePaused)
				emitProgress("", true)
				cmd.reply <- nil
			case cmdResume:
				paused = false
				setState(StateScanning)
				emitProgress("", true)
				cmd.reply <- nil
			case cmdCancel:
				cancelled = true
				if inFlight == 0 {
					closeWork()
				}
				cmd.reply <- nil
			}

		case <-workersDone:
			if cancelled {
				finalize(StateCancelled)
				return
			}
			if dispatchIdx >= len(pending) && inFlight == 0 {
				finalize(StateCompleted)
				return
			}
		}
	}
}
