// Package duplicate groups catalog records by fuzzy key or by partial/full
// content hash. See spec §4.5.
package duplicate

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/spf13/afero"

	"videoanalyzer/internal/model"
	"videoanalyzer/internal/telemetry"
)

var groupsFoundTotal = telemetry.Default.Counter("duplicate_groups_found_total", "method")

// Method is a duplicate-detection strategy.
type Method string

const (
	MethodFuzzy       Method = "fuzzy"
	MethodPartialHash Method = "partial_hash"
	MethodFullHash    Method = "full_hash"
)

// Phase tags a progress event with the stage of detection in progress.
type Phase string

const (
	PhaseAnalyzing Phase = "analyzing"
	PhaseHashing   Phase = "hashing"
	PhaseComparing Phase = "comparing"
)

// ProgressEvent is emitted per file processed during detection.
type ProgressEvent struct {
	Phase       Phase
	Processed   int
	Total       int
	CurrentFile string
}

// Group is one cluster of records believed to be duplicates of each other.
// Groups of size < 2 are never constructed.
type Group struct {
	Files            []model.VideoRecord
	MatchType        Method
	Confidence       float64
	PotentialSavings uint64
	// Hash is the shared content hash for partial/full hash groups, empty
	// for fuzzy groups. Callers may persist it to VideoRecord.FileHash.
	Hash string
}

// DefaultWindowSize is the partial-hash window size H from spec §4.5.
const DefaultWindowSize = 64 * 1024

// Detector runs duplicate detection over a set of catalog records.
type Detector struct {
	fs             afero.Fs
	windowSize     int64
	maxConcurrency int
	progressCh     chan ProgressEvent
}

// New constructs a Detector backed by fs (the real filesystem if nil).
func New(fs afero.Fs) *Detector {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Detector{
		fs:             fs,
		windowSize:     DefaultWindowSize,
		maxConcurrency: 8,
		progressCh:     make(chan ProgressEvent, 64),
	}
}

// Progress returns the channel clients should read progress events from.
func (d *Detector) Progress() <-chan ProgressEvent { return d.progressCh }

func (d *Detector) emitProgress(phase Phase, processed, total int, file string) {
	select {
	case d.progressCh <- ProgressEvent{Phase: phase, Processed: processed, Total: total, CurrentFile: file}:
	default:
	}
}

// Detect runs the requested method over records and returns duplicate
// groups sorted by total group size descending.
func (d *Detector) Detect(ctx context.Context, records []model.VideoRecord, method Method) ([]Group, error) {
	switch method {
	case MethodFuzzy:
		return d.detectFuzzy(records), nil
	case MethodPartialHash:
		return d.detectHash(ctx, records, MethodPartialHash, 0.95, d.partialHash)
	case MethodFullHash:
		return d.detectFullHash(ctx, records)
	default:
		return nil, nil
	}
}

func (d *Detector) detectFuzzy(records []model.VideoRecord) []Group {
	d.emitProgress(PhaseAnalyzing, 0, len(records), "")
	buckets := map[string][]model.VideoRecord{}
	for i, r := range records {
		buckets[fuzzyKey(r)] = append(buckets[fuzzyKey(r)], r)
		d.emitProgress(PhaseAnalyzing, i+1, len(records), r.FilePath)
	}

	var groups []Group
	for _, members := range buckets {
		if len(members) < 2 {
			continue
		}
		groups = append(groups, Group{
			Files:            members,
			MatchType:        MethodFuzzy,
			Confidence:       fuzzyConfidence(members),
			PotentialSavings: potentialSavings(members),
		})
	}
	sortBySizeDesc(groups)
	groupsFoundTotal.Add(uint64(len(groups)), string(MethodFuzzy))
	return groups
}

func fuzzyKey(r model.VideoRecord) string {
	durationBucket := 0.0
	if r.DurationSeconds != nil {
		durationBucket = math.Floor(*r.DurationSeconds/5) * 5
	}
	sizeBucket := r.FileSize / (1 << 20)
	width, height := 0, 0
	if r.Width != nil {
		width = *r.Width
	}
	if r.Height != nil {
		height = *r.Height
	}
	return fmt.Sprintf("%.0f|%d|%dx%d", durationBucket, sizeBucket, width, height)
}

func fuzzyConfidence(members []model.VideoRecord) float64 {
	minSize, maxSize := members[0].FileSize, members[0].FileSize
	sameCodec, sameContainer := true, true
	for _, m := range members[1:] {
		if m.FileSize < minSize {
			minSize = m.FileSize
		}
		if m.FileSize > maxSize {
			maxSize = m.FileSize
		}
		if m.VideoCodec != members[0].VideoCodec {
			sameCodec = false
		}
		if m.ContainerFormat != members[0].ContainerFormat {
			sameContainer = false
		}
	}

	confidence := 0.5
	variation := 0.0
	if maxSize > 0 {
		variation = float64(maxSize-minSize) / float64(maxSize)
	}
	switch {
	case variation < 0.01:
		confidence += 0.3
	case variation < 0.05:
		confidence += 0.2
	case variation < 0.10:
		confidence += 0.1
	}
	if sameCodec {
		confidence += 0.1
	}
	if sameContainer {
		confidence += 0.1
	}
	if confidence > 1.0 {
		confidence = 1.0
	}
	return confidence
}

// detectHash runs hashFn over every record concurrently (bounded fan-out
// via errgroup, see hash.go) and groups by equal hash value.
func (d *Detector) detectHash(ctx context.Context, records []model.VideoRecord, method Method, confidence float64, hashFn func(string) (string, error)) ([]Group, error) {
	type hashed struct {
		rec  model.VideoRecord
		hash string
	}

	var mu sync.Mutex
	var results []hashed
	var processed int32
	total := len(records)

	err := fanOutHash(ctx, d.maxConcurrency, records, func(ctx context.Context, rec model.VideoRecord) error {
		h, hashErr := hashFn(rec.FilePath)
		n := int(atomic.AddInt32(&processed, 1))
		d.emitProgress(PhaseHashing, n, total, rec.FilePath)
		if hashErr != nil {
			// A file that fails to open is silently excluded — spec §4.5.
			return nil
		}
		mu.Lock()
		results = append(results, hashed{rec: rec, hash: h})
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}

	d.emitProgress(PhaseComparing, 0, len(results), "")
	buckets := map[string][]model.VideoRecord{}
	for _, r := range results {
		buckets[r.hash] = append(buckets[r.hash], r.rec)
	}

	var groups []Group
	for hash, members := range buckets {
		if len(members) < 2 {
			continue
		}
		groups = append(groups, Group{
			Files:            members,
			MatchType:        method,
			Confidence:       confidence,
			PotentialSavings: potentialSavings(members),
			Hash:             hash,
		})
	}
	sortBySizeDesc(groups)
	groupsFoundTotal.Add(uint64(len(groups)), string(method))
	return groups, nil
}

// detectFullHash pre-groups by exact file size (spec's size-match
// prerequisite) before hashing, so singleton sizes never pay a hash pass.
func (d *Detector) detectFullHash(ctx context.Context, records []model.VideoRecord) ([]Group, error) {
	bySize := map[uint64][]model.VideoRecord{}
	for _, r := range records {
		bySize[r.FileSize] = append(bySize[r.FileSize], r)
	}

	var candidates []model.VideoRecord
	for _, members := range bySize {
		if len(members) > 1 {
			candidates = append(candidates, members...)
		}
	}

	return d.detectHash(ctx, candidates, MethodFullHash, 1.0, func(path string) (string, error) {
		return d.fullHash(ctx, path)
	})
}

func potentialSavings(members []model.VideoRecord) uint64 {
	if len(members) == 0 {
		return 0
	}
	var total, largest uint64
	for _, m := range members {
		total += m.FileSize
		if m.FileSize > largest {
			largest = m.FileSize
		}
	}
	return total - largest
}

func groupTotalSize(g Group) uint64 {
	var total uint64
	for _, f := range g.Files {
		total += f.FileSize
	}
	return total
}

func sortBySizeDesc(groups []Group) {
	sort.Slice(groups, func(i, j int) bool {
		return groupTotalSize(groups[i]) > groupTotalSize(groups[j])
	})
}
