package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"videoanalyzer/internal/catalog"
	"videoanalyzer/internal/config"
	"videoanalyzer/internal/duplicate"
	"videoanalyzer/internal/integrity"
)

func cmdStats(ctx context.Context, store *catalog.Store) int {
	stats, err := store.FetchStatistics(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "videoanalyzer: fetch statistics: %v\n", err)
		return 1
	}

	fmt.Printf("total records: %d\n", stats.TotalRecords)
	fmt.Printf("total size:    %s\n", humanBytes(stats.TotalFileSize))
	fmt.Printf("atmos:         %d\n", stats.AtmosCount)
	fmt.Printf("dts:x:         %d\n", stats.DTSXCount)

	printCounts := func(title string, counts map[string]int) {
		if len(counts) == 0 {
			return
		}
		fmt.Println(title)
		keys := make([]string, 0, len(counts))
		for k := range counts {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("  %-20s %d\n", k, counts[k])
		}
	}

	byVideoCodec := map[string]int{}
	for k, v := range stats.ByVideoCodec {
		byVideoCodec[string(k)] = v
	}
	byHDR := map[string]int{}
	for k, v := range stats.ByHDRFormat {
		byHDR[string(k)] = v
	}
	byAudio := map[string]int{}
	for k, v := range stats.ByAudioCodec {
		byAudio[string(k)] = v
	}
	byContainer := map[string]int{}
	for k, v := range stats.ByContainer {
		byContainer[string(k)] = v
	}
	byResolution := map[string]int{}
	for k, v := range stats.ByResolutionBand {
		byResolution[string(k)] = v
	}

	printCounts("by video codec:", byVideoCodec)
	printCounts("by HDR format:", byHDR)
	printCounts("by audio codec:", byAudio)
	printCounts("by container:", byContainer)
	printCounts("by resolution:", byResolution)
	return 0
}

func humanBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func cmdDuplicates(ctx context.Context, store *catalog.Store, method duplicate.Method) int {
	records, err := store.FetchFiltered(ctx, catalog.Filter{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "videoanalyzer: fetch records: %v\n", err)
		return 1
	}

	det := duplicate.New(afero.NewOsFs())
	groups, err := det.Detect(ctx, records, method)
	if err != nil {
		fmt.Fprintf(os.Stderr, "videoanalyzer: detect duplicates: %v\n", err)
		return 1
	}

	if len(groups) == 0 {
		fmt.Println("no duplicates found")
		return 0
	}

	var totalSavings uint64
	for i, g := range groups {
		fmt.Printf("group %d (%s, confidence %.2f, savings %s):\n", i+1, g.MatchType, g.Confidence, humanBytes(g.PotentialSavings))
		for _, f := range g.Files {
			fmt.Printf("  %s (%s)\n", f.FilePath, humanBytes(f.FileSize))
		}
		totalSavings += g.PotentialSavings

		if g.Hash != "" {
			for _, f := range g.Files {
				f.FileHash = &g.Hash
				if err := store.UpdateRecord(ctx, f); err != nil {
					fmt.Fprintf(os.Stderr, "videoanalyzer: persist hash for %s: %v\n", f.FilePath, err)
				}
			}
		}
	}
	fmt.Printf("total potential savings: %s\n", humanBytes(totalSavings))
	return 0
}

func cmdVerify(ctx context.Context, cfg *config.Config, store *catalog.Store, logger zerolog.Logger) int {
	records, err := store.FetchFiltered(ctx, catalog.Filter{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "videoanalyzer: fetch records: %v\n", err)
		return 1
	}

	checker, err := integrity.NewChecker(cfg.FFmpegBin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "videoanalyzer: resolve decoder binary: %v\n", err)
		return 1
	}

	byPath := make(map[string]int64, len(records))
	paths := make([]string, 0, len(records))
	for _, r := range records {
		byPath[r.FilePath] = r.ID
		paths = append(paths, r.FilePath)
	}

	results, err := checker.Check(ctx, paths)
	if err != nil {
		fmt.Fprintf(os.Stderr, "videoanalyzer: integrity check: %v\n", err)
		return 1
	}

	corrupted := 0
	for _, res := range results {
		if res.Corrupted {
			corrupted++
			fmt.Printf("CORRUPT: %s (%d error(s))\n", res.FilePath, len(res.Errors))
		}

		details, err := integrity.MarshalDetails(res.Errors)
		if err != nil {
			logger.Warn().Err(err).Str("file_path", res.FilePath).Msg("marshal corruption details")
			continue
		}
		rec, err := store.GetRecord(ctx, byPath[res.FilePath])
		if err != nil {
			continue
		}
		isCorrupted := res.Corrupted
		rec.IsCorrupted = &isCorrupted
		rec.CorruptionDetails = details
		if err := store.UpdateRecord(ctx, rec); err != nil {
			logger.Warn().Err(err).Str("file_path", res.FilePath).Msg("persist integrity result")
		}
	}

	fmt.Printf("checked %d file(s), %d corrupt\n", len(results), corrupted)
	return 0
}
