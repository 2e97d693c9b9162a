package services

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/Lllllllleong/metagenomeflow/internal/logging"
	"github.com/Lllllllleong/metagenomeflow/internal/models"
	"github.com/Lllllllleong/metagenomeflow/internal/runner"
	"github.com/Lllllllleong/metagenomeflow/internal/samples"
)

// TrimmerConfig holds all configuration for the adapter/quality trimmer.
type TrimmerConfig struct {
	FastqDir   string
	TrimmedDir string
	TrimGalore string
	Quality    int
	MinLength  int
	Seqkit     string
	StatsFile  string
}

// Trimmer runs paired-end trimming for every converted run, one at a time.
type Trimmer struct {
	runner  runner.Runner
	logger  *slog.Logger
	tracker Tracker
	config  TrimmerConfig
}

// TrimSummary counts trimming outcomes.
type TrimSummary struct {
	Total     int
	Succeeded int
	Failed    []string
}

func NewTrimmer(config TrimmerConfig, r runner.Runner, logger *slog.Logger, tracker Tracker) *Trimmer {
	if tracker == nil {
		tracker = NopTracker{}
	}
	return &Trimmer{runner: r, logger: logger, tracker: tracker, config: config}
}

// RunPrefixes returns the distinct run prefixes of the converted files in dir.
func RunPrefixes(dir string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.fastq"))
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var prefixes []string
	for _, p := range paths {
		prefix := samples.RunPrefix(p)
		if prefix == "" || seen[prefix] {
			continue
		}
		seen[prefix] = true
		prefixes = append(prefixes, prefix)
	}
	sort.Strings(prefixes)
	return prefixes, nil
}

// Trim trims every run found in FastqDir. A failing run is logged and
// skipped. The per-read statistics table is written afterwards when a
// stats tool is configured.
func (t *Trimmer) Trim(ctx context.Context) (TrimSummary, error) {
	defer logging.Timed(t.logger, "trim_galore")()

	info, err := os.Stat(t.config.FastqDir)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && !info.IsDir()) {
		return TrimSummary{}, fmt.Errorf("%s: %w", t.config.FastqDir, ErrMissingDirectory)
	}
	if err != nil {
		return TrimSummary{}, fmt.Errorf("failed to stat %s: %w", t.config.FastqDir, err)
	}
	if err := os.MkdirAll(t.config.TrimmedDir, 0o755); err != nil {
		return TrimSummary{}, fmt.Errorf("failed to create %s: %w", t.config.TrimmedDir, err)
	}

	prefixes, err := RunPrefixes(t.config.FastqDir)
	if err != nil {
		return TrimSummary{}, fmt.Errorf("failed to list converted runs: %w", err)
	}
	if err := t.tracker.SetStatus(ctx, models.StatusTrimming, map[string]interface{}{"runCount": len(prefixes)}); err != nil {
		t.logger.Warn("Failed to record batch status.", "error", err)
	}

	summary := TrimSummary{Total: len(prefixes)}
	for i, prefix := range prefixes {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if t.trimRun(ctx, prefix) {
			summary.Succeeded++
		} else {
			summary.Failed = append(summary.Failed, prefix)
		}
		t.logger.Info(fmt.Sprintf("Completed trimming of %d/%d", i+1, len(prefixes)), "kit", prefix)
	}

	t.writeStats(ctx)
	return summary, nil
}

func (t *Trimmer) trimRun(ctx context.Context, prefix string) bool {
	forward, reverse := samples.ConvertedPair(t.config.FastqDir, prefix)
	ok := t.runner.Run(ctx, t.config.TrimGalore,
		"--paired",
		"--quality", strconv.Itoa(t.config.Quality),
		"--length", strconv.Itoa(t.config.MinLength),
		forward, reverse,
		"--fastqc",
		"--output_dir", t.config.TrimmedDir,
	)
	if ok {
		t.logger.Info("Trimming completed successfully", "kit", prefix)
	} else {
		t.logger.Error("Trimming failed", "kit", prefix)
	}
	return ok
}

func (t *Trimmer) writeStats(ctx context.Context) {
	if t.config.Seqkit == "" || t.config.StatsFile == "" {
		return
	}
	paths, err := filepath.Glob(filepath.Join(t.config.TrimmedDir, "*.fq"))
	if err != nil || len(paths) == 0 {
		return
	}
	sort.Strings(paths)

	out, ok := t.runner.Output(ctx, t.config.Seqkit, append([]string{"stats", "-T"}, paths...)...)
	if !ok {
		t.logger.Warn("Read statistics not collected.")
		return
	}
	if err := os.WriteFile(t.config.StatsFile, []byte(out), 0o644); err != nil {
		t.logger.Warn("Failed to write read statistics.", "path", t.config.StatsFile, "error", err)
	}
}
