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
	"strings"

	"github.com/Lllllllleong/metagenomeflow/internal/models"
	"github.com/Lllllllleong/metagenomeflow/internal/samples"
)

// FASTQ records span four lines.
const linesPerRecord = 4

// Files are counted in batches of this size to stay under the argument
// length limit of the counting tool.
const countBatchSize = 256

// ReconcilerConfig holds all configuration for the read-count reconciler.
type ReconcilerConfig struct {
	TrimmedDir   string
	ReadGlob     string
	CountLogFile string
	ReportFile   string
	MinDepth     int
}

// Reconciler verifies that both mates of each sample hold the same number
// of reads and keeps the samples with enough depth.
type Reconciler struct {
	counter LineCounter
	logger  *slog.Logger
	config  ReconcilerConfig
}

// Mismatch is a sample whose mate files disagree.
type Mismatch struct {
	SampleID string
	Counts   []int
}

// Reconciliation is the result of one reconcile pass. Slices are sorted
// by sample ID.
type Reconciliation struct {
	Records    []models.ReadCountRecord
	Mismatches []Mismatch
	Filtered   []models.ReadCountRecord
	// Uncounted samples had at least one read file that could not be counted.
	Uncounted []string
	MinDepth  int
}

// FilteredIDs returns the IDs of the samples that passed the depth filter.
func (r *Reconciliation) FilteredIDs() []string {
	ids := make([]string, len(r.Filtered))
	for i, rec := range r.Filtered {
		ids[i] = rec.SampleID
	}
	return ids
}

func NewReconciler(config ReconcilerConfig, counter LineCounter, logger *slog.Logger) *Reconciler {
	if config.ReadGlob == "" {
		config.ReadGlob = "*.fq"
	}
	return &Reconciler{counter: counter, logger: logger, config: config}
}

// Reconcile counts the trimmed read files, writes the raw counts to the
// scratch count log and the summary workbook, and returns the reconciled
// and filtered samples. A file that cannot be counted drops its sample and
// is logged. Only a missing directory, a bad glob or cancellation is an
// error.
func (r *Reconciler) Reconcile(ctx context.Context) (*Reconciliation, error) {
	info, err := os.Stat(r.config.TrimmedDir)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && !info.IsDir()) {
		return nil, fmt.Errorf("%s: %w", r.config.TrimmedDir, ErrMissingDirectory)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", r.config.TrimmedDir, err)
	}

	paths, err := filepath.Glob(filepath.Join(r.config.TrimmedDir, r.config.ReadGlob))
	if err != nil {
		return nil, fmt.Errorf("invalid read glob %q: %w", r.config.ReadGlob, err)
	}
	sort.Strings(paths)

	counts, failed, err := r.countAll(ctx, paths)
	if err != nil {
		return nil, err
	}
	if r.config.CountLogFile != "" {
		if err := writeCountLog(r.config.CountLogFile, counts); err != nil {
			return nil, err
		}
	}

	uncounted := uncountedSamples(failed, r.logger)
	result := ReconcileCounts(withoutSamples(counts, uncounted), r.config.MinDepth, r.logger)
	result.Uncounted = uncounted
	r.logger.Info("Trimmed samples count", "count", len(result.Records))
	r.logger.Info("After filtering samples count", "count", len(result.Filtered), "minDepth", r.config.MinDepth)

	if r.config.ReportFile != "" {
		if err := WriteCountReport(r.config.ReportFile, result); err != nil {
			r.logger.Warn("Failed to write read count report.", "path", r.config.ReportFile, "error", err)
		}
	}
	return result, nil
}

// countAll counts paths in batches. When a batch fails each of its files
// is counted on its own, so one unreadable file only costs its own count.
// Only cancellation is returned as an error.
func (r *Reconciler) countAll(ctx context.Context, paths []string) ([]LineCount, []string, error) {
	var counts []LineCount
	var failed []string
	for start := 0; start < len(paths); start += countBatchSize {
		batch := paths[start:min(start+countBatchSize, len(paths))]
		got, err := r.counter.CountLines(ctx, batch)
		if err == nil {
			counts = append(counts, got...)
			continue
		}
		for _, p := range batch {
			if err := ctx.Err(); err != nil {
				return nil, nil, err
			}
			one, err := r.counter.CountLines(ctx, []string{p})
			if err != nil || len(one) != 1 {
				r.logger.Error("Failed to count reads", "path", p, "error", err)
				failed = append(failed, p)
				continue
			}
			counts = append(counts, one[0])
		}
	}
	return counts, failed, nil
}

// uncountedSamples returns the sorted sample IDs owning the failed paths.
func uncountedSamples(failed []string, logger *slog.Logger) []string {
	seen := map[string]bool{}
	var ids []string
	for _, p := range failed {
		rf, ok := samples.ParseReadFile(p)
		if !ok || seen[rf.SampleID] {
			continue
		}
		seen[rf.SampleID] = true
		ids = append(ids, rf.SampleID)
		logger.Error("Sample excluded, read count unavailable", "sampleId", rf.SampleID)
	}
	sort.Strings(ids)
	return ids
}

func withoutSamples(counts []LineCount, ids []string) []LineCount {
	if len(ids) == 0 {
		return counts
	}
	drop := map[string]bool{}
	for _, id := range ids {
		drop[id] = true
	}
	kept := make([]LineCount, 0, len(counts))
	for _, c := range counts {
		if rf, ok := samples.ParseReadFile(c.Path); ok && drop[rf.SampleID] {
			continue
		}
		kept = append(kept, c)
	}
	return kept
}

type countGroup struct {
	id     string
	counts []int
	mates  []string
}

// ReconcileCounts groups line counts by sample. A sample is kept when all
// of its files agree and dropped with exactly one diagnostic otherwise.
// Files whose names carry no sample ID are ignored.
func ReconcileCounts(counts []LineCount, minDepth int, logger *slog.Logger) *Reconciliation {
	groups := map[string]*countGroup{}
	var order []string
	for _, c := range counts {
		rf, ok := samples.ParseReadFile(c.Path)
		if !ok {
			logger.Warn("Skipping read file without a sample ID.", "path", c.Path)
			continue
		}
		g, seen := groups[rf.SampleID]
		if !seen {
			g = &countGroup{id: rf.SampleID}
			groups[rf.SampleID] = g
			order = append(order, rf.SampleID)
		}
		g.counts = append(g.counts, c.Lines/linesPerRecord)
		g.mates = append(g.mates, rf.Mate)
	}
	sort.Strings(order)

	result := &Reconciliation{MinDepth: minDepth}
	for _, id := range order {
		g := groups[id]
		if !allEqual(g.counts) {
			logger.Error("The read count does not match", "sampleId", id, "counts", g.counts)
			result.Mismatches = append(result.Mismatches, Mismatch{SampleID: id, Counts: g.counts})
			continue
		}
		rec := g.record()
		result.Records = append(result.Records, rec)
		if rec.Count >= minDepth {
			result.Filtered = append(result.Filtered, rec)
		}
	}
	return result
}

func (g *countGroup) record() models.ReadCountRecord {
	rec := models.ReadCountRecord{SampleID: g.id, Count: g.counts[0], Paired: len(g.counts) > 1}
	for i, mate := range g.mates {
		switch mate {
		case "1":
			rec.ForwardCount = g.counts[i]
		case "2":
			rec.ReverseCount = g.counts[i]
		}
	}
	if rec.ForwardCount == 0 && rec.ReverseCount == 0 {
		rec.ForwardCount = g.counts[0]
		if rec.Paired {
			rec.ReverseCount = g.counts[1]
		}
	}
	return rec
}

func allEqual(xs []int) bool {
	for _, x := range xs[1:] {
		if x != xs[0] {
			return false
		}
	}
	return true
}

// writeCountLog overwrites path with one "<lines> <path>" row per file.
func writeCountLog(path string, counts []LineCount) error {
	var b strings.Builder
	for _, c := range counts {
		fmt.Fprintf(&b, "%d %s\n", c.Lines, c.Path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create count log directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write count log %s: %w", path, err)
	}
	return nil
}
