package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/Lllllllleong/metagenomeflow/internal/logging"
	"github.com/Lllllllleong/metagenomeflow/internal/manifest"
	"github.com/Lllllllleong/metagenomeflow/internal/models"
	"github.com/Lllllllleong/metagenomeflow/internal/runner"
	"github.com/Lllllllleong/metagenomeflow/internal/samples"
)

// AnalyzerConfig holds all configuration for the batch analysis coordinator.
type AnalyzerConfig struct {
	TrimmedDir   string
	MergedDir    string
	PMOutputDir  string
	MetaFile     string
	SeqsListFile string
	Usearch      string
	PMBin        string
	MaxDiffs     int
	MinPctID     int
}

// Analyzer reconciles trimmed reads, merges mate pairs, writes the
// manifest and drives the abundance pipeline.
type Analyzer struct {
	reconciler *Reconciler
	runner     runner.Runner
	logger     *slog.Logger
	tracker    Tracker
	config     AnalyzerConfig
}

// Step is one external invocation of the abundance pipeline. Each step's
// input is the previous step's Output.
type Step struct {
	Name    string
	Program string
	Args    []string
	Output  string
}

// StepResult records whether a step's command succeeded.
type StepResult struct {
	Name string
	OK   bool
}

// AnalysisResult summarizes one coordinator run.
type AnalysisResult struct {
	Reconciliation *Reconciliation
	Merges         []models.MergeResult
	Steps          []StepResult
}

func NewAnalyzer(config AnalyzerConfig, reconciler *Reconciler, r runner.Runner, logger *slog.Logger, tracker Tracker) *Analyzer {
	if tracker == nil {
		tracker = NopTracker{}
	}
	return &Analyzer{reconciler: reconciler, runner: r, logger: logger, tracker: tracker, config: config}
}

// PipelineSteps returns the abundance pipeline in execution order: the
// taxonomic profile, functional prediction, then KEGG pathway selection at
// levels 2 and 3.
func PipelineSteps(pmBin, seqsList, metaFile, outDir string) []Step {
	profile := Step{
		Name:    "PM-pipeline",
		Program: filepath.Join(pmBin, "PM-pipeline"),
		Args:    []string{"-i", seqsList, "-m", metaFile, "-o", outDir},
		Output:  filepath.Join(outDir, "Abundance_Tables"),
	}

	predict := Step{Name: "PM-predict-func", Program: filepath.Join(pmBin, "PM-predict-func")}
	predict.Output = filepath.Join(profile.Output, "func")
	predict.Args = []string{"-T", filepath.Join(profile.Output, "taxa.OTU.Count"), "-o", predict.Output}

	// PM-predict-func writes <prefix>.KO.Count beside its -o prefix.
	koTable := predict.Output + ".KO.Count"
	steps := []Step{profile, predict}
	for _, level := range []int{2, 3} {
		steps = append(steps, Step{
			Name:    fmt.Sprintf("PM-select-func L%d", level),
			Program: filepath.Join(pmBin, "PM-select-func"),
			Args:    []string{"-T", koTable, "-o", predict.Output, "-L", strconv.Itoa(level)},
			Output:  predict.Output,
		})
	}
	return steps
}

// Analyze runs the coordinator end to end. Merge and pipeline failures are
// logged and do not stop later steps; only setup failures are returned.
func (a *Analyzer) Analyze(ctx context.Context) (*AnalysisResult, error) {
	defer logging.Timed(a.logger, "batch_analysis")()
	a.logger.Info("Starting PM-meta batch analysis")

	rec, err := a.reconciler.Reconcile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to reconcile read counts: %w", err)
	}
	a.setStatus(ctx, models.StatusReconciled, map[string]interface{}{
		"reconciledCount": len(rec.Records),
		"filteredCount":   len(rec.Filtered),
	})
	result := &AnalysisResult{Reconciliation: rec}

	for _, dir := range []string{a.config.MergedDir, a.config.PMOutputDir, filepath.Dir(a.config.MetaFile), filepath.Dir(a.config.SeqsListFile)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return result, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	a.setStatus(ctx, models.StatusMerging, nil)
	merges, err := a.mergeAndRecord(ctx, rec.FilteredIDs())
	result.Merges = merges
	if err != nil {
		return result, err
	}

	a.setStatus(ctx, models.StatusPipeline, nil)
	for _, step := range PipelineSteps(a.config.PMBin, a.config.SeqsListFile, a.config.MetaFile, a.config.PMOutputDir) {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Steps = append(result.Steps, StepResult{Name: step.Name, OK: a.runStep(ctx, step)})
	}

	a.setStatus(ctx, models.StatusDone, nil)
	a.logger.Info("Successfully completed PM-meta batch analysis")
	return result, nil
}

// mergeAndRecord merges each sample in order and appends the successful
// ones to the manifest as soon as they finish.
func (a *Analyzer) mergeAndRecord(ctx context.Context, ids []string) ([]models.MergeResult, error) {
	w, err := manifest.Create(a.config.MetaFile, a.config.SeqsListFile)
	if err != nil {
		return nil, err
	}

	var merges []models.MergeResult
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			w.Close()
			return merges, err
		}
		mr := a.merge(ctx, id)
		merges = append(merges, mr)
		if !mr.OK {
			a.logger.Warn("Sample left out of the manifest after a failed merge.", "sampleId", id)
			continue
		}
		if err := w.Append(mr.SampleID, mr.MergedFile); err != nil {
			w.Close()
			return merges, err
		}
	}
	if err := w.Close(); err != nil {
		return merges, fmt.Errorf("failed to close manifest: %w", err)
	}
	return merges, nil
}

func (a *Analyzer) merge(ctx context.Context, id string) models.MergeResult {
	defer logging.Timed(a.logger, "merge_"+id)()

	forward, reverse := samples.TrimmedPair(a.config.TrimmedDir, id)
	out := samples.MergedFile(a.config.MergedDir, id)
	ok := a.runner.Run(ctx, a.config.Usearch,
		"-fastq_mergepairs", forward,
		"-reverse", reverse,
		"-relabel", "@",
		"-fastq_maxdiffs", strconv.Itoa(a.config.MaxDiffs),
		"-fastq_pctid", strconv.Itoa(a.config.MinPctID),
		"-fastqout", out,
	)
	if ok {
		a.logger.Info("Merged paired reads", "sampleId", id, "output", out)
	} else {
		a.logger.Error("Failed to merge paired reads", "sampleId", id)
	}
	return models.MergeResult{SampleID: id, MergedFile: out, OK: ok}
}

func (a *Analyzer) runStep(ctx context.Context, step Step) bool {
	defer logging.Timed(a.logger, step.Name)()
	ok := a.runner.Run(ctx, step.Program, step.Args...)
	if ok {
		a.logger.Info("Pipeline step completed", "step", step.Name, "output", step.Output)
	} else {
		a.logger.Error("Pipeline step failed", "step", step.Name)
	}
	return ok
}

func (a *Analyzer) setStatus(ctx context.Context, status string, fields map[string]interface{}) {
	if err := a.tracker.SetStatus(ctx, status, fields); err != nil {
		a.logger.Warn("Failed to record batch status.", "status", status, "error", err)
	}
}
