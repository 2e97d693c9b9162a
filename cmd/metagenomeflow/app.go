package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/Lllllllleong/metagenomeflow/internal/config"
	"github.com/Lllllllleong/metagenomeflow/internal/gcp"
	"github.com/Lllllllleong/metagenomeflow/internal/logging"
	"github.com/Lllllllleong/metagenomeflow/internal/models"
	"github.com/Lllllllleong/metagenomeflow/internal/runner"
	"github.com/Lllllllleong/metagenomeflow/internal/services"
)

// app wires configuration, log channels and the batch tracker into the services.
type app struct {
	cfg     config.Config
	logs    *logging.Channels
	tracker services.Tracker
	closers []func() error
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	logs, err := logging.Open(cfg.LogDir, os.Stderr)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logs: logs, tracker: services.NopTracker{}}
	a.closers = append(a.closers, logs.Close)

	if cfg.ProjectID != "" && cfg.BatchID != "" {
		client, err := gcp.NewFirestoreClient(ctx, cfg.ProjectID)
		if err != nil {
			a.close()
			return nil, err
		}
		tracker := gcp.NewBatchTracker(client, cfg.BatchCollection, cfg.BatchID)
		a.tracker = tracker
		a.closers = append(a.closers, tracker.Close)
	}
	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("Failed to release resource", "error", err)
		}
	}
}

func (a *app) runner(channel string) runner.Runner {
	return runner.New(a.logs.Console(channel), a.cfg.ToolTimeout)
}

func (a *app) download(ctx context.Context) error {
	d := services.NewDownloader(services.DownloaderConfig{
		ListPath:    a.cfg.ListPath,
		DownloadDir: a.cfg.DownloadDir,
		FastqDir:    a.cfg.FastqDir,
		Workers:     a.cfg.Workers,
		Prefetch:    a.cfg.Tools.Prefetch,
		FastqDump:   a.cfg.Tools.FastqDump,
	}, a.runner(logging.Stream), a.logs, a.tracker)

	summary, err := d.ProcessList(ctx)
	if err != nil {
		return err
	}
	slog.Info("Download batch finished",
		"total", summary.Total,
		"converted", summary.Converted,
		"fetchFailed", summary.FetchFailed,
		"convertFailed", summary.ConvertFailed)
	return nil
}

func (a *app) trim(ctx context.Context) error {
	t := services.NewTrimmer(services.TrimmerConfig{
		FastqDir:   a.cfg.FastqDir,
		TrimmedDir: a.cfg.TrimmedDir,
		TrimGalore: a.cfg.Tools.TrimGalore,
		Quality:    a.cfg.TrimQuality,
		MinLength:  a.cfg.TrimMinLength,
		Seqkit:     a.cfg.Tools.Seqkit,
		StatsFile:  a.cfg.TrimStatsFile,
	}, a.runner(logging.TrimGalore), a.logs.Console(logging.TrimGalore), a.tracker)

	summary, err := t.Trim(ctx)
	if err != nil {
		return err
	}
	if len(summary.Failed) > 0 {
		slog.Warn("Some runs were not trimmed", "failed", summary.Failed)
	}
	return nil
}

func (a *app) analyze(ctx context.Context) error {
	logger := a.logs.Console(logging.PMPipeline)
	r := a.runner(logging.PMPipeline)

	var counter services.LineCounter = services.WCCounter{Runner: r, Program: a.cfg.Tools.WC}
	if a.cfg.LineCounter == "native" {
		counter = services.NativeCounter{}
	}
	reconciler := services.NewReconciler(services.ReconcilerConfig{
		TrimmedDir:   a.cfg.TrimmedDir,
		ReadGlob:     a.cfg.ReadGlob,
		CountLogFile: a.cfg.CountLogFile,
		ReportFile:   a.cfg.CountReportFile,
		MinDepth:     a.cfg.MinDepth,
	}, counter, logger)

	analyzer := services.NewAnalyzer(services.AnalyzerConfig{
		TrimmedDir:   a.cfg.TrimmedDir,
		MergedDir:    a.cfg.MergedDir,
		PMOutputDir:  a.cfg.PMOutputDir,
		MetaFile:     a.cfg.MetaFile,
		SeqsListFile: a.cfg.SeqsListFile,
		Usearch:      a.cfg.Tools.Usearch,
		PMBin:        a.cfg.Tools.PMBin,
		MaxDiffs:     a.cfg.MergeMaxDiffs,
		MinPctID:     a.cfg.MergeMinPctID,
	}, reconciler, r, logger, a.tracker)

	_, err := analyzer.Analyze(ctx)
	return err
}

func (a *app) publish(ctx context.Context) error {
	prefix := a.cfg.BatchID
	if prefix == "" {
		prefix = "local"
	}
	p, err := services.NewPublisher(ctx, services.PublisherConfig{Bucket: a.cfg.ResultsBucket, Prefix: prefix})
	if err != nil {
		return err
	}
	defer p.Close()

	n, err := p.Publish(ctx, a.cfg.PMOutputDir)
	if err != nil {
		return err
	}
	slog.Info("Published results", "uploaded", n, "bucket", a.cfg.ResultsBucket, "prefix", prefix)
	return nil
}

func (a *app) all(ctx context.Context) error {
	steps := []func(context.Context) error{a.download, a.trim, a.analyze}
	if a.cfg.ResultsBucket != "" {
		steps = append(steps, a.publish)
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			return err
		}
	}
	return nil
}

// fail logs a setup failure and marks the batch FAILED.
func (a *app) fail(ctx context.Context, err error) {
	slog.Error("Pipeline aborted", "error", err)
	// The run context may already be cancelled by a signal.
	ctx = context.WithoutCancel(ctx)
	fields := map[string]interface{}{"errorDetails": fmt.Sprint(err)}
	if terr := a.tracker.SetStatus(ctx, models.StatusFailed, fields); terr != nil {
		slog.Warn("Failed to record batch failure", "error", terr)
	}
}
