package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/Lllllllleong/metagenomeflow/internal/logging"
	"github.com/Lllllllleong/metagenomeflow/internal/models"
	"github.com/Lllllllleong/metagenomeflow/internal/runner"
	"github.com/Lllllllleong/metagenomeflow/internal/samples"
	"golang.org/x/sync/errgroup"
)

// DownloaderConfig holds all configuration for the downloader service.
type DownloaderConfig struct {
	ListPath    string
	DownloadDir string
	FastqDir    string
	Workers     int
	Prefetch    string
	FastqDump   string
}

// Downloader fetches sequencing runs and converts them to paired read files.
type Downloader struct {
	runner  runner.Runner
	logs    *logging.Channels
	tracker Tracker
	config  DownloaderConfig
}

// DownloadSummary counts the terminal outcomes of one batch.
type DownloadSummary struct {
	Total         int
	Converted     int
	FetchFailed   int
	ConvertFailed int
}

// CompletionCounter counts finished identifiers for one batch. Each
// increment and its progress report happen under the same lock.
type CompletionCounter struct {
	mu        sync.Mutex
	total     int
	completed int
}

func NewCompletionCounter(total int) *CompletionCounter {
	return &CompletionCounter{total: total}
}

// Complete increments the counter and calls report with the new value
// before releasing the lock.
func (c *CompletionCounter) Complete(report func(completed, total int)) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.completed++
	if report != nil {
		report(c.completed, c.total)
	}
	return c.completed
}

// Completed returns the current count.
func (c *CompletionCounter) Completed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.completed
}

// NewDownloader creates a Downloader. A nil tracker disables tracking.
func NewDownloader(config DownloaderConfig, r runner.Runner, logs *logging.Channels, tracker Tracker) *Downloader {
	if config.Workers < 1 {
		config.Workers = 1
	}
	if tracker == nil {
		tracker = NopTracker{}
	}
	return &Downloader{runner: r, logs: logs, tracker: tracker, config: config}
}

// ProcessList reads the identifier list file and processes every entry.
// A missing or empty list is a setup failure.
func (d *Downloader) ProcessList(ctx context.Context) (DownloadSummary, error) {
	file, err := os.Open(d.config.ListPath)
	if err != nil {
		return DownloadSummary{}, fmt.Errorf("failed to open sample list: %w", err)
	}
	defer file.Close()

	ids, duplicates, err := samples.ReadIdentifiers(file)
	if err != nil {
		return DownloadSummary{}, err
	}
	if len(duplicates) > 0 {
		d.logs.Console(logging.Stream).Warn("Duplicate identifiers ignored.", "duplicates", duplicates)
	}
	if len(ids) == 0 {
		return DownloadSummary{}, fmt.Errorf("%s: %w", d.config.ListPath, ErrEmptyList)
	}
	return d.ProcessAll(ctx, ids)
}

// ProcessAll runs fetch then convert for every identifier with at most
// Workers identifiers in flight. Per-identifier failures are logged and
// never abort the batch; ProcessAll returns once every worker has exited.
func (d *Downloader) ProcessAll(ctx context.Context, ids []string) (DownloadSummary, error) {
	stream := d.logs.Console(logging.Stream)
	defer logging.Timed(stream, "process_sra_list")()

	for _, dir := range []string{d.config.DownloadDir, d.config.FastqDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return DownloadSummary{}, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	if err := d.tracker.SetStatus(ctx, models.StatusDownloading, map[string]interface{}{"sampleCount": len(ids)}); err != nil {
		stream.Warn("Failed to record batch status.", "error", err)
	}

	counter := NewCompletionCounter(len(ids))
	jobs := make([]models.DownloadJob, len(ids))

	var g errgroup.Group
	g.SetLimit(d.config.Workers)
	for i, id := range ids {
		g.Go(func() error {
			jobs[i] = d.processSample(ctx, id, counter)
			return nil
		})
	}
	_ = g.Wait()

	stream.Info("#--- All downloads and processing have been completed.")
	return summarize(jobs), nil
}

func (d *Downloader) processSample(ctx context.Context, id string, counter *CompletionCounter) models.DownloadJob {
	stream := d.logs.Console(logging.Stream)
	stream.Info("+------ Started processing ------+", "id", id)

	job := models.DownloadJob{
		ID:       id,
		RawDir:   samples.RawDir(d.config.DownloadDir, id),
		FastqDir: d.config.FastqDir,
	}
	if d.fetch(ctx, &job) {
		d.convert(ctx, &job)
	}

	if err := d.tracker.RecordSample(ctx, id, job.Outcome); err != nil {
		stream.Warn("Failed to record sample outcome.", "id", id, "error", err)
	}

	counter.Complete(func(completed, total int) {
		stream.Info(fmt.Sprintf("+------ Completed processing %d/%d ------+", completed, total), "id", id)
	})
	return job
}

func (d *Downloader) fetch(ctx context.Context, job *models.DownloadJob) bool {
	if d.runner.Run(ctx, d.config.Prefetch, job.ID, "--output-directory", d.config.DownloadDir) {
		advance(d.logs.Console(logging.Stream), job, models.Fetched)
		d.logs.Get(logging.DownloadSuccess).Info(fmt.Sprintf("Downloaded %s successfully.", job.ID))
		return true
	}
	advance(d.logs.Console(logging.Stream), job, models.FetchFailed)
	d.logs.Get(logging.DownloadFailure).Error(fmt.Sprintf("Failed to download %s.", job.ID))
	return false
}

func (d *Downloader) convert(ctx context.Context, job *models.DownloadJob) bool {
	archive := samples.RawArchive(d.config.DownloadDir, job.ID)
	if d.runner.Run(ctx, d.config.FastqDump, "--split-files", "--outdir", job.FastqDir, archive) {
		advance(d.logs.Console(logging.Stream), job, models.Converted)
		// Cleanup failure is not escalated.
		if err := os.RemoveAll(job.RawDir); err != nil {
			d.logs.Console(logging.Stream).Warn("Failed to remove raw download.", "id", job.ID, "path", job.RawDir, "error", err)
		}
		d.logs.Get(logging.ConversionSuccess).Info(fmt.Sprintf("Converted %s to FASTQ successfully.", job.ID))
		return true
	}
	advance(d.logs.Console(logging.Stream), job, models.ConvertFailed)
	d.logs.Get(logging.ConversionFailure).Error(fmt.Sprintf("Failed to convert %s to FASTQ.", job.ID))
	return false
}

func advance(logger *slog.Logger, job *models.DownloadJob, next models.Outcome) {
	if err := job.Advance(next); err != nil {
		logger.Error("Job state not advanced.", "error", err)
	}
}

func summarize(jobs []models.DownloadJob) DownloadSummary {
	s := DownloadSummary{Total: len(jobs)}
	for _, j := range jobs {
		switch j.Outcome {
		case models.Converted:
			s.Converted++
		case models.FetchFailed:
			s.FetchFailed++
		case models.ConvertFailed:
			s.ConvertFailed++
		}
	}
	return s
}
