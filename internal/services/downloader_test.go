package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Lllllllleong/metagenomeflow/internal/logging"
	"github.com/Lllllllleong/metagenomeflow/internal/models"
	"github.com/Lllllllleong/metagenomeflow/internal/runner"
)

type downloadFixture struct {
	dir     string
	logDir  string
	fake    *runner.Fake
	tracker *recordingTracker
	d       *Downloader
}

// newDownloadFixture builds a Downloader whose fetch step creates the raw
// archive on disk. fail decides per call whether the tool fails.
func newDownloadFixture(t *testing.T, workers int, fail func(name string, args []string) bool) *downloadFixture {
	t.Helper()
	dir := t.TempDir()
	logDir := filepath.Join(dir, "logs")
	logs, err := logging.Open(logDir, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { logs.Close() })

	fx := &downloadFixture{dir: dir, logDir: logDir, tracker: &recordingTracker{}}
	fx.fake = &runner.Fake{Handler: func(name string, args []string) (string, bool) {
		if fail != nil && fail(name, args) {
			return "", false
		}
		if name == "prefetch" {
			id, out := args[0], args[2]
			if err := os.MkdirAll(filepath.Join(out, id), 0o755); err != nil {
				return "", false
			}
			if err := os.WriteFile(filepath.Join(out, id, id+".sra"), []byte("sra"), 0o644); err != nil {
				return "", false
			}
		}
		return "", true
	}}
	fx.d = NewDownloader(DownloaderConfig{
		ListPath:    filepath.Join(dir, "SRA_list.txt"),
		DownloadDir: filepath.Join(dir, "sra_files"),
		FastqDir:    filepath.Join(dir, "fastq_files"),
		Workers:     workers,
		Prefetch:    "prefetch",
		FastqDump:   "fastq-dump",
	}, fx.fake, logs, fx.tracker)
	return fx
}

func (fx *downloadFixture) channel(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(fx.logDir, name+".log"))
	if errors.Is(err, os.ErrNotExist) {
		return ""
	}
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestProcessAllFetchesThenConverts(t *testing.T) {
	fx := newDownloadFixture(t, 1, nil)

	summary, err := fx.d.ProcessAll(context.Background(), []string{"SRR1", "SRR2"})
	if err != nil {
		t.Fatalf("ProcessAll: %v", err)
	}
	if summary.Total != 2 || summary.Converted != 2 {
		t.Errorf("summary = %+v, want 2 converted", summary)
	}

	calls := fx.fake.Calls()
	want := []string{"prefetch SRR1", "fastq-dump", "prefetch SRR2", "fastq-dump"}
	if len(calls) != len(want) {
		t.Fatalf("got %d calls, want %d: %v", len(calls), len(want), calls)
	}
	for i, prefix := range want {
		if !strings.HasPrefix(calls[i].String(), prefix) {
			t.Errorf("call %d = %q, want prefix %q", i, calls[i], prefix)
		}
	}
	wantConvert := fmt.Sprintf("fastq-dump --split-files --outdir %s %s",
		filepath.Join(fx.dir, "fastq_files"), filepath.Join(fx.dir, "sra_files", "SRR1", "SRR1.sra"))
	if calls[1].String() != wantConvert {
		t.Errorf("convert call = %q, want %q", calls[1], wantConvert)
	}

	for _, ch := range []string{logging.DownloadSuccess, logging.ConversionSuccess} {
		if n := strings.Count(fx.channel(t, ch), "\n"); n != 2 {
			t.Errorf("%s.log has %d lines, want 2", ch, n)
		}
	}
	for _, id := range []string{"SRR1", "SRR2"} {
		if _, err := os.Stat(filepath.Join(fx.dir, "sra_files", id)); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("raw directory for %s still present (err=%v)", id, err)
		}
		if n := strings.Count(fx.channel(t, logging.DownloadSuccess), "Downloaded "+id+" successfully."); n != 1 {
			t.Errorf("download_success.log has %d entries for %s, want 1", n, id)
		}
		if n := strings.Count(fx.channel(t, logging.ConversionSuccess), "Converted "+id+" to FASTQ successfully."); n != 1 {
			t.Errorf("conversion_success.log has %d entries for %s, want 1", n, id)
		}
		if n := strings.Count(fx.channel(t, logging.Stream), "Started processing ------+\" channel=stream id="+id+"\n"); n != 1 {
			t.Errorf("stream.log has %d start entries for %s, want 1", n, id)
		}
		if fx.tracker.samples[id] != models.Converted {
			t.Errorf("tracked outcome for %s = %s", id, fx.tracker.samples[id])
		}
	}
	if fx.channel(t, logging.DownloadFailure) != "" || fx.channel(t, logging.ConversionFailure) != "" {
		t.Error("failure channels should be empty")
	}
}

func TestFetchFailureSkipsConversion(t *testing.T) {
	fx := newDownloadFixture(t, 2, func(name string, args []string) bool {
		return name == "prefetch" && args[0] == "SRR2"
	})

	summary, err := fx.d.ProcessAll(context.Background(), []string{"SRR1", "SRR2", "SRR3"})
	if err != nil {
		t.Fatalf("ProcessAll: %v", err)
	}
	if summary.Converted != 2 || summary.FetchFailed != 1 {
		t.Errorf("summary = %+v", summary)
	}
	if fx.fake.Contains("SRR2.sra") {
		t.Error("conversion attempted for a failed fetch")
	}
	if !strings.Contains(fx.channel(t, logging.DownloadFailure), "Failed to download SRR2.") {
		t.Error("download_failure.log missing SRR2")
	}
	if got := fx.tracker.samples["SRR2"]; got != models.FetchFailed {
		t.Errorf("SRR2 outcome = %s, want FETCH_FAILED", got)
	}
}

func TestConvertFailureKeepsRawDownload(t *testing.T) {
	fx := newDownloadFixture(t, 1, func(name string, _ []string) bool {
		return name == "fastq-dump"
	})

	summary, err := fx.d.ProcessAll(context.Background(), []string{"SRR1"})
	if err != nil {
		t.Fatalf("ProcessAll: %v", err)
	}
	if summary.ConvertFailed != 1 {
		t.Errorf("summary = %+v", summary)
	}
	if _, err := os.Stat(filepath.Join(fx.dir, "sra_files", "SRR1", "SRR1.sra")); err != nil {
		t.Errorf("raw archive removed after failed conversion: %v", err)
	}
	if !strings.Contains(fx.channel(t, logging.ConversionFailure), "Failed to convert SRR1 to FASTQ.") {
		t.Error("conversion_failure.log missing SRR1")
	}
	if !strings.Contains(fx.channel(t, logging.DownloadSuccess), "Downloaded SRR1 successfully.") {
		t.Error("download_success.log missing SRR1")
	}
}

func TestProcessAllBoundsConcurrency(t *testing.T) {
	const workers, total = 4, 25
	var inFlight, peak int64
	fx := newDownloadFixture(t, workers, func(name string, _ []string) bool {
		if name == "prefetch" {
			n := atomic.AddInt64(&inFlight, 1)
			for {
				p := atomic.LoadInt64(&peak)
				if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt64(&inFlight, -1)
		}
		return false
	})

	ids := make([]string, total)
	for i := range ids {
		ids[i] = fmt.Sprintf("SRR%d", i+1)
	}
	summary, err := fx.d.ProcessAll(context.Background(), ids)
	if err != nil {
		t.Fatalf("ProcessAll: %v", err)
	}
	if summary.Converted != total {
		t.Errorf("converted = %d, want %d", summary.Converted, total)
	}
	if got := len(fx.fake.CallsTo("prefetch")); got != total {
		t.Errorf("prefetch called %d times, want %d", got, total)
	}
	if got := len(fx.fake.CallsTo("fastq-dump")); got != total {
		t.Errorf("fastq-dump called %d times, want %d", got, total)
	}
	if peak > workers {
		t.Errorf("peak concurrency = %d, want <= %d", peak, workers)
	}

	stream := fx.channel(t, logging.Stream)
	for i := 1; i <= total; i++ {
		marker := fmt.Sprintf("Completed processing %d/%d ", i, total)
		if n := strings.Count(stream, marker); n != 1 {
			t.Errorf("progress %d/%d logged %d times", i, total, n)
		}
	}
}

func TestProcessListErrors(t *testing.T) {
	t.Run("missing list", func(t *testing.T) {
		fx := newDownloadFixture(t, 1, nil)
		if _, err := fx.d.ProcessList(context.Background()); err == nil {
			t.Fatal("expected error for missing list")
		}
		if len(fx.fake.Calls()) != 0 {
			t.Error("no tool should run without a list")
		}
	})
	t.Run("empty list", func(t *testing.T) {
		fx := newDownloadFixture(t, 1, nil)
		if err := os.WriteFile(fx.d.config.ListPath, []byte("\n  \n"), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := fx.d.ProcessList(context.Background()); !errors.Is(err, ErrEmptyList) {
			t.Fatalf("err = %v, want ErrEmptyList", err)
		}
	})
}

func TestProcessListSkipsBlanksAndDuplicates(t *testing.T) {
	fx := newDownloadFixture(t, 3, nil)
	if err := os.WriteFile(fx.d.config.ListPath, []byte("SRR1\n\n  SRR1  \nSRR2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	summary, err := fx.d.ProcessList(context.Background())
	if err != nil {
		t.Fatalf("ProcessList: %v", err)
	}
	if summary.Total != 2 {
		t.Errorf("total = %d, want 2", summary.Total)
	}
	if got := len(fx.fake.CallsTo("prefetch")); got != 2 {
		t.Errorf("prefetch called %d times, want 2", got)
	}
}

func TestCompletionCounter(t *testing.T) {
	const n = 100
	c := NewCompletionCounter(n)
	seen := make([]int, n+1)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Complete(func(completed, total int) {
				mu.Lock()
				seen[completed]++
				mu.Unlock()
			})
		}()
	}
	wg.Wait()

	if c.Completed() != n {
		t.Fatalf("Completed() = %d, want %d", c.Completed(), n)
	}
	for i := 1; i <= n; i++ {
		if seen[i] != 1 {
			t.Errorf("value %d reported %d times", i, seen[i])
		}
	}
}
