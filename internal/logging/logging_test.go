package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestFormatElapsed(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0h 00m 00s 000000000ns"},
		{1500 * time.Millisecond, "0h 00m 01s 500000000ns"},
		{time.Hour + 2*time.Minute + 3*time.Second + 4, "1h 02m 03s 000000004ns"},
		{-time.Second, "0h 00m 00s 000000000ns"},
	}
	for _, tt := range tests {
		if got := FormatElapsed(tt.d); got != tt.want {
			t.Errorf("FormatElapsed(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestTimedReportsOnEveryExit(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	fails := func() (err error) {
		defer Timed(logger, "fails")()
		return os.ErrNotExist
	}
	_ = fails()

	if !strings.Contains(buf.String(), "function=fails") {
		t.Errorf("timer did not report: %s", buf.String())
	}
}

func TestChannelsAppendPerFile(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer

	ch, err := Open(dir, &console)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ch.Get(DownloadSuccess).Info("Downloaded SRR1 successfully.")
	ch.Console(Stream).Info("progress")
	if ch.Get(DownloadSuccess) != ch.Get(DownloadSuccess) {
		t.Error("Get should return the same logger for a channel")
	}
	if err := ch.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// A second Open appends rather than truncates.
	ch, err = Open(dir, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	ch.Get(DownloadSuccess).Info("Downloaded SRR2 successfully.")
	ch.Close()

	data, err := os.ReadFile(filepath.Join(dir, "download_success.log"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got := strings.Count(string(data), "\n"); got != 2 {
		t.Errorf("download_success.log has %d lines, want 2:\n%s", got, data)
	}
	if strings.Contains(console.String(), "SRR1") {
		t.Error("file-only channel leaked to console")
	}
	if !strings.Contains(console.String(), "progress") {
		t.Error("console channel not echoed")
	}
}

func TestChannelsConcurrentWritesDoNotInterleave(t *testing.T) {
	dir := t.TempDir()
	ch, err := Open(dir, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	logger := ch.Get(DownloadFailure)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Error("Failed to download", "id", "SRR")
		}()
	}
	wg.Wait()
	ch.Close()

	data, _ := os.ReadFile(filepath.Join(dir, "download_failure.log"))
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 50 {
		t.Fatalf("got %d lines, want 50", len(lines))
	}
	for _, l := range lines {
		if !strings.HasPrefix(l, "time=") || !strings.HasSuffix(l, "id=SRR") {
			t.Errorf("interleaved line: %q", l)
		}
	}
}

func TestDiscard(t *testing.T) {
	ch := Discard()
	ch.Get(Stream).Info("dropped")
	if err := ch.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestChannelsConsoleAfterFileOnly(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer

	ch, err := Open(dir, &console)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ch.Get(Stream).Info("file only")
	ch.Console(Stream).Info("echoed")
	if err := ch.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if strings.Contains(console.String(), "file only") {
		t.Error("file-only record reached the console")
	}
	if !strings.Contains(console.String(), "echoed") {
		t.Error("console record lost after the channel was first opened file-only")
	}
	data, err := os.ReadFile(filepath.Join(dir, "stream.log"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got := strings.Count(string(data), "\n"); got != 2 {
		t.Errorf("stream.log has %d lines, want 2:\n%s", got, data)
	}
}
