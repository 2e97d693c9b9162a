// Package logging provides the per-channel append-only log files used by
// the pipeline services and a scoped timer for long-running steps.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Channel names used across the pipeline.
const (
	DownloadSuccess   = "download_success"
	DownloadFailure   = "download_failure"
	ConversionSuccess = "conversion_success"
	ConversionFailure = "conversion_failure"
	Stream            = "stream"
	TrimGalore        = "trim_galore"
	PMPipeline        = "pm_pipeline"
)

// Channels owns one append-only file per named channel.
type Channels struct {
	dir     string
	console io.Writer

	mu      sync.Mutex
	files   map[string]io.Writer
	loggers map[channelKey]*slog.Logger
}

// A channel can be requested with and without the console copy; both
// loggers share the channel file.
type channelKey struct {
	name    string
	console bool
}

// Open creates dir if needed. console receives a copy of every record
// written to a console channel; pass nil to disable the tee.
func Open(dir string, console io.Writer) (*Channels, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory %s: %w", dir, err)
	}
	return &Channels{dir: dir, console: console, files: map[string]io.Writer{}, loggers: map[channelKey]*slog.Logger{}}, nil
}

// Discard returns Channels whose loggers drop every record. Useful in tests.
func Discard() *Channels {
	return &Channels{files: map[string]io.Writer{}, loggers: map[channelKey]*slog.Logger{}}
}

// Get returns the logger for a file-only channel, opening it on first use.
func (c *Channels) Get(name string) *slog.Logger {
	return c.get(name, false)
}

// Console returns the logger for a channel that is also echoed to the console.
func (c *Channels) Console(name string) *slog.Logger {
	return c.get(name, true)
}

func (c *Channels) get(name string, console bool) *slog.Logger {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := channelKey{name: name, console: console}
	if l, ok := c.loggers[key]; ok {
		return l
	}

	w := c.file(name)
	if console && c.console != nil && c.dir != "" {
		w = io.MultiWriter(w, c.console)
	}
	l := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})).With("channel", name)
	c.loggers[key] = l
	return l
}

// file returns the writer for name, opening the channel file on first use.
// Callers hold c.mu.
func (c *Channels) file(name string) io.Writer {
	if w, ok := c.files[name]; ok {
		return w
	}
	if c.dir == "" {
		c.files[name] = io.Discard
		return io.Discard
	}

	path := filepath.Join(c.dir, name+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		// The channel degrades to the console rather than losing the record entirely.
		slog.Error("Failed to open log channel, falling back to stderr", "channel", name, "path", path, "error", err)
		c.files[name] = os.Stderr
		return os.Stderr
	}
	c.files[name] = f
	return f
}

// Close closes every channel file. Loggers must not be used afterwards.
func (c *Channels) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for name, w := range c.files {
		f, ok := w.(*os.File)
		if !ok || f == os.Stderr {
			continue
		}
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(c.files, name)
	}
	return firstErr
}
