package services

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	gzip "github.com/klauspost/pgzip"

	"github.com/Lllllllleong/metagenomeflow/internal/runner"
)

// LineCount is the number of newline characters in one file.
type LineCount struct {
	Path  string
	Lines int
}

// LineCounter counts lines in a set of files. Results follow the order of paths.
type LineCounter interface {
	CountLines(ctx context.Context, paths []string) ([]LineCount, error)
}

// WCCounter shells out to wc once for all files.
type WCCounter struct {
	Runner  runner.Runner
	Program string
}

func (c WCCounter) CountLines(ctx context.Context, paths []string) ([]LineCount, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	program := c.Program
	if program == "" {
		program = "wc"
	}
	out, ok := c.Runner.Output(ctx, program, append([]string{"-l"}, paths...)...)
	if !ok {
		return nil, fmt.Errorf("line count failed for %d files", len(paths))
	}
	return ParseLineCounts(out, len(paths))
}

// ParseLineCounts parses wc -l output for n files. wc appends a total line
// only when given more than one file; it is dropped here.
func ParseLineCounts(out string, n int) ([]LineCount, error) {
	var counts []LineCount
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		num, path, found := strings.Cut(line, " ")
		if !found {
			return nil, fmt.Errorf("malformed line count %q", line)
		}
		lines, err := strconv.Atoi(num)
		if err != nil {
			return nil, fmt.Errorf("malformed line count %q: %w", line, err)
		}
		counts = append(counts, LineCount{Path: strings.TrimSpace(path), Lines: lines})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if n > 1 && len(counts) == n+1 {
		counts = counts[:n]
	}
	if len(counts) != n {
		return nil, fmt.Errorf("expected %d line counts, got %d", n, len(counts))
	}
	return counts, nil
}

// NativeCounter counts lines in-process. Files ending in .gz are
// decompressed first.
type NativeCounter struct{}

func (NativeCounter) CountLines(ctx context.Context, paths []string) ([]LineCount, error) {
	counts := make([]LineCount, 0, len(paths))
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := countFileLines(p)
		if err != nil {
			return nil, err
		}
		counts = append(counts, LineCount{Path: p, Lines: n})
	}
	return counts, nil
}

func countFileLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		zr, err := gzip.NewReader(f)
		if err != nil {
			return 0, fmt.Errorf("failed to open gzip stream %s: %w", path, err)
		}
		defer zr.Close()
		r = zr
	}

	buf := make([]byte, 64*1024)
	lines := 0
	for {
		n, err := r.Read(buf)
		lines += bytes.Count(buf[:n], []byte{'\n'})
		if err == io.EOF {
			return lines, nil
		}
		if err != nil {
			return 0, fmt.Errorf("failed to read %s: %w", path, err)
		}
	}
}
