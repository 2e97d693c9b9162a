// Package samples holds the naming conventions that tie sample identifiers
// to files on disk.
//
// A read file's sample ID is the token before the first underscore of its
// bare file name; directories are never consulted, so "runs/a_b/SRR1_1.fq"
// belongs to SRR1. The mate number is the token that follows.
package samples

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"
)

// ReadFile identifies one mate file of a paired sample.
type ReadFile struct {
	SampleID string
	// Mate is "1" or "2" when the name carries it, empty otherwise.
	Mate string
}

// ParseReadFile extracts the sample ID and mate from a read file path.
// It reports false for names without an underscore-separated sample token.
func ParseReadFile(path string) (ReadFile, bool) {
	base := filepath.Base(path)
	idx := strings.IndexByte(base, '_')
	if idx <= 0 {
		return ReadFile{}, false
	}
	rf := ReadFile{SampleID: base[:idx]}

	rest := base[idx+1:]
	if end := strings.IndexAny(rest, "_."); end >= 0 {
		rest = rest[:end]
	}
	if rest == "1" || rest == "2" {
		rf.Mate = rest
	}
	return rf, true
}

var prefixSeparator = regexp.MustCompile(`[-_]`)

// RunPrefix returns the run prefix of a converted read file: the stem
// (extension removed) split on '-' or '_', first token. Used to find the
// units of work for trimming.
func RunPrefix(path string) string {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return prefixSeparator.Split(stem, 2)[0]
}

// ReadIdentifiers parses a newline-delimited identifier list. Surrounding
// whitespace and blank lines are ignored; repeated identifiers keep their
// first position and are returned separately in duplicates.
func ReadIdentifiers(r io.Reader) (ids, duplicates []string, err error) {
	seen := map[string]bool{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		id := strings.TrimSpace(scanner.Text())
		if id == "" {
			continue
		}
		if seen[id] {
			duplicates = append(duplicates, id)
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("read identifier list: %w", err)
	}
	return ids, duplicates, nil
}
