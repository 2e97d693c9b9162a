// Package manifest writes and reads the two inputs of the abundance
// pipeline: the metadata table and the sequence list.
package manifest

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// MetadataHeader is the first line of every metadata table.
const MetadataHeader = "subject_id"

// Entry is one line of the sequence list.
type Entry struct {
	SampleID   string
	MergedFile string
}

// Writer appends samples to both artifacts as they complete. Each Append
// reaches the files before it returns.
type Writer struct {
	meta *os.File
	seqs *os.File
}

// Create truncates both files and writes the metadata header.
func Create(metaPath, seqsPath string) (*Writer, error) {
	meta, err := os.Create(metaPath)
	if err != nil {
		return nil, fmt.Errorf("create metadata table: %w", err)
	}
	seqs, err := os.Create(seqsPath)
	if err != nil {
		meta.Close()
		return nil, fmt.Errorf("create sequence list: %w", err)
	}
	if _, err := fmt.Fprintln(meta, MetadataHeader); err != nil {
		meta.Close()
		seqs.Close()
		return nil, fmt.Errorf("write metadata header: %w", err)
	}
	return &Writer{meta: meta, seqs: seqs}, nil
}

// Append records one merged sample.
func (w *Writer) Append(sampleID, mergedFile string) error {
	if strings.ContainsAny(sampleID, " \t\n") {
		return fmt.Errorf("sample id %q contains whitespace", sampleID)
	}
	if _, err := fmt.Fprintln(w.meta, sampleID); err != nil {
		return fmt.Errorf("append %s to metadata table: %w", sampleID, err)
	}
	if _, err := fmt.Fprintf(w.seqs, "%s %s\n", sampleID, mergedFile); err != nil {
		return fmt.Errorf("append %s to sequence list: %w", sampleID, err)
	}
	return nil
}

// Close closes both files.
func (w *Writer) Close() error {
	return errors.Join(w.meta.Close(), w.seqs.Close())
}

// ReadMetadata returns the sample IDs of a metadata table in file order.
func ReadMetadata(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read metadata table: %w", err)
		}
		return nil, fmt.Errorf("read metadata table: missing %q header", MetadataHeader)
	}
	if h := strings.TrimSpace(scanner.Text()); h != MetadataHeader {
		return nil, fmt.Errorf("read metadata table: header is %q, want %q", h, MetadataHeader)
	}

	var ids []string
	for scanner.Scan() {
		if id := strings.TrimSpace(scanner.Text()); id != "" {
			ids = append(ids, id)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read metadata table: %w", err)
	}
	return ids, nil
}

// ReadSequenceList parses "{sample_id} {merged_file}" lines in file order.
func ReadSequenceList(r io.Reader) ([]Entry, error) {
	var entries []Entry
	scanner := bufio.NewScanner(r)
	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(text) == "" {
			continue
		}
		id, path, ok := strings.Cut(text, " ")
		if !ok || id == "" || path == "" {
			return nil, fmt.Errorf("read sequence list: line %d: malformed entry %q", line, text)
		}
		entries = append(entries, Entry{SampleID: id, MergedFile: path})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read sequence list: %w", err)
	}
	return entries, nil
}
