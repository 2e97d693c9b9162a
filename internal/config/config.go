// Package config loads pipeline settings from the environment.
package config

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/Lllllllleong/metagenomeflow/internal/gcp"
)

// Tools holds the paths of the external executables the pipeline drives.
type Tools struct {
	Prefetch   string
	FastqDump  string
	TrimGalore string
	WC         string
	Seqkit     string
	Usearch    string
	PMBin      string // directory holding PM-pipeline, PM-predict-func, PM-select-func
}

// Config is the full set of pipeline settings.
type Config struct {
	ListPath  string
	OutputDir string
	LogDir    string

	DownloadDir string
	FastqDir    string
	TrimmedDir  string
	MergedDir   string
	PMOutputDir string

	MetaFile        string
	SeqsListFile    string
	CountLogFile    string
	CountReportFile string
	TrimStatsFile   string

	Workers       int
	MinDepth      int
	TrimQuality   int
	TrimMinLength int
	MergeMaxDiffs int
	MergeMinPctID int
	ReadGlob      string
	LineCounter   string // "wc" or "native"

	Tools       Tools
	ToolTimeout time.Duration

	ProjectID       string
	BatchID         string
	BatchCollection string
	ResultsBucket   string
}

// Load reads the configuration from environment variables, falling back to
// the defaults of the standard on-disk layout.
func Load() (Config, error) {
	cfg := Config{
		ListPath:  gcp.GetEnv("SRA_LIST", filepath.Join("input", "SRA_list.txt")),
		OutputDir: gcp.GetEnv("OUTPUT_DIR", "output"),
		LogDir:    gcp.GetEnv("LOG_DIR", "logs"),
		ReadGlob:  gcp.GetEnv("READ_GLOB", "*.fq"),

		LineCounter: gcp.GetEnv("LINE_COUNTER", "wc"),

		Tools: Tools{
			Prefetch:   gcp.GetEnv("PREFETCH", "prefetch"),
			FastqDump:  gcp.GetEnv("FASTQ_DUMP", "fastq-dump"),
			TrimGalore: gcp.GetEnv("TRIM_GALORE", filepath.Join("third_party", "TrimGalore", "trim_galore")),
			WC:         gcp.GetEnv("WC", "wc"),
			Seqkit:     gcp.GetEnv("SEQKIT", "seqkit"),
			Usearch:    gcp.GetEnv("USEARCH", filepath.Join("third_party", "usearch11.0.667_i86linux32")),
			PMBin:      gcp.GetEnv("PM_BIN", filepath.Join("third_party", "parallel-meta-suite", "bin")),
		},

		ProjectID:       gcp.GetEnv("PROJECT_ID", ""),
		BatchID:         gcp.GetEnv("BATCH_ID", ""),
		BatchCollection: gcp.GetEnv("BATCH_COLLECTION", "batches"),
		ResultsBucket:   gcp.GetEnv("RESULTS_BUCKET", ""),
	}

	ints := []struct {
		key      string
		fallback int
		dst      *int
		min      int
	}{
		{"DOWNLOAD_WORKERS", 10, &cfg.Workers, 1},
		{"MIN_READ_DEPTH", 10000, &cfg.MinDepth, 0},
		{"TRIM_QUALITY", 30, &cfg.TrimQuality, 0},
		{"TRIM_MIN_LENGTH", 50, &cfg.TrimMinLength, 0},
		{"MERGE_MAX_DIFFS", 10, &cfg.MergeMaxDiffs, 0},
		{"MERGE_MIN_PCT_ID", 80, &cfg.MergeMinPctID, 0},
	}
	for _, i := range ints {
		v, err := parseIntEnv(i.key, i.fallback)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", i.key, err)
		}
		if v < i.min {
			return Config{}, fmt.Errorf("parse %s: must be at least %d, got %d", i.key, i.min, v)
		}
		*i.dst = v
	}

	timeout, err := time.ParseDuration(gcp.GetEnv("TOOL_TIMEOUT", "0s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse TOOL_TIMEOUT: %w", err)
	}
	cfg.ToolTimeout = timeout

	switch cfg.LineCounter {
	case "wc", "native":
	default:
		return Config{}, fmt.Errorf("parse LINE_COUNTER: unknown counter %q", cfg.LineCounter)
	}

	cfg.derivePaths()
	return cfg, nil
}

func (cfg *Config) derivePaths() {
	out := cfg.OutputDir
	cfg.DownloadDir = filepath.Join(out, "sra_files")
	cfg.FastqDir = filepath.Join(out, "fastq_files")
	cfg.TrimmedDir = filepath.Join(out, "trimmed_fastq_files")
	cfg.MergedDir = filepath.Join(out, "merged_read")
	cfg.PMOutputDir = filepath.Join(out, "pm_output")
	cfg.MetaFile = filepath.Join(out, "meta.txt")
	cfg.SeqsListFile = filepath.Join(out, "seqs.list")
	cfg.CountLogFile = filepath.Join(out, "fq_word_count.txt")
	cfg.CountReportFile = filepath.Join(out, "read_counts.xlsx")
	cfg.TrimStatsFile = filepath.Join(out, "trim_stats.tsv")
}

func parseIntEnv(key string, fallback int) (int, error) {
	value := gcp.GetEnv(key, "")
	if value == "" {
		return fallback, nil
	}
	return strconv.Atoi(value)
}
