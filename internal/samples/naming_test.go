package samples

import (
	"reflect"
	"strings"
	"testing"
)

func TestParseReadFile(t *testing.T) {
	tests := []struct {
		path string
		want ReadFile
		ok   bool
	}{
		{"SRR1_1_val_1.fq", ReadFile{"SRR1", "1"}, true},
		{"SRR1_2_val_2.fq", ReadFile{"SRR1", "2"}, true},
		{"output/trimmed_fastq_files/ERR77_2_val_2.fq", ReadFile{"ERR77", "2"}, true},
		{"SRR9_1.fastq", ReadFile{"SRR9", "1"}, true},
		// Only the bare file name counts, not underscores in directories.
		{"runs/a_b/SRR5_1.fq", ReadFile{"SRR5", "1"}, true},
		// Hyphens are part of the sample token here.
		{"kit-7_1_val_1.fq", ReadFile{"kit-7", "1"}, true},
		{"SRR3_unpaired.fq", ReadFile{"SRR3", ""}, true},
		{"noseparator.fq", ReadFile{}, false},
		{"_1.fq", ReadFile{}, false},
	}
	for _, tt := range tests {
		got, ok := ParseReadFile(tt.path)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ParseReadFile(%q) = %+v, %v; want %+v, %v", tt.path, got, ok, tt.want, tt.ok)
		}
	}
}

func TestRunPrefix(t *testing.T) {
	tests := map[string]string{
		"SRR1_1.fastq":             "SRR1",
		"fastq_files/SRR1_2.fastq": "SRR1",
		"kit-7_1.fastq":            "kit",
		"plain.fastq":              "plain",
	}
	for in, want := range tests {
		if got := RunPrefix(in); got != want {
			t.Errorf("RunPrefix(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestReadIdentifiers(t *testing.T) {
	in := "SRR1\n  SRR2 \r\n\nSRR1\nSRR3\n"
	ids, dups, err := ReadIdentifiers(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ReadIdentifiers: %v", err)
	}
	if want := []string{"SRR1", "SRR2", "SRR3"}; !reflect.DeepEqual(ids, want) {
		t.Errorf("ids = %v, want %v", ids, want)
	}
	if want := []string{"SRR1"}; !reflect.DeepEqual(dups, want) {
		t.Errorf("duplicates = %v, want %v", dups, want)
	}
}

func TestLayout(t *testing.T) {
	if got := RawArchive("dl", "SRR1"); got != "dl/SRR1/SRR1.sra" {
		t.Errorf("RawArchive = %q", got)
	}
	f, r := TrimmedPair("trim", "SRR1")
	if f != "trim/SRR1_1_val_1.fq" || r != "trim/SRR1_2_val_2.fq" {
		t.Errorf("TrimmedPair = %q, %q", f, r)
	}
	if got := MergedFile("merged", "SRR1"); got != "merged/SRR1.merged_file.fq" {
		t.Errorf("MergedFile = %q", got)
	}
	// Trimmed files parse back to their sample.
	if rf, ok := ParseReadFile(r); !ok || rf.SampleID != "SRR1" || rf.Mate != "2" {
		t.Errorf("ParseReadFile(%q) = %+v, %v", r, rf, ok)
	}
}
