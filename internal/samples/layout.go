package samples

import (
	"fmt"
	"path/filepath"
)

// RawDir is where the fetch tool leaves the download for id.
func RawDir(downloadDir, id string) string {
	return filepath.Join(downloadDir, id)
}

// RawArchive is the downloaded run archive for id.
func RawArchive(downloadDir, id string) string {
	return filepath.Join(downloadDir, id, id+".sra")
}

// ConvertedPair returns the split read files produced by conversion.
func ConvertedPair(fastqDir, id string) (forward, reverse string) {
	return filepath.Join(fastqDir, fmt.Sprintf("%s_1.fastq", id)),
		filepath.Join(fastqDir, fmt.Sprintf("%s_2.fastq", id))
}

// TrimmedPair returns the validated read files produced by trimming.
func TrimmedPair(trimmedDir, id string) (forward, reverse string) {
	return filepath.Join(trimmedDir, fmt.Sprintf("%s_1_val_1.fq", id)),
		filepath.Join(trimmedDir, fmt.Sprintf("%s_2_val_2.fq", id))
}

// MergedFile is the merged read file for id.
func MergedFile(mergedDir, id string) string {
	return filepath.Join(mergedDir, id+".merged_file.fq")
}
