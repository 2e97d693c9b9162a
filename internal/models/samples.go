package models

// ReadCountRecord holds the reconciled counts for one sample. Counts are
// records, not lines.
type ReadCountRecord struct {
	SampleID     string
	ForwardCount int
	ReverseCount int
	Count        int
	// Paired is false when only one mate file was observed.
	Paired bool
}

// MergeResult is produced once per filtered sample by the merge step.
type MergeResult struct {
	SampleID   string
	MergedFile string
	OK         bool
}
