package models

import "time"

// Batch status values, in the order a batch normally moves through them.
const (
	StatusValidating  = "VALIDATING"
	StatusQueued      = "QUEUED"
	StatusDownloading = "DOWNLOADING"
	StatusTrimming    = "TRIMMING"
	StatusReconciled  = "RECONCILED"
	StatusMerging     = "MERGING"
	StatusPipeline    = "PIPELINE"
	StatusDone        = "DONE"
	StatusFailed      = "FAILED"
)

// Batch represents the main record for one sample-list run in Firestore.
// It tracks the overall status and the headline counts of the run.
type Batch struct {
	ListHash            string    `firestore:"listHash,omitempty"`
	ListURI             string    `firestore:"listUri,omitempty"`
	Status              string    `firestore:"status,omitempty"`
	ErrorDetails        string    `firestore:"errorDetails,omitempty"`
	SampleCount         int       `firestore:"sampleCount,omitempty"`
	ReconciledCount     int       `firestore:"reconciledCount,omitempty"`
	FilteredCount       int       `firestore:"filteredCount,omitempty"`
	WorkflowExecutionID string    `firestore:"workflowExecutionId,omitempty"` // For traceability
	CreatedAt           time.Time `firestore:"createdAt,omitempty"`
	UpdatedAt           time.Time `firestore:"updatedAt,omitempty"`
}

// SampleRecord is the per-identifier entry stored under a batch.
type SampleRecord struct {
	SampleID  string    `firestore:"sampleId"`
	Outcome   string    `firestore:"outcome"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}
