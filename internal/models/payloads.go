package models

// These structs define the JSON payloads exchanged between the list-intake
// function and the Cloud Workflow that drives the pipeline.

// PipelineExecutionArgument is the argument passed to the pipeline workflow.
type PipelineExecutionArgument struct {
	BatchID     string `json:"batchId"`
	ListURI     string `json:"listUri"`
	SampleCount int    `json:"sampleCount"`
}

// GCSEvent is the payload of a GCS object-finalized event.
type GCSEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}
