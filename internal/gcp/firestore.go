package gcp

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/Lllllllleong/metagenomeflow/internal/models"
)

// NewFirestoreClient creates and returns a new Firestore client for the given project ID.
// It centralizes client creation for all services.
func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return client, nil
}

// BatchTracker records the progress of one batch in Firestore: the batch
// document holds the status, and a "samples" sub-collection holds one
// record per identifier. Safe for concurrent use.
type BatchTracker struct {
	client *firestore.Client
	doc    *firestore.DocumentRef
}

// NewBatchTracker tracks batches/{batchID} in the given collection.
func NewBatchTracker(client *firestore.Client, collection, batchID string) *BatchTracker {
	return &BatchTracker{
		client: client,
		doc:    client.Collection(collection).Doc(batchID),
	}
}

// SetStatus merges status and any extra fields into the batch document.
func (t *BatchTracker) SetStatus(ctx context.Context, status string, fields map[string]interface{}) error {
	data := map[string]interface{}{
		"status":    status,
		"updatedAt": time.Now(),
	}
	for k, v := range fields {
		data[k] = v
	}
	if _, err := t.doc.Set(ctx, data, firestore.MergeAll); err != nil {
		return fmt.Errorf("failed to update batch %s status to %s: %w", t.doc.ID, status, err)
	}
	return nil
}

// RecordSample stores the final download outcome of one identifier.
func (t *BatchTracker) RecordSample(ctx context.Context, sampleID string, outcome models.Outcome) error {
	record := models.SampleRecord{
		SampleID:  sampleID,
		Outcome:   outcome.String(),
		UpdatedAt: time.Now(),
	}
	if _, err := t.doc.Collection("samples").Doc(sampleID).Set(ctx, record); err != nil {
		return fmt.Errorf("failed to record sample %s: %w", sampleID, err)
	}
	return nil
}

// Close releases the underlying client.
func (t *BatchTracker) Close() error {
	return t.client.Close()
}
