package gcp

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"

	"github.com/Lllllllleong/metagenomeflow/internal/models"
)

// newEmulatorTracker connects to the Firestore emulator named by
// FIRESTORE_EMULATOR_HOST and skips the test when it is not set.
func newEmulatorTracker(t *testing.T) *BatchTracker {
	t.Helper()
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	client, err := NewFirestoreClient(context.Background(), "metagenomeflow-test")
	if err != nil {
		t.Fatalf("NewFirestoreClient: %v", err)
	}
	tracker := NewBatchTracker(client, "batches-"+uuid.NewString(), uuid.NewString())
	t.Cleanup(func() { tracker.Close() })
	return tracker
}

func TestBatchTrackerMergesStatus(t *testing.T) {
	ctx := context.Background()
	tracker := newEmulatorTracker(t)

	if err := tracker.SetStatus(ctx, models.StatusDownloading, map[string]interface{}{"sampleCount": 3}); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if err := tracker.SetStatus(ctx, models.StatusReconciled, map[string]interface{}{"filteredCount": 2}); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}

	snap, err := tracker.doc.Get(ctx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	var batch models.Batch
	if err := snap.DataTo(&batch); err != nil {
		t.Fatalf("DataTo: %v", err)
	}
	if batch.Status != models.StatusReconciled {
		t.Errorf("status = %s, want %s", batch.Status, models.StatusReconciled)
	}
	if batch.SampleCount != 3 || batch.FilteredCount != 2 {
		t.Errorf("counts = %d/%d, want earlier fields kept by the merge", batch.SampleCount, batch.FilteredCount)
	}
	if batch.UpdatedAt.IsZero() {
		t.Error("updatedAt not set")
	}
}

func TestBatchTrackerRecordsSamples(t *testing.T) {
	ctx := context.Background()
	tracker := newEmulatorTracker(t)

	if err := tracker.RecordSample(ctx, "SRR1", models.Converted); err != nil {
		t.Fatalf("RecordSample: %v", err)
	}
	if err := tracker.RecordSample(ctx, "SRR2", models.FetchFailed); err != nil {
		t.Fatalf("RecordSample: %v", err)
	}
	// A second record for the same sample replaces the first.
	if err := tracker.RecordSample(ctx, "SRR2", models.FetchFailed); err != nil {
		t.Fatalf("RecordSample: %v", err)
	}

	docs, err := tracker.doc.Collection("samples").Documents(ctx).GetAll()
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	got := map[string]string{}
	for _, d := range docs {
		var rec models.SampleRecord
		if err := d.DataTo(&rec); err != nil {
			t.Fatalf("DataTo: %v", err)
		}
		got[rec.SampleID] = rec.Outcome
	}
	want := map[string]string{"SRR1": "CONVERTED", "SRR2": "FETCH_FAILED"}
	if len(got) != len(want) || got["SRR1"] != want["SRR1"] || got["SRR2"] != want["SRR2"] {
		t.Errorf("samples = %v, want %v", got, want)
	}
}

func TestNewFirestoreClientRequiresProject(t *testing.T) {
	if _, err := NewFirestoreClient(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty project ID")
	}
}
