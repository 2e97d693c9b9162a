package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	executions "cloud.google.com/go/workflows/executions/apiv1"
	"cloud.google.com/go/workflows/executions/apiv1/executionspb"
	"github.com/google/uuid"

	"github.com/Lllllllleong/metagenomeflow/internal/gcp"
	"github.com/Lllllllleong/metagenomeflow/internal/models"
	"github.com/Lllllllleong/metagenomeflow/internal/samples"
)

type IntakeConfig struct {
	ProjectID        string
	CollectionName   string
	WorkflowID       string
	WorkflowLocation string
}

// IntakeFunction turns an uploaded sample list into a queued batch.
type IntakeFunction struct {
	storageClient    *storage.Client
	firestoreClient  *firestore.Client
	executionsClient *executions.Client
	config           IntakeConfig
}

func NewIntake(ctx context.Context) (*IntakeFunction, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}

	config := IntakeConfig{
		ProjectID:        projectID,
		CollectionName:   gcp.GetEnv("BATCH_COLLECTION", "batches"),
		WorkflowLocation: gcp.GetEnv("WORKFLOW_LOCATION", "us-central1"),
		WorkflowID:       gcp.GetEnv("WORKFLOW_ID", "metagenome-pipeline"),
	}

	firestoreClient, err := gcp.NewFirestoreClient(ctx, config.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Storage client: %w", err)
	}
	executionsClient, err := executions.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Workflows Executions client: %w", err)
	}

	slog.Info("List intake logic initialized.", "workflowId", config.WorkflowID)
	return &IntakeFunction{
		storageClient:    storageClient,
		firestoreClient:  firestoreClient,
		executionsClient: executionsClient,
		config:           config,
	}, nil
}

func (f *IntakeFunction) Process(ctx context.Context, e models.GCSEvent) error {
	logCtx := slog.With("gcsBucket", e.Bucket, "gcsObject", e.Name)
	logCtx.Info("Processing new sample list.")

	tempDir, err := os.MkdirTemp("", "list-intake-*")
	if err != nil {
		return fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	listPath := filepath.Join(tempDir, "list.txt")
	if err := gcp.StreamObjectToFile(ctx, f.storageClient, e.Bucket, e.Name, listPath); err != nil {
		logCtx.Error("Failed to download sample list", "error", err)
		return err
	}

	listHash, err := calculateFileHash(listPath)
	if err != nil {
		logCtx.Error("Failed to calculate list hash", "error", err)
		return fmt.Errorf("failed to calculate list hash: %w", err)
	}
	logCtx = logCtx.With("listHash", listHash)

	isDuplicate, batchID, err := f.isDuplicate(ctx, listHash)
	if err != nil {
		logCtx.Error("Failed to check for duplicate", "error", err)
		return err
	}
	if isDuplicate {
		logCtx.Info("Duplicate list detected. Skipping.", "existingBatchId", batchID)
		return nil
	}

	listURI := fmt.Sprintf("gs://%s/%s", e.Bucket, e.Name)
	docRef, err := f.createBatch(ctx, listHash, listURI)
	if err != nil {
		logCtx.Error("Failed to create batch document", "error", err)
		return err
	}
	logCtx = logCtx.With("batchId", docRef.ID)
	logCtx.Info("Created batch document in Firestore.")

	sampleCount, err := f.validateList(ctx, logCtx, docRef, listPath)
	if err != nil {
		return err
	}

	if err := f.triggerWorkflow(ctx, logCtx, docRef, listURI, sampleCount); err != nil {
		return err
	}

	logCtx.Info("Hand-off to workflow complete.", "sampleCount", sampleCount)
	return nil
}

func (f *IntakeFunction) isDuplicate(ctx context.Context, listHash string) (bool, string, error) {
	docs, err := f.firestoreClient.Collection(f.config.CollectionName).Where("listHash", "==", listHash).Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return false, "", fmt.Errorf("failed to query for duplicates: %w", err)
	}
	if len(docs) > 0 {
		return true, docs[0].Ref.ID, nil
	}
	return false, "", nil
}

func (f *IntakeFunction) createBatch(ctx context.Context, listHash, listURI string) (*firestore.DocumentRef, error) {
	now := time.Now()
	batch := models.Batch{
		ListHash:  listHash,
		ListURI:   listURI,
		Status:    models.StatusValidating,
		CreatedAt: now,
		UpdatedAt: now,
	}
	docRef := f.firestoreClient.Collection(f.config.CollectionName).Doc(uuid.NewString())
	if _, err := docRef.Create(ctx, batch); err != nil {
		return nil, fmt.Errorf("failed to create batch document: %w", err)
	}
	return docRef, nil
}

// validateList checks the list holds at least one identifier and queues the batch.
func (f *IntakeFunction) validateList(ctx context.Context, logCtx *slog.Logger, docRef *firestore.DocumentRef, listPath string) (int, error) {
	file, err := os.Open(listPath)
	if err != nil {
		return 0, f.handleError(ctx, logCtx, docRef, "failed to open sample list", err)
	}
	defer file.Close()

	ids, duplicates, err := samples.ReadIdentifiers(file)
	if err != nil {
		return 0, f.handleError(ctx, logCtx, docRef, "failed to parse sample list", err)
	}
	if len(ids) == 0 {
		return 0, f.handleError(ctx, logCtx, docRef, "sample list rejected", ErrEmptyList)
	}
	if len(duplicates) > 0 {
		logCtx.Warn("Duplicate identifiers in list.", "duplicates", duplicates)
	}

	updates := []firestore.Update{
		{Path: "status", Value: models.StatusQueued},
		{Path: "sampleCount", Value: len(ids)},
		{Path: "updatedAt", Value: time.Now()},
	}
	if _, err := docRef.Update(ctx, updates); err != nil {
		return 0, f.handleError(ctx, logCtx, docRef, "failed to update status to QUEUED", err)
	}
	return len(ids), nil
}

func (f *IntakeFunction) triggerWorkflow(ctx context.Context, logCtx *slog.Logger, docRef *firestore.DocumentRef, listURI string, sampleCount int) error {
	logCtx.Info("Triggering workflow.")
	payload, err := json.Marshal(models.PipelineExecutionArgument{
		BatchID:     docRef.ID,
		ListURI:     listURI,
		SampleCount: sampleCount,
	})
	if err != nil {
		return f.handleError(ctx, logCtx, docRef, "failed to marshal workflow payload", err)
	}
	req := &executionspb.CreateExecutionRequest{
		Parent: fmt.Sprintf("projects/%s/locations/%s/workflows/%s", f.config.ProjectID, f.config.WorkflowLocation, f.config.WorkflowID),
		Execution: &executionspb.Execution{
			Argument: string(payload),
		},
	}
	execution, err := f.executionsClient.CreateExecution(ctx, req)
	if err != nil {
		return f.handleError(ctx, logCtx, docRef, "failed to trigger workflow execution", err)
	}
	if _, err := docRef.Update(ctx, []firestore.Update{{Path: "workflowExecutionId", Value: execution.GetName()}}); err != nil {
		logCtx.Warn("Failed to record workflow execution id.", "error", err)
	}
	return nil
}

func (f *IntakeFunction) handleError(ctx context.Context, logCtx *slog.Logger, docRef *firestore.DocumentRef, message string, originalErr error) error {
	fullError := fmt.Errorf("%s: %w", message, originalErr)
	logCtx.Error(message, "error", originalErr)
	updates := []firestore.Update{
		{Path: "status", Value: models.StatusFailed},
		{Path: "errorDetails", Value: fullError.Error()},
		{Path: "updatedAt", Value: time.Now()},
	}
	if _, err := docRef.Update(ctx, updates); err != nil {
		logCtx.Error("CRITICAL: Failed to update Firestore status to FAILED after a processing error.", "updateError", err)
	}
	return fullError
}

func calculateFileHash(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()
	return hashReader(file)
}

func hashReader(r io.Reader) (string, error) {
	hash := sha256.New()
	if _, err := io.Copy(hash, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
