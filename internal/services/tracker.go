package services

import (
	"context"
	"errors"

	"github.com/Lllllllleong/metagenomeflow/internal/models"
)

// Setup failures. These are the only errors allowed to abort a run.
var (
	ErrEmptyList        = errors.New("sample list contains no identifiers")
	ErrMissingDirectory = errors.New("required directory does not exist")
)

// Tracker records batch progress somewhere an operator can see it.
// Implementations must be safe for concurrent use by download workers.
type Tracker interface {
	SetStatus(ctx context.Context, status string, fields map[string]interface{}) error
	RecordSample(ctx context.Context, sampleID string, outcome models.Outcome) error
}

// NopTracker discards all progress updates.
type NopTracker struct{}

func (NopTracker) SetStatus(context.Context, string, map[string]interface{}) error { return nil }

func (NopTracker) RecordSample(context.Context, string, models.Outcome) error { return nil }
