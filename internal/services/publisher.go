package services

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sync/atomic"
	"time"

	"cloud.google.com/go/storage"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/iterator"

	"github.com/Lllllllleong/metagenomeflow/internal/gcp"
)

// PublisherConfig holds configuration for the results publisher.
type PublisherConfig struct {
	Bucket  string
	Prefix  string
	Workers int
}

// Publisher copies a finished batch's pipeline output to Cloud Storage.
type Publisher struct {
	storageClient *storage.Client
	config        PublisherConfig
}

// NewPublisher creates a Publisher writing under gs://bucket/prefix/.
func NewPublisher(ctx context.Context, config PublisherConfig) (*Publisher, error) {
	if config.Bucket == "" {
		return nil, fmt.Errorf("RESULTS_BUCKET must be set to publish results")
	}
	if config.Workers < 1 {
		config.Workers = 10
	}
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &Publisher{storageClient: storageClient, config: config}, nil
}

// Publish uploads every regular file under dir. Objects already present
// under the prefix are skipped, so a rerun only uploads what is missing.
// It returns the number of files uploaded, also when some uploads failed.
func (p *Publisher) Publish(ctx context.Context, dir string) (int, error) {
	logCtx := slog.With("bucket", p.config.Bucket, "prefix", p.config.Prefix)
	logCtx.Info("Starting results upload.", "dir", dir)

	existing, err := p.existingObjects(ctx)
	if err != nil {
		return 0, err
	}

	uploads, err := pendingUploads(dir, p.config.Prefix, existing)
	if err != nil {
		return 0, err
	}
	logCtx.Info("Found files to upload.", "fileCount", len(uploads), "alreadyPresent", len(existing))

	uploaded, err := uploadAll(ctx, uploads, p.config.Workers, p.uploadFile)
	if err != nil {
		logCtx.Error("One or more result files failed to upload", "error", err, "uploaded", uploaded)
		return uploaded, err
	}
	logCtx.Info("All result files uploaded successfully.", "uploaded", uploaded)
	return uploaded, nil
}

// uploadAll runs upload for every local path with at most workers in
// flight and returns how many uploads succeeded along with the first error.
func uploadAll(ctx context.Context, uploads map[string]string, workers int, upload func(ctx context.Context, localPath, object string) error) (int, error) {
	var uploaded atomic.Int64
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for localPath, object := range uploads {
		eg.Go(func() error {
			if err := upload(gctx, localPath, object); err != nil {
				return fmt.Errorf("%s: %w", localPath, err)
			}
			uploaded.Add(1)
			return nil
		})
	}
	err := eg.Wait()
	return int(uploaded.Load()), err
}

func (p *Publisher) existingObjects(ctx context.Context) (map[string]bool, error) {
	query := &storage.Query{Prefix: p.config.Prefix + "/"}
	it := p.storageClient.Bucket(p.config.Bucket).Objects(ctx, query)

	existing := map[string]bool{}
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list published results: %w", err)
		}
		existing[attrs.Name] = true
	}
	return existing, nil
}

// pendingUploads maps each regular file under dir to its object name,
// leaving out objects already present.
func pendingUploads(dir, prefix string, existing map[string]bool) (map[string]string, error) {
	uploads := map[string]string{}
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		object, err := objectName(dir, prefix, p)
		if err != nil {
			return err
		}
		if !existing[object] {
			uploads[p] = object
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", dir, err)
	}
	return uploads, nil
}

// objectName maps a local file under root to prefix/<relative path>.
func objectName(root, prefix, localPath string) (string, error) {
	rel, err := filepath.Rel(root, localPath)
	if err != nil {
		return "", err
	}
	return path.Join(prefix, filepath.ToSlash(rel)), nil
}

func (p *Publisher) uploadFile(ctx context.Context, localPath, destObject string) error {
	const maxRetries = 4
	var backoff = 1 * time.Second
	var lastErr error

	bucket := p.storageClient.Bucket(p.config.Bucket)
	for i := 0; i < maxRetries; i++ {
		err := func() error {
			file, err := os.Open(localPath)
			if err != nil {
				return fmt.Errorf("could not open local file %s: %w", localPath, err)
			}
			defer file.Close()

			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
			defer cancel()
			return gcp.SaveToGCSAtomically(writeCtx, bucket, destObject, file)
		}()
		if err == nil {
			return nil
		}

		lastErr = err
		slog.Warn(
			"Upload failed, will retry.",
			"gcsObject", destObject,
			"attempt", i+1,
			"maxRetries", maxRetries,
			"backoff", backoff.String(),
			"error", err,
		)

		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			slog.Error("Context cancelled during backoff. Aborting retries.", "gcsObject", destObject, "error", ctx.Err())
			return ctx.Err()
		}
	}
	return fmt.Errorf("upload for %s failed after all retries: %w", destObject, lastErr)
}

// Close releases the storage client.
func (p *Publisher) Close() error {
	return p.storageClient.Close()
}
