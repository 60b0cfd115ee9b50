package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jkiprotich/medcase-pipeline/internal/models"
	"github.com/jkiprotich/medcase-pipeline/internal/utils"
	"golang.org/x/sync/errgroup"
)

// putAttempts bounds retries per image; unbounded retries would stop the run
// from ever reaching a terminal outcome.
const putAttempts = 2

// Coordinator uploads every converted image through its pre-signed target and
// reassembles the results in source-index order. The extraction stage must
// never see a partial image set, so any post-retry failure fails the stage.
type Coordinator struct {
	issuer      TargetIssuer
	client      *http.Client
	concurrency int
	logger      *utils.Logger
}

func NewCoordinator(issuer TargetIssuer, requestTimeout time.Duration, concurrency int, logger *utils.Logger) *Coordinator {
	if concurrency < 1 {
		concurrency = 1
	}

	return &Coordinator{
		issuer:      issuer,
		client:      &http.Client{Timeout: requestTimeout},
		concurrency: concurrency,
		logger:      logger,
	}
}

// UploadAll requests one target per image, then uploads with bounded
// parallelism. Completion order does not matter: assets come back grouped the
// way the conversion stage grouped the images.
func (c *Coordinator) UploadAll(ctx context.Context, docs []models.ConvertedDocument) ([]models.UploadedAsset, error) {
	type job struct {
		sourceIndex int
		imagePath   string
	}

	var jobs []job
	var filenames []string
	for _, doc := range docs {
		for _, img := range doc.ImagePaths {
			jobs = append(jobs, job{sourceIndex: doc.SourceIndex, imagePath: img})
			// Page names repeat across documents, so qualify each with its
			// per-document directory to keep names unique within the request.
			filenames = append(filenames, filepath.Join(filepath.Base(filepath.Dir(img)), filepath.Base(img)))
		}
	}

	targets, err := c.issuer.RequestUploadTargets(ctx, filenames)
	if err != nil {
		return nil, fmt.Errorf("failed to get upload targets: %w", err)
	}

	// A count mismatch is a protocol error; attempting any PUT against a
	// misaligned target list could cross-contaminate documents.
	if len(targets) != len(jobs) {
		return nil, fmt.Errorf("requested %d upload targets, got %d", len(jobs), len(targets))
	}

	assets := make([]models.UploadedAsset, len(jobs))

	var mu sync.Mutex
	var failed []string

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for i, j := range jobs {
		g.Go(func() error {
			if err := c.put(gctx, j.imagePath, targets[i].URL); err != nil {
				c.logger.Error("Upload failed", "image", filepath.Base(j.imagePath), "error", err)
				mu.Lock()
				failed = append(failed, filepath.Base(j.imagePath))
				mu.Unlock()
				return nil
			}

			assets[i] = models.UploadedAsset{
				SourceIndex: j.sourceIndex,
				ImagePath:   j.imagePath,
				StorageKey:  targets[i].StorageKey,
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(failed) > 0 {
		return nil, &UploadFailedError{Files: failed}
	}

	return assets, nil
}

// UploadFailedError names the images that could not be stored after retries.
type UploadFailedError struct {
	Files []string
}

func (e *UploadFailedError) Error() string {
	return fmt.Sprintf("failed to upload %d image(s): %v", len(e.Files), e.Files)
}

func (c *Coordinator) put(ctx context.Context, imagePath, target string) error {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= putAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("failed to create upload request: %w", err)
		}
		req.Header.Set("Content-Type", "image/jpeg")
		req.ContentLength = int64(len(data))

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		lastErr = fmt.Errorf("upload returned status %d", resp.StatusCode)
	}

	return lastErr
}
