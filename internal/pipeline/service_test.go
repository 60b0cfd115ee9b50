package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jkiprotich/medcase-pipeline/internal/converter"
	"github.com/jkiprotich/medcase-pipeline/internal/extraction"
	"github.com/jkiprotich/medcase-pipeline/internal/models"
	"github.com/jkiprotich/medcase-pipeline/internal/storage"
	"github.com/jkiprotich/medcase-pipeline/internal/utils"
	"github.com/jkiprotich/medcase-pipeline/internal/workspace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testCaseID = "3f6fdc48-06b7-4a32-9a1c-9a70b07be3a1"
	testUserID = "b9a7a2a0-0a43-47d4-9f0c-2f3fba2a9f11"
)

type fakeRepo struct {
	mu         sync.Mutex
	processing bool
	summary    string
	failure    string
	successes  int
	failures   int
	failWrites bool
}

func (r *fakeRepo) MarkProcessing(_ context.Context, _, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWrites {
		return fmt.Errorf("record store down")
	}
	r.processing = true
	return nil
}

func (r *fakeRepo) PublishSuccess(_ context.Context, _, _, summary string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWrites {
		return fmt.Errorf("record store down")
	}
	r.processing = false
	r.summary = summary
	r.successes++
	return nil
}

func (r *fakeRepo) PublishFailure(_ context.Context, _, _, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWrites {
		return fmt.Errorf("record store down")
	}
	r.processing = false
	r.failure = reason
	r.failures++
	return nil
}

func (r *fakeRepo) GetByID(_ context.Context, _ string) (*models.Case, error) {
	return nil, nil
}

func (r *fakeRepo) snapshot() fakeRepo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fakeRepo{
		processing: r.processing,
		summary:    r.summary,
		failure:    r.failure,
		successes:  r.successes,
		failures:   r.failures,
	}
}

func (r *fakeRepo) published() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.successes+r.failures > 0
}

type fakeDocConverter struct {
	err error
}

func (f *fakeDocConverter) ConvertAll(_ context.Context, files []converter.SavedFile, convertedDir string) ([]models.ConvertedDocument, error) {
	if f.err != nil {
		return nil, f.err
	}

	var docs []models.ConvertedDocument
	for _, file := range files {
		if file.Kind != models.KindDocument {
			continue
		}
		docs = append(docs, models.ConvertedDocument{
			SourceIndex: file.Index,
			ImagePaths:  []string{filepath.Join(convertedDir, fmt.Sprintf("doc_%03d", file.Index), "page_1.jpeg")},
		})
	}
	return docs, nil
}

func (f *fakeDocConverter) SupplementaryText(files []converter.SavedFile, notes string) string {
	return notes
}

type fakeUploader struct {
	err error
}

func (f *fakeUploader) UploadAll(_ context.Context, docs []models.ConvertedDocument) ([]models.UploadedAsset, error) {
	if f.err != nil {
		return nil, f.err
	}

	var assets []models.UploadedAsset
	for _, doc := range docs {
		for _, p := range doc.ImagePaths {
			assets = append(assets, models.UploadedAsset{
				SourceIndex: doc.SourceIndex,
				ImagePath:   p,
				StorageKey:  "k/" + filepath.Base(p),
			})
		}
	}
	return assets, nil
}

type fakeExtractor struct {
	submitErr error
	pollErr   error
	summary   string
	block     chan struct{} // when set, Poll waits until closed
}

func (f *fakeExtractor) Submit(_ context.Context, _ models.ClinicalDataPayload) (string, error) {
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return "job-1", nil
}

func (f *fakeExtractor) Poll(_ context.Context, _ string) (string, error) {
	if f.block != nil {
		<-f.block
	}
	if f.pollErr != nil {
		return "", f.pollErr
	}
	return f.summary, nil
}

type testEnv struct {
	svc     *Service
	repo    *fakeRepo
	baseDir string
}

func newTestEnv(t *testing.T, conv *fakeDocConverter, up *fakeUploader, ext *fakeExtractor) *testEnv {
	t.Helper()

	base := t.TempDir()
	repo := &fakeRepo{}
	svc := NewService(
		workspace.NewManager(base),
		conv,
		up,
		ext,
		extraction.BuildPayload,
		repo,
		1<<20,
		utils.NewLogger("error"),
	)
	return &testEnv{svc: svc, repo: repo, baseDir: base}
}

func validRequest() *models.ProcessingRequest {
	return &models.ProcessingRequest{
		RequestID: "req-test",
		CaseID:    testCaseID,
		UserID:    testUserID,
		Files: []models.InputFile{
			{Filename: "scan.pdf", Data: []byte("pdf bytes"), Kind: models.KindDocument},
			{Filename: "notes.txt", Data: []byte("note"), Kind: models.KindText},
		},
	}
}

func waitPublished(t *testing.T, repo *fakeRepo) {
	t.Helper()
	require.Eventually(t, repo.published, 2*time.Second, 5*time.Millisecond)
}

func TestProcessRejectsInvalidRequestsSynchronously(t *testing.T) {
	env := newTestEnv(t, &fakeDocConverter{}, &fakeUploader{}, &fakeExtractor{summary: "s"})

	tests := []struct {
		name    string
		mutate  func(*models.ProcessingRequest)
		message string
	}{
		{"no files", func(r *models.ProcessingRequest) { r.Files = nil }, "No files uploaded"},
		{"bad case id", func(r *models.ProcessingRequest) { r.CaseID = "not-a-uuid" }, "case_id"},
		{"bad user id", func(r *models.ProcessingRequest) { r.UserID = "123" }, "user_id"},
		{"empty file", func(r *models.ProcessingRequest) { r.Files[0].Data = nil }, "empty"},
		{"only text files", func(r *models.ProcessingRequest) {
			r.Files = []models.InputFile{{Filename: "a.txt", Data: []byte("x"), Kind: models.KindText}}
		}, "No document files"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(req)

			err := env.svc.Process(context.Background(), req)
			var appErr *utils.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Contains(t, appErr.Message, tt.message)
		})
	}

	// None of the rejected requests may have touched the record store.
	assert.False(t, env.repo.published())
}

func TestProcessReturnsBeforePipelineCompletes(t *testing.T) {
	ext := &fakeExtractor{summary: "# Summary", block: make(chan struct{})}
	env := newTestEnv(t, &fakeDocConverter{}, &fakeUploader{}, ext)

	require.NoError(t, env.svc.Process(context.Background(), validRequest()))

	// The run is parked inside Poll; the ack has already been given.
	assert.False(t, env.repo.published())

	close(ext.block)
	waitPublished(t, env.repo)

	state := env.repo.snapshot()
	assert.Equal(t, 1, state.successes)
	assert.Equal(t, "# Summary", state.summary)
}

func TestSuccessfulRunPublishesSummaryAndCleansUp(t *testing.T) {
	env := newTestEnv(t, &fakeDocConverter{}, &fakeUploader{}, &fakeExtractor{summary: "# Summary"})

	req := validRequest()
	require.NoError(t, env.svc.Process(context.Background(), req))
	waitPublished(t, env.repo)

	state := env.repo.snapshot()
	assert.False(t, state.processing)
	assert.Equal(t, "# Summary", state.summary)
	assert.Equal(t, 1, state.successes)
	assert.Equal(t, 0, state.failures)

	assert.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(env.baseDir, req.RequestID))
		return os.IsNotExist(err)
	}, 2*time.Second, 5*time.Millisecond)
}

func TestStageFailuresAlwaysPublishFailure(t *testing.T) {
	tests := []struct {
		name   string
		conv   *fakeDocConverter
		up     *fakeUploader
		ext    *fakeExtractor
		reason string
	}{
		{
			"conversion fails",
			&fakeDocConverter{err: fmt.Errorf("converter exploded")},
			&fakeUploader{},
			&fakeExtractor{summary: "s"},
			"conversion failed",
		},
		{
			"upload fails",
			&fakeDocConverter{},
			&fakeUploader{err: fmt.Errorf("network gone")},
			&fakeExtractor{summary: "s"},
			"upload failed",
		},
		{
			"submit fails",
			&fakeDocConverter{},
			&fakeUploader{},
			&fakeExtractor{submitErr: &extraction.SubmissionError{Err: fmt.Errorf("503")}},
			"submission failed",
		},
		{
			"job fails",
			&fakeDocConverter{},
			&fakeUploader{},
			&fakeExtractor{pollErr: &extraction.JobFailedError{Reason: "model exploded"}},
			"extraction failed: model exploded",
		},
		{
			"polling times out",
			&fakeDocConverter{},
			&fakeUploader{},
			&fakeExtractor{pollErr: &extraction.PollTimeoutError{Attempts: 120}},
			"timed out after 120 poll attempts",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.conv, tt.up, tt.ext)

			req := validRequest()
			require.NoError(t, env.svc.Process(context.Background(), req))
			waitPublished(t, env.repo)

			state := env.repo.snapshot()
			assert.False(t, state.processing, "case must never stay processing")
			assert.Empty(t, state.summary)
			assert.Equal(t, 0, state.successes)
			assert.Equal(t, 1, state.failures)
			assert.Contains(t, state.failure, tt.reason)

			assert.Eventually(t, func() bool {
				_, err := os.Stat(filepath.Join(env.baseDir, req.RequestID))
				return os.IsNotExist(err)
			}, 2*time.Second, 5*time.Millisecond, "workspace must be released on failure")
		})
	}
}

func TestUploadFailureReasonNamesFiles(t *testing.T) {
	err := &StageError{
		Stage: StageUpload,
		Err:   &storage.UploadFailedError{Files: []string{"page_1.jpeg", "page_2.jpeg"}},
	}

	reason := failureReason(err)
	assert.Contains(t, reason, "page_1.jpeg")
	assert.Contains(t, reason, "page_2.jpeg")
}

func TestRunSurvivesRecordStoreOutage(t *testing.T) {
	env := newTestEnv(t, &fakeDocConverter{}, &fakeUploader{}, &fakeExtractor{summary: "s"})
	env.repo.failWrites = true

	req := validRequest()
	require.NoError(t, env.svc.Process(context.Background(), req))

	// The run cannot publish, but it must still terminate and clean up.
	assert.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(env.baseDir, req.RequestID))
		return os.IsNotExist(err)
	}, 2*time.Second, 5*time.Millisecond)
}
