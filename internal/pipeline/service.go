package pipeline

import (
	"context"
	"fmt"

	"github.com/jkiprotich/medcase-pipeline/internal/converter"
	"github.com/jkiprotich/medcase-pipeline/internal/models"
	"github.com/jkiprotich/medcase-pipeline/internal/repository"
	"github.com/jkiprotich/medcase-pipeline/internal/utils"
	"github.com/jkiprotich/medcase-pipeline/internal/workspace"
)

// DocumentConverter is the conversion stage boundary.
type DocumentConverter interface {
	ConvertAll(ctx context.Context, files []converter.SavedFile, convertedDir string) ([]models.ConvertedDocument, error)
	SupplementaryText(files []converter.SavedFile, notes string) string
}

// Uploader is the upload stage boundary.
type Uploader interface {
	UploadAll(ctx context.Context, docs []models.ConvertedDocument) ([]models.UploadedAsset, error)
}

// Extractor is the extraction service boundary.
type Extractor interface {
	Submit(ctx context.Context, payload models.ClinicalDataPayload) (string, error)
	Poll(ctx context.Context, jobID string) (string, error)
}

// PayloadBuilder groups uploaded assets into the extraction request body.
type PayloadBuilder func(assets []models.UploadedAsset, supplementary string) models.ClinicalDataPayload

// Service sequences one pipeline run per accepted request: workspace →
// conversion → upload → submit → poll → publish. Runs are independent
// goroutines; the accepting call returns after validation only.
type Service struct {
	workspaces   *workspace.Manager
	converter    DocumentConverter
	uploader     Uploader
	extractor    Extractor
	buildPayload PayloadBuilder
	repo         repository.CaseRepository
	logger       *utils.Logger
	maxFileSize  int64
}

func NewService(
	workspaces *workspace.Manager,
	conv DocumentConverter,
	uploader Uploader,
	extractor Extractor,
	buildPayload PayloadBuilder,
	repo repository.CaseRepository,
	maxFileSize int64,
	logger *utils.Logger,
) *Service {
	return &Service{
		workspaces:   workspaces,
		converter:    conv,
		uploader:     uploader,
		extractor:    extractor,
		buildPayload: buildPayload,
		repo:         repo,
		logger:       logger,
		maxFileSize:  maxFileSize,
	}
}

// Process validates the request synchronously and, on acceptance, launches
// the pipeline run in its own goroutine. Validation failures are the only
// errors the caller ever sees; everything downstream is observable solely
// through the case record.
func (s *Service) Process(ctx context.Context, req *models.ProcessingRequest) error {
	if len(req.Files) == 0 {
		return utils.NewBadRequestError("No files uploaded")
	}
	if !utils.IsValidUUID(req.CaseID) {
		return utils.NewBadRequestError("case_id must be a valid UUID")
	}
	if !utils.IsValidUUID(req.UserID) {
		return utils.NewBadRequestError("user_id must be a valid UUID")
	}

	hasDocument := false
	for _, f := range req.Files {
		if f.Filename == "" {
			return utils.NewBadRequestError("Every file must have a filename")
		}
		if len(f.Data) == 0 {
			return utils.NewBadRequestError(fmt.Sprintf("File %s is empty", f.Filename))
		}
		if int64(len(f.Data)) > s.maxFileSize {
			return utils.NewBadRequestError(fmt.Sprintf("File %s exceeds the size limit", f.Filename))
		}
		if f.Kind == models.KindDocument {
			hasDocument = true
		}
	}
	if !hasDocument {
		return utils.NewBadRequestError("No document files found (PDF or image files required)")
	}

	if req.RequestID == "" {
		req.RequestID = utils.GenerateID()
	}

	go s.run(req)

	return nil
}

// run executes the asynchronous part of the pipeline. It has its own error
// boundary: whatever happens, exactly one outcome is published and the
// workspace is released.
func (s *Service) run(req *models.ProcessingRequest) {
	ctx := context.Background()
	logger := s.logger.With("request_id", req.RequestID, "case_id", req.CaseID)

	defer func() {
		if err := s.workspaces.Release(req.RequestID); err != nil {
			logger.Error("Failed to release workspace", "error", err)
		}
	}()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Pipeline run panicked", "panic", r)
			s.publishFailure(ctx, logger, req, "internal pipeline error")
		}
	}()

	if err := s.repo.MarkProcessing(ctx, req.CaseID, req.UserID); err != nil {
		// The run continues: the terminal publish below is what guarantees
		// the record is never stuck, and it retries the write path anyway.
		logger.Error("Failed to mark case processing", "error", err)
	}

	logger.Info("Pipeline run started", "files", len(req.Files))

	summary, err := s.execute(ctx, logger, req)
	if err != nil {
		logger.Error("Pipeline run failed", "error", err)
		s.publishFailure(ctx, logger, req, failureReason(err))
		return
	}

	if err := s.repo.PublishSuccess(ctx, req.CaseID, req.UserID, summary); err != nil {
		// Fatal but isolated: the ack is long gone, so all we can do is log.
		logger.Error("Failed to publish case summary", "error", err)
		return
	}

	logger.Info("Pipeline run completed", "summary_length", len(summary))
}

func (s *Service) execute(ctx context.Context, logger *utils.Logger, req *models.ProcessingRequest) (string, error) {
	ws, err := s.workspaces.Allocate(req.RequestID)
	if err != nil {
		return "", &StageError{Stage: StageWorkspace, Err: err}
	}

	saved := make([]converter.SavedFile, 0, len(req.Files))
	for i, f := range req.Files {
		path, err := s.workspaces.SaveRaw(ws, i, f.Filename, f.Data)
		if err != nil {
			return "", &StageError{Stage: StageWorkspace, Err: err}
		}
		saved = append(saved, converter.SavedFile{
			Index:    i,
			Filename: f.Filename,
			Path:     path,
			Kind:     f.Kind,
		})
	}

	docs, err := s.converter.ConvertAll(ctx, saved, ws.ConvertedDir)
	if err != nil {
		return "", &StageError{Stage: StageConversion, Err: err}
	}

	supplementary := s.converter.SupplementaryText(saved, req.AdditionalNotes)

	assets, err := s.uploader.UploadAll(ctx, docs)
	if err != nil {
		return "", &StageError{Stage: StageUpload, Err: err}
	}

	payload := s.buildPayload(assets, supplementary)

	jobID, err := s.extractor.Submit(ctx, payload)
	if err != nil {
		return "", &StageError{Stage: StageSubmission, Err: err}
	}

	logger.Info("Polling extraction job", "job_id", jobID)

	summary, err := s.extractor.Poll(ctx, jobID)
	if err != nil {
		return "", &StageError{Stage: StagePolling, Err: err}
	}

	return summary, nil
}

func (s *Service) publishFailure(ctx context.Context, logger *utils.Logger, req *models.ProcessingRequest, reason string) {
	if err := s.repo.PublishFailure(ctx, req.CaseID, req.UserID, reason); err != nil {
		logger.Error("Failed to publish case failure", "error", err, "reason", reason)
	}
}
