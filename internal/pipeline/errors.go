package pipeline

import (
	"errors"
	"fmt"

	"github.com/jkiprotich/medcase-pipeline/internal/extraction"
	"github.com/jkiprotich/medcase-pipeline/internal/storage"
)

// Stage identifies which part of the pipeline a run died in. The stage name
// ends up in the case record's failure_reason, which is the only place a
// failed run is observable.
type Stage string

const (
	StageWorkspace  Stage = "workspace"
	StageConversion Stage = "conversion"
	StageUpload     Stage = "upload"
	StageSubmission Stage = "submission"
	StagePolling    Stage = "polling"
)

// StageError wraps a stage failure so the orchestrator can report where a run
// stopped without inspecting every collaborator's error types.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// failureReason renders a terminal pipeline error into the stable,
// human-readable string written to the case record.
func failureReason(err error) string {
	var timeout *extraction.PollTimeoutError
	if errors.As(err, &timeout) {
		return fmt.Sprintf("extraction timed out after %d poll attempts", timeout.Attempts)
	}

	var jobFailed *extraction.JobFailedError
	if errors.As(err, &jobFailed) {
		return fmt.Sprintf("extraction failed: %s", jobFailed.Reason)
	}

	var upload *storage.UploadFailedError
	if errors.As(err, &upload) {
		return fmt.Sprintf("upload failed for: %v", upload.Files)
	}

	var stage *StageError
	if errors.As(err, &stage) {
		return fmt.Sprintf("%s failed: %v", stage.Stage, stage.Err)
	}

	return fmt.Sprintf("processing failed: %v", err)
}
