package models

import (
	"path/filepath"
	"strings"
	"time"
)

// FileKind classifies an input file by what the pipeline does with it:
// documents are converted to JPEG pages and sent to the extraction service,
// text files bypass conversion and feed the supplementary notes.
type FileKind string

const (
	KindDocument FileKind = "document"
	KindText     FileKind = "text"
)

var textExtensions = map[string]bool{
	".txt": true,
}

var documentExtensions = map[string]bool{
	".pdf":  true,
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".webp": true,
	".bmp":  true,
	".gif":  true,
	".tiff": true,
	".xps":  true,
	".epub": true,
}

// ClassifyFile maps a filename to its kind. Unknown extensions are handed to
// the converter as documents rather than rejected.
func ClassifyFile(filename string) FileKind {
	ext := strings.ToLower(filepath.Ext(filename))
	if textExtensions[ext] {
		return KindText
	}
	return KindDocument
}

// InputFile is one uploaded file, held in memory until the pipeline writes it
// into the request workspace.
type InputFile struct {
	Filename string
	Data     []byte
	Kind     FileKind
}

// ProcessingRequest carries everything one pipeline run needs. It is built
// once by the HTTP adapter and never mutated afterwards.
type ProcessingRequest struct {
	RequestID       string
	CaseID          string
	UserID          string
	Files           []InputFile
	AdditionalNotes string
}

// ConvertedDocument is the converter output for one document-kind input.
// SourceIndex is the file's position in the original input order; text files
// leave gaps, so the indices of [a.pdf, b.txt, c.jpg] are 0 and 2.
type ConvertedDocument struct {
	SourceIndex int
	ImagePaths  []string
}

// UploadedAsset records where one converted image landed in object storage.
type UploadedAsset struct {
	SourceIndex int
	ImagePath   string
	StorageKey  string
}

// ClinicalDataPayload is the extraction request body, sent verbatim. Keys of
// ClinicalData are decimal source indices; each value preserves the page
// order of that document's images.
type ClinicalDataPayload struct {
	ClinicalData      map[string][]string `json:"clinical_data"`
	SupplementaryText string              `json:"supplementary_text,omitempty"`
}

// JobState is the extraction service's view of a submitted job, plus the
// orchestrator-imposed timed_out.
type JobState string

const (
	JobSubmitted JobState = "submitted"
	JobRunning   JobState = "running"
	JobSucceeded JobState = "succeeded"
	JobFailed    JobState = "failed"
	JobTimedOut  JobState = "timed_out"
)

// Terminal reports whether no further transition can occur.
func (s JobState) Terminal() bool {
	return s == JobSucceeded || s == JobFailed || s == JobTimedOut
}

// Case is the durable record a pipeline run ultimately writes. The processing
// flag is the externally observable lifecycle: it must end up false after
// every run, success or not.
type Case struct {
	ID            string     `json:"id" db:"id"`
	UserID        string     `json:"user_id" db:"user_id"`
	Summary       *string    `json:"summary,omitempty" db:"summary"`
	FailureReason *string    `json:"failure_reason,omitempty" db:"failure_reason"`
	Processing    bool       `json:"processing" db:"processing"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

// ProcessCaseResponse is the synchronous acknowledgment returned before the
// pipeline runs.
type ProcessCaseResponse struct {
	Status string `json:"status"`
}
