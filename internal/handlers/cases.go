package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/jkiprotich/medcase-pipeline/internal/models"
	"github.com/jkiprotich/medcase-pipeline/internal/repository"
	"github.com/jkiprotich/medcase-pipeline/internal/utils"
)

// CaseProcessor validates a request synchronously and runs the pipeline in
// the background on acceptance.
type CaseProcessor interface {
	Process(ctx context.Context, req *models.ProcessingRequest) error
}

type CaseHandler struct {
	processor   CaseProcessor
	repo        repository.CaseRepository
	maxFileSize int64
	logger      *utils.Logger
}

func NewCaseHandler(processor CaseProcessor, repo repository.CaseRepository, maxFileSize int64, logger *utils.Logger) *CaseHandler {
	return &CaseHandler{
		processor:   processor,
		repo:        repo,
		maxFileSize: maxFileSize,
		logger:      logger,
	}
}

// ProcessCase is the inbound trigger: a multipart batch of files plus case
// and user identifiers. The response acknowledges acceptance only; outcomes
// land on the case record.
func (h *CaseHandler) ProcessCase(w http.ResponseWriter, r *http.Request) {
	// One oversized batch should not exhaust memory; cap the whole body.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxFileSize*4)

	if err := r.ParseMultipartForm(h.maxFileSize); err != nil {
		if strings.Contains(err.Error(), "request body too large") {
			h.respondError(w, utils.NewBadRequestError("Request body exceeds the size limit"))
			return
		}
		h.respondError(w, utils.NewBadRequestError("Invalid form data"))
		return
	}

	caseID := r.FormValue("case_id")
	userID := r.FormValue("user_id")
	additional := r.FormValue("additional_data")

	if r.MultipartForm == nil || len(r.MultipartForm.File["files"]) == 0 {
		h.respondError(w, utils.NewBadRequestError("No files uploaded"))
		return
	}

	var files []models.InputFile
	for _, header := range r.MultipartForm.File["files"] {
		f, err := header.Open()
		if err != nil {
			h.respondError(w, utils.NewInternalError("Failed to read uploaded file"))
			return
		}

		data, err := io.ReadAll(io.LimitReader(f, h.maxFileSize+1))
		f.Close()
		if err != nil {
			h.respondError(w, utils.NewInternalError("Failed to read uploaded file"))
			return
		}
		if int64(len(data)) > h.maxFileSize {
			h.respondError(w, utils.NewBadRequestError("File "+header.Filename+" exceeds the size limit"))
			return
		}

		files = append(files, models.InputFile{
			Filename: header.Filename,
			Data:     data,
			Kind:     models.ClassifyFile(header.Filename),
		})
	}

	req := &models.ProcessingRequest{
		RequestID:       utils.GenerateID(),
		CaseID:          caseID,
		UserID:          userID,
		Files:           files,
		AdditionalNotes: additional,
	}

	h.logger.Info("Case submission received",
		"request_id", req.RequestID,
		"case_id", caseID,
		"files", len(files))

	if err := h.processor.Process(r.Context(), req); err != nil {
		h.respondError(w, err)
		return
	}

	h.respondJSON(w, http.StatusAccepted, models.ProcessCaseResponse{Status: "processing_started"})
}

// GetCase exposes the case record, the only place pipeline outcomes are
// observable.
func (h *CaseHandler) GetCase(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]

	if !utils.IsValidUUID(id) {
		h.respondError(w, utils.NewBadRequestError("case id must be a valid UUID"))
		return
	}

	c, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("Failed to get case", "error", err, "id", id)
		h.respondError(w, utils.NewInternalError("Failed to retrieve case"))
		return
	}
	if c == nil {
		h.respondError(w, utils.NewNotFoundError("Case not found"))
		return
	}

	h.respondJSON(w, http.StatusOK, c)
}

func (h *CaseHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", "error", err)
	}
}

func (h *CaseHandler) respondError(w http.ResponseWriter, err error) {
	var status int
	var message string

	switch e := err.(type) {
	case *utils.AppError:
		status = e.StatusCode
		message = e.Message
	default:
		status = http.StatusInternalServerError
		message = "Internal server error"
	}

	h.logger.Error("Request error", "status", status, "error", message)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"status": "error", "message": message})
}
