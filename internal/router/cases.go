package router

import (
	"net/http"

	"github.com/jkiprotich/medcase-pipeline/internal/handlers"
	"github.com/jkiprotich/medcase-pipeline/internal/middleware"
	"github.com/jkiprotich/medcase-pipeline/internal/repository"
	"github.com/jkiprotich/medcase-pipeline/internal/utils"

	"github.com/gorilla/mux"
)

func NewRouter(processor handlers.CaseProcessor, repo repository.CaseRepository, maxFileSize int64, logger *utils.Logger) http.Handler {
	r := mux.NewRouter()

	// Middlewares
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS())
	r.Use(middleware.Recovery(logger))

	caseHandler := handlers.NewCaseHandler(processor, repo, maxFileSize, logger)

	// Routes
	api := r.PathPrefix("/api/v1").Subrouter()

	// Health check
	api.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)

	// Case endpoints
	api.HandleFunc("/cases/process", caseHandler.ProcessCase).Methods(http.MethodPost)
	api.HandleFunc("/cases/{id}", caseHandler.GetCase).Methods(http.MethodGet)

	return r
}
