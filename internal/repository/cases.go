package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jkiprotich/medcase-pipeline/internal/models"
	"github.com/jmoiron/sqlx"
)

// CaseRepository is the record-store boundary of the pipeline. Exactly one of
// PublishSuccess or PublishFailure runs per pipeline run, so a case never
// stays processing=true after the run terminates.
type CaseRepository interface {
	MarkProcessing(ctx context.Context, caseID, userID string) error
	PublishSuccess(ctx context.Context, caseID, userID, summary string) error
	PublishFailure(ctx context.Context, caseID, userID, reason string) error
	GetByID(ctx context.Context, caseID string) (*models.Case, error)
}

type caseRepository struct {
	db *sqlx.DB
}

func NewCaseRepository(db *sqlx.DB) CaseRepository {
	return &caseRepository{db: db}
}

// MarkProcessing flags the case as in flight when a run is accepted. The row
// is created if the record system has not seen this case yet.
func (r *caseRepository) MarkProcessing(ctx context.Context, caseID, userID string) error {
	query := `
		INSERT INTO cases (id, user_id, processing, created_at, updated_at)
		VALUES ($1, $2, TRUE, $3, $3)
		ON CONFLICT (id) DO UPDATE
		SET processing = TRUE, updated_at = $3
	`

	now := time.Now()
	if _, err := r.db.ExecContext(ctx, query, caseID, userID, now); err != nil {
		return fmt.Errorf("failed to mark case processing: %w", err)
	}

	return nil
}

func (r *caseRepository) PublishSuccess(ctx context.Context, caseID, userID, summary string) error {
	query := `
		INSERT INTO cases (id, user_id, summary, failure_reason, processing, created_at, updated_at)
		VALUES ($1, $2, $3, NULL, FALSE, $4, $4)
		ON CONFLICT (id) DO UPDATE
		SET summary = $3, failure_reason = NULL, processing = FALSE, updated_at = $4
	`

	now := time.Now()
	if _, err := r.db.ExecContext(ctx, query, caseID, userID, summary, now); err != nil {
		return fmt.Errorf("failed to publish case summary: %w", err)
	}

	return nil
}

// PublishFailure clears the processing flag without touching any summary a
// previous run may have written.
func (r *caseRepository) PublishFailure(ctx context.Context, caseID, userID, reason string) error {
	query := `
		INSERT INTO cases (id, user_id, failure_reason, processing, created_at, updated_at)
		VALUES ($1, $2, $3, FALSE, $4, $4)
		ON CONFLICT (id) DO UPDATE
		SET failure_reason = $3, processing = FALSE, updated_at = $4
	`

	now := time.Now()
	if _, err := r.db.ExecContext(ctx, query, caseID, userID, reason, now); err != nil {
		return fmt.Errorf("failed to publish case failure: %w", err)
	}

	return nil
}

func (r *caseRepository) GetByID(ctx context.Context, caseID string) (*models.Case, error) {
	var c models.Case

	query := `
		SELECT id, user_id, summary, failure_reason, processing, created_at, updated_at
		FROM cases
		WHERE id = $1
	`

	err := r.db.GetContext(ctx, &c, query, caseID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &c, nil
}
