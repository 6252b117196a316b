package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/kkkkikiki/surveyreview/internal/model"
)

// ReviewRepository handles review data operations
type ReviewRepository struct {
	db DBExecutor
}

// NewReviewRepository creates a new review repository
func NewReviewRepository(db DBExecutor) *ReviewRepository {
	return &ReviewRepository{db: db}
}

const reviewColumns = `id, survey_response_id, shop_id, content, created_at, updated_at`

// GetBySurveyResponseID retrieves the review bound to a survey response
func (r *ReviewRepository) GetBySurveyResponseID(ctx context.Context, responseID string) (*model.Review, error) {
	query := `SELECT ` + reviewColumns + ` FROM reviews WHERE survey_response_id = $1`

	var review model.Review
	if err := r.db.GetContext(ctx, &review, query, responseID); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get review: %w", err)
	}
	return &review, nil
}

// InsertIfAbsent binds review to its survey response. When a review already
// exists for the response, the stored row is returned with inserted=false.
func (r *ReviewRepository) InsertIfAbsent(ctx context.Context, review *model.Review) (*model.Review, bool, error) {
	if review.ID == "" {
		review.ID = uuid.NewString()
	}
	query := `
		INSERT INTO reviews (id, survey_response_id, shop_id, content)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (survey_response_id) DO NOTHING
		RETURNING ` + reviewColumns

	var stored model.Review
	err := r.db.GetContext(ctx, &stored, query, review.ID, review.SurveyResponseID, review.ShopID, review.Content)
	switch {
	case err == nil:
		return &stored, true, nil
	case err == sql.ErrNoRows, IsUniqueViolation(err):
		existing, err := r.GetBySurveyResponseID(ctx, review.SurveyResponseID)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	default:
		return nil, false, fmt.Errorf("failed to insert review: %w", err)
	}
}

// UpdateContent replaces the text of a review
func (r *ReviewRepository) UpdateContent(ctx context.Context, id, content string) (*model.Review, error) {
	query := `
		UPDATE reviews
		SET content = $1, updated_at = NOW()
		WHERE id = $2
		RETURNING ` + reviewColumns

	var review model.Review
	if err := r.db.GetContext(ctx, &review, query, content, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to update review: %w", err)
	}
	return &review, nil
}

// GetByID retrieves a review by ID
func (r *ReviewRepository) GetByID(ctx context.Context, id string) (*model.Review, error) {
	query := `SELECT ` + reviewColumns + ` FROM reviews WHERE id = $1`

	var review model.Review
	if err := r.db.GetContext(ctx, &review, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get review: %w", err)
	}
	return &review, nil
}
