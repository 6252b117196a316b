package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/kkkkikiki/surveyreview/internal/model"
)

// SurveyResponseRepository handles survey response data operations
type SurveyResponseRepository struct {
	db DBExecutor
}

// NewSurveyResponseRepository creates a new survey response repository
func NewSurveyResponseRepository(db DBExecutor) *SurveyResponseRepository {
	return &SurveyResponseRepository{db: db}
}

// Create persists a completed response. Responses are never updated afterwards.
func (r *SurveyResponseRepository) Create(ctx context.Context, resp *model.SurveyResponse) error {
	if resp.ID == "" {
		resp.ID = uuid.NewString()
	}
	query := `
		INSERT INTO survey_responses (id, shop_id, survey_settings_id, answers)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`
	if err := r.db.GetContext(ctx, &resp.CreatedAt, query, resp.ID, resp.ShopID, resp.SurveySettingsID, resp.Answers); err != nil {
		return fmt.Errorf("failed to create survey response: %w", err)
	}
	return nil
}

// GetByID retrieves a survey response by ID
func (r *SurveyResponseRepository) GetByID(ctx context.Context, id string) (*model.SurveyResponse, error) {
	query := `
		SELECT id, shop_id, survey_settings_id, answers, created_at
		FROM survey_responses
		WHERE id = $1
	`
	var resp model.SurveyResponse
	if err := r.db.GetContext(ctx, &resp, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get survey response: %w", err)
	}
	return &resp, nil
}

// GetResult retrieves a response together with its definition questions and reviews
func (r *SurveyResponseRepository) GetResult(ctx context.Context, id string) (*model.SurveyResult, error) {
	resp, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	result := &model.SurveyResult{SurveyResponse: *resp}

	err = r.db.GetContext(ctx, &result.SurveySettings.Questions,
		`SELECT questions FROM survey_settings WHERE id = $1`, resp.SurveySettingsID)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to get survey questions: %w", err)
	}

	query := `
		SELECT id, survey_response_id, shop_id, content, created_at, updated_at
		FROM reviews
		WHERE survey_response_id = $1
		ORDER BY created_at ASC
	`
	if err := r.db.SelectContext(ctx, &result.Reviews, query, id); err != nil {
		return nil, fmt.Errorf("failed to get reviews: %w", err)
	}
	return result, nil
}
