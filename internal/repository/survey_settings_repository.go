package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/kkkkikiki/surveyreview/internal/model"
)

// SurveySettingsRepository handles survey definition data operations
type SurveySettingsRepository struct {
	db *sqlx.DB
}

// NewSurveySettingsRepository creates a new survey settings repository
func NewSurveySettingsRepository(db *sqlx.DB) *SurveySettingsRepository {
	return &SurveySettingsRepository{db: db}
}

const settingsColumns = `
	id, shop_id, title, description, intro_message, outro_message, completion_message,
	questions, num_random_questions, prompt_template, tones, default_tone, use_random_tone,
	keywords, primary_color, secondary_color, accent_color, text_color, created_at, updated_at`

// GetByID retrieves a survey definition by ID
func (r *SurveySettingsRepository) GetByID(ctx context.Context, id string) (*model.SurveySettings, error) {
	return r.getOne(ctx, r.db, `SELECT `+settingsColumns+` FROM survey_settings WHERE id = $1`, id)
}

// GetLatestByShop retrieves the most recently updated definition of a shop
func (r *SurveySettingsRepository) GetLatestByShop(ctx context.Context, shopID string) (*model.SurveySettings, error) {
	query := `
		SELECT ` + settingsColumns + `
		FROM survey_settings
		WHERE shop_id = $1
		ORDER BY updated_at DESC
		LIMIT 1
	`
	return r.getOne(ctx, r.db, query, shopID)
}

func (r *SurveySettingsRepository) getOne(ctx context.Context, db DBExecutor, query string, arg string) (*model.SurveySettings, error) {
	var s model.SurveySettings
	if err := db.GetContext(ctx, &s, query, arg); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get survey settings: %w", err)
	}
	return &s, nil
}

// Upsert saves the definition of a shop. A shop keeps one definition row: when
// no ID is given the existing row of the shop is overwritten.
func (r *SurveySettingsRepository) Upsert(ctx context.Context, s *model.SurveySettings) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if s.ID == "" {
		var existing string
		err := tx.GetContext(ctx, &existing, `
			SELECT id FROM survey_settings
			WHERE shop_id = $1
			ORDER BY updated_at DESC
			LIMIT 1
			FOR UPDATE
		`, s.ShopID)
		switch {
		case err == sql.ErrNoRows:
			s.ID = uuid.NewString()
		case err != nil:
			return fmt.Errorf("failed to look up existing survey settings: %w", err)
		default:
			s.ID = existing
		}
	}

	query := `
		INSERT INTO survey_settings (
			id, shop_id, title, description, intro_message, outro_message, completion_message,
			questions, num_random_questions, prompt_template, tones, default_tone, use_random_tone,
			keywords, primary_color, secondary_color, accent_color, text_color)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			intro_message = EXCLUDED.intro_message,
			outro_message = EXCLUDED.outro_message,
			completion_message = EXCLUDED.completion_message,
			questions = EXCLUDED.questions,
			num_random_questions = EXCLUDED.num_random_questions,
			prompt_template = EXCLUDED.prompt_template,
			tones = EXCLUDED.tones,
			default_tone = EXCLUDED.default_tone,
			use_random_tone = EXCLUDED.use_random_tone,
			keywords = EXCLUDED.keywords,
			primary_color = EXCLUDED.primary_color,
			secondary_color = EXCLUDED.secondary_color,
			accent_color = EXCLUDED.accent_color,
			text_color = EXCLUDED.text_color,
			updated_at = NOW()
		WHERE survey_settings.shop_id = EXCLUDED.shop_id
		RETURNING created_at, updated_at
	`
	err = tx.GetContext(ctx, s, query,
		s.ID, s.ShopID, s.Title, s.Description, s.IntroMessage, s.OutroMessage, s.CompletionMessage,
		s.Questions, s.RandomRange, s.PromptTemplate, s.Tones, s.DefaultTone, s.UseRandomTone,
		s.Keywords, s.PrimaryColor, s.SecondaryColor, s.AccentColor, s.TextColor)
	if err != nil {
		if err == sql.ErrNoRows {
			// The ID belongs to another shop.
			return ErrNotFound
		}
		return fmt.Errorf("failed to save survey settings: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
