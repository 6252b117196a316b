package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// QuestionType is the input type of a question.
type QuestionType string

const (
	QuestionText  QuestionType = "text"
	QuestionRadio QuestionType = "radio"
	// QuestionCheckbox only exists in older definitions and behaves like radio.
	QuestionCheckbox QuestionType = "checkbox"
)

// IsChoice reports whether answers must be one of the question options.
func (t QuestionType) IsChoice() bool {
	return t == QuestionRadio || t == QuestionCheckbox
}

// Question is one authored survey question
type Question struct {
	ID            string       `json:"id" validate:"required"`
	Text          string       `json:"text" validate:"required"`
	Type          QuestionType `json:"type" validate:"required,oneof=text radio checkbox"`
	Options       []string     `json:"options,omitempty"`
	IsRandom      bool         `json:"isRandom"`
	Group         string       `json:"group,omitempty"`
	DisplayOnCard bool         `json:"display_on_card,omitempty"`
}

// Questions is the ordered question list stored as json.
type Questions []Question

// Scan implements sql.Scanner
func (q *Questions) Scan(src interface{}) error {
	var out []Question
	if err := scanJSON(src, &out); err != nil {
		return fmt.Errorf("scan questions: %w", err)
	}
	*q = out
	return nil
}

// Value implements driver.Valuer
func (q Questions) Value() (driver.Value, error) {
	if q == nil {
		return "[]", nil
	}
	return valueJSON([]Question(q))
}

// TextByID maps question ids to their display text.
func (q Questions) TextByID() map[string]string {
	out := make(map[string]string, len(q))
	for _, question := range q {
		out[question.ID] = question.Text
	}
	return out
}

// Find returns the question with the given id.
func (q Questions) Find(id string) (Question, bool) {
	for _, question := range q {
		if question.ID == id {
			return question, true
		}
	}
	return Question{}, false
}

// RandomRange bounds how many optional ungrouped questions a session shows.
type RandomRange struct {
	Min int `json:"min" validate:"gte=0"`
	Max int `json:"max" validate:"gte=0"`
}

// Scan implements sql.Scanner
func (r *RandomRange) Scan(src interface{}) error {
	var out RandomRange
	if err := scanJSON(src, &out); err != nil {
		return fmt.Errorf("scan random range: %w", err)
	}
	*r = out
	return nil
}

// Value implements driver.Valuer
func (r RandomRange) Value() (driver.Value, error) {
	return valueJSON(struct {
		Min int `json:"min"`
		Max int `json:"max"`
	}{r.Min, r.Max})
}

// SurveySettings is a shop's survey definition and generation parameters
type SurveySettings struct {
	ID                string      `db:"id" json:"id"`
	ShopID            string      `db:"shop_id" json:"shop_id" validate:"required"`
	Title             string      `db:"title" json:"title"`
	Description       string      `db:"description" json:"description"`
	IntroMessage      string      `db:"intro_message" json:"intro_message"`
	OutroMessage      string      `db:"outro_message" json:"outro_message"`
	CompletionMessage string      `db:"completion_message" json:"completion_message"`
	Questions         Questions   `db:"questions" json:"questions" validate:"dive"`
	RandomRange       RandomRange `db:"num_random_questions" json:"num_random_questions"`
	PromptTemplate    string      `db:"prompt_template" json:"prompt_template" validate:"required"`
	Tones             StringList  `db:"tones" json:"tones"`
	DefaultTone       string      `db:"default_tone" json:"default_tone"`
	UseRandomTone     bool        `db:"use_random_tone" json:"use_random_tone"`
	Keywords          StringList  `db:"keywords" json:"keywords"`
	PrimaryColor      string      `db:"primary_color" json:"primary_color"`
	SecondaryColor    string      `db:"secondary_color" json:"secondary_color"`
	AccentColor       string      `db:"accent_color" json:"accent_color"`
	TextColor         string      `db:"text_color" json:"text_color"`
	CreatedAt         time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time   `db:"updated_at" json:"updated_at"`
}

// SurveyResponse is the immutable record of one completed session
type SurveyResponse struct {
	ID               string    `db:"id" json:"id"`
	ShopID           string    `db:"shop_id" json:"shop_id"`
	SurveySettingsID string    `db:"survey_settings_id" json:"survey_settings_id"`
	Answers          Answers   `db:"answers" json:"answers"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// SurveyResult joins a response with its definition questions and reviews.
type SurveyResult struct {
	SurveyResponse
	SurveySettings struct {
		Questions Questions `json:"questions"`
	} `json:"survey_settings"`
	Reviews []Review `json:"reviews"`
}

// MarshalJSON flattens the embedded response next to the joined fields.
func (r SurveyResult) MarshalJSON() ([]byte, error) {
	reviews := r.Reviews
	if reviews == nil {
		reviews = []Review{}
	}
	return json.Marshal(struct {
		ID               string    `json:"id"`
		ShopID           string    `json:"shop_id"`
		SurveySettingsID string    `json:"survey_settings_id"`
		Answers          Answers   `json:"answers"`
		CreatedAt        time.Time `json:"created_at"`
		SurveySettings   struct {
			Questions Questions `json:"questions"`
		} `json:"survey_settings"`
		Reviews []Review `json:"reviews"`
	}{
		ID:               r.ID,
		ShopID:           r.ShopID,
		SurveySettingsID: r.SurveySettingsID,
		Answers:          r.Answers,
		CreatedAt:        r.CreatedAt,
		SurveySettings:   r.SurveySettings,
		Reviews:          reviews,
	})
}
