package model

import "time"

// Review is the generated text bound one-to-one to a survey response
type Review struct {
	ID               string    `db:"id" json:"id"`
	SurveyResponseID string    `db:"survey_response_id" json:"survey_response_id"`
	ShopID           string    `db:"shop_id" json:"shop_id"`
	Content          string    `db:"content" json:"content"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}
