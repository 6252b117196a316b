package model

import (
	"time"
)

// DefaultMonthlyReviewLimit applies to shops whose limit column was never set.
const DefaultMonthlyReviewLimit = 30

// DefaultBusinessType is used in prompts when the shop has no business type.
const DefaultBusinessType = "飲食店"

// Shop represents a shop owning surveys and a monthly generation allowance
type Shop struct {
	ID                   string     `db:"id" json:"id"`
	Name                 string     `db:"name" json:"name"`
	Address              string     `db:"address" json:"address"`
	BusinessType         string     `db:"business_type" json:"business_type"`
	GoogleReviewURL      string     `db:"google_review_url" json:"google_review_url"`
	OwnerID              string     `db:"owner_id" json:"owner_id"`
	MonthlyReviewLimit   int        `db:"monthly_review_limit" json:"monthly_review_limit"`
	CurrentMonthReviews  int        `db:"current_month_reviews" json:"current_month_reviews"`
	ReviewLimitResetDate *time.Time `db:"review_limit_reset_date" json:"review_limit_reset_date"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at" json:"updated_at"`
}

// QuotaState is the quota projection of a shop row.
type QuotaState struct {
	ShopID    string     `db:"id" json:"shop_id"`
	Limit     int        `db:"monthly_review_limit" json:"limit"`
	Count     int        `db:"current_month_reviews" json:"count"`
	ResetDate *time.Time `db:"review_limit_reset_date" json:"reset_date"`
}

// Remaining returns how many generations are left in the current period.
func (q QuotaState) Remaining() int {
	if r := q.Limit - q.Count; r > 0 {
		return r
	}
	return 0
}

// ShopInfo is the hand-off information shown next to a generated review.
type ShopInfo struct {
	Name            string `json:"name"`
	Address         string `json:"address"`
	GoogleReviewURL string `json:"google_review_url"`
}

// Info returns the hand-off projection of the shop.
func (s *Shop) Info() *ShopInfo {
	if s == nil {
		return nil
	}
	return &ShopInfo{Name: s.Name, Address: s.Address, GoogleReviewURL: s.GoogleReviewURL}
}
