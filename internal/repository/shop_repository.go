package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kkkkikiki/surveyreview/internal/model"
)

// ShopRepository handles shop and quota data operations
type ShopRepository struct {
	db DBExecutor
}

// NewShopRepository creates a new shop repository
func NewShopRepository(db DBExecutor) *ShopRepository {
	return &ShopRepository{db: db}
}

const quotaColumns = `id, monthly_review_limit, current_month_reviews, review_limit_reset_date`

// CreateShop inserts a shop. An empty ID is generated, a zero limit gets the default.
func (r *ShopRepository) CreateShop(ctx context.Context, shop *model.Shop) error {
	if shop.ID == "" {
		shop.ID = uuid.NewString()
	}
	if shop.MonthlyReviewLimit <= 0 {
		shop.MonthlyReviewLimit = model.DefaultMonthlyReviewLimit
	}
	if shop.BusinessType == "" {
		shop.BusinessType = model.DefaultBusinessType
	}

	query := `
		INSERT INTO shops (id, name, address, business_type, google_review_url, owner_id,
			monthly_review_limit, current_month_reviews, review_limit_reset_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`
	err := r.db.GetContext(ctx, shop, query,
		shop.ID, shop.Name, shop.Address, shop.BusinessType, shop.GoogleReviewURL, shop.OwnerID,
		shop.MonthlyReviewLimit, shop.CurrentMonthReviews, shop.ReviewLimitResetDate)
	if err != nil {
		return fmt.Errorf("failed to create shop: %w", err)
	}
	return nil
}

// GetShop retrieves a shop by ID
func (r *ShopRepository) GetShop(ctx context.Context, id string) (*model.Shop, error) {
	query := `
		SELECT id, name, address, business_type, google_review_url, owner_id,
			monthly_review_limit, current_month_reviews, review_limit_reset_date,
			created_at, updated_at
		FROM shops
		WHERE id = $1
	`
	var shop model.Shop
	if err := r.db.GetContext(ctx, &shop, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get shop: %w", err)
	}
	return &shop, nil
}

// GetQuota retrieves the quota projection of a shop
func (r *ShopRepository) GetQuota(ctx context.Context, shopID string) (*model.QuotaState, error) {
	query := `SELECT ` + quotaColumns + ` FROM shops WHERE id = $1`

	var q model.QuotaState
	if err := r.db.GetContext(ctx, &q, query, shopID); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get quota: %w", err)
	}
	return &q, nil
}

// ApplyRollover writes the rolled-over counter and reset date only when the
// stored reset date still equals prevReset. It reports whether a row changed.
func (r *ShopRepository) ApplyRollover(ctx context.Context, shopID string, prevReset *time.Time, next model.QuotaState) (bool, error) {
	query := `
		UPDATE shops
		SET current_month_reviews = $1, review_limit_reset_date = $2, updated_at = NOW()
		WHERE id = $3 AND review_limit_reset_date IS NOT DISTINCT FROM $4::timestamptz
	`
	result, err := r.db.ExecContext(ctx, query, next.Count, next.ResetDate, shopID, prevReset)
	if err != nil {
		return false, fmt.Errorf("failed to apply quota rollover: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

// ConsumeQuota increments the counter only while it is below the limit. The
// second return value is false when the shop is already at its limit.
func (r *ShopRepository) ConsumeQuota(ctx context.Context, shopID string) (*model.QuotaState, bool, error) {
	query := `
		UPDATE shops
		SET current_month_reviews = current_month_reviews + 1, updated_at = NOW()
		WHERE id = $1 AND current_month_reviews < monthly_review_limit
		RETURNING ` + quotaColumns

	var q model.QuotaState
	if err := r.db.GetContext(ctx, &q, query, shopID); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to consume quota: %w", err)
	}
	return &q, true, nil
}

// ReleaseQuota hands back one unit taken by ConsumeQuota in the period ending at
// resetDate. It reports false when the shop has rolled over since, in which
// case the counter is left alone.
func (r *ShopRepository) ReleaseQuota(ctx context.Context, shopID string, resetDate *time.Time) (bool, error) {
	query := `
		UPDATE shops
		SET current_month_reviews = current_month_reviews - 1, updated_at = NOW()
		WHERE id = $1 AND current_month_reviews > 0
		  AND review_limit_reset_date IS NOT DISTINCT FROM $2::timestamptz
	`
	result, err := r.db.ExecContext(ctx, query, shopID, resetDate)
	if err != nil {
		return false, fmt.Errorf("failed to release quota: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

// ListDueForReset returns shops whose reset date is missing or not after now
func (r *ShopRepository) ListDueForReset(ctx context.Context, now time.Time, limit int) ([]model.QuotaState, error) {
	query := `
		SELECT ` + quotaColumns + `
		FROM shops
		WHERE review_limit_reset_date IS NULL OR review_limit_reset_date <= $1
		ORDER BY review_limit_reset_date ASC NULLS FIRST
		LIMIT $2
	`
	var states []model.QuotaState
	if err := r.db.SelectContext(ctx, &states, query, now, limit); err != nil {
		return nil, fmt.Errorf("failed to list shops due for reset: %w", err)
	}
	return states, nil
}
