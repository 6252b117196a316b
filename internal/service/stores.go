package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/kkkkikiki/surveyreview/internal/apperr"
	"github.com/kkkkikiki/surveyreview/internal/model"
	"github.com/kkkkikiki/surveyreview/internal/repository"
)

// ShopStore is implemented by repository.ShopRepository.
type ShopStore interface {
	GetShop(ctx context.Context, id string) (*model.Shop, error)
	CreateShop(ctx context.Context, shop *model.Shop) error
}

// SettingsStore is implemented by repository.SurveySettingsRepository.
type SettingsStore interface {
	GetByID(ctx context.Context, id string) (*model.SurveySettings, error)
	GetLatestByShop(ctx context.Context, shopID string) (*model.SurveySettings, error)
	Upsert(ctx context.Context, s *model.SurveySettings) error
}

// ResponseStore is implemented by repository.SurveyResponseRepository.
type ResponseStore interface {
	Create(ctx context.Context, resp *model.SurveyResponse) error
	GetByID(ctx context.Context, id string) (*model.SurveyResponse, error)
	GetResult(ctx context.Context, id string) (*model.SurveyResult, error)
}

// ReviewStore is implemented by repository.ReviewRepository.
type ReviewStore interface {
	GetByID(ctx context.Context, id string) (*model.Review, error)
	GetBySurveyResponseID(ctx context.Context, responseID string) (*model.Review, error)
	InsertIfAbsent(ctx context.Context, review *model.Review) (*model.Review, bool, error)
	UpdateContent(ctx context.Context, id, content string) (*model.Review, error)
}

// lookupError maps a repository error into the caller-facing taxonomy.
func lookupError(what string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound(what)
	}
	return apperr.Persistence(fmt.Sprintf("load %s", what), err)
}

func loadShop(ctx context.Context, shops ShopStore, id string) (*model.Shop, error) {
	shop, err := shops.GetShop(ctx, id)
	if err != nil {
		return nil, lookupError("shop "+id, err)
	}
	return shop, nil
}
