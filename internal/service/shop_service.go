package service

import (
	"context"
	"strings"

	"github.com/kkkkikiki/surveyreview/internal/apperr"
	"github.com/kkkkikiki/surveyreview/internal/logger"
	"github.com/kkkkikiki/surveyreview/internal/model"
	"github.com/kkkkikiki/surveyreview/internal/quota"
)

// ShopService covers admin operations on shops and their quotas.
type ShopService struct {
	log        *logger.Logger
	shops      ShopStore
	governor   *quota.Governor
	sweepBatch int
}

// NewShopService creates a new ShopService
func NewShopService(shops ShopStore, governor *quota.Governor, sweepBatch int, log *logger.Logger) *ShopService {
	if sweepBatch <= 0 {
		sweepBatch = 10000
	}
	return &ShopService{
		log:        log.With("service", "ShopService"),
		shops:      shops,
		governor:   governor,
		sweepBatch: sweepBatch,
	}
}

// CreateShopInput registers a shop.
type CreateShopInput struct {
	Name               string `json:"name" validate:"required"`
	Address            string `json:"address"`
	BusinessType       string `json:"businessType"`
	GoogleReviewURL    string `json:"googleReviewUrl" validate:"omitempty,url"`
	OwnerID            string `json:"ownerId"`
	MonthlyReviewLimit int    `json:"monthlyReviewLimit" validate:"gte=0"`
}

// CreateShop registers a shop. Admin only.
func (s *ShopService) CreateShop(ctx context.Context, p model.Principal, in CreateShopInput) (*model.Shop, error) {
	if p.Role != model.RoleAdmin {
		return nil, apperr.Forbidden("admin role required")
	}
	in.Name = strings.TrimSpace(in.Name)
	if err := validate.Struct(in); err != nil {
		return nil, apperr.New(apperr.KindValidation, "invalid shop", err)
	}

	shop := &model.Shop{
		Name:               in.Name,
		Address:            in.Address,
		BusinessType:       in.BusinessType,
		GoogleReviewURL:    in.GoogleReviewURL,
		OwnerID:            in.OwnerID,
		MonthlyReviewLimit: in.MonthlyReviewLimit,
	}
	if err := s.shops.CreateShop(ctx, shop); err != nil {
		return nil, apperr.Persistence("create shop", err)
	}
	s.log.Info("Shop registered", "shop_id", shop.ID, "limit", shop.MonthlyReviewLimit)
	return shop, nil
}

// RunRollover applies the monthly reset to every due shop. Admin only.
func (s *ShopService) RunRollover(ctx context.Context, p model.Principal) (quota.SweepResult, error) {
	if p.Role != model.RoleAdmin {
		return quota.SweepResult{}, apperr.Forbidden("admin role required")
	}
	return s.governor.Sweep(ctx, s.sweepBatch)
}
