package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kkkkikiki/surveyreview/internal/apperr"
	"github.com/kkkkikiki/surveyreview/internal/logger"
	"github.com/kkkkikiki/surveyreview/internal/model"
	"github.com/kkkkikiki/surveyreview/internal/quota"
	"github.com/kkkkikiki/surveyreview/internal/service"
)

// Reviews is the review surface used by the routes. Implemented by service.ReviewService.
type Reviews interface {
	GenerateReview(ctx context.Context, responseID string) (*service.GenerateResult, error)
	SaveReview(ctx context.Context, in service.SaveInput) (*model.Review, error)
	EditReview(ctx context.Context, p model.Principal, reviewID, content string) (*model.Review, error)
	GetSurveyResult(ctx context.Context, id string) (*model.SurveyResult, error)
	CheckQuota(ctx context.Context, shopID string) (quota.Decision, error)
}

// Surveys is implemented by service.SurveyService.
type Surveys interface {
	GetSurvey(ctx context.Context, shopID string) (*service.SurveyView, error)
	SubmitResponse(ctx context.Context, in service.SubmitInput) (*model.SurveyResponse, error)
	GetSettings(ctx context.Context, p model.Principal, shopID string) (*model.SurveySettings, error)
	SaveSettings(ctx context.Context, p model.Principal, settings *model.SurveySettings) (*model.SurveySettings, error)
}

// Shops is implemented by service.ShopService.
type Shops interface {
	CreateShop(ctx context.Context, p model.Principal, in service.CreateShopInput) (*model.Shop, error)
	RunRollover(ctx context.Context, p model.Principal) (quota.SweepResult, error)
}

// Handler serves the REST surface.
type Handler struct {
	log     *logger.Logger
	reviews Reviews
	surveys Surveys
	shops   Shops
	dev     bool
}

// NewHandler creates a new Handler. dev adds raw error details to error bodies.
func NewHandler(reviews Reviews, surveys Surveys, shops Shops, dev bool, log *logger.Logger) *Handler {
	return &Handler{
		log:     log.With("component", "Handler"),
		reviews: reviews,
		surveys: surveys,
		shops:   shops,
		dev:     dev,
	}
}

type quotaResponse struct {
	IsLimitReached   bool   `json:"isLimitReached"`
	CurrentCount     int    `json:"currentCount"`
	Limit            int    `json:"limit"`
	RemainingReviews int    `json:"remainingReviews"`
	ResetDate        string `json:"resetDate,omitempty"`
}

func (h *Handler) surveyQuota(w http.ResponseWriter, r *http.Request) {
	shopID := strings.TrimSpace(r.URL.Query().Get("shopId"))
	if shopID == "" {
		h.writeError(w, r, apperr.Validation("shopId is required"))
		return
	}
	d, err := h.reviews.CheckQuota(r.Context(), shopID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := quotaResponse{
		IsLimitReached:   !d.Allowed,
		CurrentCount:     d.Count,
		Limit:            d.Limit,
		RemainingReviews: d.Remaining,
	}
	if d.ResetDate != nil {
		resp.ResetDate = d.ResetDate.Format("2006-01-02")
	}
	h.writeJSON(w, http.StatusOK, resp)
}

type generateRequest struct {
	SurveyID string `json:"surveyId"`
}

func (h *Handler) generateReview(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.reviews.GenerateReview(r.Context(), strings.TrimSpace(req.SurveyID))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

type reviewResponse struct {
	Success bool          `json:"success"`
	Review  *model.Review `json:"review"`
}

func (h *Handler) saveReview(w http.ResponseWriter, r *http.Request) {
	var in service.SaveInput
	if err := decodeJSON(r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	review, err := h.reviews.SaveReview(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, reviewResponse{Success: true, Review: review})
}

func (h *Handler) surveyResult(w http.ResponseWriter, r *http.Request) {
	result, err := h.reviews.GetSurveyResult(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) getSurvey(w http.ResponseWriter, r *http.Request) {
	view, err := h.surveys.GetSurvey(r.Context(), chi.URLParam(r, "shopId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

func (h *Handler) submitResponse(w http.ResponseWriter, r *http.Request) {
	var in service.SubmitInput
	if err := decodeJSON(r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	resp, err := h.surveys.SubmitResponse(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) getSettings(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	settings, err := h.surveys.GetSettings(r.Context(), p, chi.URLParam(r, "shopId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, settings)
}

func (h *Handler) saveSettings(w http.ResponseWriter, r *http.Request) {
	var settings model.SurveySettings
	if err := decodeJSON(r, &settings); err != nil {
		h.writeError(w, r, err)
		return
	}
	p, _ := PrincipalFrom(r.Context())
	saved, err := h.surveys.SaveSettings(r.Context(), p, &settings)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, saved)
}

type editRequest struct {
	Content string `json:"content"`
}

func (h *Handler) editReview(w http.ResponseWriter, r *http.Request) {
	var req editRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	p, _ := PrincipalFrom(r.Context())
	review, err := h.reviews.EditReview(r.Context(), p, chi.URLParam(r, "id"), req.Content)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, reviewResponse{Success: true, Review: review})
}

func (h *Handler) createShop(w http.ResponseWriter, r *http.Request) {
	var in service.CreateShopInput
	if err := decodeJSON(r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	p, _ := PrincipalFrom(r.Context())
	shop, err := h.shops.CreateShop(r.Context(), p, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, shop)
}

// rolloverQuota answers 207 when some shops could not be reset.
func (h *Handler) rolloverQuota(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	res, err := h.shops.RunRollover(r.Context(), p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if len(res.Failed) > 0 {
		status = http.StatusMultiStatus
	}
	h.writeJSON(w, status, res)
}
