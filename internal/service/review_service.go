package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/kkkkikiki/surveyreview/internal/apperr"
	"github.com/kkkkikiki/surveyreview/internal/generation"
	"github.com/kkkkikiki/surveyreview/internal/lock"
	"github.com/kkkkikiki/surveyreview/internal/logger"
	"github.com/kkkkikiki/surveyreview/internal/metrics"
	"github.com/kkkkikiki/surveyreview/internal/model"
	"github.com/kkkkikiki/surveyreview/internal/prompt"
	"github.com/kkkkikiki/surveyreview/internal/quota"
	"github.com/kkkkikiki/surveyreview/internal/repository"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ReviewOptions tunes ReviewService.
type ReviewOptions struct {
	GenerationTimeout time.Duration
	LockTTL           time.Duration
	LockPollInterval  time.Duration
	// QuotaRecheckWait is how long a request that hit the limit keeps looking for
	// a review stored by a concurrent request for the same response.
	QuotaRecheckWait  time.Duration
}

// ReviewService turns survey responses into persisted reviews, at most once per response.
type ReviewService struct {
	log       *logger.Logger
	reviews   ReviewStore
	responses ResponseStore
	settings  SettingsStore
	shops     ShopStore
	governor  *quota.Governor
	prompts   *prompt.Builder
	generator generation.Generator
	locker    lock.Locker
	opts      ReviewOptions
}

// ReviewDeps groups ReviewService collaborators. Locker may be nil.
type ReviewDeps struct {
	Reviews   ReviewStore
	Responses ResponseStore
	Settings  SettingsStore
	Shops     ShopStore
	Governor  *quota.Governor
	Prompts   *prompt.Builder
	Generator generation.Generator
	Locker    lock.Locker
}

// NewReviewService creates a new ReviewService
func NewReviewService(deps ReviewDeps, opts ReviewOptions, log *logger.Logger) *ReviewService {
	if opts.GenerationTimeout <= 0 {
		opts.GenerationTimeout = 280 * time.Second
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = opts.GenerationTimeout + 10*time.Second
	}
	if opts.LockPollInterval <= 0 {
		opts.LockPollInterval = 500 * time.Millisecond
	}
	if opts.QuotaRecheckWait <= 0 {
		opts.QuotaRecheckWait = 4 * opts.LockPollInterval
	}
	if deps.Prompts == nil {
		deps.Prompts = prompt.NewBuilder(nil)
	}
	return &ReviewService{
		log:       log.With("service", "ReviewService"),
		reviews:   deps.Reviews,
		responses: deps.Responses,
		settings:  deps.Settings,
		shops:     deps.Shops,
		governor:  deps.Governor,
		prompts:   deps.Prompts,
		generator: deps.Generator,
		locker:    deps.Locker,
		opts:      opts,
	}
}

// GenerateResult is the outcome of GenerateReview.
type GenerateResult struct {
	Content    string          `json:"review"`
	IsExisting bool            `json:"isExisting"`
	ShopInfo   *model.ShopInfo `json:"shopInfo,omitempty"`
}

// GenerateReview returns the review bound to a survey response, generating it
// when none exists yet. Repeated and concurrent calls for the same response
// return the same content and generate at most once per stored review.
func (s *ReviewService) GenerateReview(ctx context.Context, responseID string) (res *GenerateResult, err error) {
	start := time.Now()
	outcome := "generated"
	defer func() {
		switch {
		case err != nil:
			outcome = string(apperr.KindOf(err))
		case res.IsExisting:
			outcome = "existing"
		}
		metrics.RecordReviewGeneration(outcome, time.Since(start).Seconds())
	}()

	responseID = strings.TrimSpace(responseID)
	if responseID == "" {
		return nil, apperr.Validation("surveyId is required")
	}
	log := s.log.With("survey_response_id", responseID)

	if existing, err := s.existing(ctx, responseID); err != nil || existing != nil {
		return existing, err
	}

	if s.locker != nil {
		release, existing, err := s.lock(ctx, responseID)
		if err != nil || existing != nil {
			return existing, err
		}
		defer release()
	}

	resp, err := s.responses.GetByID(ctx, responseID)
	if err != nil {
		return nil, lookupError("survey response "+responseID, err)
	}
	settings, err := s.settings.GetByID(ctx, resp.SurveySettingsID)
	if err != nil {
		return nil, lookupError("survey settings "+resp.SurveySettingsID, err)
	}
	shop, err := loadShop(ctx, s.shops, resp.ShopID)
	if err != nil {
		return nil, err
	}

	reserved, err := s.governor.Reserve(ctx, shop.ID)
	if err != nil {
		if apperr.KindOf(err) != apperr.KindQuotaExceeded {
			return nil, err
		}
		// Without a lock a duplicate request may hold the last unit; its review
		// is the answer for this one too.
		existing, lookupErr := s.awaitExisting(ctx, responseID)
		if lookupErr != nil {
			return nil, lookupErr
		}
		if existing != nil {
			return existing, nil
		}
		log.Info("Monthly review limit reached", "shop_id", shop.ID)
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			s.release(ctx, shop.ID, reserved)
		}
	}()

	p := s.prompts.Build(prompt.Input{
		Answers:          resp.Answers,
		QuestionTextByID: settings.Questions.TextByID(),
		ShopName:         shop.Name,
		BusinessType:     shop.BusinessType,
		Keywords:         settings.Keywords,
		Template:         settings.PromptTemplate,
		Tones:            settings.Tones,
		DefaultTone:      settings.DefaultTone,
		UseRandomTone:    settings.UseRandomTone,
	})
	log.Debug("Prompt built", "tone", p.Tone, "prompt", p.Text)

	// The caller going away does not cancel generation or persistence.
	detached := context.WithoutCancel(ctx)
	genCtx, cancel := context.WithTimeout(detached, s.opts.GenerationTimeout)
	content, err := s.generator.Generate(genCtx, generation.Request{System: prompt.SystemInstruction, Prompt: p.Text})
	cancel()
	if err != nil {
		appErr := generation.AppError(err)
		log.Error("Review generation failed", "kind", appErr.Kind, "error", err)
		return nil, appErr
	}

	if len(settings.Keywords) > 0 {
		if used := prompt.CountKeywordUsage(content, settings.Keywords); len(used) < prompt.MinKeywords {
			log.Warn("Generated review uses too few keywords", "used", used, "want", prompt.MinKeywords)
		}
	}

	stored, inserted, err := s.reviews.InsertIfAbsent(detached, &model.Review{
		SurveyResponseID: responseID,
		ShopID:           shop.ID,
		Content:          content,
	})
	if err != nil {
		log.Error("Failed to save generated review", "error", err)
		return nil, apperr.Persistence("save review", err)
	}
	if !inserted {
		log.Info("Concurrent request stored the review first; discarding generated text")
		return &GenerateResult{Content: stored.Content, IsExisting: true, ShopInfo: shop.Info()}, nil
	}

	committed = true
	log.Info("Review generated", "shop_id", shop.ID, "review_id", stored.ID)
	return &GenerateResult{Content: stored.Content, ShopInfo: shop.Info()}, nil
}

// existing returns the stored review for responseID, or nil when there is none.
func (s *ReviewService) existing(ctx context.Context, responseID string) (*GenerateResult, error) {
	review, err := s.reviews.GetBySurveyResponseID(ctx, responseID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Persistence("check existing review", err)
	}

	res := &GenerateResult{Content: review.Content, IsExisting: true}
	if shop, err := s.shops.GetShop(ctx, review.ShopID); err == nil {
		res.ShopInfo = shop.Info()
	}
	return res, nil
}

// lock takes the per-response generation lock. While another request holds it
// the caller polls for the review that request is about to store. A lock
// backend failure falls back to running unlocked; the unique constraint on
// reviews still keeps one row per response.
func (s *ReviewService) lock(ctx context.Context, responseID string) (func(), *GenerateResult, error) {
	key := "review:" + responseID
	for {
		release, acquired, err := s.locker.Acquire(ctx, key, s.opts.LockTTL)
		if err != nil {
			s.log.Warn("Generation lock unavailable, continuing without it", "key", key, "error", err)
			return func() {}, nil, nil
		}
		if acquired {
			// The previous holder may have finished between our check and the lock.
			existing, err := s.existing(ctx, responseID)
			if err != nil || existing != nil {
				release()
				return nil, existing, err
			}
			return release, nil, nil
		}

		t := time.NewTimer(s.opts.LockPollInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, nil, apperr.New(apperr.KindGenerationTimeout, "waiting for concurrent generation", ctx.Err())
		case <-t.C:
		}

		existing, err := s.existing(ctx, responseID)
		if err != nil || existing != nil {
			return nil, existing, err
		}
	}
}

// awaitExisting polls for a review of responseID for up to QuotaRecheckWait.
func (s *ReviewService) awaitExisting(ctx context.Context, responseID string) (*GenerateResult, error) {
	deadline := time.Now().Add(s.opts.QuotaRecheckWait)
	for {
		existing, err := s.existing(ctx, responseID)
		if err != nil || existing != nil {
			return existing, err
		}
		if !time.Now().Before(deadline) {
			return nil, nil
		}

		t := time.NewTimer(s.opts.LockPollInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, nil
		case <-t.C:
		}
	}
}

func (s *ReviewService) release(ctx context.Context, shopID string, reserved quota.Decision) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.governor.Release(ctx, shopID, reserved); err != nil {
		s.log.Error("Failed to release quota reservation", "shop_id", shopID, "error", err)
	}
}

// SaveInput is a manually saved review.
type SaveInput struct {
	SurveyResponseID string `json:"surveyResponseId" validate:"required"`
	ShopID           string `json:"shopId"`
	Content          string `json:"content" validate:"required"`
}

// SaveReview stores a review for a response unless one exists, in which case
// the existing review is returned unchanged.
func (s *ReviewService) SaveReview(ctx context.Context, in SaveInput) (*model.Review, error) {
	in.Content = strings.TrimSpace(in.Content)
	if err := validate.Struct(in); err != nil {
		return nil, apperr.New(apperr.KindValidation, "invalid save-review request", err)
	}

	resp, err := s.responses.GetByID(ctx, in.SurveyResponseID)
	if err != nil {
		return nil, lookupError("survey response "+in.SurveyResponseID, err)
	}
	if in.ShopID != "" && in.ShopID != resp.ShopID {
		return nil, apperr.Validation("shopId does not match the survey response")
	}

	review, _, err := s.reviews.InsertIfAbsent(ctx, &model.Review{
		SurveyResponseID: resp.ID,
		ShopID:           resp.ShopID,
		Content:          in.Content,
	})
	if err != nil {
		return nil, apperr.Persistence("save review", err)
	}
	return review, nil
}

// EditReview replaces the content of a review the principal may manage.
func (s *ReviewService) EditReview(ctx context.Context, p model.Principal, reviewID, content string) (*model.Review, error) {
	content = strings.TrimSpace(content)
	if reviewID == "" || content == "" {
		return nil, apperr.Validation("review id and content are required")
	}

	review, err := s.reviews.GetByID(ctx, reviewID)
	if err != nil {
		return nil, lookupError("review "+reviewID, err)
	}
	shop, err := loadShop(ctx, s.shops, review.ShopID)
	if err != nil {
		return nil, err
	}
	if !p.CanManage(shop) {
		return nil, apperr.Forbidden("review belongs to another shop")
	}

	updated, err := s.reviews.UpdateContent(ctx, reviewID, content)
	if err != nil {
		return nil, lookupError("review "+reviewID, err)
	}
	return updated, nil
}

// GetSurveyResult returns a response with its questions and reviews.
func (s *ReviewService) GetSurveyResult(ctx context.Context, id string) (*model.SurveyResult, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperr.Validation("id is required")
	}
	result, err := s.responses.GetResult(ctx, id)
	if err != nil {
		return nil, lookupError("survey result "+id, err)
	}
	return result, nil
}

// CheckQuota reports the shop's remaining allowance, applying a due rollover.
func (s *ReviewService) CheckQuota(ctx context.Context, shopID string) (quota.Decision, error) {
	if strings.TrimSpace(shopID) == "" {
		return quota.Decision{}, apperr.Validation("shopId is required")
	}
	return s.governor.CheckAndMaybeReset(ctx, shopID)
}
