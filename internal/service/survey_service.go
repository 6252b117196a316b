package service

import (
	"context"
	"errors"
	"strings"

	"github.com/kkkkikiki/surveyreview/internal/apperr"
	"github.com/kkkkikiki/surveyreview/internal/logger"
	"github.com/kkkkikiki/surveyreview/internal/model"
	"github.com/kkkkikiki/surveyreview/internal/repository"
	"github.com/kkkkikiki/surveyreview/internal/survey"
)

// SurveyService serves survey definitions and records completed responses.
type SurveyService struct {
	log       *logger.Logger
	settings  SettingsStore
	responses ResponseStore
	shops     ShopStore
}

// NewSurveyService creates a new SurveyService
func NewSurveyService(settings SettingsStore, responses ResponseStore, shops ShopStore, log *logger.Logger) *SurveyService {
	return &SurveyService{
		log:       log.With("service", "SurveyService"),
		settings:  settings,
		responses: responses,
		shops:     shops,
	}
}

// SurveyView is what the survey UI needs to run one session.
type SurveyView struct {
	SurveySettingsID  string           `json:"surveySettingsId"`
	ShopID            string           `json:"shopId"`
	ShopName          string           `json:"shopName"`
	Title             string           `json:"title"`
	Description       string           `json:"description"`
	IntroMessage      string           `json:"introMessage"`
	OutroMessage      string           `json:"outroMessage"`
	CompletionMessage string           `json:"completionMessage"`
	Questions         []model.Question `json:"questions"`
	Theme             Theme            `json:"theme"`
}

// Theme holds the survey colors.
type Theme struct {
	Primary   string `json:"primaryColor"`
	Secondary string `json:"secondaryColor"`
	Accent    string `json:"accentColor"`
	Text      string `json:"textColor"`
}

// GetSurvey loads the shop's latest definition and selects the questions for a new session.
func (s *SurveyService) GetSurvey(ctx context.Context, shopID string) (*SurveyView, error) {
	if strings.TrimSpace(shopID) == "" {
		return nil, apperr.Validation("shopId is required")
	}
	shop, err := loadShop(ctx, s.shops, shopID)
	if err != nil {
		return nil, err
	}
	settings, err := s.settings.GetLatestByShop(ctx, shopID)
	if err != nil {
		return nil, lookupError("survey settings of shop "+shopID, err)
	}

	session := survey.NewSession(settings, survey.NewRand())
	questions := session.Questions()
	if questions == nil {
		questions = []model.Question{}
	}
	return &SurveyView{
		SurveySettingsID:  settings.ID,
		ShopID:            shop.ID,
		ShopName:          shop.Name,
		Title:             settings.Title,
		Description:       settings.Description,
		IntroMessage:      session.Intro(),
		OutroMessage:      session.Outro(),
		CompletionMessage: settings.CompletionMessage,
		Questions:         questions,
		Theme: Theme{
			Primary:   settings.PrimaryColor,
			Secondary: settings.SecondaryColor,
			Accent:    settings.AccentColor,
			Text:      settings.TextColor,
		},
	}, nil
}

// SubmitInput is a completed session's answers.
type SubmitInput struct {
	ShopID           string        `json:"shopId" validate:"required"`
	SurveySettingsID string        `json:"surveySettingsId" validate:"required"`
	Answers          model.Answers `json:"answers" validate:"required"`
}

// SubmitResponse validates answers against their definition and stores the response.
func (s *SurveyService) SubmitResponse(ctx context.Context, in SubmitInput) (*model.SurveyResponse, error) {
	if err := validate.Struct(in); err != nil {
		return nil, apperr.New(apperr.KindValidation, "invalid survey response", err)
	}

	settings, err := s.settings.GetByID(ctx, in.SurveySettingsID)
	if err != nil {
		return nil, lookupError("survey settings "+in.SurveySettingsID, err)
	}
	if settings.ShopID != in.ShopID {
		return nil, apperr.Validation("survey settings belong to another shop")
	}

	answers, err := survey.ValidateAnswers(settings.Questions, in.Answers)
	if err != nil {
		return nil, apperr.New(apperr.KindValidation, "invalid answers", err)
	}

	resp := &model.SurveyResponse{
		ShopID:           in.ShopID,
		SurveySettingsID: settings.ID,
		Answers:          answers,
	}
	if err := s.responses.Create(ctx, resp); err != nil {
		return nil, apperr.Persistence("save survey response", err)
	}
	s.log.Info("Survey response recorded", "shop_id", in.ShopID, "survey_response_id", resp.ID, "answers", len(answers))
	return resp, nil
}

// GetSettings returns the shop's latest definition.
func (s *SurveyService) GetSettings(ctx context.Context, p model.Principal, shopID string) (*model.SurveySettings, error) {
	shop, err := loadShop(ctx, s.shops, shopID)
	if err != nil {
		return nil, err
	}
	if !p.CanManage(shop) {
		return nil, apperr.Forbidden("shop belongs to another owner")
	}
	settings, err := s.settings.GetLatestByShop(ctx, shopID)
	if err != nil {
		return nil, lookupError("survey settings of shop "+shopID, err)
	}
	return settings, nil
}

// SaveSettings validates and stores a shop's definition.
func (s *SurveyService) SaveSettings(ctx context.Context, p model.Principal, settings *model.SurveySettings) (*model.SurveySettings, error) {
	if settings == nil || settings.ShopID == "" {
		return nil, apperr.Validation("shop_id is required")
	}
	shop, err := loadShop(ctx, s.shops, settings.ShopID)
	if err != nil {
		return nil, err
	}
	if !p.CanManage(shop) {
		return nil, apperr.Forbidden("shop belongs to another owner")
	}
	if err := survey.ValidateDefinition(settings); err != nil {
		return nil, apperr.New(apperr.KindValidation, "invalid survey definition", err)
	}

	if err := s.settings.Upsert(ctx, settings); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.Validation("survey settings id belongs to another shop")
		}
		return nil, apperr.Persistence("save survey settings", err)
	}
	s.log.Info("Survey settings saved", "shop_id", settings.ShopID, "survey_settings_id", settings.ID)
	return settings, nil
}
