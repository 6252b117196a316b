package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kkkkikiki/surveyreview/internal/generation"
	"github.com/kkkkikiki/surveyreview/internal/model"
	"github.com/kkkkikiki/surveyreview/internal/quota"
	"github.com/kkkkikiki/surveyreview/internal/repository"
)

type memShops struct {
	mu    sync.Mutex
	shops map[string]*model.Shop
}

func newMemShops() *memShops { return &memShops{shops: map[string]*model.Shop{}} }

func (m *memShops) add(s model.Shop) *model.Shop {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	m.shops[s.ID] = &s
	return &s
}

func (m *memShops) count(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shops[id].CurrentMonthReviews
}

func (m *memShops) GetShop(_ context.Context, id string) (*model.Shop, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.shops[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memShops) CreateShop(_ context.Context, s *model.Shop) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.MonthlyReviewLimit == 0 {
		s.MonthlyReviewLimit = model.DefaultMonthlyReviewLimit
	}
	m.add(*s)
	return nil
}

func (m *memShops) quota(s *model.Shop) model.QuotaState {
	return model.QuotaState{ShopID: s.ID, Limit: s.MonthlyReviewLimit, Count: s.CurrentMonthReviews, ResetDate: s.ReviewLimitResetDate}
}

func (m *memShops) GetQuota(_ context.Context, id string) (*model.QuotaState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.shops[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	q := m.quota(s)
	return &q, nil
}

func (m *memShops) ApplyRollover(_ context.Context, id string, prev *time.Time, next model.QuotaState) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.shops[id]
	cur := s.ReviewLimitResetDate
	if (cur == nil) != (prev == nil) || (cur != nil && !cur.Equal(*prev)) {
		return false, nil
	}
	s.CurrentMonthReviews = next.Count
	s.ReviewLimitResetDate = next.ResetDate
	return true, nil
}

func (m *memShops) ConsumeQuota(_ context.Context, id string) (*model.QuotaState, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.shops[id]
	if s.CurrentMonthReviews >= s.MonthlyReviewLimit {
		return nil, false, nil
	}
	s.CurrentMonthReviews++
	q := m.quota(s)
	return &q, true, nil
}

func (m *memShops) ReleaseQuota(_ context.Context, id string, resetDate *time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.shops[id]
	cur := s.ReviewLimitResetDate
	if s.CurrentMonthReviews == 0 || (cur == nil) != (resetDate == nil) || (cur != nil && !cur.Equal(*resetDate)) {
		return false, nil
	}
	s.CurrentMonthReviews--
	return true, nil
}

func (m *memShops) ListDueForReset(_ context.Context, now time.Time, limit int) ([]model.QuotaState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.QuotaState
	for _, s := range m.shops {
		if q := m.quota(s); quota.Due(q, now) && len(out) < limit {
			out = append(out, q)
		}
	}
	return out, nil
}

type memSettings struct {
	mu   sync.Mutex
	rows map[string]*model.SurveySettings
}

func newMemSettings() *memSettings { return &memSettings{rows: map[string]*model.SurveySettings{}} }

func (m *memSettings) GetByID(_ context.Context, id string) (*model.SurveySettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memSettings) GetLatestByShop(_ context.Context, shopID string) (*model.SurveySettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.rows {
		if s.ShopID == shopID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memSettings) Upsert(_ context.Context, s *model.SurveySettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == "" {
		for _, existing := range m.rows {
			if existing.ShopID == s.ShopID {
				s.ID = existing.ID
			}
		}
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if existing, ok := m.rows[s.ID]; ok && existing.ShopID != s.ShopID {
		return repository.ErrNotFound
	}
	cp := *s
	m.rows[s.ID] = &cp
	return nil
}

type memResponses struct {
	mu       sync.Mutex
	rows     map[string]*model.SurveyResponse
	settings *memSettings
	reviews  *memReviews
}

func (m *memResponses) Create(_ context.Context, r *model.SurveyResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.CreatedAt = time.Now()
	cp := *r
	m.rows[r.ID] = &cp
	return nil
}

func (m *memResponses) GetByID(_ context.Context, id string) (*model.SurveyResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memResponses) GetResult(ctx context.Context, id string) (*model.SurveyResult, error) {
	resp, err := m.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	res := &model.SurveyResult{SurveyResponse: *resp}
	if s, err := m.settings.GetByID(ctx, resp.SurveySettingsID); err == nil {
		res.SurveySettings.Questions = s.Questions
	}
	if r, err := m.reviews.GetBySurveyResponseID(ctx, id); err == nil {
		res.Reviews = []model.Review{*r}
	}
	return res, nil
}

type memReviews struct {
	mu   sync.Mutex
	rows map[string]*model.Review // by survey response id
}

func newMemReviews() *memReviews { return &memReviews{rows: map[string]*model.Review{}} }

func (m *memReviews) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

func (m *memReviews) GetByID(_ context.Context, id string) (*model.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.ID == id {
			cp := *r
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memReviews) GetBySurveyResponseID(_ context.Context, responseID string) (*model.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[responseID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memReviews) InsertIfAbsent(_ context.Context, r *model.Review) (*model.Review, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.rows[r.SurveyResponseID]; ok {
		cp := *existing
		return &cp, false, nil
	}
	cp := *r
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	m.rows[r.SurveyResponseID] = &cp
	out := cp
	return &out, true, nil
}

func (m *memReviews) UpdateContent(_ context.Context, id, content string) (*model.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.ID == id {
			r.Content = content
			r.UpdatedAt = time.Now()
			cp := *r
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

// fakeGenerator returns numbered reviews so distinct calls produce distinct text.
type fakeGenerator struct {
	calls   int32
	delay   time.Duration
	err     error
	prompts chan string
	hook    func(ctx context.Context)
}

func (g *fakeGenerator) Generate(ctx context.Context, req generation.Request) (string, error) {
	n := atomic.AddInt32(&g.calls, 1)
	if g.hook != nil {
		g.hook(ctx)
	}
	if g.prompts != nil {
		g.prompts <- req.Prompt
	}
	if g.delay > 0 {
		select {
		case <-time.After(g.delay):
		case <-ctx.Done():
			return "", &generation.Error{Kind: generation.KindTimeout, Err: ctx.Err()}
		}
	}
	if g.err != nil {
		return "", g.err
	}
	return fmt.Sprintf("駅近で清潔なお店でした。口コミ#%d", n), nil
}

func (g *fakeGenerator) count() int { return int(atomic.LoadInt32(&g.calls)) }
