package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kkkkikiki/surveyreview/internal/apperr"
	"github.com/kkkkikiki/surveyreview/internal/logger"
	"github.com/kkkkikiki/surveyreview/internal/metrics"
	"github.com/kkkkikiki/surveyreview/internal/model"
	"github.com/kkkkikiki/surveyreview/internal/repository"
)

const defaultSweepBatch = 10000

// Store is the persistence the governor needs. Implemented by repository.ShopRepository.
type Store interface {
	GetQuota(ctx context.Context, shopID string) (*model.QuotaState, error)
	// ApplyRollover writes next only if the stored reset date still equals prevReset.
	ApplyRollover(ctx context.Context, shopID string, prevReset *time.Time, next model.QuotaState) (bool, error)
	// ConsumeQuota increments the counter only while it is below the limit.
	ConsumeQuota(ctx context.Context, shopID string) (*model.QuotaState, bool, error)
	// ReleaseQuota decrements the counter only while the stored reset date still equals resetDate.
	ReleaseQuota(ctx context.Context, shopID string, resetDate *time.Time) (bool, error)
	ListDueForReset(ctx context.Context, now time.Time, limit int) ([]model.QuotaState, error)
}

// Decision is the outcome of a quota check.
type Decision struct {
	Allowed   bool       `json:"allowed"`
	Count     int        `json:"count"`
	Limit     int        `json:"limit"`
	Remaining int        `json:"remaining"`
	ResetDate *time.Time `json:"reset_date,omitempty"`
}

func decide(q model.QuotaState) Decision {
	return Decision{
		Allowed:   q.Count < q.Limit,
		Count:     q.Count,
		Limit:     q.Limit,
		Remaining: q.Remaining(),
		ResetDate: q.ResetDate,
	}
}

// Governor enforces a shop's monthly generation allowance.
type Governor struct {
	store Store
	log   *logger.Logger
	now   func() time.Time
}

// NewGovernor creates a Governor. now defaults to time.Now.
func NewGovernor(store Store, log *logger.Logger, now func() time.Time) *Governor {
	if now == nil {
		now = time.Now
	}
	return &Governor{store: store, log: log.With("component", "QuotaGovernor"), now: now}
}

// CheckAndMaybeReset applies a due rollover, then reports whether a generation is allowed.
// Store failures are returned as errors; the caller must not proceed without a decision.
func (g *Governor) CheckAndMaybeReset(ctx context.Context, shopID string) (Decision, error) {
	q, err := g.current(ctx, shopID)
	if err != nil {
		return Decision{}, err
	}
	return decide(*q), nil
}

// Reserve atomically takes one unit of the allowance. It returns a QuotaExceeded
// error when the shop is at its limit. A reserved unit that ends up unused must
// be handed back with Release.
func (g *Governor) Reserve(ctx context.Context, shopID string) (Decision, error) {
	q, err := g.current(ctx, shopID)
	if err != nil {
		return Decision{}, err
	}
	if q.Count >= q.Limit {
		return decide(*q), apperr.QuotaExceeded(fmt.Sprintf("shop %s used %d of %d", shopID, q.Count, q.Limit))
	}

	updated, ok, err := g.store.ConsumeQuota(ctx, shopID)
	if err != nil {
		return Decision{}, apperr.Persistence("consume quota", err)
	}
	if !ok {
		return decide(*q), apperr.QuotaExceeded(fmt.Sprintf("shop %s reached its limit concurrently", shopID))
	}
	d := decide(*updated)
	d.Allowed = true
	return d, nil
}

// Release returns a unit taken by Reserve. reserved is the Decision Reserve
// returned; a unit from a period that has since rolled over is not returned.
func (g *Governor) Release(ctx context.Context, shopID string, reserved Decision) error {
	ok, err := g.store.ReleaseQuota(ctx, shopID, reserved.ResetDate)
	if err != nil {
		metrics.QuotaReleaseFailures.Inc()
		return apperr.Persistence("release quota", err)
	}
	if !ok {
		g.log.Info("Quota release skipped; period already rolled over", "shop_id", shopID)
	}
	return nil
}

// SweepResult summarizes one scheduled rollover pass.
type SweepResult struct {
	Processed int      `json:"processed"`
	Reset     int      `json:"reset"`
	Failed    []string `json:"failed_shop_ids,omitempty"`
}

// Sweep applies the rollover to every shop that is due, batch shops per page.
// Shops that fail stay due; they are reported once and not retried in this run.
func (g *Governor) Sweep(ctx context.Context, batch int) (SweepResult, error) {
	if batch <= 0 {
		batch = defaultSweepBatch
	}
	now := g.now()
	failed := make(map[string]struct{})

	var res SweepResult
	for ctx.Err() == nil {
		due, err := g.store.ListDueForReset(ctx, now, batch)
		if err != nil {
			if res.Processed > 0 {
				g.log.Error("Quota sweep stopped early", "processed", res.Processed, "error", err)
				break
			}
			return SweepResult{}, apperr.Persistence("list shops due for reset", err)
		}

		progressed := false
		for _, q := range due {
			if _, seen := failed[q.ShopID]; seen {
				continue
			}
			progressed = true
			res.Processed++
			next, changed := Rollover(q, now)
			if !changed {
				continue
			}
			ok, err := g.store.ApplyRollover(ctx, q.ShopID, q.ResetDate, next)
			if err != nil {
				g.log.Error("Quota rollover failed", "shop_id", q.ShopID, "error", err)
				failed[q.ShopID] = struct{}{}
				res.Failed = append(res.Failed, q.ShopID)
				continue
			}
			if ok {
				res.Reset++
				metrics.RecordRollover("sweep")
			}
		}
		if len(due) < batch || !progressed {
			break
		}
	}
	g.log.Info("Quota sweep finished", "processed", res.Processed, "reset", res.Reset, "failed", len(res.Failed))
	return res, nil
}

// current loads the quota state and applies a due rollover.
func (g *Governor) current(ctx context.Context, shopID string) (*model.QuotaState, error) {
	q, err := g.load(ctx, shopID)
	if err != nil {
		return nil, err
	}

	next, changed := Rollover(*q, g.now())
	if !changed {
		return q, nil
	}
	ok, err := g.store.ApplyRollover(ctx, shopID, q.ResetDate, next)
	if err != nil {
		return nil, apperr.Persistence("apply quota rollover", err)
	}
	if !ok {
		// Another request or the sweep rolled it over first.
		return g.load(ctx, shopID)
	}
	metrics.RecordRollover("lazy")
	g.log.Info("Quota rolled over", "shop_id", shopID, "next_reset", next.ResetDate.Format("2006-01-02"))
	return &next, nil
}

func (g *Governor) load(ctx context.Context, shopID string) (*model.QuotaState, error) {
	q, err := g.store.GetQuota(ctx, shopID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound(fmt.Sprintf("shop %s", shopID))
		}
		return nil, apperr.Persistence("load quota", err)
	}
	return q, nil
}
