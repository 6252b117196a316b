package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/kkkkikiki/surveyreview/internal/logger"
	"github.com/kkkkikiki/surveyreview/internal/quota"
)

// Sweeper applies due quota rollovers. Implemented by quota.Governor.
type Sweeper interface {
	Sweep(ctx context.Context, batch int) (quota.SweepResult, error)
}

// RolloverHandler processes quota:rollover tasks.
type RolloverHandler struct {
	sweeper Sweeper
	log     *logger.Logger
}

func NewRolloverHandler(sweeper Sweeper, log *logger.Logger) *RolloverHandler {
	return &RolloverHandler{sweeper: sweeper, log: log.With("task", TypeQuotaRollover)}
}

// ProcessTask runs one sweep. Shops that fail individually are left for the next
// run or the lazy path, so partial failure does not fail the task.
func (h *RolloverHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload RolloverPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode rollover payload: %v: %w", err, asynq.SkipRetry)
	}

	res, err := h.sweeper.Sweep(ctx, payload.Batch)
	if err != nil {
		h.log.Error("Quota sweep failed", "error", err)
		return err
	}
	if len(res.Failed) > 0 {
		h.log.Warn("Quota sweep finished with failures",
			"processed", res.Processed, "reset", res.Reset, "failed_shop_ids", res.Failed)
	}
	return nil
}
