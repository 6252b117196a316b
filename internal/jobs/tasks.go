package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	TypeQuotaRollover = "quota:rollover"

	// QueueMaintenance holds scheduled housekeeping tasks.
	QueueMaintenance = "maintenance"
)

type RolloverPayload struct {
	Batch int `json:"batch"`
}

func NewRolloverTask(batch int) (*asynq.Task, error) {
	payload, err := json.Marshal(RolloverPayload{Batch: batch})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeQuotaRollover, payload), nil
}
