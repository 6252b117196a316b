package jobs

import (
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/kkkkikiki/surveyreview/internal/logger"
)

// Runner owns the asynq scheduler and worker for periodic quota maintenance.
type Runner struct {
	scheduler *asynq.Scheduler
	server    *asynq.Server
	mux       *asynq.ServeMux
	log       *logger.Logger
}

// NewRunner registers the rollover sweep on the given cron schedule.
func NewRunner(redis asynq.RedisConnOpt, schedule string, batch int, sweeper Sweeper, log *logger.Logger) (*Runner, error) {
	log = log.With("component", "Jobs")

	task, err := NewRolloverTask(batch)
	if err != nil {
		return nil, err
	}

	scheduler := asynq.NewScheduler(redis, &asynq.SchedulerOpts{
		Logger:   log.SugaredLogger,
		Location: time.UTC,
		PostEnqueueFunc: func(info *asynq.TaskInfo, err error) {
			if err != nil {
				log.Error("Failed to enqueue scheduled task", "error", err)
			}
		},
	})
	entryID, err := scheduler.Register(schedule, task,
		asynq.Queue(QueueMaintenance),
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Minute),
		asynq.Unique(time.Minute),
	)
	if err != nil {
		return nil, fmt.Errorf("register %s on %q: %w", TypeQuotaRollover, schedule, err)
	}
	log.Info("Scheduled quota rollover", "schedule", schedule, "entry_id", entryID)

	server := asynq.NewServer(redis, asynq.Config{
		Concurrency: 1,
		Queues:      map[string]int{QueueMaintenance: 1},
		Logger:      log.SugaredLogger,
	})

	mux := asynq.NewServeMux()
	mux.Handle(TypeQuotaRollover, NewRolloverHandler(sweeper, log))

	return &Runner{scheduler: scheduler, server: server, mux: mux, log: log}, nil
}

// Start runs the worker and the scheduler in the background.
func (r *Runner) Start() error {
	if err := r.server.Start(r.mux); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	if err := r.scheduler.Start(); err != nil {
		r.server.Shutdown()
		return fmt.Errorf("start scheduler: %w", err)
	}
	return nil
}

// Shutdown stops scheduling and waits for the running task to finish.
func (r *Runner) Shutdown() {
	r.scheduler.Shutdown()
	r.server.Shutdown()
	r.log.Info("Job runner stopped")
}
