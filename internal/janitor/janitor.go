// Package janitor runs periodic housekeeping jobs such as purging expired
// verification records.
package janitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
)

// Janitor schedules jobs on a gocron scheduler. Jobs never overlap with
// themselves; a run that overlaps the next tick is rescheduled.
type Janitor struct {
	scheduler gocron.Scheduler
	logger    *slog.Logger
}

func New(logger *slog.Logger) (*Janitor, error) {
	if logger == nil {
		logger = slog.Default()
	}

	scheduler, err := gocron.NewScheduler(
		gocron.WithGlobalJobOptions(
			gocron.WithEventListeners(
				gocron.AfterJobRunsWithError(func(jobID uuid.UUID, jobName string, err error) {
					logger.Error("job failed", "job_name", jobName, "job_id", jobID.String(), "error", err)
				}),
				gocron.AfterJobRunsWithPanic(func(jobID uuid.UUID, jobName string, recoverData any) {
					logger.Error("job panicked", "job_name", jobName, "job_id", jobID.String(), "recover_data", recoverData)
				}),
			),
		),
		gocron.WithLogger(logger),
		gocron.WithLocation(time.UTC),
	)
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	return &Janitor{scheduler: scheduler, logger: logger}, nil
}

// Every registers fn to run immediately once started and then every interval.
func (j *Janitor) Every(ctx context.Context, name string, interval time.Duration, fn func(context.Context) error) error {
	if interval <= 0 {
		return fmt.Errorf("janitor: job %q interval must be > 0", name)
	}

	_, err := j.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(fn),
		gocron.WithContext(ctx),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithName(name),
	)
	if err != nil {
		return fmt.Errorf("janitor: schedule %q: %w", name, err)
	}
	return nil
}

func (j *Janitor) Start() {
	j.scheduler.Start()
}

// Shutdown stops scheduling and waits for running jobs.
func (j *Janitor) Shutdown() error {
	return j.scheduler.Shutdown()
}
