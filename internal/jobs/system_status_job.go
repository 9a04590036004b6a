package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// StatusRefresher is refreshed on every tick of the system status job
type StatusRefresher interface {
	Refresh(ctx context.Context) error
}

// SystemStatusJobName is the scheduler name of the system status refresh
const SystemStatusJobName = "system-status-refresh"

// SystemStatusJob refreshes the system status snapshot, bounding each run by a timeout
type SystemStatusJob struct {
	refresher StatusRefresher
	timeout   time.Duration
	logger    *zap.Logger
	ctx       context.Context
}

// NewSystemStatusJob creates the job. Runs stop early once ctx is cancelled.
func NewSystemStatusJob(ctx context.Context, refresher StatusRefresher, timeout time.Duration, logger *zap.Logger) *SystemStatusJob {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &SystemStatusJob{
		refresher: refresher,
		timeout:   timeout,
		logger:    logger,
		ctx:       ctx,
	}
}

// Run performs one refresh
func (j *SystemStatusJob) Run() {
	ctx, cancel := context.WithTimeout(j.ctx, j.timeout)
	defer cancel()

	start := time.Now()
	if err := j.refresher.Refresh(ctx); err != nil {
		j.logger.Warn("system status refresh failed",
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return
	}
	j.logger.Debug("system status refreshed", zap.Duration("duration", time.Since(start)))
}

// Register adds the job to scheduler and runs it once so a snapshot exists before the first tick
func (j *SystemStatusJob) Register(scheduler *Scheduler, cronExpr string) error {
	if err := scheduler.AddJob(SystemStatusJobName, cronExpr, j.Run); err != nil {
		return err
	}
	go j.Run()
	return nil
}
