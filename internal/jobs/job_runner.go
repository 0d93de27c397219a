package jobs

import (
	"context"
	"time"

	"checkin-sync/internal/config"
	"checkin-sync/internal/logger"
	"checkin-sync/internal/service"
)

// JobRunner coordinates all scheduled jobs
type JobRunner struct {
	members service.MemberService
	config  *config.Config
	timeout time.Duration
}

// NewJobRunner creates a new job runner with all dependencies
func NewJobRunner(members service.MemberService, cfg *config.Config) *JobRunner {
	return &JobRunner{
		members: members,
		config:  cfg,
		timeout: 30 * time.Second,
	}
}

// Config returns the configuration the jobs were created with
func (jr *JobRunner) Config() *config.Config {
	return jr.config
}

// runWithRecovery wraps job execution with panic recovery
func (jr *JobRunner) runWithRecovery(jobName string, jobFunc func(ctx context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Job panicked", "job", jobName, "panic", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), jr.timeout)
	defer cancel()

	logger.Info("Starting job", "job", jobName)
	if err := jobFunc(ctx); err != nil {
		logger.Error("Job failed", "job", jobName, "error", err)
		return
	}
	logger.Info("Job completed", "job", jobName)
}

// BroadcastSnapshot pushes the full member list to every connected station
// so a station that silently diverged converges without reconnecting.
func (jr *JobRunner) BroadcastSnapshot() {
	jr.runWithRecovery("BroadcastSnapshot", jr.members.BroadcastSnapshot)
}
