package jobs

import (
	"context"

	"healthcompanion/internal/services"

	logger "github.com/Bparsons0904/goLogger"
)

type PendingSweeper interface {
	SweepPending(ctx context.Context) ([]*services.PipelineRun, error)
}

// PendingSweepJob re-drives uploads stuck in received between digests.
type PendingSweepJob struct {
	sweeper  PendingSweeper
	log      logger.Logger
	schedule services.Schedule
}

func NewPendingSweepJob(sweeper PendingSweeper, schedule services.Schedule) *PendingSweepJob {
	return &PendingSweepJob{
		sweeper:  sweeper,
		log:      logger.New("pendingSweepJob"),
		schedule: schedule,
	}
}

func (j *PendingSweepJob) Name() string {
	return "PendingAnalysisSweep"
}

func (j *PendingSweepJob) Execute(ctx context.Context) error {
	log := j.log.Function("Execute")

	runs, err := j.sweeper.SweepPending(ctx)
	if err != nil {
		return log.Err("pending sweep failed", err)
	}

	failed := 0
	for _, run := range runs {
		if run.Failed() {
			failed++
		}
	}
	if len(runs) > 0 {
		log.Info("Pending sweep completed", "runs", len(runs), "failed", failed)
	}
	return nil
}

func (j *PendingSweepJob) Schedule() services.Schedule {
	return j.schedule
}
