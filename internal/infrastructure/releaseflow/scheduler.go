package releaseflow

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.temporal.io/sdk/client"
)

// workflowStarter is the slice of client.Client the scheduler uses.
type workflowStarter interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
}

// Scheduler starts one release workflow per delivered order.
type Scheduler struct {
	client    workflowStarter
	taskQueue string
	logger    zerolog.Logger
}

func NewScheduler(c workflowStarter, taskQueue string, logger zerolog.Logger) *Scheduler {
	if taskQueue == "" {
		taskQueue = DefaultTaskQueue
	}
	return &Scheduler{
		client:    c,
		taskQueue: taskQueue,
		logger:    logger.With().Str("component", "release_scheduler").Logger(),
	}
}

// ScheduleRelease is idempotent per order: starting a workflow whose ID is
// already running returns that run.
func (s *Scheduler) ScheduleRelease(ctx context.Context, orderID uuid.UUID, releaseAt time.Time) error {
	id := orderID.String()
	run, err := s.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        WorkflowID(id),
		TaskQueue: s.taskQueue,
	}, EscrowReleaseWorkflow, ReleaseRequest{OrderID: id, ReleaseAt: releaseAt})
	if err != nil {
		return err
	}
	s.logger.Info().
		Str("order_id", id).
		Str("workflow_id", run.GetID()).
		Time("release_at", releaseAt).
		Msg("escrow release scheduled")
	return nil
}
