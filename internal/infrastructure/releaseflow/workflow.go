// Package releaseflow runs the delayed escrow release as a Temporal workflow:
// one durable timer per delivered order, then a single release attempt.
package releaseflow

import (
	"errors"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const (
	DefaultTaskQueue = "escrow-release"

	errTypeDisputeBlocking = "DisputeBlocking"
	errTypeRejected        = "ReleaseRejected"
)

// ReleaseRequest is the workflow input.
type ReleaseRequest struct {
	OrderID   string    `json:"orderId"`
	ReleaseAt time.Time `json:"releaseAt"`
}

// ReleaseResult reports what the attempt did.
type ReleaseResult struct {
	OrderID  string `json:"orderId"`
	Released bool   `json:"released"`
	Blocked  bool   `json:"blocked"`
}

// WorkflowID keeps one release workflow per order.
func WorkflowID(orderID string) string {
	return "escrow-release-" + orderID
}

// EscrowReleaseWorkflow sleeps until the cooldown has elapsed and asks the
// engine to release. A dispute ends the workflow without releasing; the
// periodic sweep picks the order up again once the dispute is settled.
func EscrowReleaseWorkflow(ctx workflow.Context, req ReleaseRequest) (ReleaseResult, error) {
	logger := workflow.GetLogger(ctx)
	result := ReleaseResult{OrderID: req.OrderID}

	if wait := req.ReleaseAt.Sub(workflow.Now(ctx)); wait > 0 {
		logger.Info("waiting for release cooldown", "order_id", req.OrderID, "wait", wait.String())
		if err := workflow.Sleep(ctx, wait); err != nil {
			return result, err
		}
	}

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        time.Second,
			BackoffCoefficient:     2.0,
			MaximumInterval:        time.Minute,
			MaximumAttempts:        10,
			NonRetryableErrorTypes: []string{errTypeDisputeBlocking, errTypeRejected},
		},
	})

	var act *Activities
	var released bool
	err := workflow.ExecuteActivity(ctx, act.ReleaseIfDue, req.OrderID).Get(ctx, &released)
	if err != nil {
		var appErr *temporal.ApplicationError
		if errors.As(err, &appErr) && appErr.Type() == errTypeDisputeBlocking {
			logger.Info("release blocked by active dispute", "order_id", req.OrderID)
			result.Blocked = true
			return result, nil
		}
		logger.Error("release attempt failed", "order_id", req.OrderID, "error", err)
		return result, err
	}
	result.Released = released
	logger.Info("release attempt finished", "order_id", req.OrderID, "released", released)
	return result, nil
}
