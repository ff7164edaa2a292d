// internal/worker/tasks.go
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// Task Types
const (
	TypeCommissionRetry = "purchase:commission"
	TypeProvisionRetry  = "purchase:provision"
)

const (
	retryDelay    = 30 * time.Second
	retryMaxTries = 10
)

type CommissionPayload struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	AffiliateCode string    `json:"affiliate_code"`
}

type ProvisionPayload struct {
	TransactionID uuid.UUID `json:"transaction_id"`
}

func NewCommissionTask(payload CommissionPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeCommissionRetry, data), nil
}

func NewProvisionTask(payload ProvisionPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeProvisionRetry, data), nil
}

// Enqueuer is the subset of *asynq.Client the scheduler needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Scheduler queues post-commit retries. Task ids are derived from the
// transaction, so scheduling the same work twice is a no-op.
type Scheduler struct {
	client Enqueuer
}

func NewScheduler(client Enqueuer) *Scheduler {
	return &Scheduler{client: client}
}

func (s *Scheduler) ScheduleCommission(ctx context.Context, transactionID uuid.UUID, code string) error {
	task, err := NewCommissionTask(CommissionPayload{TransactionID: transactionID, AffiliateCode: code})
	if err != nil {
		return err
	}
	return s.enqueue(ctx, task, TypeCommissionRetry+":"+transactionID.String())
}

func (s *Scheduler) ScheduleProvision(ctx context.Context, transactionID uuid.UUID) error {
	task, err := NewProvisionTask(ProvisionPayload{TransactionID: transactionID})
	if err != nil {
		return err
	}
	return s.enqueue(ctx, task, TypeProvisionRetry+":"+transactionID.String())
}

// ScheduleProvisionSweep re-queues provisioning found by a sweep. The task id
// includes the sweep window, so a retry task archived after exhausting its
// attempts does not block later sweeps.
func (s *Scheduler) ScheduleProvisionSweep(ctx context.Context, transactionID uuid.UUID, window time.Time) error {
	task, err := NewProvisionTask(ProvisionPayload{TransactionID: transactionID})
	if err != nil {
		return err
	}
	return s.enqueue(ctx, task, fmt.Sprintf("%s:%s:sweep:%d", TypeProvisionRetry, transactionID, window.Unix()))
}

func (s *Scheduler) enqueue(ctx context.Context, task *asynq.Task, taskID string) error {
	_, err := s.client.EnqueueContext(ctx, task,
		asynq.TaskID(taskID),
		asynq.MaxRetry(retryMaxTries),
		asynq.ProcessIn(retryDelay),
		asynq.Queue("default"),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		logrus.WithField("task_id", taskID).Info("Task already queued or archived, not enqueued again")
		return nil
	}
	return err
}
