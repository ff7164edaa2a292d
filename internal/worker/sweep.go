// internal/worker/sweep.go
package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/paylink-backend/internal/models"
)

type unprovisionedLister interface {
	Unprovisioned(ctx context.Context, cutoff time.Time, limit int) ([]models.Transaction, error)
}

type provisionScheduler interface {
	ScheduleProvisionSweep(ctx context.Context, transactionID uuid.UUID, window time.Time) error
}

// Sweeper re-queues provisioning for purchases whose inline attempt and
// retries were lost, for example when the process died right after commit.
type Sweeper struct {
	lister    unprovisionedLister
	scheduler provisionScheduler
	grace     time.Duration
	batch     int
}

func NewSweeper(lister unprovisionedLister, scheduler provisionScheduler, grace time.Duration, batch int) *Sweeper {
	return &Sweeper{lister: lister, scheduler: scheduler, grace: grace, batch: batch}
}

// Sweep returns the number of purchases re-queued.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	now := time.Now()
	transactions, err := s.lister.Unprovisioned(ctx, now.Add(-s.grace), s.batch)
	if err != nil {
		return 0, err
	}

	// One sweep task per purchase per grace period.
	window := now.Truncate(s.grace)

	queued := 0
	for _, t := range transactions {
		if err := s.scheduler.ScheduleProvisionSweep(ctx, t.ID, window); err != nil {
			logrus.WithError(err).WithField("transaction_id", t.ID).Warn("Failed to re-queue provisioning")
			continue
		}
		queued++
	}

	return queued, nil
}

// Start runs Sweep on schedule until the returned cron is stopped.
func (s *Sweeper) Start(schedule string) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		queued, err := s.Sweep(context.Background())
		if err != nil {
			logrus.WithError(err).Error("Provisioning sweep failed")
			return
		}
		if queued > 0 {
			logrus.WithField("queued", queued).Info("Provisioning sweep re-queued purchases")
		}
	})
	if err != nil {
		return nil, err
	}

	c.Start()
	logrus.WithField("schedule", schedule).Info("Provisioning sweep scheduled")
	return c, nil
}
