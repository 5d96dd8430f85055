package services

import (
	"context"

	"github.com/thiago-paim/twitter-scraping/internal/models"
	"github.com/thiago-paim/twitter-scraping/internal/store"

	"github.com/sirupsen/logrus"
)

// admissionLockID keys the Postgres advisory lock that serializes
// concurrent admission decisions
const admissionLockID int64 = 824373

// Scheduler is the admission control for scrape jobs: it keeps at most
// MaxConcurrency jobs in status "started" and drains the created-job
// backlog in FIFO order.
type Scheduler struct {
	store    *store.Store
	cfg      Config
	log      *logrus.Logger
	dispatch func(models.ScrapeJob)
}

// NewScheduler creates a scheduler. dispatch is invoked once per admitted
// job, after the admission transaction commits.
func NewScheduler(st *store.Store, cfg Config, log *logrus.Logger, dispatch func(models.ScrapeJob)) *Scheduler {
	return &Scheduler{store: st, cfg: cfg, log: log, dispatch: dispatch}
}

// AdmitNext starts queued jobs until the concurrency cap is reached or the
// queue is empty, and returns the admitted job ids. The running count is
// read inside the same transaction as the admission decision, under an
// advisory lock, so concurrent calls cannot overshoot the cap.
func (s *Scheduler) AdmitNext(ctx context.Context) ([]uint, error) {
	var admitted []models.ScrapeJob

	err := s.store.Transaction(func(tx *store.Store) error {
		admitted = admitted[:0]

		if err := tx.DB().WithContext(ctx).
			Exec("SELECT pg_advisory_xact_lock(?)", admissionLockID).Error; err != nil {
			return err
		}

		running, err := tx.CountJobsByStatus(models.JobStatusStarted)
		if err != nil {
			return err
		}
		headroom := s.cfg.MaxConcurrency - int(running)
		if headroom <= 0 {
			return nil
		}

		queued, err := tx.QueuedJobs(headroom)
		if err != nil {
			return err
		}

		ledger := NewRequestLedger(tx, s.log)
		for i := range queued {
			if err := ledger.Start(&queued[i]); err != nil {
				return err
			}
			admitted = append(admitted, queued[i])
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ids := make([]uint, 0, len(admitted))
	for _, job := range admitted {
		s.log.WithFields(logrus.Fields{
			"req_id":   job.ID,
			"username": job.Username,
		}).Info("Admitted scrape job")
		ids = append(ids, job.ID)
		if s.dispatch != nil {
			s.dispatch(job)
		}
	}
	return ids, nil
}
