package services

import (
	"fmt"
	"time"

	"github.com/thiago-paim/twitter-scraping/internal/models"
	"github.com/thiago-paim/twitter-scraping/internal/store"

	"github.com/sirupsen/logrus"
)

// RequestLedger owns the ScrapeJob lifecycle: state transitions, the
// append-only job log, and derivation of follow-on conversation crawls.
//
// Legal transitions: created -> started -> finished|interrupted, and an
// explicit reset from a terminal state back to created. Start on anything
// but a created job is a no-op.
type RequestLedger struct {
	store *store.Store
	log   *logrus.Logger
}

// NewRequestLedger creates a ledger on top of the given store
func NewRequestLedger(st *store.Store, log *logrus.Logger) *RequestLedger {
	return &RequestLedger{store: st, log: log}
}

// Start moves a created job to started and stamps it. Any other status is
// left untouched; callers wanting to restart a finished job must Reset
// first.
func (l *RequestLedger) Start(job *models.ScrapeJob) error {
	if job.Status != models.JobStatusCreated {
		return nil
	}
	now := time.Now().UTC()
	job.Status = models.JobStatusStarted
	job.StartedAt = &now
	return l.store.DB().Save(job).Error
}

// Finish moves a job to finished and stamps it
func (l *RequestLedger) Finish(job *models.ScrapeJob) error {
	now := time.Now().UTC()
	job.Status = models.JobStatusFinished
	job.FinishedAt = &now
	return l.store.DB().Save(job).Error
}

// Interrupt moves a job to interrupted and stamps it. Used both for
// explicit interruption and as the catch-all outcome when the pipeline
// fails outside per-item handling.
func (l *RequestLedger) Interrupt(job *models.ScrapeJob) error {
	now := time.Now().UTC()
	job.Status = models.JobStatusInterrupted
	job.FinishedAt = &now
	return l.store.DB().Save(job).Error
}

// Reset clears the timestamps and returns the job to created, making it
// eligible for admission again
func (l *RequestLedger) Reset(job *models.ScrapeJob) error {
	job.Status = models.JobStatusCreated
	job.StartedAt = nil
	job.FinishedAt = nil
	return l.store.DB().Save(job).Error
}

// AppendLog adds a timestamped line to the job's free-text log and mirrors
// it to the application logger
func (l *RequestLedger) AppendLog(job *models.ScrapeJob, message string) error {
	line := fmt.Sprintf("%s %s\n", time.Now().UTC().Format(time.RFC3339), message)
	job.Log += line

	l.log.WithFields(logrus.Fields{
		"req_id":   job.ID,
		"username": job.Username,
	}).Info(message)

	return l.store.DB().Model(job).Update("log", job.Log).Error
}

// DeriveConversationJobs creates one reply-crawl job per thread root
// recorded under the given job, skipping roots that already have a created
// or started crawl targeting them. Each existence-check-plus-insert runs in
// its own transaction so concurrent derivations cannot double-create a
// child.
//
// A finished or interrupted crawl for the same root does not block
// re-derivation; running this again after a child was interrupted creates
// a second child for that root.
func (l *RequestLedger) DeriveConversationJobs(job *models.ScrapeJob) ([]models.ScrapeJob, error) {
	roots, err := l.store.RootPostsForJob(job.ID)
	if err != nil {
		return nil, err
	}

	var created []models.ScrapeJob
	for _, root := range roots {
		err := l.store.Transaction(func(tx *store.Store) error {
			exists, err := tx.LiveThreadJobExists(job.Username, root.ExternalID)
			if err != nil {
				return err
			}
			if exists {
				return nil
			}

			child := models.ScrapeJob{
				Username:       job.Username,
				TwitterID:      root.ExternalID,
				Since:          job.Since,
				Until:          job.Until,
				IncludeReplies: true,
				Recurse:        job.Recurse,
				Status:         models.JobStatusCreated,
			}
			if err := tx.CreateJob(&child); err != nil {
				return err
			}
			created = append(created, child)
			return nil
		})
		if err != nil {
			return created, err
		}
	}

	if len(created) > 0 {
		l.log.WithFields(logrus.Fields{
			"req_id":  job.ID,
			"derived": len(created),
		}).Info("Derived conversation scrape jobs")
	}

	return created, nil
}
