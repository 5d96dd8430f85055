package services

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/thiago-paim/twitter-scraping/internal/models"
	"github.com/thiago-paim/twitter-scraping/internal/source"

	"github.com/sirupsen/logrus"
)

// minTimelinePosts is how many items a timeline crawl must see before the
// since bound may stop it. Accounts commonly keep a few pinned posts at the
// top of the feed, out of chronological order.
const minTimelinePosts = 5

// Runner executes one scrape job end to end: it drives the source, feeds
// every item to the recorder, and settles the job's terminal status.
// Item-level failures are contained here and never reach the scheduler.
type Runner struct {
	src      source.Source
	recorder *Recorder
	ledger   *RequestLedger
	log      *logrus.Logger
	notify   func(jobID uint)
}

// NewRunner creates a runner. notify, when set, is called exactly once per
// Run as the terminal step, regardless of outcome.
func NewRunner(src source.Source, recorder *Recorder, ledger *RequestLedger, log *logrus.Logger, notify func(jobID uint)) *Runner {
	return &Runner{src: src, recorder: recorder, ledger: ledger, log: log, notify: notify}
}

// Run executes the job matching its kind. The job must already be in
// status started. Errors escaping per-item handling move the job to
// interrupted; Run itself never returns an error to its caller.
func (r *Runner) Run(ctx context.Context, job models.ScrapeJob) {
	defer func() {
		if rec := recover(); rec != nil {
			r.ledger.AppendLog(&job, fmt.Sprintf("panic: %v\n%s", rec, debug.Stack()))
			r.ledger.Interrupt(&job)
		}
		if r.notify != nil {
			r.notify(job.ID)
		}
	}()

	var err error
	switch job.Kind() {
	case models.JobKindThread:
		err = r.runThread(ctx, &job)
	default:
		err = r.runTimeline(ctx, &job)
	}

	if err != nil {
		r.log.WithFields(logrus.Fields{
			"req_id":   job.ID,
			"username": job.Username,
		}).WithError(err).Error("Scrape job interrupted")
		r.ledger.AppendLog(&job, fmt.Sprintf("interrupted: %v", err))
		r.ledger.Interrupt(&job)
	}
}

// runTimeline crawls the job's author timeline, stopping once items fall
// before the since bound (after the pinned-post lookback), then derives
// the follow-on conversation crawls.
func (r *Runner) runTimeline(ctx context.Context, job *models.ScrapeJob) error {
	r.ledger.AppendLog(job, fmt.Sprintf("starting timeline crawl for %q", job.Username))

	it, err := r.src.PostsByAuthor(ctx, job.Username)
	if err != nil {
		return fmt.Errorf("opening timeline feed: %w", err)
	}

	seen, created, updated := 0, 0, 0
	for {
		raw, err := it.Next()
		if errors.Is(err, source.ErrEndOfFeed) {
			break
		}
		if err != nil {
			var itemErr *source.ItemError
			if errors.As(err, &itemErr) {
				r.ledger.AppendLog(job, fmt.Sprintf("skipping failed item: %v", itemErr))
				continue
			}
			return fmt.Errorf("reading timeline feed: %w", err)
		}
		if raw == nil {
			r.ledger.AppendLog(job, "skipping empty feed item")
			continue
		}

		if job.Since != nil && raw.PublishedAt.Before(*job.Since) && seen > minTimelinePosts {
			r.ledger.AppendLog(job, fmt.Sprintf("scrape limit reached at %s", raw.PublishedAt.Format("2006-01-02 15:04:05")))
			break
		}
		seen++

		wasCreated, recErr := r.recordItem(job, raw)
		if recErr != nil {
			continue
		}
		if wasCreated {
			created++
		} else {
			updated++
		}
	}

	r.ledger.AppendLog(job, fmt.Sprintf("found %d posts: %d created, %d updated", seen, created, updated))
	if err := r.ledger.Finish(job); err != nil {
		return err
	}

	derived, err := r.ledger.DeriveConversationJobs(job)
	if err != nil {
		return fmt.Errorf("deriving conversation jobs: %w", err)
	}
	r.ledger.AppendLog(job, fmt.Sprintf("derived %d conversation jobs", len(derived)))
	return nil
}

// runThread crawls the full reply tree under the job's target post.
// Thread crawls have no early stop and derive no further jobs.
func (r *Runner) runThread(ctx context.Context, job *models.ScrapeJob) error {
	r.ledger.AppendLog(job, fmt.Sprintf("starting thread crawl for post %s", job.TwitterID))

	it, err := r.src.ThreadByPostID(ctx, job.TwitterID)
	if err != nil {
		return fmt.Errorf("opening thread feed: %w", err)
	}

	seen, created, updated := 0, 0, 0
	for {
		raw, err := it.Next()
		if errors.Is(err, source.ErrEndOfFeed) {
			break
		}
		if err != nil {
			var itemErr *source.ItemError
			if errors.As(err, &itemErr) {
				r.ledger.AppendLog(job, fmt.Sprintf("skipping failed item: %v", itemErr))
				continue
			}
			return fmt.Errorf("reading thread feed: %w", err)
		}
		if raw == nil {
			r.ledger.AppendLog(job, "skipping empty feed item")
			continue
		}

		seen++
		wasCreated, recErr := r.recordItem(job, raw)
		if recErr != nil {
			continue
		}
		if wasCreated {
			created++
		} else {
			updated++
		}
	}

	r.ledger.AppendLog(job, fmt.Sprintf("found %d posts: %d created, %d updated", seen, created, updated))
	return r.ledger.Finish(job)
}

// recordItem records one raw post under the job, logging and containing
// validation failures and unexpected per-item errors
func (r *Runner) recordItem(job *models.ScrapeJob, raw *source.RawPost) (bool, error) {
	_, created, err := r.recorder.Record(raw, &job.ID)
	if err != nil {
		// A broken iterator may yield a nil post
		externalID := "<unknown>"
		if raw != nil {
			externalID = raw.ExternalID
		}
		if errors.Is(err, ErrValidation) {
			r.ledger.AppendLog(job, fmt.Sprintf("validation error on post %s: %v", externalID, err))
		} else {
			r.ledger.AppendLog(job, fmt.Sprintf("error recording post %s: %v", externalID, err))
		}
		return false, err
	}
	return created, nil
}
