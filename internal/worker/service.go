// Package worker wires the scraping engine together and runs it in the
// background: a goroutine per started job, a periodic admission sweep, and
// completion notifications that re-trigger admission immediately.
package worker

import (
	"context"
	"sync"

	"github.com/thiago-paim/twitter-scraping/internal/models"
	"github.com/thiago-paim/twitter-scraping/internal/services"
	"github.com/thiago-paim/twitter-scraping/internal/source"
	"github.com/thiago-paim/twitter-scraping/internal/store"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// WorkerService manages the background scraping workers
type WorkerService struct {
	store     *store.Store
	scheduler *services.Scheduler
	runner    *services.Runner
	ledger    *services.RequestLedger
	cfg       services.Config
	log       *logrus.Logger

	cron          *cron.Cron
	notifications chan uint

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.RWMutex
}

// NewWorkerService creates a worker service on top of an open database
// handle and a source implementation
func NewWorkerService(db *gorm.DB, src source.Source, cfg services.Config, log *logrus.Logger) *WorkerService {
	ctx, cancel := context.WithCancel(context.Background())

	st := store.New(db)
	recorder := services.NewRecorder(st, log)
	ledger := services.NewRequestLedger(st, log)

	ws := &WorkerService{
		store:         st,
		ledger:        ledger,
		cfg:           cfg,
		log:           log,
		cron:          cron.New(),
		notifications: make(chan uint, 64),
		ctx:           ctx,
		cancel:        cancel,
	}

	ws.runner = services.NewRunner(src, recorder, ledger, log, ws.notifyCompletion)
	ws.scheduler = services.NewScheduler(st, cfg, log, ws.dispatch)

	return ws
}

// Start starts the admission sweep and the completion listener
func (ws *WorkerService) Start() error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.running {
		return nil // Already running
	}

	ws.log.WithFields(logrus.Fields{
		"max_concurrency": ws.cfg.MaxConcurrency,
		"admit_schedule":  ws.cfg.AdmitSchedule,
	}).Info("Starting background workers")

	if _, err := ws.cron.AddFunc(ws.cfg.AdmitSchedule, ws.admit); err != nil {
		return err
	}
	ws.cron.Start()

	ws.wg.Add(1)
	go func() {
		defer ws.wg.Done()
		ws.runCompletionListener()
	}()

	// Pick up any backlog left over from a previous run
	ws.wg.Add(1)
	go func() {
		defer ws.wg.Done()
		ws.admit()
	}()

	ws.running = true
	return nil
}

// Stop stops the workers and waits for running jobs to settle
func (ws *WorkerService) Stop() {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if !ws.running {
		return // Not running
	}

	ws.log.Info("Stopping background workers")

	// Stop returns a context that settles once in-flight sweeps return;
	// a sweep may still dispatch, so it must drain before wg.Wait
	cronCtx := ws.cron.Stop()
	ws.cancel()
	<-cronCtx.Done()
	ws.wg.Wait()

	ws.running = false
	ws.log.Info("Background workers stopped")
}

// IsRunning returns whether the worker service is currently running
func (ws *WorkerService) IsRunning() bool {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return ws.running
}

// AdmitNow triggers one admission pass outside the sweep schedule; used by
// the operator surface after creating or resetting a job
func (ws *WorkerService) AdmitNow() {
	ws.admit()
}

// Ledger exposes the request ledger for the operator surface
func (ws *WorkerService) Ledger() *services.RequestLedger {
	return ws.ledger
}

// GetStatus returns the current status of the worker service
func (ws *WorkerService) GetStatus() map[string]interface{} {
	ws.mu.RLock()
	defer ws.mu.RUnlock()

	status := map[string]interface{}{
		"running":         ws.running,
		"max_concurrency": ws.cfg.MaxConcurrency,
		"admit_schedule":  ws.cfg.AdmitSchedule,
	}

	if started, err := ws.store.CountJobsByStatus(models.JobStatusStarted); err == nil {
		status["started_jobs"] = started
	}
	if queued, err := ws.store.CountJobsByStatus(models.JobStatusCreated); err == nil {
		status["queued_jobs"] = queued
	}

	return status
}

// dispatch runs one admitted job on its own goroutine; the pool is bounded
// by the scheduler's concurrency cap, not here
func (ws *WorkerService) dispatch(job models.ScrapeJob) {
	ws.wg.Add(1)
	go func() {
		defer ws.wg.Done()
		ws.runner.Run(ws.ctx, job)
	}()
}

// notifyCompletion queues a job id for the completion listener. Dropping
// on a full buffer is fine - the periodic sweep will admit later.
func (ws *WorkerService) notifyCompletion(jobID uint) {
	select {
	case ws.notifications <- jobID:
	default:
	}
}

// runCompletionListener re-runs admission whenever a job finishes, so the
// next queued job starts without waiting for the sweep
func (ws *WorkerService) runCompletionListener() {
	for {
		select {
		case <-ws.ctx.Done():
			return
		case jobID := <-ws.notifications:
			ws.log.WithField("req_id", jobID).Debug("Job completed, admitting next")
			ws.admit()
		}
	}
}

// admit runs one admission pass
func (ws *WorkerService) admit() {
	if _, err := ws.scheduler.AdmitNext(ws.ctx); err != nil {
		if ws.ctx.Err() != nil {
			return
		}
		ws.log.WithError(err).Error("Admission pass failed")
	}
}
