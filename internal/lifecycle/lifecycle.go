// Package lifecycle runs the daily status-cache reconciliation: a stateless
// job around the store's transition sweep, scheduled at business-midnight
// and also triggerable by hand.
package lifecycle

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"

	"quizdeck/internal/quiz/store"
	"quizdeck/pkg/platform/httputil"
	"quizdeck/pkg/requestcontext"
)

// runTimeout bounds one reconciliation run, including the chunked backlog
// sweep after downtime.
const runTimeout = 5 * time.Minute

// Runner is the piece of the quiz service the job needs.
type Runner interface {
	RunTransitions(ctx context.Context) (store.TransitionCounts, error)
}

// Job executes one transition run with a single consistent instant, so every
// date comparison inside a run sees the same "today" even across midnight.
type Job struct {
	runner Runner
	logger *slog.Logger
	now    func() time.Time
}

// JobOption configures a Job.
type JobOption func(*Job)

// WithJobClock sets the clock function for testability.
func WithJobClock(now func() time.Time) JobOption {
	return func(j *Job) {
		if now != nil {
			j.now = now
		}
	}
}

func NewJob(runner Runner, logger *slog.Logger, opts ...JobOption) *Job {
	j := &Job{runner: runner, logger: logger, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(j)
		}
	}
	return j
}

// Run executes one reconciliation. Safe to call concurrently and repeatedly;
// the underlying sweeps are idempotent.
func (j *Job) Run(ctx context.Context) (store.TransitionCounts, error) {
	ctx = requestcontext.WithTime(ctx, j.now())
	counts, err := j.runner.RunTransitions(ctx)
	if err != nil {
		j.logger.ErrorContext(ctx, "lifecycle run failed", "error", err)
		return counts, err
	}
	return counts, nil
}

// Scheduler fires the job on a cron expression evaluated in the business
// timezone, so "0 0 * * *" means business-midnight regardless of where the
// process runs.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
}

func NewScheduler(job *Job, spec string, loc *time.Location, logger *slog.Logger) (*Scheduler, error) {
	c := cron.New(cron.WithLocation(loc))
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()
		// Run logs its own failures; the scheduler never stops on one.
		_, _ = job.Run(ctx)
	})
	if err != nil {
		return nil, err
	}
	return &Scheduler{cron: c, logger: logger}, nil
}

// Start launches the cron loop in its own goroutine.
func (s *Scheduler) Start() {
	s.logger.Info("lifecycle scheduler started")
	s.cron.Start()
}

// Stop halts scheduling and waits for an in-flight run to finish.
func (s *Scheduler) Stop(ctx context.Context) {
	stopped := s.cron.Stop()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
		s.logger.Warn("lifecycle scheduler stop timed out")
	}
}

type runResponse struct {
	Activated int64 `json:"activated"`
	Completed int64 `json:"completed"`
}

// TriggerHandler exposes the job as POST /internal/lifecycle/run for manual
// reconciliation after downtime.
func TriggerHandler(job *Job) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		counts, err := job.Run(r.Context())
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, runResponse{
			Activated: counts.Activated,
			Completed: counts.Completed,
		})
	}
}
