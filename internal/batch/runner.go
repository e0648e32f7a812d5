// Package batch orchestrates a caller-ordered sequence of jobs: it checks
// their declared dependencies, skips jobs that succeeded recently enough,
// runs the rest through the job runner and records everything in history.
package batch

import (
	"context"
	"time"

	"github.com/caesium-cloud/batch/internal/clock"
	"github.com/caesium-cloud/batch/internal/dependency"
	"github.com/caesium-cloud/batch/internal/history"
	"github.com/caesium-cloud/batch/internal/job"
	"github.com/caesium-cloud/batch/internal/metrics"
	"github.com/caesium-cloud/batch/internal/models"
	"github.com/caesium-cloud/batch/internal/result"
	"github.com/caesium-cloud/batch/pkg/log"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Logging hands out the batch and job scoped loggers used during a run.
// *history.Logging satisfies it.
type Logging interface {
	Batch(ctx context.Context, batchID uuid.UUID) log.Logger
	Job(ctx context.Context, batchID, jobID uuid.UUID, jobName string) log.Logger
}

type zapLogging struct{}

func (zapLogging) Batch(_ context.Context, batchID uuid.UUID) log.Logger {
	return log.Scoped("batch_id", batchID.String())
}

func (zapLogging) Job(_ context.Context, batchID, jobID uuid.UUID, jobName string) log.Logger {
	return log.Scoped("batch_id", batchID.String(), "job_id", jobID.String(), "job", jobName)
}

// Runner executes batches. The zero value runs jobs without retry delays
// and logs through zap only.
type Runner struct {
	Jobs    *job.Runner
	Logging Logging
}

func NewRunner(jobs *job.Runner, logging Logging) *Runner {
	return &Runner{Jobs: jobs, Logging: logging}
}

func (r *Runner) jobs() *job.Runner {
	if r.Jobs == nil {
		return job.NewRunner()
	}
	return r.Jobs
}

func (r *Runner) logging() Logging {
	if r.Logging == nil {
		return zapLogging{}
	}
	return r.Logging
}

// Run executes jobs in the given order and returns the new batch alongside
// the one that preceded it.
//
// Invalid dependencies abort the run with a *dependency.Error before
// anything is written. A persistence failure aborts the run as well; the
// batch is then left marked as running in history.
func (r *Runner) Run(ctx context.Context, uow history.UnitOfWork, jobs []job.Job, clk clock.Source) (*Delta, error) {
	return r.RunNamed(ctx, uow, "", jobs, clk)
}

// RunNamed is Run for a batch recorded under name. The previous batch and
// each job's last success are only looked up among batches of that name.
func (r *Runner) RunNamed(ctx context.Context, uow history.UnitOfWork, name string, jobs []job.Job, clk clock.Source) (delta *Delta, err error) {
	if clk == nil {
		clk = clock.System()
	}

	batchID := uuid.New()
	logger := r.logging().Batch(ctx, batchID)

	status := "error"
	defer func() {
		metrics.BatchRunsTotal.WithLabelValues(status).Inc()
		if err != nil {
			logger.Error("batch errored", "error", err.Error())
		}
	}()

	if errs := dependency.Check(jobs); len(errs) > 0 {
		metrics.DependencyErrorsTotal.Inc()
		for _, e := range errs {
			logger.Error("invalid job dependencies",
				"job", e.JobName,
				"missing", e.Missing,
				"out_of_order", e.OutOfOrder,
				"duplicate", e.Duplicate,
			)
		}
		return nil, dependency.NewError(errs)
	}

	metrics.BatchesActive.Inc()
	defer metrics.BatchesActive.Dec()

	current := &models.Batch{
		ID:         batchID,
		Name:       name,
		JobResults: make([]*models.JobResult, 0, len(jobs)),
		Result:     result.Success(),
		Running:    true,
		Timestamp:  clk.Now(),
	}

	var previous *models.Batch
	err = history.Do(ctx, uow, func(tx history.Tx) error {
		var err error
		if previous, err = tx.LatestNamed(name); err != nil {
			return errors.Wrap(err, "read latest batch")
		}
		if err = tx.AddBatch(current); err != nil {
			return errors.Wrap(err, "add batch")
		}
		return errors.Wrap(tx.Commit(), "commit batch start")
	})
	if err != nil {
		return nil, err
	}

	if previous != nil {
		logger.Info("starting batch", "name", name, "jobs", len(jobs), "previous_batch_id", previous.ID.String())
	} else {
		logger.Info("starting batch", "name", name, "jobs", len(jobs))
	}

	final, err := r.runJobs(ctx, uow, current, jobs, logger, clk)
	if err != nil {
		return nil, err
	}

	err = history.Do(ctx, uow, func(tx history.Tx) error {
		if err := tx.UpdateBatch(final); err != nil {
			return errors.Wrap(err, "update batch")
		}
		return errors.Wrap(tx.Commit(), "commit batch")
	})
	if err != nil {
		return nil, err
	}

	status = string(result.StatusSuccess)
	if len(final.Failed()) > 0 {
		status = string(result.StatusFailure)
	}
	metrics.BatchRunDurationSeconds.WithLabelValues(status).Observe(float64(final.ExecutionMillis) / 1000)

	logger.Info("batch finished",
		"execution_millis", final.ExecutionMillis,
		"job_results", len(final.JobResults),
		"failed", len(final.Failed()),
	)

	return &Delta{Current: final, Previous: previous}, nil
}

func (r *Runner) runJobs(
	ctx context.Context,
	uow history.UnitOfWork,
	current *models.Batch,
	jobs []job.Job,
	logger log.Logger,
	clk clock.Source,
) (*models.Batch, error) {
	start := clk.Now()
	results := current.JobResults

	for _, j := range jobs {
		spec := j.Spec()

		fresh, err := isFresh(ctx, uow, current.Name, spec, clk)
		if err != nil {
			return nil, err
		}
		if fresh {
			logger.Info("skipping fresh job", "job", spec.Name, "refresh_interval", spec.RefreshInterval.String())
			metrics.JobsSkippedTotal.WithLabelValues(spec.Name).Inc()
			continue
		}

		jobID := uuid.New()
		jobLogger := r.logging().Job(ctx, current.ID, jobID, spec.Name)
		jr := r.jobs().Run(ctx, uow, current.ID, jobID, j, jobLogger, clk)
		results = append(results, jr)

		err = history.Do(ctx, uow, func(tx history.Tx) error {
			if err := tx.AddJobResult(jr); err != nil {
				return errors.Wrapf(err, "persist result of job %s", spec.Name)
			}
			return errors.Wrapf(tx.Commit(), "commit result of job %s", spec.Name)
		})
		if err != nil {
			return nil, err
		}
	}

	elapsed := clk.Now().Sub(start).Milliseconds()
	if elapsed < 0 {
		elapsed = 0
	}

	return &models.Batch{
		ID:              current.ID,
		Name:            current.Name,
		ExecutionMillis: elapsed,
		JobResults:      results,
		Result:          result.Success(),
		Running:         false,
		Timestamp:       clk.Now(),
	}, nil
}

// isFresh reports whether the job's last success in batches named
// batchName is more recent than its refresh interval. Jobs that never
// succeeded are never fresh.
func isFresh(ctx context.Context, uow history.UnitOfWork, batchName string, spec job.Spec, clk clock.Source) (bool, error) {
	var last *time.Time
	err := history.Do(ctx, uow, func(tx history.Tx) error {
		var err error
		if last, err = tx.LastSuccessfulTimestamp(batchName, spec.Name); err != nil {
			return errors.Wrapf(err, "read last success of job %s", spec.Name)
		}
		return errors.Wrap(tx.Commit(), "commit freshness read")
	})
	if err != nil {
		return false, err
	}
	if last == nil {
		return false, nil
	}
	return clk.Now().Sub(*last) < spec.RefreshInterval, nil
}
