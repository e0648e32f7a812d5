package job

import (
	"context"
	"fmt"
	"time"

	"github.com/caesium-cloud/batch/internal/clock"
	"github.com/caesium-cloud/batch/internal/history"
	"github.com/caesium-cloud/batch/internal/metrics"
	"github.com/caesium-cloud/batch/internal/models"
	"github.com/caesium-cloud/batch/internal/result"
	"github.com/caesium-cloud/batch/pkg/log"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Runner executes one job: it retries faulting attempts, times the
// attempt that completes, runs the job's tests and assembles the result.
//
// Only faults (returned errors) are retried. A job reporting a failed
// Result has finished its attempt and is recorded as-is.
type Runner struct {
	// Backoff optionally supplies a delay policy applied between retries.
	// When nil, retries are attempted immediately.
	Backoff func() backoff.BackOff
}

// NewRunner returns a Runner that retries without delay.
func NewRunner() *Runner {
	return &Runner{}
}

// ExponentialBackoff returns a Backoff factory for Runner that starts at
// initial and never exceeds maxInterval between retries. Delays are not
// jittered.
func ExponentialBackoff(initial, maxInterval time.Duration) func() backoff.BackOff {
	return func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = initial
		b.RandomizationFactor = 0
		if maxInterval > 0 {
			b.MaxInterval = maxInterval
		}
		b.MaxElapsedTime = 0
		b.Reset()
		return b
	}
}

// Run executes j and never returns an error; faults that outlive the
// retry budget become a failed JobResult with no tests and no duration.
// Panics raised by the job's own Run or Test are treated as faults. Run
// itself panics when j is neither an AdminJob nor an ETLJob, or when the
// job returns a Result that is neither a success nor a failure.
func (r *Runner) Run(
	ctx context.Context,
	uow history.UnitOfWork,
	batchID, jobID uuid.UUID,
	j Job,
	logger log.Logger,
	clk clock.Source,
) *models.JobResult {
	spec := j.Spec()
	logger.Info("starting job", "max_retries", spec.MaxRetries)

	jr, err := r.runWithRetry(ctx, uow, batchID, jobID, j, logger, clk)
	if err != nil {
		logger.Error("job errored", "error", err.Error(), "trace", fmt.Sprintf("%+v", err))
		jr = &models.JobResult{
			ID:              jobID,
			BatchID:         batchID,
			JobName:         spec.Name,
			TestResults:     make([]*models.JobTestResult, 0),
			Result:          result.Failure(err.Error()),
			ExecutionMillis: 0,
			Timestamp:       clk.Now(),
		}
	}

	status := string(jr.Result.Status)
	metrics.JobRunsTotal.WithLabelValues(spec.Name, status).Inc()
	metrics.JobRunDurationSeconds.WithLabelValues(spec.Name, status).Observe(float64(jr.ExecutionMillis) / 1000)

	logger.Info("job finished", "status", status, "execution_millis", jr.ExecutionMillis, "tests", len(jr.TestResults))
	return jr
}

func (r *Runner) runWithRetry(
	ctx context.Context,
	uow history.UnitOfWork,
	batchID, jobID uuid.UUID,
	j Job,
	logger log.Logger,
	clk clock.Source,
) (*models.JobResult, error) {
	spec := j.Spec()

	var policy backoff.BackOff
	if r.Backoff != nil {
		policy = r.Backoff()
	}

	for retries := 0; ; retries++ {
		jr, err := runWithTests(ctx, uow, batchID, jobID, j, logger, clk)
		if err == nil {
			return jr, nil
		}

		if retries >= spec.MaxRetries {
			logger.Error("job failed after retries", "retries", retries, "error", err.Error())
			return nil, errors.Wrapf(err, "job %s failed after %d retries", spec.Name, retries)
		}

		logger.Info("retrying job", "attempt", retries+1, "max_retries", spec.MaxRetries, "error", err.Error())
		metrics.JobRetriesTotal.WithLabelValues(spec.Name).Inc()

		if err := wait(ctx, policy); err != nil {
			return nil, errors.Wrapf(err, "job %s retry interrupted", spec.Name)
		}
	}
}

func wait(ctx context.Context, policy backoff.BackOff) error {
	if policy == nil {
		return nil
	}

	delay := policy.NextBackOff()
	if delay == backoff.Stop || delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func runWithTests(
	ctx context.Context,
	uow history.UnitOfWork,
	batchID, jobID uuid.UUID,
	j Job,
	logger log.Logger,
	clk clock.Source,
) (*models.JobResult, error) {
	spec := j.Spec()
	start := clk.Now()

	var (
		res result.Result
		err error
	)

	switch v := j.(type) {
	case AdminJob:
		err = recovered(spec.Name, func() (err error) {
			res, err = v.Run(ctx, uow, logger)
			return err
		})
	case ETLJob:
		err = recovered(spec.Name, func() (err error) {
			res, err = v.Run(ctx, logger)
			return err
		})
	default:
		panic(fmt.Sprintf("job %s: unsupported job type %T", spec.Name, j))
	}
	if err != nil {
		return nil, err
	}

	if !res.Valid() {
		panic(fmt.Sprintf("job %s: returned result with unknown status %q", spec.Name, res.Status))
	}
	res = res.Normalize()
	logger.Info("job returned result", "status", string(res.Status), "message", res.Message)

	tests := make([]*models.JobTestResult, 0)
	if res.IsFailure() {
		logger.Info("skipping tests for failed job")
	} else {
		var outcomes []TestOutcome
		switch v := j.(type) {
		case AdminJob:
			err = recovered(spec.Name, func() (err error) {
				outcomes, err = v.Test(ctx, uow, logger)
				return err
			})
		case ETLJob:
			err = recovered(spec.Name, func() (err error) {
				outcomes, err = v.Test(ctx, logger)
				return err
			})
		}
		if err != nil {
			return nil, err
		}

		for _, outcome := range outcomes {
			if !outcome.Result.Valid() {
				panic(fmt.Sprintf("job %s: test %s returned result with unknown status %q", spec.Name, outcome.Name, outcome.Result.Status))
			}
			tests = append(tests, &models.JobTestResult{
				ID:          uuid.New(),
				JobResultID: jobID,
				TestName:    outcome.Name,
				Result:      outcome.Result.Normalize(),
				Timestamp:   clk.Now(),
			})
		}
	}

	end := clk.Now()
	elapsed := end.Sub(start).Milliseconds()
	if elapsed < 0 {
		elapsed = 0
	}

	return &models.JobResult{
		ID:              jobID,
		BatchID:         batchID,
		JobName:         spec.Name,
		TestResults:     tests,
		Result:          res,
		ExecutionMillis: elapsed,
		Timestamp:       end,
	}, nil
}

// recovered calls fn and turns a panic raised by job code into a fault so
// it is retried like any other error.
func recovered(name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("job %s panicked: %v", name, r)
		}
	}()
	return fn()
}
