package job

import (
	"context"
	"time"

	"github.com/caesium-cloud/batch/internal/history"
	"github.com/caesium-cloud/batch/internal/result"
	"github.com/caesium-cloud/batch/pkg/log"
)

// Spec describes a job to the batch engine.
type Spec struct {
	Name         string
	Dependencies []string
	// MaxRetries bounds how many times a faulting attempt is retried.
	MaxRetries int
	// RefreshInterval is the minimum time since the job's last successful
	// run before it is eligible to run again.
	RefreshInterval time.Duration
}

// TestOutcome is what a job's Test reports for one verification.
type TestOutcome struct {
	Name   string
	Result result.Result
}

// Job is anything with a Spec. A usable job also implements exactly one
// of AdminJob or ETLJob; the two cannot overlap because their Run and Test
// signatures differ.
type Job interface {
	Spec() Spec
}

// AdminJob operates on the job history itself and receives the unit of
// work alongside its logger.
type AdminJob interface {
	Job
	Run(ctx context.Context, uow history.UnitOfWork, logger log.Logger) (result.Result, error)
	Test(ctx context.Context, uow history.UnitOfWork, logger log.Logger) ([]TestOutcome, error)
}

// ETLJob moves data and only receives a logger.
type ETLJob interface {
	Job
	Run(ctx context.Context, logger log.Logger) (result.Result, error)
	Test(ctx context.Context, logger log.Logger) ([]TestOutcome, error)
}

type (
	AdminRunFunc  func(ctx context.Context, uow history.UnitOfWork, logger log.Logger) (result.Result, error)
	AdminTestFunc func(ctx context.Context, uow history.UnitOfWork, logger log.Logger) ([]TestOutcome, error)
	ETLRunFunc    func(ctx context.Context, logger log.Logger) (result.Result, error)
	ETLTestFunc   func(ctx context.Context, logger log.Logger) ([]TestOutcome, error)
)

type adminJob struct {
	spec Spec
	run  AdminRunFunc
	test AdminTestFunc
}

// NewAdmin builds an AdminJob from functions. A nil test reports no tests.
func NewAdmin(spec Spec, run AdminRunFunc, test AdminTestFunc) AdminJob {
	if run == nil {
		panic("admin job " + spec.Name + " requires a run function")
	}
	return &adminJob{spec: spec, run: run, test: test}
}

func (j *adminJob) Spec() Spec {
	return j.spec
}

func (j *adminJob) Run(ctx context.Context, uow history.UnitOfWork, logger log.Logger) (result.Result, error) {
	return j.run(ctx, uow, logger)
}

func (j *adminJob) Test(ctx context.Context, uow history.UnitOfWork, logger log.Logger) ([]TestOutcome, error) {
	if j.test == nil {
		return nil, nil
	}
	return j.test(ctx, uow, logger)
}

type etlJob struct {
	spec Spec
	run  ETLRunFunc
	test ETLTestFunc
}

// NewETL builds an ETLJob from functions. A nil test reports no tests.
func NewETL(spec Spec, run ETLRunFunc, test ETLTestFunc) ETLJob {
	if run == nil {
		panic("etl job " + spec.Name + " requires a run function")
	}
	return &etlJob{spec: spec, run: run, test: test}
}

func (j *etlJob) Spec() Spec {
	return j.spec
}

func (j *etlJob) Run(ctx context.Context, logger log.Logger) (result.Result, error) {
	return j.run(ctx, logger)
}

func (j *etlJob) Test(ctx context.Context, logger log.Logger) ([]TestOutcome, error) {
	if j.test == nil {
		return nil, nil
	}
	return j.test(ctx, logger)
}
