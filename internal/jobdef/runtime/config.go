// Package runtime assembles the batch engine from the processed
// environment variables.
package runtime

import (
	"github.com/caesium-cloud/batch/internal/batch"
	"github.com/caesium-cloud/batch/internal/history"
	"github.com/caesium-cloud/batch/internal/job"
	"github.com/caesium-cloud/batch/internal/jobdef"
	"github.com/caesium-cloud/batch/internal/secret"
	"github.com/caesium-cloud/batch/pkg/db"
	"github.com/caesium-cloud/batch/pkg/env"
	"github.com/pkg/errors"
)

// OpenHistory connects to the configured database, migrates it and wraps
// it in a unit of work.
func OpenHistory(vars env.Environment) (*history.GormUnitOfWork, error) {
	conn, err := db.Open(vars.DatabaseType, vars.DatabaseDSN)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}

	if err := db.Migrate(conn); err != nil {
		return nil, errors.Wrap(err, "migrate database")
	}

	return history.NewGormUnitOfWork(conn), nil
}

// BuildSecretResolver constructs the resolver chain based on environment variables.
func BuildSecretResolver(vars env.Environment) (*secret.Resolver, error) {
	resolver, err := secret.New(secret.ConfigFromEnvironment(vars))
	if err != nil {
		return nil, errors.Wrap(err, "configure secret providers")
	}
	return resolver, nil
}

// BuildJobRunner retries without delay unless a retry backoff is set.
func BuildJobRunner(vars env.Environment) *job.Runner {
	r := job.NewRunner()
	if vars.RetryBackoff > 0 {
		r.Backoff = job.ExponentialBackoff(vars.RetryBackoff, vars.RetryBackoffMax)
	}
	return r
}

// BuildBuilder returns a definition builder using the configured retention.
func BuildBuilder(vars env.Environment, resolver *secret.Resolver) *jobdef.Builder {
	return &jobdef.Builder{
		Secrets:   resolver,
		Retention: vars.HistoryRetention,
	}
}

// BuildBatchRunner returns a batch runner whose logs are persisted to uow.
func BuildBatchRunner(vars env.Environment, uow history.UnitOfWork) *batch.Runner {
	return batch.NewRunner(BuildJobRunner(vars), history.NewLogging(uow, nil))
}
