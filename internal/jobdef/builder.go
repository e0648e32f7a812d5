package jobdef

import (
	"context"
	"fmt"
	"time"

	"github.com/caesium-cloud/batch/internal/clock"
	"github.com/caesium-cloud/batch/internal/job"
	"github.com/caesium-cloud/batch/internal/secret"
	"github.com/caesium-cloud/batch/pkg/log"
	schema "github.com/caesium-cloud/batch/pkg/jobdef"
)

// Builder turns batch definitions into runnable jobs.
type Builder struct {
	// Secrets resolves secret:// values of job environments. Without it
	// any such value makes the job fault.
	Secrets *secret.Resolver
	// Retention is the prune-history window used when a job sets none.
	Retention time.Duration
	Clock     clock.Source
}

// Build returns the definition's jobs in declaration order.
func (b *Builder) Build(def *schema.Definition) ([]job.Job, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}

	clk := b.Clock
	if clk == nil {
		clk = clock.System()
	}

	jobs := make([]job.Job, 0, len(def.Jobs))
	for i := range def.Jobs {
		jd := &def.Jobs[i]
		spec := job.Spec{
			Name:            jd.Name,
			Dependencies:    append([]string(nil), jd.DependsOn...),
			MaxRetries:      jd.MaxRetries,
			RefreshInterval: jd.RefreshInterval,
		}

		switch jd.Kind {
		case schema.JobKindETL:
			jobs = append(jobs, b.etl(spec, jd))
		case schema.JobKindAdmin:
			j, err := b.admin(spec, jd, clk)
			if err != nil {
				return nil, err
			}
			jobs = append(jobs, j)
		default:
			return nil, fmt.Errorf("job %s: unsupported kind %q", jd.Name, jd.Kind)
		}
	}
	return jobs, nil
}

type namedCommand struct {
	name string
	cmd  *command
}

func (b *Builder) etl(spec job.Spec, jd *schema.Job) job.ETLJob {
	primary := &command{argv: jd.Command, workDir: jd.WorkDir, env: jd.Env, secrets: b.Secrets}

	tests := make([]namedCommand, 0, len(jd.Tests))
	for _, t := range jd.Tests {
		tests = append(tests, namedCommand{
			name: t.Name,
			cmd:  &command{argv: t.Command, workDir: jd.WorkDir, env: jd.Env, secrets: b.Secrets},
		})
	}

	var test job.ETLTestFunc
	if len(tests) > 0 {
		test = func(ctx context.Context, logger log.Logger) ([]job.TestOutcome, error) {
			outcomes := make([]job.TestOutcome, 0, len(tests))
			for _, t := range tests {
				res, err := t.cmd.run(ctx, logger)
				if err != nil {
					return nil, err
				}
				outcomes = append(outcomes, job.TestOutcome{Name: t.name, Result: res})
			}
			return outcomes, nil
		}
	}

	return job.NewETL(spec, primary.run, test)
}

func (b *Builder) admin(spec job.Spec, jd *schema.Job, clk clock.Source) (job.AdminJob, error) {
	switch jd.Action {
	case schema.ActionPruneHistory:
		retention := jd.Retention
		if retention == 0 {
			retention = b.Retention
		}
		if retention <= 0 {
			return nil, fmt.Errorf("job %s: prune-history requires a positive retention", jd.Name)
		}
		p := &pruneHistory{retention: retention, clock: clk}
		return job.NewAdmin(spec, p.run, p.test), nil
	case schema.ActionVerifyHistory:
		return job.NewAdmin(spec, verifyHistory, nil), nil
	default:
		return nil, fmt.Errorf("job %s: unsupported action %q", jd.Name, jd.Action)
	}
}
