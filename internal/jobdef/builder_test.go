package jobdef

import (
	"context"
	"testing"
	"time"

	"github.com/caesium-cloud/batch/internal/batch"
	"github.com/caesium-cloud/batch/internal/clock"
	"github.com/caesium-cloud/batch/internal/history"
	"github.com/caesium-cloud/batch/internal/job"
	"github.com/caesium-cloud/batch/internal/jobdef/testutil"
	"github.com/caesium-cloud/batch/internal/models"
	"github.com/caesium-cloud/batch/internal/result"
	"github.com/caesium-cloud/batch/internal/secret"
	logtestutil "github.com/caesium-cloud/batch/pkg/log/testutil"
	schema "github.com/caesium-cloud/batch/pkg/jobdef"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
)

var epoch = time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)

type BuilderTestSuite struct {
	suite.Suite
	ctx     context.Context
	clk     *clock.Manual
	builder *Builder
	logger  *logtestutil.Recorder
}

func TestBuilderSuite(t *testing.T) {
	suite.Run(t, new(BuilderTestSuite))
}

func (s *BuilderTestSuite) SetupTest() {
	resolver, err := secret.New(secret.Config{Env: true})
	s.Require().NoError(err)

	s.ctx = context.Background()
	s.clk = clock.NewManual(epoch)
	s.builder = &Builder{Secrets: resolver, Retention: 24 * time.Hour, Clock: s.clk}
	s.logger = &logtestutil.Recorder{}
}

func (s *BuilderTestSuite) build(src string) []job.Job {
	def, err := schema.Parse([]byte(src))
	s.Require().NoError(err)
	jobs, err := s.builder.Build(def)
	s.Require().NoError(err)
	return jobs
}

func (s *BuilderTestSuite) etl(argv []string, env map[string]string) job.ETLJob {
	def := &schema.Definition{
		APIVersion: schema.APIVersionV1,
		Kind:       schema.KindBatch,
		Metadata:   schema.Metadata{Name: "adhoc"},
		Jobs:       []schema.Job{{Name: "cmd", Kind: schema.JobKindETL, Command: argv, Env: env}},
	}
	jobs, err := s.builder.Build(def)
	s.Require().NoError(err)
	etl, ok := jobs[0].(job.ETLJob)
	s.Require().True(ok)
	return etl
}

func (s *BuilderTestSuite) TestBuildSampleManifest() {
	jobs := s.build(testutil.SampleManifest)
	s.Require().Len(jobs, 3)

	s.Equal(job.Spec{Name: "extract", MaxRetries: 2, RefreshInterval: 10 * time.Minute}, jobs[0].Spec())
	s.Equal([]string{"extract"}, jobs[1].Spec().Dependencies)
	s.Equal([]string{"transform"}, jobs[2].Spec().Dependencies)

	_, isETL := jobs[0].(job.ETLJob)
	s.True(isETL)
	_, isAdmin := jobs[2].(job.AdminJob)
	s.True(isAdmin)
}

func (s *BuilderTestSuite) TestCommandSuccessRunsTests() {
	extract := s.build(testutil.SampleManifest)[0].(job.ETLJob)

	res, err := extract.Run(s.ctx, s.logger)
	s.Require().NoError(err)
	s.Equal(result.Success(), res)

	outcomes, err := extract.Test(s.ctx, s.logger)
	s.Require().NoError(err)
	s.Require().Len(outcomes, 1)
	s.Equal("output-present", outcomes[0].Name)
	s.Equal(result.Success(), outcomes[0].Result)
}

func (s *BuilderTestSuite) TestCommandExitIsFailure() {
	res, err := s.etl([]string{"sh", "-c", "echo starting; echo table locked >&2; exit 3"}, nil).Run(s.ctx, s.logger)
	s.Require().NoError(err)
	s.Equal(result.Failure("exit status 3: table locked"), res)
	s.Equal(1, s.logger.Count("command failed"))
}

func (s *BuilderTestSuite) TestCommandStartErrorIsFault() {
	_, err := s.etl([]string{"/nonexistent/extract-" + uuid.NewString()}, nil).Run(s.ctx, s.logger)
	s.Require().Error(err)
	s.Contains(err.Error(), "start command")
}

func (s *BuilderTestSuite) TestCommandCancelledIsFault() {
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()

	_, err := s.etl([]string{"sleep", "5"}, nil).Run(ctx, s.logger)
	s.Require().Error(err)
	s.ErrorIs(err, context.Canceled)
}

func (s *BuilderTestSuite) TestCommandResolvesSecrets() {
	s.T().Setenv("BATCH_TEST_WAREHOUSE_TOKEN", "s3cret")
	env := map[string]string{
		"TOKEN":  "secret://env/BATCH_TEST_WAREHOUSE_TOKEN",
		"TARGET": "warehouse",
	}

	res, err := s.etl([]string{"sh", "-c", `test "$TOKEN" = s3cret && test "$TARGET" = warehouse`}, env).Run(s.ctx, s.logger)
	s.Require().NoError(err)
	s.Equal(result.Success(), res)

	_, err = s.etl([]string{"true"}, map[string]string{"TOKEN": "secret://env/BATCH_TEST_UNSET_" + uuid.New().String()[:8]}).Run(s.ctx, s.logger)
	s.Require().Error(err)
	s.Contains(err.Error(), "resolve TOKEN")
}

func (s *BuilderTestSuite) TestFailingTestCommand() {
	jobs := s.build(`
apiVersion: v1
kind: Batch
metadata: {name: checks}
jobs:
  - name: load
    command: ["true"]
    tests:
      - name: passes
        command: ["true"]
      - name: fails
        command: ["sh", "-c", "echo 0 rows; exit 1"]
`)
	outcomes, err := jobs[0].(job.ETLJob).Test(s.ctx, s.logger)
	s.Require().NoError(err)
	s.Require().Len(outcomes, 2)
	s.Equal(result.Success(), outcomes[0].Result)
	s.Equal(result.Failure("exit status 1: 0 rows"), outcomes[1].Result)
}

func (s *BuilderTestSuite) TestPruneHistory() {
	uow := history.NewMemoryUnitOfWork()
	s.seedBatch(uow, epoch.Add(-48*time.Hour), false)
	s.seedBatch(uow, epoch.Add(-48*time.Hour), true)
	s.seedBatch(uow, epoch.Add(-time.Hour), false)

	prune := s.build(testutil.SampleManifest)[2].(job.AdminJob)

	res, err := prune.Run(s.ctx, uow, s.logger)
	s.Require().NoError(err)
	s.False(res.IsFailure())
	s.Equal("pruned 0 batches", res.Message, "the manifest keeps 720h of history")

	jobs := s.build(`
apiVersion: v1
kind: Batch
metadata: {name: housekeeping}
jobs:
  - name: prune
    kind: admin
    action: prune-history
`)
	prune = jobs[0].(job.AdminJob)

	outcomes, err := prune.Test(s.ctx, uow, s.logger)
	s.Require().NoError(err)
	s.Require().Len(outcomes, 1)
	s.True(outcomes[0].Result.IsFailure())

	res, err = prune.Run(s.ctx, uow, s.logger)
	s.Require().NoError(err)
	s.Equal("pruned 1 batches", res.Message)
	s.Len(uow.Batches(), 2)

	outcomes, err = prune.Test(s.ctx, uow, s.logger)
	s.Require().NoError(err)
	s.Require().Len(outcomes, 1)
	s.Equal(result.Success(), outcomes[0].Result)
}

func (s *BuilderTestSuite) TestPruneRequiresRetention() {
	s.builder.Retention = 0
	def, err := schema.Parse([]byte("apiVersion: v1\nkind: Batch\nmetadata: {name: x}\njobs: [{name: prune, kind: admin, action: prune-history}]\n"))
	s.Require().NoError(err)

	_, err = s.builder.Build(def)
	s.ErrorContains(err, "requires a positive retention")
}

func (s *BuilderTestSuite) TestVerifyHistory() {
	jobs := s.build("apiVersion: v1\nkind: Batch\nmetadata: {name: x}\njobs: [{name: verify, kind: admin, action: verify-history}]\n")
	verify := jobs[0].(job.AdminJob)
	uow := history.NewMemoryUnitOfWork()

	s.seedBatch(uow, epoch, true)
	res, err := verify.Run(s.ctx, uow, s.logger)
	s.Require().NoError(err)
	s.Equal(result.Success(), res, "the newest batch is the one running the check")

	s.seedBatch(uow, epoch.Add(time.Minute), true)
	res, err = verify.Run(s.ctx, uow, s.logger)
	s.Require().NoError(err)
	s.Equal(result.Failure("1 abandoned batches still marked running"), res)
}

func (s *BuilderTestSuite) TestRunSampleManifest() {
	db := testutil.OpenTestDB(s.T())
	defer testutil.CloseDB(db)
	uow := history.NewGormUnitOfWork(db)

	jobs := s.build(testutil.SampleManifest)
	runner := batch.NewRunner(job.NewRunner(), history.NewLogging(uow, s.clk))

	delta, err := runner.Run(s.ctx, uow, jobs, s.clk)
	s.Require().NoError(err)
	s.Nil(delta.Previous)
	s.Len(delta.Current.JobResults, 3)
	s.Empty(delta.Current.Failed())

	testutil.AssertCount(s.T(), db, &models.Batch{}, 1)
	testutil.AssertCount(s.T(), db, &models.JobResult{}, 3)
	testutil.AssertCount(s.T(), db, &models.JobTestResult{}, 2)

	s.clk.Advance(time.Minute)
	delta, err = runner.Run(s.ctx, uow, jobs, s.clk)
	s.Require().NoError(err)
	s.Len(delta.Current.JobResults, 2, "extract is still fresh")
	s.Equal(1, delta.Report().Counts[batch.ChangeSkipped])
}

func (s *BuilderTestSuite) seedBatch(uow history.UnitOfWork, ts time.Time, running bool) {
	s.Require().NoError(history.Do(s.ctx, uow, func(tx history.Tx) error {
		if err := tx.AddBatch(&models.Batch{ID: uuid.New(), Running: running, Timestamp: ts}); err != nil {
			return err
		}
		return tx.Commit()
	}))
}

func (s *BuilderTestSuite) TestCheckSecrets() {
	s.T().Setenv("BATCH_TEST_PRESENT", "yes")
	defs := []*schema.Definition{
		{Metadata: schema.Metadata{Name: "a"}, Jobs: []schema.Job{
			{Name: "one", Env: map[string]string{"X": "secret://env/BATCH_TEST_PRESENT", "Y": "plain"}},
			{Name: "two", Env: map[string]string{"Z": "secret://vault/kv/data/x?field=y"}},
		}},
		{Metadata: schema.Metadata{Name: "b"}, Jobs: []schema.Job{
			{Name: "three", Env: map[string]string{"Z": "secret://vault/kv/data/x?field=y"}},
		}},
	}

	s.Equal([]string{"secret://env/BATCH_TEST_PRESENT", "secret://vault/kv/data/x?field=y"}, SecretReferences(defs[0]))

	problems := CheckSecrets(s.ctx, s.builder.Secrets, defs)
	s.Require().Len(problems, 2)
	s.Contains(problems[0], "a: secret secret://vault/kv/data/x?field=y")
	s.Contains(problems[1], "b: secret secret://vault/kv/data/x?field=y")
}
