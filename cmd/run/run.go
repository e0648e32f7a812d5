package run

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/caesium-cloud/batch/internal/batch"
	"github.com/caesium-cloud/batch/internal/jobdef/runtime"
	"github.com/caesium-cloud/batch/pkg/env"
	schema "github.com/caesium-cloud/batch/pkg/jobdef"
	"github.com/caesium-cloud/batch/pkg/log"
	"github.com/spf13/cobra"
)

const (
	usage   = "run"
	short   = "Run the batches described by job definitions"
	long    = "This command runs every batch definition found under the given paths, skipping jobs that are still fresh, and prints how each job changed since the previous batch"
	example = "batch run -p jobs/nightly.yaml"
)

var (
	runPaths  []string
	runOutput string
)

// Cmd is the run command.
var Cmd = &cobra.Command{
	Use:     usage,
	Short:   short,
	Long:    long,
	Example: example,
	RunE:    run,
}

func init() {
	Cmd.Flags().StringSliceVarP(&runPaths, "path", "p", []string{"."}, "Paths to job definition files or directories")
	Cmd.Flags().StringVarP(&runOutput, "output", "o", "text", "Report format: text or json")
}

func run(cmd *cobra.Command, args []string) error {
	if runOutput != "text" && runOutput != "json" {
		return fmt.Errorf("unsupported output format %q", runOutput)
	}

	defs, err := schema.Collect(runPaths)
	if err != nil {
		return err
	}
	if len(defs) == 0 {
		return writeCmdOut(cmd, "No batch definitions found.\n")
	}

	vars := env.Variables()

	uow, err := runtime.OpenHistory(vars)
	if err != nil {
		return err
	}

	resolver, err := runtime.BuildSecretResolver(vars)
	if err != nil {
		return err
	}

	builder := runtime.BuildBuilder(vars, resolver)
	runner := runtime.BuildBatchRunner(vars, uow)

	var (
		ctx     = cmd.Context()
		reports = make([]batch.Report, 0, len(defs))
		failed  []string
	)

	for _, def := range defs {
		jobs, err := builder.Build(def)
		if err != nil {
			return fmt.Errorf("definition %s: %w", def.Metadata.Name, err)
		}

		log.Info("running batch definition", "name", def.Metadata.Name, "jobs", len(jobs))

		delta, err := runner.RunNamed(ctx, uow, def.Metadata.Name, jobs, nil)
		if err != nil {
			return fmt.Errorf("definition %s: %w", def.Metadata.Name, err)
		}

		report := delta.Report()
		reports = append(reports, report)
		for _, name := range report.Failed {
			failed = append(failed, def.Metadata.Name+"/"+name)
		}

		if runOutput == "text" {
			if err := writeCmdOut(cmd, "Definition %s\n", def.Metadata.Name); err != nil {
				return err
			}
			if err := report.Write(cmd.OutOrStdout()); err != nil {
				return err
			}
		}
	}

	if runOutput == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(reports); err != nil {
			return err
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("%d job(s) failed: %s", len(failed), strings.Join(failed, ", "))
	}
	return nil
}

func writeCmdOut(cmd *cobra.Command, format string, args ...any) error {
	if _, err := fmt.Fprintf(cmd.OutOrStdout(), format, args...); err != nil {
		cmd.PrintErrf("write output: %v\n", err)
		return err
	}
	return nil
}
