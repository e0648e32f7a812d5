package check

import (
	"fmt"
	"strings"

	"github.com/caesium-cloud/batch/internal/dependency"
	"github.com/caesium-cloud/batch/internal/jobdef"
	"github.com/caesium-cloud/batch/internal/jobdef/runtime"
	"github.com/caesium-cloud/batch/pkg/env"
	schema "github.com/caesium-cloud/batch/pkg/jobdef"
	"github.com/spf13/cobra"
)

const (
	usage   = "check"
	short   = "Validate batch definitions without running them"
	long    = "This command validates every batch definition found under the given paths, checks that each job's dependencies run before it, and optionally resolves secret references"
	example = "batch check -p jobs/ --secrets"
)

var (
	checkPaths   []string
	checkSecrets bool
)

// Cmd is the check command.
var Cmd = &cobra.Command{
	Use:        usage,
	Short:      short,
	Long:       long,
	Example:    example,
	SuggestFor: []string{"lint", "validate"},
	RunE:       check,
}

func init() {
	Cmd.Flags().StringSliceVarP(&checkPaths, "path", "p", []string{"."}, "Paths to job definition files or directories")
	Cmd.Flags().BoolVar(&checkSecrets, "secrets", false, "Resolve secret references using the configured providers")
}

func check(cmd *cobra.Command, args []string) error {
	defs, err := schema.Collect(checkPaths)
	if err != nil {
		return err
	}
	if len(defs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No batch definitions found.")
		return nil
	}

	builder := &jobdef.Builder{Retention: env.Variables().HistoryRetention}

	var problems []string
	for _, def := range defs {
		jobs, err := builder.Build(def)
		if err != nil {
			problems = append(problems, fmt.Sprintf("definition %s: %v", def.Metadata.Name, err))
			continue
		}

		for _, e := range dependency.Check(jobs) {
			problems = append(problems, fmt.Sprintf("definition %s: %v", def.Metadata.Name, e))
		}
	}

	if checkSecrets && len(problems) == 0 {
		resolver, err := runtime.BuildSecretResolver(env.Variables())
		if err != nil {
			return err
		}
		problems = append(problems, jobdef.CheckSecrets(cmd.Context(), resolver, defs)...)
	}

	if len(problems) > 0 {
		return fmt.Errorf("checks failed:\n%s", strings.Join(problems, "\n"))
	}

	if checkSecrets {
		fmt.Fprintf(cmd.OutOrStdout(), "Validated %d batch definition(s) with secrets\n", len(defs))
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "Validated %d batch definition(s)\n", len(defs))
	}
	return nil
}
