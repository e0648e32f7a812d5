package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/caesium-cloud/batch/cmd/check"
	"github.com/caesium-cloud/batch/cmd/history"
	"github.com/caesium-cloud/batch/cmd/run"
	"github.com/caesium-cloud/batch/cmd/serve"
	"github.com/caesium-cloud/batch/internal/metrics"
	"github.com/spf13/cobra"
)

var cmds = []*cobra.Command{
	run.Cmd,
	check.Cmd,
	history.Cmd,
	serve.Cmd,
}

// Execute builds the command tree and executes commands. Interrupting a
// run cancels the job in flight.
func Execute() error {
	command := NewRoot()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return command.ExecuteContext(ctx)
}

// NewRoot returns the root command with every subcommand attached.
func NewRoot() *cobra.Command {
	command := &cobra.Command{
		Use:           "batch",
		Short:         "Run batches of dependent jobs and keep their history",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			metrics.Register()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Usage()
		},
	}

	for _, c := range cmds {
		command.AddCommand(c)
	}

	return command
}
