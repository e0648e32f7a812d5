package serve

import (
	"context"
	"os"
	"os/signal"
	"runtime/pprof"
	"syscall"

	"github.com/caesium-cloud/batch/api"
	"github.com/caesium-cloud/batch/internal/jobdef/runtime"
	"github.com/caesium-cloud/batch/pkg/env"
	"github.com/caesium-cloud/batch/pkg/log"
	"github.com/spf13/cobra"
)

const (
	usage   = "serve"
	short   = "Serve the batch history API"
	long    = "This command serves the recorded batch history, health and metrics over HTTP"
	example = "batch serve"
)

var (
	// Cmd is the serve command.
	Cmd = &cobra.Command{
		Use:        usage,
		Short:      short,
		Long:       long,
		Aliases:    []string{"s"},
		SuggestFor: []string{"start", "api", "up"},
		Example:    example,
		RunE:       serve,
	}
)

func serve(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGUSR1, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signalChan)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case s := <-signalChan:
				switch s {
				case syscall.SIGUSR1:
					log.Info("dumping stack traces due to SIGUSR1 signal")
					if profile := pprof.Lookup("goroutine"); profile != nil {
						if err := profile.WriteTo(os.Stdout, 1); err != nil {
							log.Error("write goroutine profile", "error", err)
						}
					}
				default:
					log.Info("gracefully shutting down", "signal", s.String())
					cancel()
					return
				}
			}
		}
	}()

	log.Info("migrating database")
	uow, err := runtime.OpenHistory(env.Variables())
	if err != nil {
		return err
	}

	log.Info("spinning up api")
	return api.Start(ctx, uow)
}
