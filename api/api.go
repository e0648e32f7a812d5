package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/caesium-cloud/batch/api/rest/v1"
	"github.com/caesium-cloud/batch/internal/history"
	"github.com/caesium-cloud/batch/pkg/env"
	"github.com/caesium-cloud/batch/pkg/log"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pkg/errors"
)

const shutdownTimeout = 10 * time.Second

// Registry is where the HTTP metrics are registered and gathered from.
// A nil Registry uses the Prometheus defaults.
type Registry interface {
	prometheus.Registerer
	prometheus.Gatherer
}

// New builds the batch history API over uow.
func New(uow history.UnitOfWork, registry Registry) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// health
	e.GET("/health", Health(uow))

	// metrics
	mwConfig := echoprometheus.MiddlewareConfig{Subsystem: "batch_api"}
	handlerConfig := echoprometheus.HandlerConfig{}
	if registry != nil {
		mwConfig.Registerer = registry
		handlerConfig.Gatherer = registry
	}
	e.Use(echoprometheus.NewMiddlewareWithConfig(mwConfig))
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(handlerConfig))

	// REST
	rest.Bind(e.Group("/v1"), uow)

	return e
}

// Start serves the API on the configured port until ctx is cancelled.
func Start(ctx context.Context, uow history.UnitOfWork) error {
	e := New(uow, nil)
	addr := fmt.Sprintf(":%v", env.Variables().Port)

	errs := make(chan error, 1)
	go func() {
		log.Info("api listening", "address", addr)
		errs <- e.Start(addr)
	}()

	select {
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "api server")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	log.Info("shutting down api")
	if err := e.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "api shutdown")
	}
	return nil
}
