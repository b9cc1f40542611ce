package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/routes/cases"
	"github.com/Ramsey-B/fern/pkg/routes/mergecandidate"
	"github.com/Ramsey-B/fern/pkg/routes/validation"
)

// Router builds the HTTP API over the wired components. Start must have succeeded.
func (a *App) Router(ctx context.Context) (*echo.Echo, error) {
	cfg := a.Config.HTTP

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(a.Logger)

	e.Use(echomw.Recover())
	e.Use(otelecho.Middleware(a.Config.App.Name))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(a.Logger))

	a.Health.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api/v1")
	if cfg.AuthEnabled {
		auth, err := middleware.Authentication(ctx, a.Logger, cfg.AuthIssuerURL, cfg.AuthClientID)
		if err != nil {
			return nil, err
		}
		api.Use(auth)
	}

	var related cases.RelatedFinder
	if a.Related != nil {
		related = a.Related
	}
	cases.NewHandler(a.Linker, a.Store, a.Consolidator, related, a.Logger).Register(api.Group("/cases"))
	mergecandidate.NewHandler(a.Consolidator, a.Logger).Register(api.Group("/merge-candidates"))
	validation.Register(api.Group("/entity-bags"))

	return e, nil
}

// Serve runs the HTTP API until ctx is done, then drains in-flight requests
func (a *App) Serve(ctx context.Context) error {
	router, err := a.Router(ctx)
	if err != nil {
		return err
	}

	cfg := a.Config.HTTP
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadTimeout:       seconds(cfg.ReadTimeoutSeconds),
		WriteTimeout:      seconds(cfg.WriteTimeoutSeconds),
		IdleTimeout:       seconds(cfg.IdleTimeoutSeconds),
		ReadHeaderTimeout: seconds(cfg.ReadHeaderTimeoutSeconds),
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.WithContext(ctx).Infof("Listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	a.Health.SetReady(true)

	select {
	case err := <-errCh:
		a.Health.SetReady(false)
		return err
	case <-ctx.Done():
	}

	a.Health.SetReady(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), seconds(cfg.WriteTimeoutSeconds))
	defer cancel()
	a.Logger.WithContext(shutdownCtx).Info("Shutting down HTTP server")
	return server.Shutdown(shutdownCtx)
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
