package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maxMuster194/testchart-sub002/cmd/controllers"
	"github.com/maxMuster194/testchart-sub002/internal/scheduler"
	"github.com/maxMuster194/testchart-sub002/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	defaultConfigPath = "config.yaml"
	shutdownTimeout   = 30 * time.Second
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:          "pricefeed",
		Short:        "Ingests day-ahead electricity prices and serves them over HTTP",
		SilenceUsage: true,
		RunE:         runServe,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default $CONFIG_PATH or config.yaml)")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API and the refresh scheduler",
			RunE:  runServe,
		},
		&cobra.Command{
			Use:   "ingest",
			Short: "Run one refresh cycle and exit",
			RunE:  runIngest,
		},
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return path
	}
	return defaultConfigPath
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp(resolveConfigPath())
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router, err := newRouter(a)
	if err != nil {
		return err
	}

	sched, err := scheduler.New(scheduler.Config{
		Spec:       a.cfg.Schedule.Cron,
		Timezone:   a.cfg.Schedule.Timezone,
		RunOnStart: a.cfg.Schedule.RunOnStart,
	}, a.pipeline, a.log)
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	sched.Start(ctx)

	server := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		a.log.Info("http server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			runErr = fmt.Errorf("run server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		a.log.Warn("shutdown http server", zap.Error(err))
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		a.log.Warn("stop scheduler", zap.Error(err))
	}

	return runErr
}

func newRouter(a *app) (*gin.Engine, error) {
	router := controllers.NewRouter(a.log)

	sqlDB, err := a.db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	if err := controllers.RegisterHealthRoutes(router, sqlDB); err != nil {
		return nil, fmt.Errorf("register health routes: %w", err)
	}
	if err := controllers.RegisterMetricsRoutes(router, a.registry); err != nil {
		return nil, fmt.Errorf("register metrics routes: %w", err)
	}

	marketsController, err := controllers.NewMarketsController(a.marketService)
	if err != nil {
		return nil, fmt.Errorf("create markets controller: %w", err)
	}
	pricesController, err := controllers.NewPricesController(a.priceService)
	if err != nil {
		return nil, fmt.Errorf("create prices controller: %w", err)
	}
	logsController, err := controllers.NewLogsController(a.logService)
	if err != nil {
		return nil, fmt.Errorf("create logs controller: %w", err)
	}
	refreshController, err := controllers.NewRefreshController(a.pipeline)
	if err != nil {
		return nil, fmt.Errorf("create refresh controller: %w", err)
	}

	if err := marketsController.RegisterRoutes(router); err != nil {
		return nil, fmt.Errorf("register markets routes: %w", err)
	}
	if err := pricesController.RegisterRoutes(router); err != nil {
		return nil, fmt.Errorf("register prices routes: %w", err)
	}
	if err := logsController.RegisterRoutes(router); err != nil {
		return nil, fmt.Errorf("register logs routes: %w", err)
	}
	if err := refreshController.RegisterRoutes(router); err != nil {
		return nil, fmt.Errorf("register refresh routes: %w", err)
	}

	return router, nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	a, err := newApp(resolveConfigPath())
	if err != nil {
		return err
	}
	defer a.close()

	report, err := a.pipeline.Refresh(cmd.Context())
	for _, market := range report.Markets {
		a.log.Info("market result",
			zap.String("market", market.Market),
			zap.String("state", string(market.State)),
			zap.Int("records", market.Records),
			zap.String("error", market.Error),
		)
	}
	switch {
	case errors.Is(err, services.ErrNoMarkets):
		a.log.Warn("no markets to ingest")
		return nil
	case errors.Is(err, services.ErrCycleSkipped):
		a.log.Warn("refresh already in progress")
		return nil
	}

	return err
}
