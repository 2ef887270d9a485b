package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/ubuntu/decorate"

	"hello-backend/internal/api"
	"hello-backend/internal/db"
	"hello-backend/internal/fetcher"
	"hello-backend/internal/metrics"
	"hello-backend/internal/poller"
	"hello-backend/internal/store"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the poller and the HTTP API (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}
}

func runServe(cmd *cobra.Command, opts *rootOptions) (err error) {
	defer decorate.OnError(&err, "serve")

	logger := log.New(os.Stdout, "hellod ", log.LstdFlags)

	cfg, err := loadConfig(opts.configPath, false)
	if err != nil {
		return err
	}
	logger.Printf("configuration loaded successfully from %s", opts.configPath)

	if cfg.Push.PublicKey == "" || cfg.Push.PrivateKey == "" {
		logger.Println("VAPID keys are not configured; push notifications will fail until they are set.")
	}

	webpushOptions := webpush.Options{
		VAPIDPublicKey:  cfg.Push.PublicKey,
		VAPIDPrivateKey: cfg.Push.PrivateKey,
		Subscriber:      cfg.Push.Subject,
		TTL:             cfg.Push.TTL,
	}

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		return err
	}
	logger.Println("database initialized successfully")

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	appStore := store.NewGormStore(gormDB)
	dataFetcher := fetcher.New(cfg.Fetcher)
	logger.Printf("fetching from %s", dataFetcher.Endpoint())

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	pollerSvc := poller.NewService(cfg, dataFetcher, appStore).WithMetrics(metrics.NewPoller(reg))
	go pollerSvc.Run(ctx)

	router := api.NewRouter(cfg.Server, appStore, dataFetcher, &webpushOptions)
	router.GET("/metrics", gin.WrapH(metrics.Handler(reg)))
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Println("Shutdown signal received, stopping services...")
	case err := <-serveErr:
		return fmt.Errorf("HTTP server ListenAndServe: %w", err)
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server Shutdown: %w", err)
	}

	logger.Println("Server gracefully stopped")
	return nil
}
