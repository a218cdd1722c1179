package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	appinference "github.com/bryanwahyu/tomvto/internal/application/inference"
	"github.com/bryanwahyu/tomvto/internal/config"
	predictions "github.com/bryanwahyu/tomvto/internal/domain/predictions"
	"github.com/bryanwahyu/tomvto/internal/infra/httpserver"
	"github.com/bryanwahyu/tomvto/internal/infra/mlservice"
	"github.com/bryanwahyu/tomvto/internal/middleware"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	// an explicitly named config file must exist
	explicit := func(cmd *cobra.Command) bool {
		return cmd.Flags().Changed("config") || os.Getenv("CONFIG_PATH") != ""
	}

	root := &cobra.Command{
		Use:          "tomvto",
		Short:        "Tomato seed viability prediction service",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), configPath, explicit(cmd))
		},
	}

	defaultPath := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		defaultPath = v
	}
	root.PersistentFlags().StringVar(&configPath, "config", defaultPath, "path to config.yaml (env CONFIG_PATH)")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (default)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), configPath, explicit(cmd))
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Print prediction statistics as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), configPath, explicit(cmd))
			if err != nil {
				return err
			}
			defer a.Close()
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(a.store.Statistics(cmd.Context()))
		},
	})

	var limit int
	history := &cobra.Command{
		Use:   "history",
		Short: "List stored predictions, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), configPath, explicit(cmd))
			if err != nil {
				return err
			}
			defer a.Close()
			records, err := a.store.List(cmd.Context())
			if err != nil {
				return err
			}
			n := middleware.ValidateLimit(limit, len(records))
			return printHistory(cmd, records[:n])
		},
	}
	history.Flags().IntVar(&limit, "limit", 20, "number of records to show (0 = all)")
	root.AddCommand(history)

	root.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete one prediction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := middleware.ValidateRecordID(args[0]); err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), configPath, explicit(cmd))
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.store.Delete(cmd.Context(), predictions.RecordID(args[0])); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	})

	return root
}

func printHistory(cmd *cobra.Command, records []predictions.Record) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTIMESTAMP\tRESULT\tCONFIDENCE\tTYPE\tSEED\tMODEL")
	for _, r := range records {
		seed := "-"
		if n, ok := r.SeedNumber(); ok {
			seed = strconv.Itoa(n)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.1f\t%s\t%s\t%s\n",
			r.ID, r.Timestamp, r.Prediction, r.Confidence,
			r.DetectionType(), seed, r.ModelVersion)
	}
	return tw.Flush()
}

func runServe(parent context.Context, configPath string, required bool) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath, required)
	if err != nil {
		slog.Error("config load error", "error", err)
		return err
	}
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	metrics, err := middleware.NewMetrics(prometheus.NewRegistry())
	if err != nil {
		return fmt.Errorf("metrics init: %w", err)
	}

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("storage init error", "error", err)
		return err
	}
	defer a.Close()
	a.store.Metrics = metrics

	ml := mlservice.NewClient(mlservice.Config{
		BaseURL: cfg.MLService.BaseURL,
		Timeout: cfg.MLService.Timeout,
	})
	gateway := appinference.NewService(ml, cfg.MLService.ModelInfoTTL)
	gateway.Logger = logger.With("component", "inference")
	gateway.Metrics = metrics
	a.health["ml_service"] = ml

	var limiter *middleware.RateLimiter
	if cfg.RateLimit.RequestsPerSecond > 0 {
		limiter = middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	}

	handler := httpserver.NewRouter(a.store, gateway, httpserver.Options{
		Logger:         logger.With("component", "http"),
		Metrics:        metrics,
		RateLimiter:    limiter,
		APIKeys:        cfg.Auth.APIKeys,
		CORSOrigins:    cfg.Server.CORSOrigins,
		Health:         a.health,
		OptionalChecks: []string{"ml_service", "snapshot_archive"},
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", addr, "ml_service", ml.BaseURL(), "storage", cfg.Storage.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", "error", err)
			return err
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		logger.Error("shutdown error", "error", err)
		return err
	}
	return nil
}

func openApp(ctx context.Context, configPath string, required bool) (*app, error) {
	cfg, err := config.Load(configPath, required)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg)
	return buildApp(ctx, cfg, logger)
}
