package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kirychukyurii/weka-scale-in/internal/api"
	"github.com/kirychukyurii/weka-scale-in/internal/config"
	"github.com/kirychukyurii/weka-scale-in/internal/logger"
	"github.com/kirychukyurii/weka-scale-in/internal/report"
	"github.com/kirychukyurii/weka-scale-in/internal/service"
	"github.com/kirychukyurii/weka-scale-in/pkg/httpserver"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve scale-in invocations over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configPath, _ := cmd.Flags().GetString("config")

			cfg, err := config.LoadOptional(configPath)
			if err != nil {
				return err
			}

			log := logger.NewWithLevel(logger.ParseLevel(cfg.Log.Level))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg, log)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	store, err := report.Open(cfg.Report, log)
	if err != nil {
		log.Error("failed to open report store",
			"error", err.Error(),
		)
		return err
	}
	defer store.Close()

	svc, err := service.NewScaleInService(cfg, store, log)
	if err != nil {
		return fmt.Errorf("failed to create scale-in service: %w", err)
	}

	handler := api.NewHandler(svc, cfg.Server.BasePath, cfg.Server.WriteTimeout, log)

	srv := httpserver.New(
		cfg.Server.Addr,
		handler.Router(),
		cfg.Server.ReadTimeout,
		cfg.Server.WriteTimeout,
		log,
	)

	log.Info("starting scale-in service",
		"control_plane_port", cfg.ControlPlane.Port,
		"etcd_reports", cfg.Report.Etcd != nil,
	)

	if err := srv.Run(ctx); err != nil {
		log.Error("server error",
			"error", err.Error(),
		)
		return err
	}

	log.Info("shutdown complete")
	return nil
}
