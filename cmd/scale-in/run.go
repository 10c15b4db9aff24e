package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kirychukyurii/weka-scale-in/internal/config"
	"github.com/kirychukyurii/weka-scale-in/internal/logger"
	"github.com/kirychukyurii/weka-scale-in/internal/model"
	"github.com/kirychukyurii/weka-scale-in/internal/report"
	"github.com/kirychukyurii/weka-scale-in/internal/service"
)

func newRunCmd() *cobra.Command {
	var eventPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one scale-in invocation and print its output",
		Long: `Reads the invocation event as JSON from --event (or stdin when the flag
is empty or "-"), scales the host group in, and prints the resulting
host inventory to stdout. Logs go to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configPath, _ := cmd.Flags().GetString("config")

			cfg, err := config.LoadOptional(configPath)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			in := cmd.InOrStdin()
			if eventPath != "" && eventPath != "-" {
				f, err := os.Open(eventPath)
				if err != nil {
					return fmt.Errorf("failed to open event file: %w", err)
				}
				defer f.Close()
				in = f
			}

			return run(ctx, cfg, in, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVar(&eventPath, "event", "", `path to the invocation event JSON ("-" for stdin)`)

	return cmd
}

func run(ctx context.Context, cfg *config.Config, in io.Reader, out, errOut io.Writer, opts ...service.Option) error {
	log := logger.NewWithWriter(errOut, logger.ParseLevel(cfg.Log.Level))

	var req model.ScaleInRequest
	if err := json.NewDecoder(in).Decode(&req); err != nil {
		return fmt.Errorf("failed to decode scale-in event: %w", err)
	}

	store, err := report.Open(cfg.Report, log)
	if err != nil {
		return fmt.Errorf("failed to open report store: %w", err)
	}
	defer store.Close()

	svc, err := service.NewScaleInService(cfg, store, log, opts...)
	if err != nil {
		return fmt.Errorf("failed to create scale-in service: %w", err)
	}

	resp, err := svc.ScaleIn(ctx, &req)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(resp); err != nil {
		return fmt.Errorf("failed to write scale-in output: %w", err)
	}

	return nil
}
