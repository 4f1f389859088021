package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/skillsmith/coursegen/config"
	"github.com/skillsmith/coursegen/internal/queue/streams"
	srv "github.com/skillsmith/coursegen/internal/server"
	"github.com/skillsmith/coursegen/internal/worker"
)

func workerCMD() *cobra.Command {
	var cfgPath string
	var consumerName string
	var cmd = &cobra.Command{
		Use:   "worker",
		Short: "Run a course generation worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			deps, err := srv.BuildDeps(ctx, cfg)
			if err != nil {
				return err
			}
			if err := streams.EnsureGroup(ctx, deps.Redis, cfg.Queue.Stream, cfg.Queue.ConsumerGroup); err != nil {
				return err
			}

			if consumerName == "" {
				host, _ := os.Hostname()
				consumerName = "worker-" + host
			}
			consumer := streams.NewConsumer(deps.Redis, cfg.Queue.ConsumerGroup, consumerName)

			logger := log.New(log.Writer(), "[WORKER] ", log.LstdFlags)
			proc := worker.NewProcessor(logger, deps.Store, deps.Orchestrator, deps.Publisher, consumer, cfg.Queue.Stream)
			defer deps.Telemetry.LogSummary()
			return proc.Start(ctx)
		},
	}
	cmd.Flags().StringVar(&consumerName, "name", "", "consumer name within the group (default worker-<hostname>)")
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return cmd
}
