package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the task worker",
	Long: `Consume export and mail tasks from the broker. Requires BROKER_URL; run a
result backend as well so the server can report task status.`,
	Run: func(cmd *cobra.Command, args []string) {
		startWorker()
	},
}

var workerConcurrency int

func startWorker() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := initializeDependencies(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}
	defer deps.Close()

	if deps.InProcess() {
		deps.Logger.Error("worker needs a broker url; the server runs tasks in process otherwise")
		return
	}

	deps.Logger.Info("task worker is running. Press Ctrl+C to stop.",
		"queue", deps.Config.Worker.Queue,
		"concurrency", deps.Config.Worker.Concurrency)

	if err := deps.Engine.Run(ctx); err != nil {
		deps.Logger.Error("task worker stopped with error", "error", err)
		return
	}
	deps.Logger.Info("task worker shutdown complete")
}

func getIntFlag(flagValue, configValue int) int {
	if flagValue > 0 {
		return flagValue
	}
	return configValue
}

func init() {
	workerCmd.Flags().IntVar(&workerConcurrency, "concurrency", 0, "Number of concurrent deliveries (overrides config)")
}
