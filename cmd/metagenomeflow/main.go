// Command metagenomeflow runs the sample-processing pipeline: download
// and convert runs, trim them, then reconcile, merge and profile the batch.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Lllllllleong/metagenomeflow/internal/config"
)

const helpMessage = `Usage: metagenomeflow <command>

Commands:
  download   fetch and convert every run in the sample list (SRA_LIST)
  trim       trim adapters and low-quality bases from converted runs
  analyze    reconcile read counts, merge pairs and run the abundance pipeline
  publish    upload the abundance pipeline output to RESULTS_BUCKET
  all        download, trim, analyze, then publish when RESULTS_BUCKET is set
  help       print this message

Settings are read from environment variables.`

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 1 {
		slog.Error("Incorrect number of parameters.")
		fmt.Fprintln(os.Stderr, helpMessage)
		return 1
	}
	switch args[0] {
	case "help", "-help", "--help", "-h":
		fmt.Fprintln(os.Stderr, helpMessage)
		return 0
	case "download", "trim", "analyze", "publish", "all":
	default:
		slog.Error("Unknown command.", "command", args[0])
		fmt.Fprintln(os.Stderr, helpMessage)
		return 1
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize", "error", err)
		return 1
	}
	defer a.close()

	switch args[0] {
	case "download":
		err = a.download(ctx)
	case "trim":
		err = a.trim(ctx)
	case "analyze":
		err = a.analyze(ctx)
	case "publish":
		err = a.publish(ctx)
	case "all":
		err = a.all(ctx)
	}
	if err != nil {
		a.fail(ctx, err)
		return 1
	}
	return 0
}
