package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/polzovatel/ai-agent-for-browser-snapshot/internal/config"
	"github.com/polzovatel/ai-agent-for-browser-snapshot/internal/output"
)

// globals are filled by the root command before any subcommand runs.
type globals struct {
	cfg     config.Config
	printer *output.Printer
	logger  zerolog.Logger
}

func newRootCmd(g *globals) *cobra.Command {
	root := &cobra.Command{
		Use:           "agent",
		Short:         "Snapshot browser pages and act on their elements",
		Long:          "Compiles pages into readable element snapshots with stable eids, lists actionable elements and clicks them over the DevTools protocol.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "Path to a YAML config file")
	root.PersistentFlags().String("format", "yaml", "Output format: yaml, json, text")
	root.PersistentFlags().Bool("pretty", false, "Indent JSON output")

	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		path, _ := root.PersistentFlags().GetString("config")
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		raw, _ := root.PersistentFlags().GetString("format")
		format, err := output.ParseFormat(raw)
		if err != nil {
			return err
		}
		pretty, _ := root.PersistentFlags().GetBool("pretty")

		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(cfg.LogLevel())

		g.cfg = cfg
		g.printer = output.NewPrinter(cmd.OutOrStdout(), format, pretty)
		g.logger = log.Logger
		return nil
	}

	root.AddCommand(newSnapshotCmd(g), newActionablesCmd(g), newClickCmd(g))
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(&globals{}).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
