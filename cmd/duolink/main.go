// Package main provides the CLI entry point for duolink.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/postalsys/duolink/internal/config"
	"github.com/postalsys/duolink/internal/logging"
	"github.com/postalsys/duolink/internal/orchestrator"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	logLevel  string
	logFormat string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "duolink <port> | duolink <ip> <port>",
		Short: "duolink - a two-party encrypted chat tunnel",
		Long: `duolink is a two-party interactive messaging tunnel. Run it with a
single port argument to listen as the server, or with an ip and a port
to connect as the client.`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format: text, json")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "duolink:", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	log := logging.NewLogger(logLevel, logFormat)

	cfg, err := config.ParseArgs(args)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	switch cfg.Mode {
	case config.ModeServer:
		srv := orchestrator.NewServer(log)
		return srv.Run(ctx, cfg.Addr())

	case config.ModeClient:
		client := orchestrator.NewClient(log)
		err := client.Connect(ctx, cfg.Addr(), os.Stdin, os.Stdout)
		if err != nil && term.IsTerminal(int(os.Stdin.Fd())) {
			if orchestrator.PromptRetry(os.Stdin, os.Stdout, func(fd uintptr) bool { return term.IsTerminal(int(fd)) }) {
				err = client.Connect(ctx, cfg.Addr(), os.Stdin, os.Stdout)
			}
		}
		return err

	default:
		return fmt.Errorf("duolink: unknown mode")
	}
}
