package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "portal",
		Short:        "Clinic portal: web backend and command line client",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("config", "", "Directory holding config.yml")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(logoutCmd())
	rootCmd.AddCommand(whoamiCmd())
	rootCmd.AddCommand(slotsCmd())
	rootCmd.AddCommand(bookCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(eventsCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
