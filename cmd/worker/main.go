package main

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"sentinel-worker-go/internal/config"
	"sentinel-worker-go/internal/logging"
)

func newRootCmd() *cobra.Command {
	var cfg *config.Config

	rootCmd := &cobra.Command{
		Use:           "worker",
		Short:         "Camera surveillance worker",
		Long:          "Watches camera streams for motion and people, raises alerts, records clips and serves a dashboard API.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cfg = config.Load()
			logging.Setup(cfg)
		},
	}

	deps := func() *config.Config { return cfg }
	rootCmd.AddCommand(newServeCmd(deps))
	rootCmd.AddCommand(newCleanupCmd(deps))
	rootCmd.AddCommand(newCamerasCmd(deps))
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}
