package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"sentinel-worker-go/internal/config"
	"sentinel-worker-go/internal/logging"
	"sentinel-worker-go/internal/services/recorder"
)

func newCleanupCmd(cfg func() *config.Config) *cobra.Command {
	var quotaGB float64

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Run one eviction pass over the recordings directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := cfg()
			settings, err := config.LoadSettings(c.SettingsFile)
			if err != nil {
				return err
			}
			if quotaGB > 0 {
				settings.Recording.MaxStorageGB = quotaGB
			}

			res, err := recorder.Evict(settings.Recording.StoragePath, settings.Recording.QuotaBytes(),
				logging.NewServiceLogger(c, "cleanup"))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Storage: %s -> %s (quota %s)\n",
				recorder.FormatSize(res.TotalBefore), recorder.FormatSize(res.TotalAfter),
				recorder.FormatSize(settings.Recording.QuotaBytes()))
			for _, p := range res.Removed {
				fmt.Fprintf(out, "removed %s\n", p)
			}
			if len(res.Removed) == 0 {
				fmt.Fprintln(out, "Nothing to remove")
			}
			return nil
		},
	}

	cmd.Flags().Float64Var(&quotaGB, "quota-gb", 0, "override recording.max_storage_gb for this pass")
	return cmd
}
