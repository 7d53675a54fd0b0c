package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"sentinel-worker-go/internal/config"
	"sentinel-worker-go/internal/logging"
	"sentinel-worker-go/internal/store"
)

func newCamerasCmd(cfg func() *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cameras",
		Short: "Inspect the configured cameras",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List cameras from the camera file",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := cfg()
			cams, err := store.NewFileStore(c.CamerasFile, store.DefaultCameras, logging.NewServiceLogger(c, "camera_store")).List()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tENABLED\tSOURCE")
			for _, d := range cams {
				fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", d.ID, d.Name, d.Enabled, d.SourceURI)
			}
			return w.Flush()
		},
	})
	return cmd
}
