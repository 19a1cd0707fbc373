package cmd

import (
	"github.com/spf13/cobra"
	"worker-hls/config"
	server2 "worker-hls/server"
)

func scan(config *config.Config) *cobra.Command {
	var includeUploads bool
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "process every pending video once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return server2.RunScan(config, includeUploads)
		},
	}
	cmd.Flags().BoolVar(&includeUploads, "uploads", false, "also queue every unprocessed video found under the upload root")
	return cmd
}
