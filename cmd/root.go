package cmd

import (
	"github.com/spf13/cobra"
	"worker-hls/config"
)

func Root(config *config.Config) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "worker-hls",
		Short:         "turn uploaded videos into adaptive HLS renditions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(server(config))
	rootCmd.AddCommand(scan(config))
	return rootCmd
}
