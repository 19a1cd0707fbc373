package cmd

import (
	"github.com/spf13/cobra"
	"worker-hls/config"
	server2 "worker-hls/server"
)

func server(config *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "watch uploads, scan the database and serve /health, /status and /metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return server2.RunHttp(config)
		},
	}
}
