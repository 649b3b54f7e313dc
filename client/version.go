package main

import (
	"strings"
	"time"

	"github.com/gammadia/hqalloc/proto"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the version of the client and the server",

	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.Printf("hqalloc version %s (%s)\n", version, shortCommit(commit))

		response, err := client.Ping(cmd.Context(), &proto.PingRequest{})
		if err != nil {
			return err
		}
		cmd.Printf("server version %s (%s)\n", response.Version, shortCommit(response.Commit))

		if verbose && response.Status != nil {
			status := response.Status
			cmd.Printf("%-12s %s\n", "Manager:", status.Name)
			cmd.Printf("%-12s %s\n", "Backends:", strings.Join(status.Backends, ", "))
			if status.StartedAt != nil {
				cmd.Printf("%-12s %s\n", "Uptime:", formatDuration(time.Since(status.StartedAt.AsTime())))
			}
		}
		return nil
	},
}

func shortCommit(commit string) string {
	return commit[:min(len(commit), 7)]
}
