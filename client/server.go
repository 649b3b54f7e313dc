package main

import (
	"fmt"
	"strconv"

	"github.com/fatih/color"
	"github.com/gammadia/hqalloc/proto"
	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Manage the server",
}

var serverStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the server, cancelling the allocations of every queue",
	Args:  cobra.NoArgs,

	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := client.StopServer(cmd.Context(), &proto.StopServerRequest{}); err != nil {
			return err
		}
		cmd.PrintErrln(color.HiGreenString("Server stop requested"))
		return nil
	},
}

var workloadCmd = &cobra.Command{
	Use:   "workload",
	Short: "Report the pending work to the server",
}

var workloadSetCmd = &cobra.Command{
	Use:   "set PENDING_TASKS",
	Short: "Set the number of tasks waiting for workers",
	Args:  cobra.ExactArgs(1),

	RunE: func(cmd *cobra.Command, args []string) error {
		pending, err := parsePendingTasks(args[0])
		if err != nil {
			return err
		}

		if _, err := client.SetWorkload(cmd.Context(), &proto.SetWorkloadRequest{PendingTasks: pending}); err != nil {
			return err
		}
		cmd.PrintErrln(color.HiGreenString("Workload set to %d pending tasks", pending))
		return nil
	},
}

func init() {
	serverCmd.AddCommand(serverStopCmd)
	workloadCmd.AddCommand(workloadSetCmd)
}

func parsePendingTasks(value string) (uint32, error) {
	pending, err := strconv.ParseUint(value, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid number of pending tasks '%s'", value)
	}
	return uint32(pending), nil
}
