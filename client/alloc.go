package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/alessio/shellescape"
	"github.com/fatih/color"
	"github.com/gammadia/hqalloc/client/ui"
	"github.com/gammadia/hqalloc/proto"
	"github.com/gammadia/hqalloc/timelimit"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/timestamppb"
)

var allocCmd = &cobra.Command{
	Use:   "alloc",
	Short: "Manage allocation queues",
}

var allocListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List allocation queues",
	Args:    cobra.NoArgs,

	RunE: func(cmd *cobra.Command, args []string) error {
		response, err := client.ListQueues(cmd.Context(), &proto.ListQueuesRequest{})
		if err != nil {
			return err
		}
		return queuesTable(response.Queues).render(cmd.OutOrStdout())
	},
}

var allocInfoCmd = &cobra.Command{
	Use:   "info QUEUE",
	Short: "Show the allocations of a queue",
	Args:  cobra.ExactArgs(1),

	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseQueueID(args[0])
		if err != nil {
			return err
		}

		response, err := client.GetAllocations(cmd.Context(), &proto.GetAllocationsRequest{QueueID: id})
		if err != nil {
			return err
		}
		return allocationsTable(response.Allocations).render(cmd.OutOrStdout())
	},
}

var allocEventsCmd = &cobra.Command{
	Use:   "events QUEUE",
	Short: "Show the event log of a queue",
	Args:  cobra.ExactArgs(1),

	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseQueueID(args[0])
		if err != nil {
			return err
		}

		response, err := client.GetEvents(cmd.Context(), &proto.GetEventsRequest{QueueID: id})
		if err != nil {
			return err
		}
		return eventsTable(response.Events).render(cmd.OutOrStdout())
	},
}

var allocRemoveCmd = &cobra.Command{
	Use:     "remove QUEUE",
	Aliases: []string{"rm"},
	Short:   "Remove an allocation queue and cancel its allocations",
	Args:    cobra.ExactArgs(1),

	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseQueueID(args[0])
		if err != nil {
			return err
		}
		force := lo.Must(cmd.Flags().GetBool("force"))

		spinner := newSpinner(cmd, fmt.Sprintf("Removing allocation queue %d", id))
		if _, err := client.RemoveQueue(cmd.Context(), &proto.RemoveQueueRequest{ID: id, Force: force}); err != nil {
			spinner.Fail()
			if status.Code(err) == codes.FailedPrecondition {
				return errors.New(status.Convert(err).Message())
			}
			return err
		}

		if spinner != nil {
			spinner.Success(fmt.Sprintf("Allocation queue %d successfully removed", id))
		} else {
			cmd.Println(color.HiGreenString("Allocation queue %d successfully removed", id))
		}
		return nil
	},
}

func init() {
	allocCmd.AddCommand(allocAddCmd, allocEventsCmd, allocInfoCmd, allocListCmd, allocRemoveCmd)

	allocRemoveCmd.Flags().Bool("force", false, "remove the queue even if some of its allocations are running")
}

// newSpinner returns nil when stderr is not a terminal. Spinner methods are nil-safe.
func newSpinner(cmd *cobra.Command, msg string) *ui.Spinner {
	if !ui.IsTerminal(cmd.ErrOrStderr()) {
		return nil
	}
	return ui.NewSpinner(cmd.ErrOrStderr(), msg)
}

func parseQueueID(value string) (uint64, error) {
	id, err := strconv.ParseUint(value, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid queue id '%s'", value)
	}
	return id, nil
}

func queuesTable(queues []*proto.Queue) *table {
	t := newTable("ID", "Backend", "Name", "Backlog", "Workers", "Time limit", "Active", "Args")
	for _, queue := range queues {
		descriptor := lo.FromPtr(queue.Descriptor)
		t.addRow(
			strconv.FormatUint(queue.ID, 10),
			descriptor.Backend,
			descriptor.Name,
			strconv.FormatUint(uint64(descriptor.Backlog), 10),
			strconv.FormatUint(uint64(descriptor.WorkersPerAlloc), 10),
			timelimit.Format(descriptor.TimeLimit.AsDuration()),
			strconv.FormatUint(uint64(queue.ActiveAllocations), 10),
			shellescape.QuoteCommand(descriptor.AdditionalArgs),
		)
	}
	return t
}

func allocationsTable(allocations []*proto.Allocation) *table {
	t := newTable("ID", "State", "Workers", "Queued", "Started", "Finished", "Exit code", "Work dir")
	t.styleColumn(1, stateColor)
	for _, allocation := range allocations {
		exitCode := ""
		if allocation.ExitCode != nil {
			exitCode = strconv.Itoa(int(*allocation.ExitCode))
		}
		t.addRow(
			allocation.JobID,
			allocation.State,
			strconv.FormatUint(uint64(allocation.Workers), 10),
			allocation.QueuedAt,
			allocation.StartedAt,
			allocation.FinishedAt,
			exitCode,
			allocation.WorkDir,
		)
	}
	return t
}

func eventsTable(events []*proto.Event) *table {
	t := newTable("Time", "Event", "Message")
	for _, event := range events {
		t.addRow(formatTimestamp(event.Time), event.Kind, strings.TrimRight(event.Message, "\n"))
	}
	return t
}

func stateColor(state string) string {
	switch state {
	case "Running":
		return color.HiYellowString(state)
	case "Finished":
		return color.HiGreenString(state)
	case "Failed":
		return color.HiRedString(state)
	default:
		return state
	}
}

func formatTimestamp(ts *timestamppb.Timestamp) string {
	if ts == nil {
		return ""
	}
	return ts.AsTime().Local().Format(time.DateTime)
}
