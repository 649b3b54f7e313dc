package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/gammadia/hqalloc/client/queuefile"
	"github.com/gammadia/hqalloc/proto"
	"github.com/gammadia/hqalloc/timelimit"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"google.golang.org/protobuf/types/known/durationpb"
)

var allocAddCmd = &cobra.Command{
	Use:   "add [pbs|slurm] [-- ADDITIONAL_ARGS...]",
	Short: "Create an allocation queue",
	Long: "Create an allocation queue. Arguments after -- are passed verbatim to the batch scheduler " +
		"on every submission. Values from the queue file (-f) are overridden by the command line flags.",
	Example: "  hqalloc alloc add pbs --time-limit 1h --backlog 2 -- -q express -A proj42\n" +
		"  hqalloc alloc add -f gpu.yaml -p account=proj42",
	ValidArgs: []string{"pbs", "slurm"},
	Args: func(cmd *cobra.Command, args []string) error {
		if positional := positionalArgs(cmd, args); len(positional) > 1 {
			return fmt.Errorf("accepts at most one backend, received %d arguments (did you forget -- before the additional arguments?)", len(positional))
		}
		return nil
	},

	RunE: func(cmd *cobra.Command, args []string) error {
		descriptor, err := queueDescriptor(cmd.Flags(), positionalArgs(cmd, args), additionalArgs(cmd, args))
		if err != nil {
			return err
		}

		response, err := client.AddQueue(cmd.Context(), &proto.AddQueueRequest{Queue: descriptor})
		if err != nil {
			return err
		}

		cmd.Println(color.HiGreenString("Allocation queue %d successfully created", response.ID))
		return nil
	},
}

func init() {
	addQueueFlags(allocAddCmd.Flags())
}

func addQueueFlags(flags *pflag.FlagSet) {
	flags.StringP("file", "f", "", "read the queue from a YAML file")
	flags.String("name", "", "name of the queue, shown in listings")
	flags.Uint32("backlog", 1, "maximum number of queued and running allocations")
	flags.Uint32("workers-per-alloc", 1, "number of workers (nodes) of each allocation")
	flags.String("time-limit", "", "walltime of each allocation (HH:MM:SS or a duration like 1h30m)")
	flags.StringArrayP("param", "p", nil, "queue file parameters to set (KEY=VALUE)")
}

func positionalArgs(cmd *cobra.Command, args []string) []string {
	if dash := cmd.ArgsLenAtDash(); dash >= 0 {
		return args[:dash]
	}
	return args
}

func additionalArgs(cmd *cobra.Command, args []string) []string {
	if dash := cmd.ArgsLenAtDash(); dash >= 0 {
		return args[dash:]
	}
	return nil
}

// queueDescriptor merges the queue file, the flags and the arguments. Flags explicitly set
// on the command line take precedence over the file, the file over the flag defaults.
func queueDescriptor(flags *pflag.FlagSet, positional []string, additional []string) (*proto.QueueDescriptor, error) {
	queue := &queuefile.Queuefile{}
	if file := lo.Must(flags.GetString("file")); file != "" {
		var err error
		if queue, err = queuefile.Read(file, queuefile.ReadOptions{
			Params: lo.SliceToMap(lo.Must(flags.GetStringArray("param")), func(item string) (key, value string) { key, value, _ = strings.Cut(item, "="); return }),
		}); err != nil {
			return nil, fmt.Errorf("failed to read queue file '%s': %w", file, err)
		}
	}

	if len(positional) > 0 {
		queue.Backend = positional[0]
	}
	if queue.Backend == "" {
		return nil, fmt.Errorf("a backend is required (pbs or slurm)")
	}

	if flags.Changed("name") {
		queue.Name = lo.Must(flags.GetString("name"))
	}
	if flags.Changed("backlog") || queue.Backlog == nil {
		queue.Backlog = lo.ToPtr(lo.Must(flags.GetUint32("backlog")))
	}
	if flags.Changed("workers-per-alloc") || queue.WorkersPerAlloc == nil {
		queue.WorkersPerAlloc = lo.ToPtr(lo.Must(flags.GetUint32("workers-per-alloc")))
	}
	if flags.Changed("time-limit") {
		queue.TimeLimit = lo.Must(flags.GetString("time-limit"))
	}
	if len(additional) > 0 {
		queue.AdditionalArgs = additional
	}

	if err := queue.Validate(); err != nil {
		return nil, err
	}
	if queue.TimeLimit == "" {
		return nil, fmt.Errorf("a time limit is required (--time-limit)")
	}
	timeLimit, err := timelimit.Parse(queue.TimeLimit)
	if err != nil {
		return nil, err
	}

	return &proto.QueueDescriptor{
		Backend:         queue.Backend,
		Name:            queue.Name,
		Backlog:         *queue.Backlog,
		WorkersPerAlloc: *queue.WorkersPerAlloc,
		TimeLimit:       durationpb.New(timeLimit),
		AdditionalArgs:  queue.AdditionalArgs,
	}, nil
}
