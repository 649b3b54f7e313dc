package flags

import (
	"strings"
	"time"

	"github.com/gammadia/hqalloc/server/config"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	LogFormat     = "log-format"
	LogLevel      = "log-level"
	LogSource     = "log-source"
	Listen        = "listen"
	MetricsListen = "metrics-listen"

	AutoallocInterval = "autoalloc-interval"
	BackendTimeout    = "backend-timeout"
	BackendRate       = "backend-rate"
	BackendBurst      = "backend-burst"
	WorkDir           = "work-dir"
	WorkerCommand     = "worker-command"
	AssumePendingWork = "assume-pending-work"
)

// NewFlagSet declares every server flag with its default value.
func NewFlagSet(name string) *flag.FlagSet {
	flags := flag.NewFlagSet(name, flag.ContinueOnError)

	// Server
	flags.String(LogFormat, "json", "log format (json, text)")
	flags.String(LogLevel, "INFO", "minimum log level")
	flags.Bool(LogSource, false, "add source code location to logs")
	flags.String(Listen, ":"+config.DefaultPort, "address of the management API")
	flags.String(MetricsListen, "", "address of the prometheus metrics endpoint (disabled when empty)")

	// Autoalloc
	flags.Duration(AutoallocInterval, time.Second, "interval between two reconciliations of the allocation queues")
	flags.Duration(BackendTimeout, 30*time.Second, "time budget of a single batch scheduler command")
	flags.Float64(BackendRate, 10, "maximum number of batch scheduler commands started per second")
	flags.Int(BackendBurst, 5, "maximum number of batch scheduler commands started at once")
	flags.String(WorkDir, "autoalloc", "directory holding submission scripts and allocation outputs")
	flags.StringSlice(WorkerCommand, []string{"hq", "worker", "start"}, "command started on every worker of an allocation")
	flags.Bool(AssumePendingWork, true, "submit allocations without waiting for pending tasks to be reported")

	return flags
}

// Bind parses the arguments and binds the flags into viper.
// Every flag can also be set from an AUTOALLOC_* environment variable.
func Bind(flags *flag.FlagSet, args []string) error {
	if err := flags.Parse(args); err != nil {
		return err
	}

	viper.SetEnvPrefix("autoalloc")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	return viper.BindPFlags(flags)
}
