package pbs

import "log/slog"

type Config struct {
	// Logger to use
	Logger *slog.Logger `json:"-"`
	// Command started on every worker of an allocation
	WorkerCommand []string `json:"worker-command"`
	// Maximum number of PBS commands started per second, unlimited when not positive
	CommandRate float64 `json:"command-rate"`
	// Maximum number of PBS commands started at once
	CommandBurst int `json:"command-burst"`
}
