package autoalloc

import (
	"fmt"
	"log/slog"
	"time"
)

type Config struct {
	Logger *slog.Logger `json:"-"`
	// Interval between two reconciliation ticks
	Interval time.Duration `json:"interval"`
	// Time budget of every single backend call
	BackendTimeout time.Duration `json:"backend-timeout"`
	// Root of the per-allocation working directories
	WorkDir string `json:"work-dir"`
}

func Validate(config Config) error {
	if config.Interval <= 0 {
		return fmt.Errorf("interval must be greater than 0")
	}
	if config.BackendTimeout <= 0 {
		return fmt.Errorf("backend-timeout must be greater than 0")
	}
	if config.WorkDir == "" {
		return fmt.Errorf("work-dir is required")
	}
	return nil
}
