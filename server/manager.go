package main

import (
	"encoding/json"
	"fmt"

	"github.com/gammadia/hqalloc/autoalloc"
	"github.com/gammadia/hqalloc/backend/pbs"
	"github.com/gammadia/hqalloc/backend/slurm"
	"github.com/gammadia/hqalloc/server/flags"
	"github.com/gammadia/hqalloc/server/log"
	"github.com/samber/lo"
	"github.com/spf13/viper"
)

var manager *autoalloc.Manager

// pendingTasks receives the workload pushed through SetWorkload.
// It is nil when the server assumes there is always pending work.
var pendingTasks *autoalloc.PendingTasksGauge

func createManager() error {
	config := autoalloc.Config{
		Logger:         log.Component("autoalloc"),
		Interval:       viper.GetDuration(flags.AutoallocInterval),
		BackendTimeout: viper.GetDuration(flags.BackendTimeout),
		WorkDir:        viper.GetString(flags.WorkDir),
	}
	if err := autoalloc.Validate(config); err != nil {
		return fmt.Errorf("invalid autoalloc config: %w", err)
	}

	var workload autoalloc.Workload = autoalloc.AlwaysPending{}
	if !viper.GetBool(flags.AssumePendingWork) {
		pendingTasks = &autoalloc.PendingTasksGauge{}
		workload = pendingTasks
	}

	var err error
	manager, err = autoalloc.New(createBackends(), workload, config)
	if err != nil {
		return err
	}

	serverStatusMutex.Lock()
	serverStatus.Name = manager.Name().String()
	serverStatus.Backends = manager.Backends()
	serverStatusMutex.Unlock()

	return nil
}

func createBackends() map[string]autoalloc.Backend {
	logger := log.Component("backend")
	workerCommand := viper.GetStringSlice(flags.WorkerCommand)
	rate, burst := viper.GetFloat64(flags.BackendRate), viper.GetInt(flags.BackendBurst)

	pbsConfig := pbs.Config{
		Logger:        logger,
		WorkerCommand: workerCommand,
		CommandRate:   rate,
		CommandBurst:  burst,
	}
	logger.Debug("Backend config", "backend", pbs.Name, "config", string(lo.Must(json.Marshal(pbsConfig))))

	slurmConfig := slurm.Config{
		Logger:        logger,
		WorkerCommand: workerCommand,
		CommandRate:   rate,
		CommandBurst:  burst,
	}
	logger.Debug("Backend config", "backend", slurm.Name, "config", string(lo.Must(json.Marshal(slurmConfig))))

	return map[string]autoalloc.Backend{
		pbs.Name:   pbs.NewLocal(pbsConfig),
		slurm.Name: slurm.NewLocal(slurmConfig),
	}
}
