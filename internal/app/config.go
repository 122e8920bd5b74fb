package app

import (
	"github.com/emaamul/core/internal/config"
	"github.com/emaamul/core/internal/db"
	"github.com/emaamul/core/internal/sync/connectivity"
	"github.com/emaamul/core/internal/sync/scheduler"
)

// DepsFromConfig builds session dependencies from cfg. Without a probe URL
// the device is assumed online.
func DepsFromConfig(cfg *config.Config, remote Remote) Deps {
	var probe connectivity.Probe
	if cfg.Sync.ProbeURL != "" {
		probe = connectivity.NewHTTPProbe(cfg.Sync.ProbeURL, cfg.Sync.ProbeTimeout)
	} else {
		probe = connectivity.NewSwitch(connectivity.State{IsConnected: true, IsInternetReachable: true})
	}
	engines := db.ParseEngines(cfg.Engines)
	if len(engines) == 0 {
		engines = db.DefaultEngines
	}
	return Deps{
		DataDir:     cfg.DataDir,
		Engines:     engines,
		Remote:      remote,
		Probe:       probe,
		MaxAttempts: cfg.Sync.MaxAttempts,
	}
}

// SchedulerConfig maps cfg onto the scheduler. The probe is watched only
// when a watch interval is configured.
func SchedulerConfig(cfg *config.Config, deps Deps) *scheduler.Config {
	sc := &scheduler.Config{
		Interval:     cfg.Sync.Interval,
		DrainTimeout: cfg.Sync.DrainTimeout,
	}
	if cfg.Sync.WatchInterval > 0 {
		sc.Probe = deps.Probe
		sc.WatchInterval = cfg.Sync.WatchInterval
	}
	return sc
}
