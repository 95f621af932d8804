package config

import "reflect"

// ConfigDiff describes what changed between two configs.
// Only the log level can be applied to a running interview; every other
// section is reported so the operator knows a restart is needed.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RestartRequired lists the top-level sections that differ and only take
	// effect on the next run (e.g. "stages", "audio").
	RestartRequired []string
}

// Changed reports whether anything differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	oldServer, newServer := old.Server, new.Server
	oldServer.LogLevel, newServer.LogLevel = "", ""

	sections := []struct {
		name     string
		old, new any
	}{
		{"server", oldServer, newServer},
		{"session", old.Session, new.Session},
		{"audio", old.Audio, new.Audio},
		{"segmenter", old.Segmenter, new.Segmenter},
		{"stages", old.Stages, new.Stages},
		{"circuit_breaker", old.CircuitBreaker, new.CircuitBreaker},
		{"interview", old.Interview, new.Interview},
		{"storage", old.Storage, new.Storage},
	}
	for _, s := range sections {
		if !reflect.DeepEqual(s.old, s.new) {
			d.RestartRequired = append(d.RestartRequired, s.name)
		}
	}
	return d
}
