package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	MatcherThresholdChanged bool
	NewThreshold            float64

	// CommandsChanged is informational; commands are registered at start.
	CommandsChanged bool
	CommandChanges  []CommandDiff
}

// CommandDiff describes what changed for a single command.
type CommandDiff struct {
	Name           string
	TriggerChanged bool
	ExecChanged    bool
	Added          bool
	Removed        bool
}

// RequiresRestart reports whether d holds changes that only take effect on
// restart.
func (d ConfigDiff) RequiresRestart() bool { return d.CommandsChanged }

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Matcher.Threshold != new.Matcher.Threshold {
		d.MatcherThresholdChanged = true
		d.NewThreshold = new.Matcher.Threshold
	}

	oldCmds := make(map[string]*CommandConfig, len(old.Commands))
	for i := range old.Commands {
		oldCmds[old.Commands[i].Name] = &old.Commands[i]
	}
	newCmds := make(map[string]*CommandConfig, len(new.Commands))
	for i := range new.Commands {
		newCmds[new.Commands[i].Name] = &new.Commands[i]
	}

	for _, c := range old.Commands {
		nc, exists := newCmds[c.Name]
		if !exists {
			d.CommandChanges = append(d.CommandChanges, CommandDiff{Name: c.Name, Removed: true})
			continue
		}
		cd := CommandDiff{
			Name:           c.Name,
			TriggerChanged: c.Trigger != nc.Trigger,
			ExecChanged:    !slices.Equal(c.Exec, nc.Exec) || c.Wait != nc.Wait,
		}
		if cd.TriggerChanged || cd.ExecChanged {
			d.CommandChanges = append(d.CommandChanges, cd)
		}
	}
	for _, c := range new.Commands {
		if _, exists := oldCmds[c.Name]; !exists {
			d.CommandChanges = append(d.CommandChanges, CommandDiff{Name: c.Name, Added: true})
		}
	}
	d.CommandsChanged = len(d.CommandChanges) > 0

	return d
}
