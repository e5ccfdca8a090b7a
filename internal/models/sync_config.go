package models

import (
	"strings"
	"time"
)

// Direction is the configured sync direction. The engine stores it for
// collaborators; reconciliation itself always works both ways.
type Direction string

const (
	DirectionImport        Direction = "import"
	DirectionExport        Direction = "export"
	DirectionBidirectional Direction = "bidirectional"
)

// ParseDirection accepts any casing of a known direction.
func ParseDirection(raw string) (Direction, error) {
	d := Direction(strings.ToLower(strings.TrimSpace(raw)))
	switch d {
	case DirectionImport, DirectionExport, DirectionBidirectional:
		return d, nil
	}
	return "", NewOperationError(CodeConfigurationError, nil, "unknown sync direction %q", raw)
}

// Frequency controls how often the scheduler drains the queue.
type Frequency string

const (
	FrequencyManual Frequency = "manual"
	FrequencyHourly Frequency = "hourly"
	FrequencyDaily  Frequency = "daily"
	FrequencyWeekly Frequency = "weekly"
)

// ParseFrequency accepts any casing of a known frequency.
func ParseFrequency(raw string) (Frequency, error) {
	f := Frequency(strings.ToLower(strings.TrimSpace(raw)))
	switch f {
	case FrequencyManual, FrequencyHourly, FrequencyDaily, FrequencyWeekly:
		return f, nil
	}
	return "", NewOperationError(CodeConfigurationError, nil, "unknown sync frequency %q", raw)
}

// Interval maps a frequency to its timer period. Manual has none.
func (f Frequency) Interval() (time.Duration, bool) {
	switch f {
	case FrequencyHourly:
		return time.Hour, true
	case FrequencyDaily:
		return 24 * time.Hour, true
	case FrequencyWeekly:
		return 7 * 24 * time.Hour, true
	}
	return 0, false
}

// SyncConfig is the engine configuration consumed by Configure.
type SyncConfig struct {
	Enabled   bool      `json:"enabled" yaml:"enabled"`
	Direction Direction `json:"direction" yaml:"direction"`
	Frequency Frequency `json:"frequency" yaml:"frequency"`
	AutoRun   bool      `json:"auto_run" yaml:"auto_run"`
}

// DefaultSyncConfig is the configuration a fresh engine starts with.
func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		Enabled:   false,
		Direction: DirectionBidirectional,
		Frequency: FrequencyManual,
		AutoRun:   false,
	}
}

// Scheduled reports whether this configuration requires a live timer.
func (c SyncConfig) Scheduled() bool {
	_, ok := c.Frequency.Interval()
	return c.Enabled && c.AutoRun && ok
}

// SyncConfigPatch is a partial SyncConfig; nil fields are left unchanged.
// Direction and Frequency are raw strings so that unknown values surface as
// ConfigurationError instead of being silently accepted.
type SyncConfigPatch struct {
	Enabled   *bool   `json:"enabled,omitempty"`
	Direction *string `json:"direction,omitempty"`
	Frequency *string `json:"frequency,omitempty"`
	AutoRun   *bool   `json:"auto_run,omitempty"`
}

// Apply merges the patch over base. On error base is returned untouched.
func (p SyncConfigPatch) Apply(base SyncConfig) (SyncConfig, error) {
	merged := base
	if p.Enabled != nil {
		merged.Enabled = *p.Enabled
	}
	if p.AutoRun != nil {
		merged.AutoRun = *p.AutoRun
	}
	if p.Direction != nil {
		d, err := ParseDirection(*p.Direction)
		if err != nil {
			return base, err
		}
		merged.Direction = d
	}
	if p.Frequency != nil {
		f, err := ParseFrequency(*p.Frequency)
		if err != nil {
			return base, err
		}
		merged.Frequency = f
	}
	return merged, nil
}

// PatchFrom builds a patch that sets every field of cfg.
func PatchFrom(cfg SyncConfig) SyncConfigPatch {
	enabled, autoRun := cfg.Enabled, cfg.AutoRun
	direction, frequency := string(cfg.Direction), string(cfg.Frequency)
	return SyncConfigPatch{
		Enabled:   &enabled,
		Direction: &direction,
		Frequency: &frequency,
		AutoRun:   &autoRun,
	}
}
