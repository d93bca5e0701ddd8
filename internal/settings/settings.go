// Package settings holds the user-facing knobs read on every open decision
// and the validated, hot-reloaded TOML store behind them.
package settings

import (
	"errors"
	"fmt"
	"math"
)

const (
	DefaultCooldownMinutes = 15
	DefaultMaxTabs         = 10

	MinCooldownMinutes = 1
	MaxCooldownMinutes = 60
	MinTabs            = 1
	MaxTabs            = 50
)

var ErrInvalid = errors.New("invalid settings")

// Threshold is one GMGN percentage-change filter. At most one of the two
// bounds may be set when the filter is enabled.
type Threshold struct {
	Enabled          bool     `json:"enabled" toml:"enabled" yaml:"enabled" mapstructure:"enabled"`
	ThresholdLess    *float64 `json:"thresholdLess" toml:"thresholdLess,omitempty" yaml:"thresholdLess,omitempty" mapstructure:"thresholdLess"`
	ThresholdGreater *float64 `json:"thresholdGreater" toml:"thresholdGreater,omitempty" yaml:"thresholdGreater,omitempty" mapstructure:"thresholdGreater"`
}

type FilterConfig struct {
	OneMin  Threshold `json:"oneMin" toml:"oneMin" yaml:"oneMin" mapstructure:"oneMin"`
	FiveMin Threshold `json:"fiveMin" toml:"fiveMin" yaml:"fiveMin" mapstructure:"fiveMin"`
	OneHour Threshold `json:"oneHour" toml:"oneHour" yaml:"oneHour" mapstructure:"oneHour"`
}

type Settings struct {
	CooldownMinutes  int          `json:"cooldownMinutes" toml:"cooldownMinutes" yaml:"cooldownMinutes"`
	MaxTabs          int          `json:"maxTabs" toml:"maxTabs" yaml:"maxTabs"`
	SoundEnabled     bool         `json:"soundEnabled" toml:"soundEnabled" yaml:"soundEnabled"`
	ExtensionEnabled bool         `json:"extensionEnabled" toml:"extensionEnabled" yaml:"extensionEnabled"`
	FilterConfig     FilterConfig `json:"filterConfig" toml:"filterConfig" yaml:"filterConfig"`
}

func Defaults() Settings {
	return Settings{
		CooldownMinutes:  DefaultCooldownMinutes,
		MaxTabs:          DefaultMaxTabs,
		SoundEnabled:     true,
		ExtensionEnabled: true,
	}
}

// CooldownMs is the cooldown window in milliseconds.
func (s Settings) CooldownMs() int64 {
	return int64(s.CooldownMinutes) * 60 * 1000
}

func (s Settings) Validate() error {
	if s.CooldownMinutes < MinCooldownMinutes || s.CooldownMinutes > MaxCooldownMinutes {
		return fmt.Errorf("%w: cooldownMinutes must be between %d and %d", ErrInvalid, MinCooldownMinutes, MaxCooldownMinutes)
	}
	if s.MaxTabs < MinTabs || s.MaxTabs > MaxTabs {
		return fmt.Errorf("%w: maxTabs must be between %d and %d", ErrInvalid, MinTabs, MaxTabs)
	}
	return s.FilterConfig.Validate()
}

func (f FilterConfig) Validate() error {
	for _, m := range f.metrics() {
		if err := m.t.validate(m.name); err != nil {
			return err
		}
	}
	return nil
}

func (t Threshold) validate(name string) error {
	if (t.ThresholdLess != nil && math.IsNaN(*t.ThresholdLess)) ||
		(t.ThresholdGreater != nil && math.IsNaN(*t.ThresholdGreater)) {
		return fmt.Errorf("%w: %s threshold is not a number", ErrInvalid, name)
	}
	if !t.Enabled {
		return nil
	}
	if t.ThresholdLess == nil && t.ThresholdGreater == nil {
		return fmt.Errorf("%w: %s is enabled without a threshold", ErrInvalid, name)
	}
	if t.ThresholdLess != nil && t.ThresholdGreater != nil {
		return fmt.Errorf("%w: %s may set only one of thresholdLess and thresholdGreater", ErrInvalid, name)
	}
	return nil
}

type namedThreshold struct {
	name string
	t    Threshold
}

func (f FilterConfig) metrics() []namedThreshold {
	return []namedThreshold{
		{"oneMin", f.OneMin},
		{"fiveMin", f.FiveMin},
		{"oneHour", f.OneHour},
	}
}

// Active reports whether any metric filter is enabled.
func (f FilterConfig) Active() bool {
	return f.OneMin.Enabled || f.FiveMin.Enabled || f.OneHour.Enabled
}

// Changes carries a row's percentage changes; nil means the row did not
// expose the metric.
type Changes struct {
	OneMin  *float64
	FiveMin *float64
	OneHour *float64
}

// Match applies every enabled filter. A metric the row does not expose
// passes.
func (f FilterConfig) Match(c Changes) bool {
	return f.OneMin.match(c.OneMin) && f.FiveMin.match(c.FiveMin) && f.OneHour.match(c.OneHour)
}

func (t Threshold) match(v *float64) bool {
	if !t.Enabled || v == nil {
		return true
	}
	if t.ThresholdLess != nil && !(*v < *t.ThresholdLess) {
		return false
	}
	if t.ThresholdGreater != nil && !(*v > *t.ThresholdGreater) {
		return false
	}
	return true
}

func (s Settings) Equal(o Settings) bool {
	return s.CooldownMinutes == o.CooldownMinutes &&
		s.MaxTabs == o.MaxTabs &&
		s.SoundEnabled == o.SoundEnabled &&
		s.ExtensionEnabled == o.ExtensionEnabled &&
		s.FilterConfig.OneMin.equal(o.FilterConfig.OneMin) &&
		s.FilterConfig.FiveMin.equal(o.FilterConfig.FiveMin) &&
		s.FilterConfig.OneHour.equal(o.FilterConfig.OneHour)
}

func (t Threshold) equal(o Threshold) bool {
	return t.Enabled == o.Enabled && floatPtrEqual(t.ThresholdLess, o.ThresholdLess) &&
		floatPtrEqual(t.ThresholdGreater, o.ThresholdGreater)
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Float returns a pointer to v, for building thresholds.
func Float(v float64) *float64 { return &v }
