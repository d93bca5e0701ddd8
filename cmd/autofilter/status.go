package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/autofilter/autofilter/internal/coordinator"
	"github.com/autofilter/autofilter/internal/presenter"
)

type cooldownRow struct {
	TokenID   string         `json:"tokenId" yaml:"tokenId"`
	Chain     string         `json:"chain" yaml:"chain"`
	Remaining string         `json:"remaining" yaml:"remaining"`
	Seconds   int64          `json:"remainingSeconds" yaml:"remainingSeconds"`
	Band      presenter.Band `json:"band" yaml:"band"`
}

type statusReport struct {
	TabCount        int           `json:"tabCount" yaml:"tabCount"`
	InFlight        int           `json:"inFlight" yaml:"inFlight"`
	MaxTabs         int           `json:"maxTabs" yaml:"maxTabs"`
	CooldownMinutes int           `json:"cooldownMinutes" yaml:"cooldownMinutes"`
	Enabled         bool          `json:"enabled" yaml:"enabled"`
	SoundEnabled    bool          `json:"soundEnabled" yaml:"soundEnabled"`
	Cooldowns       []cooldownRow `json:"cooldowns" yaml:"cooldowns"`
}

func newStatusCmd(opts *cliOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show open token tabs and active cooldowns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			report, err := fetchStatus(cmd.Context(), opts.client(), time.Now())
			if err != nil {
				return err
			}
			return writeStatus(cmd.OutOrStdout(), report, output)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "table, json or yaml")
	return cmd
}

func fetchStatus(ctx context.Context, c *apiClient, now time.Time) (statusReport, error) {
	var stats coordinator.Stats
	if err := c.get(ctx, "/stats", &stats); err != nil {
		return statusReport{}, fmt.Errorf("load stats: %w", err)
	}
	var opened struct {
		Tokens []coordinator.OpenedToken `json:"tokens"`
	}
	if err := c.get(ctx, "/tokens", &opened); err != nil {
		return statusReport{}, fmt.Errorf("load tokens: %w", err)
	}
	return buildReport(stats, opened.Tokens, now), nil
}

func buildReport(stats coordinator.Stats, tokens []coordinator.OpenedToken, now time.Time) statusReport {
	r := statusReport{
		TabCount:        stats.OpenTabCount,
		InFlight:        stats.InFlight,
		MaxTabs:         stats.Settings.MaxTabs,
		CooldownMinutes: stats.Settings.CooldownMinutes,
		Enabled:         stats.Settings.ExtensionEnabled,
		SoundEnabled:    stats.Settings.SoundEnabled,
		Cooldowns:       []cooldownRow{},
	}
	for _, cd := range presenter.ActiveCooldowns(tokens, now) {
		r.Cooldowns = append(r.Cooldowns, cooldownRow{
			TokenID:   cd.TokenID,
			Chain:     cd.Chain,
			Remaining: cd.Compact(),
			Seconds:   int64(cd.Remaining / time.Second),
			Band:      cd.Band,
		})
	}
	return r
}

func writeStatus(w io.Writer, r statusReport, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	case "table", "":
		_, err := fmt.Fprintln(w, renderStatus(r))
		return err
	}
	return fmt.Errorf("unknown output format %q", format)
}
