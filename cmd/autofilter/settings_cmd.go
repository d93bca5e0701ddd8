package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/autofilter/autofilter/internal/settings"
)

func newSettingsCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the daemon settings",
	}

	var output string
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the current settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var st settings.Settings
			if err := opts.client().get(cmd.Context(), "/settings", &st); err != nil {
				return err
			}
			return writeSettings(cmd.OutOrStdout(), st, output)
		},
	}
	show.Flags().StringVarP(&output, "output", "o", "yaml", "yaml or json")

	set := &cobra.Command{
		Use:   "set key=value...",
		Short: "Change settings, e.g. cooldownMinutes=5 filterConfig.fiveMin.thresholdGreater=10",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch, err := parseAssignments(args)
			if err != nil {
				return err
			}
			var st settings.Settings
			if err := opts.client().do(cmd.Context(), http.MethodPut, "/settings", patch, &st); err != nil {
				return err
			}
			return writeSettings(cmd.OutOrStdout(), st, "yaml")
		},
	}

	reset := &cobra.Command{
		Use:   "reset",
		Short: "Restore the default settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var st settings.Settings
			if err := opts.client().do(cmd.Context(), http.MethodPost, "/settings/reset", nil, &st); err != nil {
				return err
			}
			return writeSettings(cmd.OutOrStdout(), st, "yaml")
		},
	}

	cmd.AddCommand(show, set, reset)
	return cmd
}

func writeSettings(w io.Writer, st settings.Settings, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	case "yaml", "":
		data, err := yaml.Marshal(st)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	}
	return fmt.Errorf("unknown output format %q", format)
}

// parseAssignments turns dotted key=value pairs into a nested JSON patch.
// Values that parse as booleans or numbers are sent as such; "null" clears
// a threshold.
func parseAssignments(args []string) (map[string]any, error) {
	patch := map[string]any{}
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", arg)
		}
		parts := strings.Split(key, ".")
		node := patch
		for _, p := range parts[:len(parts)-1] {
			child, ok := node[p].(map[string]any)
			if !ok {
				child = map[string]any{}
				node[p] = child
			}
			node = child
		}
		node[parts[len(parts)-1]] = parseValue(strings.TrimSpace(raw))
	}
	return patch, nil
}

func parseValue(raw string) any {
	switch raw {
	case "null":
		return nil
	case "true", "on":
		return true
	case "false", "off":
		return false
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}
