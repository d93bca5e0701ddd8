package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/autofilter/autofilter/internal/filterurl"
)

func newFilterURLCmd() *cobra.Command {
	var (
		template  string
		baseURL   string
		values    []string
		templates bool
	)
	cmd := &cobra.Command{
		Use:   "filter-url",
		Short: "Build a DexScreener filter URL",
		Example: `  autofilter filter-url --template bigMovers24h
  autofilter filter-url --set minLiq=25000 --set maxAge=12 --base https://dexscreener.com/solana`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if templates {
				_, err := fmt.Fprintln(out, strings.Join(filterurl.TemplateNames(), "\n"))
				return err
			}

			var f filterurl.Filters
			if template != "" {
				t, ok := filterurl.Template(template)
				if !ok {
					return fmt.Errorf("unknown template %q (have %s)", template, strings.Join(filterurl.TemplateNames(), ", "))
				}
				f = t
			}
			extra := filterurl.Filters{}
			for _, kv := range values {
				k, v, ok := strings.Cut(kv, "=")
				if !ok || strings.TrimSpace(k) == "" {
					return fmt.Errorf("expected name=value, got %q", kv)
				}
				extra[strings.TrimSpace(k)] = strings.TrimSpace(v)
			}
			f = f.Merge(extra)

			_, err := fmt.Fprintln(out, filterurl.Build(f, baseURL))
			return err
		},
	}
	cmd.Flags().StringVarP(&template, "template", "t", "", "start from a named template")
	cmd.Flags().StringVar(&baseURL, "base", filterurl.DefaultBaseURL, "listing page to filter")
	cmd.Flags().StringArrayVar(&values, "set", nil, "filter value as name=value (repeatable)")
	cmd.Flags().BoolVar(&templates, "templates", false, "list template names")
	return cmd
}
