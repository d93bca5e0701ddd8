package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/autofilter/autofilter/internal/config"
)

// cliOptions are the connection flags shared by every client command.
type cliOptions struct {
	cfg   *config.RuntimeConfig
	url   string
	token string
}

func (o *cliOptions) client() *apiClient {
	return newAPIClient(o.url, o.token)
}

func newRootCmd() *cobra.Command {
	cfg := config.Load()
	opts := &cliOptions{cfg: cfg}

	root := &cobra.Command{
		Use:           "autofilter",
		Short:         "Open token tabs from DexScreener and GMGN listings, once per cooldown",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			setupLogging(cfg.LogLevel)
		},
	}

	defaultURL := cfg.BaseURL()
	if v := os.Getenv("AUTOFILTER_URL"); v != "" {
		defaultURL = strings.TrimRight(v, "/")
	}
	root.PersistentFlags().StringVar(&opts.url, "url", defaultURL, "daemon address (AUTOFILTER_URL)")
	root.PersistentFlags().StringVar(&opts.token, "token", cfg.Token, "bearer token (AUTOFILTER_TOKEN)")
	root.PersistentFlags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")

	root.AddCommand(
		newServeCmd(cfg),
		newStatusCmd(opts),
		newWatchCmd(opts),
		newOpenCmd(opts),
		newCooldownCmd(opts),
		newSettingsCmd(opts),
		newFavoritesCmd(opts),
		newFilterURLCmd(),
		newConfigCmd(cfg),
		newVersionCmd(),
	)
	return root
}

func setupLogging(level string) {
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: config.ParseLevel(level)})
	slog.SetDefault(slog.New(h))
}
