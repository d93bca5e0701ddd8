package main

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/autofilter/autofilter/internal/favorites"
)

func newFavoritesCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "favorites",
		Aliases: []string{"fav"},
		Short:   "Manage saved DexScreener filters",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List saved filters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var res struct {
				Favorites []favorites.Record `json:"favorites"`
				UserID    string             `json:"userId"`
			}
			if err := opts.client().get(cmd.Context(), "/favorites", &res); err != nil {
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), renderFavorites(res.UserID, res.Favorites))
			return err
		},
	}

	add := &cobra.Command{
		Use:   "add <filter-url>",
		Short: "Save a DexScreener filter URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var rec favorites.Record
			body := map[string]string{"filter": args[0]}
			if err := opts.client().do(cmd.Context(), http.MethodPost, "/favorites", body, &rec); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "saved %s\n", rec.ID)
			return err
		},
	}

	rm := &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete a saved filter",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.client().do(cmd.Context(), http.MethodDelete, "/favorites/"+url.PathEscape(args[0]), nil, nil); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return err
		},
	}

	open := &cobra.Command{
		Use:   "open <id>",
		Short: "Open a saved filter in a new tab",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var res struct {
				Filter string `json:"filter"`
				TabID  string `json:"tabId"`
			}
			if err := opts.client().do(cmd.Context(), http.MethodPost, "/favorites/"+url.PathEscape(args[0])+"/open", nil, &res); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "opened %s (tab %s)\n", res.Filter, res.TabID)
			return err
		},
	}

	cmd.AddCommand(list, add, rm, open)
	return cmd
}
