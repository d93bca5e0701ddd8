package main

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/autofilter/autofilter/internal/coordinator"
)

func newOpenCmd(opts *cliOptions) *cobra.Command {
	var chainName string
	cmd := &cobra.Command{
		Use:   "open <tokenId>",
		Short: "Ask the daemon to open a token tab",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var res coordinator.OpenResult
			body := map[string]string{"tokenId": args[0], "chain": chainName}
			if err := opts.client().do(cmd.Context(), http.MethodPost, "/tokens/open", body, &res); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !res.Opened {
				_, err := fmt.Fprintf(out, "not opened: %s\n", res.Reason)
				return err
			}
			_, err := fmt.Fprintf(out, "opened %s (tab %s), cooldown %dm\n", res.TokenID, res.TabID, res.CooldownMs/60000)
			return err
		},
	}
	cmd.Flags().StringVar(&chainName, "chain", "solana", "chain, optionally site-qualified (gmgn:sol)")
	return cmd
}

func newCooldownCmd(opts *cliOptions) *cobra.Command {
	var chainName string
	cmd := &cobra.Command{
		Use:   "cooldown <tokenId>",
		Short: "Check whether a token is cooling down",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{"tokenId": {args[0]}}
			if chainName != "" {
				q.Set("chain", chainName)
			}
			var res struct {
				IsInCooldown bool   `json:"isInCooldown"`
				TokenID      string `json:"tokenId"`
			}
			if err := opts.client().get(cmd.Context(), "/tokens/cooldown?"+q.Encode(), &res); err != nil {
				return err
			}
			state := "not in cooldown"
			if res.IsInCooldown {
				state = "in cooldown"
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", res.TokenID, state)
			return err
		},
	}
	cmd.Flags().StringVar(&chainName, "chain", "", "restrict the check to one chain")
	return cmd
}
