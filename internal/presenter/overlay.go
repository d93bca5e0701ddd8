package presenter

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/autofilter/autofilter/internal/assets"
	"github.com/autofilter/autofilter/internal/coordinator"
)

type Badge struct {
	TokenID string `json:"tokenId"`
	Label   string `json:"label"`
	Title   string `json:"title"`
	Band    Band   `json:"band"`
}

// Badges builds the overlay entries for tokens of one chain. An empty chain
// keeps every token.
func Badges(tokens []coordinator.OpenedToken, chainName string, now time.Time) []Badge {
	var out []Badge
	for _, c := range ActiveCooldowns(tokens, now) {
		if chainName != "" && c.Chain != chainName {
			continue
		}
		out = append(out, Badge{
			TokenID: c.TokenID,
			Label:   c.Clock(),
			Title: fmt.Sprintf("Opened %s ago - %d/%d min cooldown",
				FormatClock(int64(c.Elapsed/time.Second)), int(c.Remaining/time.Minute), int(c.Total/time.Minute)),
			Band: c.Band,
		})
	}
	return out
}

// OverlayScript returns a script that installs the overlay helper and
// renders the badges for tokens. Evaluating it with no active cooldowns
// clears every badge.
func OverlayScript(tokens []coordinator.OpenedToken, chainName string, now time.Time) (string, error) {
	entries := Badges(tokens, chainName, now)
	if entries == nil {
		entries = []Badge{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("encode overlay: %w", err)
	}
	return assets.OverlayScript + "\nwindow.__autofilterOverlay(" + string(data) + ");", nil
}
