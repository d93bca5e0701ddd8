package coordinator

import (
	"sort"

	"github.com/autofilter/autofilter/internal/settings"
)

type Stats struct {
	OpenTabCount int               `json:"tabCount"`
	InFlight     int               `json:"inFlight"`
	Settings     settings.Settings `json:"settings"`
}

type OpenedToken struct {
	TokenID    string `json:"tokenId"`
	Chain      string `json:"chain"`
	Timestamp  int64  `json:"timestamp"`
	CooldownMs int64  `json:"cooldownMs"`
}

// Stats counts live tab handles, not the number of tokens in cooldown.
func (c *Coordinator) Stats() Stats {
	st := c.settings.Current()
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{OpenTabCount: len(c.tabs), InFlight: c.creating, Settings: st}
}

// OpenedTokens lists every cooldown entry, oldest first.
func (c *Coordinator) OpenedTokens() []OpenedToken {
	cooldown := c.settings.Current().CooldownMs()
	c.mu.Lock()
	out := make([]OpenedToken, 0, len(c.cooldowns))
	for k, ts := range c.cooldowns {
		out = append(out, OpenedToken{TokenID: k.TokenID, Chain: k.Chain.String(), Timestamp: ts, CooldownMs: cooldown})
	}
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp < out[j].Timestamp
		}
		return out[i].TokenID < out[j].TokenID
	})
	return out
}

// CheckCooldown reports whether tokenID is inside its cooldown window. A zero
// chain matches the token on any chain.
func (c *Coordinator) CheckCooldown(k Key) bool {
	cooldown := c.settings.Current().CooldownMs()
	now := c.nowMs()
	c.mu.Lock()
	defer c.mu.Unlock()

	if !k.Chain.IsZero() {
		last, ok := c.cooldowns[k]
		return ok && now-last < cooldown
	}
	for key, last := range c.cooldowns {
		if key.TokenID == k.TokenID && now-last < cooldown {
			return true
		}
	}
	return false
}

func (c *Coordinator) OpenTabCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tabs)
}

// RemainingSlots is how many more tabs fit in the budget right now.
func (c *Coordinator) RemainingSlots() int {
	max := c.settings.Current().MaxTabs
	c.mu.Lock()
	defer c.mu.Unlock()
	if n := max - len(c.tabs) - c.creating; n > 0 {
		return n
	}
	return 0
}

// TrackedTabs returns the ids of tabs opened for tokens.
func (c *Coordinator) TrackedTabs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.tabs))
	for id := range c.tabs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// KeyForURL resolves an open token tab URL back to its token.
func (c *Coordinator) KeyForURL(url string) (Key, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k, ok := c.urlIndex[url]
	return k, ok
}
