package coordinator

import (
	"log/slog"
	"time"

	"github.com/autofilter/autofilter/internal/events"
	"github.com/autofilter/autofilter/internal/observability"
)

// Sweep drops cooldown entries older than the cooldown window together with
// their URL index entries. Tab handles stay until the browser reports the
// tab gone. It returns the number of entries removed.
func (c *Coordinator) Sweep() int {
	cooldown := c.settings.Current().CooldownMs()
	now := c.nowMs()
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.sweepLocked(now, cooldown)
	c.updateGaugesLocked()
	return n
}

func (c *Coordinator) sweepLocked(now, cooldown int64) int {
	removed := 0
	for key, last := range c.cooldowns {
		if now-last <= cooldown {
			continue
		}
		delete(c.cooldowns, key)
		for url, k := range c.urlIndex {
			if k == key {
				delete(c.urlIndex, url)
			}
		}
		removed++
		slog.Debug("expired token cooldown", "token", key)
	}
	for url, o := range c.orphans {
		if now-o.at > cooldown {
			delete(c.orphans, url)
		}
	}
	return removed
}

// HandleTabRemoved forgets a closed tab. The token's cooldown entry is kept
// so a closed tab cannot be reopened before its window ends.
func (c *Coordinator) HandleTabRemoved(tabID string) {
	c.mu.Lock()
	h, ok := c.tabs[tabID]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(c.tabs, tabID)
	if k, ok := c.urlIndex[h.url]; ok && k == h.key {
		delete(c.urlIndex, h.url)
	}
	c.updateGaugesLocked()
	c.mu.Unlock()

	observability.RecordTabClosed()
	slog.Info("token tab closed", "token", h.key, "tab", tabID)
	c.publish(events.Event{
		Type:    events.TokenTabClosed,
		TokenID: h.key.TokenID,
		Chain:   h.key.Chain.String(),
		TabID:   tabID,
		URL:     h.url,
	})
}

// LiveTab is a page target from a browser listing.
type LiveTab struct {
	ID  string
	URL string
}

type ReconcileResult struct {
	Dropped int
	Adopted int
}

// Reconcile aligns the tab handles with a browser listing taken at listedAt.
// Handles missing from live are dropped, which covers tabs that vanished
// without a removal event; handles recorded at or after listedAt are kept
// because the listing could not have seen them. Untracked live tabs showing
// the URL of a failed create are adopted so they count toward the budget.
func (c *Coordinator) Reconcile(listedAt time.Time, live []LiveTab) ReconcileResult {
	cutoff := listedAt.UnixMilli()
	alive := make(map[string]struct{}, len(live))
	for _, t := range live {
		alive[t.ID] = struct{}{}
	}

	var res ReconcileResult
	var stale []string
	var adopted []events.Event
	cooldown := c.settings.Current().CooldownMs()

	c.mu.Lock()
	for id, h := range c.tabs {
		if _, ok := alive[id]; ok || h.openedAt >= cutoff {
			continue
		}
		stale = append(stale, id)
	}
	for _, t := range live {
		o, ok := c.orphans[t.URL]
		if !ok {
			continue
		}
		if _, tracked := c.tabs[t.ID]; tracked {
			continue
		}
		delete(c.orphans, t.URL)
		c.tabs[t.ID] = tabHandle{key: o.key, url: t.URL, openedAt: o.at}
		c.urlIndex[t.URL] = o.key
		if _, ok := c.cooldowns[o.key]; !ok {
			c.cooldowns[o.key] = o.at
		}
		adopted = append(adopted, events.Event{
			Type:       events.TokenOpened,
			TokenID:    o.key.TokenID,
			Chain:      o.key.Chain.String(),
			TabID:      t.ID,
			URL:        t.URL,
			Timestamp:  c.cooldowns[o.key],
			CooldownMs: cooldown,
		})
	}
	if len(adopted) > 0 {
		c.updateGaugesLocked()
	}
	c.mu.Unlock()

	for _, evt := range adopted {
		slog.Info("adopted token tab from a failed create", "token", evt.Chain+":"+evt.TokenID, "tab", evt.TabID)
		c.publish(evt)
	}
	for _, id := range stale {
		c.HandleTabRemoved(id)
	}
	res.Dropped = len(stale)
	res.Adopted = len(adopted)
	if res.Dropped > 0 || res.Adopted > 0 {
		slog.Info("reconciled token tabs", "removed", res.Dropped, "adopted", res.Adopted)
	}
	return res
}
