package coordinator

import (
	"context"
	"log/slog"
	"time"

	"github.com/autofilter/autofilter/internal/chain"
	"github.com/autofilter/autofilter/internal/events"
	"github.com/autofilter/autofilter/internal/observability"
)

// TryOpen opens tokenID in a new background tab unless it is already being
// opened, is in cooldown, is already open, or the tab budget is spent.
//
// The mutex is released around the two browser calls. The pending marker is
// taken in the same critical section as the cooldown check, and the budget
// slot in the same section as the budget check, so concurrent callers can
// neither open one token twice nor overshoot maxTabs.
func (c *Coordinator) TryOpen(ctx context.Context, tokenID string, ch chain.Chain) OpenResult {
	key := Key{Chain: ch, TokenID: tokenID}
	st := c.settings.Current()
	cooldown := st.CooldownMs()

	if !st.ExtensionEnabled {
		return c.refuse(key, ReasonDisabled)
	}

	now := c.nowMs()
	c.mu.Lock()
	if _, busy := c.pending[key]; busy {
		c.mu.Unlock()
		return c.refuse(key, ReasonInFlight)
	}
	if last, ok := c.cooldowns[key]; ok && now-last < cooldown {
		c.mu.Unlock()
		slog.Debug("token in cooldown", "token", key, "remainingMs", cooldown-(now-last))
		return c.refuse(key, ReasonCooldown)
	}
	c.pending[key] = struct{}{}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, key)
		c.mu.Unlock()
	}()

	url := ch.TokenURL(tokenID)
	open, err := c.host.TabURLs(ctx)
	if err != nil {
		slog.Warn("tab query failed", "token", key, "err", err)
		return c.refuse(key, ReasonHostError)
	}

	now = c.nowMs()
	c.mu.Lock()
	for _, u := range open {
		if u == url {
			c.cooldowns[key] = now
			c.mu.Unlock()
			slog.Info("token already open", "token", key)
			observability.RecordOpenDecision(ReasonAlreadyOpen.Outcome())
			return OpenResult{Opened: true, TokenID: tokenID, Timestamp: now, CooldownMs: cooldown, Reason: ReasonAlreadyOpen}
		}
	}
	if last, ok := c.cooldowns[key]; ok && now-last < cooldown {
		c.mu.Unlock()
		return c.refuse(key, ReasonCooldown)
	}
	if used := len(c.tabs) + c.creating; used >= st.MaxTabs {
		c.mu.Unlock()
		slog.Debug("tab budget reached", "token", key, "open", used, "max", st.MaxTabs)
		return c.refuse(key, ReasonBudget)
	}
	c.creating++
	c.mu.Unlock()

	// Creation outlives a cancelled caller so a tab that does appear is
	// always recorded, but never outlives the timeout.
	createCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.createTimeout)
	start := time.Now()
	tabID, err := c.host.CreateBackgroundTab(createCtx, url)
	cancel()
	observability.RecordTabCreate(time.Since(start).Seconds())

	c.mu.Lock()
	c.creating--
	if err != nil {
		c.orphans[url] = orphanTab{key: key, at: c.nowMs()}
		c.updateGaugesLocked()
		c.mu.Unlock()
		slog.Warn("tab create failed", "token", key, "url", url, "err", err)
		return c.refuse(key, ReasonCreateFailed)
	}
	now = c.nowMs()
	c.cooldowns[key] = now
	c.tabs[tabID] = tabHandle{key: key, url: url, openedAt: now}
	c.urlIndex[url] = key
	delete(c.orphans, url)
	c.sweepLocked(now, cooldown)
	openCount := len(c.tabs)
	c.updateGaugesLocked()
	c.mu.Unlock()

	slog.Info("opened token tab", "token", key, "tab", tabID, "open", openCount, "max", st.MaxTabs)
	observability.RecordOpenDecision(ReasonNone.Outcome())

	if st.SoundEnabled && c.notifier != nil {
		go c.notifier.Notify(context.WithoutCancel(ctx))
	}
	c.publish(events.Event{
		Type:       events.TokenOpened,
		TokenID:    tokenID,
		Chain:      ch.String(),
		TabID:      tabID,
		URL:        url,
		Timestamp:  now,
		CooldownMs: cooldown,
	})

	return OpenResult{Opened: true, TokenID: tokenID, Timestamp: now, CooldownMs: cooldown, TabID: tabID}
}

func (c *Coordinator) refuse(key Key, reason Reason) OpenResult {
	observability.RecordOpenDecision(reason.Outcome())
	return OpenResult{TokenID: key.TokenID, Reason: reason}
}

func (c *Coordinator) publish(evt events.Event) {
	if c.events != nil {
		c.events.Publish(evt)
	}
}

func (c *Coordinator) updateGaugesLocked() {
	observability.UpdateCoordinatorGauges(len(c.tabs), c.creating, len(c.cooldowns))
}
