package coordinator

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/autofilter/autofilter/internal/chain"
	"github.com/autofilter/autofilter/internal/events"
	"github.com/autofilter/autofilter/internal/settings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sol = chain.Chain{Site: chain.GMGN, ID: "sol"}

func TestKeyString(t *testing.T) {
	assert.Equal(t, "gmgn:sol:TOKA", Key{Chain: sol, TokenID: "TOKA"}.String())
	assert.Equal(t, "opened", ReasonNone.Outcome())
	assert.Equal(t, "budget", ReasonBudget.Outcome())
}

func TestTryOpenCreatesBackgroundTab(t *testing.T) {
	h := newHarness(15, 10)
	ctx := context.Background()

	res := h.c.TryOpen(ctx, "TOKA", sol)
	require.True(t, res.Opened)
	assert.Equal(t, ReasonNone, res.Reason)
	assert.Equal(t, h.clock.Now().UnixMilli(), res.Timestamp)
	assert.Equal(t, int64(15*60*1000), res.CooldownMs)
	assert.NotEmpty(t, res.TabID)

	assert.Equal(t, 1, h.c.OpenTabCount())
	assert.True(t, h.c.CheckCooldown(Key{Chain: sol, TokenID: "TOKA"}))
	k, ok := h.c.KeyForURL("https://gmgn.ai/sol/token/TOKA")
	require.True(t, ok)
	assert.Equal(t, "TOKA", k.TokenID)

	require.Eventually(t, func() bool { return h.notify.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{events.TokenOpened}, h.pub.types())
}

func TestSoundDisabled(t *testing.T) {
	h := newHarness(15, 10)
	_, err := h.store.Update(func(s *settings.Settings) { s.SoundEnabled = false })
	require.NoError(t, err)

	require.True(t, h.c.TryOpen(context.Background(), "TOKA", sol).Opened)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, h.notify.count())
}

func TestDisabledRefusesEverything(t *testing.T) {
	h := newHarness(15, 10)
	_, err := h.store.Update(func(s *settings.Settings) { s.ExtensionEnabled = false })
	require.NoError(t, err)

	res := h.c.TryOpen(context.Background(), "TOKA", sol)
	assert.False(t, res.Opened)
	assert.Equal(t, ReasonDisabled, res.Reason)
	assert.Equal(t, 0, h.host.calls())
}

// Overlapping calls for one token create exactly one tab.
func TestConcurrentSameTokenOpensOnce(t *testing.T) {
	h := newHarness(15, 10)
	h.host.gate = make(chan struct{})
	ctx := context.Background()

	first := make(chan OpenResult, 1)
	go func() { first <- h.c.TryOpen(ctx, "TOKA", sol) }()
	require.Eventually(t, func() bool { return h.host.calls() == 1 }, time.Second, time.Millisecond)

	second := h.c.TryOpen(ctx, "TOKA", sol)
	assert.False(t, second.Opened)
	assert.Equal(t, ReasonInFlight, second.Reason)

	close(h.host.gate)
	res := <-first
	assert.True(t, res.Opened)
	assert.Equal(t, 1, h.host.calls())
}

func TestManyConcurrentSameTokenOpensOnce(t *testing.T) {
	h := newHarness(15, 10)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make(chan OpenResult, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- h.c.TryOpen(ctx, "TOKA", sol)
		}()
	}
	wg.Wait()
	close(results)

	created := 0
	for r := range results {
		if r.Opened && r.Reason == ReasonNone {
			created++
		}
	}
	assert.Equal(t, 1, created)
	assert.Equal(t, 1, h.host.calls())
}

// The cooldown holds inside the window even after the tab closes.
func TestCooldownSurvivesTabClose(t *testing.T) {
	h := newHarness(15, 10)
	ctx := context.Background()

	res := h.c.TryOpen(ctx, "TOKA", sol)
	require.True(t, res.Opened)

	h.clock.Advance(time.Minute)
	again := h.c.TryOpen(ctx, "TOKA", sol)
	assert.False(t, again.Opened)
	assert.Equal(t, ReasonCooldown, again.Reason)

	h.host.closeTab(res.TabID)
	h.c.HandleTabRemoved(res.TabID)
	assert.Equal(t, 0, h.c.OpenTabCount())

	h.clock.Advance(13*time.Minute + 59*time.Second)
	afterClose := h.c.TryOpen(ctx, "TOKA", sol)
	assert.False(t, afterClose.Opened)
	assert.Equal(t, ReasonCooldown, afterClose.Reason)
	assert.Equal(t, 1, h.host.calls())
	assert.Contains(t, h.pub.types(), events.TokenTabClosed)
}

// N distinct tokens against a budget of k open exactly k tabs.
func TestBudgetCeilingUnderConcurrency(t *testing.T) {
	const n, k = 8, 3
	h := newHarness(15, k)
	h.host.gate = make(chan struct{})
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make(chan OpenResult, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results <- h.c.TryOpen(ctx, fmt.Sprintf("TOK%d", i), sol)
		}(i)
	}

	require.Eventually(t, func() bool { return h.host.calls() == k }, time.Second, time.Millisecond)
	assert.Equal(t, 0, h.c.RemainingSlots())
	close(h.host.gate)
	wg.Wait()
	close(results)

	opened, budget := 0, 0
	for r := range results {
		switch {
		case r.Opened:
			opened++
		case r.Reason == ReasonBudget:
			budget++
		}
	}
	assert.Equal(t, k, opened)
	assert.Equal(t, n-k, budget)
	assert.Equal(t, k, h.c.OpenTabCount())
	assert.Equal(t, k, h.host.calls())
}

// The token is reopenable once the window has passed.
func TestExpiryReopens(t *testing.T) {
	h := newHarness(15, 10)
	ctx := context.Background()

	res := h.c.TryOpen(ctx, "TOKA", sol)
	require.True(t, res.Opened)
	h.host.closeTab(res.TabID)
	h.c.HandleTabRemoved(res.TabID)

	h.clock.Advance(15*time.Minute - time.Millisecond)
	assert.False(t, h.c.TryOpen(ctx, "TOKA", sol).Opened)

	h.clock.Advance(2 * time.Millisecond)
	again := h.c.TryOpen(ctx, "TOKA", sol)
	assert.True(t, again.Opened)
	assert.Equal(t, ReasonNone, again.Reason)
	assert.Equal(t, 2, h.host.calls())
}

// A tab opened by other means is adopted as success without a duplicate.
func TestExistingTabIsIdempotent(t *testing.T) {
	h := newHarness(15, 10)
	h.host.external = []string{"https://gmgn.ai/sol/token/TOKA"}
	ctx := context.Background()

	res := h.c.TryOpen(ctx, "TOKA", sol)
	assert.True(t, res.Opened)
	assert.Equal(t, ReasonAlreadyOpen, res.Reason)
	assert.Equal(t, 0, h.host.calls())
	assert.Equal(t, 0, h.c.OpenTabCount())

	tokens := h.c.OpenedTokens()
	require.Len(t, tokens, 1)
	assert.Equal(t, h.clock.Now().UnixMilli(), tokens[0].Timestamp)

	h.clock.Advance(time.Minute)
	assert.Equal(t, ReasonCooldown, h.c.TryOpen(ctx, "TOKA", sol).Reason)
}

func TestExistingTabRefreshesExpiredCooldown(t *testing.T) {
	h := newHarness(15, 10)
	ctx := context.Background()

	first := h.c.TryOpen(ctx, "TOKA", sol)
	require.True(t, first.Opened)

	h.clock.Advance(20 * time.Minute)
	res := h.c.TryOpen(ctx, "TOKA", sol)
	assert.True(t, res.Opened)
	assert.Equal(t, ReasonAlreadyOpen, res.Reason)
	assert.Equal(t, h.clock.Now().UnixMilli(), h.c.OpenedTokens()[0].Timestamp)
	assert.Equal(t, 1, h.host.calls())
}

func TestCompositeKeySeparatesChains(t *testing.T) {
	h := newHarness(15, 10)
	ctx := context.Background()
	gmgnBSC := chain.Chain{Site: chain.GMGN, ID: "bsc"}
	dsBSC := chain.Chain{Site: chain.DexScreener, ID: "bsc"}

	require.True(t, h.c.TryOpen(ctx, "0xabc", gmgnBSC).Opened)
	res := h.c.TryOpen(ctx, "0xabc", dsBSC)
	assert.True(t, res.Opened)
	assert.Equal(t, ReasonNone, res.Reason)

	assert.True(t, h.c.CheckCooldown(Key{TokenID: "0xabc"}))
	assert.False(t, h.c.CheckCooldown(Key{Chain: sol, TokenID: "0xabc"}))
}

func TestHostListErrorIsSkipped(t *testing.T) {
	h := newHarness(15, 10)
	h.host.listErr = errQuota

	res := h.c.TryOpen(context.Background(), "TOKA", sol)
	assert.False(t, res.Opened)
	assert.Equal(t, ReasonHostError, res.Reason)

	h.host.listErr = nil
	assert.True(t, h.c.TryOpen(context.Background(), "TOKA", sol).Opened)
}

func TestCreateFailureClearsMarkers(t *testing.T) {
	h := newHarness(15, 1)
	h.host.createErr = errQuota

	res := h.c.TryOpen(context.Background(), "TOKA", sol)
	assert.False(t, res.Opened)
	assert.Equal(t, ReasonCreateFailed, res.Reason)
	assert.False(t, h.c.CheckCooldown(Key{Chain: sol, TokenID: "TOKA"}))
	assert.Equal(t, 1, h.c.RemainingSlots())

	h.host.createErr = nil
	assert.True(t, h.c.TryOpen(context.Background(), "TOKA", sol).Opened)
}

func TestCreateTimeoutReleasesBudget(t *testing.T) {
	h := newHarness(15, 1)
	h.c.createTimeout = 20 * time.Millisecond
	h.host.hang = true

	res := h.c.TryOpen(context.Background(), "TOKA", sol)
	assert.False(t, res.Opened)
	assert.Equal(t, ReasonCreateFailed, res.Reason)
	assert.Equal(t, 0, h.c.Stats().InFlight)

	h.host.hang = false
	assert.True(t, h.c.TryOpen(context.Background(), "TOKB", sol).Opened)
}

func TestCallerCancelDoesNotAbortCreate(t *testing.T) {
	h := newHarness(15, 10)
	h.host.gate = make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan OpenResult, 1)
	go func() { done <- h.c.TryOpen(ctx, "TOKA", sol) }()
	require.Eventually(t, func() bool { return h.host.calls() == 1 }, time.Second, time.Millisecond)
	cancel()
	close(h.host.gate)

	res := <-done
	assert.True(t, res.Opened)
	assert.Equal(t, 1, h.c.OpenTabCount())
}

func TestSweepKeepsLiveHandles(t *testing.T) {
	h := newHarness(15, 10)
	ctx := context.Background()

	require.True(t, h.c.TryOpen(ctx, "TOKA", sol).Opened)
	h.clock.Advance(16 * time.Minute)

	assert.Equal(t, 1, h.c.Sweep())
	assert.Empty(t, h.c.OpenedTokens())
	assert.Equal(t, 1, h.c.OpenTabCount())
	_, ok := h.c.KeyForURL("https://gmgn.ai/sol/token/TOKA")
	assert.False(t, ok)
}

func TestSweepRunsAfterSuccessfulOpen(t *testing.T) {
	h := newHarness(15, 10)
	ctx := context.Background()

	require.True(t, h.c.TryOpen(ctx, "TOKA", sol).Opened)
	h.clock.Advance(15 * time.Minute)
	require.True(t, h.c.TryOpen(ctx, "TOKB", sol).Opened)
	assert.Len(t, h.c.OpenedTokens(), 2, "exactly at the window edge the entry survives")

	h.clock.Advance(time.Millisecond)
	require.True(t, h.c.TryOpen(ctx, "TOKC", sol).Opened)
	tokens := h.c.OpenedTokens()
	require.Len(t, tokens, 2)
	assert.Equal(t, "TOKB", tokens[0].TokenID)
	assert.Equal(t, "TOKC", tokens[1].TokenID)
}

func TestReconcileDropsVanishedTabs(t *testing.T) {
	h := newHarness(15, 10)
	ctx := context.Background()

	a := h.c.TryOpen(ctx, "TOKA", sol)
	b := h.c.TryOpen(ctx, "TOKB", sol)
	require.True(t, a.Opened && b.Opened)

	h.clock.Advance(time.Second)
	h.host.closeTab(a.TabID)
	assert.Equal(t, ReconcileResult{Dropped: 1}, h.c.Reconcile(h.clock.Now(), h.host.liveTabs()))
	assert.Equal(t, []string{b.TabID}, h.c.TrackedTabs())
	assert.True(t, h.c.CheckCooldown(Key{Chain: sol, TokenID: "TOKA"}))
	assert.Equal(t, ReconcileResult{}, h.c.Reconcile(h.clock.Now(), h.host.liveTabs()))
}

func TestReconcileKeepsTabsOpenedAfterListing(t *testing.T) {
	h := newHarness(15, 1)
	ctx := context.Background()

	listedAt := h.clock.Now()
	live := h.host.liveTabs()
	h.clock.Advance(time.Second)
	a := h.c.TryOpen(ctx, "TOKA", sol)
	require.True(t, a.Opened)

	assert.Equal(t, ReconcileResult{}, h.c.Reconcile(listedAt, live))
	assert.Equal(t, []string{a.TabID}, h.c.TrackedTabs())
	assert.NotContains(t, h.pub.types(), events.TokenTabClosed)

	b := h.c.TryOpen(ctx, "TOKB", sol)
	assert.False(t, b.Opened)
	assert.Equal(t, ReasonBudget, b.Reason)
	assert.Equal(t, 1, h.host.calls())

	// A later listing that still lacks the tab drops it.
	h.clock.Advance(time.Second)
	h.host.closeTab(a.TabID)
	assert.Equal(t, ReconcileResult{Dropped: 1}, h.c.Reconcile(h.clock.Now(), h.host.liveTabs()))
}

func TestReconcileAdoptsTabFromTimedOutCreate(t *testing.T) {
	h := newHarness(15, 2)
	h.c.createTimeout = 20 * time.Millisecond
	h.host.hang = true
	h.host.lateTab = true
	ctx := context.Background()

	res := h.c.TryOpen(ctx, "TOKA", sol)
	require.False(t, res.Opened)
	require.Equal(t, ReasonCreateFailed, res.Reason)
	assert.Equal(t, 0, h.c.OpenTabCount())

	h.clock.Advance(time.Second)
	live := append(h.host.liveTabs(), LiveTab{ID: "EXT", URL: "https://gmgn.ai/sol/token/OTHER"})
	assert.Equal(t, ReconcileResult{Adopted: 1}, h.c.Reconcile(h.clock.Now(), live))
	assert.Equal(t, []string{"T1"}, h.c.TrackedTabs())
	assert.Equal(t, 1, h.c.RemainingSlots())
	assert.True(t, h.c.CheckCooldown(Key{Chain: sol, TokenID: "TOKA"}))
	assert.Contains(t, h.pub.types(), events.TokenOpened)

	key, ok := h.c.KeyForURL("https://gmgn.ai/sol/token/TOKA")
	require.True(t, ok)
	assert.Equal(t, "TOKA", key.TokenID)

	assert.Equal(t, ReconcileResult{}, h.c.Reconcile(h.clock.Now(), h.host.liveTabs()))
}

func TestFailedCreateIsForgottenAfterWindow(t *testing.T) {
	h := newHarness(15, 2)
	h.c.createTimeout = 20 * time.Millisecond
	h.host.hang = true
	h.host.lateTab = true

	require.False(t, h.c.TryOpen(context.Background(), "TOKA", sol).Opened)
	h.clock.Advance(16 * time.Minute)
	h.c.Sweep()

	assert.Equal(t, ReconcileResult{}, h.c.Reconcile(h.clock.Now(), h.host.liveTabs()))
	assert.Equal(t, 0, h.c.OpenTabCount())
}

func TestHandleUnknownTabIsNoop(t *testing.T) {
	h := newHarness(15, 10)
	h.c.HandleTabRemoved("nope")
	assert.Empty(t, h.pub.types())
}

func TestStatsCountsHandlesNotCooldowns(t *testing.T) {
	h := newHarness(15, 10)
	ctx := context.Background()

	a := h.c.TryOpen(ctx, "TOKA", sol)
	require.True(t, h.c.TryOpen(ctx, "TOKB", sol).Opened)
	h.host.closeTab(a.TabID)
	h.c.HandleTabRemoved(a.TabID)

	st := h.c.Stats()
	assert.Equal(t, 1, st.OpenTabCount)
	assert.Equal(t, 0, st.InFlight)
	assert.Equal(t, 10, st.Settings.MaxTabs)
	assert.Len(t, h.c.OpenedTokens(), 2)
}

// cooldownMinutes=15, maxTabs=2 walk-through.
func TestCooldownAndBudgetWalkthrough(t *testing.T) {
	h := newHarness(15, 2)
	ctx := context.Background()

	a := h.c.TryOpen(ctx, "TOKA", sol)
	require.True(t, a.Opened)
	require.True(t, h.c.TryOpen(ctx, "TOKB", sol).Opened)

	c := h.c.TryOpen(ctx, "TOKC", sol)
	assert.False(t, c.Opened)
	assert.Equal(t, ReasonBudget, c.Reason)

	h.host.closeTab(h.host.tabFor("https://gmgn.ai/sol/token/TOKA"))
	h.c.HandleTabRemoved(a.TabID)

	h.clock.Advance(5 * time.Minute)
	again := h.c.TryOpen(ctx, "TOKA", sol)
	assert.False(t, again.Opened)
	assert.Equal(t, ReasonCooldown, again.Reason, "cooldown, not budget")

	// TOKA's slot was freed by the close; only TOKB's live tab counts.
	c = h.c.TryOpen(ctx, "TOKC", sol)
	assert.True(t, c.Opened)

	d := h.c.TryOpen(ctx, "TOKD", sol)
	assert.False(t, d.Opened)
	assert.Equal(t, ReasonBudget, d.Reason)
	assert.Equal(t, 3, h.host.calls())
}

func TestBudgetFollowsSettingsChange(t *testing.T) {
	h := newHarness(15, 1)
	ctx := context.Background()

	require.True(t, h.c.TryOpen(ctx, "TOKA", sol).Opened)
	assert.Equal(t, ReasonBudget, h.c.TryOpen(ctx, "TOKB", sol).Reason)

	_, err := h.store.Update(func(s *settings.Settings) { s.MaxTabs = 2 })
	require.NoError(t, err)
	assert.True(t, h.c.TryOpen(ctx, "TOKB", sol).Opened)
}
