package handlers

import (
	"context"
	"errors"
	"sync"

	"github.com/autofilter/autofilter/internal/bridge"
	"github.com/autofilter/autofilter/internal/chain"
	"github.com/autofilter/autofilter/internal/config"
	"github.com/autofilter/autofilter/internal/coordinator"
	"github.com/autofilter/autofilter/internal/events"
	"github.com/autofilter/autofilter/internal/favorites"
	"github.com/autofilter/autofilter/internal/settings"
)

type openCall struct {
	TokenID string
	Chain   chain.Chain
}

type fakeCoordinator struct {
	mu      sync.Mutex
	calls   []openCall
	result  coordinator.OpenResult
	cooling map[coordinator.Key]bool
	tokens  []coordinator.OpenedToken
	open    int
	st      *settings.Store
}

func (f *fakeCoordinator) TryOpen(_ context.Context, tokenID string, ch chain.Chain) coordinator.OpenResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, openCall{tokenID, ch})
	r := f.result
	r.TokenID = tokenID
	return r
}

func (f *fakeCoordinator) Stats() coordinator.Stats {
	return coordinator.Stats{OpenTabCount: f.open, Settings: f.st.Current()}
}

func (f *fakeCoordinator) OpenedTokens() []coordinator.OpenedToken { return f.tokens }

func (f *fakeCoordinator) CheckCooldown(k coordinator.Key) bool {
	if k.Chain.IsZero() {
		for key, v := range f.cooling {
			if key.TokenID == k.TokenID && v {
				return true
			}
		}
		return false
	}
	return f.cooling[k]
}

func (f *fakeCoordinator) OpenTabCount() int { return f.open }

type fakeBrowser struct {
	tabs []bridge.Tab
	err  error
}

func (b *fakeBrowser) ListTabs(context.Context) ([]bridge.Tab, error) { return b.tabs, b.err }

type fakeTabs struct {
	mu   sync.Mutex
	urls []string
}

func (t *fakeTabs) OpenTab(_ context.Context, url string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if url == "" {
		return "", errors.New("empty url")
	}
	t.urls = append(t.urls, url)
	return "FAV-TAB", nil
}

type testEnv struct {
	h     *Handlers
	coord *fakeCoordinator
	store *settings.Store
	tabs  *fakeTabs
	hub   *events.Hub
}

func newTestEnv() *testEnv {
	store := settings.NewMemory(settings.Defaults())
	coord := &fakeCoordinator{
		result:  coordinator.OpenResult{Opened: true, Timestamp: 1000, CooldownMs: 900000},
		cooling: make(map[coordinator.Key]bool),
		st:      store,
	}
	tabs := &fakeTabs{}
	hub := events.NewHub(nil)
	h := &Handlers{
		Coordinator: coord,
		Settings:    store,
		Favorites:   favorites.NewService(favorites.NewMemoryStore(), tabs, "inst_test"),
		Events:      hub,
		Browser:     &fakeBrowser{tabs: []bridge.Tab{{ID: "A"}, {ID: "B"}}},
		Config:      &config.RuntimeConfig{},
		Version:     "test",
	}
	return &testEnv{h: h, coord: coord, store: store, tabs: tabs, hub: hub}
}
