package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/autofilter/autofilter/internal/config"
	cdp "github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
)

const TargetTypePage = "page"

type TabSetupFunc func(ctx context.Context)

// Tab is a page target as the browser reports it.
type Tab struct {
	ID    string `json:"id"`
	URL   string `json:"url"`
	Title string `json:"title"`
}

type TabEntry struct {
	Ctx    context.Context
	Cancel context.CancelFunc
}

// TabManager creates, lists and closes browser tabs over CDP and keeps a
// chromedp context for every tab the daemon drives itself.
type TabManager struct {
	browserCtx   context.Context
	config       *config.RuntimeConfig
	tabs         map[string]*TabEntry
	onTabSetup   TabSetupFunc
	queryTimeout time.Duration
	mu           sync.RWMutex
}

func NewTabManager(browserCtx context.Context, cfg *config.RuntimeConfig, onTabSetup TabSetupFunc) *TabManager {
	qt := 5 * time.Second
	if cfg != nil && cfg.TabQueryTimeout > 0 {
		qt = cfg.TabQueryTimeout
	}
	return &TabManager{
		browserCtx:   browserCtx,
		config:       cfg,
		tabs:         make(map[string]*TabEntry),
		onTabSetup:   onTabSetup,
		queryTimeout: qt,
	}
}

// browserExec binds ctx to the browser-level CDP connection so target
// commands honor the caller's deadline.
func (tm *TabManager) browserExec(ctx context.Context) (context.Context, error) {
	if tm.browserCtx == nil {
		return nil, fmt.Errorf("no browser connection")
	}
	c := chromedp.FromContext(tm.browserCtx)
	if c == nil || c.Browser == nil {
		return nil, fmt.Errorf("no browser connection")
	}
	return cdp.WithExecutor(ctx, c.Browser), nil
}

func (tm *TabManager) ListTabs(ctx context.Context) ([]Tab, error) {
	qctx, cancel := context.WithTimeout(ctx, tm.queryTimeout)
	defer cancel()

	exec, err := tm.browserExec(qctx)
	if err != nil {
		return nil, err
	}
	targets, err := target.GetTargets().Do(exec)
	if err != nil {
		return nil, fmt.Errorf("get targets: %w", err)
	}

	tabs := make([]Tab, 0, len(targets))
	for _, t := range targets {
		if t.Type != TargetTypePage {
			continue
		}
		tabs = append(tabs, Tab{ID: string(t.TargetID), URL: t.URL, Title: t.Title})
	}
	return tabs, nil
}

// TabURLs lists the URLs of all open pages, skipping browser-internal ones.
func (tm *TabManager) TabURLs(ctx context.Context) ([]string, error) {
	tabs, err := tm.ListTabs(ctx)
	if err != nil {
		return nil, err
	}
	urls := make([]string, 0, len(tabs))
	for _, t := range tabs {
		if t.URL == "" || isTransientURL(t.URL) {
			continue
		}
		urls = append(urls, t.URL)
	}
	return urls, nil
}

func (tm *TabManager) TabIDs(ctx context.Context) ([]string, error) {
	tabs, err := tm.ListTabs(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(tabs))
	for i, t := range tabs {
		ids[i] = t.ID
	}
	return ids, nil
}

// CreateBackgroundTab opens url without focusing it.
func (tm *TabManager) CreateBackgroundTab(ctx context.Context, url string) (string, error) {
	return tm.createTarget(ctx, url, true)
}

// OpenTab opens url in a new foreground tab.
func (tm *TabManager) OpenTab(ctx context.Context, url string) (string, error) {
	return tm.createTarget(ctx, url, false)
}

func (tm *TabManager) createTarget(ctx context.Context, url string, background bool) (string, error) {
	exec, err := tm.browserExec(ctx)
	if err != nil {
		return "", err
	}
	if url == "" {
		url = "about:blank"
	}
	id, err := target.CreateTarget(url).WithBackground(background).Do(exec)
	if err != nil {
		return "", fmt.Errorf("create target: %w", err)
	}
	return string(id), nil
}

// AttachTab opens url in a new tab the daemon drives and returns a chromedp
// context bound to it.
func (tm *TabManager) AttachTab(ctx context.Context, url string) (string, context.Context, error) {
	createCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	id, err := tm.createTarget(createCtx, "about:blank", true)
	if err != nil {
		return "", nil, err
	}
	tabCtx, _, err := tm.TabContext(id)
	if err != nil {
		return "", nil, err
	}
	if url != "" && url != "about:blank" {
		navCtx, navCancel := context.WithTimeout(tabCtx, 30*time.Second)
		defer navCancel()
		if err := NavigatePage(navCtx, url); err != nil {
			return id, tabCtx, fmt.Errorf("navigate %s: %w", url, err)
		}
	}
	return id, tabCtx, nil
}

// TabContext returns the chromedp context for an existing tab, attaching to
// it on first use.
func (tm *TabManager) TabContext(tabID string) (context.Context, string, error) {
	if tabID == "" {
		return nil, "", fmt.Errorf("tab id required")
	}

	tm.mu.RLock()
	if entry, ok := tm.tabs[tabID]; ok && entry.Ctx != nil {
		tm.mu.RUnlock()
		return entry.Ctx, tabID, nil
	}
	tm.mu.RUnlock()

	tm.mu.Lock()
	defer tm.mu.Unlock()

	if entry, ok := tm.tabs[tabID]; ok && entry.Ctx != nil {
		return entry.Ctx, tabID, nil
	}
	if tm.browserCtx == nil {
		return nil, "", fmt.Errorf("no browser connection")
	}

	ctx, cancel := chromedp.NewContext(tm.browserCtx, chromedp.WithTargetID(target.ID(tabID)))
	if err := chromedp.Run(ctx); err != nil {
		cancel()
		return nil, "", fmt.Errorf("tab %s not found: %w", tabID, err)
	}
	if tm.onTabSetup != nil {
		tm.onTabSetup(ctx)
	}

	tm.tabs[tabID] = &TabEntry{Ctx: ctx, Cancel: cancel}
	return ctx, tabID, nil
}

func (tm *TabManager) CloseTab(ctx context.Context, tabID string) error {
	tracked := tm.forget(tabID)

	closeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	exec, err := tm.browserExec(closeCtx)
	if err != nil {
		return err
	}
	if err := target.CloseTarget(target.ID(tabID)).Do(exec); err != nil {
		if !tracked {
			return fmt.Errorf("tab %s not found", tabID)
		}
		slog.Debug("close target CDP", "tabId", tabID, "err", err)
	}
	return nil
}

// forget drops the attached context for tabID and reports whether one existed.
func (tm *TabManager) forget(tabID string) bool {
	tm.mu.Lock()
	entry, ok := tm.tabs[tabID]
	delete(tm.tabs, tabID)
	tm.mu.Unlock()
	if ok && entry.Cancel != nil {
		entry.Cancel()
	}
	return ok
}

// Attached reports whether the daemon holds a context for tabID.
func (tm *TabManager) Attached(tabID string) bool {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	_, ok := tm.tabs[tabID]
	return ok
}

// WatchTargets calls onRemoved for every page target the browser destroys
// until ctx is done.
func (tm *TabManager) WatchTargets(ctx context.Context, onRemoved func(tabID string)) error {
	exec, err := tm.browserExec(ctx)
	if err != nil {
		return err
	}
	if err := target.SetDiscoverTargets(true).Do(exec); err != nil {
		return fmt.Errorf("discover targets: %w", err)
	}

	listenCtx, cancel := context.WithCancel(tm.browserCtx)
	go func() {
		<-ctx.Done()
		cancel()
	}()

	chromedp.ListenBrowser(listenCtx, func(ev interface{}) {
		var id string
		switch e := ev.(type) {
		case *target.EventTargetDestroyed:
			id = string(e.TargetID)
		case *target.EventTargetCrashed:
			id = string(e.TargetID)
		default:
			return
		}
		// Listener callbacks run on the CDP read loop and must not block.
		go func() {
			tm.forget(id)
			onRemoved(id)
		}()
	})
	return nil
}

// CleanStaleTabs periodically drops attached contexts whose tab is gone and
// hands the listed tabs to onSweep together with the time the listing
// started.
func (tm *TabManager) CleanStaleTabs(ctx context.Context, interval time.Duration, onSweep func(listedAt time.Time, live []Tab)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		listedAt := time.Now()
		tabs, err := tm.ListTabs(ctx)
		if err != nil {
			slog.Debug("stale tab sweep skipped", "err", err)
			continue
		}
		ids := make([]string, len(tabs))
		for i, t := range tabs {
			ids[i] = t.ID
		}
		tm.dropMissing(ids)
		if onSweep != nil {
			onSweep(listedAt, tabs)
		}
	}
}

func (tm *TabManager) dropMissing(live []string) int {
	alive := make(map[string]bool, len(live))
	for _, id := range live {
		alive[id] = true
	}

	tm.mu.Lock()
	defer tm.mu.Unlock()
	n := 0
	for id, entry := range tm.tabs {
		if alive[id] {
			continue
		}
		if entry.Cancel != nil {
			entry.Cancel()
		}
		delete(tm.tabs, id)
		n++
		slog.Info("cleaned stale tab", "id", id)
	}
	return n
}
