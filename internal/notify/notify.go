// Package notify plays the open sound in a hidden browser tab.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/autofilter/autofilter/internal/assets"
)

const notifyTimeout = 5 * time.Second

// TabHost is the slice of the tab manager the notifier needs.
type TabHost interface {
	TabIDs(ctx context.Context) ([]string, error)
	CreateBackgroundTab(ctx context.Context, url string) (string, error)
	TabContext(tabID string) (context.Context, string, error)
}

// Evaluator runs script in the tab bound to tabCtx.
type Evaluator func(tabCtx context.Context, script string) error

// Chrome keeps one about:blank tab alive for audio playback. The tab is
// created on first use and recreated when the browser loses it.
type Chrome struct {
	host TabHost
	eval Evaluator

	mu    sync.Mutex
	tabID string
}

func NewChrome(host TabHost) *Chrome {
	return &Chrome{host: host, eval: evalPromise}
}

func evalPromise(tabCtx context.Context, script string) error {
	var ok bool
	return chromedp.Run(tabCtx, chromedp.Evaluate(script, &ok, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true).WithUserGesture(true)
	}))
}

// Notify plays the beep. Failures are logged; the caller never waits on
// the result.
func (c *Chrome) Notify(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()
	if err := c.play(ctx); err != nil {
		slog.Warn("notification sound failed", "err", err)
	}
}

func (c *Chrome) play(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.playOnce(ctx)
	if err == nil || ctx.Err() != nil || !isTargetGone(err) {
		return err
	}
	slog.Debug("offscreen tab gone, recreating", "tab", c.tabID, "err", err)
	c.tabID = ""
	return c.playOnce(ctx)
}

func (c *Chrome) playOnce(ctx context.Context) error {
	id, err := c.ensureTab(ctx)
	if err != nil {
		return err
	}
	tabCtx, _, err := c.host.TabContext(id)
	if err != nil {
		return err
	}
	runCtx, cancel := context.WithCancel(tabCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return c.eval(runCtx, assets.BeepScript)
}

func (c *Chrome) ensureTab(ctx context.Context) (string, error) {
	if c.tabID != "" {
		ids, err := c.host.TabIDs(ctx)
		if err != nil {
			return "", fmt.Errorf("list tabs: %w", err)
		}
		if slices.Contains(ids, c.tabID) {
			return c.tabID, nil
		}
	}
	id, err := c.host.CreateBackgroundTab(ctx, "about:blank")
	if err != nil {
		return "", fmt.Errorf("create offscreen tab: %w", err)
	}
	c.tabID = id
	return id, nil
}

// TabID is the offscreen tab, or "" before the first notification.
func (c *Chrome) TabID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tabID
}

func isTargetGone(err error) bool {
	if errors.Is(err, chromedp.ErrInvalidContext) || errors.Is(err, context.Canceled) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "no target") ||
		strings.Contains(msg, "target closed")
}

// Nop discards notifications.
type Nop struct{}

func (Nop) Notify(context.Context) {}
