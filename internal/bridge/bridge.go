package bridge

import (
	"context"
	"log/slog"
	"sync"

	"github.com/autofilter/autofilter/internal/config"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// Bridge owns the Chrome process (or remote connection) and the tab manager
// built on it.
type Bridge struct {
	AllocCtx      context.Context
	AllocCancel   context.CancelFunc
	BrowserCtx    context.Context
	BrowserCancel context.CancelFunc
	Config        *config.RuntimeConfig
	*TabManager

	// PageScript is evaluated on every new document in attached tabs.
	PageScript string

	closeOnce sync.Once
}

func New(allocCtx, browserCtx context.Context, cfg *config.RuntimeConfig) *Bridge {
	b := &Bridge{
		AllocCtx:   allocCtx,
		BrowserCtx: browserCtx,
		Config:     cfg,
	}
	if cfg != nil && browserCtx != nil {
		b.TabManager = NewTabManager(browserCtx, cfg, b.tabSetup)
	}
	return b
}

// Start launches or connects to Chrome according to cfg.
func Start(cfg *config.RuntimeConfig, pageScript string) (*Bridge, error) {
	allocCtx, allocCancel, browserCtx, browserCancel, err := InitChrome(cfg)
	if err != nil {
		return nil, err
	}
	b := New(allocCtx, browserCtx, cfg)
	b.AllocCancel = allocCancel
	b.BrowserCancel = browserCancel
	b.PageScript = pageScript
	return b, nil
}

func (b *Bridge) tabSetup(ctx context.Context) {
	if b.PageScript != "" {
		if err := chromedp.Run(ctx,
			chromedp.ActionFunc(func(ctx context.Context) error {
				_, err := page.AddScriptToEvaluateOnNewDocument(b.PageScript).Do(ctx)
				return err
			}),
		); err != nil {
			slog.Warn("page script injection failed", "err", err)
		}
	}
	if b.Config != nil && b.Config.BlockImages {
		if err := SetResourceBlocking(ctx, ImageBlockPatterns); err != nil {
			slog.Debug("image blocking failed", "err", err)
		}
	}
}

// Close shuts the browser down and marks the profile as cleanly exited.
func (b *Bridge) Close() {
	b.closeOnce.Do(func() {
		if b.BrowserCancel != nil {
			b.BrowserCancel()
		}
		if b.AllocCancel != nil {
			b.AllocCancel()
		}
		if b.Config != nil && b.Config.CdpURL == "" && b.Config.ProfileDir != "" {
			MarkCleanExit(b.Config.ProfileDir)
		}
	})
}
