package detector

import (
	"context"
	"log/slog"

	"github.com/chromedp/chromedp"

	"github.com/autofilter/autofilter/internal/bridge"
)

// ChromePage reads a tab through its chromedp context.
type ChromePage struct {
	Ctx context.Context
}

func (p ChromePage) URL(ctx context.Context) (string, error) {
	tabCtx, cancel := p.bind(ctx)
	defer cancel()
	return bridge.PageURL(tabCtx)
}

func (p ChromePage) HTML(ctx context.Context) (string, error) {
	tabCtx, cancel := p.bind(ctx)
	defer cancel()
	var html string
	if err := chromedp.Run(tabCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

func (p ChromePage) Eval(ctx context.Context, script string) error {
	tabCtx, cancel := p.bind(ctx)
	defer cancel()
	var out any
	return chromedp.Run(tabCtx, chromedp.Evaluate(script, &out))
}

// bind derives a tab context that also stops when ctx is done.
func (p ChromePage) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	tabCtx, cancel := context.WithCancel(p.Ctx)
	stop := context.AfterFunc(ctx, cancel)
	return tabCtx, func() {
		stop()
		cancel()
	}
}

// PageAttacher opens a page in a tab the daemon drives.
type PageAttacher interface {
	AttachTab(ctx context.Context, url string) (string, context.Context, error)
}

// StartPages opens every monitored page and runs a scanner on each. It
// returns the ids of the tabs it attached; pages that fail to open are
// logged and skipped.
func StartPages(ctx context.Context, attacher PageAttacher, urls []string, opener Opener, src SettingsSource, cfg Config) []string {
	var ids []string
	for _, u := range urls {
		id, tabCtx, err := attacher.AttachTab(ctx, u)
		if err != nil {
			slog.Warn("monitored page unavailable", "url", u, "err", err)
			if tabCtx == nil {
				continue
			}
		}
		if _, ok := DetectPage(u); !ok {
			slog.Warn("monitored page is not a supported listing", "url", u)
		}
		ids = append(ids, id)
		sc := NewScanner(ChromePage{Ctx: tabCtx}, opener, src, cfg)
		go sc.Run(ctx)
		slog.Info("monitoring page", "url", u, "tab", id)
	}
	return ids
}
