// Package detector scans monitored listing pages for token links and asks
// the coordinator to open the ones that match.
package detector

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/autofilter/autofilter/internal/chain"
	"github.com/autofilter/autofilter/internal/coordinator"
	"github.com/autofilter/autofilter/internal/observability"
	"github.com/autofilter/autofilter/internal/presenter"
	"github.com/autofilter/autofilter/internal/settings"
)

const (
	DefaultInterval = 2 * time.Second
	// refreshEvery is how often the overlay reloads cooldowns opened by
	// other pages.
	refreshEvery = 30 * time.Second
)

// Page is the browser tab a scanner reads.
type Page interface {
	URL(ctx context.Context) (string, error)
	HTML(ctx context.Context) (string, error)
	Eval(ctx context.Context, script string) error
}

// Opener is the coordinator surface a scanner uses.
type Opener interface {
	TryOpen(ctx context.Context, tokenID string, ch chain.Chain) coordinator.OpenResult
	CheckCooldown(k coordinator.Key) bool
	RemainingSlots() int
	OpenedTokens() []coordinator.OpenedToken
}

type SettingsSource interface {
	Current() settings.Settings
}

type Config struct {
	Interval time.Duration
	Overlay  bool
	Now      func() time.Time
}

// ScanResult summarizes one pass over a page.
type ScanResult struct {
	Chain      chain.Chain
	Candidates int
	Sent       int
	Opened     int
	Skipped    string
}

type Scanner struct {
	page     Page
	opener   Opener
	settings SettingsSource
	limiter  *rate.Limiter
	overlay  bool
	now      func() time.Time

	mu          sync.Mutex
	opened      map[coordinator.Key]coordinator.OpenedToken
	lastRefresh time.Time
}

func NewScanner(page Page, opener Opener, src SettingsSource, cfg Config) *Scanner {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Scanner{
		page:     page,
		opener:   opener,
		settings: src,
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
		overlay:  cfg.Overlay,
		now:      now,
		opened:   make(map[coordinator.Key]coordinator.OpenedToken),
	}
}

// Run scans until ctx is done, at most once per interval.
func (s *Scanner) Run(ctx context.Context) {
	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return
		}
		res, err := s.Scan(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("scan failed", "err", err)
			continue
		}
		if res.Sent > 0 {
			slog.Debug("scan", "chain", res.Chain.String(), "candidates", res.Candidates, "sent", res.Sent, "opened", res.Opened)
		}
	}
}

// Scan reads the page once and sends every eligible candidate to the
// coordinator.
func (s *Scanner) Scan(ctx context.Context) (ScanResult, error) {
	var res ScanResult
	st := s.settings.Current()
	if !st.ExtensionEnabled {
		res.Skipped = "disabled"
		return res, nil
	}

	pageURL, err := s.page.URL(ctx)
	if err != nil {
		return res, fmt.Errorf("page url: %w", err)
	}
	ch, ok := DetectPage(pageURL)
	if !ok {
		res.Skipped = "unsupported_page"
		return res, nil
	}
	res.Chain = ch

	html, err := s.page.HTML(ctx)
	if err != nil {
		return res, fmt.Errorf("read page: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return res, fmt.Errorf("parse page: %w", err)
	}

	cands := Extract(ch, doc)
	res.Candidates = len(cands)
	observability.RecordScan(string(ch.Site), len(cands))

	limit := min(s.opener.RemainingSlots(), MaxEmitPerScan)
	if limit == 0 {
		res.Skipped = "budget"
	}
	filter := st.FilterConfig
	for _, c := range cands {
		if res.Sent >= limit {
			break
		}
		if ch.Site == chain.GMGN && filter.Active() && !filter.Match(c.Changes) {
			continue
		}
		key := coordinator.Key{Chain: c.Chain, TokenID: c.TokenID}
		if s.opener.CheckCooldown(key) {
			continue
		}
		res.Sent++
		r := s.opener.TryOpen(ctx, c.TokenID, c.Chain)
		if r.Opened {
			res.Opened++
			s.remember(key, r)
		}
	}

	if s.overlay {
		s.renderOverlay(ctx, ch)
	}
	return res, nil
}

func (s *Scanner) remember(key coordinator.Key, r coordinator.OpenResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened[key] = coordinator.OpenedToken{
		TokenID:    key.TokenID,
		Chain:      key.Chain.String(),
		Timestamp:  r.Timestamp,
		CooldownMs: r.CooldownMs,
	}
}

// Opened returns the tokens this scanner knows to be cooling down.
func (s *Scanner) Opened() []coordinator.OpenedToken {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastRefresh.IsZero() || now.Sub(s.lastRefresh) >= refreshEvery {
		fresh := make(map[coordinator.Key]coordinator.OpenedToken)
		for _, t := range s.opener.OpenedTokens() {
			ch, err := chain.Parse(t.Chain)
			if err != nil {
				continue
			}
			fresh[coordinator.Key{Chain: ch, TokenID: t.TokenID}] = t
		}
		// Local opens the coordinator has not reported yet survive until
		// their window ends.
		nowMs := now.UnixMilli()
		for k, t := range s.opened {
			if _, ok := fresh[k]; !ok && nowMs-t.Timestamp < t.CooldownMs {
				fresh[k] = t
			}
		}
		s.opened = fresh
		s.lastRefresh = now
	}
	out := make([]coordinator.OpenedToken, 0, len(s.opened))
	for _, t := range s.opened {
		out = append(out, t)
	}
	return out
}

func (s *Scanner) renderOverlay(ctx context.Context, ch chain.Chain) {
	script, err := presenter.OverlayScript(s.Opened(), ch.String(), s.now())
	if err != nil {
		slog.Debug("overlay", "err", err)
		return
	}
	if err := s.page.Eval(ctx, script); err != nil {
		slog.Debug("overlay eval failed", "err", err)
	}
}
