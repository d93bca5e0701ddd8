// Package coordinator decides, for every detected token, whether a new
// background tab is opened. It owns the cooldown table, the in-flight
// markers and the live tab handles.
package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/autofilter/autofilter/internal/chain"
	"github.com/autofilter/autofilter/internal/events"
	"github.com/autofilter/autofilter/internal/settings"
)

const DefaultCreateTimeout = 10 * time.Second

// Key identifies a token across sites: the same id on two chains is two
// tokens.
type Key struct {
	Chain   chain.Chain
	TokenID string
}

func (k Key) String() string {
	return k.Chain.String() + ":" + k.TokenID
}

type Reason string

const (
	ReasonNone         Reason = ""
	ReasonInFlight     Reason = "in_flight"
	ReasonCooldown     Reason = "cooldown"
	ReasonAlreadyOpen  Reason = "already_open"
	ReasonBudget       Reason = "budget"
	ReasonDisabled     Reason = "disabled"
	ReasonHostError    Reason = "host_error"
	ReasonCreateFailed Reason = "create_failed"
)

// Outcome is the metrics label for a decision.
func (r Reason) Outcome() string {
	if r == ReasonNone {
		return "opened"
	}
	return string(r)
}

type OpenResult struct {
	Opened     bool   `json:"success"`
	TokenID    string `json:"tokenId"`
	Timestamp  int64  `json:"timestamp,omitempty"`
	CooldownMs int64  `json:"cooldownMs,omitempty"`
	Reason     Reason `json:"reason,omitempty"`
	TabID      string `json:"tabId,omitempty"`
}

// TabHost is the browser capability the coordinator drives.
type TabHost interface {
	TabURLs(ctx context.Context) ([]string, error)
	CreateBackgroundTab(ctx context.Context, url string) (string, error)
}

type SettingsSource interface {
	Current() settings.Settings
}

// Notifier plays the open sound. Notify must not block for long; the
// coordinator calls it on its own goroutine.
type Notifier interface {
	Notify(ctx context.Context)
}

type Publisher interface {
	Publish(evt events.Event)
}

type Config struct {
	Settings      SettingsSource
	Host          TabHost
	Notifier      Notifier
	Events        Publisher
	CreateTimeout time.Duration
	Now           func() time.Time
}

type tabHandle struct {
	key      Key
	url      string
	openedAt int64
}

// orphanTab remembers the URL of a create that failed; the browser may still
// have opened it.
type orphanTab struct {
	key Key
	at  int64
}

type Coordinator struct {
	settings      SettingsSource
	host          TabHost
	notifier      Notifier
	events        Publisher
	createTimeout time.Duration
	now           func() time.Time

	mu        sync.Mutex
	cooldowns map[Key]int64
	tabs      map[string]tabHandle
	urlIndex  map[string]Key
	pending   map[Key]struct{}
	orphans   map[string]orphanTab
	creating  int
}

func New(cfg Config) *Coordinator {
	c := &Coordinator{
		settings:      cfg.Settings,
		host:          cfg.Host,
		notifier:      cfg.Notifier,
		events:        cfg.Events,
		createTimeout: cfg.CreateTimeout,
		now:           cfg.Now,
		cooldowns:     make(map[Key]int64),
		tabs:          make(map[string]tabHandle),
		urlIndex:      make(map[string]Key),
		pending:       make(map[Key]struct{}),
		orphans:       make(map[string]orphanTab),
	}
	if c.createTimeout <= 0 {
		c.createTimeout = DefaultCreateTimeout
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

func (c *Coordinator) nowMs() int64 {
	return c.now().UnixMilli()
}
