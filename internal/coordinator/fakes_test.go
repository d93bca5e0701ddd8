package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/autofilter/autofilter/internal/events"
	"github.com/autofilter/autofilter/internal/settings"
)

type fakeHost struct {
	mu          sync.Mutex
	external    []string
	created     map[string]string
	next        int
	gate        chan struct{}
	listErr     error
	createErr   error
	createCalls int
	hang        bool
	// lateTab makes a hung create still leave its tab behind.
	lateTab bool
}

func newFakeHost() *fakeHost {
	return &fakeHost{created: make(map[string]string)}
}

func (h *fakeHost) TabURLs(ctx context.Context) ([]string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.listErr != nil {
		return nil, h.listErr
	}
	urls := append([]string(nil), h.external...)
	for _, u := range h.created {
		urls = append(urls, u)
	}
	return urls, nil
}

func (h *fakeHost) CreateBackgroundTab(ctx context.Context, url string) (string, error) {
	h.mu.Lock()
	h.createCalls++
	gate, hang, late := h.gate, h.hang, h.lateTab
	h.mu.Unlock()

	if hang {
		<-ctx.Done()
		if late {
			h.mu.Lock()
			h.next++
			h.created[fmt.Sprintf("T%d", h.next)] = url
			h.mu.Unlock()
		}
		return "", ctx.Err()
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.createErr != nil {
		return "", h.createErr
	}
	h.next++
	id := fmt.Sprintf("T%d", h.next)
	h.created[id] = url
	return id, nil
}

func (h *fakeHost) closeTab(id string) {
	h.mu.Lock()
	delete(h.created, id)
	h.mu.Unlock()
}

func (h *fakeHost) calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.createCalls
}

func (h *fakeHost) liveTabs() []LiveTab {
	h.mu.Lock()
	defer h.mu.Unlock()
	tabs := make([]LiveTab, 0, len(h.created))
	for id, u := range h.created {
		tabs = append(tabs, LiveTab{ID: id, URL: u})
	}
	sort.Slice(tabs, func(i, j int) bool { return tabs[i].ID < tabs[j].ID })
	return tabs
}

func (h *fakeHost) tabFor(url string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, u := range h.created {
		if u == url {
			return id
		}
	}
	return ""
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type countingNotifier struct {
	mu sync.Mutex
	n  int
}

func (n *countingNotifier) Notify(context.Context) {
	n.mu.Lock()
	n.n++
	n.mu.Unlock()
}

func (n *countingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.n
}

type recordingPublisher struct {
	mu  sync.Mutex
	evs []events.Event
}

func (p *recordingPublisher) Publish(e events.Event) {
	p.mu.Lock()
	p.evs = append(p.evs, e)
	p.mu.Unlock()
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.evs))
	for i, e := range p.evs {
		out[i] = e.Type
	}
	return out
}

var errQuota = errors.New("tab quota exceeded")

type harness struct {
	c      *Coordinator
	host   *fakeHost
	clock  *fakeClock
	store  *settings.Store
	notify *countingNotifier
	pub    *recordingPublisher
}

func newHarness(cooldownMinutes, maxTabs int) *harness {
	st := settings.Defaults()
	st.CooldownMinutes = cooldownMinutes
	st.MaxTabs = maxTabs

	h := &harness{
		host:   newFakeHost(),
		clock:  newFakeClock(),
		store:  settings.NewMemory(st),
		notify: &countingNotifier{},
		pub:    &recordingPublisher{},
	}
	h.c = New(Config{
		Settings:      h.store,
		Host:          h.host,
		Notifier:      h.notify,
		Events:        h.pub,
		CreateTimeout: time.Second,
		Now:           h.clock.Now,
	})
	return h
}
