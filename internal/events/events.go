// Package events fans coordinator notifications out to presenters.
package events

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

const (
	TokenOpened     = "tokenOpened"
	TokenTabClosed  = "tokenTabClosed"
	SettingsChanged = "settingsChanged"
)

type Event struct {
	Type       string `json:"type"`
	TokenID    string `json:"tokenId,omitempty"`
	Chain      string `json:"chain,omitempty"`
	TabID      string `json:"tabId,omitempty"`
	URL        string `json:"url,omitempty"`
	Timestamp  int64  `json:"timestamp"`
	CooldownMs int64  `json:"cooldownMs,omitempty"`
}

type HubConfig struct {
	BufferSize int
	History    int
}

// Hub delivers events to subscribers without ever blocking the publisher.
// Slow subscribers drop events; they resync from the query routes.
type Hub struct {
	cfg    HubConfig
	mu     sync.RWMutex
	subs   map[chan Event]struct{}
	recent []Event
}

func NewHub(cfg *HubConfig) *Hub {
	c := HubConfig{BufferSize: 64, History: 50}
	if cfg != nil {
		if cfg.BufferSize > 0 {
			c.BufferSize = cfg.BufferSize
		}
		if cfg.History > 0 {
			c.History = cfg.History
		}
	}
	return &Hub{cfg: c, subs: make(map[chan Event]struct{})}
}

func (h *Hub) Publish(evt Event) {
	if evt.Timestamp == 0 {
		evt.Timestamp = time.Now().UnixMilli()
	}

	h.mu.Lock()
	h.recent = append(h.recent, evt)
	if len(h.recent) > h.cfg.History {
		h.recent = h.recent[len(h.recent)-h.cfg.History:]
	}
	chans := make([]chan Event, 0, len(h.subs))
	for ch := range h.subs {
		chans = append(chans, ch)
	}
	h.mu.Unlock()

	for _, ch := range chans {
		select {
		case ch <- evt:
		default:
		}
	}
}

// Subscribe registers a new listener. The returned func unregisters it.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, h.cfg.BufferSize)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
		})
	}
}

func (h *Hub) Recent() []Event {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Event, len(h.recent))
	copy(out, h.recent)
	return out
}

func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// HandleSSE streams events as text/event-stream for clients that cannot
// speak WebSocket.
func (h *Hub) HandleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, unsubscribe := h.Subscribe()
	defer unsubscribe()

	data, _ := json.Marshal(h.Recent())
	_, _ = fmt.Fprintf(w, "event: init\ndata: %s\n\n", data)
	flusher.Flush()

	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case evt := <-ch:
			data, _ := json.Marshal(evt)
			_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, data)
			flusher.Flush()
		case <-keepalive.C:
			_, _ = fmt.Fprintf(w, ": keepalive\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
