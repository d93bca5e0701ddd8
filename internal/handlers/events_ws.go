package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/autofilter/autofilter/internal/web"
)

const wsPingInterval = 10 * time.Second

// HandleEvents upgrades to a WebSocket and streams coordinator events as
// JSON text frames until the client goes away.
func (h *Handlers) HandleEvents(w http.ResponseWriter, r *http.Request) {
	if h.Events == nil {
		web.ErrorCode(w, 503, "events_unavailable", "event hub not running", true, nil)
		return
	}

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		slog.Error("ws upgrade failed", "err", err)
		return
	}
	defer func() { _ = conn.Close() }()

	ch, unsubscribe := h.Events.Subscribe()
	defer unsubscribe()

	var once sync.Once
	done := make(chan struct{})
	go func() {
		for {
			if _, _, err := wsutil.ReadClientData(conn); err != nil {
				once.Do(func() { close(done) })
				return
			}
		}
	}()

	slog.Debug("event stream opened", "remote", r.RemoteAddr)
	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case evt := <-ch:
			data, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			if err := wsutil.WriteServerText(conn, data); err != nil {
				return
			}
		case <-ping.C:
			if err := wsutil.WriteServerMessage(conn, ws.OpPing, nil); err != nil {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}
