package handlers

import (
	"net/http"

	"github.com/autofilter/autofilter/internal/web"
)

func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":    "ok",
		"version":   h.Version,
		"tokenTabs": h.Coordinator.OpenTabCount(),
	}
	if h.Browser == nil {
		resp["status"] = "disconnected"
		web.JSON(w, 200, resp)
		return
	}
	tabs, err := h.Browser.ListTabs(r.Context())
	if err != nil {
		resp["status"] = "disconnected"
		resp["error"] = err.Error()
		web.JSON(w, 200, resp)
		return
	}
	resp["tabs"] = len(tabs)
	if h.Config != nil && h.Config.CdpURL != "" {
		resp["cdp"] = h.Config.CdpURL
	}
	web.JSON(w, 200, resp)
}
