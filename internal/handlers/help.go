package handlers

import (
	"net/http"

	"github.com/autofilter/autofilter/internal/web"
)

func (h *Handlers) HandleHelp(wr http.ResponseWriter, _ *http.Request) {
	web.JSON(wr, 200, map[string]any{
		"name":    "autofilter",
		"version": h.Version,
		"endpoints": map[string]any{
			"GET /health":                "browser connection and tab counts",
			"GET /metrics":               "Prometheus metrics",
			"GET /help":                  "this help payload",
			"POST /tokens/open":          "open a token tab: {tokenId, chain}",
			"GET /tokens":                "tokens in the cooldown table",
			"GET /tokens/cooldown":       "cooldown check: ?tokenId=&chain=",
			"GET /stats":                 "open token tabs, in-flight creations, settings",
			"GET /tabs/count":            "open token tab count",
			"GET /events":                "WebSocket stream of tokenOpened/tokenTabClosed/settingsChanged",
			"GET /events/sse":            "the same stream as text/event-stream",
			"GET|PUT /settings":          "read or patch settings",
			"POST /settings/reset":       "restore default settings",
			"GET|POST /favorites":        "list or save DexScreener filter URLs",
			"DELETE /favorites/{id}":     "remove a favorite",
			"POST /favorites/{id}/open":  "open a favorite in a new tab",
			"POST /filters/url":          "build a filter URL: {template?, filters, baseUrl?}",
		},
		"notes": []string{
			"Use Authorization: Bearer <token> when auth is enabled.",
			"A refused open returns 200 with success=false and a reason.",
		},
	})
}
