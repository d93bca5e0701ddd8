package handlers

import (
	"net/http"
	"strings"

	"github.com/autofilter/autofilter/internal/chain"
	"github.com/autofilter/autofilter/internal/coordinator"
	"github.com/autofilter/autofilter/internal/web"
)

type openRequest struct {
	TokenID string `json:"tokenId"`
	Chain   string `json:"chain"`
}

// HandleOpenToken asks the coordinator to open a token tab. Refusals are
// normal outcomes and return 200 with success=false.
func (h *Handlers) HandleOpenToken(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if err := web.DecodeJSON(r, &req); err != nil {
		web.ErrorCode(w, 400, "invalid_body", err.Error(), false, nil)
		return
	}
	req.TokenID = strings.TrimSpace(req.TokenID)
	if req.TokenID == "" {
		web.ErrorCode(w, 400, "missing_token", "tokenId is required", false, nil)
		return
	}
	ch, err := chain.Parse(req.Chain)
	if err != nil {
		web.ErrorCode(w, 400, "unsupported_chain", err.Error(), false, map[string]any{"chain": req.Chain})
		return
	}

	web.JSON(w, 200, h.Coordinator.TryOpen(r.Context(), req.TokenID, ch))
}

func (h *Handlers) HandleOpenedTokens(w http.ResponseWriter, r *http.Request) {
	web.JSON(w, 200, map[string]any{"tokens": h.Coordinator.OpenedTokens()})
}

// HandleCheckCooldown answers for one token. Without a chain the token
// matches on any chain.
func (h *Handlers) HandleCheckCooldown(w http.ResponseWriter, r *http.Request) {
	tokenID := strings.TrimSpace(r.URL.Query().Get("tokenId"))
	if tokenID == "" {
		web.ErrorCode(w, 400, "missing_token", "tokenId is required", false, nil)
		return
	}
	key := coordinator.Key{TokenID: tokenID}
	if c := r.URL.Query().Get("chain"); c != "" {
		ch, err := chain.Parse(c)
		if err != nil {
			web.ErrorCode(w, 400, "unsupported_chain", err.Error(), false, map[string]any{"chain": c})
			return
		}
		key.Chain = ch
	}
	web.JSON(w, 200, map[string]any{
		"isInCooldown": h.Coordinator.CheckCooldown(key),
		"tokenId":      tokenID,
	})
}

func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	web.JSON(w, 200, h.Coordinator.Stats())
}

func (h *Handlers) HandleTabCount(w http.ResponseWriter, r *http.Request) {
	web.JSON(w, 200, map[string]int{"openTabCount": h.Coordinator.OpenTabCount()})
}
