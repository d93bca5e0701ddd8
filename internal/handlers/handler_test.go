package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autofilter/autofilter/internal/chain"
	"github.com/autofilter/autofilter/internal/coordinator"
	"github.com/autofilter/autofilter/internal/favorites"
)

const solMint = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m), w.Body.String())
	return m
}

func routes(env *testEnv) http.Handler {
	mux := http.NewServeMux()
	env.h.RegisterRoutes(mux)
	return mux
}

func TestHelp(t *testing.T) {
	w := do(t, routes(newTestEnv()), "GET", "/help", "")
	require.Equal(t, 200, w.Code)
	assert.Contains(t, w.Body.String(), "/tokens/open")
}

func TestOpenToken(t *testing.T) {
	env := newTestEnv()
	w := do(t, routes(env), "POST", "/tokens/open", `{"tokenId":"`+solMint+`","chain":"solana"}`)
	require.Equal(t, 200, w.Code)

	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, solMint, body["tokenId"])
	assert.EqualValues(t, 900000, body["cooldownMs"])

	require.Len(t, env.coord.calls, 1)
	assert.Equal(t, chain.Chain{Site: chain.DexScreener, ID: "solana"}, env.coord.calls[0].Chain)
}

func TestOpenTokenRefusalIsNotAnError(t *testing.T) {
	env := newTestEnv()
	env.coord.result = coordinator.OpenResult{Reason: coordinator.ReasonCooldown}
	w := do(t, routes(env), "POST", "/tokens/open", `{"tokenId":"abc","chain":"gmgn:sol"}`)
	require.Equal(t, 200, w.Code)

	body := decode(t, w)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "cooldown", body["reason"])
	assert.Equal(t, chain.GMGN, env.coord.calls[0].Chain.Site)
}

func TestOpenTokenBadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
		code string
	}{
		{"not json", `{`, "invalid_body"},
		{"missing token", `{"chain":"solana"}`, "missing_token"},
		{"blank token", `{"tokenId":"   ","chain":"solana"}`, "missing_token"},
		{"missing chain", `{"tokenId":"abc"}`, "unsupported_chain"},
		{"unknown chain", `{"tokenId":"abc","chain":"dogechain"}`, "unsupported_chain"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv()
			w := do(t, routes(env), "POST", "/tokens/open", tt.body)
			require.Equal(t, 400, w.Code)
			assert.Equal(t, tt.code, decode(t, w)["code"])
			assert.Empty(t, env.coord.calls)
		})
	}
}

func TestCheckCooldown(t *testing.T) {
	env := newTestEnv()
	sol := chain.Chain{Site: chain.DexScreener, ID: "solana"}
	env.coord.cooling[coordinator.Key{Chain: sol, TokenID: "TOKA"}] = true
	h := routes(env)

	w := do(t, h, "GET", "/tokens/cooldown?tokenId=TOKA&chain=solana", "")
	require.Equal(t, 200, w.Code)
	assert.Equal(t, true, decode(t, w)["isInCooldown"])

	w = do(t, h, "GET", "/tokens/cooldown?tokenId=TOKA&chain=base", "")
	assert.Equal(t, false, decode(t, w)["isInCooldown"])

	w = do(t, h, "GET", "/tokens/cooldown?tokenId=TOKA", "")
	assert.Equal(t, true, decode(t, w)["isInCooldown"], "no chain matches any chain")

	w = do(t, h, "GET", "/tokens/cooldown", "")
	assert.Equal(t, 400, w.Code)

	w = do(t, h, "GET", "/tokens/cooldown?tokenId=TOKA&chain=nope", "")
	assert.Equal(t, 400, w.Code)
}

func TestStatsAndTabCount(t *testing.T) {
	env := newTestEnv()
	env.coord.open = 3
	env.coord.tokens = []coordinator.OpenedToken{{TokenID: "TOKA", Chain: "dexscreener:solana", Timestamp: 1, CooldownMs: 2}}
	h := routes(env)

	w := do(t, h, "GET", "/stats", "")
	require.Equal(t, 200, w.Code)
	stats := decode(t, w)
	assert.EqualValues(t, 3, stats["tabCount"])
	assert.EqualValues(t, 15, stats["settings"].(map[string]any)["cooldownMinutes"])

	w = do(t, h, "GET", "/tabs/count", "")
	assert.EqualValues(t, 3, decode(t, w)["openTabCount"])

	w = do(t, h, "GET", "/tokens", "")
	tokens := decode(t, w)["tokens"].([]any)
	require.Len(t, tokens, 1)
	assert.Equal(t, "TOKA", tokens[0].(map[string]any)["tokenId"])
}

func TestSettingsPutMergesPatch(t *testing.T) {
	env := newTestEnv()
	h := routes(env)

	w := do(t, h, "PUT", "/settings", `{"cooldownMinutes":5}`)
	require.Equal(t, 200, w.Code, w.Body.String())
	cur := env.store.Current()
	assert.Equal(t, 5, cur.CooldownMinutes)
	assert.Equal(t, 10, cur.MaxTabs, "omitted fields keep their value")
	assert.True(t, cur.SoundEnabled)

	w = do(t, h, "PUT", "/settings", `{"maxTabsOpen":4}`)
	require.Equal(t, 200, w.Code)
	assert.Equal(t, 4, env.store.Current().MaxTabs)

	w = do(t, h, "PUT", "/settings", `{"filterConfig":{"fiveMin":{"enabled":true,"thresholdGreater":10}}}`)
	require.Equal(t, 200, w.Code, w.Body.String())
	fc := env.store.Current().FilterConfig
	assert.True(t, fc.FiveMin.Enabled)
	require.NotNil(t, fc.FiveMin.ThresholdGreater)
	assert.Equal(t, 10.0, *fc.FiveMin.ThresholdGreater)
	assert.False(t, fc.OneMin.Enabled)
	assert.Equal(t, 5, env.store.Current().CooldownMinutes)
}

func TestSettingsPutRejects(t *testing.T) {
	env := newTestEnv()
	h := routes(env)

	w := do(t, h, "PUT", "/settings", `{"cooldownMinutes":0}`)
	require.Equal(t, 400, w.Code)
	assert.Equal(t, "invalid_settings", decode(t, w)["code"])

	w = do(t, h, "PUT", "/settings", `[1,2]`)
	require.Equal(t, 400, w.Code)
	assert.Equal(t, "invalid_body", decode(t, w)["code"])

	w = do(t, h, "PUT", "/settings", `{"maxTabs":"many"}`)
	require.Equal(t, 400, w.Code)

	assert.Equal(t, 15, env.store.Current().CooldownMinutes)
}

func TestSettingsReset(t *testing.T) {
	env := newTestEnv()
	h := routes(env)
	require.Equal(t, 200, do(t, h, "PUT", "/settings", `{"cooldownMinutes":30,"soundEnabled":false}`).Code)

	w := do(t, h, "POST", "/settings/reset", "")
	require.Equal(t, 200, w.Code)
	assert.Equal(t, 15, env.store.Current().CooldownMinutes)
	assert.True(t, env.store.Current().SoundEnabled)

	w = do(t, h, "GET", "/settings", "")
	assert.EqualValues(t, 15, decode(t, w)["cooldownMinutes"])
}

func TestFavoritesFlow(t *testing.T) {
	env := newTestEnv()
	h := routes(env)
	filter := "https://dexscreener.com/new-pairs?minLiq=50000&order=desc"

	w := do(t, h, "POST", "/favorites", `{"filter":"`+filter+`"}`)
	require.Equal(t, 201, w.Code, w.Body.String())
	rec := decode(t, w)
	id := rec["id"].(string)
	assert.Equal(t, "inst_test", rec["userId"])

	w = do(t, h, "POST", "/favorites", `{"filter":"`+filter+`"}`)
	assert.Equal(t, 409, w.Code)

	w = do(t, h, "POST", "/favorites", `{"filter":"https://example.com/?a=1"}`)
	assert.Equal(t, 400, w.Code)
	assert.Equal(t, "invalid_filter", decode(t, w)["code"])

	w = do(t, h, "GET", "/favorites", "")
	require.Equal(t, 200, w.Code)
	list := decode(t, w)
	assert.Len(t, list["favorites"], 1)
	assert.Equal(t, "inst_test", list["userId"])

	w = do(t, h, "POST", "/favorites/"+id+"/open", "")
	require.Equal(t, 200, w.Code, w.Body.String())
	assert.Equal(t, "FAV-TAB", decode(t, w)["tabId"])
	assert.Equal(t, []string{filter}, env.tabs.urls)

	w = do(t, h, "DELETE", "/favorites/"+id, "")
	assert.Equal(t, 200, w.Code)
	w = do(t, h, "DELETE", "/favorites/"+id, "")
	assert.Equal(t, 404, w.Code)

	w = do(t, h, "DELETE", "/favorites/42", "")
	assert.Equal(t, 400, w.Code)
	assert.Equal(t, "invalid_id", decode(t, w)["code"])

	w = do(t, h, "GET", "/favorites", "")
	assert.Equal(t, []any{}, decode(t, w)["favorites"])
}

func TestFavoritesUnavailable(t *testing.T) {
	env := newTestEnv()
	env.h.Favorites = nil
	w := do(t, routes(env), "GET", "/favorites", "")
	assert.Equal(t, 503, w.Code)
}

func TestWriteFavoritesErrorMapsStoreFailures(t *testing.T) {
	w := httptest.NewRecorder()
	writeFavoritesError(w, errors.New("connection refused"))
	assert.Equal(t, 502, w.Code)

	w = httptest.NewRecorder()
	writeFavoritesError(w, favorites.ErrNotFound)
	assert.Equal(t, 404, w.Code)
}

func TestFilterURL(t *testing.T) {
	h := routes(newTestEnv())

	w := do(t, h, "POST", "/filters/url", `{"template":"highLiquidity"}`)
	require.Equal(t, 200, w.Code, w.Body.String())
	assert.Equal(t, "https://dexscreener.com/new-pairs?minLiq=100000&order=desc", decode(t, w)["url"])

	w = do(t, h, "POST", "/filters/url", `{"template":"highLiquidity","filters":{"minLiq":5000,"maxAge":24},"baseUrl":"https://dexscreener.com/solana"}`)
	require.Equal(t, 200, w.Code)
	assert.Equal(t, "https://dexscreener.com/solana?minLiq=5000&maxAge=24&order=desc", decode(t, w)["url"])

	w = do(t, h, "POST", "/filters/url", `{"template":"moonshots"}`)
	assert.Equal(t, 400, w.Code)
	assert.Equal(t, "unknown_template", decode(t, w)["code"])
}

func TestHealth(t *testing.T) {
	env := newTestEnv()
	env.coord.open = 2
	env.h.Config.CdpURL = "ws://127.0.0.1:9222"

	w := do(t, routes(env), "GET", "/health", "")
	require.Equal(t, 200, w.Code)
	body := decode(t, w)
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 2, body["tabs"])
	assert.EqualValues(t, 2, body["tokenTabs"])
	assert.Equal(t, "ws://127.0.0.1:9222", body["cdp"])
}

func TestHealthDisconnected(t *testing.T) {
	env := newTestEnv()
	env.h.Browser = &fakeBrowser{err: errors.New("browser gone")}
	body := decode(t, do(t, routes(env), "GET", "/health", ""))
	assert.Equal(t, "disconnected", body["status"])
	assert.Equal(t, "browser gone", body["error"])

	env.h.Browser = nil
	body = decode(t, do(t, routes(env), "GET", "/health", ""))
	assert.Equal(t, "disconnected", body["status"])
}
