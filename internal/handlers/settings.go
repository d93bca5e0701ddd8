package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/autofilter/autofilter/internal/settings"
	"github.com/autofilter/autofilter/internal/web"
)

func (h *Handlers) HandleGetSettings(w http.ResponseWriter, r *http.Request) {
	web.JSON(w, 200, h.Settings.Current())
}

// HandlePutSettings merges the body onto the current settings. Fields the
// body omits keep their value; maxTabsOpen is accepted for maxTabs.
func (h *Handlers) HandlePutSettings(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, web.MaxBodyBytes))
	if err != nil {
		web.ErrorCode(w, 400, "invalid_body", err.Error(), false, nil)
		return
	}
	if _, err := mergeSettings(h.Settings.Current(), body); err != nil {
		web.ErrorCode(w, 400, "invalid_body", err.Error(), false, nil)
		return
	}

	next, err := h.Settings.Update(func(st *settings.Settings) {
		if merged, err := mergeSettings(*st, body); err == nil {
			*st = merged
		}
	})
	if err != nil {
		if errors.Is(err, settings.ErrInvalid) {
			web.ErrorCode(w, 400, "invalid_settings", err.Error(), false, nil)
			return
		}
		web.Error(w, 500, err)
		return
	}
	web.JSON(w, 200, next)
}

func (h *Handlers) HandleResetSettings(w http.ResponseWriter, r *http.Request) {
	st, err := h.Settings.Reset()
	if err != nil {
		web.Error(w, 500, err)
		return
	}
	web.JSON(w, 200, st)
}

// mergeSettings applies a JSON patch object to cur. The result never shares
// threshold pointers with cur.
func mergeSettings(cur settings.Settings, patch []byte) (settings.Settings, error) {
	var p map[string]any
	if err := json.Unmarshal(patch, &p); err != nil || p == nil {
		return settings.Settings{}, fmt.Errorf("body must be a JSON object")
	}
	if v, ok := p["maxTabsOpen"]; ok {
		if _, has := p["maxTabs"]; !has {
			p["maxTabs"] = v
		}
		delete(p, "maxTabsOpen")
	}

	raw, err := json.Marshal(cur)
	if err != nil {
		return settings.Settings{}, err
	}
	var base map[string]any
	if err := json.Unmarshal(raw, &base); err != nil {
		return settings.Settings{}, err
	}
	deepMerge(base, p)

	raw, err = json.Marshal(base)
	if err != nil {
		return settings.Settings{}, err
	}
	var out settings.Settings
	if err := json.Unmarshal(raw, &out); err != nil {
		return settings.Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	return out, nil
}

func deepMerge(dst, src map[string]any) {
	for k, v := range src {
		sub, ok := v.(map[string]any)
		if cur, isMap := dst[k].(map[string]any); ok && isMap {
			deepMerge(cur, sub)
			continue
		}
		dst[k] = v
	}
}
