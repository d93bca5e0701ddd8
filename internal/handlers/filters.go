package handlers

import (
	"net/http"

	"github.com/autofilter/autofilter/internal/filterurl"
	"github.com/autofilter/autofilter/internal/web"
)

type filterURLRequest struct {
	Template string         `json:"template"`
	Filters  map[string]any `json:"filters"`
	BaseURL  string         `json:"baseUrl"`
}

// HandleFilterURL renders a DexScreener filter URL. Explicit filters
// override the template's values.
func (h *Handlers) HandleFilterURL(w http.ResponseWriter, r *http.Request) {
	var req filterURLRequest
	if err := web.DecodeJSON(r, &req); err != nil {
		web.ErrorCode(w, 400, "invalid_body", err.Error(), false, nil)
		return
	}

	var f filterurl.Filters
	if req.Template != "" {
		t, ok := filterurl.Template(req.Template)
		if !ok {
			web.ErrorCode(w, 400, "unknown_template", "unknown template "+req.Template, false,
				map[string]any{"templates": filterurl.TemplateNames()})
			return
		}
		f = t
	}
	extra, err := filterurl.FromValues(req.Filters)
	if err != nil {
		web.ErrorCode(w, 400, "invalid_filters", err.Error(), false, nil)
		return
	}
	f = f.Merge(extra)

	web.JSON(w, 200, map[string]string{"url": filterurl.Build(f, req.BaseURL)})
}
