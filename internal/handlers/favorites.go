package handlers

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/autofilter/autofilter/internal/favorites"
	"github.com/autofilter/autofilter/internal/web"
)

func (h *Handlers) favoritesReady(w http.ResponseWriter) bool {
	if h.Favorites == nil {
		web.ErrorCode(w, 503, "favorites_unavailable", "favorites store not configured", true, nil)
		return false
	}
	return true
}

func (h *Handlers) HandleListFavorites(w http.ResponseWriter, r *http.Request) {
	if !h.favoritesReady(w) {
		return
	}
	recs, err := h.Favorites.List(r.Context())
	if err != nil {
		web.ErrorCode(w, 502, "store_error", err.Error(), true, nil)
		return
	}
	if recs == nil {
		recs = []favorites.Record{}
	}
	web.JSON(w, 200, map[string]any{"favorites": recs, "userId": h.Favorites.UserID()})
}

func (h *Handlers) HandleAddFavorite(w http.ResponseWriter, r *http.Request) {
	if !h.favoritesReady(w) {
		return
	}
	var req struct {
		Filter string `json:"filter"`
	}
	if err := web.DecodeJSON(r, &req); err != nil {
		web.ErrorCode(w, 400, "invalid_body", err.Error(), false, nil)
		return
	}
	rec, err := h.Favorites.Add(r.Context(), req.Filter)
	if err != nil {
		writeFavoritesError(w, err)
		return
	}
	web.JSON(w, 201, rec)
}

func (h *Handlers) HandleDeleteFavorite(w http.ResponseWriter, r *http.Request) {
	if !h.favoritesReady(w) {
		return
	}
	id, ok := favoriteID(w, r)
	if !ok {
		return
	}
	if err := h.Favorites.Delete(r.Context(), id); err != nil {
		writeFavoritesError(w, err)
		return
	}
	web.JSON(w, 200, map[string]any{"deleted": id})
}

func (h *Handlers) HandleOpenFavorite(w http.ResponseWriter, r *http.Request) {
	if !h.favoritesReady(w) {
		return
	}
	id, ok := favoriteID(w, r)
	if !ok {
		return
	}
	rec, tabID, err := h.Favorites.Open(r.Context(), id)
	if err != nil {
		writeFavoritesError(w, err)
		return
	}
	web.JSON(w, 200, map[string]any{"id": rec.ID, "filter": rec.Filter, "tabId": tabID})
}

func favoriteID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		web.ErrorCode(w, 400, "invalid_id", "favorite id must be a UUID", false, nil)
		return uuid.Nil, false
	}
	return id, true
}

func writeFavoritesError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, favorites.ErrInvalidURL):
		web.ErrorCode(w, 400, "invalid_filter", err.Error(), false, nil)
	case errors.Is(err, favorites.ErrDuplicate):
		web.ErrorCode(w, 409, "duplicate", err.Error(), false, nil)
	case errors.Is(err, favorites.ErrNotFound):
		web.ErrorCode(w, 404, "not_found", err.Error(), false, nil)
	default:
		web.ErrorCode(w, 502, "store_error", err.Error(), true, nil)
	}
}
