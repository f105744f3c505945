package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tiffinbox/api/internal/platform/httpx"
	"github.com/tiffinbox/api/internal/services"
)

// MenuHandlers serves the public dish catalog.
type MenuHandlers struct {
	menu services.MenuService
}

// NewMenuHandlers constructs MenuHandlers.
func NewMenuHandlers(menu services.MenuService) *MenuHandlers {
	return &MenuHandlers{menu: menu}
}

// Routes registers the /menu endpoints.
func (h *MenuHandlers) Routes(r chi.Router) {
	r.Get("/", h.listMenu)
	r.Get("/search", h.searchMenu)
	r.Get("/{itemID}", h.getMenuItem)
}

func (h *MenuHandlers) listMenu(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.menu == nil {
		writeUnavailable(ctx, w, "menu")
		return
	}

	query := r.URL.Query()
	filter := services.MenuFilter{Category: strings.TrimSpace(query.Get("category"))}
	if raw := strings.TrimSpace(query.Get("available")); raw != "" {
		available, err := strconv.ParseBool(raw)
		if err != nil {
			writeBadRequest(ctx, w, "available must be a boolean")
			return
		}
		filter.AvailableOnly = available
	}

	items, err := h.menu.List(ctx, filter)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeMenuItems(w, items)
}

func (h *MenuHandlers) searchMenu(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.menu == nil {
		writeUnavailable(ctx, w, "menu")
		return
	}
	items, err := h.menu.Search(ctx, r.URL.Query().Get("name"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeMenuItems(w, items)
}

func (h *MenuHandlers) getMenuItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.menu == nil {
		writeUnavailable(ctx, w, "menu")
		return
	}
	itemID, ok := pathID(w, r, "itemID")
	if !ok {
		return
	}
	item, err := h.menu.Get(ctx, itemID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildMenuItemPayload(item))
}

func writeMenuItems(w http.ResponseWriter, items []services.MenuItem) {
	payload := make([]menuItemPayload, 0, len(items))
	for _, item := range items {
		payload = append(payload, buildMenuItemPayload(item))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": payload})
}
