package handler

import (
	"context"
	"net/http"

	"trfc-backend/internal/domain"
	"trfc-backend/internal/register"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type ShopLister interface {
	ListActive(ctx context.Context, orgID uuid.UUID) ([]domain.Shop, error)
}

// ShopHandler feeds the shop selector of the register sheet.
type ShopHandler struct {
	Engine *register.Engine
	Shops  ShopLister
}

func (h ShopHandler) RegisterRoutes(r chi.Router) {
	r.Get("/shops", h.list)
}

func (h ShopHandler) list(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	orgID, err := h.Engine.OrgOf(r.Context(), caller)
	if err != nil {
		writeRegisterError(w, err)
		return
	}
	items, err := h.Shops.ListActive(r.Context(), orgID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := make([]map[string]any, 0, len(items))
	for _, s := range items {
		resp = append(resp, map[string]any{
			"id":   s.ID,
			"code": s.Code,
			"name": s.Name,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
