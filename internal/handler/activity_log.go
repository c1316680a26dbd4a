package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"trfc-backend/internal/domain"
	"trfc-backend/internal/register"
	"trfc-backend/internal/repository"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type ActivityLister interface {
	ListForOrg(ctx context.Context, orgID uuid.UUID, f repository.ActivityLogFilter) ([]domain.ActivityLog, error)
}

type ActivityLogHandler struct {
	Engine *register.Engine
	Repo   ActivityLister
}

func (h ActivityLogHandler) RegisterRoutes(r chi.Router) {
	r.Get("/logs", h.list)
}

func (h ActivityLogHandler) list(w http.ResponseWriter, r *http.Request) {
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
	filter := repository.ActivityLogFilter{
		EntityType: r.URL.Query().Get("entityType"),
		Limit:      100,
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			filter.Limit = parsed
		}
	}
	shopID, err := parseUUIDQuery(r, "shopId")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid shopId")
		return
	}
	filter.ShopID = shopID

	items, err := h.Repo.ListForOrg(r.Context(), orgID, filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := make([]map[string]any, 0, len(items))
	for _, l := range items {
		resp = append(resp, map[string]any{
			"id":         l.ID,
			"userName":   l.UserName,
			"userRole":   l.UserRole,
			"action":     string(l.Action),
			"entityType": l.EntityType,
			"entityId":   l.EntityID,
			"entityName": l.EntityName,
			"shopId":     l.ShopID,
			"metadata":   l.Metadata,
			"timestamp":  l.LoggedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
