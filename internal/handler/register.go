package handler

import (
	"log/slog"
	"net/http"
	"time"

	"trfc-backend/internal/register"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// RegisterHandler serves the daily register sheet.
type RegisterHandler struct {
	Engine *register.Engine
	Logger *slog.Logger
	Now    func() time.Time
}

func (h RegisterHandler) RegisterRoutes(r chi.Router) {
	r.Get("/register", h.get)
	r.Post("/register/edits", h.applyEdits)
	r.Put("/register", h.save)
	r.Get("/register/export", h.export)
	r.Get("/expenses/suggestions", h.suggestions)
}

func (h RegisterHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h RegisterHandler) get(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	shopID, ok := shopFromQuery(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "shopId is required")
		return
	}
	date, err := parseDateQuery(r, "date")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date")
		return
	}
	if date == nil {
		today := register.NewDate(h.now())
		date = &today
	}

	day, err := h.Engine.Fetch(r.Context(), caller, shopID, *date)
	if err != nil {
		writeRegisterError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, day)
}

type editsRequest struct {
	Day   register.Day    `json:"day"`
	Edits []register.Edit `json:"edits" validate:"required,min=1,dive"`
}

// applyEdits runs edits against the posted day and returns the recomputed
// day. Nothing is persisted.
func (h RegisterHandler) applyEdits(w http.ResponseWriter, r *http.Request) {
	if _, ok := callerFrom(r); !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req editsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	day := withDefaults(req.Day.Clone())
	day.Recompute()
	var added []string
	for i, e := range req.Edits {
		id, err := day.Apply(e)
		if err != nil {
			h.log().Debug("register edit rejected", "index", i, "kind", e.Kind, "err", err)
			writeRegisterError(w, err)
			return
		}
		if id != "" {
			added = append(added, id)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"day":        day,
		"addedIds":   added,
		"editsCount": len(req.Edits),
	})
}

func (h RegisterHandler) save(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var day register.Day
	if err := decodeJSON(r, &day); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.Engine.Save(r.Context(), caller, day)
	if err != nil {
		writeRegisterError(w, err)
		return
	}
	warnings := make([]map[string]string, 0, len(res.Warnings))
	for _, warn := range res.Warnings {
		warnings = append(warnings, map[string]string{
			"kind":    register.WarningKind(warn),
			"message": warn.Error(),
		})
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeMessage(w, status, res.Message, map[string]any{
		"logId":    res.LogID,
		"created":  res.Created,
		"warnings": warnings,
		"day":      res.Day,
	})
}

func (h RegisterHandler) suggestions(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	items, err := h.Engine.ExpenseSuggestions(r.Context(), caller)
	if err != nil {
		writeRegisterError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h RegisterHandler) log() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// withDefaults fills the parts of a posted day the client left out.
func withDefaults(day register.Day) register.Day {
	base := register.NewDay(day.ShopID, day.LogDate)
	if len(day.Sales) == 0 {
		day.Sales = base.Sales
	}
	if day.CashExpenses == nil {
		day.CashExpenses = base.CashExpenses
	}
	if day.OnlineExpenses == nil {
		day.OnlineExpenses = base.OnlineExpenses
	}
	if day.Status == "" {
		day.Status = base.Status
	}
	return day
}

func shopFromQuery(r *http.Request) (uuid.UUID, bool) {
	id, err := parseUUIDQuery(r, "shopId")
	if err != nil || id == nil {
		return uuid.Nil, false
	}
	return *id, true
}
