package handler

import (
	"net/http"

	"trfc-backend/internal/register"

	"github.com/google/uuid"
)

func parseDateQuery(r *http.Request, key string) (*register.Date, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return nil, nil
	}
	parsed, err := register.ParseDate(value)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func parseUUIDQuery(r *http.Request, key string) (*uuid.UUID, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return nil, nil
	}
	id, err := uuid.Parse(value)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
