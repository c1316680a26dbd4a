package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"trfc-backend/internal/register"
	"trfc-backend/internal/server/authctx"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// decodeJSON reads a JSON body into dst and runs its validate tags. The
// returned message is safe to show to the client.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return errors.New("invalid payload")
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			parts := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
			}
			return errors.New(strings.Join(parts, "; "))
		}
		return err
	}
	return nil
}

// callerFrom turns the authenticated request user into an engine caller.
func callerFrom(r *http.Request) (register.Caller, bool) {
	u := authctx.FromContext(r.Context())
	if u == nil {
		return register.Caller{}, false
	}
	return register.Caller{UserID: u.ID, Email: u.Email}, true
}
