package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/example/lifeline/internal/apperr"
)

type errorBody struct {
	Error *apperr.Error `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// writeError maps the taxonomy to a status plus a stable machine code.
// Anything outside the taxonomy is logged and reported as a bare 500.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var e *apperr.Error
	if !errors.As(err, &e) {
		s.logger.Error("internal error", "error", err, "path", r.URL.Path)
		e = apperr.New(apperr.CodeInternal, "internal error")
	}
	s.writeJSON(w, apperr.HTTPStatus(err), errorBody{Error: e})
}

func invalidPointErr() error {
	return apperr.Validation("invalid point", map[string]string{
		"location": "longitude must be in [-180,180], latitude in [-90,90]",
	})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, r, apperr.Validation("malformed JSON body", nil))
		return false
	}
	return true
}
