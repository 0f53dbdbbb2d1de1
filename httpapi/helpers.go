// Package httpapi is the thin HTTP façade over engine.Engine. It is kept
// minimal and exists only because, like the teacher's handlers package,
// main.go needs something concrete to start — the façade itself carries no
// business logic.
//
// Grounded on the teacher's handlers/helpers.go (writeJsonAndRespond,
// writeErrorJsonAndLogIt) and handlers/router.go (chi.Mux + middleware.Logger
// + middleware.Recoverer), generalized to the engine's operation set and to
// corvuserr's kind-to-status mapping.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/corvus-paas/controlplane/corvuserr"
)

// writeJSON serializes payload as the response body with the given status
// code, falling back to a plain-text 500 if encoding itself fails.
func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")

	data, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, `{"error":"internal encoding error"}`, http.StatusInternalServerError)
		return
	}

	w.WriteHeader(statusCode)
	w.Write(data) //nolint:errcheck
}

// writeError maps err onto a status code via its corvuserr.Kind (defaulting
// to 500 for anything untyped) and writes a consistent JSON error body,
// logging server-side so operators still see the underlying cause.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := http.StatusInternalServerError
	message := "internal error"

	var typed *corvuserr.Error
	if errors.As(err, &typed) {
		message = typed.Message
		switch typed.Kind {
		case corvuserr.KindNotFound:
			status = http.StatusNotFound
		case corvuserr.KindForbidden:
			status = http.StatusForbidden
		case corvuserr.KindConflict:
			status = http.StatusConflict
		case corvuserr.KindBadRequest:
			status = http.StatusBadRequest
		case corvuserr.KindBuildFailure:
			status = http.StatusUnprocessableEntity
		case corvuserr.KindDaemonError:
			status = http.StatusBadGateway
		}
	}

	logger.Error("request error", "status", status, "error", err)
	writeJSON(w, status, map[string]string{"error": message})
}

func decodeJSON(r *http.Request, dest any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dest)
}
