package status

import (
	"encoding/json"
	"net/http"
)

// errorBody is the JSON shape of every non-2xx response.
type errorBody struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	errCodeNotFound       = "not_found"
	errCodeMethodNotAllow = "method_not_allowed"
	errCodeInternal       = "internal_error"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // client may have gone away
		json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Status: status, Code: code, Message: message})
}
