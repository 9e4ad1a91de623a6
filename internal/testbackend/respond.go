package testbackend

import (
	"encoding/json"
	"net/http"
)

// writeJSON writes v with the given status and no-cache headers.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeDetail writes the {"detail": "..."} error body the backend uses for
// handled errors.
func writeDetail(w http.ResponseWriter, code int, detail string) {
	writeJSON(w, code, map[string]string{"detail": detail})
}

// writeDetailList writes the request-validation error shape:
// {"detail": [{"msg": "..."}, ...]}.
func writeDetailList(w http.ResponseWriter, code int, msgs ...string) {
	items := make([]map[string]string, 0, len(msgs))
	for _, m := range msgs {
		items = append(items, map[string]string{"msg": m, "type": "value_error"})
	}
	writeJSON(w, code, map[string]any{"detail": items})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeDetailList(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}
