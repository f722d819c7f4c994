package middleware

import (
	"encoding/json"
	"net/http"
)

// writeError keeps middleware rejections in the same {"error": ...} shape as
// the handlers.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
