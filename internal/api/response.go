package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/taskerhq/taskerchat/internal/models"
)

// writeJSONResponse writes an APIResponse envelope. On encoding failure it
// falls back to a pre-marshaled error body so the client never gets half a
// response.
func writeJSONResponse(w http.ResponseWriter, statusCode int, resp models.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("Failed to encode API response", "error", err)
		_, _ = w.Write([]byte(`{"status":"error","message":"internal encoding error"}`))
	}
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSONResponse(w, statusCode, models.Error(message))
}
