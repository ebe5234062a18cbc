package handlers

import (
	"net/http"

	"github.com/linkflow-ai/notifyhub/internal/platform/response"
)

// Info reports gateway status
func Info(hub *Hub, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response.OK(w, map[string]interface{}{
			"service": "notification-gateway",
			"version": version,
			"status":  "running",
			"clients": hub.ClientCount(),
		})
	}
}
