package handlers

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes configures all HTTP routes and handlers
func SetupRoutes(deps Dependencies) http.Handler {
	handler := http.NewServeMux()

	handler.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			deps.Logger.Warn("Failed to write health response", map[string]interface{}{
				"error": err.Error(),
			})
		}
	})

	// Prometheus metrics endpoint
	handler.Handle("/metrics", promhttp.Handler())

	groupsHandler := NewGroupsHandler(deps)
	handler.Handle("/api/groups", groupsHandler)
	handler.Handle("/api/groups/", groupsHandler)

	channelsHandler := NewChannelsHandler(deps)
	handler.Handle("/api/channels", channelsHandler)
	handler.Handle("/api/channels/", channelsHandler)

	return handler
}
