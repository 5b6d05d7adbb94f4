package handlers

import (
	"context"
	"encoding/json"
	"net/http"
)

// StatsFunc produces the /stats payload.
type StatsFunc func(ctx context.Context) (any, error)

// StatsHandler serves scheduler statistics from the given producer.
func StatsHandler(stats StatsFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		payload, err := stats(r.Context())
		if err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]any{
					"code":    "STATS_UNAVAILABLE",
					"message": err.Error(),
				},
			})
			return
		}

		_ = json.NewEncoder(w).Encode(payload)
	}
}
