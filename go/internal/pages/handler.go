package pages

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

var knownLocations = map[Location]bool{
	HeaderTrend:      true,
	TotalScore:       true,
	ScoresheetMarks:  true,
	Penalties:        true,
	StartList:        true,
	Alerts:           true,
	ConnectionStatus: true,
	Lock:             true,
}

// WebSocketHandler handles upgrade requests from the presentation layer
type WebSocketHandler struct {
	hub *Hub
}

func NewWebSocketHandler(hub *Hub) *WebSocketHandler {
	return &WebSocketHandler{hub: hub}
}

// HandlePageConnection subscribes a connection to the locations named in the
// query, e.g. /ws/pages?location=total-score,alerts
func (h *WebSocketHandler) HandlePageConnection(w http.ResponseWriter, r *http.Request) {
	locations, ok := parseLocations(r.URL.Query()["location"])
	if !ok {
		http.Error(w, "location is missing or unknown", http.StatusBadRequest)
		return
	}

	if err := h.hub.UpgradeConnection(w, r, locations); err != nil {
		// The upgrader has already replied to the client.
		log.Error().Err(err).Msg("failed to upgrade page connection")
	}
}

// HandleLatest returns the last update for a single location.
func (h *WebSocketHandler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	loc := Location(r.URL.Query().Get("location"))
	if !knownLocations[loc] {
		http.Error(w, "unknown location", http.StatusBadRequest)
		return
	}
	update, ok := h.hub.Latest(loc)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(update)
}

// HandleConnectionStats returns subscriber counts per location
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	stats := h.hub.Stats()
	total := 0
	for _, n := range stats {
		total += n
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"total_subscriptions": total,
		"locations":           stats,
	})
}

// RegisterRoutes registers page routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/pages", h.HandlePageConnection)
	mux.HandleFunc("/pages/latest", h.HandleLatest)
	mux.HandleFunc("/ws/stats", h.HandleConnectionStats)
}

func parseLocations(raw []string) ([]Location, bool) {
	seen := make(map[Location]bool)
	var out []Location
	for _, value := range raw {
		for _, part := range strings.Split(value, ",") {
			loc := Location(strings.TrimSpace(part))
			if !knownLocations[loc] {
				if loc != "" {
					return nil, false
				}
				continue
			}
			if !seen[loc] {
				seen[loc] = true
				out = append(out, loc)
			}
		}
	}
	return out, len(out) > 0
}
