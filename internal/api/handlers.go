package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ernie/isle-tracker/internal/domain"
)

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError maps a domain error to its HTTP status
func writeServiceError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidContract),
		errors.Is(err, domain.ErrUnknownCommand),
		errors.Is(err, domain.ErrNotPlayerKill),
		errors.Is(err, domain.ErrInvalidKill):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrCacheExhausted),
		errors.Is(err, domain.ErrConnectionExhausted),
		errors.Is(err, domain.ErrConnection),
		errors.Is(err, domain.ErrResponseTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// PlayersResponse is the live player list with cache provenance
type PlayersResponse struct {
	Players   []domain.PlayerRecord `json:"players"`
	Count     int                   `json:"count"`
	FromCache bool                  `json:"from_cache"`
	CacheAge  float64               `json:"cache_age_seconds"`
}

// handleGetPlayers returns the players online, optionally filtered by
// faction or species
func (r *Router) handleGetPlayers(w http.ResponseWriter, req *http.Request) {
	res, err := r.live.Players(req.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	faction := strings.ToLower(req.URL.Query().Get("faction"))
	species := req.URL.Query().Get("species")
	if faction != "" && !validateFaction(faction) {
		writeError(w, http.StatusBadRequest, "invalid faction")
		return
	}

	players := make([]domain.PlayerRecord, 0, len(res.Data))
	for _, p := range res.Data {
		if faction != "" && string(p.Faction) != faction {
			continue
		}
		if species != "" && !strings.EqualFold(p.Species, species) {
			continue
		}
		players = append(players, p)
	}

	writeJSON(w, http.StatusOK, PlayersResponse{
		Players:   players,
		Count:     len(players),
		FromCache: res.Provenance.Cached,
		CacheAge:  res.Provenance.Age.Seconds(),
	})
}

// handleGetPlayer returns one online player
func (r *Router) handleGetPlayer(w http.ResponseWriter, req *http.Request) {
	res, err := r.live.FindPlayer(req.Context(), req.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleGetServer returns server metadata
func (r *Router) handleGetServer(w http.ResponseWriter, req *http.Request) {
	res, err := r.live.ServerInfo(req.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleHealth returns a simple health check response
func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
