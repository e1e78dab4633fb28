package api

import (
	"encoding/json"
	"net/http"

	"github.com/ernie/isle-tracker/internal/rcon"
)

// RconRequest is the request body for RCON commands
type RconRequest struct {
	Command string `json:"command"`
}

// RconResponse is the response body for RCON commands
type RconResponse struct {
	Output string `json:"output"`
}

// handleRconCommand sends a named RCON command (admin only)
func (r *Router) handleRconCommand(w http.ResponseWriter, req *http.Request) {
	var rconReq RconRequest
	if err := json.NewDecoder(req.Body).Decode(&rconReq); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if rconReq.Command == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":    "command is required",
			"commands": rcon.Commands(),
		})
		return
	}

	output, err := r.live.Exec(req.Context(), rconReq.Command)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, RconResponse{Output: output})
}

// handleRconStatus reports the RCON link state and cache freshness (no auth needed)
func (r *Router) handleRconStatus(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, r.live.Status())
}
