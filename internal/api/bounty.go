package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ernie/isle-tracker/internal/bounty"
)

// handleLeaderboard returns the richest players
func (r *Router) handleLeaderboard(w http.ResponseWriter, req *http.Request) {
	entries, err := r.engine.Leaderboard(req.Context(), parseLimit(req, 10, 100))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleOverview returns economy-wide totals
func (r *Router) handleOverview(w http.ResponseWriter, req *http.Request) {
	overview, err := r.engine.Overview(req.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

// handleSystemStats returns ledger sizes and the processing watermark
func (r *Router) handleSystemStats(w http.ResponseWriter, req *http.Request) {
	stats, err := r.engine.SystemStats(req.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleGetAccount returns one account with mastery and recent transactions
func (r *Router) handleGetAccount(w http.ResponseWriter, req *http.Request) {
	detail, err := r.engine.AccountDetail(req.Context(), req.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// handleActiveBounties returns live contracts
func (r *Router) handleActiveBounties(w http.ResponseWriter, req *http.Request) {
	contracts, err := r.engine.ActiveBounties(req.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, contracts)
}

// handleBountyLocations returns live contract targets that are online, with positions
func (r *Router) handleBountyLocations(w http.ResponseWriter, req *http.Request) {
	locations, err := r.engine.BountyLocations(req.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, locations)
}

// handleMyContracts returns the caller's placed and incoming contracts
func (r *Router) handleMyContracts(w http.ResponseWriter, req *http.Request) {
	claims := playerClaims(req)
	mine, err := r.engine.MyContracts(req.Context(), claims.PlayerID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mine)
}

// PlaceContractRequest is the request body for placing a contract
type PlaceContractRequest struct {
	TargetID   string `json:"target_id"`
	TargetName string `json:"target_name"`
	Reward     int64  `json:"reward"`
	Reason     string `json:"reason"`
}

// handlePlaceContract places a contract on behalf of the caller
func (r *Router) handlePlaceContract(w http.ResponseWriter, req *http.Request) {
	claims := playerClaims(req)

	var body PlaceContractRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	contract, err := r.engine.PlaceContract(req.Context(), bounty.PlaceRequest{
		TargetID:   body.TargetID,
		TargetName: strings.TrimSpace(body.TargetName),
		PlacerID:   claims.PlayerID,
		PlacerName: claims.Name,
		Reward:     body.Reward,
		Reason:     body.Reason,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, contract)
}

// handleCancelContract cancels one of the caller's contracts
func (r *Router) handleCancelContract(w http.ResponseWriter, req *http.Request) {
	id, err := parseID(req, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid contract id")
		return
	}

	claims := playerClaims(req)
	contract, err := r.engine.CancelContract(req.Context(), id, claims.PlayerID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, contract)
}

// AdjustPointsRequest is the request body for an admin balance correction
type AdjustPointsRequest struct {
	PlayerID string `json:"player_id"`
	Amount   int64  `json:"amount"`
	Reason   string `json:"reason"`
}

// handleAdjustPoints credits or debits an account (admin only)
func (r *Router) handleAdjustPoints(w http.ResponseWriter, req *http.Request) {
	var body AdjustPointsRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.PlayerID == "" || body.Amount == 0 {
		writeError(w, http.StatusBadRequest, "player_id and a non-zero amount are required")
		return
	}

	applied, err := r.engine.AdjustPoints(req.Context(), body.PlayerID, body.Amount, body.Reason)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"applied": applied})
}
