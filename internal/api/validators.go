package api

import (
	"net/http"
	"strconv"

	"github.com/ernie/isle-tracker/internal/domain"
)

var validFactions = map[string]bool{
	string(domain.FactionPredator): true,
	string(domain.FactionGrazer):   true,
	string(domain.FactionOther):    true,
}

// parseID parses an ID from the URL path
func parseID(req *http.Request, param string) (int64, error) {
	return strconv.ParseInt(req.PathValue(param), 10, 64)
}

// parseLimit parses and validates a limit parameter with default and max values
func parseLimit(r *http.Request, defaultLimit, maxLimit int) int {
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= maxLimit {
			return parsed
		}
	}
	return defaultLimit
}

// validateFaction checks if a faction filter is valid
func validateFaction(faction string) bool {
	return validFactions[faction]
}
