package api

import (
	"encoding/json"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/ernie/isle-tracker/internal/auth"
	"github.com/ernie/isle-tracker/internal/config"
	"github.com/ernie/isle-tracker/internal/domain"
)

const maxWebhookBody = 64 << 10

// webhookGuard authenticates and throttles kill pushes
type webhookGuard struct {
	secretHash string
	limiter    *rate.Limiter
}

func newWebhookGuard(cfg config.WebhookConfig) *webhookGuard {
	d := config.Default().Webhook
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = d.RatePerSec
	}
	if cfg.Burst <= 0 {
		cfg.Burst = d.Burst
	}
	return &webhookGuard{
		secretHash: cfg.SecretHash,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst),
	}
}

// handleKillWebhook credits a kill pushed by the kill-feed bot. The same
// kill arriving again, or later through polling, is not credited twice.
func (r *Router) handleKillWebhook(w http.ResponseWriter, req *http.Request) {
	if !r.webhook.limiter.Allow() {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}
	secret := req.Header.Get("X-Webhook-Secret")
	if secret == "" || !auth.CheckSecret(secret, r.webhook.secretHash) {
		writeError(w, http.StatusUnauthorized, "invalid webhook secret")
		return
	}

	var kill domain.KillEvent
	if err := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxWebhookBody)).Decode(&kill); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	credited, err := r.engine.CreditPushedKill(req.Context(), kill)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"kill_id": kill.ID, "credited": credited})
}
