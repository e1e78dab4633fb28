package api

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzhttp"

	"github.com/ernie/isle-tracker/internal/auth"
	"github.com/ernie/isle-tracker/internal/bounty"
	"github.com/ernie/isle-tracker/internal/config"
	"github.com/ernie/isle-tracker/internal/domain"
)

// LiveServer is the game server as seen through RCON
type LiveServer interface {
	Players(ctx context.Context) (domain.Result[[]domain.PlayerRecord], error)
	ServerInfo(ctx context.Context) (domain.Result[domain.ServerSnapshot], error)
	FindPlayer(ctx context.Context, playerID string) (domain.Result[domain.PlayerRecord], error)
	Exec(ctx context.Context, name string) (string, error)
	Status() domain.ConnectionStatus
}

// Router holds the HTTP routes and dependencies
type Router struct {
	mux       *http.ServeMux
	live      LiveServer
	engine    *bounty.Engine
	auth      *auth.Service
	webhook   *webhookGuard
	staticDir string
}

// NewRouter creates a new HTTP router. engine may be nil when the bounty
// system is disabled, in which case its routes are not registered.
func NewRouter(live LiveServer, engine *bounty.Engine, authService *auth.Service, hook config.WebhookConfig, staticDir string) *Router {
	r := &Router{
		mux:       http.NewServeMux(),
		live:      live,
		engine:    engine,
		auth:      authService,
		staticDir: staticDir,
	}

	// Live server routes
	r.mux.HandleFunc("GET /api/players", r.handleGetPlayers)
	r.mux.HandleFunc("GET /api/players/{id}", r.handleGetPlayer)
	r.mux.HandleFunc("GET /api/server", r.handleGetServer)

	// RCON routes
	r.mux.HandleFunc("GET /api/rcon/status", r.handleRconStatus)
	r.mux.HandleFunc("POST /api/rcon", r.requireAdmin(r.handleRconCommand))

	if engine != nil {
		r.mux.HandleFunc("GET /api/bounty/leaderboard", r.handleLeaderboard)
		r.mux.HandleFunc("GET /api/bounty/overview", r.handleOverview)
		r.mux.HandleFunc("GET /api/bounty/stats", r.handleSystemStats)
		r.mux.HandleFunc("GET /api/bounty/accounts/{id}", r.handleGetAccount)
		r.mux.HandleFunc("GET /api/bounty/active", r.handleActiveBounties)
		r.mux.HandleFunc("GET /api/bounty/locations", r.handleBountyLocations)

		// Contract routes (authenticated players)
		r.mux.HandleFunc("GET /api/bounty/mine", r.requireAuth(r.handleMyContracts))
		r.mux.HandleFunc("POST /api/bounty/contracts", r.requireAuth(r.handlePlaceContract))
		r.mux.HandleFunc("DELETE /api/bounty/contracts/{id}", r.requireAuth(r.handleCancelContract))

		// Admin routes
		r.mux.HandleFunc("POST /api/bounty/admin/points", r.requireAdmin(r.handleAdjustPoints))

		// Kill push from the kill-feed bot, only when a secret is configured
		if hook.SecretHash != "" {
			r.webhook = newWebhookGuard(hook)
			r.mux.HandleFunc("POST /api/webhook/kills", r.handleKillWebhook)
		}
	}

	// Health check
	r.mux.HandleFunc("GET /health", r.handleHealth)

	// Static files - only serve if staticDir is configured
	if staticDir != "" {
		r.mux.HandleFunc("GET /", r.handleStatic)
	}

	return r
}

// ServeHTTP implements http.Handler
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	// CORS headers for API
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Webhook-Secret")

	if req.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	r.mux.ServeHTTP(w, req)
}

// Handler returns the router wrapped in gzip compression for clients that accept it
func (r *Router) Handler() http.Handler {
	return gzhttp.GzipHandler(r)
}

// handleStatic serves static files from the configured directory
// For SPA support, serves index.html for any path that doesn't match a file
func (r *Router) handleStatic(w http.ResponseWriter, req *http.Request) {
	path := filepath.Clean(req.URL.Path)
	if path == "/" {
		path = "/index.html"
	}

	fullPath := filepath.Join(r.staticDir, path)

	// Security: ensure the path is within staticDir
	absStaticDir, _ := filepath.Abs(r.staticDir)
	absPath, _ := filepath.Abs(fullPath)
	if !strings.HasPrefix(absPath, absStaticDir) {
		http.NotFound(w, req)
		return
	}

	info, err := os.Stat(fullPath)
	if err != nil || info.IsDir() {
		fullPath = filepath.Join(r.staticDir, "index.html")
		if _, err := os.Stat(fullPath); err != nil {
			http.NotFound(w, req)
			return
		}
	}

	if contentType := getContentType(fullPath); contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	http.ServeFile(w, req, fullPath)
}

// getContentType returns the content type for a file based on extension
func getContentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html":
		return "text/html; charset=utf-8"
	case ".css":
		return "text/css; charset=utf-8"
	case ".js":
		return "application/javascript; charset=utf-8"
	case ".json":
		return "application/json; charset=utf-8"
	case ".svg":
		return "image/svg+xml"
	case ".png":
		return "image/png"
	case ".ico":
		return "image/x-icon"
	default:
		return ""
	}
}
