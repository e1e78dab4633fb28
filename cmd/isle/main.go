// isle - Evrima server tracker and bounty economy
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	flag "github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/ernie/isle-tracker/internal/api"
	"github.com/ernie/isle-tracker/internal/auth"
	"github.com/ernie/isle-tracker/internal/bounty"
	"github.com/ernie/isle-tracker/internal/config"
	"github.com/ernie/isle-tracker/internal/feed"
	"github.com/ernie/isle-tracker/internal/leaderboard"
	"github.com/ernie/isle-tracker/internal/rcon"
	"github.com/ernie/isle-tracker/internal/storage"
)

var version = "dev"

const defaultConfigPath = "/etc/isle/config.yml"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		cmdServe(os.Args[2:])
	case "status":
		cmdStatus(os.Args[2:])
	case "players":
		cmdPlayers(os.Args[2:])
	case "leaderboard":
		cmdLeaderboard(os.Args[2:])
	case "bounties":
		cmdBounties(os.Args[2:])
	case "import":
		cmdImport(os.Args[2:])
	case "token":
		cmdToken(os.Args[2:])
	case "hash-secret":
		cmdHashSecret(os.Args[2:])
	case "version":
		fmt.Printf("isle %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: isle <command> [options] [args]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                               Start the tracker and bounty engine")
	fmt.Println("  status                              Show RCON link and server status")
	fmt.Println("  players [--faction F]               Show players online")
	fmt.Println("  leaderboard [--top N]               Show richest bounty accounts (default: 20)")
	fmt.Println("  bounties                            Show active bounty contracts")
	fmt.Println("  import [--file path]                Seed an empty ledger from kill_stats.json")
	fmt.Println("  token [--admin] [--name N] <player-id>")
	fmt.Println("                                      Issue an API token for a player")
	fmt.Println("  hash-secret                         Hash a webhook secret (prompts for the secret)")
	fmt.Println("  version                             Show version")
	fmt.Println("  help                                Show this help")
	fmt.Println()
	fmt.Println("Global Options:")
	fmt.Println("  --config <path>    Path to configuration file (default /etc/isle/config.yml)")
	fmt.Println("  --url <url>        Base URL of the isle server (default: derived from config)")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  isle serve --config /etc/isle/config.yml")
	fmt.Println("  isle players --faction predator")
	fmt.Println("  isle token --admin 76561198000000001")
}

// cmdServe starts the tracker
func cmdServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	staticDir := fs.String("static", "", "directory of web UI files to serve")
	fs.Parse(args)

	cfgPath := *configPath
	if cfgPath == "" {
		if _, err := os.Stat(defaultConfigPath); err == nil {
			cfgPath = defaultConfigPath
		} else {
			log.Fatalf("No config file found at %s. Use --config to specify a config file.", defaultConfigPath)
		}
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log.Printf("Isle %s starting...", version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// RCON manager
	manager := rcon.NewManager(rcon.OptionsFromConfig(cfg.Rcon))
	manager.Start(ctx)
	log.Printf("RCON manager started for %s", cfg.Rcon.Address())

	authService := auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.TokenDuration, cfg.Auth.AdminIDs)
	if cfg.Auth.JWTSecret == "" {
		log.Printf("Warning: No JWT secret configured. Auth tokens will use an empty secret.")
	}

	var engine *bounty.Engine
	var subscriber *feed.Subscriber
	if cfg.Bounty.Enabled {
		store, err := storage.New(cfg.Database.Path)
		if err != nil {
			log.Fatalf("Failed to initialize database: %v", err)
		}
		defer store.Close()
		log.Printf("Database initialized at %s", cfg.Database.Path)

		kills, err := storage.OpenKillFeed(cfg.Database.KillFeedPath)
		if err != nil {
			log.Fatalf("Failed to open kill feed: %v", err)
		}
		defer kills.Close()

		opts := bounty.Options{Players: manager}

		nc, shutdownBus := connectBus(cfg.NATS)
		if nc != nil {
			defer shutdownBus()
			opts.Publisher = feed.NewNotifier(nc, cfg.NATS.EventPrefix)
		}

		if cfg.Redis.Addr != "" {
			index, err := leaderboard.NewRedisIndex(ctx, cfg.Redis)
			if err != nil {
				log.Printf("Warning: leaderboard index disabled: %v", err)
			} else {
				defer index.Close()
				opts.Index = index
			}
		}

		engine = bounty.NewEngine(cfg.Bounty, store, kills, opts)
		if _, err := engine.ImportAggregateFile(ctx, cfg.Database.AggregateStatsPath); err != nil {
			log.Printf("Warning: aggregate import failed: %v", err)
		}
		engine.Start(ctx)

		if nc != nil {
			subscriber = feed.NewSubscriber(nc, cfg.NATS.KillSubject, engine)
			if err := subscriber.Start(ctx); err != nil {
				log.Printf("Warning: kill subscription failed: %v", err)
				subscriber = nil
			}
		}
	} else {
		log.Println("Bounty system disabled")
	}

	router := api.NewRouter(manager, engine, authService, cfg.Webhook, *staticDir)

	addr := fmt.Sprintf("%s:%d", cfg.Server.ListenAddr, cfg.Server.HTTPPort)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      router.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("HTTP server listening on %s", addr)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case sig := <-sigCh:
		log.Printf("Received signal %v, shutting down...", sig)
	case err := <-serverErr:
		log.Fatalf("HTTP server error: %v", err)
	}

	// Sequential shutdown
	log.Println("Shutting down HTTP server...")
	httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer httpCancel()
	if err := httpServer.Shutdown(httpCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	if subscriber != nil {
		subscriber.Stop()
	}
	if engine != nil {
		engine.Stop()
	}
	manager.Stop()

	cancel()
	log.Println("Shutdown complete")
}

// connectBus starts the embedded NATS server when configured and connects
// to the bus. It returns a nil connection when no bus is configured or it
// cannot be reached.
func connectBus(cfg config.NATSConfig) (*nats.Conn, func()) {
	url := cfg.URL
	var embedded *server.Server
	if cfg.Embedded {
		ns, err := feed.RunEmbeddedServer("127.0.0.1", cfg.EmbeddedPort)
		if err != nil {
			log.Printf("Warning: embedded NATS failed: %v", err)
			return nil, nil
		}
		embedded = ns
		url = ns.ClientURL()
	}
	if url == "" {
		return nil, nil
	}

	nc, err := feed.Connect(url)
	if err != nil {
		log.Printf("Warning: kill bus disabled: %v", err)
		if embedded != nil {
			embedded.Shutdown()
		}
		return nil, nil
	}
	log.Printf("Connected to NATS at %s", url)

	return nc, func() {
		nc.Drain()
		if embedded != nil {
			embedded.Shutdown()
		}
	}
}

// CLI helper variables
var baseURL = "http://localhost:8080"

// loadCLIConfigFromFlags loads config using pre-parsed flag values
func loadCLIConfigFromFlags(configPath, url string) *config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load config from %s: %v\n", configPath, err)
		if url != "" {
			baseURL = url
		}
		return nil
	}

	if url != "" {
		baseURL = url
	} else {
		baseURL = fmt.Sprintf("http://%s:%d", cfg.Server.ListenAddr, cfg.Server.HTTPPort)
	}
	return cfg
}

func cliFlags(name string) (*flag.FlagSet, *string, *string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to configuration file")
	url := fs.String("url", "", "base URL of the isle server")
	return fs, configPath, url
}

func cmdStatus(args []string) {
	fs, configPath, url := cliFlags("status")
	fs.Parse(args)
	loadCLIConfigFromFlags(*configPath, *url)

	var status struct {
		State        string     `json:"state"`
		Attempts     int        `json:"attempts"`
		LastActivity *time.Time `json:"last_activity"`
		CacheValid   bool       `json:"cache_valid"`
		CachedCount  int        `json:"cached_players"`
	}
	if err := getJSON("/api/rcon/status", &status); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "RCON\t%s\n", status.State)
	if status.LastActivity != nil {
		fmt.Fprintf(w, "LAST ACTIVITY\t%s\n", status.LastActivity.Local().Format(time.DateTime))
	}
	fmt.Fprintf(w, "CACHE\t%d players (valid: %t)\n", status.CachedCount, status.CacheValid)

	var info struct {
		Data struct {
			Name           string `json:"name"`
			Map            string `json:"map"`
			CurrentPlayers int    `json:"current_players"`
			MaxPlayers     int    `json:"max_players"`
		} `json:"data"`
		Provenance struct {
			Cached bool `json:"from_cache"`
		} `json:"provenance"`
	}
	if err := getJSON("/api/server", &info); err != nil {
		fmt.Fprintf(w, "SERVER\tOFFLINE\n")
	} else {
		source := "live"
		if info.Provenance.Cached {
			source = "cached"
		}
		fmt.Fprintf(w, "SERVER\t%s (%s)\n", info.Data.Name, source)
		fmt.Fprintf(w, "MAP\t%s\n", info.Data.Map)
		fmt.Fprintf(w, "PLAYERS\t%d/%d\n", info.Data.CurrentPlayers, info.Data.MaxPlayers)
	}
	w.Flush()
}

func cmdPlayers(args []string) {
	fs, configPath, url := cliFlags("players")
	faction := fs.String("faction", "", "show only predator, grazer or other")
	fs.Parse(args)
	loadCLIConfigFromFlags(*configPath, *url)

	path := "/api/players"
	if *faction != "" {
		path += "?faction=" + *faction
	}
	var resp api.PlayersResponse
	if err := getJSON(path, &resp); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PLAYER\tSTEAM ID\tSPECIES\tGROWTH\tHEALTH")
	fmt.Fprintln(w, "------\t--------\t-------\t------\t------")
	for _, p := range resp.Players {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", p.Name, p.PlayerID, p.Species, percent(p.Growth), percent(p.Health))
	}
	w.Flush()

	if resp.FromCache {
		fmt.Printf("\n(cached %.0fs ago)\n", resp.CacheAge)
	}
}

func percent(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.0f%%", *v*100)
}

func cmdLeaderboard(args []string) {
	fs, configPath, url := cliFlags("leaderboard")
	limit := fs.Int("top", 20, "number of top players to show")
	fs.Parse(args)
	loadCLIConfigFromFlags(*configPath, *url)

	var entries []struct {
		Rank    int     `json:"rank"`
		Name    string  `json:"name"`
		Balance int64   `json:"balance"`
		Kills   int64   `json:"kills"`
		Deaths  int64   `json:"deaths"`
		KDRatio float64 `json:"kd_ratio"`
	}
	if err := getJSON(fmt.Sprintf("/api/bounty/leaderboard?limit=%d", *limit), &entries); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tPLAYER\tPOINTS\tKILLS\tDEATHS\tK/D")
	fmt.Fprintln(w, "----\t------\t------\t-----\t------\t---")
	for _, e := range entries {
		fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%d\t%.2f\n", e.Rank, e.Name, e.Balance, e.Kills, e.Deaths, e.KDRatio)
	}
	w.Flush()
}

func cmdBounties(args []string) {
	fs, configPath, url := cliFlags("bounties")
	fs.Parse(args)
	loadCLIConfigFromFlags(*configPath, *url)

	var contracts []struct {
		ID         int64      `json:"id"`
		TargetName string     `json:"target_name"`
		PlacerName string     `json:"placer_name"`
		Reward     int64      `json:"reward"`
		Reason     string     `json:"reason"`
		ExpiresAt  *time.Time `json:"expires_at"`
	}
	if err := getJSON("/api/bounty/active", &contracts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTARGET\tREWARD\tPLACED BY\tEXPIRES\tREASON")
	fmt.Fprintln(w, "--\t------\t------\t---------\t-------\t------")
	for _, c := range contracts {
		expires := "-"
		if c.ExpiresAt != nil {
			expires = c.ExpiresAt.Local().Format(time.DateTime)
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\t%s\n", c.ID, c.TargetName, c.Reward, c.PlacerName, expires, c.Reason)
	}
	w.Flush()
}

// cmdImport seeds the ledger directly, without a running server
func cmdImport(args []string) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to configuration file")
	file := fs.String("file", "", "kill_stats.json to import (default: from config)")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	path := *file
	if path == "" {
		path = cfg.Database.AggregateStatsPath
	}
	if path == "" {
		fmt.Fprintln(os.Stderr, "Error: no stats file given and none configured")
		os.Exit(1)
	}

	store, err := storage.New(cfg.Database.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	stats, err := bounty.LoadAggregateStats(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	engine := bounty.NewEngine(cfg.Bounty, store, nil, bounty.Options{})
	n, err := engine.ImportAggregate(context.Background(), stats)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Imported %d accounts from %s\n", n, path)
}

// cmdToken issues a signed API token for a player
func cmdToken(args []string) {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to configuration file")
	isAdmin := fs.Bool("admin", false, "grant admin access")
	name := fs.String("name", "", "player display name")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: usage: isle token [--admin] [--name N] <player-id>")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if cfg.Auth.JWTSecret == "" {
		fmt.Fprintln(os.Stderr, "Error: auth.jwt_secret is not configured")
		os.Exit(1)
	}

	authService := auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.TokenDuration, cfg.Auth.AdminIDs)
	token, err := authService.GenerateToken(fs.Arg(0), *name, *isAdmin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}

// cmdHashSecret prompts for a webhook secret and prints its bcrypt hash
func cmdHashSecret(args []string) {
	fs := flag.NewFlagSet("hash-secret", flag.ExitOnError)
	fs.Parse(args)

	fmt.Fprint(os.Stderr, "Enter secret: ")
	secret, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to read secret: %v\n", err)
		os.Exit(1)
	}
	if len(secret) < 16 {
		fmt.Fprintln(os.Stderr, "Error: secret must be at least 16 characters")
		os.Exit(1)
	}

	fmt.Fprint(os.Stderr, "Confirm secret: ")
	confirm, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to read secret: %v\n", err)
		os.Exit(1)
	}
	if string(secret) != string(confirm) {
		fmt.Fprintln(os.Stderr, "Error: secrets do not match")
		os.Exit(1)
	}

	hash, err := auth.HashSecret(string(secret))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(hash)
}

func getJSON(path string, target any) error {
	resp, err := http.Get(baseURL + path)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
	}

	return json.NewDecoder(resp.Body).Decode(target)
}
