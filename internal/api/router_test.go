package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/ernie/isle-tracker/internal/auth"
	"github.com/ernie/isle-tracker/internal/bounty"
	"github.com/ernie/isle-tracker/internal/config"
	"github.com/ernie/isle-tracker/internal/domain"
	"github.com/ernie/isle-tracker/internal/storage"
)

type fakeLive struct {
	players []domain.PlayerRecord
	prov    domain.Provenance
	err     error
	execs   []string
}

func (f *fakeLive) Players(context.Context) (domain.Result[[]domain.PlayerRecord], error) {
	if f.err != nil {
		return domain.Result[[]domain.PlayerRecord]{}, f.err
	}
	return domain.Result[[]domain.PlayerRecord]{Data: f.players, Provenance: f.prov}, nil
}

func (f *fakeLive) ServerInfo(context.Context) (domain.Result[domain.ServerSnapshot], error) {
	return domain.Result[domain.ServerSnapshot]{Data: domain.ServerSnapshot{Name: "Isle One", MaxPlayers: 100}}, nil
}

func (f *fakeLive) FindPlayer(_ context.Context, id string) (domain.Result[domain.PlayerRecord], error) {
	for _, p := range f.players {
		if p.PlayerID == id {
			return domain.Result[domain.PlayerRecord]{Data: p}, nil
		}
	}
	return domain.Result[domain.PlayerRecord]{}, fmt.Errorf("player %s: %w", id, domain.ErrNotFound)
}

func (f *fakeLive) Exec(_ context.Context, name string) (string, error) {
	if name != "status" {
		return "", fmt.Errorf("%q: %w", name, domain.ErrUnknownCommand)
	}
	f.execs = append(f.execs, name)
	return "ok", nil
}

func (f *fakeLive) Status() domain.ConnectionStatus {
	return domain.ConnectionStatus{State: domain.StateConnected, Connected: true}
}

type noKills struct{}

func (noKills) KillsAfter(context.Context, int64, int) ([]domain.KillEvent, error) { return nil, nil }
func (noKills) MaxKillID(context.Context) (int64, error)                           { return 0, nil }
func (noKills) RecentKillCount(context.Context, string, time.Time) (int64, error)  { return 0, nil }

type zeroRand struct{}

func (zeroRand) IntN(int) int { return 0 }

const webhookSecret = "kill-feed-secret"

type testServer struct {
	live    *fakeLive
	auth    *auth.Service
	handler http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store, err := storage.New(filepath.Join(t.TempDir(), "bounty.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	hash, err := auth.HashSecret(webhookSecret)
	if err != nil {
		t.Fatal(err)
	}

	live := &fakeLive{players: []domain.PlayerRecord{
		{Name: "Rex", PlayerID: "p1", Species: "Tyrannosaurus", Faction: domain.FactionPredator},
		{Name: "Tenny", PlayerID: "p2", Species: "Tenontosaurus", Faction: domain.FactionGrazer},
	}}
	authService := auth.NewService("test-secret", time.Hour, []string{"admin"})
	engine := bounty.NewEngine(config.Default().Bounty, store, noKills{}, bounty.Options{
		Random:  zeroRand{},
		Players: live,
	})
	router := NewRouter(live, engine, authService, config.WebhookConfig{SecretHash: hash, RatePerSec: 100, Burst: 100}, "")

	return &testServer{live: live, auth: authService, handler: router.Handler()}
}

func (s *testServer) token(t *testing.T, playerID string) string {
	t.Helper()
	token, err := s.auth.GenerateToken(playerID, "name-"+playerID, false)
	if err != nil {
		t.Fatal(err)
	}
	return token
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestGetPlayers(t *testing.T) {
	s := newTestServer(t)
	s.live.prov = domain.Cached(45 * time.Second)

	rec := s.do(t, "GET", "/api/players", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decode[PlayersResponse](t, rec)
	if resp.Count != 2 || !resp.FromCache || resp.CacheAge != 45 {
		t.Errorf("response = %+v", resp)
	}

	resp = decode[PlayersResponse](t, s.do(t, "GET", "/api/players?faction=grazer", "", nil))
	if resp.Count != 1 || resp.Players[0].PlayerID != "p2" {
		t.Errorf("faction filter = %+v", resp)
	}

	if rec := s.do(t, "GET", "/api/players?faction=fish", "", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid faction status = %d", rec.Code)
	}
}

func TestGetPlayersCacheExhausted(t *testing.T) {
	s := newTestServer(t)
	s.live.err = &domain.CacheExhaustedError{What: "players", Err: domain.ErrConnection}

	if rec := s.do(t, "GET", "/api/players", "", nil); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestGetPlayer(t *testing.T) {
	s := newTestServer(t)

	if rec := s.do(t, "GET", "/api/players/p1", "", nil); rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
	if rec := s.do(t, "GET", "/api/players/nobody", "", nil); rec.Code != http.StatusNotFound {
		t.Errorf("missing player status = %d, want 404", rec.Code)
	}
}

func TestRconCommandRequiresAdmin(t *testing.T) {
	s := newTestServer(t)
	body := RconRequest{Command: "status"}

	if rec := s.do(t, "POST", "/api/rcon", "", body); rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous status = %d, want 401", rec.Code)
	}
	if rec := s.do(t, "POST", "/api/rcon", s.token(t, "p1"), body); rec.Code != http.StatusForbidden {
		t.Errorf("player status = %d, want 403", rec.Code)
	}

	admin := s.token(t, "admin")
	rec := s.do(t, "POST", "/api/rcon", admin, body)
	if rec.Code != http.StatusOK || decode[RconResponse](t, rec).Output != "ok" {
		t.Errorf("admin response = %d %s", rec.Code, rec.Body.String())
	}
	if rec := s.do(t, "POST", "/api/rcon", admin, RconRequest{Command: "shutdown"}); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown command status = %d, want 400", rec.Code)
	}
}

func TestRconStatus(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, "GET", "/api/rcon/status", "", nil)
	status := decode[map[string]any](t, rec)
	if status["state"] != "connected" {
		t.Errorf("status = %v", status)
	}
}

func TestContractLifecycle(t *testing.T) {
	s := newTestServer(t)
	placer := s.token(t, "p1")

	if rec := s.do(t, "POST", "/api/bounty/contracts", "", PlaceContractRequest{TargetID: "p2", Reward: 500}); rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous place status = %d", rec.Code)
	}
	if rec := s.do(t, "POST", "/api/bounty/contracts", placer, PlaceContractRequest{TargetID: "p2", Reward: 50}); rec.Code != http.StatusBadRequest {
		t.Errorf("low reward status = %d, want 400", rec.Code)
	}
	if rec := s.do(t, "POST", "/api/bounty/contracts", placer, PlaceContractRequest{TargetID: "p1", Reward: 500}); rec.Code != http.StatusBadRequest {
		t.Errorf("self target status = %d, want 400", rec.Code)
	}

	rec := s.do(t, "POST", "/api/bounty/contracts", placer, PlaceContractRequest{TargetID: "p2", TargetName: "Tenny", Reward: 500})
	if rec.Code != http.StatusCreated {
		t.Fatalf("place status = %d %s", rec.Code, rec.Body.String())
	}
	contract := decode[domain.Contract](t, rec)
	if contract.PlacerName != "name-p1" || contract.Status != domain.ContractActive {
		t.Errorf("contract = %+v", contract)
	}

	locs := decode[[]domain.BountyLocation](t, s.do(t, "GET", "/api/bounty/locations", "", nil))
	if len(locs) != 1 || locs[0].Player.Name != "Tenny" {
		t.Errorf("locations = %+v", locs)
	}

	mine := decode[domain.MyContracts](t, s.do(t, "GET", "/api/bounty/mine", placer, nil))
	if len(mine.Placed) != 1 {
		t.Errorf("mine = %+v", mine)
	}

	path := fmt.Sprintf("/api/bounty/contracts/%d", contract.ID)
	if rec := s.do(t, "DELETE", path, s.token(t, "p2"), nil); rec.Code != http.StatusBadRequest {
		t.Errorf("non-placer cancel status = %d, want 400", rec.Code)
	}
	if rec := s.do(t, "DELETE", path, placer, nil); rec.Code != http.StatusOK {
		t.Errorf("cancel status = %d", rec.Code)
	}
	if rec := s.do(t, "DELETE", "/api/bounty/contracts/999", placer, nil); rec.Code != http.StatusNotFound {
		t.Errorf("missing contract status = %d, want 404", rec.Code)
	}
}

func pushKill(t *testing.T, s *testServer, secret string, k domain.KillEvent) *httptest.ResponseRecorder {
	t.Helper()
	data, _ := json.Marshal(k)
	req := httptest.NewRequest("POST", "/api/webhook/kills", bytes.NewReader(data))
	if secret != "" {
		req.Header.Set("X-Webhook-Secret", secret)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func TestKillWebhook(t *testing.T) {
	s := newTestServer(t)
	victim := "p2"
	k := domain.KillEvent{ID: 41, KillerID: "p1", KillerName: "Rex", VictimID: &victim, VictimName: "Tenny", KillerDino: "Tyrannosaurus"}

	if rec := pushKill(t, s, "", k); rec.Code != http.StatusUnauthorized {
		t.Errorf("missing secret status = %d, want 401", rec.Code)
	}
	if rec := pushKill(t, s, "wrong", k); rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong secret status = %d, want 401", rec.Code)
	}

	rec := pushKill(t, s, webhookSecret, k)
	if rec.Code != http.StatusOK || decode[map[string]any](t, rec)["credited"] != true {
		t.Fatalf("push = %d %s", rec.Code, rec.Body.String())
	}
	rec = pushKill(t, s, webhookSecret, k)
	if decode[map[string]any](t, rec)["credited"] != false {
		t.Errorf("duplicate push credited again: %s", rec.Body.String())
	}

	natural := k
	natural.ID = 42
	natural.IsNaturalDeath = true
	if rec := pushKill(t, s, webhookSecret, natural); rec.Code != http.StatusBadRequest {
		t.Errorf("natural death status = %d, want 400", rec.Code)
	}

	unnumbered := k
	unnumbered.ID = 0
	unnumbered.KillerID = "p3"
	if rec := pushKill(t, s, webhookSecret, unnumbered); rec.Code != http.StatusBadRequest {
		t.Errorf("kill without id status = %d, want 400", rec.Code)
	}

	board := decode[[]domain.LeaderboardEntry](t, s.do(t, "GET", "/api/bounty/leaderboard", "", nil))
	if len(board) != 1 || board[0].PlayerID != "p1" || board[0].Balance != 5 {
		t.Errorf("leaderboard = %+v", board)
	}

	detail := decode[domain.AccountDetail](t, s.do(t, "GET", "/api/bounty/accounts/p1", "", nil))
	if detail.Account.Kills != 1 || len(detail.Transactions) != 1 {
		t.Errorf("detail = %+v", detail)
	}
}

func TestAdjustPointsAdminOnly(t *testing.T) {
	s := newTestServer(t)
	body := AdjustPointsRequest{PlayerID: "p1", Amount: 250, Reason: "event prize"}

	if rec := s.do(t, "POST", "/api/bounty/admin/points", s.token(t, "p1"), body); rec.Code != http.StatusForbidden {
		t.Errorf("player status = %d, want 403", rec.Code)
	}
	rec := s.do(t, "POST", "/api/bounty/admin/points", s.token(t, "admin"), body)
	if rec.Code != http.StatusOK || decode[map[string]int64](t, rec)["applied"] != 250 {
		t.Errorf("admin adjust = %d %s", rec.Code, rec.Body.String())
	}

	overview := decode[domain.Overview](t, s.do(t, "GET", "/api/bounty/overview", "", nil))
	if overview.TotalBalance != 250 || overview.Accounts != 1 {
		t.Errorf("overview = %+v", overview)
	}
}

func TestGzipResponses(t *testing.T) {
	s := newTestServer(t)
	for i := range 50 {
		s.live.players = append(s.live.players, domain.PlayerRecord{
			Name: fmt.Sprintf("Player %d", i), PlayerID: fmt.Sprintf("7656119800000%04d", i), Species: "Deinosuchus",
		})
	}

	req := httptest.NewRequest("GET", "/api/players", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	if rec.Header().Get("Content-Encoding") != "gzip" {
		t.Errorf("Content-Encoding = %q, want gzip", rec.Header().Get("Content-Encoding"))
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, "GET", "/health", "", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("health = %d %q", rec.Code, rec.Body.String())
	}
}
