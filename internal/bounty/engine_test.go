package bounty

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/ernie/isle-tracker/internal/config"
	"github.com/ernie/isle-tracker/internal/domain"
	"github.com/ernie/isle-tracker/internal/storage"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// zeroRand always draws the minimum base award
type zeroRand struct{}

func (zeroRand) IntN(int) int { return 0 }

type fakeKills struct {
	mu      sync.Mutex
	kills   []domain.KillEvent
	failFor map[string]bool
	recent  int64
}

func (f *fakeKills) add(k ...domain.KillEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kills = append(f.kills, k...)
}

func (f *fakeKills) setFail(killerID string, fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor == nil {
		f.failFor = make(map[string]bool)
	}
	f.failFor[killerID] = fail
}

func (f *fakeKills) KillsAfter(_ context.Context, after int64, limit int) ([]domain.KillEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.KillEvent
	for _, k := range f.kills {
		if k.ID > after && k.IsPlayerKill() {
			out = append(out, k)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeKills) MaxKillID(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var id int64
	for _, k := range f.kills {
		id = max(id, k.ID)
	}
	return id, nil
}

func (f *fakeKills) RecentKillCount(_ context.Context, killerID string, _ time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[killerID] {
		return 0, errors.New("disk I/O error")
	}
	return f.recent, nil
}

type fakePublisher struct {
	mu        sync.Mutex
	credits   []domain.CreditEvent
	contracts []domain.Contract
}

func (p *fakePublisher) PublishCredit(_ context.Context, ev domain.CreditEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.credits = append(p.credits, ev)
	return nil
}

func (p *fakePublisher) PublishContract(_ context.Context, c domain.Contract) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.contracts = append(p.contracts, c)
	return nil
}

func kill(id int64, killer, victim string) domain.KillEvent {
	v := victim
	return domain.KillEvent{
		ID:         id,
		KillerID:   killer,
		KillerName: "name-" + killer,
		VictimID:   &v,
		VictimName: "name-" + victim,
		KillerDino: "Utahraptor",
		VictimDino: "Tenontosaurus",
		Timestamp:  t0,
	}
}

type harness struct {
	path   string
	store  *storage.Store
	kills  *fakeKills
	pub    *fakePublisher
	engine *Engine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bounty.db")
	store, err := storage.New(path)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	h := &harness{path: path, store: store, kills: &fakeKills{}, pub: &fakePublisher{}}
	h.engine = NewEngine(config.Default().Bounty, store, h.kills, Options{
		Random:    zeroRand{},
		Now:       func() time.Time { return t0 },
		Publisher: h.pub,
	})
	return h
}

// startAt stores a watermark so the next cycle processes kills after id
func (h *harness) startAt(t *testing.T, id int64) {
	t.Helper()
	if err := h.store.AdvanceWatermark(context.Background(), id); err != nil {
		t.Fatal(err)
	}
}

func (h *harness) balance(t *testing.T, playerID string) int64 {
	t.Helper()
	a, err := h.store.GetAccount(context.Background(), playerID)
	if err != nil {
		t.Fatalf("GetAccount(%s): %v", playerID, err)
	}
	if a.Balance != a.EarnedTotal-a.SpentTotal {
		t.Errorf("%s: balance %d != earned %d - spent %d", playerID, a.Balance, a.EarnedTotal, a.SpentTotal)
	}
	return a.Balance
}

func (h *harness) transactions(t *testing.T) int64 {
	t.Helper()
	n, err := h.store.CountTransactions(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	return n
}

func TestFirstCycleStartsAtNewestKill(t *testing.T) {
	h := newHarness(t)
	h.kills.add(kill(1, "a", "b"), kill(2, "a", "b"), kill(3, "b", "a"))

	res, err := h.engine.ProcessNewKills(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Watermark != 3 || res.Credited != 0 {
		t.Errorf("result = %+v, want watermark 3 and nothing credited", res)
	}
	if n := h.transactions(t); n != 0 {
		t.Errorf("transactions = %d, want 0", n)
	}

	h.kills.add(kill(4, "a", "b"))
	res, err = h.engine.ProcessNewKills(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Credited != 1 || res.Watermark != 4 {
		t.Errorf("result = %+v, want 1 credited at watermark 4", res)
	}
}

func TestProcessNewKills(t *testing.T) {
	h := newHarness(t)
	h.startAt(t, 0)
	h.kills.add(kill(1, "a", "b"), kill(2, "a", "c"), kill(3, "b", "a"))

	res, err := h.engine.ProcessNewKills(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Fetched != 3 || res.Credited != 3 || res.Watermark != 3 {
		t.Errorf("result = %+v", res)
	}

	// zeroRand draws the minimum base award of 5
	if got := h.balance(t, "a"); got != 10 {
		t.Errorf("a balance = %d, want 10", got)
	}
	if got := h.balance(t, "b"); got != 5 {
		t.Errorf("b balance = %d, want 5", got)
	}
	if got := h.balance(t, "c"); got != 0 {
		t.Errorf("c balance = %d, want 0", got)
	}

	a, _ := h.store.GetAccount(context.Background(), "a")
	if a.Kills != 2 || a.Deaths != 1 {
		t.Errorf("a kills/deaths = %d/%d, want 2/1", a.Kills, a.Deaths)
	}

	if len(h.pub.credits) != 3 {
		t.Errorf("published %d credits, want 3", len(h.pub.credits))
	}
}

func TestStreakBonusInReason(t *testing.T) {
	h := newHarness(t)
	h.startAt(t, 0)
	h.kills.recent = 10
	h.kills.add(kill(1, "a", "b"))

	if _, err := h.engine.ProcessNewKills(context.Background()); err != nil {
		t.Fatal(err)
	}

	txs, err := h.store.Transactions(context.Background(), "a", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(txs) != 1 {
		t.Fatalf("got %d transactions, want 1", len(txs))
	}
	if txs[0].Amount <= 5 {
		t.Errorf("amount = %d, want base plus streak bonus", txs[0].Amount)
	}
	want := fmt.Sprintf("Kill reward: name-b +%d streak bonus", txs[0].Amount-5)
	if txs[0].Reason != want {
		t.Errorf("reason = %q, want %q", txs[0].Reason, want)
	}
}

func TestReprocessingCreatesNoTransactions(t *testing.T) {
	h := newHarness(t)
	h.startAt(t, 0)
	h.kills.add(kill(1, "a", "b"), kill(2, "b", "a"))

	if _, err := h.engine.ProcessNewKills(context.Background()); err != nil {
		t.Fatal(err)
	}
	before := h.transactions(t)

	// a second engine over the same ledger simulates a restart
	restarted := NewEngine(config.Default().Bounty, h.store, h.kills, Options{Random: zeroRand{}, Now: func() time.Time { return t0 }})
	res, err := restarted.ProcessNewKills(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Fetched != 0 {
		t.Errorf("fetched %d kills after restart, want 0", res.Fetched)
	}
	if after := h.transactions(t); after != before {
		t.Errorf("transactions %d -> %d after reprocessing", before, after)
	}
}

func TestCreditedKillBehindWatermarkIsSkipped(t *testing.T) {
	h := newHarness(t)
	h.startAt(t, 0)
	h.kills.add(kill(1, "a", "b"), kill(2, "a", "b"))

	// kill 1 arrives by push before the poll cycle sees it
	if ok, err := h.engine.CreditPushedKill(context.Background(), kill(1, "a", "b")); err != nil || !ok {
		t.Fatalf("CreditPushedKill = %v, %v", ok, err)
	}

	res, err := h.engine.ProcessNewKills(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Credited != 1 || res.Skipped != 1 || res.Watermark != 2 {
		t.Errorf("result = %+v, want 1 credited, 1 skipped, watermark 2", res)
	}
	if got := h.balance(t, "a"); got != 10 {
		t.Errorf("a balance = %d, want 10", got)
	}
}

func TestFailedKillHoldsWatermark(t *testing.T) {
	h := newHarness(t)
	h.startAt(t, 0)
	h.kills.add(kill(1, "a", "x"), kill(2, "b", "x"), kill(3, "c", "x"))
	h.kills.setFail("b", true)

	res, err := h.engine.ProcessNewKills(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Credited != 2 || res.Failed != 1 {
		t.Errorf("result = %+v, want 2 credited and 1 failed", res)
	}
	if res.Watermark != 1 {
		t.Errorf("watermark = %d, want 1 (just before the failed kill)", res.Watermark)
	}
	if got := h.balance(t, "c"); got != 5 {
		t.Errorf("kill after the failure was not applied: c balance = %d", got)
	}

	h.kills.setFail("b", false)
	res, err = h.engine.ProcessNewKills(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Credited != 1 || res.Skipped != 1 || res.Watermark != 3 {
		t.Errorf("retry result = %+v, want 1 credited, 1 skipped, watermark 3", res)
	}
	if got := h.balance(t, "c"); got != 5 {
		t.Errorf("c credited twice: balance = %d", got)
	}
	if got := h.balance(t, "b"); got != 5 {
		t.Errorf("b balance = %d, want 5", got)
	}
}

func TestProcessNewKillsIsNotReentrant(t *testing.T) {
	h := newHarness(t)
	h.engine.running.Store(true)

	_, err := h.engine.ProcessNewKills(context.Background())
	if !errors.Is(err, ErrCycleInProgress) {
		t.Errorf("err = %v, want ErrCycleInProgress", err)
	}
}

func TestCreditPushedKillRejectsNaturalDeath(t *testing.T) {
	h := newHarness(t)
	k := kill(1, "a", "b")
	k.IsNaturalDeath = true

	_, err := h.engine.CreditPushedKill(context.Background(), k)
	if !errors.Is(err, domain.ErrNotPlayerKill) {
		t.Errorf("err = %v, want ErrNotPlayerKill", err)
	}
}

func TestCreditPushedKillRequiresSequence(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for _, killer := range []string{"k1", "k2"} {
		credited, err := h.engine.CreditPushedKill(ctx, kill(0, killer, "v"))
		if !errors.Is(err, domain.ErrInvalidKill) || credited {
			t.Errorf("%s: credited = %v, err = %v, want ErrInvalidKill", killer, credited, err)
		}
	}
	if n := h.transactions(t); n != 0 {
		t.Errorf("transactions = %d, want 0", n)
	}

	credited, err := h.engine.CreditPushedKill(ctx, kill(7, "k2", "v"))
	if err != nil || !credited {
		t.Fatalf("kill 7: credited = %v, err = %v", credited, err)
	}
}

func TestPlaceContractValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  PlaceRequest
	}{
		{"below minimum", PlaceRequest{TargetID: "b", PlacerID: "a", Reward: 50}},
		{"self target", PlaceRequest{TargetID: "a", PlacerID: "a", Reward: 10000}},
		{"missing target", PlaceRequest{PlacerID: "a", Reward: 500}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.engine.PlaceContract(ctx, tt.req)
			if !errors.Is(err, domain.ErrInvalidContract) {
				t.Errorf("err = %v, want ErrInvalidContract", err)
			}
		})
	}

	c, err := h.engine.PlaceContract(ctx, PlaceRequest{TargetID: "b", PlacerID: "a", Reward: 100, Reason: "  stole my kill  "})
	if err != nil {
		t.Fatalf("minimum reward rejected: %v", err)
	}
	if c.Status != domain.ContractActive || c.Reason != "stole my kill" {
		t.Errorf("contract = %+v", c)
	}
	if c.ExpiresAt == nil || !c.ExpiresAt.Equal(t0.Add(7*24*time.Hour)) {
		t.Errorf("expires = %v, want a week out", c.ExpiresAt)
	}
	if c.TargetName != "b" {
		t.Errorf("target name = %q, want the ID for an unknown player", c.TargetName)
	}
}

func TestCancelContract(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	c, err := h.engine.PlaceContract(ctx, PlaceRequest{TargetID: "b", PlacerID: "a", Reward: 200})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := h.engine.CancelContract(ctx, c.ID, "z"); !errors.Is(err, domain.ErrInvalidContract) {
		t.Errorf("non-placer cancel err = %v, want ErrInvalidContract", err)
	}

	cancelled, err := h.engine.CancelContract(ctx, c.ID, "a")
	if err != nil {
		t.Fatal(err)
	}
	if cancelled.Status != domain.ContractCancelled {
		t.Errorf("status = %s", cancelled.Status)
	}

	if _, err := h.engine.CancelContract(ctx, c.ID, "a"); !errors.Is(err, domain.ErrInvalidContract) {
		t.Errorf("second cancel err = %v, want ErrInvalidContract", err)
	}
	if _, err := h.engine.CancelContract(ctx, 999, "a"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("missing contract err = %v, want ErrNotFound", err)
	}
}

func TestKillCompletesContract(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.startAt(t, 0)

	c, err := h.engine.PlaceContract(ctx, PlaceRequest{TargetID: "b", PlacerID: "p", Reward: 300})
	if err != nil {
		t.Fatal(err)
	}
	h.kills.add(kill(1, "a", "b"))

	res, err := h.engine.ProcessNewKills(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Contracts != 1 {
		t.Errorf("contracts completed = %d, want 1", res.Contracts)
	}

	got, err := h.store.GetContract(ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.ContractCompleted || got.CompletedByID == nil || *got.CompletedByID != "a" {
		t.Errorf("contract = %+v", got)
	}
	if b := h.balance(t, "a"); b != 305 {
		t.Errorf("a balance = %d, want 305", b)
	}

	// placed and completed
	if len(h.pub.contracts) != 2 {
		t.Errorf("published %d contract events, want 2", len(h.pub.contracts))
	}

	if _, err := h.engine.CancelContract(ctx, c.ID, "p"); !errors.Is(err, domain.ErrInvalidContract) {
		t.Errorf("cancel of completed contract err = %v, want ErrInvalidContract", err)
	}
}

// failSettlement makes every contract completion abort until the returned
// func is called
func (h *harness) failSettlement(t *testing.T) func() {
	t.Helper()
	db, err := sql.Open("sqlite", h.path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	if _, err := db.Exec(`
		CREATE TRIGGER fail_settlement BEFORE UPDATE OF status ON bounty_contracts
		WHEN NEW.status = 'completed'
		BEGIN SELECT RAISE(ABORT, 'settlement failed'); END
	`); err != nil {
		t.Fatal(err)
	}
	return func() {
		if _, err := db.Exec("DROP TRIGGER fail_settlement"); err != nil {
			t.Fatal(err)
		}
	}
}

func TestContractSettledAfterFailedAttempt(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.startAt(t, 0)

	c, err := h.engine.PlaceContract(ctx, PlaceRequest{TargetID: "b", PlacerID: "p", Reward: 300})
	if err != nil {
		t.Fatal(err)
	}
	h.kills.add(kill(1, "a", "b"))

	restore := h.failSettlement(t)
	res, err := h.engine.ProcessNewKills(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Failed != 1 || res.Watermark != 0 {
		t.Errorf("failed cycle = %+v, want 1 failure holding watermark 0", res)
	}
	if done, _ := h.store.IsCredited(ctx, 1); done {
		t.Fatal("kill credited without its contract")
	}

	restore()
	res, err = h.engine.ProcessNewKills(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Credited != 1 || res.Contracts != 1 || res.Watermark != 1 {
		t.Errorf("retry = %+v, want 1 credited, 1 contract, watermark 1", res)
	}
	got, err := h.store.GetContract(ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.ContractCompleted || got.CompletedByID == nil || *got.CompletedByID != "a" {
		t.Errorf("contract = %+v", got)
	}
	if b := h.balance(t, "a"); b != 305 {
		t.Errorf("a balance = %d, want 305", b)
	}
}

func TestMyContracts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for _, req := range []PlaceRequest{
		{TargetID: "b", PlacerID: "a", Reward: 100},
		{TargetID: "c", PlacerID: "a", Reward: 100},
		{TargetID: "a", PlacerID: "c", Reward: 100},
	} {
		if _, err := h.engine.PlaceContract(ctx, req); err != nil {
			t.Fatal(err)
		}
	}

	mine, err := h.engine.MyContracts(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if len(mine.Placed) != 2 || len(mine.Targeting) != 1 {
		t.Errorf("placed %d targeting %d, want 2 and 1", len(mine.Placed), len(mine.Targeting))
	}
}

func TestImportAggregate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	stats := map[string]domain.AggregateStats{
		"76561198000000001": {Name: "Rex", Kills: 10, Deaths: 2, Dinos: map[string]int64{"Tyrannosaurus": 10}},
		"76561198000000002": {Name: "Idle"},
		"76561198000000003": {Name: "Prey", Deaths: 4},
	}
	n, err := h.engine.ImportAggregate(ctx, stats)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("imported %d accounts, want 2", n)
	}
	if _, err := h.store.GetAccount(ctx, "76561198000000002"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("player with no activity was imported")
	}
	if got := h.balance(t, "76561198000000001"); got <= 0 {
		t.Errorf("imported balance = %d, want positive", got)
	}

	n, err = h.engine.ImportAggregate(ctx, stats)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("second import created %d accounts, want 0", n)
	}
}

func TestMaintainExpiresContracts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	c, err := h.engine.PlaceContract(ctx, PlaceRequest{TargetID: "b", PlacerID: "a", Reward: 100})
	if err != nil {
		t.Fatal(err)
	}

	h.engine.opts.Now = func() time.Time { return t0.Add(8 * 24 * time.Hour) }
	if err := h.engine.Maintain(ctx); err != nil {
		t.Fatal(err)
	}

	got, err := h.store.GetContract(ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.ContractExpired {
		t.Errorf("status = %s, want expired", got.Status)
	}
}

type fakeIndex struct {
	balances map[string]int64
	err      error
}

func (f *fakeIndex) SetBalance(_ context.Context, id string, b int64) error {
	if f.balances == nil {
		f.balances = make(map[string]int64)
	}
	f.balances[id] = b
	return f.err
}

func (f *fakeIndex) TopPlayers(_ context.Context, limit int) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	ids := make([]string, 0, len(f.balances))
	for id := range f.balances {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return f.balances[ids[i]] > f.balances[ids[j]] })
	return ids[:min(limit, len(ids))], nil
}

func (f *fakeIndex) Rebuild(_ context.Context, accounts []domain.Account) error {
	f.balances = make(map[string]int64)
	for _, a := range accounts {
		f.balances[a.PlayerID] = a.Balance
	}
	return f.err
}

func TestLeaderboardUsesIndexAndFallsBack(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	idx := &fakeIndex{}
	h.engine.opts.Index = idx
	h.startAt(t, 0)

	h.kills.add(kill(1, "a", "b"), kill(2, "a", "b"), kill(3, "b", "a"))
	if _, err := h.engine.ProcessNewKills(ctx); err != nil {
		t.Fatal(err)
	}
	if idx.balances["a"] != 10 || idx.balances["b"] != 5 {
		t.Errorf("index balances = %v", idx.balances)
	}

	entries, err := h.engine.Leaderboard(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].PlayerID != "a" || entries[0].Rank != 1 {
		t.Errorf("indexed leaderboard = %+v", entries)
	}

	idx.err = errors.New("connection refused")
	entries, err = h.engine.Leaderboard(ctx, 10)
	if err != nil {
		t.Fatalf("fallback failed: %v", err)
	}
	if len(entries) != 2 || entries[0].PlayerID != "a" {
		t.Errorf("fallback leaderboard = %+v", entries)
	}
}

func TestLeaderboardOrdersByLedgerBalance(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	idx := &fakeIndex{}
	h.engine.opts.Index = idx
	h.startAt(t, 0)

	h.kills.add(kill(1, "a", "b"), kill(2, "a", "b"), kill(3, "b", "a"))
	if _, err := h.engine.ProcessNewKills(ctx); err != nil {
		t.Fatal(err)
	}

	// stale index ranks b above a
	idx.balances = map[string]int64{"b": 100, "a": 1}
	entries, err := h.engine.Leaderboard(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].PlayerID != "a" || entries[0].Rank != 1 || entries[1].PlayerID != "b" || entries[1].Rank != 2 {
		t.Errorf("stale index leaderboard = %+v", entries)
	}

	// flushed index
	idx.balances = nil
	entries, err = h.engine.Leaderboard(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].PlayerID != "a" || entries[0].Balance != 10 {
		t.Errorf("empty index leaderboard = %+v", entries)
	}
}

func TestAccountDetail(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.startAt(t, 0)
	h.kills.add(kill(1, "a", "b"))
	if _, err := h.engine.ProcessNewKills(ctx); err != nil {
		t.Fatal(err)
	}

	d, err := h.engine.AccountDetail(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if len(d.Transactions) != 1 || len(d.Mastery) != 1 || d.Mastery[0].Species != "Utahraptor" {
		t.Errorf("detail = %+v", d)
	}

	if _, err := h.engine.AccountDetail(ctx, "nobody"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestAdjustPoints(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	applied, err := h.engine.AdjustPoints(ctx, "a", 50, "")
	if err != nil || applied != 50 {
		t.Fatalf("credit = %d, %v", applied, err)
	}
	applied, err = h.engine.AdjustPoints(ctx, "a", -80, "abuse")
	if err != nil || applied != -50 {
		t.Fatalf("debit = %d, %v, want capped at -50", applied, err)
	}
	if got := h.balance(t, "a"); got != 0 {
		t.Errorf("balance = %d, want 0", got)
	}
}

type fakePlayers struct {
	players []domain.PlayerRecord
}

func (f fakePlayers) Players(context.Context) (domain.Result[[]domain.PlayerRecord], error) {
	return domain.Result[[]domain.PlayerRecord]{Data: f.players}, nil
}

func TestBountyLocations(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.engine.opts.Players = fakePlayers{players: []domain.PlayerRecord{
		{Name: "Bee", PlayerID: "b", Location: domain.Location{X: 1, Y: 2, Z: 3}},
		{Name: "Ann", PlayerID: "a"},
	}}

	for _, target := range []string{"b", "offline"} {
		if _, err := h.engine.PlaceContract(ctx, PlaceRequest{TargetID: target, PlacerID: "a", Reward: 100}); err != nil {
			t.Fatal(err)
		}
	}

	locs, err := h.engine.BountyLocations(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(locs) != 1 || locs[0].Player.PlayerID != "b" || locs[0].Player.Location.X != 1 {
		t.Errorf("locations = %+v", locs)
	}
}
