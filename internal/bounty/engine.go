package bounty

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ernie/isle-tracker/internal/config"
	"github.com/ernie/isle-tracker/internal/domain"
	"github.com/ernie/isle-tracker/internal/scoring"
	"github.com/ernie/isle-tracker/internal/storage"
)

// ErrCycleInProgress is returned when a processing cycle is requested while
// another one is still running.
var ErrCycleInProgress = errors.New("kill processing already running")

// KillSource is the read side of the kill log
type KillSource interface {
	KillsAfter(ctx context.Context, after int64, limit int) ([]domain.KillEvent, error)
	MaxKillID(ctx context.Context) (int64, error)
	RecentKillCount(ctx context.Context, killerID string, since time.Time) (int64, error)
}

// Publisher announces ledger changes to other processes
type Publisher interface {
	PublishCredit(ctx context.Context, ev domain.CreditEvent) error
	PublishContract(ctx context.Context, c domain.Contract) error
}

// BalanceIndex is a ranked copy of account balances kept outside the ledger
type BalanceIndex interface {
	SetBalance(ctx context.Context, playerID string, balance int64) error
	TopPlayers(ctx context.Context, limit int) ([]string, error)
	Rebuild(ctx context.Context, accounts []domain.Account) error
}

// PlayerSource supplies the live player list
type PlayerSource interface {
	Players(ctx context.Context) (domain.Result[[]domain.PlayerRecord], error)
}

// Options wire optional collaborators. Nil fields disable the feature.
type Options struct {
	Random    scoring.RandomSource
	Now       func() time.Time
	Publisher Publisher
	Index     BalanceIndex
	Players   PlayerSource
}

// Engine runs the bounty economy: it folds kills into the ledger, manages
// contracts and answers leaderboard queries.
type Engine struct {
	cfg   config.BountyConfig
	store *storage.Store
	kills KillSource
	opts  Options

	running atomic.Bool

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewEngine creates an engine over the ledger and the kill log
func NewEngine(cfg config.BountyConfig, store *storage.Store, kills KillSource, opts Options) *Engine {
	d := config.Default().Bounty
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = d.BatchSize
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = d.PollInterval
	}
	if cfg.MaintenanceInterval <= 0 {
		cfg.MaintenanceInterval = d.MaintenanceInterval
	}
	if cfg.Retention <= 0 {
		cfg.Retention = d.Retention
	}
	if cfg.MinContractReward <= 0 {
		cfg.MinContractReward = d.MinContractReward
	}
	if cfg.ContractTTL <= 0 {
		cfg.ContractTTL = d.ContractTTL
	}
	if opts.Random == nil {
		opts.Random = scoring.DefaultSource
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Engine{
		cfg:   cfg,
		store: store,
		kills: kills,
		opts:  opts,
		done:  make(chan struct{}),
	}
}

// Start runs the poll and maintenance loops until Stop or ctx is cancelled.
// The first cycle runs immediately.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)

	if e.opts.Index != nil {
		if err := e.RebuildIndex(ctx); err != nil {
			log.Printf("Warning: leaderboard index rebuild failed: %v", err)
		}
	}

	e.wg.Add(1)
	go e.pollLoop(ctx)

	e.wg.Add(1)
	go e.maintenanceLoop(ctx)

	log.Printf("Bounty engine started (poll every %v, batch %d)", e.cfg.PollInterval, e.cfg.BatchSize)
}

// Stop halts the loops and waits for an in-flight cycle to finish
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		log.Println("Bounty engine: stopping...")
		close(e.done)
		if e.cancel != nil {
			e.cancel()
		}
		e.wg.Wait()
		log.Println("Bounty engine: shutdown complete")
	})
}

func (e *Engine) pollLoop(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	e.runCycle(ctx)
	for {
		select {
		case <-e.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.runCycle(ctx)
		}
	}
}

func (e *Engine) runCycle(ctx context.Context) {
	res, err := e.ProcessNewKills(ctx)
	if errors.Is(err, ErrCycleInProgress) {
		return
	}
	if err != nil {
		log.Printf("Error processing kills: %v", err)
		return
	}
	if res.Fetched > 0 {
		log.Printf("Bounty: %d kills fetched, %d credited, %d already credited, %d failed, %d contracts completed (watermark %d)",
			res.Fetched, res.Credited, res.Skipped, res.Failed, res.Contracts, res.Watermark)
	}
}

func (e *Engine) maintenanceLoop(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.cfg.MaintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.Maintain(ctx); err != nil {
				log.Printf("Error during bounty maintenance: %v", err)
			}
		}
	}
}

// Maintain expires overdue contracts and prunes transactions past retention
func (e *Engine) Maintain(ctx context.Context) error {
	now := e.opts.Now()

	expired, err := e.store.ExpireContracts(ctx, now)
	if err != nil {
		return err
	}
	pruned, err := e.store.PruneTransactions(ctx, now.Add(-e.cfg.Retention))
	if err != nil {
		return err
	}
	if expired > 0 || pruned > 0 {
		log.Printf("Bounty maintenance: %d contracts expired, %d transactions pruned", expired, pruned)
	}
	return nil
}

// RebuildIndex reloads the balance index from the ledger
func (e *Engine) RebuildIndex(ctx context.Context) error {
	if e.opts.Index == nil {
		return nil
	}
	accounts, err := e.store.ListAccounts(ctx)
	if err != nil {
		return err
	}
	return e.opts.Index.Rebuild(ctx, accounts)
}

func (e *Engine) syncBalance(ctx context.Context, playerID string) {
	if e.opts.Index == nil {
		return
	}
	a, err := e.store.GetAccount(ctx, playerID)
	if err != nil {
		log.Printf("Warning: reading balance for %s: %v", playerID, err)
		return
	}
	if err := e.opts.Index.SetBalance(ctx, a.PlayerID, a.Balance); err != nil {
		log.Printf("Warning: leaderboard index update for %s: %v", playerID, err)
	}
}

func (e *Engine) publishContract(ctx context.Context, c domain.Contract) {
	if e.opts.Publisher == nil {
		return
	}
	if err := e.opts.Publisher.PublishContract(ctx, c); err != nil {
		log.Printf("Warning: publishing contract %d: %v", c.ID, err)
	}
}
