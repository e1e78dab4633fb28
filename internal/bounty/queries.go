package bounty

import (
	"context"
	"log"
	"sort"

	"github.com/ernie/isle-tracker/internal/domain"
)

const (
	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100
	recentTransactions      = 10
)

// Leaderboard returns the richest accounts. The balance index is used when
// configured and fills the board; an index failure or a short page is
// answered from the ledger instead.
func (e *Engine) Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = defaultLeaderboardLimit
	}
	limit = min(limit, maxLeaderboardLimit)

	if e.opts.Index != nil {
		entries, err := e.indexedLeaderboard(ctx, limit)
		switch {
		case err != nil:
			log.Printf("Warning: leaderboard index unavailable, reading ledger: %v", err)
		case len(entries) == limit:
			return entries, nil
		}
	}
	return e.store.Leaderboard(ctx, limit)
}

func (e *Engine) indexedLeaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	ids, err := e.opts.Index.TopPlayers(ctx, limit)
	if err != nil {
		return nil, err
	}
	accounts, err := e.store.AccountsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	// the index only picks the candidates; ledger balances decide the order
	sort.SliceStable(accounts, func(i, j int) bool {
		a, b := accounts[i], accounts[j]
		if a.Balance != b.Balance {
			return a.Balance > b.Balance
		}
		if a.EarnedTotal != b.EarnedTotal {
			return a.EarnedTotal > b.EarnedTotal
		}
		return a.PlayerID < b.PlayerID
	})

	entries := make([]domain.LeaderboardEntry, 0, len(accounts))
	for _, a := range accounts {
		if a.Balance <= 0 {
			continue
		}
		entries = append(entries, domain.LeaderboardEntry{
			Rank:           len(entries) + 1,
			PlayerID:       a.PlayerID,
			Name:           a.Name,
			Balance:        a.Balance,
			Kills:          a.Kills,
			Deaths:         a.Deaths,
			KDRatio:        a.KDRatio,
			DiversityScore: a.DiversityScore,
		})
	}
	return entries, nil
}

// Overview summarizes the whole economy
func (e *Engine) Overview(ctx context.Context) (*domain.Overview, error) {
	return e.store.Overview(ctx, e.opts.Now())
}

// AccountDetail returns an account with its mastery and latest transactions
func (e *Engine) AccountDetail(ctx context.Context, playerID string) (*domain.AccountDetail, error) {
	a, err := e.store.GetAccount(ctx, playerID)
	if err != nil {
		return nil, err
	}
	mastery, err := e.store.Mastery(ctx, playerID)
	if err != nil {
		return nil, err
	}
	txs, err := e.store.Transactions(ctx, playerID, recentTransactions)
	if err != nil {
		return nil, err
	}
	return &domain.AccountDetail{Account: *a, Mastery: mastery, Transactions: txs}, nil
}

// SystemStats reports ledger sizes and processing progress
func (e *Engine) SystemStats(ctx context.Context) (*domain.SystemStats, error) {
	return e.store.Stats(ctx)
}

// AdjustPoints applies an admin correction and returns the signed amount applied
func (e *Engine) AdjustPoints(ctx context.Context, playerID string, amount int64, reason string) (int64, error) {
	if reason == "" {
		reason = "Admin adjustment"
	}
	applied, err := e.store.AdjustPoints(ctx, playerID, e.displayName(ctx, playerID), amount, reason, e.opts.Now())
	if err != nil {
		return 0, err
	}
	if applied != 0 {
		log.Printf("Admin adjusted %s by %d points: %s", playerID, applied, reason)
		e.syncBalance(ctx, playerID)
	}
	return applied, nil
}

