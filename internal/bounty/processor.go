package bounty

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ernie/isle-tracker/internal/domain"
	"github.com/ernie/isle-tracker/internal/scoring"
	"github.com/ernie/isle-tracker/internal/storage"
)

// streakWindow is how far back kills count toward a streak
const streakWindow = 24 * time.Hour

// CycleResult summarizes one processing cycle
type CycleResult struct {
	Fetched   int
	Credited  int
	Skipped   int
	Failed    int
	Contracts int
	Watermark int64
}

// ProcessNewKills folds the next batch of player kills past the watermark
// into the ledger. A kill that fails to apply is logged and later kills are
// still applied, but the watermark stops just before the failed kill so the
// next cycle retries it. Kills already applied are skipped on retry.
//
// The first cycle against an empty watermark starts at the newest kill:
// history before that point is covered by the aggregate import.
func (e *Engine) ProcessNewKills(ctx context.Context) (CycleResult, error) {
	if !e.running.CompareAndSwap(false, true) {
		return CycleResult{}, ErrCycleInProgress
	}
	defer e.running.Store(false)

	var res CycleResult
	wm, ok, err := e.store.Watermark(ctx)
	if err != nil {
		return res, fmt.Errorf("reading watermark: %w", err)
	}
	if !ok {
		maxID, err := e.kills.MaxKillID(ctx)
		if err != nil {
			return res, err
		}
		if err := e.store.AdvanceWatermark(ctx, maxID); err != nil {
			return res, fmt.Errorf("initializing watermark: %w", err)
		}
		log.Printf("Bounty: kill processing starts after kill %d", maxID)
		res.Watermark = maxID
		return res, nil
	}

	kills, err := e.kills.KillsAfter(ctx, wm, e.cfg.BatchSize)
	if err != nil {
		return res, err
	}
	res.Fetched = len(kills)

	advance := wm
	blocked := false
	for _, k := range kills {
		if ctx.Err() != nil {
			break
		}
		credited, completed, err := e.applyKill(ctx, k)
		if err != nil {
			log.Printf("Error crediting kill: %v", err)
			res.Failed++
			blocked = true
			continue
		}
		if credited {
			res.Credited++
		} else {
			res.Skipped++
		}
		res.Contracts += len(completed)
		if !blocked {
			advance = k.ID
		}
	}

	if advance > wm {
		if err := e.store.AdvanceWatermark(ctx, advance); err != nil {
			return res, fmt.Errorf("advancing watermark: %w", err)
		}
	}
	res.Watermark = advance
	return res, nil
}

// CreditPushedKill applies a kill delivered by the bus or webhook. It takes
// the same path as the poll cycle, so a kill seen both ways is credited once.
// The watermark is left to the poll cycle.
func (e *Engine) CreditPushedKill(ctx context.Context, k domain.KillEvent) (bool, error) {
	if k.ID <= 0 {
		return false, fmt.Errorf("kill %d: %w", k.ID, domain.ErrInvalidKill)
	}
	if !k.IsPlayerKill() {
		return false, fmt.Errorf("kill %d: %w", k.ID, domain.ErrNotPlayerKill)
	}
	credited, _, err := e.applyKill(ctx, k)
	return credited, err
}

// applyKill scores and credits one kill. Contracts on the victim are settled
// in the same ledger write, so a failure leaves both for the next attempt.
func (e *Engine) applyKill(ctx context.Context, k domain.KillEvent) (bool, []domain.Contract, error) {
	now := e.opts.Now()

	done, err := e.store.IsCredited(ctx, k.ID)
	if err != nil {
		return false, nil, &domain.LedgerWriteError{KillID: k.ID, Err: err}
	}
	if done {
		return false, nil, nil
	}

	recent, err := e.kills.RecentKillCount(ctx, k.KillerID, now.Add(-streakWindow))
	if err != nil {
		return false, nil, &domain.LedgerWriteError{KillID: k.ID, Err: err}
	}
	amount := scoring.ScoreKillEvent(e.opts.Random, recent)
	streak := scoring.StreakBonus(recent)

	reason := "Kill reward: " + k.VictimName
	if streak > 0 {
		reason += fmt.Sprintf(" +%d streak bonus", streak)
	}

	credited, completed, err := e.store.CreditKill(ctx, storage.KillCredit{Kill: k, Amount: amount, Reason: reason}, now)
	if err != nil {
		return false, nil, &domain.LedgerWriteError{KillID: k.ID, Err: err}
	}
	if !credited {
		return false, nil, nil
	}

	for _, c := range completed {
		log.Printf("Contract #%d on %s completed by %s (%d points)", c.ID, c.TargetName, k.KillerName, c.Reward)
		e.publishContract(ctx, c)
	}

	e.syncBalance(ctx, k.KillerID)
	if e.opts.Publisher != nil {
		ev := domain.CreditEvent{
			KillID:     k.ID,
			PlayerID:   k.KillerID,
			PlayerName: k.KillerName,
			VictimName: k.VictimName,
			Amount:     amount,
			Streak:     streak,
			CreditedAt: now,
		}
		if a, err := e.store.GetAccount(ctx, k.KillerID); err == nil {
			ev.Balance = a.Balance
		}
		if err := e.opts.Publisher.PublishCredit(ctx, ev); err != nil {
			log.Printf("Warning: publishing credit for kill %d: %v", k.ID, err)
		}
	}
	return true, completed, nil
}
