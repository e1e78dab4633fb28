package bounty

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/ernie/isle-tracker/internal/domain"
	"github.com/ernie/isle-tracker/internal/scoring"
	"github.com/ernie/isle-tracker/internal/storage"
)

// LoadAggregateStats reads the bulk stats file, keyed by player ID
func LoadAggregateStats(path string) (map[string]domain.AggregateStats, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading aggregate stats: %w", err)
	}
	var stats map[string]domain.AggregateStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("parsing aggregate stats: %w", err)
	}
	return stats, nil
}

// ImportAggregate seeds the ledger from historical totals. It only runs
// against an empty ledger and returns the number of accounts created.
// Players with neither kills nor deaths are skipped.
func (e *Engine) ImportAggregate(ctx context.Context, stats map[string]domain.AggregateStats) (int, error) {
	has, err := e.store.HasAccounts(ctx)
	if err != nil {
		return 0, err
	}
	if has {
		log.Println("Bounty: ledger already has accounts, skipping import")
		return 0, nil
	}

	ids := make([]string, 0, len(stats))
	for id := range stats {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	rows := make([]storage.ImportRow, 0, len(ids))
	for _, id := range ids {
		st := stats[id]
		if st.Kills <= 0 && st.Deaths <= 0 {
			continue
		}
		if st.Name == "" {
			st.Name = id
		}
		rows = append(rows, storage.ImportRow{
			PlayerID: id,
			Stats:    st,
			Points:   scoring.ScoreAggregate(st.Kills, st.Deaths, st.Dinos),
		})
	}
	if len(rows) == 0 {
		return 0, nil
	}

	if err := e.store.ImportAccounts(ctx, rows, e.opts.Now()); err != nil {
		return 0, err
	}
	log.Printf("Bounty: imported %d accounts from aggregate stats", len(rows))

	if err := e.RebuildIndex(ctx); err != nil {
		log.Printf("Warning: leaderboard index rebuild failed: %v", err)
	}
	return len(rows), nil
}

// ImportAggregateFile loads path and imports it. A missing file is not an
// error: the ledger simply starts empty.
func (e *Engine) ImportAggregateFile(ctx context.Context, path string) (int, error) {
	if path == "" {
		return 0, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		log.Printf("Warning: aggregate stats %s not found, ledger starts empty", path)
		return 0, nil
	}
	stats, err := LoadAggregateStats(path)
	if err != nil {
		return 0, err
	}
	return e.ImportAggregate(ctx, stats)
}
