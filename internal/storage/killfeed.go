package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ernie/isle-tracker/internal/domain"
)

// killTimeLayouts covers the formats the kill-feed bot has written over time
var killTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z",
	"2006.01.02-15.04.05",
	"2006.01.02-15.04.05.000",
}

func parseKillTime(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range killTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// KillFeed reads the append-only kills table written by the kill-feed bot.
// It never writes.
type KillFeed struct {
	db *sql.DB
}

// OpenKillFeed opens the kill database read-only
func OpenKillFeed(path string) (*KillFeed, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening kill feed: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("opening kill feed: %w", err)
	}
	return &KillFeed{db: db}, nil
}

// Close closes the database connection
func (f *KillFeed) Close() error {
	return f.db.Close()
}

// KillsAfter returns up to limit player-vs-player kills with ID greater than
// after, in ID order. Natural deaths and kills without a victim are skipped.
func (f *KillFeed) KillsAfter(ctx context.Context, after int64, limit int) ([]domain.KillEvent, error) {
	rows, err := f.db.QueryContext(ctx, `
		SELECT id, killer_name, killer_id, victim_name, victim_id,
			killer_dino, victim_dino, is_natural_death, timestamp, created_at
		FROM kills
		WHERE id > ? AND is_natural_death = 0 AND victim_id IS NOT NULL
		ORDER BY id ASC
		LIMIT ?
	`, after, limit)
	if err != nil {
		return nil, fmt.Errorf("querying kills: %w", err)
	}
	defer rows.Close()

	var kills []domain.KillEvent
	for rows.Next() {
		var k domain.KillEvent
		var killerName, killerID, victimName, victimID, killerDino, victimDino, ts, createdAt sql.NullString
		var natural sql.NullBool
		if err := rows.Scan(&k.ID, &killerName, &killerID, &victimName, &victimID,
			&killerDino, &victimDino, &natural, &ts, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning kill: %w", err)
		}
		k.KillerName = killerName.String
		k.KillerID = killerID.String
		k.VictimName = victimName.String
		k.VictimID = scanNullString(victimID)
		k.KillerDino = killerDino.String
		k.VictimDino = victimDino.String
		k.IsNaturalDeath = natural.Bool

		k.Timestamp = parseKillTime(ts.String)
		if k.Timestamp.IsZero() {
			k.Timestamp = parseKillTime(createdAt.String)
		}
		kills = append(kills, k)
	}
	return kills, rows.Err()
}

// MaxKillID returns the highest player-kill ID, or 0 when the table is empty
func (f *KillFeed) MaxKillID(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	if err := f.db.QueryRowContext(ctx, "SELECT MAX(id) FROM kills WHERE is_natural_death = 0").Scan(&id); err != nil {
		return 0, fmt.Errorf("reading max kill id: %w", err)
	}
	return id.Int64, nil
}

// RecentKillCount counts a killer's player kills recorded since the given time
func (f *KillFeed) RecentKillCount(ctx context.Context, killerID string, since time.Time) (int64, error) {
	var n int64
	err := f.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM kills
		WHERE killer_id = ? AND is_natural_death = 0 AND victim_id IS NOT NULL
			AND created_at > ?
	`, killerID, since.UTC().Format("2006-01-02 15:04:05")).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting recent kills: %w", err)
	}
	return n, nil
}
