package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ernie/isle-tracker/internal/domain"
	"github.com/ernie/isle-tracker/internal/scoring"
	_ "modernc.org/sqlite"
)

// formatTimestamp converts time.Time to SQLite-compatible UTC ISO8601 string
// The Z suffix ensures the Go sqlite driver parses it back as UTC
func formatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

//go:embed schema.sql
var schema string

const watermarkKey = "last_processed_kill_id"

// Store is the bounty ledger
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON; PRAGMA journal_mode = WAL; PRAGMA busy_timeout = 5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting pragmas: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// execer is satisfied by *sql.DB and *sql.Tx
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// --- Account methods ---

// ensureAccount creates the account with zero balances if it does not exist.
// A non-empty name replaces the stored one.
func ensureAccount(ctx context.Context, ex execer, playerID, name string, now time.Time) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO bounty_accounts (player_id, name, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(player_id) DO UPDATE SET
			name = CASE WHEN excluded.name <> '' THEN excluded.name ELSE bounty_accounts.name END,
			updated_at = excluded.updated_at
	`, playerID, name, formatTimestamp(now), formatTimestamp(now))
	if err != nil {
		return fmt.Errorf("upserting account %s: %w", playerID, err)
	}
	return nil
}

// credit adds amount to balance and earned total and records a transaction
func credit(ctx context.Context, ex execer, playerID string, kind domain.TransactionKind, amount int64, reason string, killID *int64, now time.Time) error {
	if _, err := ex.ExecContext(ctx, `
		UPDATE bounty_accounts
		SET balance = balance + ?, earned_total = earned_total + ?, updated_at = ?
		WHERE player_id = ?
	`, amount, amount, formatTimestamp(now), playerID); err != nil {
		return fmt.Errorf("crediting %s: %w", playerID, err)
	}
	return insertTransaction(ctx, ex, playerID, kind, amount, reason, killID, now)
}

func insertTransaction(ctx context.Context, ex execer, playerID string, kind domain.TransactionKind, amount int64, reason string, killID *int64, now time.Time) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO bounty_transactions (player_id, kind, amount, reason, kill_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, playerID, string(kind), amount, reason, killID, formatTimestamp(now))
	if err != nil {
		return fmt.Errorf("recording transaction: %w", err)
	}
	return nil
}

// refreshDerived recomputes kd ratio and diversity for an account
func refreshDerived(ctx context.Context, ex execer, playerID string) error {
	_, err := ex.ExecContext(ctx, `
		UPDATE bounty_accounts
		SET kd_ratio = CAST(kills AS REAL) / MAX(deaths, 1),
			diversity_score = (SELECT COUNT(*) FROM bounty_mastery WHERE player_id = ? AND kills > 0)
		WHERE player_id = ?
	`, playerID, playerID)
	if err != nil {
		return fmt.Errorf("refreshing derived stats for %s: %w", playerID, err)
	}
	return nil
}

// bumpMastery adds one kill for the species and recomputes its tier
func bumpMastery(ctx context.Context, ex execer, playerID, species string, now time.Time) error {
	var kills int64
	err := ex.QueryRowContext(ctx, `
		SELECT kills FROM bounty_mastery WHERE player_id = ? AND species = ?
	`, playerID, species).Scan(&kills)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("reading mastery: %w", err)
	}
	return setMastery(ctx, ex, playerID, species, kills+1, now)
}

func setMastery(ctx context.Context, ex execer, playerID, species string, kills int64, now time.Time) error {
	tier, bonus := scoring.MasteryTier(kills)
	_, err := ex.ExecContext(ctx, `
		INSERT INTO bounty_mastery (player_id, species, kills, tier, bonus, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(player_id, species) DO UPDATE SET
			kills = excluded.kills,
			tier = excluded.tier,
			bonus = excluded.bonus,
			updated_at = excluded.updated_at
	`, playerID, species, kills, string(tier), bonus, formatTimestamp(now))
	if err != nil {
		return fmt.Errorf("writing mastery %s/%s: %w", playerID, species, err)
	}
	return nil
}

// HasAccounts reports whether any account exists
func (s *Store) HasAccounts(ctx context.Context) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM (SELECT 1 FROM bounty_accounts LIMIT 1)").Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// ImportRow is one player from the aggregate stats file with its computed score
type ImportRow struct {
	PlayerID string
	Stats    domain.AggregateStats
	Points   int64
}

// ImportAccounts creates accounts from aggregate stats in a single transaction.
// Each account gets one initial earned transaction and a mastery row per species.
func (s *Store) ImportAccounts(ctx context.Context, rows []ImportRow, now time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	for _, r := range rows {
		var diversity int
		for _, n := range r.Stats.Dinos {
			if n > 0 {
				diversity++
			}
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO bounty_accounts
				(player_id, name, kills, deaths, balance, earned_total, kd_ratio, diversity_score, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, r.PlayerID, r.Stats.Name, r.Stats.Kills, r.Stats.Deaths, r.Points, r.Points,
			scoring.KDRatio(r.Stats.Kills, r.Stats.Deaths), diversity, formatTimestamp(now), formatTimestamp(now))
		if err != nil {
			return fmt.Errorf("importing %s: %w", r.PlayerID, err)
		}

		if err := insertTransaction(ctx, tx, r.PlayerID, domain.KindEarned, r.Points, "Initial import", nil, now); err != nil {
			return err
		}

		for species, n := range r.Stats.Dinos {
			if n <= 0 {
				continue
			}
			if err := setMastery(ctx, tx, r.PlayerID, species, n, now); err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

// KillCredit is one scored kill ready to be applied
type KillCredit struct {
	Kill   domain.KillEvent
	Amount int64
	Reason string
}

// CreditKill applies a scored kill in one transaction: the killer is credited
// and gains a kill and species mastery, the victim gains a death, and every
// live contract on the victim is completed in the killer's favour. Returns
// false without changing anything if the kill was already credited.
func (s *Store) CreditKill(ctx context.Context, c KillCredit, now time.Time) (bool, []domain.Contract, error) {
	k := c.Kill
	if k.ID <= 0 {
		return false, nil, fmt.Errorf("kill %d: %w", k.ID, domain.ErrInvalidKill)
	}
	if !k.IsPlayerKill() {
		return false, nil, fmt.Errorf("kill %d: %w", k.ID, domain.ErrNotPlayerKill)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	var seen int
	err = tx.QueryRowContext(ctx, "SELECT 1 FROM credited_kills WHERE kill_id = ?", k.ID).Scan(&seen)
	if err == nil {
		return false, nil, nil
	}
	if err != sql.ErrNoRows {
		return false, nil, fmt.Errorf("checking kill %d: %w", k.ID, err)
	}

	killedAt := k.Timestamp
	if killedAt.IsZero() {
		killedAt = now
	}

	if err := ensureAccount(ctx, tx, k.KillerID, k.KillerName, now); err != nil {
		return false, nil, err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE bounty_accounts SET kills = kills + 1, last_kill_at = ? WHERE player_id = ?
	`, formatTimestamp(killedAt), k.KillerID); err != nil {
		return false, nil, fmt.Errorf("counting kill: %w", err)
	}

	killID := k.ID
	if err := credit(ctx, tx, k.KillerID, domain.KindEarned, c.Amount, c.Reason, &killID, now); err != nil {
		return false, nil, err
	}

	if k.KillerDino != "" {
		if err := bumpMastery(ctx, tx, k.KillerID, k.KillerDino, now); err != nil {
			return false, nil, err
		}
	}

	victimID := *k.VictimID
	if err := ensureAccount(ctx, tx, victimID, k.VictimName, now); err != nil {
		return false, nil, err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE bounty_accounts SET deaths = deaths + 1 WHERE player_id = ?
	`, victimID); err != nil {
		return false, nil, fmt.Errorf("counting death: %w", err)
	}

	for _, id := range []string{k.KillerID, victimID} {
		if err := refreshDerived(ctx, tx, id); err != nil {
			return false, nil, err
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO credited_kills (kill_id, player_id, amount, credited_at) VALUES (?, ?, ?, ?)
	`, k.ID, k.KillerID, c.Amount, formatTimestamp(now)); err != nil {
		return false, nil, fmt.Errorf("marking kill %d credited: %w", k.ID, err)
	}

	completed, err := completeContracts(ctx, tx, victimID, k.KillerID, k.KillerName, now)
	if err != nil {
		return false, nil, fmt.Errorf("settling contracts on %s: %w", victimID, err)
	}

	if err := tx.Commit(); err != nil {
		return false, nil, fmt.Errorf("committing kill %d: %w", k.ID, err)
	}
	return true, completed, nil
}

// IsCredited reports whether a kill has already been applied
func (s *Store) IsCredited(ctx context.Context, killID int64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM credited_kills WHERE kill_id = ?", killID).Scan(&n)
	return n > 0, err
}

// AdjustPoints applies an admin correction. Positive amounts are credited as
// bonus; negative amounts are spent, capped at the current balance. Returns
// the signed amount actually applied.
func (s *Store) AdjustPoints(ctx context.Context, playerID, name string, amount int64, reason string, now time.Time) (int64, error) {
	if amount == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if amount > 0 {
		if err := ensureAccount(ctx, tx, playerID, name, now); err != nil {
			return 0, err
		}
		if err := credit(ctx, tx, playerID, domain.KindBonus, amount, reason, nil, now); err != nil {
			return 0, err
		}
		return amount, tx.Commit()
	}

	var balance int64
	err = tx.QueryRowContext(ctx, "SELECT balance FROM bounty_accounts WHERE player_id = ?", playerID).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("account %s: %w", playerID, domain.ErrNotFound)
	}
	if err != nil {
		return 0, err
	}

	spend := min(-amount, balance)
	if spend == 0 {
		return 0, nil
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE bounty_accounts
		SET balance = balance - ?, spent_total = spent_total + ?, updated_at = ?
		WHERE player_id = ?
	`, spend, spend, formatTimestamp(now), playerID); err != nil {
		return 0, fmt.Errorf("debiting %s: %w", playerID, err)
	}
	if err := insertTransaction(ctx, tx, playerID, domain.KindSpent, -spend, reason, nil, now); err != nil {
		return 0, err
	}
	return -spend, tx.Commit()
}

// --- Watermark ---

// Watermark returns the highest kill ID folded into the ledger. ok is false
// when no watermark has been stored yet.
func (s *Store) Watermark(ctx context.Context) (id int64, ok bool, err error) {
	err = s.db.QueryRowContext(ctx, "SELECT value FROM processor_state WHERE key = ?", watermarkKey).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("reading watermark: %w", err)
	}
	return id, true, nil
}

// AdvanceWatermark raises the watermark to id. It never moves backwards.
func (s *Store) AdvanceWatermark(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO processor_state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = MAX(processor_state.value, excluded.value)
	`, watermarkKey, id)
	if err != nil {
		return fmt.Errorf("advancing watermark: %w", err)
	}
	return nil
}

// --- Maintenance ---

// PruneTransactions deletes transaction history older than before.
// Balances are running totals and are not touched.
func (s *Store) PruneTransactions(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM bounty_transactions WHERE created_at < ?", formatTimestamp(before))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// --- Queries ---

const accountColumns = `player_id, name, kills, deaths, balance, earned_total, spent_total,
	kd_ratio, diversity_score, last_kill_at, created_at, updated_at`

// GetAccount returns one account
func (s *Store) GetAccount(ctx context.Context, playerID string) (*domain.Account, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+accountColumns+" FROM bounty_accounts WHERE player_id = ?", playerID)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", playerID, domain.ErrNotFound)
	}
	return a, err
}

// ListAccounts returns every account ordered by player ID
func (s *Store) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+accountColumns+" FROM bounty_accounts ORDER BY player_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

// AccountsByIDs returns the named accounts in the order given. Unknown IDs are skipped.
func (s *Store) AccountsByIDs(ctx context.Context, ids []string) ([]domain.Account, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat("?,", len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, "SELECT "+accountColumns+" FROM bounty_accounts WHERE player_id IN ("+
		placeholders[:len(placeholders)-1]+")", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[string]domain.Account, len(ids))
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		byID[a.PlayerID] = *a
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]domain.Account, 0, len(byID))
	for _, id := range ids {
		if a, ok := byID[id]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

// Leaderboard returns accounts with a positive balance, richest first
func (s *Store) Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT player_id, name, balance, kills, deaths, kd_ratio, diversity_score
		FROM bounty_accounts
		WHERE balance > 0
		ORDER BY balance DESC, earned_total DESC, player_id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.LeaderboardEntry
	for rows.Next() {
		var e domain.LeaderboardEntry
		if err := rows.Scan(&e.PlayerID, &e.Name, &e.Balance, &e.Kills, &e.Deaths, &e.KDRatio, &e.DiversityScore); err != nil {
			return nil, err
		}
		e.Rank = len(entries) + 1
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Overview aggregates balances across all accounts
func (s *Store) Overview(ctx context.Context, now time.Time) (*domain.Overview, error) {
	var o domain.Overview
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(balance), 0),
			COALESCE(AVG(balance), 0),
			COALESCE(MAX(balance), 0),
			COALESCE(MIN(balance), 0),
			COALESCE(SUM(earned_total), 0),
			COALESCE(SUM(spent_total), 0)
		FROM bounty_accounts
	`).Scan(&o.Accounts, &o.TotalBalance, &o.AverageBalance, &o.MaxBalance, &o.MinBalance, &o.TotalEarned, &o.TotalSpent)
	if err != nil {
		return nil, fmt.Errorf("aggregating balances: %w", err)
	}
	o.Circulating = o.TotalEarned - o.TotalSpent

	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM bounty_contracts
		WHERE status = 'active' AND (expires_at IS NULL OR expires_at > ?)
	`, formatTimestamp(now)).Scan(&o.ActiveBounty); err != nil {
		return nil, fmt.Errorf("counting contracts: %w", err)
	}
	return &o, nil
}

// Mastery returns an account's species rows, most kills first
func (s *Store) Mastery(ctx context.Context, playerID string) ([]domain.Mastery, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT player_id, species, kills, tier, bonus
		FROM bounty_mastery WHERE player_id = ?
		ORDER BY kills DESC, species
	`, playerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Mastery
	for rows.Next() {
		var m domain.Mastery
		var tier string
		if err := rows.Scan(&m.PlayerID, &m.Species, &m.Kills, &tier, &m.Bonus); err != nil {
			return nil, err
		}
		m.Tier = domain.MasteryTier(tier)
		out = append(out, m)
	}
	return out, rows.Err()
}

// Transactions returns an account's most recent transactions
func (s *Store) Transactions(ctx context.Context, playerID string, limit int) ([]domain.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, player_id, kind, amount, reason, kill_id, created_at
		FROM bounty_transactions WHERE player_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, playerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// CountTransactions returns the number of stored transactions, optionally for one player
func (s *Store) CountTransactions(ctx context.Context, playerID string) (int64, error) {
	var n int64
	var err error
	if playerID == "" {
		err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM bounty_transactions").Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM bounty_transactions WHERE player_id = ?", playerID).Scan(&n)
	}
	return n, err
}

// Stats reports table sizes and the watermark
func (s *Store) Stats(ctx context.Context) (*domain.SystemStats, error) {
	var st domain.SystemStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM bounty_accounts),
			(SELECT COUNT(*) FROM bounty_transactions),
			(SELECT COUNT(*) FROM bounty_contracts),
			(SELECT COUNT(*) FROM credited_kills),
			(SELECT COALESCE(SUM(balance), 0) FROM bounty_accounts),
			COALESCE((SELECT value FROM processor_state WHERE key = ?), 0)
	`, watermarkKey).Scan(&st.Accounts, &st.Transactions, &st.Contracts, &st.CreditedKill, &st.TotalBalance, &st.Watermark)
	if err != nil {
		return nil, fmt.Errorf("reading stats: %w", err)
	}
	return &st, nil
}
