package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ernie/isle-tracker/internal/domain"
)

const contractColumns = `id, target_id, target_name, reward, placer_id, placer_name, reason,
	status, completed_by_id, completed_by_name, completed_at, expires_at, created_at`

// InsertContract stores a new active contract and sets its ID
func (s *Store) InsertContract(ctx context.Context, c *domain.Contract) error {
	var expires any
	if c.ExpiresAt != nil {
		expires = formatTimestamp(*c.ExpiresAt)
	}
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO bounty_contracts (target_id, target_name, reward, placer_id, placer_name, reason, status, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 'active', ?, ?)
	`, c.TargetID, c.TargetName, c.Reward, c.PlacerID, c.PlacerName, c.Reason, expires, formatTimestamp(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting contract: %w", err)
	}
	c.ID, _ = result.LastInsertId()
	c.Status = domain.ContractActive
	return nil
}

// GetContract returns one contract
func (s *Store) GetContract(ctx context.Context, id int64) (*domain.Contract, error) {
	c, err := scanContract(s.db.QueryRowContext(ctx, "SELECT "+contractColumns+" FROM bounty_contracts WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("contract %d: %w", id, domain.ErrNotFound)
	}
	return c, err
}

// CancelContract moves an active contract to cancelled. Only the placer may cancel.
func (s *Store) CancelContract(ctx context.Context, id int64, requesterID string, now time.Time) (*domain.Contract, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	c, err := scanContract(tx.QueryRowContext(ctx, "SELECT "+contractColumns+" FROM bounty_contracts WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("contract %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	if c.PlacerID != requesterID {
		return nil, &domain.InvalidContractError{Reason: "only the player who placed a contract can cancel it"}
	}
	if c.Status != domain.ContractActive {
		return nil, &domain.InvalidContractError{Reason: fmt.Sprintf("contract is already %s", c.Status)}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE bounty_contracts SET status = 'cancelled', completed_at = ? WHERE id = ? AND status = 'active'
	`, formatTimestamp(now), id); err != nil {
		return nil, fmt.Errorf("cancelling contract %d: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	c.Status = domain.ContractCancelled
	c.CompletedAt = &now
	return c, nil
}

// CompleteContracts fulfils every live contract on targetID in favour of the
// killer, crediting each reward as a bonus. A target killing themself
// completes nothing.
func (s *Store) CompleteContracts(ctx context.Context, targetID, killerID, killerName string, now time.Time) ([]domain.Contract, error) {
	if targetID == "" || killerID == "" || targetID == killerID {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	completed, err := completeContracts(ctx, tx, targetID, killerID, killerName, now)
	if err != nil {
		return nil, err
	}
	if len(completed) == 0 {
		return nil, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing contract completion: %w", err)
	}
	return completed, nil
}

// completeContracts settles live contracts on targetID inside tx
func completeContracts(ctx context.Context, tx *sql.Tx, targetID, killerID, killerName string, now time.Time) ([]domain.Contract, error) {
	if targetID == "" || killerID == "" || targetID == killerID {
		return nil, nil
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT `+contractColumns+` FROM bounty_contracts
		WHERE target_id = ? AND status = 'active' AND (expires_at IS NULL OR expires_at > ?)
		ORDER BY id
	`, targetID, formatTimestamp(now))
	if err != nil {
		return nil, err
	}
	var open []domain.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		open = append(open, *c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(open) == 0 {
		return nil, nil
	}

	if err := ensureAccount(ctx, tx, killerID, killerName, now); err != nil {
		return nil, err
	}

	completed := make([]domain.Contract, 0, len(open))
	for _, c := range open {
		result, err := tx.ExecContext(ctx, `
			UPDATE bounty_contracts
			SET status = 'completed', completed_by_id = ?, completed_by_name = ?, completed_at = ?
			WHERE id = ? AND status = 'active'
		`, killerID, killerName, formatTimestamp(now), c.ID)
		if err != nil {
			return nil, fmt.Errorf("completing contract %d: %w", c.ID, err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			continue
		}

		reason := fmt.Sprintf("Bounty contract #%d on %s", c.ID, c.TargetName)
		if err := credit(ctx, tx, killerID, domain.KindBonus, c.Reward, reason, nil, now); err != nil {
			return nil, err
		}

		c.Status = domain.ContractCompleted
		c.CompletedByID = &killerID
		c.CompletedByName = &killerName
		c.CompletedAt = &now
		completed = append(completed, c)
	}
	return completed, nil
}

// ExpireContracts moves active contracts past their expiry to expired
func (s *Store) ExpireContracts(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE bounty_contracts SET status = 'expired'
		WHERE status = 'active' AND expires_at IS NOT NULL AND expires_at <= ?
	`, formatTimestamp(now))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// ActiveContracts returns live contracts, biggest reward first
func (s *Store) ActiveContracts(ctx context.Context, now time.Time) ([]domain.Contract, error) {
	return s.queryContracts(ctx, `
		SELECT `+contractColumns+` FROM bounty_contracts
		WHERE status = 'active' AND (expires_at IS NULL OR expires_at > ?)
		ORDER BY reward DESC, created_at, id
	`, formatTimestamp(now))
}

// ContractsPlacedBy returns every contract a player placed, newest first
func (s *Store) ContractsPlacedBy(ctx context.Context, playerID string) ([]domain.Contract, error) {
	return s.queryContracts(ctx, `
		SELECT `+contractColumns+` FROM bounty_contracts WHERE placer_id = ? ORDER BY created_at DESC, id DESC
	`, playerID)
}

// ContractsTargeting returns every contract on a player, newest first
func (s *Store) ContractsTargeting(ctx context.Context, playerID string) ([]domain.Contract, error) {
	return s.queryContracts(ctx, `
		SELECT `+contractColumns+` FROM bounty_contracts WHERE target_id = ? ORDER BY created_at DESC, id DESC
	`, playerID)
}

func (s *Store) queryContracts(ctx context.Context, query string, args ...any) ([]domain.Contract, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}
