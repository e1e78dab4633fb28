package storage

import (
	"database/sql"
	"time"

	"github.com/ernie/isle-tracker/internal/domain"
)

// Null scanner helpers - reduce repetitive nil-checking code

func scanNullString(ns sql.NullString) *string {
	if ns.Valid {
		return &ns.String
	}
	return nil
}

func scanNullTime(nt sql.NullTime) *time.Time {
	if nt.Valid {
		return &nt.Time
	}
	return nil
}

func scanNullInt64Ptr(ni sql.NullInt64) *int64 {
	if ni.Valid {
		return &ni.Int64
	}
	return nil
}

// scanner is an interface satisfied by both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

// scanAccount scans a row selected with accountColumns
func scanAccount(s scanner) (*domain.Account, error) {
	var a domain.Account
	var lastKill sql.NullTime
	err := s.Scan(&a.PlayerID, &a.Name, &a.Kills, &a.Deaths, &a.Balance, &a.EarnedTotal, &a.SpentTotal,
		&a.KDRatio, &a.DiversityScore, &lastKill, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.LastKillAt = scanNullTime(lastKill)
	return &a, nil
}

func scanTransaction(s scanner) (*domain.Transaction, error) {
	var t domain.Transaction
	var kind string
	var killID sql.NullInt64
	if err := s.Scan(&t.ID, &t.PlayerID, &kind, &t.Amount, &t.Reason, &killID, &t.CreatedAt); err != nil {
		return nil, err
	}
	t.Kind = domain.TransactionKind(kind)
	t.KillID = scanNullInt64Ptr(killID)
	return &t, nil
}

// scanContract scans a row selected with contractColumns
func scanContract(s scanner) (*domain.Contract, error) {
	var c domain.Contract
	var status string
	var completedByID, completedByName sql.NullString
	var completedAt, expiresAt sql.NullTime
	err := s.Scan(&c.ID, &c.TargetID, &c.TargetName, &c.Reward, &c.PlacerID, &c.PlacerName, &c.Reason,
		&status, &completedByID, &completedByName, &completedAt, &expiresAt, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	c.Status = domain.ContractStatus(status)
	c.CompletedByID = scanNullString(completedByID)
	c.CompletedByName = scanNullString(completedByName)
	c.CompletedAt = scanNullTime(completedAt)
	c.ExpiresAt = scanNullTime(expiresAt)
	return &c, nil
}
