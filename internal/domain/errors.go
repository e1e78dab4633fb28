package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors. Typed errors below unwrap to these so callers can use errors.Is.
var (
	ErrConnection          = errors.New("rcon connection failed")
	ErrResponseTimeout     = errors.New("rcon response timed out")
	ErrConnectionExhausted = errors.New("rcon connect attempts exhausted")
	ErrCacheExhausted      = errors.New("no live data and cache expired")
	ErrLedgerWrite         = errors.New("ledger write failed")
	ErrInvalidContract     = errors.New("invalid contract")
	ErrNotFound            = errors.New("not found")
	ErrUnknownCommand      = errors.New("unknown rcon command")
	ErrNotPlayerKill       = errors.New("not a player kill")
	ErrInvalidKill         = errors.New("kill has no sequence number")
)

// ConnectionError wraps a socket-level failure (refused, reset, dial timeout)
type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("rcon connection to %s: %v", e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() []error { return []error{ErrConnection, e.Err} }

// ResponseTimeoutError is returned when the peer sends nothing within the timeout
type ResponseTimeoutError struct {
	Timeout time.Duration
}

func (e *ResponseTimeoutError) Error() string {
	return fmt.Sprintf("no rcon response within %v", e.Timeout)
}

func (e *ResponseTimeoutError) Unwrap() error { return ErrResponseTimeout }

// ConnectionExhaustedError is returned when every connect attempt in a sequence failed
type ConnectionExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ConnectionExhaustedError) Error() string {
	return fmt.Sprintf("rcon connect failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ConnectionExhaustedError) Unwrap() []error { return []error{ErrConnectionExhausted, e.Last} }

// CacheExhaustedError is returned when the live fetch failed and the cache is stale or empty
type CacheExhaustedError struct {
	What string
	Age  time.Duration // zero when nothing was ever cached
	Err  error
}

func (e *CacheExhaustedError) Error() string {
	if e.Age == 0 {
		return fmt.Sprintf("%s unavailable and nothing cached: %v", e.What, e.Err)
	}
	return fmt.Sprintf("%s unavailable and cache is %v old: %v", e.What, e.Age.Round(time.Second), e.Err)
}

func (e *CacheExhaustedError) Unwrap() []error { return []error{ErrCacheExhausted, e.Err} }

// LedgerWriteError is returned when crediting a single kill fails
type LedgerWriteError struct {
	KillID int64
	Err    error
}

func (e *LedgerWriteError) Error() string {
	return fmt.Sprintf("crediting kill %d: %v", e.KillID, e.Err)
}

func (e *LedgerWriteError) Unwrap() []error { return []error{ErrLedgerWrite, e.Err} }

// InvalidContractError is a synchronous rejection of a contract operation
type InvalidContractError struct {
	Reason string
}

func (e *InvalidContractError) Error() string {
	return "invalid contract: " + e.Reason
}

func (e *InvalidContractError) Unwrap() error { return ErrInvalidContract }

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}
