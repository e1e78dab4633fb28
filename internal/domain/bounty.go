package domain

import "time"

// TransactionKind classifies a ledger entry
type TransactionKind string

const (
	KindEarned TransactionKind = "earned"
	KindSpent  TransactionKind = "spent"
	KindBonus  TransactionKind = "bonus"
)

// ContractStatus is the lifecycle state of a bounty contract
type ContractStatus string

const (
	ContractActive    ContractStatus = "active"
	ContractCompleted ContractStatus = "completed"
	ContractCancelled ContractStatus = "cancelled"
	ContractExpired   ContractStatus = "expired"
)

// Terminal reports whether no further transitions are allowed
func (s ContractStatus) Terminal() bool {
	return s != ContractActive
}

// Account is a player's bounty ledger entry. Balance always equals
// EarnedTotal - SpentTotal and never goes negative.
type Account struct {
	PlayerID       string     `json:"player_id"`
	Name           string     `json:"name"`
	Kills          int64      `json:"kills"`
	Deaths         int64      `json:"deaths"`
	Balance        int64      `json:"balance"`
	EarnedTotal    int64      `json:"earned_total"`
	SpentTotal     int64      `json:"spent_total"`
	KDRatio        float64    `json:"kd_ratio"`
	DiversityScore int        `json:"diversity_score"`
	LastKillAt     *time.Time `json:"last_kill_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Transaction is an immutable ledger entry
type Transaction struct {
	ID        int64           `json:"id"`
	PlayerID  string          `json:"player_id"`
	Kind      TransactionKind `json:"kind"`
	Amount    int64           `json:"amount"`
	Reason    string          `json:"reason"`
	KillID    *int64          `json:"kill_id,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// MasteryTier is a named skill bracket for one species
type MasteryTier string

const (
	TierNovice  MasteryTier = "Novice"
	TierAmateur MasteryTier = "Amateur"
	TierExpert  MasteryTier = "Expert"
	TierMaster  MasteryTier = "Master"
	TierLegend  MasteryTier = "Legend"
)

// Mastery tracks one player's progress with one species
type Mastery struct {
	PlayerID string      `json:"player_id"`
	Species  string      `json:"species"`
	Kills    int64       `json:"kills"`
	Tier     MasteryTier `json:"tier"`
	Bonus    int64       `json:"bonus"`
}

// Contract is a bounty placed by one player on another
type Contract struct {
	ID              int64          `json:"id"`
	TargetID        string         `json:"target_id"`
	TargetName      string         `json:"target_name"`
	Reward          int64          `json:"reward"`
	PlacerID        string         `json:"placer_id"`
	PlacerName      string         `json:"placer_name"`
	Reason          string         `json:"reason"`
	Status          ContractStatus `json:"status"`
	CompletedByID   *string        `json:"completed_by_id,omitempty"`
	CompletedByName *string        `json:"completed_by_name,omitempty"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
	ExpiresAt       *time.Time     `json:"expires_at,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}

// KillEvent is one row of the external kill log
type KillEvent struct {
	ID             int64     `json:"id"`
	KillerID       string    `json:"killer_id"`
	KillerName     string    `json:"killer_name"`
	VictimID       *string   `json:"victim_id,omitempty"`
	VictimName     string    `json:"victim_name"`
	KillerDino     string    `json:"killer_dino"`
	VictimDino     string    `json:"victim_dino"`
	IsNaturalDeath bool      `json:"is_natural_death"`
	Timestamp      time.Time `json:"timestamp"`
}

// IsPlayerKill reports whether the event should be credited
func (k KillEvent) IsPlayerKill() bool {
	return !k.IsNaturalDeath && k.VictimID != nil && *k.VictimID != "" && k.KillerID != ""
}

// AggregateStats is one player's totals from the bulk stats file
type AggregateStats struct {
	Name   string           `json:"player_name"`
	Kills  int64            `json:"kills"`
	Deaths int64            `json:"deaths"`
	Dinos  map[string]int64 `json:"dinos"`
}

// LeaderboardEntry is one row of the bounty leaderboard
type LeaderboardEntry struct {
	Rank           int     `json:"rank"`
	PlayerID       string  `json:"player_id"`
	Name           string  `json:"name"`
	Balance        int64   `json:"balance"`
	Kills          int64   `json:"kills"`
	Deaths         int64   `json:"deaths"`
	KDRatio        float64 `json:"kd_ratio"`
	DiversityScore int     `json:"diversity_score"`
}

// Overview summarizes the economy
type Overview struct {
	Accounts       int64   `json:"accounts"`
	TotalBalance   int64   `json:"total_balance"`
	AverageBalance float64 `json:"average_balance"`
	MaxBalance     int64   `json:"max_balance"`
	MinBalance     int64   `json:"min_balance"`
	TotalEarned    int64   `json:"total_earned"`
	TotalSpent     int64   `json:"total_spent"`
	// Circulating is lifetime earned minus lifetime spent.
	Circulating  int64 `json:"circulating"`
	ActiveBounty int64 `json:"active_contracts"`
}

// AccountDetail is an account with its mastery rows and recent transactions
type AccountDetail struct {
	Account      Account       `json:"account"`
	Mastery      []Mastery     `json:"mastery"`
	Transactions []Transaction `json:"transactions"`
}

// MyContracts splits a player's contracts by role
type MyContracts struct {
	Placed    []Contract `json:"placed"`
	Targeting []Contract `json:"targeting"`
}

// BountyLocation is an active contract target with a live position
type BountyLocation struct {
	Contract Contract     `json:"contract"`
	Player   PlayerRecord `json:"player"`
}

// SystemStats reports ledger sizes and processor progress
type SystemStats struct {
	Accounts     int64 `json:"accounts"`
	Transactions int64 `json:"transactions"`
	Contracts    int64 `json:"contracts"`
	CreditedKill int64 `json:"credited_kills"`
	TotalBalance int64 `json:"total_balance"`
	Watermark    int64 `json:"watermark"`
}

// CreditEvent announces a credited kill to external consumers
type CreditEvent struct {
	KillID     int64     `json:"kill_id"`
	PlayerID   string    `json:"player_id"`
	PlayerName string    `json:"player_name"`
	VictimName string    `json:"victim_name"`
	Amount     int64     `json:"amount"`
	Balance    int64     `json:"balance"`
	Streak     int64     `json:"streak_bonus"`
	CreditedAt time.Time `json:"credited_at"`
}
