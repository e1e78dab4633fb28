package domain

import "time"

// ServerSnapshot holds the metadata returned by a serverinfo poll
type ServerSnapshot struct {
	Name           string `json:"name"`
	Map            string `json:"map"`
	CurrentPlayers int    `json:"current_players"`
	MaxPlayers     int    `json:"max_players"`
	DayLength      int    `json:"day_length_minutes"`
	NightLength    int    `json:"night_length_minutes"`
	// Note is set when the server answered with a player dump instead of metadata.
	Note string `json:"note,omitempty"`
}

// Provenance tells a caller whether data came from a live poll or the cache
type Provenance struct {
	Cached bool          `json:"from_cache"`
	Age    time.Duration `json:"cache_age"`
}

// Live is the provenance of freshly fetched data
func Live() Provenance {
	return Provenance{}
}

// Cached is the provenance of data served from cache at the given age
func Cached(age time.Duration) Provenance {
	return Provenance{Cached: true, Age: age}
}

// Result pairs fetched data with its provenance
type Result[T any] struct {
	Data       T          `json:"data"`
	Provenance Provenance `json:"provenance"`
}

// ConnectionState is the RCON manager's link state
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateDegraded
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name in JSON
func (s ConnectionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ConnectionStatus is a point-in-time report on the RCON link and cache
type ConnectionStatus struct {
	State        ConnectionState `json:"state"`
	Connected    bool            `json:"connected"`
	Connecting   bool            `json:"connecting"`
	Attempts     int             `json:"attempts"`
	LastActivity *time.Time      `json:"last_activity,omitempty"`
	LastUpdate   *time.Time      `json:"last_update,omitempty"`
	CacheValid   bool            `json:"cache_valid"`
	CacheAge     time.Duration   `json:"cache_age"`
	CachedCount  int             `json:"cached_players"`
	HasServer    bool            `json:"has_server_info"`
}
