package domain

// Faction buckets species for display filtering
type Faction string

const (
	FactionPredator Faction = "predator"
	FactionGrazer   Faction = "grazer"
	FactionOther    Faction = "other"
)

// Location is a world-space position in game units
type Location struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// PlayerRecord is one live player as reported by a playerinfo poll.
// Records are rebuilt from scratch on every successful poll.
type PlayerRecord struct {
	Name     string   `json:"name"`
	PlayerID string   `json:"player_id"` // persistent Steam identifier
	Location Location `json:"location"`

	Class   string  `json:"class"`   // raw blueprint token, e.g. BP_Carnotaurus_C
	Species string  `json:"species"` // resolved common name
	Faction Faction `json:"faction"`

	// Vitals are fractions in [0,1]; nil when the server omitted the field.
	Growth  *float64 `json:"growth"`
	Health  *float64 `json:"health"`
	Stamina *float64 `json:"stamina"`
	Hunger  *float64 `json:"hunger"`
	Thirst  *float64 `json:"thirst"`
}
