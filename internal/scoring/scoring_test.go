package scoring

import (
	"testing"

	"github.com/ernie/isle-tracker/internal/domain"
)

func TestScoreAggregate(t *testing.T) {
	tenSpecies := map[string]int64{"Tyrannosaurus": 50}
	for _, s := range []string{"A", "B", "C", "D", "E", "F", "G", "H", "I"} {
		tenSpecies[s] = 5
	}

	tests := []struct {
		name    string
		kills   int64
		deaths  int64
		species map[string]int64
		want    int64
	}{
		{"no kills", 0, 12, map[string]int64{}, 0},
		{"perfect record", 5, 0, map[string]int64{"Tyrannosaurus": 5}, 275},
		{"even trade", 1, 1, map[string]int64{"Utahraptor": 1}, 15},
		{"floor applies", 1, 3, map[string]int64{"Deer": 1}, 10},
		{"veteran", 100, 50, tenSpecies, 1000 + 1500 + 300 + 250 + 200 + 500},
		// 20 kills / 10 deaths: ratio 2.0, activity 30, two species, max 12
		{"mid tier", 20, 10, map[string]int64{"Allosaurus": 12, "Carnotaurus": 8}, 200 + 300 + 100 + 50 + 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ScoreAggregate(tt.kills, tt.deaths, tt.species)
			if got != tt.want {
				t.Errorf("ScoreAggregate(%d, %d) = %d, want %d", tt.kills, tt.deaths, got, tt.want)
			}
		})
	}
}

type fixedSource int

func (f fixedSource) IntN(n int) int {
	if int(f) >= n {
		return n - 1
	}
	return int(f)
}

func TestScoreKillEvent(t *testing.T) {
	tests := []struct {
		name   string
		draw   int
		recent int64
		want   int64
	}{
		{"minimum base", 0, 0, 5},
		{"maximum base", 10, 0, 15},
		{"five streak", 3, 5, 8 + 25},
		{"ten streak", 0, 14, 5 + 50},
		{"fifteen streak", 0, 19, 5 + 75},
		{"twenty streak", 10, 40, 15 + 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ScoreKillEvent(fixedSource(tt.draw), tt.recent); got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestScoreKillEventRange(t *testing.T) {
	for i := 0; i < 500; i++ {
		got := ScoreKillEvent(nil, 0)
		if got < 5 || got > 15 {
			t.Fatalf("base award %d outside [5,15]", got)
		}
	}
}

func TestMasteryTier(t *testing.T) {
	tests := []struct {
		kills int64
		tier  domain.MasteryTier
		bonus int64
	}{
		{0, domain.TierNovice, 0},
		{9, domain.TierNovice, 0},
		{10, domain.TierAmateur, 25},
		{20, domain.TierExpert, 50},
		{30, domain.TierMaster, 75},
		{49, domain.TierMaster, 75},
		{50, domain.TierLegend, 100},
	}
	for _, tt := range tests {
		tier, bonus := MasteryTier(tt.kills)
		if tier != tt.tier || bonus != tt.bonus {
			t.Errorf("MasteryTier(%d) = %s/%d, want %s/%d", tt.kills, tier, bonus, tt.tier, tt.bonus)
		}
	}
}
