// Package scoring turns kill statistics into bounty points.
//
// ScoreAggregate is deterministic. ScoreKillEvent draws its base award
// from a RandomSource, so live kill totals are not reproducible unless the
// caller supplies a fixed source.
package scoring

import (
	"math/rand/v2"

	"github.com/ernie/isle-tracker/internal/domain"
)

// tier is one step of a descending threshold table
type tier struct {
	min   int64
	value int64
}

var (
	activityTiers  = []tier{{100, 300}, {75, 200}, {50, 150}, {25, 100}, {10, 50}}
	diversityTiers = []tier{{10, 250}, {8, 200}, {6, 150}, {4, 100}, {2, 50}}
	masteryTiers   = []tier{{50, 200}, {30, 150}, {20, 100}, {10, 50}}
	volumeTiers    = []tier{{100, 500}, {75, 300}, {50, 200}, {25, 100}}
	streakTiers    = []tier{{20, 100}, {15, 75}, {10, 50}, {5, 25}}
)

// lookup returns the value of the first tier whose threshold n meets
func lookup(tiers []tier, n int64) int64 {
	for _, t := range tiers {
		if n >= t.min {
			return t.value
		}
	}
	return 0
}

const (
	pointsPerKill   = 10
	perfectBonus    = 25
	perfectMinKills = 5
	minimumAward    = 10

	killBaseMin = 5
	killBaseMax = 15
)

// ratioMultiplier is the per-kill bonus for a kill/death ratio
func ratioMultiplier(ratio float64) int64 {
	switch {
	case ratio >= 3.0:
		return 20
	case ratio >= 2.0:
		return 15
	case ratio >= 1.5:
		return 10
	case ratio >= 1.0:
		return 5
	default:
		return 0
	}
}

// ScoreAggregate scores a player's lifetime totals for the bulk import.
// Any player with at least one kill earns at least 10 points.
func ScoreAggregate(kills, deaths int64, perSpecies map[string]int64) int64 {
	if kills <= 0 {
		return 0
	}

	points := kills * pointsPerKill

	ratio := float64(kills) / float64(max(deaths, 1))
	points += kills * ratioMultiplier(ratio)
	if deaths == 0 && kills >= perfectMinKills {
		points += kills * perfectBonus
	}

	points += lookup(activityTiers, kills+deaths)

	var distinct, best int64
	for _, n := range perSpecies {
		if n <= 0 {
			continue
		}
		distinct++
		best = max(best, n)
	}
	points += lookup(diversityTiers, distinct)
	points += lookup(masteryTiers, best)
	points += lookup(volumeTiers, kills)

	return max(points, minimumAward)
}

// RandomSource supplies the random base award for live kills
type RandomSource interface {
	// IntN returns a uniform integer in [0, n)
	IntN(n int) int
}

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

// DefaultSource draws from the process-wide generator
var DefaultSource RandomSource = globalRand{}

// ScoreKillEvent scores one live kill. The base award is uniform in [5,15];
// the streak bonus depends on the killer's kills over the trailing 24 hours.
func ScoreKillEvent(src RandomSource, recentKills int64) int64 {
	if src == nil {
		src = DefaultSource
	}
	base := int64(src.IntN(killBaseMax-killBaseMin+1) + killBaseMin)
	return base + StreakBonus(recentKills)
}

// StreakBonus returns the bonus for a number of kills in the last 24 hours
func StreakBonus(recentKills int64) int64 {
	return lookup(streakTiers, recentKills)
}

// MasteryTier returns the tier and bonus for a species kill count
func MasteryTier(kills int64) (domain.MasteryTier, int64) {
	switch {
	case kills >= 50:
		return domain.TierLegend, 100
	case kills >= 30:
		return domain.TierMaster, 75
	case kills >= 20:
		return domain.TierExpert, 50
	case kills >= 10:
		return domain.TierAmateur, 25
	default:
		return domain.TierNovice, 0
	}
}

// KDRatio is kills over deaths, with zero deaths counting as one
func KDRatio(kills, deaths int64) float64 {
	return float64(kills) / float64(max(deaths, 1))
}
