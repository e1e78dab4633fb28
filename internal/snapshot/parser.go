// Package snapshot decodes Evrima RCON text responses into player and
// server records. Everything here is pure: bytes in, records out.
package snapshot

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ernie/isle-tracker/internal/domain"
)

var (
	// Server log timestamps like [2024.05.01-18.22.03] are interleaved with output
	timestampRegex = regexp.MustCompile(`\[\d{4}\.\d{2}\.\d{2}-\d{2}\.\d{2}\.\d{2}\]\s*`)

	// Player field patterns
	blockStartRegex = regexp.MustCompile(`\b(?:PlayerDataName|Name):`)
	nameRegex       = regexp.MustCompile(`(?:PlayerDataName|Name):\s*([^,\n\r]+)`)
	playerIDRegex   = regexp.MustCompile(`PlayerID:\s*(\d+)`)
	locationRegex   = regexp.MustCompile(`Location:\s*X=(-?\d+\.?\d*)\s*Y=(-?\d+\.?\d*)\s*Z=(-?\d+\.?\d*)`)
	classRegex      = regexp.MustCompile(`Class:\s*(BP_[a-zA-Z0-9_]+)`)
	growthRegex     = regexp.MustCompile(`Growth:\s*(\d+\.?\d*)`)
	healthRegex     = regexp.MustCompile(`Health:\s*(\d+\.?\d*)`)
	staminaRegex    = regexp.MustCompile(`Stamina:\s*(\d+\.?\d*)`)
	hungerRegex     = regexp.MustCompile(`Hunger:\s*(\d+\.?\d*)`)
	thirstRegex     = regexp.MustCompile(`Thirst:\s*(\d+\.?\d*)`)

	// Server info patterns
	serverNameRegex     = regexp.MustCompile(`(?:ServerDetailsServerName|ServerName):\s*([^,\n\r]+)`)
	serverMapRegex      = regexp.MustCompile(`(?:ServerMap|Map):\s*([^,\n\r]+)`)
	maxPlayersRegex     = regexp.MustCompile(`(?:ServerMaxPlayers|MaxPlayers):\s*(\d+)`)
	currentPlayersRegex = regexp.MustCompile(`(?:ServerCurrentPlayers|CurrentPlayers):\s*(\d+)`)
	dayLengthRegex      = regexp.MustCompile(`(?:ServerDayLengthMinutes|DayLength):\s*(\d+)`)
	nightLengthRegex    = regexp.MustCompile(`(?:ServerNightLengthMinutes|NightLength):\s*(\d+)`)
)

// Defaults used when serverinfo omits a field
const (
	DefaultServerName  = "Evrima Server"
	DefaultMap         = "Gateway"
	DefaultMaxPlayers  = 120
	DefaultDayLength   = 60
	DefaultNightLength = 30
)

// DefaultServerInfo returns the record used when nothing could be parsed
func DefaultServerInfo() domain.ServerSnapshot {
	return domain.ServerSnapshot{
		Name:        DefaultServerName,
		Map:         DefaultMap,
		MaxPlayers:  DefaultMaxPlayers,
		DayLength:   DefaultDayLength,
		NightLength: DefaultNightLength,
	}
}

func stripTimestamps(raw []byte) string {
	return strings.TrimSpace(timestampRegex.ReplaceAllString(string(raw), ""))
}

// ParsePlayers decodes a playerinfo response. Blocks missing a name, player ID,
// location or class are dropped; the rest of the response is still returned.
func ParsePlayers(raw []byte) []domain.PlayerRecord {
	text := stripTimestamps(raw)
	if text == "" {
		return nil
	}

	var players []domain.PlayerRecord
	for _, block := range splitBlocks(text) {
		p, ok := parseBlock(block)
		if !ok {
			continue
		}
		players = append(players, p)
	}
	return players
}

// splitBlocks cuts text at every name field, keeping the field with the block it starts
func splitBlocks(text string) []string {
	starts := blockStartRegex.FindAllStringIndex(text, -1)
	if len(starts) == 0 {
		return nil
	}

	blocks := make([]string, 0, len(starts))
	for i, loc := range starts {
		end := len(text)
		if i+1 < len(starts) {
			end = starts[i+1][0]
		}
		if block := strings.TrimSpace(text[loc[0]:end]); block != "" {
			blocks = append(blocks, block)
		}
	}
	return blocks
}

func parseBlock(block string) (domain.PlayerRecord, bool) {
	var p domain.PlayerRecord

	name := nameRegex.FindStringSubmatch(block)
	id := playerIDRegex.FindStringSubmatch(block)
	loc := locationRegex.FindStringSubmatch(block)
	class := classRegex.FindStringSubmatch(block)
	if name == nil || id == nil || loc == nil || class == nil {
		return p, false
	}

	x, errX := strconv.ParseFloat(loc[1], 64)
	y, errY := strconv.ParseFloat(loc[2], 64)
	z, errZ := strconv.ParseFloat(loc[3], 64)
	if errX != nil || errY != nil || errZ != nil {
		return p, false
	}

	p.Name = strings.TrimSpace(name[1])
	p.PlayerID = id[1]
	p.Location = domain.Location{X: x, Y: y, Z: z}
	p.Class = class[1]
	p.Species = SpeciesName(p.Class)
	p.Faction = FactionOf(p.Species)

	p.Growth = optionalFloat(growthRegex, block)
	p.Health = optionalFloat(healthRegex, block)
	p.Stamina = optionalFloat(staminaRegex, block)
	p.Hunger = optionalFloat(hungerRegex, block)
	p.Thirst = optionalFloat(thirstRegex, block)

	return p, true
}

func optionalFloat(re *regexp.Regexp, block string) *float64 {
	m := re.FindStringSubmatch(block)
	if m == nil {
		return nil
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil
	}
	return &v
}

// ParseServerInfo decodes a serverinfo response. Missing fields take defaults.
// Some servers answer serverinfo with a player dump; that case yields the
// default record with only the population filled in.
func ParseServerInfo(raw []byte) domain.ServerSnapshot {
	info := DefaultServerInfo()

	text := stripTimestamps(raw)
	if text == "" {
		return info
	}

	if strings.Contains(text, "PlayerDataName:") || strings.Contains(text, "PlayerID:") {
		count := strings.Count(text, "PlayerID:")
		info.CurrentPlayers = count
		info.Note = fmt.Sprintf("%d players online (server info unavailable)", count)
		return info
	}

	if m := serverNameRegex.FindStringSubmatch(text); m != nil {
		info.Name = strings.TrimSpace(m[1])
	}
	if m := serverMapRegex.FindStringSubmatch(text); m != nil {
		info.Map = strings.TrimSpace(m[1])
	}
	info.MaxPlayers = optionalInt(maxPlayersRegex, text, info.MaxPlayers)
	info.CurrentPlayers = optionalInt(currentPlayersRegex, text, info.CurrentPlayers)
	info.DayLength = optionalInt(dayLengthRegex, text, info.DayLength)
	info.NightLength = optionalInt(nightLengthRegex, text, info.NightLength)

	return info
}

func optionalInt(re *regexp.Regexp, text string, def int) int {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return def
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return def
	}
	return n
}
