package snapshot

import (
	"strings"

	"github.com/ernie/isle-tracker/internal/domain"
)

// speciesNames maps Evrima blueprint class tokens to display names
var speciesNames = map[string]string{
	"BP_Carnotaurus_C":           "Carnotaurus",
	"BP_Utahraptor_C":            "Utahraptor",
	"BP_Allosaurus_C":            "Allosaurus",
	"BP_Tyrannosaurus_C":         "Tyrannosaurus",
	"BP_TyrannosaurusJuvenile_C": "Tyrannosaurus (Juvenile)",
	"BP_Deinosuchus_C":           "Deinosuchus",
	"BP_Stegosaurus_C":           "Stegosaurus",
	"BP_Tenontosaurus_C":         "Tenontosaurus",
	"BP_Triceratops_C":           "Triceratops",
	"BP_TriceratopsJuvenile_C":   "Triceratops (Juvenile)",
	"BP_Pachycephalosaurus_C":    "Pachycephalosaurus",
	"BP_Omniraptor_C":            "Omniraptor",
	"BP_Human_C":                 "Human",
	"BP_Diabloceratops_C":        "Diabloceratops",
	"BP_Hypsilophodon_C":         "Hypsilophodon",
	"BP_Maiasaura_C":             "Maiasaura",
	"BP_Ceratosaurus_C":          "Ceratosaurus",
	"BP_Dilophosaurus_C":         "Dilophosaurus",
	"BP_Herrerasaurus_C":         "Herrerasaurus",
	"BP_Pteranodon_C":            "Pteranodon",
	"BP_Troodon_C":               "Troodon",
	"BP_Beipiaosaurus_C":         "Beipiaosaurus",
	"BP_Gallimimus_C":            "Gallimimus",
	"BP_Dryosaurus_C":            "Dryosaurus",
	"BP_Compsognathus_C":         "Compsognathus",
	"BP_Pterodactylus_C":         "Pterodactylus",
	"BP_Boar_C":                  "Boar",
	"BP_Deer_C":                  "Deer",
	"BP_Goat_C":                  "Goat",
	"BP_Seaturtle_C":             "Seaturtle",
}

var predators = []string{
	"Carnotaurus", "Utahraptor", "Allosaurus", "Tyrannosaurus",
	"Deinosuchus", "Ceratosaurus", "Dilophosaurus", "Herrerasaurus",
	"Troodon", "Compsognathus",
}

var grazers = []string{
	"Stegosaurus", "Tenontosaurus", "Triceratops", "Pachycephalosaurus",
	"Diabloceratops", "Hypsilophodon", "Maiasaura", "Beipiaosaurus",
	"Gallimimus", "Dryosaurus",
}

// SpeciesName resolves a class token to a display name.
// Unknown tokens are returned unchanged.
func SpeciesName(class string) string {
	if name, ok := speciesNames[class]; ok {
		return name
	}
	return class
}

// FactionOf buckets a species name. Matching is by substring so that
// juvenile variants land with their adult species.
func FactionOf(species string) domain.Faction {
	for _, p := range predators {
		if strings.Contains(species, p) {
			return domain.FactionPredator
		}
	}
	for _, g := range grazers {
		if strings.Contains(species, g) {
			return domain.FactionGrazer
		}
	}
	return domain.FactionOther
}
