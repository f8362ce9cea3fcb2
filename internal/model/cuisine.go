package model

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Cuisines is the closed vocabulary for the cuisine annotation field.
// Values outside this list are discarded rather than persisted, so every
// downstream facet built on cuisine stays clean.
var Cuisines = []string{
	"American",
	"Barbecue",
	"Brazilian",
	"Caribbean",
	"Chinese",
	"Ethiopian",
	"French",
	"Fusion",
	"Greek",
	"Indian",
	"Italian",
	"Japanese",
	"Korean",
	"Mediterranean",
	"Mexican",
	"Middle Eastern",
	"Seafood",
	"Spanish",
	"Thai",
	"Turkish",
	"Vegetarian",
	"Vietnamese",
}

var titleCaser = cases.Title(language.English)

// CanonicalCuisine normalizes a model-produced cuisine label ("thai",
// "THAI", " Thai ") to its vocabulary form and reports whether it is part
// of the closed vocabulary.
func CanonicalCuisine(s string) (string, bool) {
	c := titleCaser.String(strings.TrimSpace(s))
	for _, known := range Cuisines {
		if c == known {
			return known, true
		}
	}
	return "", false
}
