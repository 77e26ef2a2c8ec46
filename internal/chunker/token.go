package chunker

import (
	"fmt"
	"strings"

	"github.com/dgallion1/citewise/internal/domain"
)

// Unit is the measure chunk sizes are expressed in.
type Unit string

const (
	UnitRune Unit = "rune" // Unicode code points
	UnitWord Unit = "word" // Whitespace-separated words
)

// ParseUnit maps a config value to a Unit. Empty means UnitRune.
func ParseUnit(s string) (Unit, error) {
	switch Unit(strings.ToLower(strings.TrimSpace(s))) {
	case "", UnitRune, "char", "chars", "characters":
		return UnitRune, nil
	case UnitWord, "words", "token", "tokens":
		return UnitWord, nil
	}
	return "", fmt.Errorf("%w: unknown chunk unit %q", domain.ErrConfiguration, s)
}

// tokenize splits cleaned page text into units.
func tokenize(text string, unit Unit) []string {
	if unit == UnitWord {
		return strings.Fields(text)
	}
	units := make([]string, 0, len(text))
	for _, r := range text {
		units = append(units, string(r))
	}
	return units
}
