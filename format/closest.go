// closest.go - Naechstliegender bekannter Name fuer Tippfehler
// Hauptfunktionen: Closest
package format

import (
	"math"
	"strings"

	"github.com/agnivade/levenshtein"
)

// Closest gibt den Namen aus known mit der kleinsten Editierdistanz zu s
// zurueck. Liegt auch der beste Treffer weiter als ein Drittel der Laenge
// von s entfernt (mindestens 1), gibt es keinen Vorschlag.
func Closest(s string, known []string) (string, bool) {
	s = strings.ToLower(strings.TrimSpace(s))

	var best string
	score := math.MaxInt
	for _, k := range known {
		if d := levenshtein.ComputeDistance(s, k); d < score {
			score = d
			best = k
		}
	}

	if best == "" || score > max(1, len(s)/3) {
		return "", false
	}
	return best, true
}
