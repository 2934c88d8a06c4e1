package optimize

import (
	"cmp"
	"slices"
)

// Select gibt den Kandidaten mit der kleinsten Latenz zurueck. Bei gleicher
// Latenz gewinnt der zuerst eingereichte Kandidat. ok ist false, wenn die
// Liste leer ist oder der beste Kandidat keinen Learner hat.
func Select(candidates []Candidate) (best *Candidate, ok bool) {
	if len(candidates) == 0 {
		return nil, false
	}

	sorted := Sorted(candidates)
	if sorted[0].Learner == nil {
		return nil, false
	}
	return &sorted[0], true
}

// Sorted gibt eine nach Latenz aufsteigend sortierte Kopie zurueck (stabil).
func Sorted(candidates []Candidate) []Candidate {
	sorted := slices.Clone(candidates)
	slices.SortStableFunc(sorted, func(a, b Candidate) int {
		return cmp.Compare(a.Latency, b.Latency)
	})
	return sorted
}
