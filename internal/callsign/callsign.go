// Package callsign derives participant identifiers from a behavioral profile
// and allocates them with a system-wide uniqueness guarantee.
//
// A canonical identifier has four dash-joined fields,
// Classification-Slot-Descriptor-Marker, drawn from fixed tables
// (8 × 100 × 80 × 60 combinations). Values outside that space are only ever
// produced by the fallback path and carry the FallbackTag prefix.
package callsign

import (
	"fmt"
	"strings"

	"github.com/MikeSquared-Agency/moniker/internal/profile"
)

// Separator joins identifier fields.
const Separator = "-"

// FallbackTag prefixes identifiers minted outside the canonical space.
const FallbackTag = "UNREG"

// descriptorBonus shifts the descriptor pick when the aware trait runs second.
const descriptorBonus = 5

// Candidate returns the canonical identifier for a score profile on the given
// attempt (1-based). The result is deterministic in (scores, attempt).
func Candidate(scores profile.Scores, attempt int) string {
	dominant := scores.Dominant()
	total := scores.Total()

	subset := classificationsByTrait[dominant]
	classification := subset[(attempt-1)%len(subset)]

	slot := Slots[(total*25/2+attempt*7)%len(Slots)]

	list := descriptorsByTrait[dominant]
	if total == 0 {
		list = neutralDescriptors
	}
	bonus := 0
	if scores.Secondary() == profile.Aware {
		bonus = descriptorBonus
	}
	descriptor := list[(attempt*3+bonus)%len(list)]

	band := markerBands[markerBand(total)]
	marker := band[(attempt*7)%len(band)]

	return strings.Join([]string{classification, slot, descriptor, marker}, Separator)
}

// FromIndex maps i in [0, SpaceSize) onto the canonical space.
func FromIndex(i int) string {
	m := i % len(Markers)
	i /= len(Markers)
	d := i % len(Descriptors)
	i /= len(Descriptors)
	s := i % len(Slots)
	i /= len(Slots)
	c := i % len(Classifications)
	return strings.Join([]string{Classifications[c], Slots[s], Descriptors[d], Markers[m]}, Separator)
}

// Parts is a decomposed canonical identifier.
type Parts struct {
	Classification string
	Slot           string
	Descriptor     string
	Marker         string
}

// Parse splits a canonical identifier and checks every field against its
// table.
func Parse(id string) (Parts, error) {
	fields := strings.Split(id, Separator)
	if len(fields) != 4 {
		return Parts{}, fmt.Errorf("identifier %q: want 4 fields, got %d", id, len(fields))
	}
	p := Parts{Classification: fields[0], Slot: fields[1], Descriptor: fields[2], Marker: fields[3]}
	switch {
	case !contains(Classifications[:], p.Classification):
		return Parts{}, fmt.Errorf("identifier %q: unknown classification %q", id, p.Classification)
	case !contains(Slots[:], p.Slot):
		return Parts{}, fmt.Errorf("identifier %q: unknown slot %q", id, p.Slot)
	case !contains(Descriptors[:], p.Descriptor):
		return Parts{}, fmt.Errorf("identifier %q: unknown descriptor %q", id, p.Descriptor)
	case !contains(Markers[:], p.Marker):
		return Parts{}, fmt.Errorf("identifier %q: unknown marker %q", id, p.Marker)
	}
	return p, nil
}

// IsCanonical reports whether id lies in the canonical space.
func IsCanonical(id string) bool {
	_, err := Parse(id)
	return err == nil
}

// IsFallback reports whether id was minted by the fallback path.
func IsFallback(id string) bool {
	return strings.HasPrefix(id, FallbackTag+Separator)
}

// PermittedClassifications returns the classification subset for a trait.
func PermittedClassifications(t profile.Trait) []string {
	subset := classificationsByTrait[t]
	return subset[:]
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
