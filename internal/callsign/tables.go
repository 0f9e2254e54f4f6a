package callsign

import (
	"fmt"

	"github.com/MikeSquared-Agency/moniker/internal/profile"
)

// Classifications is the first identifier field.
var Classifications = [8]string{"ARC", "ION", "ORA", "SOL", "NOX", "ZEN", "VEX", "KAI"}

// classificationsByTrait is the subset of Classifications each dominant trait
// may draw from.
var classificationsByTrait = [profile.TraitCount][2]string{
	profile.Analytical: {"ARC", "ION"},
	profile.Empathic:   {"ORA", "SOL"},
	profile.Aware:      {"NOX", "ZEN"},
	profile.Resolute:   {"VEX", "KAI"},
}

// Slots is the second field: "00" through "99".
var Slots = func() [100]string {
	var s [100]string
	for i := range s {
		s[i] = fmt.Sprintf("%02d", i)
	}
	return s
}()

var descriptorsByTrait = [profile.TraitCount][16]string{
	profile.Analytical: {
		"Cipher", "Vector", "Axiom", "Lattice", "Prism", "Theorem", "Quartz", "Circuit",
		"Index", "Matrix", "Sigma", "Logic", "Relay", "Graph", "Scalar", "Proof",
	},
	profile.Empathic: {
		"Ember", "Harbor", "Bloom", "Echo", "Haven", "Tide", "Willow", "Hearth",
		"Lumen", "Solace", "Meadow", "Kindle", "Anchor", "Grove", "Balm", "Chord",
	},
	profile.Aware: {
		"Sentry", "Vigil", "Beacon", "Lens", "Watch", "Signal", "Horizon", "Radar",
		"Sonar", "Glint", "Scout", "Compass", "Aurora", "Halo", "Periscope", "Tracer",
	},
	profile.Resolute: {
		"Bastion", "Granite", "Forge", "Rampart", "Iron", "Summit", "Anvil", "Keystone",
		"Bulwark", "Citadel", "Talon", "Onyx", "Ridge", "Pillar", "Vanguard", "Basalt",
	},
}

// neutralDescriptors are used for a blank profile (total score zero).
var neutralDescriptors = [16]string{
	"Drift", "Static", "Null", "Blank", "Void", "Mist", "Shade", "Flux",
	"Murmur", "Haze", "Quiet", "Cinder", "Dusk", "Fog", "Hollow", "Slate",
}

// Descriptors is the full third-field table: the four trait lists in priority
// order followed by the neutral list.
var Descriptors = func() [80]string {
	var d [80]string
	n := 0
	for _, list := range descriptorsByTrait {
		n += copy(d[n:], list[:])
	}
	copy(d[n:], neutralDescriptors[:])
	return d
}()

// Marker bands, chosen by total score.
const (
	bandHigh = iota
	bandMedium
	bandLow
)

var markerBands = [3][20]string{
	bandHigh: {
		"Omega", "Apex", "Zenith", "Prime", "Crown", "Nova", "Titan", "Peak", "Alpha", "Regent",
		"Aegis", "Sovereign", "Pinnacle", "Radiant", "Paragon", "Vertex", "Summa", "Exalt", "Ascend", "Lumin",
	},
	bandMedium: {
		"Median", "Tempo", "Pulse", "Steady", "Mesa", "Balance", "Keel", "Level", "Center", "Axis",
		"Meridian", "Ballast", "Plumb", "Cadence", "Tandem", "Parity", "Fulcrum", "Gauge", "Midway", "Hinge",
	},
	bandLow: {
		"Latent", "Dormant", "Seed", "Spark", "Root", "Nascent", "Dawn", "Sprout", "Kernel", "Embryo",
		"Murk", "Lull", "Shoal", "Trace", "Faint", "Ebb", "Nadir", "Basin", "Hush", "Sable",
	},
}

// Markers is the full fourth-field table, high band first.
var Markers = func() [60]string {
	var m [60]string
	n := 0
	for _, band := range markerBands {
		n += copy(m[n:], band[:])
	}
	return m
}()

// Band thresholds on the total score.
const (
	highBandMin   = 11
	mediumBandMin = 6
)

func markerBand(total int) int {
	switch {
	case total >= highBandMin:
		return bandHigh
	case total >= mediumBandMin:
		return bandMedium
	default:
		return bandLow
	}
}

// SpaceSize is the number of canonical identifiers.
const SpaceSize = len(Classifications) * len(Slots) * len(Descriptors) * len(Markers)
