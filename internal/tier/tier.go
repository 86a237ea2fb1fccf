// Package tier implements recognition-model tier selection for loquax.
//
// A [Tier] names a whisper model configuration trading memory footprint for
// accuracy. [Plan] maps the available accelerator memory and a caller
// priority onto an ordered fallback chain, most-preferred tier first, always
// terminating at [TierTiny] which runs on any CPU. The recognition adapter
// walks the chain when an attempt fails with resource exhaustion.
package tier

import (
	"fmt"
	"slices"
)

// Tier names a recognition-model configuration.
type Tier string

const (
	TierTiny   Tier = "tiny"
	TierBase   Tier = "base"
	TierSmall  Tier = "small"
	TierMedium Tier = "medium"
	TierLarge  Tier = "large"
)

// IsValid reports whether t is a recognised tier.
func (t Tier) IsValid() bool {
	switch t {
	case TierTiny, TierBase, TierSmall, TierMedium, TierLarge:
		return true
	}
	return false
}

// Priority selects the speed/accuracy trade-off for tier planning.
type Priority string

const (
	// PriorityAccuracy picks the highest tier the available memory allows.
	PriorityAccuracy Priority = "accuracy"

	// PrioritySpeed caps planning at a low-resource tier regardless of the
	// memory available, favouring turnaround time over word accuracy.
	PrioritySpeed Priority = "speed"
)

// IsValid reports whether p is a recognised priority.
func (p Priority) IsValid() bool {
	return p == PriorityAccuracy || p == PrioritySpeed
}

// speedCap is the highest tier [Plan] will select under [PrioritySpeed].
const speedCap = TierBase

// Spec describes the resource footprint and model artifact of one tier.
type Spec struct {
	// Tier is the tier this spec describes.
	Tier Tier

	// MinMemory is the minimum accelerator memory (bytes) required to run
	// this tier on a GPU. TierTiny additionally always runs on CPU.
	MinMemory uint64

	// ArtifactURL is the download location of the ggml model file.
	ArtifactURL string

	// ArtifactSHA256 is the expected hex digest of the model file.
	ArtifactSHA256 string
}

const gib = 1 << 30

// artifactBaseURL is the upstream location of the ggml whisper models.
const artifactBaseURL = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main"

// specs lists every tier in descending resource requirement.
// Memory figures follow the upstream whisper VRAM guidance.
var specs = []Spec{
	{
		Tier:           TierLarge,
		MinMemory:      10 * gib,
		ArtifactURL:    artifactBaseURL + "/ggml-large-v3.bin",
		ArtifactSHA256: "64d182b440b98d5203c4f9bd541544d84c605196c4f7b845dfa11fb23594d1e2",
	},
	{
		Tier:           TierMedium,
		MinMemory:      5 * gib,
		ArtifactURL:    artifactBaseURL + "/ggml-medium.bin",
		ArtifactSHA256: "6c14d5adee5f86394037b4e4e8b59f1673b6cee10e3cf0b11bbdbee79c156208",
	},
	{
		Tier:           TierSmall,
		MinMemory:      2 * gib,
		ArtifactURL:    artifactBaseURL + "/ggml-small.bin",
		ArtifactSHA256: "1be3a9b2063867b937e64e2ec7483364a79917e157fa98c5d94b5c1fffea987b",
	},
	{
		Tier:           TierBase,
		MinMemory:      1 * gib,
		ArtifactURL:    artifactBaseURL + "/ggml-base.bin",
		ArtifactSHA256: "60ed5bc3dd14eea856493d334349b405782ddcaf0028d4b5df4088345fba2efe",
	},
	{
		Tier:           TierTiny,
		MinMemory:      0,
		ArtifactURL:    artifactBaseURL + "/ggml-tiny.bin",
		ArtifactSHA256: "be07e048e1e599ad46341c8d2a135645097a538221678b7acdd1b1919c6e1b21",
	},
}

// Lookup returns the [Spec] for t. The second return value is false when t
// is not a recognised tier.
func Lookup(t Tier) (Spec, bool) {
	for _, s := range specs {
		if s.Tier == t {
			return s, true
		}
	}
	return Spec{}, false
}

// Plan returns the ordered fallback chain for the given accelerator memory
// (0 means CPU-only) and priority: the selected tier followed by every lower
// tier in descending order, ending at [TierTiny].
//
// Under [PriorityAccuracy] the highest tier whose MinMemory fits availMemory
// is selected. Under [PrioritySpeed] the selection is additionally capped at
// the base tier. The returned slice is never empty.
func Plan(availMemory uint64, priority Priority) []Tier {
	var selected Tier = TierTiny
	for _, s := range specs {
		if priority == PrioritySpeed && rank(s.Tier) > rank(speedCap) {
			continue
		}
		if s.MinMemory <= availMemory {
			selected = s.Tier
			break
		}
	}
	return PlanFrom(selected)
}

// PlanFrom returns the fallback chain starting at t: t itself followed by
// every lower tier in descending order. Used when the caller forces a tier
// explicitly (CLI --model override).
func PlanFrom(t Tier) []Tier {
	start := slices.IndexFunc(specs, func(s Spec) bool { return s.Tier == t })
	if start < 0 {
		// Unknown tier: the only guaranteed-available chain.
		return []Tier{TierTiny}
	}
	chain := make([]Tier, 0, len(specs)-start)
	for _, s := range specs[start:] {
		chain = append(chain, s.Tier)
	}
	return chain
}

// rank orders tiers by resource requirement, 0 being the cheapest.
func rank(t Tier) int {
	for i := len(specs) - 1; i >= 0; i-- {
		if specs[i].Tier == t {
			return len(specs) - 1 - i
		}
	}
	return -1
}

// ParseTier validates and converts a user-supplied tier name.
func ParseTier(s string) (Tier, error) {
	t := Tier(s)
	if !t.IsValid() {
		return "", fmt.Errorf("tier: unknown tier %q; valid values: tiny, base, small, medium, large", s)
	}
	return t, nil
}
