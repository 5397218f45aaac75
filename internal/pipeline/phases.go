// Package pipeline orchestrates the processing phases over the episode
// catalog: discover, transcribe, score, digest, synthesize, publish.
package pipeline

import (
	"fmt"
	"strings"
)

// Phase names one stage of a run.
type Phase string

const (
	PhaseDiscover   Phase = "discover"
	PhaseTranscribe Phase = "transcribe"
	PhaseScore      Phase = "score"
	PhaseDigest     Phase = "digest"
	PhaseSynthesize Phase = "synthesize"
	PhasePublish    Phase = "publish"
)

// phaseOrder is the fixed execution order. Phase subsets always run in this
// order regardless of how the caller listed them.
var phaseOrder = []Phase{
	PhaseDiscover,
	PhaseTranscribe,
	PhaseScore,
	PhaseDigest,
	PhaseSynthesize,
	PhasePublish,
}

// AllPhases returns every phase in execution order.
func AllPhases() []Phase {
	cp := make([]Phase, len(phaseOrder))
	copy(cp, phaseOrder)
	return cp
}

// ParsePhases validates a caller-supplied phase list and returns the subset
// in canonical order. An empty list selects every phase.
func ParsePhases(names []string) ([]Phase, error) {
	if len(names) == 0 {
		return AllPhases(), nil
	}

	requested := make(map[Phase]struct{}, len(names))
	for _, name := range names {
		phase := Phase(strings.ToLower(strings.TrimSpace(name)))
		found := false
		for _, known := range phaseOrder {
			if phase == known {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown phase %q (valid: %s)", name, phaseList())
		}
		requested[phase] = struct{}{}
	}

	ordered := make([]Phase, 0, len(requested))
	for _, phase := range phaseOrder {
		if _, ok := requested[phase]; ok {
			ordered = append(ordered, phase)
		}
	}
	return ordered, nil
}

func phaseList() string {
	names := make([]string, len(phaseOrder))
	for i, phase := range phaseOrder {
		names[i] = string(phase)
	}
	return strings.Join(names, ", ")
}
