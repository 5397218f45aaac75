package catalog_test

import (
	"math/rand"
	"testing"

	"podsift/internal/catalog"
)

func TestTransitionTable(t *testing.T) {
	allowed := []struct {
		from catalog.Status
		to   catalog.Status
	}{
		{catalog.StatusPending, catalog.StatusTranscribing},
		{catalog.StatusTranscribing, catalog.StatusTranscribed},
		{catalog.StatusTranscribing, catalog.StatusFailed},
		{catalog.StatusTranscribed, catalog.StatusScored},
		{catalog.StatusScored, catalog.StatusDigested},
		{catalog.StatusScored, catalog.StatusFailed},
		{catalog.StatusFailed, catalog.StatusPending},
	}
	allowedSet := make(map[[2]catalog.Status]bool, len(allowed))
	for _, tc := range allowed {
		allowedSet[[2]catalog.Status{tc.from, tc.to}] = true
		if !catalog.CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be legal", tc.from, tc.to)
		}
	}

	for _, from := range catalog.AllStatuses() {
		for _, to := range catalog.AllStatuses() {
			if allowedSet[[2]catalog.Status{from, to}] {
				continue
			}
			if catalog.CanTransition(from, to) {
				t.Errorf("expected %s -> %s to be illegal", from, to)
			}
		}
	}
}

// Random transition walks can only ever move forward along
// pending -> transcribing -> transcribed -> scored -> digested, detour to
// failed from transcribing or scored, or return from failed to pending.
func TestRandomWalksNeverSkipStates(t *testing.T) {
	order := map[catalog.Status]int{
		catalog.StatusPending:      0,
		catalog.StatusTranscribing: 1,
		catalog.StatusTranscribed:  2,
		catalog.StatusScored:       3,
		catalog.StatusDigested:     4,
	}
	statuses := catalog.AllStatuses()
	rng := rand.New(rand.NewSource(42))

	for walk := 0; walk < 200; walk++ {
		current := catalog.StatusPending
		for step := 0; step < 20; step++ {
			next := statuses[rng.Intn(len(statuses))]
			if !catalog.CanTransition(current, next) {
				continue
			}
			if next == catalog.StatusFailed {
				if current != catalog.StatusTranscribing && current != catalog.StatusScored {
					t.Fatalf("failed reached from %s", current)
				}
			} else if current == catalog.StatusFailed {
				if next != catalog.StatusPending {
					t.Fatalf("failed exited to %s", next)
				}
			} else if order[next] != order[current]+1 {
				t.Fatalf("transition %s -> %s skips a state", current, next)
			}
			current = next
			if current == catalog.StatusDigested {
				break
			}
		}
	}
}

func TestDigestedIsTerminal(t *testing.T) {
	for _, to := range catalog.AllStatuses() {
		if catalog.CanTransition(catalog.StatusDigested, to) {
			t.Fatalf("digested must be terminal, allows -> %s", to)
		}
	}
}

func TestParseStatus(t *testing.T) {
	if status, ok := catalog.ParseStatus(" Scored "); !ok || status != catalog.StatusScored {
		t.Fatalf("ParseStatus normalization failed: %q %v", status, ok)
	}
	if _, ok := catalog.ParseStatus("encoding"); ok {
		t.Fatal("unknown status should not parse")
	}
	if _, ok := catalog.ParseStatus(""); ok {
		t.Fatal("empty status should not parse")
	}
}
