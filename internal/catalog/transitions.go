package catalog

// legalTransitions is the single source of truth for episode status moves.
// failed -> pending exists only for explicit manual retry; the orchestrator
// never takes it automatically.
var legalTransitions = map[Status][]Status{
	StatusPending:      {StatusTranscribing},
	StatusTranscribing: {StatusTranscribed, StatusFailed},
	StatusTranscribed:  {StatusScored},
	StatusScored:       {StatusDigested, StatusFailed},
	StatusFailed:       {StatusPending},
	StatusDigested:     {},
}

// CanTransition reports whether from can move directly to to.
func CanTransition(from, to Status) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
