package chainstate

// Outcome reports what a mutation did to the store.
type Outcome uint8

const (
	// OutcomeInserted means a new record was created.
	OutcomeInserted Outcome = iota + 1
	// OutcomeUpdated means an existing record changed.
	OutcomeUpdated
	// OutcomeUnchanged means the write carried nothing new (idempotent re-observation).
	OutcomeUnchanged
	// OutcomeIgnored means the write was stale (it would have moved state backward) and was
	// dropped.
	OutcomeIgnored
)

func (o Outcome) String() string {
	switch o {
	case OutcomeInserted:
		return "inserted"
	case OutcomeUpdated:
		return "updated"
	case OutcomeUnchanged:
		return "unchanged"
	case OutcomeIgnored:
		return "ignored"
	default:
		return "unknown"
	}
}

// Changed reports whether the store was modified.
func (o Outcome) Changed() bool {
	return o == OutcomeInserted || o == OutcomeUpdated
}
