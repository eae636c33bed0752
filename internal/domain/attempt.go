package domain

// Attempt is a terminal snapshot of one completed try of a node.
// Immutable once appended to a history.
type Attempt struct {
	ID        int    `json:"attempt"`
	Status    Status `json:"status"`
	StartTime int64  `json:"startTime"`
	EndTime   int64  `json:"endTime"`
}

// AttemptHistory is an append-only, ascending-ordered list of completed
// attempts. The zero value is an empty history. There is no API to mutate
// or remove a record once appended; Append copies, so earlier history
// values stay valid for concurrent readers.
type AttemptHistory struct {
	records []Attempt
}

func (h AttemptHistory) Append(a Attempt) AttemptHistory {
	out := make([]Attempt, 0, len(h.records)+1)
	out = append(out, h.records...)
	out = append(out, a)
	return AttemptHistory{records: out}
}

func (h AttemptHistory) Len() int {
	return len(h.records)
}

// Records returns a copy of the attempt list, ordered by attempt ascending.
func (h AttemptHistory) Records() []Attempt {
	out := make([]Attempt, len(h.records))
	copy(out, h.records)
	return out
}
