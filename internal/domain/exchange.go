package domain

import "time"

// Exchange is one completed question/answer pair. Immutable once
// constructed; written once to the conversation store.
type Exchange struct {
	ID         string
	Sender     string
	UserText   string
	BotText    string
	Backend    string // model identifier, or "error" / "no_context" / "canned"
	Latency    time.Duration
	Timestamp  time.Time
	DocsFound  int
	TopScore   float64
}

// Outcome classifies the result of a network operation and drives retry
// policy: retryable failures are worth another attempt, terminal ones
// are not.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeRetryable
	OutcomeTerminal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetryable:
		return "retryable"
	default:
		return "terminal"
	}
}
