package domain

import "time"

// InboundMessage is a single user message pulled from the WhatsApp gateway.
// ID is the gateway-assigned message id and is the dedup key; it is never
// empty downstream of the poller (a synthetic key is derived when the
// gateway omits it).
type InboundMessage struct {
	ID        string
	Sender    string // digits-only international phone number
	Content   string
	Timestamp time.Time
}

// OutboundMessage is a reply queued for delivery to the gateway.
type OutboundMessage struct {
	Recipient string
	Content   string
}

// MessageClass is the tagged classification of an inbound message,
// computed once by the dispatcher and branched on.
type MessageClass int

const (
	ClassDomainQuery MessageClass = iota
	ClassCommand
	ClassGreeting
	ClassTrivial
	ClassOffTopic
)

func (c MessageClass) String() string {
	switch c {
	case ClassCommand:
		return "command"
	case ClassGreeting:
		return "greeting"
	case ClassTrivial:
		return "trivial"
	case ClassOffTopic:
		return "off_topic"
	default:
		return "domain_query"
	}
}
