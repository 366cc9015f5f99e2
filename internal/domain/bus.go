package domain

// MessageBus decouples the poller from the dispatcher and the dispatcher
// from the outbound sender.
type MessageBus interface {
	Publish(msg InboundMessage)
	Subscribe() <-chan InboundMessage
	SendOutbound(msg OutboundMessage)
	OnOutbound(handler func(OutboundMessage))
	Close()
}
