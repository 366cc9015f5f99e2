package domain

import "context"

// Gateway is the WhatsApp HTTP gateway contract: poll-based receive and
// synchronous send. The transport itself (session handling, QR pairing)
// lives behind the gateway service and is out of scope here.
type Gateway interface {
	// PollMessages fetches up to limit pending inbound messages. The
	// gateway keeps returning recent messages across polls; dedup is the
	// caller's job.
	PollMessages(ctx context.Context, limit int) ([]InboundMessage, error)

	// SendText delivers a text message. The returned HTTP status code
	// classifies failures: 4xx is terminal, 5xx/network is retryable.
	SendText(ctx context.Context, to, body string) (int, error)

	// Status reports whether the gateway holds a live WhatsApp session.
	Status(ctx context.Context) (bool, error)
}
