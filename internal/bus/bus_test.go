package bus

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"chatvri/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestPublishSubscribe(t *testing.T) {
	b := New(10, testLogger())
	defer b.Close()

	b.Publish(domain.InboundMessage{ID: "m1", Sender: "51987654321", Content: "hola"})

	select {
	case msg := <-b.Subscribe():
		if msg.ID != "m1" {
			t.Fatalf("expected m1, got %q", msg.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("message never arrived")
	}
}

func TestSendOutboundWithoutHandler(t *testing.T) {
	b := New(1, testLogger())
	defer b.Close()

	// Must not panic when nothing is registered.
	b.SendOutbound(domain.OutboundMessage{Recipient: "51987654321", Content: "hi"})
}

func TestSendOutboundDelivers(t *testing.T) {
	b := New(1, testLogger())
	defer b.Close()

	got := make(chan domain.OutboundMessage, 1)
	b.OnOutbound(func(msg domain.OutboundMessage) { got <- msg })

	b.SendOutbound(domain.OutboundMessage{Recipient: "51911111111", Content: "respuesta"})

	select {
	case msg := <-got:
		if msg.Content != "respuesta" {
			t.Fatalf("unexpected content %q", msg.Content)
		}
	case <-time.After(time.Second):
		t.Fatal("outbound handler not invoked")
	}
}

func TestPublishAfterClose(t *testing.T) {
	b := New(1, testLogger())
	b.Close()

	// Must not panic or block.
	b.Publish(domain.InboundMessage{ID: "late"})
}
