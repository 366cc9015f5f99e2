package agent

import (
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"chatvri/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// recordingBus captures outbound messages and feeds a scripted inbound
// channel.
type recordingBus struct {
	mu       sync.Mutex
	outbound []domain.OutboundMessage
	inbound  chan domain.InboundMessage
}

func newRecordingBus() *recordingBus {
	return &recordingBus{inbound: make(chan domain.InboundMessage, 16)}
}

func (b *recordingBus) Publish(msg domain.InboundMessage)       { b.inbound <- msg }
func (b *recordingBus) Subscribe() <-chan domain.InboundMessage { return b.inbound }
func (b *recordingBus) OnOutbound(func(domain.OutboundMessage)) {}
func (b *recordingBus) Close()                                  {}

func (b *recordingBus) SendOutbound(msg domain.OutboundMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.outbound = append(b.outbound, msg)
}

func (b *recordingBus) sent() []domain.OutboundMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.OutboundMessage, len(b.outbound))
	copy(out, b.outbound)
	return out
}

func newTestTracker(bus *recordingBus) (*Tracker, *time.Time) {
	tr := NewTracker(TrackerOptions{
		Bus:    bus,
		Logger: testLogger(),
		Idle:   15 * time.Minute,
		Sweep:  time.Minute,
	})
	now := time.Now()
	tr.now = func() time.Time { return now }
	return tr, &now
}

func TestTrackerClosesIdleSessionOnce(t *testing.T) {
	bus := newRecordingBus()
	tr, now := newTestTracker(bus)

	tr.Touch("51987654321")
	*now = now.Add(16 * time.Minute)

	tr.sweepIdle()
	tr.sweepIdle()

	sent := bus.sent()
	if len(sent) != 1 {
		t.Fatalf("closing notices = %d, want exactly 1", len(sent))
	}
	if sent[0].Recipient != "51987654321" {
		t.Fatalf("notice sent to %q", sent[0].Recipient)
	}
	if tr.Open() != 0 {
		t.Fatalf("Open = %d after close, want 0", tr.Open())
	}
}

func TestTrackerActiveSessionStaysOpen(t *testing.T) {
	bus := newRecordingBus()
	tr, now := newTestTracker(bus)

	tr.Touch("51987654321")
	*now = now.Add(10 * time.Minute)
	tr.sweepIdle()

	if len(bus.sent()) != 0 {
		t.Fatal("active session must not receive a closing notice")
	}
	if tr.Open() != 1 {
		t.Fatalf("Open = %d, want 1", tr.Open())
	}
}

func TestTrackerReopensSilently(t *testing.T) {
	bus := newRecordingBus()
	tr, now := newTestTracker(bus)

	tr.Touch("51987654321")
	*now = now.Add(16 * time.Minute)
	tr.sweepIdle()

	// New message reopens; the next sweep must stay quiet.
	tr.Touch("51987654321")
	tr.sweepIdle()

	if got := len(bus.sent()); got != 1 {
		t.Fatalf("notices = %d, want 1 (reopen is silent)", got)
	}
	if tr.Open() != 1 {
		t.Fatalf("Open = %d, want 1", tr.Open())
	}
}

func TestTrackerResetSkipsNotice(t *testing.T) {
	bus := newRecordingBus()
	tr, now := newTestTracker(bus)

	tr.Touch("51987654321")
	tr.Reset("51987654321")
	*now = now.Add(16 * time.Minute)
	tr.sweepIdle()

	if len(bus.sent()) != 0 {
		t.Fatal("reset session must not receive a closing notice")
	}
}
