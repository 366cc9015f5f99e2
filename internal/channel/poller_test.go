package channel

import (
	"context"
	"errors"
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

// fakeGateway returns scripted batches and records send attempts.
type fakeGateway struct {
	mu       sync.Mutex
	batches  [][]domain.InboundMessage
	pollErr  error
	pollN    int
	sendFn   func(attempt int) (int, error)
	sendN    int
	lastText string
}

func (f *fakeGateway) PollMessages(ctx context.Context, limit int) ([]domain.InboundMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pollN++
	if f.pollErr != nil {
		return nil, f.pollErr
	}
	if len(f.batches) == 0 {
		return nil, nil
	}
	batch := f.batches[0]
	if len(f.batches) > 1 {
		f.batches = f.batches[1:]
	}
	return batch, nil
}

func (f *fakeGateway) SendText(ctx context.Context, to, body string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendN++
	f.lastText = body
	if f.sendFn != nil {
		return f.sendFn(f.sendN)
	}
	return 200, nil
}

func (f *fakeGateway) Status(ctx context.Context) (bool, error) { return true, nil }

// collectorBus records published messages.
type collectorBus struct {
	mu   sync.Mutex
	msgs []domain.InboundMessage
}

func (c *collectorBus) Publish(msg domain.InboundMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
}

func (c *collectorBus) Subscribe() <-chan domain.InboundMessage        { return nil }
func (c *collectorBus) SendOutbound(msg domain.OutboundMessage)        {}
func (c *collectorBus) OnOutbound(handler func(domain.OutboundMessage)) {}
func (c *collectorBus) Close()                                          {}

func (c *collectorBus) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

func TestPollOnce_DedupIdempotence(t *testing.T) {
	batch := []domain.InboundMessage{
		{ID: "a", Sender: "51911111111", Content: "hola"},
		{ID: "b", Sender: "51922222222", Content: "correo de enfermería"},
	}
	gw := &fakeGateway{batches: [][]domain.InboundMessage{batch, batch}}
	bus := &collectorBus{}
	p := NewPoller(PollerOptions{Gateway: gw, Bus: bus, Logger: testLogger()})

	ctx := context.Background()
	if _, err := p.pollOnce(ctx); err != nil {
		t.Fatalf("first poll: %v", err)
	}
	if _, err := p.pollOnce(ctx); err != nil {
		t.Fatalf("second poll: %v", err)
	}

	// Same channel state polled twice: each unique id exactly once.
	if bus.count() != 2 {
		t.Fatalf("expected 2 unique messages downstream, got %d", bus.count())
	}
}

func TestPollOnce_SyntheticKeyWhenIDMissing(t *testing.T) {
	ts := time.Now()
	batch := []domain.InboundMessage{
		{Sender: "51911111111", Content: "hola", Timestamp: ts},
	}
	gw := &fakeGateway{batches: [][]domain.InboundMessage{batch, batch}}
	bus := &collectorBus{}
	p := NewPoller(PollerOptions{Gateway: gw, Bus: bus, Logger: testLogger()})

	ctx := context.Background()
	p.pollOnce(ctx)
	p.pollOnce(ctx)

	if bus.count() != 1 {
		t.Fatalf("hash key should dedup identical messages, got %d downstream", bus.count())
	}
	if bus.msgs[0].ID == "" {
		t.Fatal("published message should carry its synthetic dedup key")
	}
}

func TestSeenSet_EvictsOldestFirst(t *testing.T) {
	s := newSeenSet(3)
	for _, k := range []string{"a", "b", "c"} {
		if !s.Add(k) {
			t.Fatalf("key %q should be new", k)
		}
	}
	if s.Add("a") {
		t.Fatal("key a should still be present")
	}

	// Capacity reached: inserting d evicts a.
	if !s.Add("d") {
		t.Fatal("key d should be new")
	}
	if !s.Add("a") {
		t.Fatal("key a should have been evicted and accepted again")
	}
	if s.Len() != 3 {
		t.Fatalf("expected len 3, got %d", s.Len())
	}
}

func TestCooldown_GrowsAndCaps(t *testing.T) {
	p := NewPoller(PollerOptions{
		Gateway:       &fakeGateway{},
		Bus:           &collectorBus{},
		Logger:        testLogger(),
		Interval:      time.Second,
		CooldownAfter: 3,
		CooldownMax:   10 * time.Second,
	})

	first := p.cooldown(3)
	second := p.cooldown(4)
	if second <= first {
		t.Fatalf("cooldown should grow: %v then %v", first, second)
	}
	if p.cooldown(20) != 10*time.Second {
		t.Fatalf("cooldown should cap at 10s, got %v", p.cooldown(20))
	}
}

func TestRun_PollErrorNotFatal(t *testing.T) {
	gw := &fakeGateway{pollErr: errors.New("gateway down")}
	p := NewPoller(PollerOptions{
		Gateway:  gw,
		Bus:      &collectorBus{},
		Logger:   testLogger(),
		Interval: 5 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	p.Run(ctx) // returns on context deadline, never panics

	gw.mu.Lock()
	polls := gw.pollN
	gw.mu.Unlock()
	if polls < 2 {
		t.Fatalf("poller should keep retrying after errors, polled %d times", polls)
	}
}
