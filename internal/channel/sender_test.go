package channel

import (
	"context"
	"errors"
	"testing"
	"time"

	"chatvri/internal/domain"
)

func TestSend_SuccessFirstAttempt(t *testing.T) {
	gw := &fakeGateway{}
	s := NewSender(SenderOptions{Gateway: gw, Logger: testLogger(), BaseBackoff: time.Millisecond})

	if out := s.Send(context.Background(), "51987654321", "hola"); out != domain.OutcomeSuccess {
		t.Fatalf("expected success, got %v", out)
	}
	if gw.sendN != 1 {
		t.Fatalf("expected exactly 1 attempt, got %d", gw.sendN)
	}
}

func TestSend_RetriesServerErrorsExactly(t *testing.T) {
	gw := &fakeGateway{sendFn: func(attempt int) (int, error) {
		return 503, errors.New("gateway returned 503")
	}}
	s := NewSender(SenderOptions{
		Gateway:     gw,
		Logger:      testLogger(),
		MaxAttempts: 3,
		BaseBackoff: time.Millisecond,
	})

	out := s.Send(context.Background(), "51987654321", "hola")
	if out != domain.OutcomeRetryable {
		t.Fatalf("expected retryable outcome, got %v", out)
	}
	if gw.sendN != 3 {
		t.Fatalf("always-5xx should be attempted exactly 3 times, got %d", gw.sendN)
	}
}

func TestSend_ClientErrorIsTerminal(t *testing.T) {
	gw := &fakeGateway{sendFn: func(attempt int) (int, error) {
		return 400, errors.New("gateway returned 400")
	}}
	s := NewSender(SenderOptions{
		Gateway:     gw,
		Logger:      testLogger(),
		MaxAttempts: 3,
		BaseBackoff: time.Millisecond,
	})

	out := s.Send(context.Background(), "bad-recipient", "hola")
	if out != domain.OutcomeTerminal {
		t.Fatalf("expected terminal outcome, got %v", out)
	}
	if gw.sendN != 1 {
		t.Fatalf("4xx must never be retried, got %d attempts", gw.sendN)
	}
}

func TestSend_RecoversOnRetry(t *testing.T) {
	gw := &fakeGateway{sendFn: func(attempt int) (int, error) {
		if attempt < 2 {
			return 0, errors.New("connection reset")
		}
		return 200, nil
	}}
	s := NewSender(SenderOptions{
		Gateway:     gw,
		Logger:      testLogger(),
		MaxAttempts: 3,
		BaseBackoff: time.Millisecond,
	})

	if out := s.Send(context.Background(), "51987654321", "hola"); out != domain.OutcomeSuccess {
		t.Fatalf("expected eventual success, got %v", out)
	}
	if gw.sendN != 2 {
		t.Fatalf("expected 2 attempts, got %d", gw.sendN)
	}
}

func TestSend_ContextCancelledDuringBackoff(t *testing.T) {
	gw := &fakeGateway{sendFn: func(attempt int) (int, error) {
		return 500, errors.New("boom")
	}}
	s := NewSender(SenderOptions{
		Gateway:     gw,
		Logger:      testLogger(),
		MaxAttempts: 5,
		BaseBackoff: time.Hour, // would block without cancellation
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	done := make(chan domain.Outcome, 1)
	go func() { done <- s.Send(ctx, "51987654321", "hola") }()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("send did not return after context cancellation")
	}
}
