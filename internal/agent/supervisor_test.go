package agent

import (
	"context"
	"errors"
	"sync"
	"testing"

	"chatvri/internal/domain"
)

// flakyStore fails the first n SaveExchange calls.
type flakyStore struct {
	memStore
	mu       sync.Mutex
	failLeft int
}

func (s *flakyStore) SaveExchange(ctx context.Context, ex domain.Exchange) error {
	s.mu.Lock()
	if s.failLeft > 0 {
		s.failLeft--
		s.mu.Unlock()
		return errors.New("connection reset")
	}
	s.mu.Unlock()
	return s.memStore.SaveExchange(ctx, ex)
}

func TestSupervisorRetriesTransientFailure(t *testing.T) {
	store := &flakyStore{failLeft: 1}
	store.users = make(map[string]bool)
	sup := NewSupervisor(store, 2, testLogger())

	sup.SaveExchange(domain.Exchange{ID: "e1", Sender: "51911111111", UserText: "q", BotText: "a"})
	sup.Wait()

	if got := len(store.savedExchanges()); got != 1 {
		t.Fatalf("saved = %d, want 1 after retry", got)
	}
}

func TestSupervisorGivesUpAfterRetries(t *testing.T) {
	store := &flakyStore{failLeft: 10}
	store.users = make(map[string]bool)
	sup := NewSupervisor(store, 1, testLogger())

	sup.SaveExchange(domain.Exchange{ID: "e1", Sender: "51911111111"})
	sup.Wait()

	if got := len(store.savedExchanges()); got != 0 {
		t.Fatalf("saved = %d, want 0 when all attempts fail", got)
	}
}

func TestSupervisorWaitDrainsAll(t *testing.T) {
	store := newMemStore()
	sup := NewSupervisor(store, 0, testLogger())

	for i := 0; i < 20; i++ {
		sup.LogSearch("51911111111", "q", 1, 0.9)
	}
	sup.Wait()

	store.mu.Lock()
	defer store.mu.Unlock()
	if store.searches != 20 {
		t.Fatalf("searches = %d, want 20", store.searches)
	}
}
