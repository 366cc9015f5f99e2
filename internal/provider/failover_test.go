package provider

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"chatvri/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// fakeProvider is a scriptable provider for failover tests.
type fakeProvider struct {
	name    string
	text    string
	err     error
	healthy error
	calls   int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Healthy(context.Context) error { return f.healthy }

func (f *fakeProvider) Complete(_ context.Context, _ domain.CompletionRequest) (*domain.CompletionResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &domain.CompletionResponse{Text: f.text, Model: f.name}, nil
}

func TestFailoverUsesFirstHealthyProvider(t *testing.T) {
	primary := &fakeProvider{name: "primary", text: "from primary"}
	backup := &fakeProvider{name: "backup", text: "from backup"}
	fp := NewFailover([]domain.Provider{primary, backup}, testLogger())

	resp, err := fp.Complete(context.Background(), domain.CompletionRequest{Prompt: "hola"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text != "from primary" {
		t.Fatalf("got %q, want primary's response", resp.Text)
	}
	if backup.calls != 0 {
		t.Fatalf("backup called %d times, want 0", backup.calls)
	}
}

func TestFailoverFallsBack(t *testing.T) {
	primary := &fakeProvider{name: "primary", err: errors.New("api down")}
	backup := &fakeProvider{name: "backup", text: "from backup"}
	fp := NewFailover([]domain.Provider{primary, backup}, testLogger())

	resp, err := fp.Complete(context.Background(), domain.CompletionRequest{Prompt: "hola"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text != "from backup" {
		t.Fatalf("got %q, want backup's response", resp.Text)
	}
}

func TestFailoverAllFail(t *testing.T) {
	fp := NewFailover([]domain.Provider{
		&fakeProvider{name: "a", err: errors.New("down")},
		&fakeProvider{name: "b", err: errors.New("also down")},
	}, testLogger())

	if _, err := fp.Complete(context.Background(), domain.CompletionRequest{Prompt: "hola"}); err == nil {
		t.Fatal("expected error when all providers fail")
	}
}

func TestFailoverStopsOnExpiredContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	primary := &fakeProvider{name: "primary", err: errors.New("timeout")}
	backup := &fakeProvider{name: "backup", text: "late"}

	cancel()
	fp := NewFailover([]domain.Provider{primary, backup}, testLogger())
	if _, err := fp.Complete(ctx, domain.CompletionRequest{Prompt: "hola"}); err == nil {
		t.Fatal("expected error with canceled context")
	}
	if backup.calls != 0 {
		t.Fatalf("backup called %d times after context expiry, want 0", backup.calls)
	}
}

func TestFailoverHealthy(t *testing.T) {
	fp := NewFailover([]domain.Provider{
		&fakeProvider{name: "a", healthy: errors.New("down")},
		&fakeProvider{name: "b"},
	}, testLogger())

	if err := fp.Healthy(context.Background()); err != nil {
		t.Fatalf("Healthy: %v", err)
	}

	allDown := NewFailover([]domain.Provider{
		&fakeProvider{name: "a", healthy: errors.New("down")},
	}, testLogger())
	if err := allDown.Healthy(context.Background()); err == nil {
		t.Fatal("expected unhealthy chain")
	}
}

func TestFailoverName(t *testing.T) {
	fp := NewFailover([]domain.Provider{
		&fakeProvider{name: "deepseek"},
		&fakeProvider{name: "ollama"},
	}, testLogger())
	if fp.Name() != "failover(deepseek,ollama)" {
		t.Fatalf("Name = %q", fp.Name())
	}
}
