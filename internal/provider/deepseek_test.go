package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"chatvri/internal/config"
	"chatvri/internal/domain"
)

func TestDeepSeekComplete(t *testing.T) {
	var gotAuth string
	var gotReq dsRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(dsResponse{
			Choices: []dsChoice{{Message: dsMessage{Role: "assistant", Content: "respuesta"}}},
			Usage:   domain.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		})
	}))
	defer srv.Close()

	ds := NewDeepSeek(DeepSeekConfig{APIKey: "sk-test", APIBase: srv.URL, Logger: testLogger()})
	resp, err := ds.Complete(context.Background(), domain.CompletionRequest{
		System: "Eres un asistente",
		Prompt: "hola",
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text != "respuesta" {
		t.Fatalf("Text = %q", resp.Text)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Fatalf("TotalTokens = %d", resp.Usage.TotalTokens)
	}
	if gotAuth != "Bearer sk-test" {
		t.Fatalf("Authorization = %q", gotAuth)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" {
		t.Fatalf("messages = %+v, want system then user", gotReq.Messages)
	}
}

func TestDeepSeekRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(dsResponse{
			Choices: []dsChoice{{Message: dsMessage{Content: "ok"}}},
		})
	}))
	defer srv.Close()

	ds := NewDeepSeek(DeepSeekConfig{APIKey: "k", APIBase: srv.URL, Logger: testLogger()})
	resp, err := ds.Complete(context.Background(), domain.CompletionRequest{Prompt: "hola"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text != "ok" {
		t.Fatalf("Text = %q", resp.Text)
	}
	if calls.Load() != 2 {
		t.Fatalf("calls = %d, want 2", calls.Load())
	}
}

func TestDeepSeekEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(dsResponse{})
	}))
	defer srv.Close()

	ds := NewDeepSeek(DeepSeekConfig{APIKey: "k", APIBase: srv.URL, Logger: testLogger()})
	if _, err := ds.Complete(context.Background(), domain.CompletionRequest{Prompt: "hola"}); err == nil {
		t.Fatal("expected error on empty choices")
	}
}

func TestFactoryCachesAndChains(t *testing.T) {
	cfg := config.Defaults()
	cfg.Providers["ollama"] = config.ProviderConfig{Enabled: true, APIBase: "http://localhost:11434"}
	cfg.General.FailoverChain = []string{"deepseek", "ollama"}

	f := NewFactory(cfg, testLogger())

	a, err := f.Get("deepseek")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	b, err := f.Get("deepseek")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if a != b {
		t.Fatal("factory did not cache the provider instance")
	}

	chain, err := f.Chain()
	if err != nil {
		t.Fatalf("Chain: %v", err)
	}
	if chain.Name() != "failover(deepseek,ollama)" {
		t.Fatalf("Chain name = %q", chain.Name())
	}
}

func TestFactoryRejectsDisabled(t *testing.T) {
	cfg := config.Defaults()
	f := NewFactory(cfg, testLogger())
	// ollama ships disabled by default.
	if _, err := f.Get("ollama"); err == nil {
		t.Fatal("expected error for disabled provider")
	}
}
