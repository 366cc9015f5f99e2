package channel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"chatvri/internal/config"
)

func newTestGateway(t *testing.T, handler http.HandlerFunc) *Gateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewGateway(GatewayOptions{
		Config: config.GatewayConfig{APIURL: srv.URL, APIKey: "k", CountryPrefix: "51"},
		Logger: testLogger(),
	})
}

func TestPollMessages_FiltersNonUserAndOwn(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != "k" {
			t.Errorf("missing API key header")
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"id": "m1", "from": "51987654321@c.us", "body": "hola", "timestamp": 1700000000},
				{"id": "m2", "from": "12345@g.us", "body": "group chatter"},
				{"id": "m3", "from": "51911111111@c.us", "body": "own reply", "fromMe": true},
			},
		})
	})

	msgs, err := gw.PollMessages(context.Background(), 50)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 user message, got %d", len(msgs))
	}
	if msgs[0].Sender != "51987654321" {
		t.Fatalf("sender not normalized: %q", msgs[0].Sender)
	}
}

func TestPollMessages_GatewayError(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})
	if _, err := gw.PollMessages(context.Background(), 50); err == nil {
		t.Fatal("expected error on 502")
	}
}

func TestSendText_NormalizesRecipient(t *testing.T) {
	var got map[string]string
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	})

	status, err := gw.SendText(context.Background(), "987654321", "hola")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if got["to"] != "51987654321" {
		t.Fatalf("recipient not normalized before transport: %q", got["to"])
	}
}

func TestSendText_ReturnsStatusOnFailure(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad recipient", http.StatusBadRequest)
	})

	status, err := gw.SendText(context.Background(), "x", "hola")
	if err == nil {
		t.Fatal("expected error on 400")
	}
	if status != http.StatusBadRequest {
		t.Fatalf("expected status 400 for retry classification, got %d", status)
	}
}

func TestStatus_Connected(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"connected": true}})
	})

	connected, err := gw.Status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !connected {
		t.Fatal("expected connected=true")
	}
}
