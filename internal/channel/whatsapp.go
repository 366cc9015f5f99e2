// Package channel implements the WhatsApp gateway client, the
// deduplicating poller and the retrying outbound sender.
package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"chatvri/internal/config"
	"chatvri/internal/domain"
)

// Gateway is an HTTP client for the WhatsApp gateway service
// (the small Node service that owns the actual WhatsApp session).
// It implements domain.Gateway.
type Gateway struct {
	apiURL        string
	apiKey        string
	countryPrefix string
	client        *http.Client
	logger        *slog.Logger
}

type GatewayOptions struct {
	Config config.GatewayConfig
	Logger *slog.Logger
	Client *http.Client // optional, for tests
}

func NewGateway(opts GatewayOptions) *Gateway {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Gateway{
		apiURL:        opts.Config.APIURL,
		apiKey:        opts.Config.APIKey,
		countryPrefix: opts.Config.CountryPrefix,
		client:        client,
		logger:        opts.Logger,
	}
}

// --- gateway payloads ---

type gwMessage struct {
	ID        string `json:"id"`
	From      string `json:"from"` // channel-native, e.g. "51987654321@c.us"
	Body      string `json:"body"`
	Timestamp int64  `json:"timestamp"` // unix seconds
	FromMe    bool   `json:"fromMe"`
}

type gwMessagesResponse struct {
	Data []gwMessage `json:"data"`
}

type gwStatusResponse struct {
	Data struct {
		Connected bool `json:"connected"`
	} `json:"data"`
}

// PollMessages fetches pending inbound messages. Only user messages
// (from a @c.us identity, not sent by us) are returned; identities are
// normalized to digits-only international format.
func (g *Gateway) PollMessages(ctx context.Context, limit int) ([]domain.InboundMessage, error) {
	u := fmt.Sprintf("%s/api/whatsapp/messages?%s", g.apiURL,
		url.Values{"limit": {strconv.Itoa(limit)}}.Encode())

	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	g.setHeaders(req)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("poll messages: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("gateway returned %d: %s", resp.StatusCode, string(body))
	}

	var payload gwMessagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}

	msgs := make([]domain.InboundMessage, 0, len(payload.Data))
	for _, m := range payload.Data {
		if m.FromMe || !isUserIdentity(m.From) {
			continue
		}
		ts := time.Unix(m.Timestamp, 0)
		if m.Timestamp == 0 {
			ts = time.Now()
		}
		msgs = append(msgs, domain.InboundMessage{
			ID:        m.ID,
			Sender:    NormalizePhone(m.From, g.countryPrefix),
			Content:   m.Body,
			Timestamp: ts,
		})
	}
	return msgs, nil
}

// SendText delivers one text message and returns the gateway's HTTP
// status code. Retry policy lives in the Sender, not here.
func (g *Gateway) SendText(ctx context.Context, to, body string) (int, error) {
	payload, err := json.Marshal(map[string]string{
		"to":      NormalizePhone(to, g.countryPrefix),
		"message": body,
	})
	if err != nil {
		return 0, fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST",
		g.apiURL+"/api/whatsapp/send/text", bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	g.setHeaders(req)

	resp, err := g.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, fmt.Errorf("gateway returned %d: %s", resp.StatusCode, string(respBody))
	}
	return resp.StatusCode, nil
}

// Status reports whether the gateway holds a live WhatsApp session.
func (g *Gateway) Status(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", g.apiURL+"/api/whatsapp/status", nil)
	if err != nil {
		return false, err
	}
	g.setHeaders(req)

	resp, err := g.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("gateway not reachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("gateway returned %d", resp.StatusCode)
	}

	var payload gwStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return false, fmt.Errorf("decode status: %w", err)
	}
	return payload.Data.Connected, nil
}

func (g *Gateway) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", g.apiKey)
	req.Header.Set("User-Agent", "ChatVRI-Bot/1.0")
}
