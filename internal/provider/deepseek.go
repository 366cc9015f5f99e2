// Package provider implements the text-generation backends behind the
// domain.Provider interface, plus retry and failover plumbing.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"chatvri/internal/domain"
)

// DeepSeek implements domain.Provider against the DeepSeek
// chat-completions API (OpenAI-compatible wire format).
type DeepSeek struct {
	apiKey  string
	apiBase string
	model   string
	client  *http.Client
	logger  *slog.Logger
}

type DeepSeekConfig struct {
	APIKey  string
	APIBase string
	Model   string
	Logger  *slog.Logger
	Client  *http.Client
}

func NewDeepSeek(cfg DeepSeekConfig) *DeepSeek {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.deepseek.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "deepseek-chat"
	}
	if cfg.Client == nil {
		cfg.Client = SharedHTTPClient(defaultHTTPTimeout)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &DeepSeek{
		apiKey:  cfg.APIKey,
		apiBase: cfg.APIBase,
		model:   cfg.Model,
		client:  cfg.Client,
		logger:  cfg.Logger,
	}
}

func (d *DeepSeek) Name() string { return "deepseek" }

func (d *DeepSeek) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", d.apiBase+"/models", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+d.apiKey)
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("deepseek not reachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("deepseek: invalid API key")
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("deepseek returned %d", resp.StatusCode)
	}
	return nil
}

type dsRequest struct {
	Model       string      `json:"model"`
	Messages    []dsMessage `json:"messages"`
	MaxTokens   int         `json:"max_tokens,omitempty"`
	Temperature *float64    `json:"temperature,omitempty"`
	Stream      bool        `json:"stream"`
}

type dsMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type dsResponse struct {
	Choices []dsChoice   `json:"choices"`
	Usage   domain.Usage `json:"usage"`
}

type dsChoice struct {
	Message dsMessage `json:"message"`
}

func (d *DeepSeek) Complete(ctx context.Context, req domain.CompletionRequest) (*domain.CompletionResponse, error) {
	msgs := make([]dsMessage, 0, 2)
	if req.System != "" {
		msgs = append(msgs, dsMessage{Role: "system", Content: req.System})
	}
	msgs = append(msgs, dsMessage{Role: "user", Content: req.Prompt})

	body := dsRequest{
		Model:    d.model,
		Messages: msgs,
		Stream:   false,
	}
	if req.MaxTokens > 0 {
		body.MaxTokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		body.Temperature = &req.Temperature
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	start := time.Now()
	resp, err := sendWithRetry(ctx, d.client, func() (*http.Request, error) {
		httpReq, err := http.NewRequestWithContext(ctx, "POST", d.apiBase+"/chat/completions", bytes.NewReader(jsonBody))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+d.apiKey)
		return httpReq, nil
	}, d.logger)
	if err != nil {
		return nil, fmt.Errorf("deepseek request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("deepseek %d", resp.StatusCode)
	}

	var dsResp dsResponse
	if err := json.NewDecoder(resp.Body).Decode(&dsResp); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if len(dsResp.Choices) == 0 {
		return nil, fmt.Errorf("deepseek: empty choices")
	}

	return &domain.CompletionResponse{
		Text:      dsResp.Choices[0].Message.Content,
		Model:     d.model,
		Usage:     dsResp.Usage,
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}
