package agent

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"chatvri/internal/domain"
)

// Canned Spanish replies. They carry a synthetic backend tag so the
// exchange log distinguishes generated answers from short-circuits.
const (
	replyNoContext = "Lo siento, no tengo esa información en mi base de conocimiento. " +
		"Te sugiero contactar directamente al Vicerrectorado de Investigación de la UNA Puno."
	replyError = "Disculpa, tuve un problema técnico al procesar tu consulta. " +
		"Por favor intenta de nuevo en unos minutos."

	backendError     = "error"
	backendNoContext = "no_context"
)

const (
	defaultMaxTokens   = 700
	defaultTemperature = 0.3
)

// Synthesizer turns a query plus retrieved documents into a reply,
// calling the generation provider with a hard timeout. It never returns
// an error: every failure path degrades to a canned Spanish reply so
// the user always hears back.
type Synthesizer struct {
	provider domain.Provider
	prompt   *PromptBuilder
	logger   *slog.Logger
	timeout  time.Duration
	maxChars int
}

type SynthesizerOptions struct {
	Provider domain.Provider
	Prompt   *PromptBuilder
	Logger   *slog.Logger
	Timeout  time.Duration
	MaxChars int
}

func NewSynthesizer(opts SynthesizerOptions) *Synthesizer {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxChars <= 0 {
		opts.MaxChars = 1600
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Synthesizer{
		provider: opts.Provider,
		prompt:   opts.Prompt,
		logger:   opts.Logger,
		timeout:  opts.Timeout,
		maxChars: opts.MaxChars,
	}
}

// Reply is the synthesizer's output: the text to send plus the backend
// tag recorded in the exchange log.
type Reply struct {
	Text    string
	Backend string
	Latency time.Duration
}

// Answer produces the reply for a domain query. When retrieval found
// nothing the provider is not called at all: answering from thin air is
// worse than admitting the gap.
func (s *Synthesizer) Answer(ctx context.Context, query string, docs []domain.ScoredDocument, history []domain.Exchange) Reply {
	if len(docs) == 0 {
		return Reply{Text: replyNoContext, Backend: backendNoContext}
	}

	genCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	resp, err := s.provider.Complete(genCtx, domain.CompletionRequest{
		System:      s.prompt.System(),
		Prompt:      s.prompt.Build(query, docs, history),
		MaxTokens:   defaultMaxTokens,
		Temperature: defaultTemperature,
	})
	elapsed := time.Since(start)

	if err != nil {
		s.logger.Error("generation failed",
			"provider", s.provider.Name(),
			"elapsed", elapsed,
			"error", err)
		return Reply{Text: replyError, Backend: backendError, Latency: elapsed}
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		s.logger.Warn("provider returned empty text", "provider", s.provider.Name())
		return Reply{Text: replyError, Backend: backendError, Latency: elapsed}
	}

	return Reply{Text: s.truncate(text), Backend: resp.Model, Latency: elapsed}
}

// truncate caps the reply at the WhatsApp message limit, cutting at the
// last sentence or word boundary that fits.
func (s *Synthesizer) truncate(text string) string {
	runes := []rune(text)
	if len(runes) <= s.maxChars {
		return text
	}
	cut := string(runes[:s.maxChars-1])
	if i := strings.LastIndexAny(cut, ".!?"); i > s.maxChars/2 {
		return cut[:i+1]
	}
	if i := strings.LastIndex(cut, " "); i > 0 {
		cut = cut[:i]
	}
	return cut + "…"
}
