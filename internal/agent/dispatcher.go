// Package agent contains the message pipeline between the WhatsApp
// poller and the gateway sender: classification, retrieval, prompt
// assembly, generation and session tracking.
package agent

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"chatvri/internal/domain"
	"chatvri/internal/metrics"
)

const (
	greetingReply = "¡Hola! 👋 Soy el asistente del Vicerrectorado de Investigación de la UNA Puno. " +
		"Puedo darte correos, teléfonos, horarios y ubicaciones de las facultades, " +
		"e información sobre trámites de investigación. ¿Qué necesitas?"
	trivialReply  = "¡De nada! 😊 Si necesitas algo más del Vicerrectorado de Investigación, aquí estoy."
	redirectReply = "Lo siento, solo puedo ayudarte con información del Vicerrectorado de Investigación de la UNA Puno."
	resetReply    = "Listo, he olvidado nuestra conversación anterior. ¿En qué te puedo ayudar?"
	helpReply     = "Puedes preguntarme por:\n" +
		"• Correos y teléfonos de las facultades\n" +
		"• Horarios y ubicaciones de oficinas\n" +
		"• Trámites y requisitos de investigación\n\n" +
		"Comandos:\n/reset - reiniciar la conversación\n/ayuda - este mensaje"
	unknownCmdReply = "No reconozco ese comando. Escribe /ayuda para ver lo que puedo hacer."
)

// Dispatcher consumes inbound messages from the bus and processes them
// with bounded concurrency. Canned interactions (greetings, commands,
// trivial acknowledgements) are answered without touching retrieval or
// the provider; everything else runs the full pipeline.
type Dispatcher struct {
	bus         domain.MessageBus
	retriever   domain.Retriever
	synthesizer *Synthesizer
	tracker     *Tracker
	store       domain.ConversationStore
	persist     *Supervisor
	logger      *slog.Logger

	concurrency  int
	historyLimit int
	limiter      *rate.Limiter

	// resetMu guards resets, the per-sender watermark set by /reset.
	// History recorded before the watermark never reaches a prompt.
	resetMu sync.Mutex
	resets  map[string]time.Time
}

type DispatcherOptions struct {
	Bus          domain.MessageBus
	Retriever    domain.Retriever
	Synthesizer  *Synthesizer
	Tracker      *Tracker
	Store        domain.ConversationStore
	Persist      *Supervisor
	Logger       *slog.Logger
	Concurrency  int
	HistoryLimit int
	RatePerMin   float64 // generation calls per minute, 0 = unlimited
}

func NewDispatcher(opts DispatcherOptions) *Dispatcher {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 50
	}
	if opts.HistoryLimit < 0 {
		opts.HistoryLimit = 0
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RatePerMin > 0 {
		burst := int(opts.RatePerMin / 6)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerMin/60.0), burst)
	}

	return &Dispatcher{
		bus:          opts.Bus,
		retriever:    opts.Retriever,
		synthesizer:  opts.Synthesizer,
		tracker:      opts.Tracker,
		store:        opts.Store,
		persist:      opts.Persist,
		logger:       opts.Logger.With("component", "dispatcher"),
		concurrency:  opts.Concurrency,
		historyLimit: opts.HistoryLimit,
		limiter:      limiter,
		resets:       make(map[string]time.Time),
	}
}

// Run consumes inbound messages until the context is canceled or the
// bus closes.
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info("dispatcher started", "concurrency", d.concurrency)

	sem := make(chan struct{}, d.concurrency)
	inbound := d.bus.Subscribe()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher stopping")
			return
		case msg, ok := <-inbound:
			if !ok {
				d.logger.Info("inbound channel closed, dispatcher stopping")
				return
			}
			sem <- struct{}{}
			go func(m domain.InboundMessage) {
				defer func() { <-sem }()
				d.process(ctx, m)
			}(msg)
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, msg domain.InboundMessage) {
	metrics.MessagesTotal.Inc()
	metrics.InFlight.Inc()
	defer metrics.InFlight.Dec()

	d.tracker.Touch(msg.Sender)
	metrics.OpenSessions.Set(int64(d.tracker.Open()))

	class := Classify(msg.Content)
	d.logger.Info("processing message",
		"sender", msg.Sender,
		"class", class.String(),
		"content_len", len(msg.Content))

	switch class {
	case domain.ClassCommand:
		d.handleCommand(msg)
	case domain.ClassGreeting:
		d.reply(msg.Sender, greetingReply)
		d.record(msg, greetingReply, "canned", 0, 0, 0)
	case domain.ClassTrivial:
		d.reply(msg.Sender, trivialReply)
	case domain.ClassOffTopic:
		d.reply(msg.Sender, redirectReply)
		d.record(msg, redirectReply, "canned", 0, 0, 0)
	default:
		d.handleQuery(ctx, msg)
	}
}

// Answer runs the full pipeline synchronously and returns the reply
// text. Used by the CLI chat command.
func (d *Dispatcher) Answer(ctx context.Context, sender, content string) string {
	msg := domain.InboundMessage{
		ID:        uuid.NewString(),
		Sender:    sender,
		Content:   content,
		Timestamp: time.Now(),
	}

	switch Classify(content) {
	case domain.ClassCommand:
		return d.runCommand(sender, content)
	case domain.ClassGreeting:
		return greetingReply
	case domain.ClassTrivial:
		return trivialReply
	case domain.ClassOffTopic:
		return redirectReply
	}

	reply, _ := d.answerQuery(ctx, msg)
	return reply.Text
}

func (d *Dispatcher) handleCommand(msg domain.InboundMessage) {
	d.reply(msg.Sender, d.runCommand(msg.Sender, msg.Content))
}

// runCommand executes a slash command and returns the reply text. The
// double-slash spellings are accepted because users copy them from old
// help messages.
func (d *Dispatcher) runCommand(sender, content string) string {
	switch strings.TrimLeft(normalizeCommand(content), "/") {
	case "reset":
		d.tracker.Reset(sender)
		d.resetMu.Lock()
		d.resets[sender] = time.Now()
		d.resetMu.Unlock()
		return resetReply
	case "ayuda", "help":
		return helpReply
	default:
		return unknownCmdReply
	}
}

func (d *Dispatcher) handleQuery(ctx context.Context, msg domain.InboundMessage) {
	reply, stats := d.answerQuery(ctx, msg)
	d.reply(msg.Sender, reply.Text)
	d.record(msg, reply.Text, reply.Backend, reply.Latency, stats.docs, stats.topScore)
}

type queryStats struct {
	docs     int
	topScore float64
}

func (d *Dispatcher) answerQuery(ctx context.Context, msg domain.InboundMessage) (Reply, queryStats) {
	docs, err := d.retriever.Retrieve(ctx, msg.Content, 0)
	if err != nil {
		d.logger.Error("retrieval failed", "sender", msg.Sender, "error", err)
		d.persist.LogError("retrieval", err.Error(), msg.Sender)
		metrics.GenerationErrors.Inc()
		return Reply{Text: replyError, Backend: backendError}, queryStats{}
	}

	stats := queryStats{docs: len(docs)}
	if len(docs) > 0 {
		stats.topScore = docs[0].Score
	}
	d.persist.LogSearch(msg.Sender, msg.Content, stats.docs, stats.topScore)

	history := d.history(ctx, msg.Sender)

	if err := d.limiter.Wait(ctx); err != nil {
		return Reply{Text: replyError, Backend: backendError}, stats
	}

	reply := d.synthesizer.Answer(ctx, msg.Content, docs, history)
	if reply.Backend == backendError {
		metrics.GenerationErrors.Inc()
		d.persist.LogError("generation", "degraded to canned reply", msg.Sender)
	}
	if reply.Latency > 0 {
		metrics.GenerationLatency.Observe(reply.Latency.Seconds())
	}
	return reply, stats
}

func (d *Dispatcher) history(ctx context.Context, sender string) []domain.Exchange {
	if d.historyLimit <= 0 {
		return nil
	}
	history, err := d.store.History(ctx, sender, d.historyLimit)
	if err != nil {
		// A missing history degrades the answer, it does not block it.
		d.logger.Warn("history lookup failed", "sender", sender, "error", err)
		return nil
	}

	d.resetMu.Lock()
	cutoff, hasCutoff := d.resets[sender]
	d.resetMu.Unlock()
	if hasCutoff {
		kept := history[:0]
		for _, ex := range history {
			if ex.Timestamp.After(cutoff) {
				kept = append(kept, ex)
			}
		}
		history = kept
	}
	return history
}

func (d *Dispatcher) reply(recipient, text string) {
	d.bus.SendOutbound(domain.OutboundMessage{Recipient: recipient, Content: text})
	metrics.RepliesTotal.Inc()
}

func (d *Dispatcher) record(msg domain.InboundMessage, botText, backend string, latency time.Duration, docs int, topScore float64) {
	d.persist.SaveExchange(domain.Exchange{
		ID:        uuid.NewString(),
		Sender:    msg.Sender,
		UserText:  msg.Content,
		BotText:   botText,
		Backend:   backend,
		Latency:   latency,
		Timestamp: time.Now(),
		DocsFound: docs,
		TopScore:  topScore,
	})
}
