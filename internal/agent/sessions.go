package agent

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"chatvri/internal/domain"
)

const closingNotice = "He cerrado nuestra conversación por inactividad. " +
	"Escríbeme cuando necesites más información del Vicerrectorado de Investigación. 👋"

// Tracker follows per-sender conversation sessions. A session opens on
// first contact, refreshes on every message, and after the idle window
// the sweeper sends exactly one closing notice. A closed session reopens
// silently on the next message.
type Tracker struct {
	bus    domain.MessageBus
	logger *slog.Logger
	idle   time.Duration
	sweep  time.Duration

	mu       sync.Mutex
	sessions map[string]*session

	now func() time.Time // swappable in tests
}

type session struct {
	lastActivity time.Time
	closed       bool
}

type TrackerOptions struct {
	Bus    domain.MessageBus
	Logger *slog.Logger
	Idle   time.Duration
	Sweep  time.Duration
}

func NewTracker(opts TrackerOptions) *Tracker {
	if opts.Idle <= 0 {
		opts.Idle = 15 * time.Minute
	}
	if opts.Sweep <= 0 {
		opts.Sweep = time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Tracker{
		bus:      opts.Bus,
		logger:   opts.Logger.With("component", "sessions"),
		idle:     opts.Idle,
		sweep:    opts.Sweep,
		sessions: make(map[string]*session),
		now:      time.Now,
	}
}

// Touch records activity for a sender, opening or silently reopening
// the session.
func (t *Tracker) Touch(sender string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[sender]
	if !ok {
		t.sessions[sender] = &session{lastActivity: t.now()}
		return
	}
	s.lastActivity = t.now()
	s.closed = false
}

// Reset forgets the sender's session entirely. Used by the /reset
// command so no closing notice follows a deliberate reset.
func (t *Tracker) Reset(sender string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, sender)
}

// Open returns how many sessions are currently active.
func (t *Tracker) Open() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, s := range t.sessions {
		if !s.closed {
			n++
		}
	}
	return n
}

// Run sweeps for idle sessions until the context is canceled.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.sweep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.sweepIdle()
		}
	}
}

func (t *Tracker) sweepIdle() {
	cutoff := t.now().Add(-t.idle)

	t.mu.Lock()
	var notify []string
	for sender, s := range t.sessions {
		if !s.closed && s.lastActivity.Before(cutoff) {
			s.closed = true
			notify = append(notify, sender)
		}
	}
	t.mu.Unlock()

	for _, sender := range notify {
		t.logger.Info("closing idle session", "sender", sender)
		t.bus.SendOutbound(domain.OutboundMessage{Recipient: sender, Content: closingNotice})
	}
}
