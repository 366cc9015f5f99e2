package channel

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"chatvri/internal/domain"
)

// Poller periodically fetches inbound messages from the gateway, drops
// ones already seen and publishes the rest on the bus. One poller feeds
// the whole pipeline; it never processes messages itself.
type Poller struct {
	gateway       domain.Gateway
	bus           domain.MessageBus
	logger        *slog.Logger
	interval      time.Duration
	limit         int
	seen          *seenSet
	cooldownAfter int
	cooldownMax   time.Duration
}

type PollerOptions struct {
	Gateway       domain.Gateway
	Bus           domain.MessageBus
	Logger        *slog.Logger
	Interval      time.Duration
	Limit         int
	SeenCapacity  int
	CooldownAfter int           // consecutive failures before backing off
	CooldownMax   time.Duration // backoff cap
}

func NewPoller(opts PollerOptions) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = 3 * time.Second
	}
	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	if opts.SeenCapacity <= 0 {
		opts.SeenCapacity = 1000
	}
	if opts.CooldownAfter <= 0 {
		opts.CooldownAfter = 3
	}
	if opts.CooldownMax <= 0 {
		opts.CooldownMax = 60 * time.Second
	}
	return &Poller{
		gateway:       opts.Gateway,
		bus:           opts.Bus,
		logger:        opts.Logger,
		interval:      opts.Interval,
		limit:         opts.Limit,
		seen:          newSeenSet(opts.SeenCapacity),
		cooldownAfter: opts.CooldownAfter,
		cooldownMax:   opts.CooldownMax,
	}
}

// Run polls until the context is cancelled. A failing gateway is never
// fatal: errors are logged and, after cooldownAfter consecutive
// failures, the poller backs off exponentially up to cooldownMax.
func (p *Poller) Run(ctx context.Context) {
	p.logger.Info("poller started", "interval", p.interval, "limit", p.limit)

	consecutive := 0
	for {
		wait := p.interval
		if consecutive >= p.cooldownAfter {
			wait = p.cooldown(consecutive)
			p.logger.Warn("gateway degraded, cooling down",
				"consecutive_failures", consecutive, "wait", wait)
		}

		select {
		case <-ctx.Done():
			p.logger.Info("poller stopping")
			return
		case <-time.After(wait):
		}

		n, err := p.pollOnce(ctx)
		if err != nil {
			consecutive++
			p.logger.Error("poll failed", "error", err, "consecutive", consecutive)
			continue
		}
		consecutive = 0
		if n > 0 {
			p.logger.Info("new messages", "count", n)
		}
	}
}

// pollOnce fetches one batch and publishes unseen messages. Returns the
// number of messages handed downstream.
func (p *Poller) pollOnce(ctx context.Context) (int, error) {
	msgs, err := p.gateway.PollMessages(ctx, p.limit)
	if err != nil {
		return 0, err
	}

	published := 0
	for _, msg := range msgs {
		key := DedupKey(msg)
		// Mark seen before dispatch so a re-poll racing a slow handler
		// cannot reprocess the same message.
		if !p.seen.Add(key) {
			continue
		}
		msg.ID = key
		p.bus.Publish(msg)
		published++
	}
	return published, nil
}

// cooldown returns an exponential backoff for the given consecutive
// failure count, capped at cooldownMax.
func (p *Poller) cooldown(consecutive int) time.Duration {
	over := consecutive - p.cooldownAfter
	d := p.interval
	for i := 0; i <= over; i++ {
		d *= 2
		if d >= p.cooldownMax {
			return p.cooldownMax
		}
	}
	return d
}

// DedupKey returns the stable identity of an inbound message: the
// gateway id when present, otherwise a hash of sender, timestamp and body.
func DedupKey(msg domain.InboundMessage) string {
	if msg.ID != "" {
		return msg.ID
	}
	h := sha256.Sum256([]byte(msg.Sender + "|" + strconv.FormatInt(msg.Timestamp.Unix(), 10) + "|" + msg.Content))
	return fmt.Sprintf("%x", h[:12])
}

// seenSet is a bounded set with FIFO eviction. It only ever grows to
// capacity; the oldest key is dropped to make room.
type seenSet struct {
	mu    sync.Mutex
	keys  map[string]struct{}
	order []string
	cap   int
}

func newSeenSet(capacity int) *seenSet {
	return &seenSet{
		keys: make(map[string]struct{}, capacity),
		cap:  capacity,
	}
}

// Add inserts the key and reports whether it was new.
func (s *seenSet) Add(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.keys[key]; ok {
		return false
	}
	if len(s.order) >= s.cap {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.keys, oldest)
	}
	s.keys[key] = struct{}{}
	s.order = append(s.order, key)
	return true
}

// Len returns the current number of tracked keys.
func (s *seenSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}
