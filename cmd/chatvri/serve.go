package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"chatvri/internal/agent"
	"chatvri/internal/bus"
	"chatvri/internal/channel"
	"chatvri/internal/config"
	"chatvri/internal/domain"
	"chatvri/internal/metrics"
	"chatvri/internal/store"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the WhatsApp bot (poller, dispatcher, sender)",
		Long:  "Polls the WhatsApp gateway, answers messages and persists exchanges. Press Ctrl+C to stop.",
		RunE:  runServe,
	}
}

// pipeline bundles the wired components so chat and serve share the
// same construction path.
type pipeline struct {
	cfg        *config.Config
	log        *slog.Logger
	bus        *bus.InMemoryBus
	store      domain.ConversationStore
	gateway    *channel.Gateway
	dispatcher *agent.Dispatcher
	tracker    *agent.Tracker
	persist    *agent.Supervisor
	cacheLen   func() int
}

func buildPipeline(ctx context.Context, cfg *config.Config, log *slog.Logger) (*pipeline, error) {
	messageBus := bus.New(100, log)

	st, err := store.Open(ctx, cfg.Store, log)
	if err != nil {
		return nil, fmt.Errorf("conversation store: %w", err)
	}

	gateway := channel.NewGateway(channel.GatewayOptions{Config: cfg.Gateway, Logger: log})

	engine, err := buildEngine(cfg, log)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("knowledge engine: %w", err)
	}
	log.Info("knowledge base loaded", "documents", engine.DocCount())

	synth, err := buildSynthesizer(cfg, log)
	if err != nil {
		st.Close()
		return nil, err
	}

	persist := agent.NewSupervisor(st, cfg.Store.SaveRetries, log)
	tracker := agent.NewTracker(agent.TrackerOptions{
		Bus:    messageBus,
		Logger: log,
		Idle:   time.Duration(cfg.Session.IdleMinutes) * time.Minute,
		Sweep:  time.Duration(cfg.Session.SweepSeconds) * time.Second,
	})

	dispatcher := agent.NewDispatcher(agent.DispatcherOptions{
		Bus:          messageBus,
		Retriever:    engine,
		Synthesizer:  synth,
		Tracker:      tracker,
		Store:        st,
		Persist:      persist,
		Logger:       log,
		Concurrency:  cfg.General.MaxConcurrentMessages,
		HistoryLimit: cfg.General.HistoryLimit,
		RatePerMin:   cfg.General.GenerateRatePerMin,
	})

	return &pipeline{
		cfg:        cfg,
		log:        log,
		bus:        messageBus,
		store:      st,
		gateway:    gateway,
		dispatcher: dispatcher,
		tracker:    tracker,
		persist:    persist,
		cacheLen:   engine.CacheLen,
	}, nil
}

func (p *pipeline) close() {
	p.bus.Close()
	p.persist.Wait()
	p.store.Close()
}

func runServe(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w (run 'chatvri init' first)", err)
	}
	log := buildLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := buildPipeline(ctx, cfg, log)
	if err != nil {
		return err
	}

	// The gateway being down is a warning, not a startup failure: the
	// poller keeps retrying with cooldown until it comes back.
	if connected, err := p.gateway.Status(ctx); err != nil {
		log.Warn("gateway unreachable at startup", "err", err)
	} else if !connected {
		log.Warn("gateway reachable but WhatsApp session not connected")
	} else {
		log.Info("gateway connected", "url", cfg.Gateway.APIURL)
	}

	sender := channel.NewSender(channel.SenderOptions{
		Gateway:     p.gateway,
		Logger:      log,
		MaxAttempts: cfg.Gateway.SendMaxRetries,
	})
	p.bus.OnOutbound(func(msg domain.OutboundMessage) {
		sender.Send(ctx, msg.Recipient, msg.Content)
	})

	poller := channel.NewPoller(channel.PollerOptions{
		Gateway:       p.gateway,
		Bus:           p.bus,
		Logger:        log,
		Interval:      time.Duration(cfg.Gateway.PollIntervalS) * time.Second,
		Limit:         cfg.Gateway.PollLimit,
		SeenCapacity:  cfg.Gateway.SeenCapacity,
		CooldownAfter: cfg.Gateway.CooldownAfterErrors,
		CooldownMax:   time.Duration(cfg.Gateway.CooldownMaxS) * time.Second,
	})

	var metricsSrv *metrics.Server
	if cfg.Metrics.Enabled {
		metricsSrv = metrics.NewServer(cfg.Metrics.Addr, metrics.HealthChecks{
			Gateway: func(ctx context.Context) error {
				_, err := p.gateway.Status(ctx)
				return err
			},
			Store:     p.store.Ping,
			CacheSize: p.cacheLen,
		}, log)
		metricsSrv.Start()
	}

	go p.dispatcher.Run(ctx)
	go p.tracker.Run(ctx)
	go poller.Run(ctx)

	log.Info("chatvri serving", "version", version, "store", cfg.Store.Driver)

	<-ctx.Done()
	log.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.close()
	}()

	var shutdownErr error
	select {
	case <-done:
		log.Info("shutdown complete")
	case <-shutdownCtx.Done():
		log.Warn("shutdown timed out, forcing exit")
		shutdownErr = fmt.Errorf("shutdown timed out")
	}

	if metricsSrv != nil {
		metricsSrv.Shutdown(shutdownCtx)
	}
	return shutdownErr
}
