package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/MikeSquared-Agency/moniker/internal/admin"
	"github.com/MikeSquared-Agency/moniker/internal/anthropic"
	"github.com/MikeSquared-Agency/moniker/internal/api"
	"github.com/MikeSquared-Agency/moniker/internal/audit"
	"github.com/MikeSquared-Agency/moniker/internal/callsign"
	"github.com/MikeSquared-Agency/moniker/internal/config"
	"github.com/MikeSquared-Agency/moniker/internal/gateway"
	"github.com/MikeSquared-Agency/moniker/internal/hermes"
	"github.com/MikeSquared-Agency/moniker/internal/interview"
	"github.com/MikeSquared-Agency/moniker/internal/ledger"
	"github.com/MikeSquared-Agency/moniker/internal/metrics"
	"github.com/MikeSquared-Agency/moniker/internal/monitor"
	"github.com/MikeSquared-Agency/moniker/internal/narrator"
	"github.com/MikeSquared-Agency/moniker/internal/processor"
	"github.com/MikeSquared-Agency/moniker/internal/slack"
	"github.com/MikeSquared-Agency/moniker/internal/store"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	slog.Info("moniker starting", "port", cfg.Port)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database
	db, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		slog.Error("failed to apply schema", "error", err)
		os.Exit(1)
	}
	slog.Info("database connected")

	checks := map[string]api.Checker{"postgres": db}

	// Protection ledger: shared in Redis when configured, process-local otherwise
	var protections ledger.Ledger = ledger.NewMemory()
	if cfg.RedisURL != "" {
		rdb, err := ledger.Connect(ctx, cfg.RedisURL)
		if err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer rdb.Close()
		protections = ledger.NewRedis(rdb)
		checks["redis"] = api.CheckFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
		slog.Info("redis ledger ready")
	} else {
		slog.Warn("REDIS_URL not set, protection ledger is process-local")
	}

	// NATS/Hermes
	hermesClient, err := hermes.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, slog.Default())
	if err != nil {
		slog.Error("failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer hermesClient.Close()
	checks["nats"] = api.CheckFunc(func(context.Context) error {
		if !hermesClient.Connected() {
			return gateway.ErrDisconnected
		}
		return nil
	})
	slog.Info("NATS connected", "url", cfg.NatsURL)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	gw := gateway.NewClient(hermesClient, slog.Default(), cfg.GatewayTimeout)

	// Slack alerts (optional: critical events are still logged and published)
	var alerter audit.Alerter
	if cfg.SlackBotToken != "" && cfg.SlackChannel != "" {
		alerter = slack.NewPoster(cfg.SlackBotToken, cfg.SlackChannel, slog.Default())
		slog.Info("slack alerts ready", "channel", cfg.SlackChannel)
	} else {
		slog.Warn("slack not configured, critical events will not page anyone")
	}
	auditor := audit.NewDispatcher(hermesClient, alerter, slog.Default())

	gen := callsign.New(db, slog.Default(),
		callsign.WithDirectory(gw),
		callsign.WithMetrics(m),
		callsign.WithMaxAttempts(cfg.MaxGenerationAttempts),
	)

	machineOpts := []interview.Option{
		interview.WithDirectory(gw),
		interview.WithAnnouncer(gw),
		interview.WithMetrics(m),
		interview.WithApplyTimeout(cfg.ApplyTimeout),
	}
	if cfg.AnthropicAPIKey != "" {
		llm := anthropic.NewClient(cfg.AnthropicAPIKey, cfg.AnthropicModel, anthropic.WithMaxTokens(narrator.MaxTokens))
		machineOpts = append(machineOpts, interview.WithNarrator(narrator.New(llm, 0)))
		slog.Info("narrator ready", "model", llm.Model())
	}
	machine := interview.New(store.Sessions{Store: db}, gen, gw, protections, auditor, slog.Default(), machineOpts...)

	mon := monitor.New(protections, gw, gw, gw, auditor, slog.Default(),
		monitor.WithAnnouncer(gw),
		monitor.WithMetrics(m),
		monitor.WithWindow(cfg.OracleWindow),
		monitor.WithOracleTimeout(cfg.OracleTimeout),
		monitor.WithApplyTimeout(cfg.ApplyTimeout),
	)

	proc := processor.New(machine, mon, slog.Default(), processor.WithConcurrency(cfg.EventWorkers))
	if err := hermesClient.Subscribe(processor.SubjectGatewayEvents, proc.HandleGatewayEvent); err != nil {
		slog.Error("failed to subscribe to gateway events", "error", err)
		os.Exit(1)
	}

	svc := admin.NewService(machine, db, protections, gw, auditor, slog.Default())
	srv := api.NewServer(cfg.Port, cfg.APIToken, svc, reg, checks)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		// Stop intake, then let queued gateway events finish.
		hermesClient.Close()
		proc.Wait()
		return err
	})

	slog.Info("moniker ready", "port", cfg.Port)

	if err := g.Wait(); err != nil {
		slog.Error("moniker stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("moniker stopped")
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
