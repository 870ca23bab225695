package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fleetalert/internal/config"
	"fleetalert/internal/ingest"
	"fleetalert/internal/logger"
	"fleetalert/internal/processor"
	"fleetalert/internal/rules"
	"fleetalert/internal/service"
	"fleetalert/internal/store"
)

// Daemon is the high-level coordinator for storage, ingestion, rule
// evaluation, and the reconciliation scheduler.
type Daemon struct {
	cfg *config.Config

	redisClient *redis.Client
	alerts      store.AlertStore
	svc         *service.Service
	scheduler   *processor.Scheduler
	consumer    *ingest.Consumer
	httpServer  *http.Server

	wg sync.WaitGroup
}

// New constructs a Daemon with the given config.
func New(cfg *config.Config) *Daemon {
	return &Daemon{cfg: cfg}
}

// Run starts background goroutines and blocks until the context is
// cancelled, then shuts down gracefully.
func (d *Daemon) Run(ctx context.Context) error {
	log := logger.WithComponent("daemon")
	log.Info().Msg("daemon starting")

	if err := d.init(); err != nil {
		return err
	}
	defer d.redisClient.Close()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.scheduler.Run(runCtx)
	}()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.consumer.Run(runCtx); err != nil {
			log.Error().Err(err).Msg("consumer exited")
			cancel()
		}
	}()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		log.Info().Str("addr", d.cfg.MetricsAddr).Msg("starting HTTP server")
		if err := d.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	<-runCtx.Done()
	log.Info().Msg("shutdown signal received")
	return d.shutdown()
}

func (d *Daemon) init() error {
	log := logger.WithComponent("daemon")

	d.redisClient = redis.NewClient(&redis.Options{Addr: d.cfg.RedisAddr})
	primary := store.NewRedis(d.redisClient)
	d.alerts = store.NewFailover(primary, store.NewMemory())
	log.Info().Str("redis_addr", d.cfg.RedisAddr).Msg("alert store initialized")

	ruleSet, err := loadRules(d.cfg.RulesPath)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}
	engine := rules.NewEngine(ruleSet, d.cfg.EscalationCooldown)

	coordinator := processor.NewCoordinator(d.alerts, engine)
	retention := time.Duration(d.cfg.RetentionDays) * 24 * time.Hour
	d.scheduler = processor.NewScheduler(coordinator, d.alerts, d.cfg.SweepInterval, retention)

	d.svc = service.New(d.alerts, ruleSet, coordinator, d.scheduler)

	reader := ingest.NewReader(d.cfg.KafkaBrokers, d.cfg.KafkaTopic, d.cfg.KafkaGroupID)
	d.consumer = ingest.NewConsumer(reader, d.svc)
	log.Info().
		Strs("brokers", d.cfg.KafkaBrokers).
		Str("topic", d.cfg.KafkaTopic).
		Msg("kafka consumer initialized")

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", d.healthHandler)
	mux.HandleFunc("/stats", d.statsHandler)
	d.httpServer = &http.Server{
		Addr:         d.cfg.MetricsAddr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return nil
}

func loadRules(path string) (*rules.Set, error) {
	if path == "" {
		return rules.NewSet(rules.Defaults()), nil
	}
	return rules.LoadFile(path, true)
}

// Service exposes the boundary API to embedding callers.
func (d *Daemon) Service() *service.Service {
	return d.svc
}

func (d *Daemon) shutdown() error {
	log := logger.WithComponent("daemon")
	log.Info().Msg("initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := d.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}
	if err := d.consumer.Close(); err != nil {
		log.Error().Err(err).Msg("consumer close error")
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Info().Msg("daemon stopped gracefully")
	case <-time.After(15 * time.Second):
		log.Warn().Msg("shutdown timeout, forcing exit")
	}
	return nil
}

// healthHandler reports primary store connectivity. Losing Redis is a
// degraded state, not an unhealthy one: the fallback store keeps serving.
func (d *Daemon) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "healthy"
	if err := d.redisClient.Ping(ctx).Err(); err != nil {
		status = "degraded"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":%q,"timestamp":%q}`, status, time.Now().Format(time.RFC3339))
}

// statsHandler returns the dashboard overview aggregation.
func (d *Daemon) statsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	overview, err := d.svc.Overview(ctx)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(overview)
}
