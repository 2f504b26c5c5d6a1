package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"idoracle/internal/chain"
	"idoracle/internal/evidence/gist"
	jwttoken "idoracle/internal/jwt_token"
	"idoracle/internal/oracle/handler"
	oraclemetrics "idoracle/internal/oracle/metrics"
	"idoracle/internal/oracle/runtime"
	"idoracle/internal/oracle/store"
	"idoracle/internal/platform/config"
	"idoracle/internal/platform/httpserver"
	"idoracle/internal/platform/kafka"
	"idoracle/internal/platform/logger"
	httpmetrics "idoracle/internal/platform/metrics"
	"idoracle/internal/platform/postgres"
	"idoracle/internal/platform/redis"
	"idoracle/internal/pool"
	"idoracle/internal/ratelimit"
	"idoracle/internal/worker"
	"idoracle/pkg/platform/audit"
	"idoracle/pkg/platform/audit/publisher"
	auditmemory "idoracle/pkg/platform/audit/store/memory"
	auditpostgres "idoracle/pkg/platform/audit/store/postgres"
	"idoracle/pkg/platform/circuit"
)

// main wires the node: storage, runtime, pool, chain, worker and the HTTP
// API. Business logic lives in the internal packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("node stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("node stopped")
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	node := cfg.Chain.NodeID
	if node == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("resolve node id: %w", err)
		}
		node = hostname
	}
	log = log.With("node", node)

	var apiOpts []handler.Option

	var db *sql.DB
	var st store.Store
	var auditStore audit.Store
	switch cfg.Storage.Backend {
	case config.StoragePostgres:
		var err error
		db, err = postgres.Open(ctx, cfg.Storage.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := store.Migrate(ctx, db); err != nil {
			return fmt.Errorf("migrate oracle store: %w", err)
		}
		if err := auditpostgres.Migrate(ctx, db); err != nil {
			return fmt.Errorf("migrate audit store: %w", err)
		}
		st = store.NewPostgres(db)
		auditStore = auditpostgres.New(db)
		apiOpts = append(apiOpts, handler.WithHealthCheck("postgres", db.PingContext))
	default:
		st = store.NewInMemory()
		auditStore = auditmemory.NewInMemoryStore()
	}

	var auditOpts []publisher.Option
	auditOpts = append(auditOpts, publisher.WithLogger(log))
	if !cfg.Audit.Regulated {
		auditOpts = append(auditOpts, publisher.WithAsyncBuffer(cfg.Audit.AsyncBuffer))
	}
	auditor := publisher.NewPublisher(auditStore, auditOpts...)
	defer auditor.Close()

	rt := runtime.New(st,
		runtime.WithLogger(log),
		runtime.WithMetrics(oraclemetrics.New(reg)),
	)

	poolOpts := []pool.Option{
		pool.WithCapacity(cfg.Chain.PoolCapacity),
		pool.WithLogger(log),
		pool.WithMetrics(pool.NewMetrics(reg)),
	}
	var gossip *pool.Gossip
	var consumer *kafka.Consumer
	if cfg.GossipEnabled() {
		if err := kafka.EnsureTopic(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Partitions, cfg.Kafka.ReplicationFactor); err != nil {
			return err
		}
		producer, err := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return err
		}
		defer producer.Close()

		// Every node must see every response, so each node is its own group.
		consumer, err = kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID+"-"+node, []string{cfg.Kafka.Topic}, log)
		if err != nil {
			return err
		}
		defer consumer.Close()

		gossip = pool.NewGossip(node, producer, log)
		poolOpts = append(poolOpts, pool.WithPropagator(gossip))
	}
	txPool := pool.New(rt.Gate(), poolOpts...)
	if gossip != nil {
		gossip.Attach(txPool)
	}

	rdb, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
		apiOpts = append(apiOpts, handler.WithHealthCheck("redis", rdb.Health))
	}

	fetcher := newFetcher(cfg, log, reg, rdb)
	verifier, err := worker.New(st, fetcher, gist.Parser{}, txPool,
		worker.WithInvalidator(fetcher),
		worker.WithConcurrency(cfg.Worker.Concurrency),
		worker.WithLogger(log),
		worker.WithMetrics(worker.NewMetrics(reg)),
		worker.WithTracer(otel.Tracer("idoracle/worker")),
	)
	if err != nil {
		return err
	}

	ledger := chain.New(rt, txPool,
		chain.WithLogger(log),
		chain.WithMetrics(chain.NewMetrics(reg)),
	)
	ledger.Subscribe(chain.AuditListener(auditor, log))
	ledger.Subscribe(chain.ListenerFunc(func(ctx context.Context, block chain.Block) {
		verifier.OnBlock(ctx, block.Height)
	}))

	if cfg.Limits.Requests > 0 {
		var limits ratelimit.Store = ratelimit.NewInMemoryStore()
		if rdb != nil {
			limits = ratelimit.NewRedisStore(rdb.Client)
		}
		limiter := ratelimit.NewMiddleware(limits, "verify", cfg.Limits.Requests, cfg.Limits.Window, log, ratelimit.NewMetrics(reg))
		apiOpts = append(apiOpts, handler.WithRateLimit(limiter.Handler))
	}

	operators, err := cfg.Audit.OperatorAccounts()
	if err != nil {
		return err
	}
	tokens := jwttoken.NewJWTService(cfg.Server.JWTSigningKey, cfg.Server.JWTIssuer, cfg.Server.JWTAudience)
	api, err := handler.New(ledger, st, ledger, tokens, log, httpmetrics.New(reg),
		append(apiOpts,
			handler.WithAudit(auditor),
			handler.WithAuditOperators(operators...),
			handler.WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})),
		)...,
	)
	if err != nil {
		return err
	}
	router := chi.NewRouter()
	api.Register(router)
	srv := httpserver.New(cfg.Server.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("block production started", "interval", cfg.Chain.BlockInterval)
		err := ledger.Run(gctx, cfg.Chain.BlockInterval)
		verifier.Wait()
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	if consumer != nil {
		g.Go(func() error {
			err := consumer.Run(gctx, gossip)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	g.Go(func() error {
		log.Info("starting idoracle", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// newFetcher builds cache -> breaker -> HTTP. Cache hits never touch the
// breaker; an open breaker never reaches GitHub.
func newFetcher(cfg config.Config, log *slog.Logger, reg prometheus.Registerer, rdb *redis.Client) *gist.CachingFetcher {
	m := gist.NewMetrics(reg)

	httpFetcher := gist.NewHTTPFetcher(cfg.Worker.GitHubBaseURL,
		gist.WithToken(cfg.Worker.GitHubToken),
		gist.WithTimeout(cfg.Worker.FetchTimeout),
		gist.WithFetcherLogger(log),
		gist.WithFetcherMetrics(m),
	)
	breaker := circuit.New("github-gists", circuit.WithFailureThreshold(cfg.Worker.BreakerThreshold))
	guarded := gist.NewBreakerFetcher(httpFetcher, breaker, log, m)

	var cache gist.Cache = gist.NewMemoryCache()
	if rdb != nil {
		cache = gist.NewRedisCache(rdb.Client)
	}
	return gist.NewCachingFetcher(guarded, cache, cfg.Worker.CacheTTL, log, m)
}
