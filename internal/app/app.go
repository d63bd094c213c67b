// Package app wires the Moyeo controller: the signaling hub, worker
// lifecycle manager, credential pool, context engine, and agent
// orchestration service behind a single HTTP surface.
//
// New builds every subsystem from configuration; tests inject mocks through
// functional options (WithBackend, WithLLM, WithWorkerManager, ...). When
// an option is not provided, New creates the real implementation.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/moyeo-ai/moyeo/internal/agent"
	"github.com/moyeo-ai/moyeo/internal/agent/graph"
	"github.com/moyeo-ai/moyeo/internal/agent/tool"
	"github.com/moyeo-ai/moyeo/internal/backend"
	"github.com/moyeo-ai/moyeo/internal/config"
	"github.com/moyeo-ai/moyeo/internal/credential"
	"github.com/moyeo-ai/moyeo/internal/health"
	"github.com/moyeo-ai/moyeo/internal/kg"
	"github.com/moyeo-ai/moyeo/internal/meetingctx"
	"github.com/moyeo-ai/moyeo/internal/observe"
	"github.com/moyeo-ai/moyeo/internal/resilience"
	"github.com/moyeo-ai/moyeo/internal/signal"
	"github.com/moyeo-ai/moyeo/internal/worker"
	"github.com/moyeo-ai/moyeo/internal/workerman"
	openaiembed "github.com/moyeo-ai/moyeo/pkg/embeddings/openai"
	"github.com/moyeo-ai/moyeo/pkg/llm"
	"github.com/moyeo-ai/moyeo/pkg/llm/anyllm"
)

// App is the assembled controller.
type App struct {
	cfg     *config.Config
	handler http.Handler
	closers []func(context.Context) error
}

// deps are the injectable collaborators. Nil fields are built from config.
type deps struct {
	store       backend.Store
	directory   backend.Directory
	provider    llm.Provider
	repo        kg.Repository
	snapshots   meetingctx.SnapshotStore
	checkpoints graph.Checkpointer
	manager     workerman.Manager
	pool        credential.Pool
}

// Option injects a collaborator, for tests.
type Option func(*deps)

// WithBackend injects the product backend store and directory.
func WithBackend(store backend.Store, dir backend.Directory) Option {
	return func(d *deps) { d.store, d.directory = store, dir }
}

// WithLLM injects the language model provider.
func WithLLM(p llm.Provider) Option {
	return func(d *deps) { d.provider = p }
}

// WithKG injects the knowledge graph repository.
func WithKG(repo kg.Repository) Option {
	return func(d *deps) { d.repo = repo }
}

// WithSnapshotStore injects the context snapshot store.
func WithSnapshotStore(s meetingctx.SnapshotStore) Option {
	return func(d *deps) { d.snapshots = s }
}

// WithCheckpointer injects the agent checkpoint store.
func WithCheckpointer(c graph.Checkpointer) Option {
	return func(d *deps) { d.checkpoints = c }
}

// WithWorkerManager injects the worker lifecycle backend.
func WithWorkerManager(m workerman.Manager) Option {
	return func(d *deps) { d.manager = m }
}

// WithCredentialPool injects the STT credential pool.
func WithCredentialPool(p credential.Pool) Option {
	return func(d *deps) { d.pool = p }
}

// New assembles the controller from cfg. Callers own the returned App and
// must Close it.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	var d deps
	for _, o := range opts {
		o(&d)
	}

	a := &App{cfg: cfg}

	if d.store == nil {
		client, err := backend.New(cfg.Backend.BaseURL, cfg.Backend.ServiceToken)
		if err != nil {
			return nil, fmt.Errorf("app: backend client: %w", err)
		}
		d.store, d.directory = client, client
	}
	if d.directory == nil {
		return nil, errors.New("app: a backend directory is required")
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.closers = append(a.closers, func(context.Context) error { return rdb.Close() })
	}

	var pgPool *pgxpool.Pool
	if cfg.Database.DSN != "" {
		var err error
		pgPool, err = pgxpool.New(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("app: connect database: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error {
			pgPool.Close()
			return nil
		})
	}

	if d.provider == nil {
		var llmOpts []anyllmlib.Option
		if cfg.LLM.APIKey != "" {
			llmOpts = append(llmOpts, anyllmlib.WithAPIKey(cfg.LLM.APIKey))
		}
		if cfg.LLM.BaseURL != "" {
			llmOpts = append(llmOpts, anyllmlib.WithBaseURL(cfg.LLM.BaseURL))
		}
		base, err := anyllm.New(cfg.LLM.Provider, cfg.LLM.Model, llmOpts...)
		if err != nil {
			return nil, fmt.Errorf("app: llm provider: %w", err)
		}
		d.provider = base
	}
	// Every LLM consumer goes through the circuit breaker.
	provider := resilience.NewLLMFallback(d.provider, cfg.LLM.Provider, resilience.FallbackConfig{})

	if d.repo == nil {
		if pgPool == nil {
			return nil, errors.New("app: the knowledge graph requires database.dsn")
		}
		embed, err := openaiembed.New(cfg.LLM.APIKey, cfg.LLM.EmbeddingModel)
		if err != nil {
			return nil, fmt.Errorf("app: embeddings provider: %w", err)
		}
		d.repo = kg.NewPostgresRepository(pgPool, embed)
	}

	if d.snapshots == nil {
		if pgPool == nil {
			return nil, errors.New("app: context snapshots require database.dsn")
		}
		snapshots, err := meetingctx.NewPostgresSnapshotStore(ctx, pgPool)
		if err != nil {
			return nil, fmt.Errorf("app: snapshot store: %w", err)
		}
		d.snapshots = snapshots
	}

	if d.checkpoints == nil {
		ttl := time.Duration(cfg.Agent.CheckpointTTLMinutes) * time.Minute
		if rdb != nil {
			var ropts []graph.RedisCheckpointOption
			if ttl > 0 {
				ropts = append(ropts, graph.WithRedisCheckpointTTL(ttl))
			}
			cp, err := graph.NewRedisCheckpointer(rdb, ropts...)
			if err != nil {
				return nil, fmt.Errorf("app: checkpointer: %w", err)
			}
			d.checkpoints = cp
		} else {
			var mopts []graph.MemoryOption
			if ttl > 0 {
				mopts = append(mopts, graph.WithMemoryTTL(ttl))
			}
			d.checkpoints = graph.NewMemoryCheckpointer(mopts...)
		}
	}

	if d.pool == nil {
		pool, err := buildCredentialPool(cfg, rdb)
		if err != nil {
			return nil, err
		}
		d.pool = pool
	}

	if d.manager == nil {
		manager, err := buildWorkerManager(cfg)
		if err != nil {
			return nil, err
		}
		d.manager = manager
	}

	launcher, err := workerman.NewLauncher(d.manager, d.pool, cfg.Server.PublicURL, cfg.Backend.BaseURL,
		workerman.WithWorkerEnv(workerEnv(cfg)))
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	reg := tool.NewRegistry()
	if err := tool.RegisterQueryTools(reg, d.directory, d.store, d.repo); err != nil {
		return nil, fmt.Errorf("app: register query tools: %w", err)
	}
	if err := tool.RegisterMutationTools(reg, d.directory); err != nil {
		return nil, fmt.Errorf("app: register mutation tools: %w", err)
	}

	agentCfg := graph.Config{MaxRetries: cfg.Agent.MaxReplans}
	voiceCfg := agentCfg
	voiceCfg.Mode = tool.ModeVoice
	voiceGraph, err := graph.New(provider, reg, d.checkpoints, voiceCfg)
	if err != nil {
		return nil, fmt.Errorf("app: voice graph: %w", err)
	}
	spotlightCfg := agentCfg
	spotlightCfg.Mode = tool.ModeSpotlight
	spotlightGraph, err := graph.New(provider, reg, d.checkpoints, spotlightCfg,
		graph.WithOptionsLoader(agent.NewDirectoryOptions(d.directory)))
	if err != nil {
		return nil, fmt.Errorf("app: spotlight graph: %w", err)
	}

	ctxCfg := meetingctx.Config{
		L0MaxTurns:            cfg.Context.RecentUtterances,
		TopicWindow:           cfg.Context.TopicWindow,
		L1UpdateTurnThreshold: cfg.Context.SummarizeEveryTurns,
		DBSyncInterval:        time.Duration(cfg.Context.SnapshotIntervalSeconds) * time.Second,
	}
	snapshots := d.snapshots
	hub := agent.NewContextHub(func(meetingID string) *meetingctx.Manager {
		return meetingctx.New(meetingID,
			meetingctx.NewDetector(provider, nil),
			meetingctx.NewSummarizer(provider),
			snapshots, ctxCfg)
	}, agent.WithTranscriptSource(d.store))

	svc := agent.NewService(voiceGraph, spotlightGraph, hub, agent.NewRouter())

	signer := signal.NewHS256(cfg.Server.JWTSecret)
	registry := signal.NewRegistry()
	dispatcher := signal.NewDispatcher(registry, d.store)
	control := newMeetingControl(d.store, launcher, signer, iceServers(cfg.Server.ICEServers))
	hubServer := signal.NewServer(registry, dispatcher, signer, control, control)

	var checks []health.Checker
	if pgPool != nil {
		checks = append(checks, health.Checker{Name: "database", Check: pgPool.Ping})
	}
	if rdb != nil {
		checks = append(checks, health.Checker{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}

	mux := http.NewServeMux()
	mux.Handle("/meetings/", hubServer.Handler())
	mux.Handle("/agent/", svc.Handler())
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /admin/credentials", credentialStatusHandler(d.pool))
	health.New(checks...).Register(mux)

	a.handler = observe.Middleware(observe.DefaultMetrics())(mux)
	return a, nil
}

// Handler returns the controller's full HTTP surface.
func (a *App) Handler() http.Handler { return a.handler }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("controller listening", "addr", srv.Addr, "tls", a.cfg.Server.TLS != nil)
		if tls := a.cfg.Server.TLS; tls != nil {
			errCh <- srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			errCh <- srv.ListenAndServe()
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http shutdown failed", "error", err)
		}
		return a.Close(shutdownCtx)
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: serve: %w", err)
		}
		return nil
	}
}

// Close releases held resources in reverse construction order.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SetupLogging installs the process-wide slog handler per the configured
// level.
func SetupLogging(level config.LogLevel) {
	var l slog.Level
	switch level {
	case config.LogDebug:
		l = slog.LevelDebug
	case config.LogWarn:
		l = slog.LevelWarn
	case config.LogError:
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}

// credentialStatusHandler reports per-key pool load for operators: index,
// holding meetings, and remaining slots per configured credential.
func credentialStatusHandler(pool credential.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		statuses, err := pool.Status(r.Context())
		if err != nil {
			slog.Error("credential status failed", "error", err)
			http.Error(w, "credential status unavailable", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(statuses); err != nil {
			slog.Debug("failed to write credential status", "error", err)
		}
	}
}

func buildCredentialPool(cfg *config.Config, rdb *redis.Client) (credential.Pool, error) {
	leaseTTL := time.Duration(cfg.Credentials.LeaseTTLMinutes) * time.Minute

	if cfg.Credentials.Shared {
		if rdb == nil {
			return nil, errors.New("app: credentials.shared requires redis.addr")
		}
		var opts []credential.RedisOption
		if cfg.Credentials.MaxPerKey > 0 {
			opts = append(opts, credential.WithRedisMaxPerKey(cfg.Credentials.MaxPerKey))
		}
		if leaseTTL > 0 {
			opts = append(opts, credential.WithRedisLeaseTTL(leaseTTL))
		}
		pool, err := credential.NewRedisPool(rdb, cfg.Credentials.Keys, opts...)
		if err != nil {
			return nil, fmt.Errorf("app: credential pool: %w", err)
		}
		return pool, nil
	}

	var opts []credential.MemoryOption
	if cfg.Credentials.MaxPerKey > 0 {
		opts = append(opts, credential.WithMaxPerKey(cfg.Credentials.MaxPerKey))
	}
	if leaseTTL > 0 {
		opts = append(opts, credential.WithLeaseTTL(leaseTTL))
	}
	pool, err := credential.NewMemoryPool(cfg.Credentials.Keys, opts...)
	if err != nil {
		return nil, fmt.Errorf("app: credential pool: %w", err)
	}
	return pool, nil
}

func buildWorkerManager(cfg *config.Config) (workerman.Manager, error) {
	switch cfg.Workers.Backend {
	case config.BackendJobs:
		m, err := workerman.NewJobManager(cfg.Workers.JobsURL, cfg.Workers.JobsToken)
		if err != nil {
			return nil, fmt.Errorf("app: worker manager: %w", err)
		}
		return m, nil
	default:
		m, err := workerman.NewDockerManager(cfg.Workers.Image)
		if err != nil {
			return nil, fmt.Errorf("app: worker manager: %w", err)
		}
		return m, nil
	}
}

// workerEnv is the optional environment forwarded to launched workers.
func workerEnv(cfg *config.Config) map[string]string {
	env := make(map[string]string)
	// The agent surface is served from this controller's listener.
	if cfg.Server.PublicURL != "" {
		env[worker.EnvAgentURL] = cfg.Server.PublicURL
	}
	if cfg.TTS.BaseURL != "" {
		env[worker.EnvTTSURL] = cfg.TTS.BaseURL
	}
	if cfg.TTS.Voice != "" {
		env[worker.EnvTTSVoice] = cfg.TTS.Voice
	}
	if cfg.STT.Language != "" {
		env[worker.EnvLanguage] = cfg.STT.Language
	}
	if cfg.Voice.WakeWord != "" {
		env[worker.EnvWakeWord] = cfg.Voice.WakeWord
	}
	if cfg.Server.LogLevel != "" {
		env[worker.EnvLogLevel] = string(cfg.Server.LogLevel)
	}
	if cfg.Voice.CompletionGraceSeconds > 0 {
		env[worker.EnvCompletionGrace] = strconv.Itoa(cfg.Voice.CompletionGraceSeconds)
	}
	if cfg.Voice.TTSFailureThreshold > 0 {
		env[worker.EnvTTSFailureThreshold] = strconv.Itoa(cfg.Voice.TTSFailureThreshold)
	}
	return env
}

func iceServers(cfgs []config.ICEServerConfig) []signal.ICEServer {
	out := make([]signal.ICEServer, len(cfgs))
	for i, c := range cfgs {
		out[i] = signal.ICEServer{URLs: c.URLs, Username: c.Username, Credential: c.Credential}
	}
	return out
}
