// Package readiness derives daily Sleep, Recovery and Strain scores from
// wearable samples and multi-source workout histories. An application
// constructs one Engine at startup and drives it through Calculate, Sync and
// the ingestion methods.
package readiness

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"readiness/internal/activity"
	"readiness/internal/analysis"
	"readiness/internal/athlete"
	"readiness/internal/auth"
	"readiness/internal/cache"
	"readiness/internal/config"
	"readiness/internal/day"
	"readiness/internal/intervals"
	"readiness/internal/logger"
	"readiness/internal/orchestrator"
	"readiness/internal/publish"
	"readiness/internal/score"
	"readiness/internal/service"
	"readiness/internal/store"
	"readiness/internal/strava"
	"readiness/internal/telemetry"
	"readiness/internal/wellness"
)

type (
	Config      = config.Config
	ScoreType   = score.Type
	Result      = score.Result
	Outcome     = orchestrator.Outcome
	State       = orchestrator.State
	Update      = orchestrator.Update
	Subscriber  = orchestrator.Subscriber
	DailySample = wellness.DailySample
	SyncResult  = service.SyncResult
	Source      = activity.Source
)

const (
	Sleep    = score.Sleep
	Recovery = score.Recovery
	Strain   = score.Strain
)

var (
	ErrAuthorizationDenied = orchestrator.ErrAuthorizationDenied
	ErrDataUnavailable     = orchestrator.ErrDataUnavailable
	ErrComputationTimeout  = orchestrator.ErrComputationTimeout

	// ErrUnknownScore is returned for a score type the engine does not compute
	ErrUnknownScore = errors.New("unknown score type")

	// ErrStravaDisabled is returned by the Strava methods when no client
	// credentials are configured
	ErrStravaDisabled = errors.New("strava is not configured")
)

// LoadConfig layers defaults, the optional YAML file and READINESS_ env vars
func LoadConfig(ctx context.Context) (*Config, error) {
	return config.Load(ctx)
}

// DefaultConfig returns the built-in configuration
func DefaultConfig() Config {
	return config.Default()
}

// Deps are optional collaborators. Zero values select the defaults.
type Deps struct {
	Logger     *zap.Logger
	Registerer prometheus.Registerer // defaults to prometheus.DefaultRegisterer
	Store      *store.Store          // opened at Config.DBPath() when nil; not closed by the engine
	Profile    athlete.Provider      // defaults to the configured athlete
	Sources    []activity.Source     // added to the configured Strava and Intervals.icu sources

	// WellnessAuthorized is the initial authorization of the wearable adapter
	WellnessAuthorized bool

	Now func() time.Time
}

type closer interface {
	Close() error
}

// Engine is the composition root
type Engine struct {
	cfg   Config
	loc   *time.Location
	log   *zap.Logger
	now   func() time.Time
	store *store.Store

	wellness      *wellness.StoreProvider
	cache         *cache.Coordinator
	registry      *orchestrator.Registry
	orchestrators map[score.Type]*orchestrator.Orchestrator
	sync          *service.SyncService
	sources       []activity.Source
	stravaOAuth   *oauth2.Config

	closers         []closer
	shutdownTracing func(context.Context) error
	ownsStore       bool
}

// New wires an engine from cfg
func New(ctx context.Context, cfg *Config, deps Deps) (*Engine, error) {
	if cfg == nil {
		def := config.Default()
		cfg = &def
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	log := deps.Logger
	if log == nil {
		log, err = logger.New(cfg.LogLevel, cfg.LogFormat, cfg.Telemetry.ServiceName)
		if err != nil {
			return nil, fmt.Errorf("creating logger: %w", err)
		}
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	e := &Engine{
		cfg:           *cfg,
		loc:           loc,
		log:           log,
		now:           now,
		orchestrators: make(map[score.Type]*orchestrator.Orchestrator, len(score.Types)),
	}

	e.shutdownTracing, err = telemetry.SetupTracing(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		return nil, fmt.Errorf("setting up tracing: %w", err)
	}
	metrics := telemetry.NewMetrics(
		telemetry.WithNamespace(cfg.Telemetry.MetricsNamespace),
		telemetry.WithRegistry(deps.Registerer),
	)

	e.store = deps.Store
	if e.store == nil {
		e.store, err = store.Open(ctx, cfg.DBPath())
		if err != nil {
			_ = e.Close(ctx)
			return nil, fmt.Errorf("opening store: %w", err)
		}
		e.ownsStore = true
	}

	profile := deps.Profile
	if profile == nil {
		profile = athlete.FromConfig(cfg.Athlete)
	}
	unifier := activity.NewUnifier(cfg.Unifier)
	e.wellness = wellness.NewStoreProvider(e.store, deps.WellnessAuthorized)

	sources := e.buildSources(cfg, log)
	var history analysis.HistorySource
	for _, src := range sources {
		if rf, ok := src.(service.RangeFetcher); ok && src.Name() == intervals.SourceName {
			history = service.NewHistory(rf, unifier, profile, loc)
		}
	}
	sources = append(sources, deps.Sources...)
	e.sources = sources

	loadEngine := analysis.NewEngine(cfg.TrainingLoad, loc, history, log, metrics)
	trends := service.NewTrends(e.store, loadEngine, loc, log)
	e.sync = service.NewSyncService(service.SyncConfig{
		Sources:  sources,
		Unifier:  unifier,
		Profile:  profile,
		Store:    e.store,
		Trends:   trends,
		DaysBack: cfg.Unifier.SyncDaysBack,
		Location: loc,
		Logger:   log,
		Metrics:  metrics,
	})

	e.cache = cache.New(e.store, cfg.AlgorithmVersion,
		cache.WithTTL(cfg.Cache.TTL),
		cache.WithClock(now),
		cache.WithLogger(log),
		cache.WithMetrics(metrics),
	)
	e.registry = orchestrator.NewRegistry(log, metrics)
	if err := e.publishers(ctx, cfg.Publish, log); err != nil {
		_ = e.Close(ctx)
		return nil, err
	}

	calc := score.NewCalculator(cfg.AlgorithmVersion, cfg.Recovery, loc)
	o := cfg.Orchestrator
	inputs := service.NewInputs(e.wellness, e.store, profile, trends, cfg.BaselineDays, loc).
		WithLoadTimeout(o.RecoveryTimeout)
	common := []orchestrator.Option{
		orchestrator.WithRecords(e.store),
		orchestrator.WithRegistry(e.registry),
		orchestrator.WithVersion(cfg.AlgorithmVersion),
		orchestrator.WithClock(now),
		orchestrator.WithLogger(log),
		orchestrator.WithMetrics(metrics),
	}
	with := func(extra ...orchestrator.Option) []orchestrator.Option {
		return append(append([]orchestrator.Option{}, common...), extra...)
	}
	sleep := orchestrator.New(score.Sleep, service.NewSleepComputer(calc, inputs), e.cache, with(
		orchestrator.WithTimeout(o.SleepTimeout),
		orchestrator.WithAuthorization(e.wellness.IsAuthorized),
	)...)
	recovery := orchestrator.New(score.Recovery, service.NewRecoveryComputer(calc, inputs, log), e.cache, with(
		orchestrator.WithTimeout(o.RecoveryTimeout),
		orchestrator.WithAuthorization(e.wellness.IsAuthorized),
		orchestrator.WithDependency(sleep, o.DependencyMaxWait, o.DependencyInitialBackoff, o.DependencyMaxBackoff),
	)...)
	strain := orchestrator.New(score.Strain, service.NewStrainComputer(calc, inputs, e.cache, log), e.cache, with(
		orchestrator.WithTimeout(o.StrainTimeout),
		orchestrator.WithAuthorization(e.strainAuthorized),
	)...)
	e.orchestrators[score.Sleep] = sleep
	e.orchestrators[score.Recovery] = recovery
	e.orchestrators[score.Strain] = strain

	log.Info("engine ready",
		zap.Int("algorithm_version", cfg.AlgorithmVersion),
		zap.Strings("sources", e.sync.SourceNames()),
		zap.String("timezone", loc.String()))
	return e, nil
}

func (e *Engine) buildSources(cfg *Config, log *zap.Logger) []activity.Source {
	var sources []activity.Source
	if cfg.Strava.Enabled() {
		e.stravaOAuth = auth.NewOAuthConfig(cfg.Strava)
		sources = append(sources, strava.NewSource(e.stravaOAuth, e.store, log))
	}
	if cfg.Intervals.Enabled() {
		sources = append(sources, intervals.New(cfg.Intervals, log))
	}
	return sources
}

func (e *Engine) publishers(ctx context.Context, cfg config.PublishConfig, log *zap.Logger) error {
	if cfg.RedisAddr != "" {
		r, err := publish.DialRedis(ctx, cfg, log)
		if err != nil {
			return err
		}
		e.registry.Subscribe(r)
		e.closers = append(e.closers, r)
	}
	if cfg.MQTTBroker != "" {
		m, err := publish.DialMQTT(cfg, log)
		if err != nil {
			return err
		}
		e.registry.Subscribe(m)
		e.closers = append(e.closers, m)
	}
	return nil
}

// strainAuthorized reports whether any input of Strain is still authorized
func (e *Engine) strainAuthorized(ctx context.Context) bool {
	if e.wellness.IsAuthorized(ctx) {
		return true
	}
	for _, src := range e.sources {
		if src.IsAuthorized(ctx) {
			return true
		}
	}
	return false
}

// Config returns the configuration the engine was built with
func (e *Engine) Config() Config {
	return e.cfg
}

// Today returns the current day key in the configured timezone
func (e *Engine) Today() string {
	return day.Key(e.now(), e.loc)
}

// Calculate computes or serves the score of type t for dayKey. An empty
// dayKey means today.
func (e *Engine) Calculate(ctx context.Context, t ScoreType, dayKey string, force bool) (Outcome, error) {
	o, ok := e.orchestrators[t]
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %q", ErrUnknownScore, t)
	}
	if dayKey == "" {
		dayKey = e.Today()
	}
	if _, err := day.Parse(dayKey, e.loc); err != nil {
		return Outcome{}, err
	}
	return o.Calculate(ctx, dayKey, force), nil
}

// CalculateAll computes every score for dayKey concurrently. Recovery waits
// for Sleep through its dependency.
func (e *Engine) CalculateAll(ctx context.Context, dayKey string, force bool) map[ScoreType]Outcome {
	if dayKey == "" {
		dayKey = e.Today()
	}
	outcomes := make([]Outcome, len(score.Types))
	var g errgroup.Group
	for i, t := range score.Types {
		g.Go(func() error {
			outcomes[i] = e.orchestrators[t].Calculate(ctx, dayKey, force)
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[ScoreType]Outcome, len(score.Types))
	for i, t := range score.Types {
		out[t] = outcomes[i]
	}
	return out
}

// State returns the live orchestrator state of t
func (e *Engine) State(t ScoreType) State {
	if o, ok := e.orchestrators[t]; ok {
		return o.State()
	}
	return orchestrator.Idle
}

// Subscribe registers s for every score update
func (e *Engine) Subscribe(s Subscriber) (unsubscribe func()) {
	return e.registry.Subscribe(s)
}

// Latest returns the last update published for t
func (e *Engine) Latest(t ScoreType) (Update, bool) {
	return e.registry.Latest(t)
}

// IngestDailyMetrics stores a wearable sample, merged field by field over
// any earlier sample of the same day. Callers recompute with force to pick
// up the new data.
func (e *Engine) IngestDailyMetrics(ctx context.Context, s DailySample) (DailySample, error) {
	return e.wellness.Ingest(ctx, s)
}

// SetWellnessAuthorized records the wearable authorization state. The next
// Sleep and Recovery calculation after a revoke clears their scores.
func (e *Engine) SetWellnessAuthorized(ok bool) {
	e.wellness.SetAuthorized(ok)
}

// Sync pulls workouts from every authorized source and refreshes the stored
// training-load trend
func (e *Engine) Sync(ctx context.Context) (*SyncResult, error) {
	return e.sync.Sync(ctx)
}

// StravaAuthURL returns the Strava consent URL and the state to verify on
// the callback
func (e *Engine) StravaAuthURL() (url, state string, err error) {
	if e.stravaOAuth == nil {
		return "", "", ErrStravaDisabled
	}
	return auth.AuthCodeURL(e.stravaOAuth)
}

// ConnectStrava exchanges an authorization code and stores the tokens
func (e *Engine) ConnectStrava(ctx context.Context, code string) error {
	if e.stravaOAuth == nil {
		return ErrStravaDisabled
	}
	token, err := auth.Exchange(ctx, e.stravaOAuth, e.store, code)
	if err != nil {
		return err
	}
	e.log.Info("strava connected", zap.Int64("athlete_id", auth.ExtractAthleteID(token)))
	return nil
}

// DisconnectStrava removes the stored Strava tokens
func (e *Engine) DisconnectStrava(ctx context.Context) error {
	return auth.Disconnect(ctx, e.store)
}

// Close releases publishers, tracing and the store when the engine opened it
func (e *Engine) Close(ctx context.Context) error {
	var errs []error
	for _, c := range e.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if e.shutdownTracing != nil {
		if err := e.shutdownTracing(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutting down tracing: %w", err))
		}
	}
	if e.ownsStore && e.store != nil {
		if err := e.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing store: %w", err))
		}
	}
	_ = e.log.Sync()
	return errors.Join(errs...)
}
