// Package edgeapp is the composition root: it wires the token cache, feature
// store, upstream client, validator, refresher, metrics aggregator/sender,
// persistence adapter, and mode controller into one running instance, and
// owns the Start/Stop lifecycle and the periodic task scheduler.
package edgeapp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Unleash/unleash-edge/internal/featurestore"
	"github.com/Unleash/unleash-edge/internal/metrics"
	"github.com/Unleash/unleash-edge/internal/mode"
	"github.com/Unleash/unleash-edge/internal/persistence"
	"github.com/Unleash/unleash-edge/internal/refresher"
	"github.com/Unleash/unleash-edge/internal/token"
	"github.com/Unleash/unleash-edge/internal/tokencache"
	"github.com/Unleash/unleash-edge/internal/upstream"
	"github.com/Unleash/unleash-edge/internal/validator"
	"github.com/Unleash/unleash-edge/pkg/config"
	"github.com/Unleash/unleash-edge/pkg/logging"
	"github.com/Unleash/unleash-edge/pkg/version"
)

// App holds every wired subsystem for one running instance.
type App struct {
	Config *config.Config
	Logger *logging.Logger
	Mode   *mode.Controller

	Tokens   *tokencache.Cache
	Features *featurestore.Store
	Upstream *upstream.Client

	Validator     *validator.Validator
	Refresher     *refresher.Refresher
	Aggregator    *metrics.Aggregator
	MetricsSender *metrics.Sender
	Persistence   persistence.Adapter

	InstanceID string

	requiredEnvironments []string

	cron *cron.Cron

	snapshotMu       sync.Mutex
	lastSnapshotSave time.Time
}

// New builds every subsystem from cfg but does not start any background
// loop; call Start for that.
func New(cfg *config.Config) (*App, error) {
	logger := logging.New(cfg.AppName, cfg.Logging.Level, cfg.Logging.Format)

	modeState, err := mode.FromConfig(cfg.Mode)
	if err != nil {
		return nil, fmt.Errorf("edgeapp: %w", err)
	}
	modeController := mode.New(modeState)

	tokens := tokencache.New()

	app := &App{
		Config:     cfg,
		Logger:     logger,
		Mode:       modeController,
		Tokens:     tokens,
		InstanceID: logging.NewTraceID(),
	}
	app.Features = featurestore.New(app.onFeatureCommit)

	declared := append(append([]string{}, cfg.Auth.TrustedTokens...), cfg.Auth.StrictTokens...)
	for _, raw := range declared {
		app.requiredEnvironments = appendUnique(app.requiredEnvironments, token.Parse(raw).Environment)
	}

	if modeController.UsesPersistence() {
		adapter, err := buildPersistence(cfg.Persistence)
		if err != nil {
			return nil, fmt.Errorf("edgeapp: build persistence: %w", err)
		}
		app.Persistence = adapter
	}

	if modeController.ContactsUpstream() {
		client, err := upstream.NewClient(upstream.Config{
			BaseURL:        cfg.Upstream.URL,
			AuthHeaderName: cfg.Upstream.AuthHeaderName,
			RequestTimeout: cfg.Upstream.RequestTimeout,
			SocketTimeout:  cfg.Upstream.SocketTimeout,
			CustomHeaders:  cfg.Upstream.CustomHeaders,
			TLS: &upstream.TLSConfig{
				ClientCertFile:     cfg.TLS.ClientCertFile,
				ClientKeyFile:      cfg.TLS.ClientKeyFile,
				KeystoreFile:       cfg.TLS.KeystoreFile,
				KeystorePassphrase: cfg.TLS.KeystorePassphrase,
				TrustedRootFile:    cfg.TLS.TrustedRootFile,
				SkipVerify:         cfg.TLS.SkipVerify,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("edgeapp: build upstream client: %w", err)
		}
		app.Upstream = client

		validatorMode := validator.ModeEdgeDynamic
		if modeState == mode.EdgeStrict {
			validatorMode = validator.ModeEdgeStrict
		}
		app.Validator = validator.New(validator.Config{
			Cache:              tokens,
			Upstream:           client,
			Mode:               validatorMode,
			Logger:             logger,
			RevalidateInterval: cfg.Upstream.RevalidateInterval,
			InvalidTokenTTL:    cfg.Auth.InvalidTokenTTL,
			DeclaredTokens:     declared,
		})

		app.Refresher = refresher.New(tokens, app.Features, client, logger)
		if cfg.Upstream.Streaming {
			app.Refresher.EnableStreaming(client)
		}
	} else {
		for _, raw := range declared {
			tokens.Insert(token.Parse(raw).WithStatus(token.StatusTrusted))
		}
	}

	app.Aggregator = metrics.NewAggregator(cfg.Metrics.MaxBuckets, cfg.Metrics.MaxImpactLabelSets)
	if modeController.SendsMetrics() && app.Upstream != nil {
		app.MetricsSender = metrics.NewSender(app.Aggregator, tokens, app.Upstream, logger, cfg.Metrics.SenderConcurrency, app.InstanceID)
	}

	return app, nil
}

func appendUnique(list []string, v string) []string {
	if v == "" {
		return list
	}
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

func buildPersistence(cfg config.PersistenceConfig) (persistence.Adapter, error) {
	switch cfg.Backend {
	case "", "memory":
		return persistence.NewMemoryAdapter(), nil
	case "file":
		return persistence.NewFileAdapter(cfg.FilePath), nil
	case "redis":
		return persistence.NewRedisAdapter(cfg.RedisURL, cfg.RedisKey)
	case "postgres":
		return persistence.NewPostgresAdapter(cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown persistence backend %q", cfg.Backend)
	}
}

// Start restores any persisted snapshot or bootstrap file, then launches the
// periodic Refresher/Validator/Metrics Sender/persistence-save loops.
func (a *App) Start(ctx context.Context) error {
	if a.Config.BootstrapFile != "" {
		if err := a.loadBootstrapFile(); err != nil {
			return fmt.Errorf("edgeapp: load bootstrap file: %w", err)
		}
	}

	if a.Persistence != nil {
		if err := a.restoreSnapshot(ctx); err != nil {
			a.Logger.WithError(err).Warn("snapshot restore failed, starting empty")
		}
	}

	a.cron = cron.New()

	if a.Refresher != nil {
		interval := a.Config.Upstream.RefreshInterval
		if _, err := a.cron.AddFunc(everySpec(interval), func() { a.Refresher.Tick(context.Background()) }); err != nil {
			return fmt.Errorf("edgeapp: schedule refresher: %w", err)
		}
	}
	if a.Validator != nil {
		interval := a.Config.Upstream.RevalidateInterval
		if _, err := a.cron.AddFunc(everySpec(interval), func() { a.Validator.Tick(context.Background()) }); err != nil {
			return fmt.Errorf("edgeapp: schedule validator: %w", err)
		}
	}
	if a.MetricsSender != nil {
		interval := a.Config.Upstream.MetricsInterval
		if _, err := a.cron.AddFunc(everySpec(interval), func() { a.MetricsSender.Tick(context.Background()) }); err != nil {
			return fmt.Errorf("edgeapp: schedule metrics sender: %w", err)
		}
	}
	if a.Persistence != nil {
		interval := a.Config.Persistence.SaveThrottle
		if _, err := a.cron.AddFunc(everySpec(interval), func() { a.saveSnapshotNow(context.Background()) }); err != nil {
			return fmt.Errorf("edgeapp: schedule snapshot save: %w", err)
		}
	}

	a.cron.Start()
	return nil
}

func everySpec(d time.Duration) string {
	if d <= 0 {
		d = 15 * time.Second
	}
	return "@every " + d.String()
}

// Stop runs the graceful shutdown sequence: flush the metrics aggregator
// once, cancel periodic tasks, and release the persistence adapter's
// resources. Draining in-flight HTTP handlers is the caller's (cmd/edge's
// serve) responsibility, since only it owns the listener.
func (a *App) Stop(ctx context.Context) error {
	if a.MetricsSender != nil {
		a.MetricsSender.Tick(ctx)
	}

	if a.cron != nil {
		stopCtx := a.cron.Stop()
		select {
		case <-stopCtx.Done():
		case <-ctx.Done():
		}
	}

	if a.Refresher != nil {
		a.Refresher.Stop()
	}

	if a.Persistence != nil {
		a.saveSnapshotNow(ctx)
		if closer, ok := a.Persistence.(interface{ Close() error }); ok {
			return closer.Close()
		}
	}
	return nil
}

// Ready reports whether every environment required by a startup-declared
// token has received at least one applied commit (or snapshot restore). An
// instance with no declared tokens (pure Dynamic mode) has nothing required
// yet and is ready trivially; Offline is always ready once bootstrapped.
func (a *App) Ready() bool {
	if a.Mode.State() == mode.Offline {
		return true
	}
	if a.Refresher == nil {
		return true
	}
	for _, env := range a.requiredEnvironments {
		if !a.Refresher.Ready(env) {
			return false
		}
	}
	return true
}

// UserAgent is the User-Agent this instance presents on every upstream call.
func (a *App) UserAgent() string { return version.UserAgent() }

func (a *App) loadBootstrapFile() error {
	data, err := os.ReadFile(a.Config.BootstrapFile)
	if err != nil {
		return err
	}

	var byEnvironment map[string]featurestore.ClientFeatures
	if err := json.Unmarshal(data, &byEnvironment); err != nil {
		return fmt.Errorf("decode bootstrap file: %w", err)
	}

	for environment, features := range byEnvironment {
		if _, err := a.Features.Commit(environment, features, "bootstrap", 1); err != nil {
			a.Logger.WithError(err).Warn("bootstrap commit rejected")
			continue
		}
	}
	return nil
}

func (a *App) restoreSnapshot(ctx context.Context) error {
	snap, err := a.Persistence.Load(ctx)
	if err != nil {
		return err
	}
	if snap == nil {
		return nil
	}

	for _, rec := range snap.Tokens {
		a.Tokens.Insert(persistence.FromTokenRecord(rec))
	}
	for _, rec := range snap.Environments {
		if _, err := a.Features.Commit(rec.Environment, rec.Features, rec.ETag, rec.Revision); err != nil {
			continue
		}
	}
	return nil
}

// onFeatureCommit is the Feature Store's onCommit hook (see
// featurestore.New): it fires synchronously after every applied, non-no-op
// commit, from whichever path produced it — a refresher tick, the bootstrap
// file load, or a persistence snapshot restore. It drives the two concerns
// that used to require each call site to remember to do them by hand:
// readiness bookkeeping (an environment is ready the instant anything
// commits to it) and an eager, throttled persistence save, so a write is not
// left to wait out the rest of the periodic save-cron interval.
func (a *App) onFeatureCommit(environment string, _ featurestore.Snapshot) {
	if a.Refresher != nil {
		a.Refresher.MarkRestored(environment)
	}
	a.maybeSaveSnapshot()
}

// maybeSaveSnapshot saves a snapshot now if at least one save-throttle
// interval has passed since the last one, otherwise leaves it to the next
// scheduled cron tick. Swallows its own errors into a log line, matching
// the rest of this file's "background tasks never fail the caller" policy.
func (a *App) maybeSaveSnapshot() {
	if a.Persistence == nil {
		return
	}

	throttle := a.Config.Persistence.SaveThrottle
	if throttle <= 0 {
		throttle = 15 * time.Second
	}

	a.snapshotMu.Lock()
	due := time.Since(a.lastSnapshotSave) >= throttle
	if due {
		a.lastSnapshotSave = time.Now()
	}
	a.snapshotMu.Unlock()

	if !due {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a.saveSnapshot(ctx)
}

// saveSnapshotNow saves unconditionally and stamps the throttle clock, used
// by the periodic cron tick and by Stop's final flush — both already run on
// their own schedule, so neither needs maybeSaveSnapshot's throttling, but
// both should still reset it so a commit immediately afterward does not
// trigger a redundant back-to-back save.
func (a *App) saveSnapshotNow(ctx context.Context) {
	a.snapshotMu.Lock()
	a.lastSnapshotSave = time.Now()
	a.snapshotMu.Unlock()
	a.saveSnapshot(ctx)
}

func (a *App) saveSnapshot(ctx context.Context) {
	snap := &persistence.Snapshot{
		ManifestVersion: persistence.ManifestVersion,
		Timestamp:       snapshotTimestamp(),
	}
	for _, tok := range a.Tokens.All() {
		snap.Tokens = append(snap.Tokens, persistence.ToTokenRecord(tok))
	}
	for _, env := range a.Features.KnownEnvironments() {
		if s, ok := a.Features.Get(env); ok {
			snap.Environments = append(snap.Environments, persistence.EnvironmentRecord{
				Environment: env,
				Features:    s.Features,
				ETag:        s.ETag,
				Revision:    s.Revision,
			})
		}
	}

	if err := a.Persistence.Save(ctx, snap); err != nil {
		a.Logger.WithError(err).Warn("snapshot save failed")
	}
}

// snapshotTimestamp is a package-level seam that tests can override;
// production code calls time.Now().UTC().Format(time.RFC3339) indirectly
// through it.
var snapshotTimestamp = func() string {
	return time.Now().UTC().Format(time.RFC3339)
}
