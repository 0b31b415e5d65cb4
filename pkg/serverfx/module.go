package serverfx

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/joeydtaylor/steeze-vault/pkg/bundlefx"
	"github.com/joeydtaylor/steeze-vault/pkg/core"
	"github.com/joeydtaylor/steeze-vault/pkg/credential"
	"github.com/joeydtaylor/steeze-vault/pkg/manifest"
	"github.com/joeydtaylor/steeze-vault/pkg/middleware/logger"
	"github.com/joeydtaylor/steeze-vault/pkg/middleware/metrics"
	"github.com/joeydtaylor/steeze-vault/pkg/publisher"
	"github.com/joeydtaylor/steeze-vault/pkg/resource"
	"github.com/joeydtaylor/steeze-vault/pkg/scheduler"
	"github.com/joeydtaylor/steeze-vault/pkg/stream"
	"github.com/joeydtaylor/steeze-vault/pkg/transport/httpx"
	"github.com/joeydtaylor/steeze-vault/pkg/vault"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// startupTimeout bounds each network call made while building the graph
// (S3 reads, the first token exchange).
const startupTimeout = 30 * time.Second

// ---------- Options ----------

type Config struct {
	Service       string // for logs only
	ConfigEnv     string // env var naming the TOML config
	DefaultConfig string // used when ConfigEnv is unset
	TLSCertEnv    string // admin server TLS
	TLSKeyEnv     string
}

type Option func(*Config)

func WithService(s string) Option          { return func(c *Config) { c.Service = s } }
func WithConfigEnv(k string) Option        { return func(c *Config) { c.ConfigEnv = k } }
func WithDefaultConfig(path string) Option { return func(c *Config) { c.DefaultConfig = path } }
func WithTLSCertKeyEnv(cert, key string) Option {
	return func(c *Config) { c.TLSCertEnv, c.TLSKeyEnv = cert, key }
}

func defaultConfig() Config {
	return Config{
		Service:       "steeze-vault",
		ConfigEnv:     "STEEZE_VAULT_CONFIG",
		DefaultConfig: "config.toml",
		TLSCertEnv:    "SSL_SERVER_CERTIFICATE",
		TLSKeyEnv:     "SSL_SERVER_KEY",
	}
}

// Module returns the complete job graph. Any constructor error (bad config,
// unreachable identity provider) fails fx start.
func Module(opts ...Option) fx.Option {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return fx.Options(
		fx.Supply(cfg),
		fx.Provide(provideManifest),

		// Logging + metrics
		bundlefx.Module,

		// Pipeline
		fx.Provide(
			provideLoader,
			provideCredentialStore,
			provideGateway,
			providePublisher,
			provideSource,
			provideScheduler,
			provideRunner,
		),

		// Admin router
		fx.Provide(httpx.NewChi),
		fx.Provide(fx.Annotate(
			provideAdmin,
			fx.ParamTags(``, ``, `name:"metrics"`, ``),
			fx.ResultTags(`name:"admin"`),
		)),

		// Lifecycle
		fx.Invoke(registerHooks),
	)
}

// ---------- Providers ----------

func provideManifest(cfg Config) (*manifest.Config, error) {
	path := envOr(cfg.ConfigEnv, cfg.DefaultConfig)
	m, err := core.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func provideLoader(m *manifest.Config) (*resource.Loader, error) {
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()
	return resource.NewLoader(ctx, m.AWS)
}

func provideCredentialStore(m *manifest.Config, l *resource.Loader, zl *zap.Logger) (*credential.Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	raw, err := l.Load(ctx, m.Vault.Credentials)
	if err != nil {
		return nil, err
	}
	sa, err := credential.ParseServiceAccount(raw)
	if err != nil {
		return nil, err
	}
	p, err := credential.NewServiceAccountProvider(sa, &http.Client{Timeout: m.Vault.Timeout()})
	if err != nil {
		return nil, err
	}
	return credential.NewStore(p, m.Vault.TokenLeeway(), zl.With(zap.String("component", "credential"))), nil
}

func provideGateway(m *manifest.Config, s *credential.Store, zl *zap.Logger) (*vault.Gateway, error) {
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()
	return vault.NewGateway(ctx, m.Vault, s, &http.Client{}, zl)
}

func providePublisher(m *manifest.Config, zl *zap.Logger) (*publisher.Publisher, error) {
	w, err := publisher.NewKafkaWriter(m.Sink)
	if err != nil {
		return nil, err
	}
	return publisher.New(w, m.Pipeline.IdentifierField, zl), nil
}

func provideSource(m *manifest.Config, l *resource.Loader, zl *zap.Logger) (*stream.KafkaSource, error) {
	var schema *stream.Schema
	if m.Source.Format == manifest.FormatJSON {
		ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
		defer cancel()
		raw, err := l.Load(ctx, m.Source.SchemaURL)
		if err != nil {
			return nil, err
		}
		if schema, err = stream.ParseSchema(raw); err != nil {
			return nil, err
		}
	}
	decode, err := stream.NewDecoder(m.Source.Format, schema)
	if err != nil {
		return nil, err
	}
	r, err := stream.NewKafkaReader(m.Source)
	if err != nil {
		return nil, err
	}
	return stream.NewKafkaSource(r, decode, m.Pipeline, zl), nil
}

func provideScheduler(m *manifest.Config, gw *vault.Gateway, pub *publisher.Publisher, zl *zap.Logger) *scheduler.Scheduler {
	return scheduler.New(gw, pub, m.Pipeline.BatchSize, zl)
}

func provideRunner(m *manifest.Config, src *stream.KafkaSource, s *scheduler.Scheduler, zl *zap.Logger) *core.Runner {
	return core.NewRunner(src, s, m.Pipeline.AwaitTermination(), zl)
}

func provideAdmin(
	r httpx.Router,
	lm *logger.Middleware,
	/* name:"metrics" */ mh http.Handler,
	run *core.Runner,
) http.Handler {
	metrics.AddMetricsSkipPaths("/healthz", "/readyz")
	return httpx.AdminRoutes(r, mh, run.Ready, lm.Middleware, metrics.Collect)
}

// ---------- Lifecycle (runner + admin server) ----------

type hookDeps struct {
	fx.In
	Shutdowner fx.Shutdowner
	Manifest   *manifest.Config
	Logger     *zap.Logger
	Admin      http.Handler `name:"admin"`
	Runner     *core.Runner
	Scheduler  *scheduler.Scheduler
	Gateway    *vault.Gateway
	Publisher  *publisher.Publisher
	Source     *stream.KafkaSource
}

func registerHooks(lc fx.Lifecycle, cfg Config, d hookDeps) {
	addr := d.Manifest.Admin.Listen
	cert := os.Getenv(cfg.TLSCertEnv)
	key := os.Getenv(cfg.TLSKeyEnv)

	var srv *http.Server
	if addr != "" {
		srv = &http.Server{
			Addr:         addr,
			Handler:      d.Admin,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
			TLSConfig:    &tls.Config{MinVersion: tls.VersionTLS13, MaxVersion: tls.VersionTLS13},
		}
	}
	useTLS := fileExists(cert) && fileExists(key)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			d.Logger.Info("pipeline starting",
				zap.String("service", cfg.Service),
				zap.String("sourceTopic", d.Manifest.Source.Topic),
				zap.String("sinkTopic", d.Manifest.Sink.Topic),
				zap.String("vaultTable", d.Manifest.Vault.Table),
				zap.Int("batchSize", d.Manifest.Pipeline.BatchSize),
			)
			// A runner that ends on its own stops the process with exit code 1.
			d.Runner.OnExit(func(err error) {
				if serr := d.Shutdowner.Shutdown(fx.ExitCode(1)); serr != nil {
					d.Logger.Error("shutdown after runner exit", zap.Error(serr), zap.NamedError("cause", err))
				}
			})
			d.Runner.Start(context.Background())

			if srv == nil {
				return nil
			}
			if useTLS {
				d.Logger.Info("admin server starting (TLS)", zap.String("addr", addr), zap.String("cert", cert))
				go func() {
					if err := srv.ListenAndServeTLS(cert, key); err != nil && !errors.Is(err, http.ErrServerClosed) {
						d.Logger.Fatal("admin server failed", zap.Error(err))
					}
				}()
			} else {
				d.Logger.Info("admin server starting (PLAINTEXT)", zap.String("addr", addr))
				go func() {
					srv.TLSConfig = nil
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						d.Logger.Fatal("admin server failed", zap.Error(err))
					}
				}()
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			d.Logger.Info("pipeline stopping", zap.String("service", cfg.Service))
			errs := []error{d.Runner.Stop(ctx)}
			// Continuations still publish; the writer must outlive them.
			if err := d.Scheduler.Drain(ctx); err != nil {
				d.Logger.Warn("batches still publishing at shutdown", zap.Error(err))
			}
			if err := d.Gateway.Drain(ctx); err != nil {
				d.Logger.Warn("vault inserts still in flight at shutdown", zap.Error(err))
			}
			errs = append(errs, d.Publisher.Close(), d.Source.Close())
			if srv != nil {
				errs = append(errs, srv.Shutdown(ctx))
			}
			_ = d.Logger.Sync()
			return errors.Join(errs...)
		},
	})
}

// ---------- tiny helpers ----------

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
