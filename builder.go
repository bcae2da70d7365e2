package authsession

import (
	"context"
	"errors"
	"net/http"

	"github.com/MrEthical07/authsession/claims"
	"github.com/MrEthical07/authsession/identity"
	"github.com/MrEthical07/authsession/internal/audit"
	"github.com/MrEthical07/authsession/internal/flows"
	"github.com/MrEthical07/authsession/jwt"
	"github.com/MrEthical07/authsession/session"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
)

// IdentityProvider is the remote service that issues credentials.
// *identity.Client is the HTTP implementation.
type IdentityProvider interface {
	Login(ctx context.Context, username, password string) (*identity.Token, error)
	Signup(ctx context.Context, p identity.Profile) (*identity.SignupResult, error)
	Refresh(ctx context.Context, refreshToken string) (*identity.Token, error)
}

// Builder assembles an Engine.
//
// A Builder is single use: Build fails the second time.
type Builder struct {
	config Config

	redis      redis.UniversalClient
	persister  session.Persister
	httpClient *http.Client
	provider   IdentityProvider
	decoder    claims.DecodeFunc
	tracer     trace.TracerProvider

	logger    logrus.FieldLogger
	auditSink AuditSink

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis persists sessions in Redis under Config.Session.RedisPrefix.
// Ignored when WithPersister is also used.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithPersister persists sessions through p.
func (b *Builder) WithPersister(p session.Persister) *Builder {
	b.persister = p
	return b
}

// WithHTTPClient sets the client used to call the identity provider. Its
// Timeout is left as is.
func (b *Builder) WithHTTPClient(hc *http.Client) *Builder {
	b.httpClient = hc
	return b
}

// WithProvider replaces the HTTP identity client. Config.Provider is then
// only used for validation.
func (b *Builder) WithProvider(p IdentityProvider) *Builder {
	b.provider = p
	return b
}

// WithDecoder replaces the claims decoder. It takes precedence over
// Config.Verification.
func (b *Builder) WithDecoder(fn claims.DecodeFunc) *Builder {
	b.decoder = fn
	return b
}

func (b *Builder) WithTracerProvider(tp trace.TracerProvider) *Builder {
	b.tracer = tp
	return b
}

// WithLogger sets the logger. logrus.StandardLogger() is used by default.
func (b *Builder) WithLogger(l logrus.FieldLogger) *Builder {
	b.logger = l
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns the Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	// -------- IDENTITY PROVIDER --------
	provider := b.provider
	if provider == nil {
		hc := b.httpClient
		if hc == nil {
			hc = &http.Client{Timeout: cfg.Provider.Timeout}
		}
		client, err := identity.New(cfg.Provider.BaseURL,
			identity.WithHTTPClient(hc),
			identity.WithRateLimit(cfg.Provider.RateLimit, cfg.Provider.RateBurst),
			identity.WithTracerProvider(b.tracer),
			identity.WithUserAgent(cfg.Provider.UserAgent),
		)
		if err != nil {
			return nil, err
		}
		provider = client
	}

	// -------- CLAIMS DECODER --------
	decode := b.decoder
	if decode == nil {
		var err error
		decode, err = verificationDecoder(cfg.Verification)
		if err != nil {
			return nil, err
		}
	}

	// -------- PERSISTENCE --------
	persister := b.persister
	if persister == nil && b.redis != nil {
		persister = session.NewRedisPersister(b.redis, cfg.Session.RedisPrefix)
	}
	var subjects flows.SubjectIndex
	if idx, ok := persister.(flows.SubjectIndex); ok {
		subjects = idx
	}

	loginDeps := flows.LoginDeps{Provider: provider, Decode: decode}
	engine := &Engine{
		config:    cloneConfig(cfg),
		provider:  provider,
		persister: persister,
		subjects:  subjects,
		logger:    logger,
		deps: flows.Deps{
			Login: loginDeps,
			Signup: flows.SignupDeps{
				Provider:  provider,
				AutoLogin: cfg.Account.AutoLogin,
				Login:     loginDeps,
			},
			Refresh: flows.RefreshDeps{Provider: provider, Decode: decode},
		},
	}

	engine.decode = decode
	engine.metrics = NewMetrics(cfg.Metrics)
	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)
	engine.coordinator = newCoordinator(engine, engine.deps.Refresh, cfg.Refresh.Timeout)

	b.built = true

	return engine, nil
}

// verificationDecoder returns claims.Decode, or a verifying decoder when
// verification is enabled.
func verificationDecoder(cfg VerificationConfig) (claims.DecodeFunc, error) {
	if !cfg.Enabled {
		return claims.Decode, nil
	}

	jc := jwt.Config{
		SigningMethod: jwt.SigningMethod(cfg.SigningMethod),
		Issuer:        cfg.Issuer,
		Audience:      cfg.Audience,
		Leeway:        cfg.Leeway,
	}
	if jc.SigningMethod == jwt.MethodHS256 {
		jc.PrivateKey = []byte(cfg.Key)
	} else {
		jc.PublicKey = []byte(cfg.Key)
	}

	jm, err := jwt.NewManager(jc)
	if err != nil {
		return nil, err
	}
	return jm.Decoder(), nil
}
