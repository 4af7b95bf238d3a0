package donorguard

import (
	"errors"
	"net/http"

	"github.com/MrEthical07/donorguard/abuse"
	"github.com/MrEthical07/donorguard/internal/captcha"
	"github.com/MrEthical07/donorguard/internal/otp"
	"github.com/MrEthical07/donorguard/internal/rate"
	"github.com/MrEthical07/donorguard/internal/replay"
	"github.com/MrEthical07/donorguard/store"
	"github.com/MrEthical07/donorguard/ticket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder assembles a Guard. A Builder is single use.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	store  store.Store
	log    *zap.Logger

	notifier  Notifier
	users     UserStore
	abuseSink abuse.Sink
	provider  CaptchaProvider
	codeGen   func() (string, error)

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis backs the Guard with a Redis store using Config.KeyPrefix.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithStore backs the Guard with any store implementation. It takes
// precedence over WithRedis.
func (b *Builder) WithStore(s store.Store) *Builder {
	b.store = s
	return b
}

func (b *Builder) WithLogger(log *zap.Logger) *Builder {
	b.log = log
	return b
}

func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

func (b *Builder) WithUserStore(u UserStore) *Builder {
	b.users = u
	return b
}

func (b *Builder) WithAbuseSink(s abuse.Sink) *Builder {
	b.abuseSink = s
	return b
}

// WithCaptchaProvider overrides the HTTP provider built from
// Config.Captcha.Endpoint.
func (b *Builder) WithCaptchaProvider(p CaptchaProvider) *Builder {
	b.provider = p
	return b
}

// WithOTPCodeGenerator replaces the random code source. Intended for tests.
func (b *Builder) WithOTPCodeGenerator(fn func() (string, error)) *Builder {
	b.codeGen = fn
	return b
}

func (b *Builder) Build() (*Guard, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	st := b.store
	if st == nil {
		if b.redis == nil {
			return nil, errors.New("store or redis client required")
		}
		st = store.NewRedisStore(b.redis, cfg.KeyPrefix)
	}

	log := b.log
	if log == nil {
		log = zap.NewNop()
	}

	g := &Guard{
		config:   cfg,
		log:      log,
		store:    st,
		notifier: b.notifier,
		users:    b.users,
		metrics:  NewMetrics(cfg.Metrics),
	}

	g.limiter = rate.New(st, rate.Config{
		FailOpen: cfg.RateLimit.FailurePolicy == FailOpen,
	}, log.Named("rate"))
	g.replay = replay.New(st, cfg.Replay.TTL, cfg.Replay.ClaimTTL)

	var otpOpts []otp.Option
	if b.codeGen != nil {
		otpOpts = append(otpOpts, otp.WithCodeGenerator(b.codeGen))
	}
	g.otp = otp.New(st, otp.Config{
		TTL:         cfg.OTP.TTL,
		Cooldown:    cfg.OTP.Cooldown,
		MaxAttempts: cfg.OTP.MaxAttempts,
	}, log.Named("otp"), otpOpts...)

	if cfg.Captcha.Enabled {
		provider := b.provider
		if provider == nil {
			if cfg.Captcha.Endpoint == "" {
				return nil, errors.New("Captcha.Endpoint or a captcha provider is required")
			}
			provider = captcha.NewHTTPProvider(cfg.Captcha.Endpoint, cfg.Captcha.Secret,
				&http.Client{Timeout: cfg.Captcha.Timeout})
		}

		// The per-IP CAPTCHA budget always fails closed: it guards the
		// identity path, not availability.
		captchaLimiter := rate.New(st, rate.Config{FailOpen: false}, log.Named("captcha_rate"))
		if !cfg.Captcha.PerIP.enabled() {
			captchaLimiter = nil
		}
		g.captcha = captcha.New(provider, captchaLimiter, g.replay, captcha.Config{
			MinTokenLength:   cfg.Captcha.MinTokenLength,
			MaxTokenLength:   cfg.Captcha.MaxTokenLength,
			RateLimit:        cfg.Captcha.PerIP.Limit,
			RateWindow:       cfg.Captcha.PerIP.Window,
			Timeout:          cfg.Captcha.Timeout,
			AtomicClaim:      cfg.Captcha.AtomicClaim,
			FailOpen:         cfg.Captcha.UpstreamPolicy == FailOpen,
			ExpectedHostname: cfg.Captcha.ExpectedHostname,
			ExpectedAction:   cfg.Captcha.ExpectedAction,
		}, log.Named("captcha"))
	}

	if cfg.Ticket.Enabled {
		tm, err := ticket.NewManager(ticket.Config{
			TTL:           cfg.Ticket.TTL,
			SigningMethod: ticket.SigningMethod(cfg.Ticket.SigningMethod),
			PrivateKey:    cloneBytes(cfg.Ticket.PrivateKey),
			PublicKey:     cloneBytes(cfg.Ticket.PublicKey),
			Issuer:        cfg.Ticket.Issuer,
			Audience:      cfg.Ticket.Audience,
		}, st)
		if err != nil {
			return nil, err
		}
		g.tickets = tm
	}

	sink := b.abuseSink
	if sink == nil {
		sink = abuse.NewZapSink(log)
	}
	var abuseOpts []abuse.Option
	if cfg.Abuse.Async {
		abuseOpts = append(abuseOpts, abuse.WithDispatcher(abuse.NewDispatcher(abuse.DispatcherConfig{
			Enabled:    true,
			BufferSize: cfg.Abuse.BufferSize,
			DropIfFull: cfg.Abuse.DropIfFull,
		}, sink, log.Named("abuse"))))
	}
	g.abuse = abuse.NewLog(sink, log.Named("abuse"), abuseOpts...)

	b.built = true
	return g, nil
}
