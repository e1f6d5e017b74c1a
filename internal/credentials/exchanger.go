package credentials

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/giantswarm/mcp-toolrouter/internal/logging"
	"github.com/giantswarm/mcp-toolrouter/internal/observability"
)

const (
	grantTypeJWTBearer       = "urn:ietf:params:oauth:grant-type:jwt-bearer"
	requestedTokenUseOBO     = "on_behalf_of"
	noScopeSuffix            = "-"
	serviceIdentityKeyPrefix = "service|"
)

// Exchanger obtains downstream tokens, either on behalf of a caller (OBO) or
// for the server's own identity, and caches them until they expire.
type Exchanger struct {
	cfg        *Config
	httpClient *http.Client
	logger     *logging.Logger
	metrics    *observability.Metrics
	tracer     *observability.Tracer
	now        func() time.Time
	cache      tokenCache

	endpointMu sync.Mutex
	tokenURL   string
}

// Option configures an Exchanger.
type Option func(*Exchanger)

// WithHTTPClient sets the client used to reach the identity provider.
func WithHTTPClient(client *http.Client) Option {
	return func(e *Exchanger) { e.httpClient = client }
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(e *Exchanger) { e.logger = logger }
}

// WithMetrics records exchange outcomes.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Exchanger) { e.metrics = m }
}

// WithTracer wraps exchanges in spans.
func WithTracer(t *observability.Tracer) Option {
	return func(e *Exchanger) { e.tracer = t }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Exchanger) { e.now = now }
}

// New creates an Exchanger. The configuration is validated after defaults are
// applied.
func New(cfg *Config, opts ...Option) (*Exchanger, error) {
	if cfg == nil {
		return nil, fmt.Errorf("credentials config is required")
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid credentials config: %w", err)
	}

	e := &Exchanger{
		cfg:      cfg,
		now:      time.Now,
		tokenURL: cfg.TokenURL,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.httpClient == nil {
		e.httpClient = newHTTPClient(cfg, e.logger)
	}
	return e, nil
}

// Exchange returns a token for resource issued on behalf of the caller
// identified by callerToken. Repeated calls for the same token and resource
// are answered from the cache until the token is within the expiry skew.
func (e *Exchanger) Exchange(ctx context.Context, callerToken, resource string) (*DelegatedToken, error) {
	if resource == "" {
		return nil, fmt.Errorf("resource is required")
	}
	if callerToken == "" {
		e.metrics.TokenExchange(resource, observability.ExchangeError)
		return nil, &AuthExchangeError{Resource: resource, Code: "missing_token", Err: ErrNoCallerToken}
	}

	caller := inspectCallerToken(callerToken)
	if !caller.expiry.IsZero() && !e.now().Before(caller.expiry) {
		e.metrics.TokenExchange(resource, observability.ExchangeError)
		return nil, &AuthExchangeError{
			Resource:    resource,
			Code:        "invalid_grant",
			Description: "caller token has expired",
		}
	}

	key := caller.key + "|" + resource
	return e.cached(ctx, key, resource, caller.subject, func(ctx context.Context) (*oauth2.Token, error) {
		return e.fetch(ctx, resource, url.Values{
			"grant_type":          {grantTypeJWTBearer},
			"assertion":           {callerToken},
			"requested_token_use": {requestedTokenUseOBO},
		})
	})
}

// ServiceToken returns a client-credentials token for resource, issued to the
// server itself. It is used where no caller is involved.
func (e *Exchanger) ServiceToken(ctx context.Context, resource string) (*DelegatedToken, error) {
	if resource == "" {
		return nil, fmt.Errorf("resource is required")
	}
	return e.cached(ctx, serviceIdentityKeyPrefix+resource, resource, "service", func(ctx context.Context) (*oauth2.Token, error) {
		return e.fetch(ctx, resource, nil)
	})
}

func (e *Exchanger) cached(ctx context.Context, key, resource, subject string, fetch func(context.Context) (*oauth2.Token, error)) (*DelegatedToken, error) {
	if tok := e.cache.lookup(key, e.now(), e.cfg.ExpirySkew); tok != nil {
		e.metrics.TokenExchange(resource, observability.ExchangeHit)
		return tok, nil
	}

	s := e.cache.slot(key)
	if err := s.lock(ctx); err != nil {
		return nil, err
	}
	defer s.unlock()

	// Another caller may have filled the slot while we waited.
	if tok := s.token.Load(); tok.Valid(e.now(), e.cfg.ExpirySkew) {
		e.metrics.TokenExchange(resource, observability.ExchangeHit)
		return tok, nil
	}

	ctx, span := e.tracer.Start(ctx, "credentials.exchange", attribute.String("resource", resource))
	defer span.End()

	e.logger.InfoVerbose("Requesting token for %s (subject %s)", resource, subject)
	started := e.now()
	raw, err := fetch(ctx)
	if err != nil {
		observability.RecordError(span, err)
		e.metrics.TokenExchange(resource, observability.ExchangeError)
		return nil, e.classify(ctx, resource, err)
	}

	tok := &DelegatedToken{Resource: resource, Token: raw.AccessToken, Expiry: raw.Expiry}
	if tok.Expiry.IsZero() {
		e.logger.Warning("Token for %s has no expiry, it will not be cached", resource)
	} else {
		e.cache.store(s, tok, e.now())
	}

	e.metrics.TokenExchange(resource, observability.ExchangeMiss)
	e.logger.InfoVerbose("Obtained token for %s (subject %s, expires %s, took %s)",
		resource, subject, tok.Expiry.Format(time.RFC3339), e.now().Sub(started).Round(time.Millisecond))
	return tok, nil
}

// fetch runs a token request. extra nil means a plain client-credentials grant.
func (e *Exchanger) fetch(ctx context.Context, resource string, extra url.Values) (*oauth2.Token, error) {
	tokenURL, err := e.tokenEndpoint(ctx)
	if err != nil {
		return nil, err
	}

	conf := &clientcredentials.Config{
		ClientID:       e.cfg.ClientID,
		ClientSecret:   e.cfg.ClientSecret,
		TokenURL:       tokenURL,
		Scopes:         []string{e.scopeFor(resource)},
		EndpointParams: extra,
		AuthStyle:      oauth2.AuthStyleInParams,
	}
	return conf.Token(context.WithValue(ctx, oauth2.HTTPClient, e.httpClient))
}

func (e *Exchanger) classify(ctx context.Context, resource string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var rErr *oauth2.RetrieveError
	if errors.As(err, &rErr) {
		exErr := newRetrieveError(resource, rErr)
		e.logger.Warning("Identity provider rejected token request for %s: %s", resource, exErr.Code)
		return exErr
	}
	return fmt.Errorf("token request for %s: %w", resource, err)
}

func (e *Exchanger) scopeFor(resource string) string {
	if e.cfg.ScopeSuffix == noScopeSuffix {
		return resource
	}
	return strings.TrimSuffix(resource, "/") + e.cfg.ScopeSuffix
}

// tokenEndpoint returns the configured token URL or discovers it from the
// authority once. Failed discoveries are retried on the next call.
func (e *Exchanger) tokenEndpoint(ctx context.Context) (string, error) {
	e.endpointMu.Lock()
	defer e.endpointMu.Unlock()
	if e.tokenURL != "" {
		return e.tokenURL, nil
	}

	metadata, err := DiscoverAuthorizationServerMetadata(ctx, e.httpClient, e.cfg.Authority, e.logger)
	if err != nil {
		return "", fmt.Errorf("token endpoint discovery failed: %w", err)
	}
	e.tokenURL = metadata.TokenEndpoint
	return e.tokenURL, nil
}
