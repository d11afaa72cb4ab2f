package auth

import (
	"context"
	"crypto"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	defaultRefreshInterval    = time.Hour
	defaultMinRefreshInterval = 30 * time.Second
	fetchTimeout              = 10 * time.Second
	lookupTimeout             = 5 * time.Second
)

type KeySetConfig struct {
	// URL of the JWKS document, e.g. https://tenant.auth0.com/.well-known/jwks.json.
	URL        string
	HTTPClient *http.Client
	// RefreshInterval is the period of the background refresh.
	RefreshInterval time.Duration
	// MinRefreshInterval throttles refreshes triggered by unknown key ids.
	MinRefreshInterval time.Duration
	Logger             *slog.Logger
}

// KeySet resolves token key ids against the identity provider's published
// signing keys. Every fetch writes into one shared storage: the background
// refresh, the rate-limited refresh on an unknown kid, and the unthrottled
// reload used while no key has ever been loaded.
type KeySet struct {
	cfg    KeySetConfig
	store  jwkset.Storage
	kf     keyfunc.Keyfunc
	group  singleflight.Group
	cancel context.CancelFunc
}

// NewKeySet performs the first fetch before returning. A failed first fetch
// is logged, not returned; lookups retry it until keys arrive.
func NewKeySet(ctx context.Context, cfg KeySetConfig) (*KeySet, error) {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: fetchTimeout}
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = defaultRefreshInterval
	}
	if cfg.MinRefreshInterval <= 0 {
		cfg.MinRefreshInterval = defaultMinRefreshInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.URL == "" {
		return nil, errors.New("jwks: url is required")
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &KeySet{cfg: cfg, store: jwkset.NewMemoryStorage(), cancel: cancel}

	remote, err := jwkset.NewStorageFromHTTP(cfg.URL, jwkset.HTTPClientStorageOptions{
		Client:                    cfg.HTTPClient,
		Ctx:                       ctx,
		HTTPTimeout:               fetchTimeout,
		NoErrorReturnFirstHTTPReq: true,
		RefreshErrorHandler: func(_ context.Context, err error) {
			cfg.Logger.Warn("jwks refresh failed", "url", cfg.URL, "error", err)
		},
		RefreshInterval: cfg.RefreshInterval,
		Storage:         s.store,
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("jwks: %w", err)
	}
	client, err := jwkset.NewHTTPClient(jwkset.HTTPClientOptions{
		HTTPURLs:          map[string]jwkset.Storage{cfg.URL: remote},
		RateLimitWaitMax:  lookupTimeout,
		RefreshUnknownKID: rate.NewLimiter(rate.Every(cfg.MinRefreshInterval), 1),
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("jwks: %w", err)
	}
	if s.kf, err = newKeyfunc(ctx, client); err != nil {
		cancel()
		return nil, err
	}
	return s, nil
}

// NewStaticKeySet serves a fixed set of keys and never fetches.
func NewStaticKeySet(ctx context.Context, keys map[string]crypto.PublicKey) (*KeySet, error) {
	store := jwkset.NewMemoryStorage()
	for kid, key := range keys {
		jwk, err := jwkset.NewJWKFromKey(key, jwkset.JWKOptions{
			Metadata: jwkset.JWKMetadataOptions{KID: kid, USE: jwkset.UseSig},
		})
		if err != nil {
			return nil, fmt.Errorf("jwks: key %q: %w", kid, err)
		}
		if err := store.KeyWrite(ctx, jwk); err != nil {
			return nil, fmt.Errorf("jwks: key %q: %w", kid, err)
		}
	}
	kf, err := newKeyfunc(ctx, store)
	if err != nil {
		return nil, err
	}
	return &KeySet{cfg: KeySetConfig{Logger: slog.Default()}, store: store, kf: kf, cancel: func() {}}, nil
}

func newKeyfunc(ctx context.Context, store jwkset.Storage) (keyfunc.Keyfunc, error) {
	kf, err := keyfunc.New(keyfunc.Options{
		Ctx:          ctx,
		Storage:      store,
		UseWhitelist: []jwkset.USE{jwkset.UseSig},
	})
	if err != nil {
		return nil, fmt.Errorf("jwks: keyfunc: %w", err)
	}
	return kf, nil
}

// Keyfunc returns a jwt.Keyfunc that classifies lookup failures: a kid that
// stays unknown while keys are cached is ErrKeyNotFound, and failing to load
// any key at all is ErrKeySetUnavailable.
func (s *KeySet) Keyfunc(ctx context.Context) jwt.Keyfunc {
	return func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token header has no kid")
		}
		if s.cfg.URL != "" && !s.loaded(ctx) {
			if err := s.reload(ctx); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrKeySetUnavailable, err)
			}
		}

		lookupCtx, cancel := context.WithTimeout(ctx, lookupTimeout)
		defer cancel()
		key, err := s.kf.KeyfuncCtx(lookupCtx)(t)
		if err != nil {
			s.cfg.Logger.Debug("jwks lookup failed", "kid", kid, "error", err)
			return nil, fmt.Errorf("%w: kid %q", ErrKeyNotFound, kid)
		}
		return key, nil
	}
}

// Len reports how many keys are currently cached.
func (s *KeySet) Len() int {
	keys, err := s.store.KeyReadAll(context.Background())
	if err != nil {
		return 0
	}
	return len(keys)
}

// Close stops the background refresh.
func (s *KeySet) Close() {
	s.cancel()
}

func (s *KeySet) loaded(ctx context.Context) bool {
	keys, err := s.store.KeyReadAll(ctx)
	return err == nil && len(keys) > 0
}

// reload fetches the document once into the shared storage. Concurrent
// callers share one fetch.
func (s *KeySet) reload(ctx context.Context) error {
	ch := s.group.DoChan("jwks", func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()
		_, err := jwkset.NewStorageFromHTTP(s.cfg.URL, jwkset.HTTPClientStorageOptions{
			Client:      s.cfg.HTTPClient,
			Ctx:         fetchCtx,
			HTTPTimeout: fetchTimeout,
			Storage:     s.store,
		})
		if err != nil {
			return nil, err
		}
		s.cfg.Logger.Debug("jwks reloaded", "url", s.cfg.URL)
		return nil, nil
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}
