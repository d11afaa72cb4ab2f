package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/abdelrahman543873/coffeshop/internal/server/auth"
	"github.com/abdelrahman543873/coffeshop/internal/server/config"
	"github.com/abdelrahman543873/coffeshop/internal/server/httpapi"
	"github.com/abdelrahman543873/coffeshop/internal/server/repository"
	"github.com/abdelrahman543873/coffeshop/internal/server/repository/postgres"
	"github.com/abdelrahman543873/coffeshop/internal/server/repository/sqlite"
	"github.com/abdelrahman543873/coffeshop/internal/server/service"
)

const shutdownTimeout = 10 * time.Second

var errNoKeySource = errors.New("app: DRINKS_AUTH_DOMAIN or DRINKS_JWKS_URL must be set")

// Store is a drinks repository the process owns.
type Store interface {
	service.Repository
	Reset(ctx context.Context, seed bool) error
	Close() error
}

// OpenStore picks the backend from the DSN scheme: postgres:// and
// postgresql:// go to PostgreSQL, anything else is a sqlite DSN.
func OpenStore(ctx context.Context, dsn string) (Store, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return postgres.New(ctx, dsn)
	}
	return sqlite.New(dsn)
}

// App holds everything the serve command needs and owns its lifetime.
type App struct {
	cfg       config.Config
	version   string
	buildDate string
	logger    *slog.Logger
	store     Store
	keys      *auth.KeySet
	server    *http.Server
}

func New(ctx context.Context, cfg config.Config, version, buildDate string, logger *slog.Logger) (*App, error) {
	if cfg.JWKSURL == "" {
		return nil, errNoKeySource
	}
	if logger == nil {
		logger = slog.Default()
	}
	store, err := OpenStore(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	keys, err := auth.NewKeySet(context.WithoutCancel(ctx), auth.KeySetConfig{
		URL:             cfg.JWKSURL,
		RefreshInterval: cfg.JWKSRefreshInterval,
		Logger:          logger,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("signing keys: %w", err)
	}
	verifier := auth.NewVerifier(keys, auth.VerifierConfig{
		Issuer:     cfg.TokenIssuer,
		Audience:   cfg.TokenAudience,
		Algorithms: cfg.TokenAlgorithms,
	})
	router := httpapi.NewRouter(service.NewServices(store), verifier, logger, httpapi.Options{
		MaxRequestBytes: cfg.MaxRequestBytes,
		CORSOrigins:     cfg.CORSOrigins,
	})
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return &App{
		cfg:       cfg,
		version:   version,
		buildDate: buildDate,
		logger:    logger,
		store:     store,
		keys:      keys,
		server:    server,
	}, nil
}

func (a *App) Handler() http.Handler { return a.server.Handler }

// Run serves until ctx is cancelled, then drains connections, stops the key
// refresh and closes the store.
func (a *App) Run(ctx context.Context) error {
	defer func() { _ = a.store.Close() }()
	defer a.keys.Close()

	ln, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.server.Addr, err)
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	a.logger.Info("drinks server listening",
		"version", a.version,
		"build_date", a.buildDate,
		"addr", ln.Addr().String(),
		"jwks_url", a.cfg.JWKSURL,
	)

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	a.logger.Info("drinks server shutting down")
	return a.server.Shutdown(shutdownCtx)
}

// Migrate brings the store's schema up to date. With reset the drinks table
// is emptied first; with seed the sample drink is added unless a drink with
// its title already exists.
func Migrate(ctx context.Context, dsn string, reset, seed bool, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	store, err := OpenStore(ctx, dsn)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = store.Close() }()

	if reset {
		if err := store.Reset(ctx, seed); err != nil {
			return fmt.Errorf("reset store: %w", err)
		}
		logger.Info("store reset", "seeded", seed)
		return nil
	}
	if seed {
		d, err := store.CreateDrink(ctx, repository.SeedDrink())
		switch {
		case errors.Is(err, repository.ErrConflict):
			logger.Info("seed drink already present")
		case err != nil:
			return fmt.Errorf("seed store: %w", err)
		default:
			logger.Info("seed drink added", "drink_id", d.ID)
		}
	}
	logger.Info("store schema up to date")
	return nil
}
