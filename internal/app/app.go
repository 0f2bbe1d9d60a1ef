package app

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/pixelgrid/chatcore/internal/config"
	"github.com/pixelgrid/chatcore/internal/core"
	"github.com/pixelgrid/chatcore/internal/feed/sim"
	"github.com/pixelgrid/chatcore/internal/identity"
	"github.com/pixelgrid/chatcore/internal/store/sqlite"
	transporthttp "github.com/pixelgrid/chatcore/internal/transport/http"
)

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	engine          *core.Engine
	catalog         core.Catalog
	feedEnabled     bool
	feedInterval    time.Duration
	feedRooms       []string
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg config.Config, logger *zerolog.Logger) (*App, error) {
	if cfg.IdentitySecret == "" {
		return nil, fmt.Errorf("identity_secret is required")
	}

	var catalog core.Catalog
	if cfg.DatabasePath != "" {
		st, err := sqlite.New(cfg.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("init catalog: %w", err)
		}
		catalog = st
		logger.Info().Str("db_path", cfg.DatabasePath).Msg("catalog initialized")
	}

	engine := core.NewEngine(core.EngineConfig{
		TypingTTL:   cfg.TypingTTL,
		PresenceTTL: cfg.PresenceTTL,
		AppendRate:  rate.Limit(cfg.AppendRatePerSecond),
		AppendBurst: cfg.AppendBurst,
		Announce:    cfg.Announce,
	}, catalog, logger)

	if err := engine.Restore(context.Background()); err != nil {
		return nil, fmt.Errorf("restore catalog: %w", err)
	}

	feedRooms, err := bootstrapRooms(engine, cfg.BootstrapRooms)
	if err != nil {
		return nil, fmt.Errorf("bootstrap rooms: %w", err)
	}

	codec := &identity.Codec{
		Secret: []byte(cfg.IdentitySecret),
		Issuer: cfg.IdentityIssuer,
	}

	server := transporthttp.NewServer(engine, codec, cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		engine:          engine,
		catalog:         catalog,
		feedEnabled:     cfg.FeedEnabled,
		feedInterval:    cfg.FeedInterval,
		feedRooms:       feedRooms,
		log:             logger,
	}, nil
}

// bootstrapRooms creates the configured global rooms when missing and
// returns their ids.
func bootstrapRooms(engine *core.Engine, names []string) ([]string, error) {
	existing := make(map[string]string)
	for _, view := range engine.ListRooms("", core.RoomFilter{}) {
		existing[strings.ToLower(view.Name)] = view.ID
	}

	ids := make([]string, 0, len(names))
	for _, name := range names {
		if id, ok := existing[strings.ToLower(name)]; ok {
			ids = append(ids, id)
			continue
		}
		room, err := engine.CreateRoom(context.Background(), core.RoomSpec{
			Name: name,
			Kind: core.RoomKindGlobal,
		})
		if err != nil {
			return nil, err
		}
		ids = append(ids, room.ID)
	}
	return ids, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go a.engine.Run(ctx)

	if a.feedEnabled && len(a.feedRooms) > 0 {
		src := sim.New(sim.Config{Rooms: a.feedRooms, Interval: a.feedInterval})
		go a.engine.RunFeed(ctx, src)
		a.log.Info().Int("rooms", len(a.feedRooms)).Msg("synthetic feed started")
	}

	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup closes the catalog and other resources.
func (a *App) cleanup() {
	if a.catalog != nil {
		if err := a.catalog.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close catalog")
		} else {
			a.log.Info().Msg("catalog closed")
		}
	}
}
