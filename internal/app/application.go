package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"whiteboard/internal/activity"
	"whiteboard/internal/api"
	"whiteboard/internal/auth"
	"whiteboard/internal/config"
	"whiteboard/internal/database"
	"whiteboard/internal/lobby"
	"whiteboard/internal/token"
	"whiteboard/internal/websocket"
	pkgdatabase "whiteboard/pkg/database"
)

// Application coordinates all system components
// ARCHITECTURAL DISCOVERY: Initialization order is
// Journal → Recorder → Lobbies → Tokens → Socket registry → Handler → API → HTTP
type Application struct {
	config     *config.Config
	journal    *database.Manager
	recorder   *activity.Recorder
	lobbies    *lobby.Registry
	tokens     *token.Service
	registry   *websocket.Registry
	apiServer  *api.Server
	httpServer *http.Server
	listener   net.Listener
}

// NewApplication creates a new application instance with all components initialized
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	hasher, err := auth.NewBcryptHasher(cfg.Lobby.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize password hasher: %w", err)
	}

	// STEP 1: Optional activity journal
	var journal *database.Manager
	recorder := activity.NewRecorder(nil)
	if cfg.Journal.Enabled {
		journal, err = openJournal(cfg.Journal)
		if err != nil {
			return nil, err
		}
		recorder = activity.NewRecorder(journal)
		log.Printf("Activity journal enabled at %s", cfg.Journal.Path)
	}

	// STEP 2: Lobby state and join tokens
	lobbies := lobby.NewRegistry(hasher, lobby.Options{BroadcastUndo: cfg.Lobby.BroadcastUndo}, recorder)
	tokens := token.NewService(lobbies)

	// STEP 3: Socket side
	registry := websocket.NewRegistry()
	wsHandler := websocket.NewHandler(lobbies, tokens, registry, cfg.WebSocket)

	// STEP 4: HTTP surface with the socket endpoint mounted on the same router
	apiServer := api.NewServer(lobbies, tokens, registry, http.HandlerFunc(wsHandler.HandleWebSocket), cfg.HTTP.StaticDir)

	httpServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.HTTP.Host, fmt.Sprintf("%d", cfg.HTTP.Port)),
		Handler:      apiServer,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		journal:    journal,
		recorder:   recorder,
		lobbies:    lobbies,
		tokens:     tokens,
		registry:   registry,
		apiServer:  apiServer,
		httpServer: httpServer,
	}, nil
}

func openJournal(cfg *config.JournalConfig) (*database.Manager, error) {
	dbConfig := pkgdatabase.DefaultConfig()
	dbConfig.DatabasePath = cfg.Path
	dbConfig.WriteTimeout = cfg.Timeout

	journal, err := database.NewManager(dbConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize activity journal: %w", err)
	}

	if err := pkgdatabase.NewSchemaValidator(journal.GetDB()).Validate(); err != nil {
		_ = journal.Close()
		return nil, fmt.Errorf("activity journal schema invalid: %w", err)
	}
	return journal, nil
}

// Start binds the listener and serves in the background
func (app *Application) Start(ctx context.Context) error {
	log.Printf("Starting whiteboard server on %s", app.httpServer.Addr)

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", app.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}
	app.listener = ln

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		return err
	case <-time.After(100 * time.Millisecond):
		log.Printf("Whiteboard server started successfully")
		return nil
	case <-ctx.Done():
		_ = app.httpServer.Close()
		return ctx.Err()
	}
}

// Stop gracefully shuts down the application
// FUNCTIONAL DISCOVERY: http.Server.Shutdown does not touch hijacked
// connections, so live sockets are closed explicitly before the journal goes
func (app *Application) Stop(ctx context.Context) error {
	log.Printf("Shutting down whiteboard server")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	if n := app.registry.CloseAll(websocket.CloseGoingAway, "server shutting down"); n > 0 {
		log.Printf("Closed %d live connections", n)
	}

	// disconnect cleanup records "left" events asynchronously
	app.waitForDrain(ctx)
	app.recorder.Close()

	if app.journal != nil {
		if err := app.journal.Close(); err != nil {
			log.Printf("Journal shutdown error: %v", err)
		}
	}

	log.Printf("Whiteboard server shutdown complete")
	return nil
}

func (app *Application) waitForDrain(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for app.registry.GetStats()["total_connections"] > 0 {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Handler returns the root HTTP handler
func (app *Application) Handler() http.Handler {
	return app.apiServer
}

// GetAddr returns the bound address once started, otherwise the configured one
func (app *Application) GetAddr() string {
	if app.listener != nil {
		return app.listener.Addr().String()
	}
	return app.httpServer.Addr
}
