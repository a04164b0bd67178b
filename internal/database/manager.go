package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	dbconfig "whiteboard/pkg/database"
	"whiteboard/pkg/interfaces"
	"whiteboard/pkg/types"
)

// Manager is the SQLite activity journal. It implements interfaces.Journal.
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
}

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager opens the journal database, applies pragmas and migrations,
// and starts the writer
func NewManager(config *dbconfig.Config) (*Manager, error) {
	if config == nil {
		config = dbconfig.DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database configuration: %w", err)
	}

	if dir := filepath.Dir(config.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := dbconfig.ApplySQLiteOptimizations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}

	if err := dbconfig.NewMigrationManager(db).ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}

	manager := &Manager{
		db:           db,
		config:       config,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
	}

	// ARCHITECTURAL DISCOVERY: SQLite allows one writer at a time, so every
	// insert goes through this goroutine while reads use the pool directly
	manager.wg.Add(1)
	go manager.writeLoop()

	return manager, nil
}

func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			err := op.operation(m.db)
			if err != nil && m.config.RetryDelay > 0 {
				// FUNCTIONAL DISCOVERY: One retry covers transient SQLITE_BUSY from external readers
				log.Printf("Journal write failed, retrying in %v: %v", m.config.RetryDelay, err)
				select {
				case <-time.After(m.config.RetryDelay):
					err = op.operation(m.db)
				case <-m.shutdown:
				}
				if err != nil {
					log.Printf("Journal write failed after retry: %v", err)
				}
			}
			op.result <- err

		case <-m.shutdown:
			return
		}
	}
}

func (m *Manager) executeWrite(ctx context.Context, operation func(*sql.DB) error) error {
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return interfaces.ErrJournalClosed
	}

	result := make(chan error, 1)
	timeout := time.NewTimer(m.config.WriteTimeout)
	defer timeout.Stop()

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
	case <-timeout.C:
		return fmt.Errorf("journal write timeout")
	case <-ctx.Done():
		return ctx.Err()
	case <-m.shutdown:
		return interfaces.ErrJournalClosed
	}

	select {
	case err := <-result:
		return err
	case <-m.shutdown:
		return interfaces.ErrJournalClosed
	}
}

// Record appends one lifecycle event
func (m *Manager) Record(ctx context.Context, event *types.LobbyEvent) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}
	if !types.IsValidEventKind(event.Kind) {
		return types.ErrInvalidEventKind
	}

	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO lobby_events (id, lobby, username, kind, created_at)
			VALUES (?, ?, ?, ?, ?)
		`,
			event.ID,
			event.Lobby,
			event.Username,
			event.Kind,
			event.CreatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert lobby event: %w", err)
		}
		return nil
	})
}

// LobbyActivity returns up to limit events for a lobby, newest first
func (m *Manager) LobbyActivity(ctx context.Context, lobby string, limit int) ([]*types.LobbyEvent, error) {
	if limit <= 0 {
		return []*types.LobbyEvent{}, nil
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT id, lobby, username, kind, created_at
		FROM lobby_events
		WHERE lobby = ?
		ORDER BY created_at DESC, seq DESC
		LIMIT ?
	`, lobby, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query lobby activity: %w", err)
	}
	defer func() { _ = rows.Close() }()

	events := make([]*types.LobbyEvent, 0, limit)
	for rows.Next() {
		var event types.LobbyEvent
		if err := rows.Scan(&event.ID, &event.Lobby, &event.Username, &event.Kind, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan lobby event: %w", err)
		}
		events = append(events, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating lobby events: %w", err)
	}

	return events, nil
}

// HealthCheck validates connectivity and that the journal table is readable
func (m *Manager) HealthCheck(ctx context.Context) error {
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return interfaces.ErrJournalClosed
	}

	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var count int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM lobby_events").Scan(&count); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	return nil
}

// GetDB returns the underlying connection pool
func (m *Manager) GetDB() *sql.DB {
	return m.db
}

// Close stops the writer and closes the database. Safe to call twice.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
