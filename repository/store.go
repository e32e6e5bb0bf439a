package repository

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"gorm.io/gorm"
)

// ErrStoreClosed is returned when an operation runs after Disconnect
var ErrStoreClosed = errors.New("store is disconnected")

// Opener creates a new pooled database handle
type Opener func() (*gorm.DB, error)

// Store owns the database pool shared by all repositories. Every repository operation
// goes through EnsureConnection, which probes the pool and reopens it when the probe fails.
type Store struct {
	mu           sync.Mutex
	open         Opener
	db           *gorm.DB
	closed       bool
	probeTimeout time.Duration
}

// NewStore creates a store that connects lazily through open
func NewStore(open Opener) *Store {
	return &Store{open: open, probeTimeout: 3 * time.Second}
}

// NewStoreFromDB wraps an already opened handle; reconnects reuse the same handle
func NewStoreFromDB(db *gorm.DB) *Store {
	return &Store{
		open:         func() (*gorm.DB, error) { return db, nil },
		db:           db,
		probeTimeout: 3 * time.Second,
	}
}

// Connect opens the pool and verifies it with a ping
func (s *Store) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = false
	return s.connectLocked(ctx)
}

func (s *Store) connectLocked(ctx context.Context) error {
	db, err := s.open()
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	if err := ping(ctx, db, s.probeTimeout); err != nil {
		if db != s.db {
			closeDB(db)
		}
		return fmt.Errorf("failed to ping database: %w", err)
	}
	s.db = db
	return nil
}

// EnsureConnection probes the pool and transparently reconnects when the probe fails.
// A caller whose context is already done gets its error back without probing.
// Safe for concurrent callers.
func (s *Store) EnsureConnection(ctx context.Context) (*gorm.DB, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	if s.db == nil {
		if err := s.connectLocked(ctx); err != nil {
			return nil, err
		}
		return s.db, nil
	}
	if err := ping(ctx, s.db, s.probeTimeout); err != nil {
		log.Printf("store: liveness probe failed, reconnecting: %v", err)
		stale := s.db
		if err := s.connectLocked(ctx); err != nil {
			return nil, err
		}
		if stale != s.db {
			closeDB(stale)
		}
	}
	return s.db, nil
}

// Disconnect closes the pool; later operations fail with ErrStoreClosed until Connect is called
func (s *Store) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.db == nil {
		return nil
	}
	err := closeDB(s.db)
	s.db = nil
	return err
}

// DB returns the current handle without probing; nil before Connect
func (s *Store) DB() *gorm.DB {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db
}

func ping(ctx context.Context, db *gorm.DB, timeout time.Duration) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	// the probe outlives a caller deadline that expires mid-ping; only probeTimeout bounds it
	pingCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	return sqlDB.PingContext(pingCtx)
}

func closeDB(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
