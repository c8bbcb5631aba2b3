// Package session owns connection lifecycle: named database/sql pools and
// the per-request Session that binds one connection and one transaction to
// one unit of work.
package session

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/restq/restq/pkg/dialect"
)

var (
	ErrPoolNotFound      = errors.New("session: connection pool not found")
	ErrPoolAlreadyExists = errors.New("session: connection pool already exists")
)

// PoolConfig describes one named connection pool.
type PoolConfig struct {
	Name     string // defaults to the config fingerprint
	Dialect  *dialect.Dialect
	URL      string
	MaxOpen  int // <= 0 means the database/sql default
	MaxIdle  int
	PingWait time.Duration // how long Add retries the initial ping
}

// Fingerprint is a stable identity for the configuration, independent of
// the config object: the same dialect and URL always key the same pool.
func (c PoolConfig) Fingerprint() string {
	sum := sha256.Sum256([]byte(string(c.Dialect.Name()) + "|" + c.URL))
	return hex.EncodeToString(sum[:8])
}

func (c PoolConfig) key() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Fingerprint()
}

// PoolManager manages one or more named *sql.DB pools. It is owned by the
// composition root and injected where needed; there is no global registry.
type PoolManager struct {
	mu     sync.RWMutex
	pools  map[string]*sql.DB
	active string
	logger *zap.Logger
}

// NewPoolManager returns an empty pool manager.
func NewPoolManager(logger *zap.Logger) *PoolManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PoolManager{pools: make(map[string]*sql.DB), logger: logger}
}

// Add opens and registers a new pool, verifying connectivity with a
// bounded exponential-backoff ping. With setActive, or when no active
// pool exists yet, the new pool becomes the default.
func (m *PoolManager) Add(ctx context.Context, cfg PoolConfig, setActive ...bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := cfg.key()
	if _, ok := m.pools[key]; ok {
		return ErrPoolAlreadyExists
	}

	db, err := m.open(ctx, cfg)
	if err != nil {
		return err
	}
	m.pools[key] = db

	if (len(setActive) > 0 && setActive[0]) || m.active == "" {
		m.active = key
	}
	m.logger.Info("connection pool ready",
		zap.String("pool", key),
		zap.String("dialect", string(cfg.Dialect.Name())))
	return nil
}

// Get returns a pool by name.
func (m *PoolManager) Get(name string) (*sql.DB, error) {
	m.mu.RLock()
	db, ok := m.pools[name]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrPoolNotFound
	}
	return db, nil
}

// Active returns the default pool.
func (m *PoolManager) Active() (*sql.DB, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.active == "" {
		return nil, fmt.Errorf("session: no active connection pool")
	}
	return m.pools[m.active], nil
}

// SetActive changes the default pool.
func (m *PoolManager) SetActive(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pools[name]; !ok {
		return ErrPoolNotFound
	}
	m.active = name
	return nil
}

// Remove closes and removes a pool; the default falls over to any
// remaining pool.
func (m *PoolManager) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	db, ok := m.pools[name]
	if !ok {
		return ErrPoolNotFound
	}
	db.Close()
	delete(m.pools, name)

	if m.active == name {
		m.active = ""
		for k := range m.pools {
			m.active = k
			break
		}
	}
	return nil
}

// Close closes every pool.
func (m *PoolManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, db := range m.pools {
		db.Close()
	}
	m.pools = make(map[string]*sql.DB)
	m.active = ""
}

// List returns the registered pool names.
func (m *PoolManager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.pools))
	for name := range m.pools {
		names = append(names, name)
	}
	return names
}

func (m *PoolManager) open(ctx context.Context, cfg PoolConfig) (*sql.DB, error) {
	if cfg.Dialect == nil || cfg.URL == "" {
		return nil, errors.New("session: dialect and URL are required")
	}
	db, err := sql.Open(cfg.Dialect.DriverName(), cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("session: open pool: %w", err)
	}
	if cfg.MaxOpen > 0 {
		db.SetMaxOpenConns(cfg.MaxOpen)
		idle := cfg.MaxIdle
		if idle <= 0 {
			idle = cfg.MaxOpen
		}
		db.SetMaxIdleConns(idle)
	}

	wait := cfg.PingWait
	if wait <= 0 {
		wait = 30 * time.Second
	}
	bo := backoff.WithContext(backoff.NewExponentialBackOff(
		backoff.WithMaxElapsedTime(wait)), ctx)
	if err := backoff.Retry(func() error { return db.PingContext(ctx) }, bo); err != nil {
		db.Close()
		return nil, fmt.Errorf("session: ping pool: %w", err)
	}
	return db, nil
}
