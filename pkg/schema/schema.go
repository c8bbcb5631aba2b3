// Package schema holds the reflected relational model a Db serves: one
// Collection per table or view, Properties for columns, Indexes for keys,
// and synthesized Relationships between Collections. The model is built
// once at startup by the reflector and is read-only afterwards, so request
// handlers read it without locking.
package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/restq/restq/pkg/dialect"
)

// Db is the aggregate root owning the Collections reflected from one
// database, plus the dialect the SQL compiler targets.
type Db struct {
	name    string
	dialect *dialect.Dialect
	logger  *zap.Logger

	collections []*Collection

	includeTables map[string]bool
	excludeTables map[string]bool

	mu      sync.Mutex
	started bool
}

// NewDb constructs an empty Db for the given dialect. Startup populates it.
func NewDb(name string, d *dialect.Dialect, logger *zap.Logger) *Db {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Db{name: name, dialect: d, logger: logger}
}

func (db *Db) Name() string               { return db.name }
func (db *Db) Dialect() *dialect.Dialect  { return db.dialect }
func (db *Db) Collections() []*Collection { return db.collections }

// WithTableFilter restricts reflection to the include list (when non-empty)
// minus the exclude list. Table names are matched case-insensitively.
func (db *Db) WithTableFilter(include, exclude []string) *Db {
	if len(include) > 0 {
		db.includeTables = make(map[string]bool, len(include))
		for _, t := range include {
			db.includeTables[strings.ToLower(t)] = true
		}
	}
	if len(exclude) > 0 {
		db.excludeTables = make(map[string]bool, len(exclude))
		for _, t := range exclude {
			db.excludeTables[strings.ToLower(t)] = true
		}
	}
	return db
}

func (db *Db) tableIncluded(table string) bool {
	t := strings.ToLower(table)
	if db.excludeTables[t] {
		return false
	}
	if db.includeTables != nil {
		return db.includeTables[t]
	}
	return true
}

// Startup reflects the live schema, synthesizes relationships, and
// beautifies names. It is idempotent: concurrent and repeated calls after a
// successful run are no-ops. A reflection failure is fatal; no partial
// schema is served.
func (db *Db) Startup(ctx context.Context, conn *sql.DB) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.started {
		return nil
	}

	r := &reflector{db: db, conn: conn, logger: db.logger}
	if err := r.reflect(ctx); err != nil {
		db.collections = nil
		return &Error{Op: "reflect", Err: err}
	}
	if err := db.buildRelationships(); err != nil {
		db.collections = nil
		return &Error{Op: "relationships", Err: err}
	}
	db.beautify()

	db.started = true
	db.logger.Info("schema reflected",
		zap.String("db", db.name),
		zap.String("dialect", string(db.dialect.Name())),
		zap.Int("collections", len(db.collections)))
	return nil
}

// Build synthesizes relationships and beautifies names over collections
// added by hand, skipping reflection. It serves embedded setups and tests
// that assemble the model themselves.
func (db *Db) Build() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.started {
		return nil
	}
	if err := db.buildRelationships(); err != nil {
		db.collections = nil
		return &Error{Op: "relationships", Err: err}
	}
	db.beautify()
	db.started = true
	return nil
}

// Started reports whether Startup has completed.
func (db *Db) Started() bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.started
}

// Shutdown resets the model. Pool teardown belongs to the session layer.
func (db *Db) Shutdown() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.collections = nil
	db.started = false
}

// CollectionByName finds a collection by its REST-facing name,
// case-insensitively.
func (db *Db) CollectionByName(name string) *Collection {
	for _, c := range db.collections {
		if strings.EqualFold(c.name, name) {
			return c
		}
	}
	return nil
}

// CollectionByTable finds a collection by its backing table name.
func (db *Db) CollectionByTable(table string) *Collection {
	for _, c := range db.collections {
		if strings.EqualFold(c.tableName, table) {
			return c
		}
	}
	return nil
}

// AddCollection appends a collection; used by the reflector and by tests
// that assemble schemas by hand.
func (db *Db) AddCollection(c *Collection) *Collection {
	c.db = db
	db.collections = append(db.collections, c)
	return c
}

// Error is a schema-layer failure. Schema errors are fatal at startup.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("schema: %s: %v", e.Op, e.Err) }
func (e *Error) Unwrap() error { return e.Err }
