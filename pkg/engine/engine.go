// Package engine ties the pipeline together: parse the query string,
// compile it against the reflected schema, execute on the request session,
// and map rows back to JSON documents.
package engine

import (
	"context"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/restq/restq/pkg/mapper"
	"github.com/restq/restq/pkg/metrics"
	"github.com/restq/restq/pkg/rql"
	"github.com/restq/restq/pkg/schema"
	"github.com/restq/restq/pkg/session"
	"github.com/restq/restq/pkg/sqlgen"
	"github.com/restq/restq/pkg/writer"
)

// Engine serves reads and writes for one reflected database. It holds no
// per-request state; all request scope lives in the Session the caller
// passes in.
type Engine struct {
	db     *schema.Db
	pools  *session.PoolManager
	writer *writer.Writer
	logger *zap.Logger
}

// New builds an engine over a started schema. The column filter applies
// to the write path only.
func New(db *schema.Db, pools *session.PoolManager, filter *mapper.ColumnFilter, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		db:     db,
		pools:  pools,
		writer: writer.New(db.Dialect(), filter, logger),
		logger: logger,
	}
}

// Schema exposes the reflected model for introspection surfaces.
func (e *Engine) Schema() *schema.Db { return e.db }

// NewSession opens a request-scoped session on the active pool. The
// caller owns its lifecycle and must End or Rollback it.
func (e *Engine) NewSession(ctx context.Context) (*session.Session, error) {
	db, err := e.pools.Active()
	if err != nil {
		return nil, err
	}
	return session.New(db, e.logger), nil
}

func (e *Engine) collection(name string) (*schema.Collection, error) {
	c := e.db.CollectionByName(name)
	if c == nil || c.Excluded() {
		return nil, badRequest("unknown collection %q", name)
	}
	return c, nil
}

// Get compiles and runs a read against one collection and maps the result
// set to documents.
func (e *Engine) Get(ctx context.Context, sess *session.Session, name string, query url.Values) (*Results, error) {
	start := time.Now()
	res, err := e.get(ctx, sess, name, query)
	e.observe(name, "get", start, err)
	if err == nil {
		metrics.RowsReturned.WithLabelValues(name).Add(float64(len(res.Rows)))
	}
	return res, err
}

func (e *Engine) get(ctx context.Context, sess *session.Session, name string, query url.Values) (*Results, error) {
	c, err := e.collection(name)
	if err != nil {
		return nil, err
	}
	terms, err := rql.ParseQuery(query)
	if err != nil {
		return nil, &QueryError{Err: err}
	}
	cp, err := sqlgen.Compile(c, terms)
	if err != nil {
		return nil, classify(err, "", nil)
	}

	sess.Logger().Debug("executing query",
		zap.String("collection", name),
		zap.String("sql", cp.SQL),
		zap.Any("params", cp.Params))

	rows, err := sess.Query(ctx, cp.SQL, cp.Params...)
	if err != nil {
		return nil, e.execErr(sess, err, cp.SQL, cp.Params)
	}
	raw, err := scanRows(rows)
	rows.Close()
	if err != nil {
		return nil, e.execErr(sess, err, cp.SQL, cp.Params)
	}

	docs := make([]*mapper.Document, 0, len(raw))
	for _, row := range raw {
		doc, err := mapper.ToJSON(c, row)
		if err != nil {
			return nil, e.execErr(sess, err, cp.SQL, cp.Params)
		}
		docs = append(docs, doc)
	}

	total := int64(-1)
	if cp.CountSQL != "" {
		// First page that came back short already is the whole result.
		if cp.Offset == 0 && cp.Limit > 0 && len(raw) < cp.Limit {
			total = int64(len(raw))
		} else {
			total, err = e.count(ctx, sess, cp)
			if err != nil {
				return nil, err
			}
		}
	}

	res := &Results{Rows: docs, Total: total}
	if cp.Limit > 0 && len(docs) == cp.Limit &&
		(total < 0 || int64(cp.Offset+cp.Limit) < total) {
		res.Next = nextCursor(query, cp.Limit, cp.Offset, cp.Page)
	}
	return res, nil
}

func (e *Engine) count(ctx context.Context, sess *session.Session, cp *sqlgen.Compiled) (int64, error) {
	rows, err := sess.Query(ctx, cp.CountSQL, cp.CountParams...)
	if err != nil {
		return -1, e.execErr(sess, err, cp.CountSQL, cp.CountParams)
	}
	defer rows.Close()

	var total int64 = -1
	if rows.Next() {
		if err := rows.Scan(&total); err != nil {
			return -1, e.execErr(sess, err, cp.CountSQL, cp.CountParams)
		}
	}
	return total, rows.Err()
}

// Upsert writes documents into a collection and returns the resolved
// resource keys in input order.
func (e *Engine) Upsert(ctx context.Context, sess *session.Session, name string, docs []map[string]any) ([]writer.Key, error) {
	start := time.Now()
	keys, err := e.write(ctx, sess, name, docs, e.writer.Upsert)
	e.observe(name, "upsert", start, err)
	return keys, err
}

// Patch updates existing documents; every record must carry its full key.
func (e *Engine) Patch(ctx context.Context, sess *session.Session, name string, docs []map[string]any) ([]writer.Key, error) {
	start := time.Now()
	keys, err := e.write(ctx, sess, name, docs, e.writer.Patch)
	e.observe(name, "patch", start, err)
	return keys, err
}

type writeFunc func(context.Context, *session.Session, *schema.Collection, []map[string]any) ([]writer.Key, error)

func (e *Engine) write(ctx context.Context, sess *session.Session, name string, docs []map[string]any, fn writeFunc) ([]writer.Key, error) {
	c, err := e.collection(name)
	if err != nil {
		return nil, err
	}
	keys, err := fn(ctx, sess, c, docs)
	if err != nil {
		return nil, e.execErr(sess, err, "", nil)
	}
	return keys, nil
}

// Delete removes the records named by keyRows from a collection.
func (e *Engine) Delete(ctx context.Context, sess *session.Session, name string, keyRows []map[string]any) error {
	start := time.Now()
	err := e.delete(ctx, sess, name, keyRows)
	e.observe(name, "delete", start, err)
	return err
}

func (e *Engine) delete(ctx context.Context, sess *session.Session, name string, keyRows []map[string]any) error {
	c, err := e.collection(name)
	if err != nil {
		return err
	}
	if err := e.writer.Delete(ctx, sess, c, keyRows); err != nil {
		return e.execErr(sess, err, "", nil)
	}
	return nil
}

// execErr logs the failing statement with its parameters and wraps the
// error; the statement text stays out of the returned error.
func (e *Engine) execErr(sess *session.Session, err error, sqlText string, params []any) error {
	wrapped := classify(err, sqlText, params)
	if _, ok := wrapped.(*ExecError); ok {
		sess.Logger().Error("statement failed",
			zap.Error(err),
			zap.String("sql", sqlText),
			zap.Any("params", params))
	}
	return wrapped
}

func (e *Engine) observe(collection, op string, start time.Time, err error) {
	metrics.QueryDuration.WithLabelValues(collection, op).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.QueryErrors.WithLabelValues(collection, Kind(err)).Inc()
		return
	}
	metrics.Queries.WithLabelValues(collection, op).Inc()
}
