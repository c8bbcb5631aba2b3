// Package rest is the HTTP face of the engine: one resource route per
// collection, with the query string interpreted as a filter expression.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/restq/restq/pkg/engine"
	"github.com/restq/restq/pkg/httputil"
	mw "github.com/restq/restq/pkg/httputil/middleware"
	"github.com/restq/restq/pkg/schema"
	"github.com/restq/restq/pkg/session"
)

type Server struct {
	engine  *engine.Engine
	router  *httputil.Router
	logger  *zap.Logger
	baseURL string
}

// NewServer wires the engine behind a router with request-id, logging and
// CORS middleware.
func NewServer(eng *engine.Engine, logger *zap.Logger, baseURL string) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		engine:  eng,
		router:  httputil.NewRouter(),
		logger:  logger,
		baseURL: baseURL,
	}
	s.router.Use(mw.RequestID)
	s.router.Use(mw.LoggerWithOptions(&mw.LoggerOptions{Logger: logger}))
	s.router.Use(mw.CORSWithOptions(nil))
	s.registerHandlers()
	return s
}

func (s *Server) registerHandlers() {
	api := s.router.Group(s.baseURL)
	api.Handle("GET /", http.HandlerFunc(s.handleIndex))
	api.Handle("GET /openapi.json", schema.NewOpenAPIGenerator(s.engine.Schema(), s.baseURL, schema.OpenAPIInfo{
		Title:   "restq API",
		Version: "1.0.0",
	}))
	api.Handle("GET /{collection}", s.collectionHandler(s.handleGet))
	api.Handle("POST /{collection}", s.collectionHandler(s.handlePost))
	api.Handle("PATCH /{collection}", s.collectionHandler(s.handlePatch))
	api.Handle("DELETE /{collection}", s.collectionHandler(s.handleDelete))
	api.Handle("GET /{collection}/{key}", s.collectionHandler(s.handleRecordGet))
	api.Handle("PATCH /{collection}/{key}", s.collectionHandler(s.handleRecordPatch))
	api.Handle("DELETE /{collection}/{key}", s.collectionHandler(s.handleRecordDelete))
}

// handleIndex lists the served collections.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	type collectionInfo struct {
		Name  string `json:"name"`
		Table string `json:"table"`
	}
	var out []collectionInfo
	for _, c := range s.engine.Schema().Collections() {
		if c.Excluded() {
			continue
		}
		out = append(out, collectionInfo{Name: c.Name(), Table: c.TableName()})
	}
	httputil.JSON(w, http.StatusOK, out)
}

// collectionHandler opens a session per request and settles its
// transaction after the handler runs: commit on success, rollback on any
// error. The connection is released on every path.
func (s *Server) collectionHandler(fn func(ctx context.Context, sess *session.Session, name string, r *http.Request) (any, int, error)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("collection")

		sess, err := s.engine.NewSession(r.Context())
		if err != nil {
			httputil.Error(w, http.StatusServiceUnavailable, "database unavailable")
			s.logger.Error("session open failed", zap.Error(err))
			return
		}

		body, status, err := fn(r.Context(), sess, name, r)
		if err = sess.End(err); err != nil {
			s.respondError(w, err)
			return
		}
		if res, ok := body.(*engine.Results); ok {
			s.respondResults(w, r, res)
			return
		}
		httputil.JSON(w, status, body)
	})
}

func (s *Server) handleGet(ctx context.Context, sess *session.Session, name string, r *http.Request) (any, int, error) {
	res, err := s.engine.Get(ctx, sess, name, r.URL.Query())
	if err != nil {
		return nil, 0, err
	}
	return res, http.StatusOK, nil
}

func (s *Server) handlePost(ctx context.Context, sess *session.Session, name string, r *http.Request) (any, int, error) {
	docs, err := decodeRecords(r)
	if err != nil {
		return nil, 0, err
	}
	keys, err := s.engine.Upsert(ctx, sess, name, docs)
	if err != nil {
		return nil, 0, err
	}
	return keys, http.StatusCreated, nil
}

func (s *Server) handlePatch(ctx context.Context, sess *session.Session, name string, r *http.Request) (any, int, error) {
	docs, err := decodeRecords(r)
	if err != nil {
		return nil, 0, err
	}
	keys, err := s.engine.Patch(ctx, sess, name, docs)
	if err != nil {
		return nil, 0, err
	}
	return keys, http.StatusOK, nil
}

func (s *Server) handleDelete(ctx context.Context, sess *session.Session, name string, r *http.Request) (any, int, error) {
	keyRows, err := decodeRecords(r)
	if err != nil {
		return nil, 0, err
	}
	if err := s.engine.Delete(ctx, sess, name, keyRows); err != nil {
		return nil, 0, err
	}
	return map[string]int{"deleted": len(keyRows)}, http.StatusOK, nil
}

var errNotFound = errors.New("record not found")

// recordKey resolves the path key of a record route against the
// collection's resource index. Record routes exist only for collections
// keyed by a single column; composite keys stay on the collection routes.
func (s *Server) recordKey(name string, r *http.Request) (string, string, error) {
	c := s.engine.Schema().CollectionByName(name)
	if c == nil || c.Excluded() {
		return "", "", &engine.QueryError{Err: errors.New("unknown collection " + name)}
	}
	ri := c.ResourceIndex()
	if ri == nil || len(ri.Properties()) != 1 {
		return "", "", &engine.QueryError{Err: errors.New("collection " + name + " has no single-column resource key")}
	}
	return ri.Properties()[0].Name(), r.PathValue("key"), nil
}

// fetchRecord reads the one record named by the route, or errNotFound.
func (s *Server) fetchRecord(ctx context.Context, sess *session.Session, name, pk, key string) (any, error) {
	res, err := s.engine.Get(ctx, sess, name, url.Values{pk: {key}})
	if err != nil {
		return nil, err
	}
	if len(res.Rows) == 0 {
		return nil, errNotFound
	}
	return res.Rows[0], nil
}

func (s *Server) handleRecordGet(ctx context.Context, sess *session.Session, name string, r *http.Request) (any, int, error) {
	pk, key, err := s.recordKey(name, r)
	if err != nil {
		return nil, 0, err
	}
	row, err := s.fetchRecord(ctx, sess, name, pk, key)
	if err != nil {
		return nil, 0, err
	}
	return row, http.StatusOK, nil
}

func (s *Server) handleRecordPatch(ctx context.Context, sess *session.Session, name string, r *http.Request) (any, int, error) {
	pk, key, err := s.recordKey(name, r)
	if err != nil {
		return nil, 0, err
	}
	if _, err := s.fetchRecord(ctx, sess, name, pk, key); err != nil {
		return nil, 0, err
	}
	docs, err := decodeRecords(r)
	if err != nil {
		return nil, 0, err
	}
	if len(docs) != 1 {
		return nil, 0, &engine.QueryError{Err: errors.New("record update takes a single object")}
	}
	docs[0][pk] = key
	if _, err := s.engine.Patch(ctx, sess, name, docs); err != nil {
		return nil, 0, err
	}
	row, err := s.fetchRecord(ctx, sess, name, pk, key)
	if err != nil {
		return nil, 0, err
	}
	return row, http.StatusOK, nil
}

func (s *Server) handleRecordDelete(ctx context.Context, sess *session.Session, name string, r *http.Request) (any, int, error) {
	pk, key, err := s.recordKey(name, r)
	if err != nil {
		return nil, 0, err
	}
	if _, err := s.fetchRecord(ctx, sess, name, pk, key); err != nil {
		return nil, 0, err
	}
	if err := s.engine.Delete(ctx, sess, name, []map[string]any{{pk: key}}); err != nil {
		return nil, 0, err
	}
	return map[string]int{"deleted": 1}, http.StatusOK, nil
}

// decodeRecords accepts either a single JSON object or an array of them.
func decodeRecords(r *http.Request) ([]map[string]any, error) {
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return nil, &engine.QueryError{Err: err}
	}

	var docs []map[string]any
	if err := json.Unmarshal(raw, &docs); err == nil {
		return docs, nil
	}
	var one map[string]any
	if err := json.Unmarshal(raw, &one); err != nil {
		return nil, &engine.QueryError{Err: errors.New("body must be a JSON object or array of objects")}
	}
	return []map[string]any{one}, nil
}

func (s *Server) respondResults(w http.ResponseWriter, r *http.Request, res *engine.Results) {
	if res.Next != nil {
		next := *r.URL
		next.RawQuery = url.Values(res.Next).Encode()
		w.Header().Set("Link", "<"+next.String()+`>; rel="next"`)
	}
	httputil.JSON(w, http.StatusOK, map[string]any{
		"rows":  res.Rows,
		"total": res.Total,
	})
}

func (s *Server) respondError(w http.ResponseWriter, err error) {
	if errors.Is(err, errNotFound) {
		httputil.Error(w, http.StatusNotFound, errNotFound.Error())
		return
	}
	var qe *engine.QueryError
	if errors.As(err, &qe) {
		httputil.Error(w, http.StatusBadRequest, qe.Err.Error())
		return
	}
	httputil.Error(w, http.StatusInternalServerError, "request failed")
}

// Handler exposes the routing handler for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router.Handler()
}

// Start serves until the listener fails.
func (s *Server) Start(addr string) error {
	s.logger.Info("rest server starting", zap.String("addr", addr))
	return s.router.ListenAndServe(addr)
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.router.Shutdown(shutdownCtx)
}
