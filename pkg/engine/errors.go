package engine

import (
	"errors"
	"fmt"

	"github.com/restq/restq/pkg/mapper"
	"github.com/restq/restq/pkg/sqlgen"
	"github.com/restq/restq/pkg/writer"
)

// QueryError is a client-side fault: the request itself cannot be
// compiled or does not name a known collection.
type QueryError struct{ Err error }

func (e *QueryError) Error() string { return "bad request: " + e.Err.Error() }
func (e *QueryError) Unwrap() error { return e.Err }

// ExecError is a server-side fault from statement execution. The
// triggering SQL and parameters ride along for internal logging and are
// deliberately excluded from the error text.
type ExecError struct {
	Err    error
	SQL    string
	Params []any
}

func (e *ExecError) Error() string { return "execution failed: " + e.Err.Error() }
func (e *ExecError) Unwrap() error { return e.Err }

func badRequest(format string, args ...any) error {
	return &QueryError{Err: fmt.Errorf(format, args...)}
}

// classify wraps a pipeline error into the taxonomy. Compile errors,
// illegal casts and document validation failures are the caller's fault;
// everything else is an execution fault.
func classify(err error, sql string, params []any) error {
	var qe *QueryError
	if errors.As(err, &qe) {
		return err
	}
	var compileErr *sqlgen.CompileError
	var castErr *mapper.CastError
	var validationErr *writer.ValidationError
	if errors.As(err, &compileErr) || errors.As(err, &castErr) || errors.As(err, &validationErr) {
		return &QueryError{Err: err}
	}
	return &ExecError{Err: err, SQL: sql, Params: params}
}

// Kind labels an error for metrics.
func Kind(err error) string {
	var qe *QueryError
	if errors.As(err, &qe) {
		return "query"
	}
	var ee *ExecError
	if errors.As(err, &ee) {
		return "exec"
	}
	return "internal"
}
