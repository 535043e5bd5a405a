package query

import (
	"context"
	"errors"
	"fmt"
)

var ErrQueryFailed = errors.New("query failed")

// BoundQuery pairs a statement template with its positional arguments.
// The template is never interpolated with argument values.
type BoundQuery struct {
	Statement string
	Args      []any
}

// Row maps column names to JSON-primitive values.
type Row map[string]any

type Executor interface {
	Execute(ctx context.Context, q BoundQuery) ([]Row, error)
	ExecuteAggregate(ctx context.Context, statement string) (Row, error)
}

// FailedError reports a connection or statement failure. It matches
// ErrQueryFailed with errors.Is regardless of the stage.
type FailedError struct {
	Stage string
	Err   error
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("query failed during %s: %v", e.Stage, e.Err)
}

func (e *FailedError) Unwrap() error {
	return e.Err
}

func (e *FailedError) Is(target error) bool {
	return target == ErrQueryFailed
}

func Failed(stage string, err error) error {
	return &FailedError{Stage: stage, Err: err}
}
