package naming

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/cadseer/naming/resolve"
	"github.com/cadseer/naming/store"
)

var (
	// ErrInvalidConfig indicates the configuration is invalid or incomplete.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrClosed indicates the service was used after Close.
	ErrClosed = errors.New("service closed")
)

// Error kinds categorize errors by their type.
const (
	// KindNotFound represents a missing project, reference or feature.
	KindNotFound = "not_found"

	// KindValidation represents invalid input such as a malformed name.
	KindValidation = "validation"

	// KindUnresolvable represents a reference that no longer names anything.
	KindUnresolvable = "unresolvable"

	// KindConfiguration represents configuration problems.
	KindConfiguration = "configuration"

	// KindStore represents failures of the persistence backend.
	KindStore = "store"

	KindInternal = "internal"
)

// Error wraps an underlying error with the operation that failed and the
// category of failure. It works with errors.Is and errors.As.
//
//	err := &Error{Op: "Service.Resolve", Kind: KindUnresolvable, Err: cause}
type Error struct {
	// Op is the operation that failed (e.g., "Service.SaveHistory").
	Op string

	// Kind categorizes the error (e.g., KindNotFound).
	Kind string

	Err error

	// Context carries identifiers and names useful when debugging.
	Context map[string]any
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("naming: %s: %s", e.Op, e.Kind)
	}
	if len(e.Context) > 0 {
		return fmt.Sprintf("naming: %s (%s): %v [context: %+v]", e.Op, e.Kind, e.Err, e.Context)
	}
	return fmt.Sprintf("naming: %s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by Kind, and by Op when the target sets one.
// Otherwise it defers to the wrapped error.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if t, ok := target.(*Error); ok && t.Kind != "" && e.Kind == t.Kind {
		if t.Op == "" || e.Op == t.Op {
			return true
		}
	}
	return errors.Is(e.Err, target)
}

// WithContext returns a copy of e with ctx merged into its context.
func (e *Error) WithContext(ctx map[string]any) *Error {
	out := *e
	out.Context = make(map[string]any, len(e.Context)+len(ctx))
	for k, v := range e.Context {
		out.Context[k] = v
	}
	for k, v := range ctx {
		out.Context[k] = v
	}
	return &out
}

// wrap classifies err for op. Nil stays nil.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	kind := KindInternal
	switch {
	case errors.Is(err, store.ErrNotFound):
		kind = KindNotFound
	case errors.Is(err, store.ErrInvalidName):
		kind = KindValidation
	case errors.Is(err, resolve.ErrUnresolvable):
		kind = KindUnresolvable
	case errors.Is(err, ErrInvalidConfig):
		kind = KindConfiguration
	}
	return &Error{Op: op, Kind: kind, Err: err}
}

// storeErr classifies a backend failure. Not-found and invalid names keep
// their own kind.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrInvalidName) {
		return wrap(op, err)
	}
	return &Error{Op: op, Kind: KindStore, Err: err}
}

// CloseWithLog closes c and logs a failure at warning level. It is meant
// for defer statements. A nil logger means slog.Default().
//
//	defer naming.CloseWithLog(st, logger, "history store")
func CloseWithLog(c io.Closer, logger *slog.Logger, name string) {
	if c == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := c.Close(); err != nil {
		logger.Warn("failed to close resource",
			"resource", name,
			"error", err)
	}
}
