package rebind

import (
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"brooklyn/pkg/memento"
)

// UnknownTypeError reports a stored memento whose implementation type is
// not registered.
type UnknownTypeError struct {
	Object memento.ObjectType
	ID     string
	Type   string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("rebind: %s %s has unknown type %q", e.Object, e.ID, e.Type)
}

// ExceptionHandler decides whether a problem met while rebinding aborts the
// operation. In strict mode every problem is returned
// to the caller; in lenient mode problems are recorded and the operation
// continues, and Err reports them all at the end.
//
// Integrity errors and write failures are never handled here: they always
// abort.
type ExceptionHandler struct {
	strict bool
	log    logrus.FieldLogger

	mu       sync.Mutex
	problems *multierror.Error
}

// NewExceptionHandler returns a handler. A nil logger discards output.
func NewExceptionHandler(strict bool, log logrus.FieldLogger) *ExceptionHandler {
	if log == nil {
		log = discardLogger()
	}
	return &ExceptionHandler{strict: strict, log: log}
}

// Strict reports the handler's mode.
func (h *ExceptionHandler) Strict() bool { return h.strict }

func (h *ExceptionHandler) handle(action string, err error) error {
	if h.strict {
		return err
	}
	h.mu.Lock()
	h.problems = multierror.Append(h.problems, err)
	h.mu.Unlock()
	h.log.WithError(err).WithField("action", action).Warn("continuing despite problem")
	return nil
}

// OnUnknownType handles a memento whose type cannot be instantiated.
func (h *ExceptionHandler) OnUnknownType(err *UnknownTypeError) error {
	return h.handle("rebind", err)
}

// OnDanglingReference handles a reference whose target is absent. In
// lenient mode the caller resolves the reference to nil.
func (h *ExceptionHandler) OnDanglingReference(err *memento.UnresolvedReferenceError) error {
	return h.handle("rebind", err)
}

// OnRebindFailed handles a failure to reconstruct one object.
func (h *ExceptionHandler) OnRebindFailed(t memento.ObjectType, id string, err error) error {
	return h.handle("rebind", fmt.Errorf("%s %s: %w", t, id, err))
}

// Err returns every recorded problem as a *multierror.Error, or nil.
func (h *ExceptionHandler) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.problems.ErrorOrNil()
}

// Problems returns the recorded problems.
func (h *ExceptionHandler) Problems() []error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.problems == nil {
		return nil
	}
	return append([]error(nil), h.problems.Errors...)
}

// Reset forgets recorded problems.
func (h *ExceptionHandler) Reset() {
	h.mu.Lock()
	h.problems = nil
	h.mu.Unlock()
}

// isIntegrity reports whether err carries a memento integrity error.
func isIntegrity(err error) bool {
	var ie *memento.IntegrityError
	return errors.As(err, &ie)
}
