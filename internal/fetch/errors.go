package fetch

import (
	"errors"
	"fmt"
)

// ErrPoolExhausted is returned when every currently good proxy has been
// tried once within a single logical fetch, or when the pool has no good
// proxies at all. Callers with a refill collaborator may recover from it;
// otherwise it ends the crawl with partial results.
var ErrPoolExhausted = errors.New("proxy pool exhausted")

// ProtocolError indicates the target API returned a response the client
// could not interpret: malformed JSON, a missing envelope, a truncated
// body. It is not a proxy fault, so the executor surfaces it to the caller
// without retrying or penalizing the proxy.
type ProtocolError struct {
	// Op names the operation that failed, e.g. "decode search page".
	Op string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// NewProtocolError wraps err as a ProtocolError for operation op.
func NewProtocolError(op string, err error) *ProtocolError {
	return &ProtocolError{Op: op, Err: err}
}
