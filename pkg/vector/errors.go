package vector

import "errors"

// ErrMissingOwner is returned when an operation is attempted without an
// owner id. This is a contract violation: it is surfaced immediately, never
// retried, and never triggers any fallback.
var ErrMissingOwner = errors.New("owner id is required")
