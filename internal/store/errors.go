package store

import "errors"

// ErrNotFoundOrAlreadyPaid is returned by Pay when no unpaid invoice matches
// the requested id. This is a user-facing condition, not a system fault.
var ErrNotFoundOrAlreadyPaid = errors.New("invoice not found or already paid")
