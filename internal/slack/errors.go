package slack

import "errors"

// ErrAPIFailure is returned when the platform's Web API reports a
// non-success status or an ok=false response body.
var ErrAPIFailure = errors.New("slack API call failed")
