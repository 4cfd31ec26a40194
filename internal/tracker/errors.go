package tracker

import (
    "errors"
    "fmt"
)

// Sentinel classes for remote tracker failures. Callers branch with
// errors.Is and render the short messages below, never raw API bodies.
var (
    ErrAuthInvalid     = errors.New("tracker: credentials rejected")
    ErrPermission      = errors.New("tracker: permission denied")
    ErrNotFound        = errors.New("tracker: not found")
    ErrEndpointRemoved = errors.New("tracker: endpoint removed")
    ErrTransient       = errors.New("tracker: transient failure")
    ErrNotConnected    = errors.New("tracker: not connected")
    ErrValidation      = errors.New("tracker: invalid request")
)

// ClassifyStatus wraps an HTTP status code into the error taxonomy.
// 2xx returns nil.
func ClassifyStatus(code int) error {
    switch {
    case code < 300:
        return nil
    case code == 400 || code == 422:
        return fmt.Errorf("%w (status=%d)", ErrValidation, code)
    case code == 401:
        return fmt.Errorf("%w (status=%d)", ErrAuthInvalid, code)
    case code == 403:
        return fmt.Errorf("%w (status=%d)", ErrPermission, code)
    case code == 404:
        return fmt.Errorf("%w (status=%d)", ErrNotFound, code)
    case code == 410:
        return fmt.Errorf("%w (status=%d)", ErrEndpointRemoved, code)
    default:
        return fmt.Errorf("%w (status=%d)", ErrTransient, code)
    }
}

// Retryable reports whether a status code is worth another attempt.
func Retryable(code int) bool { return code == 429 || code >= 500 }

// Message renders a short user-facing message for a classified error.
func Message(err error) string {
    switch {
    case err == nil:
        return ""
    case errors.Is(err, ErrNotConnected):
        return "tracker not connected"
    case errors.Is(err, ErrAuthInvalid):
        return "tracker authentication failed, please reconnect"
    case errors.Is(err, ErrPermission):
        return "tracker permission denied"
    case errors.Is(err, ErrNotFound):
        return "issue not found in tracker"
    case errors.Is(err, ErrEndpointRemoved):
        return "tracker API endpoint no longer available"
    case errors.Is(err, ErrValidation):
        return "tracker rejected the request"
    default:
        return "tracker temporarily unavailable"
    }
}
