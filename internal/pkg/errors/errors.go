package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrConnectivity means no connection to the store could be opened.
	ErrConnectivity = errors.New("store unreachable")
	// ErrSchema means the progression table is missing or malformed and could not be created.
	ErrSchema = errors.New("store schema unavailable")
	// ErrStore means a single query failed.
	ErrStore = errors.New("store query failed")
	// ErrParse means a stored value could not be decoded.
	ErrParse = errors.New("stored value malformed")
	// ErrDegraded is reported by every persistence call while the manager runs without a store.
	ErrDegraded = errors.New("persistence degraded")
)

// OpError ties a failed store operation to the player key it touched.
type OpError struct {
	Op       string
	PlayerID string
	Kind     error
	Cause    error
}

func (e *OpError) Error() string {
	if e == nil {
		return "store operation failed"
	}
	kind := "error"
	if e.Kind != nil {
		kind = e.Kind.Error()
	}
	if e.PlayerID != "" {
		if e.Cause != nil {
			return fmt.Sprintf("%s (op=%s player=%s): %v", kind, e.Op, e.PlayerID, e.Cause)
		}
		return fmt.Sprintf("%s (op=%s player=%s)", kind, e.Op, e.PlayerID)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s (op=%s): %v", kind, e.Op, e.Cause)
	}
	return fmt.Sprintf("%s (op=%s)", kind, e.Op)
}

// Unwrap exposes both the kind sentinel and the underlying cause to errors.Is/As.
func (e *OpError) Unwrap() []error {
	if e == nil {
		return nil
	}
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Cause != nil {
		out = append(out, e.Cause)
	}
	return out
}

func Op(op, playerID string, kind, cause error) error {
	return &OpError{Op: op, PlayerID: playerID, Kind: kind, Cause: cause}
}
