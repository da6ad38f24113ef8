package protocol

import "fmt"

// ProtocolError is a malformed or incomplete message. The sender gets an
// error event; no state is mutated.
type ProtocolError struct {
	Code   string
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol: %s: %s", e.Code, e.Reason)
}

// MissingField builds the canonical ProtocolError for an absent required
// field.
func MissingField(msgType, field string) *ProtocolError {
	return &ProtocolError{Code: "missing_field", Reason: fmt.Sprintf("%s requires %s", msgType, field)}
}

// AuthorizationError is a privileged action attempted by a non-privileged
// participant. The sender gets an error event; the action is ignored.
type AuthorizationError struct {
	Action string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("not authorized for %s", e.Action)
}
