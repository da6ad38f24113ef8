package core

// Frame is a raw encoded wire message.
type Frame []byte

// SessionID identifies one physical transport session (the client-token
// cookie). A user keeps the same SessionID across reconnects of the same
// browser; a second tab gets a new one.
type SessionID string

// SignalConnection abstracts the system messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	// TrySend enqueues without blocking and fails on backpressure.
	TrySend(Frame) error
	// Send retries once after a short delay on backpressure. Used for
	// critical signaling traffic that must not be silently shed.
	Send(Frame) error
	Close()
	// Ping emits a transport-level heartbeat probe.
	Ping() error
}
