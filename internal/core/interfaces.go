package core

// Frame is a raw wire payload, already encoded.
type Frame []byte

// SignalConnection abstracts one client's messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	// TrySend enqueues a frame without blocking. It fails on backpressure
	// or when the connection is already closed; the relay treats either
	// as a dropped message.
	TrySend(Frame) error
	Close()
}
