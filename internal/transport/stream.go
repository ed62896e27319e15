// Package transport abstracts the reliable, ordered, byte-stream
// transport the server speaks to clients over: half-close
// (finish_write), abrupt reset, and a stable peer address. The core
// packages (codec, session, listener) depend only on this interface;
// see webtransport.go for the concrete binding this repository pins
// (github.com/quic-go/webtransport-go over QUIC/HTTP3).
package transport

import "io"

// Stream is one live connection's byte-stream handle.
type Stream interface {
	io.Reader
	io.Writer

	// PeerAddr is a stable string key identifying the remote peer;
	// it is used as the ClientRegistry key.
	PeerAddr() string

	// CloseWrite half-closes the write direction (finish_write):
	// the peer observes a clean end-of-stream after reading anything
	// already in flight. It is not an abrupt termination.
	CloseWrite() error

	// Reset abruptly terminates the stream in both directions,
	// distinct from CloseWrite: the peer observes a transport-level
	// reset, not an orderly close.
	Reset() error
}
