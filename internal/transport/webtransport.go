package transport

import (
	"context"
	"crypto/tls"
	"net/http"

	"github.com/quic-go/quic-go/http3"
	"github.com/quic-go/webtransport-go"
)

// wtStream adapts a *webtransport.Stream, keyed by the remote address
// of the request that upgraded it, to the Stream interface. Close() on a webtransport.Stream finishes the
// write side (finish_write); CancelRead/CancelWrite realize an
// abrupt reset on each half independently, so Reset cancels both.
type wtStream struct {
	stream *webtransport.Stream
	peer   string
}

func (s *wtStream) Read(p []byte) (int, error)  { return s.stream.Read(p) }
func (s *wtStream) Write(p []byte) (int, error) { return s.stream.Write(p) }
func (s *wtStream) PeerAddr() string            { return s.peer }
func (s *wtStream) CloseWrite() error           { return s.stream.Close() }

func (s *wtStream) Reset() error {
	s.stream.CancelRead(0)
	s.stream.CancelWrite(0)
	return nil
}

// acceptResult is handed from an HTTP handler goroutine (one per
// upgraded WebTransport session) to the blocking Listener.Accept
// caller.
type acceptResult struct {
	stream Stream
	err    error
}

// Listener upgrades incoming HTTP/3 requests on path to WebTransport
// sessions, accepts exactly one bidirectional stream per session (one
// chat connection per session), and hands each off through Accept.
type Listener struct {
	addr string
	path string
	wt   webtransport.Server

	accepted chan acceptResult
}

// NewListener constructs a Listener bound to addr, serving WebTransport
// upgrades at path, secured by tlsConfig (required: WebTransport runs
// over HTTP/3/QUIC).
func NewListener(addr, path string, tlsConfig *tls.Config) *Listener {
	l := &Listener{addr: addr, path: path, accepted: make(chan acceptResult)}
	mux := http.NewServeMux()
	mux.HandleFunc(path, l.handleUpgrade)
	l.wt = webtransport.Server{
		H3: http3.Server{
			Addr:      addr,
			TLSConfig: tlsConfig,
			Handler:   mux,
		},
	}
	return l
}

func (l *Listener) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	sess, err := l.wt.Upgrade(w, r)
	if err != nil {
		l.accepted <- acceptResult{err: err}
		return
	}
	stream, err := sess.AcceptStream(r.Context())
	if err != nil {
		sess.CloseWithError(0, "stream accept failed")
		l.accepted <- acceptResult{err: err}
		return
	}
	l.accepted <- acceptResult{stream: &wtStream{stream: stream, peer: r.RemoteAddr}}
}

// Serve runs the underlying HTTP/3 server; it blocks until the
// server fails or is closed.
func (l *Listener) Serve() error {
	return l.wt.ListenAndServe()
}

// Accept blocks for the next upgraded stream, or returns ctx.Err() if
// ctx is done first.
func (l *Listener) Accept(ctx context.Context) (Stream, error) {
	select {
	case res := <-l.accepted:
		return res.stream, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close shuts the underlying HTTP/3 server down.
func (l *Listener) Close() error {
	return l.wt.Close()
}
