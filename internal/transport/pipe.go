package transport

import "io"

// pipeStream is an in-memory Stream backed by io.Pipe, used by tests
// that need a Stream without a real WebTransport session.
type pipeStream struct {
	io.Reader
	io.Writer
	peer      string
	closeW    func() error
	resetFunc func() error
}

func (p *pipeStream) PeerAddr() string  { return p.peer }
func (p *pipeStream) CloseWrite() error { return p.closeW() }
func (p *pipeStream) Reset() error      { return p.resetFunc() }

// NewPipe returns a connected pair of in-memory Streams: writes to a
// are readable from b and vice versa. CloseWrite on either side
// closes that side's write pipe, which the peer observes as io.EOF.
// Reset closes both of the caller's own pipes.
func NewPipe(peerA, peerB string) (a, b Stream) {
	ar, aw := io.Pipe()
	br, bw := io.Pipe()

	sa := &pipeStream{Reader: br, Writer: aw, peer: peerA}
	sa.closeW = func() error { return aw.Close() }
	sa.resetFunc = func() error {
		aw.CloseWithError(io.ErrClosedPipe)
		br.CloseWithError(io.ErrClosedPipe)
		return nil
	}

	sb := &pipeStream{Reader: ar, Writer: bw, peer: peerB}
	sb.closeW = func() error { return bw.Close() }
	sb.resetFunc = func() error {
		bw.CloseWithError(io.ErrClosedPipe)
		ar.CloseWithError(io.ErrClosedPipe)
		return nil
	}

	return sa, sb
}
