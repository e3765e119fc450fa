package transport

var _ Duplex = (*pipeEnd)(nil)

type pipeEnd struct {
	*endpoint
	peer *pipeEnd
}

// Pipe returns two connected in-memory Duplex ends. A message written to one
// end is received on the other. Closing either end ends both; the peer of a
// destroyed end observes a graceful close.
func Pipe() (Duplex, Duplex) {
	a := &pipeEnd{endpoint: newEndpoint()}
	b := &pipeEnd{endpoint: newEndpoint()}
	a.peer, b.peer = b, a
	return a, b
}

func (p *pipeEnd) Write(msg []byte) error {
	if p.closed() {
		return ErrClosed
	}

	buf := make([]byte, len(msg))
	copy(buf, msg)
	if !p.peer.in.push(buf) {
		return ErrClosed
	}
	return nil
}

func (p *pipeEnd) Close(cause error) error {
	if p.finish(cause) {
		p.peer.finish(nil)
	}
	return nil
}
