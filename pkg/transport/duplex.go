package transport

import (
	"errors"
	"sync"
)

var (
	// ErrClosed is returned when writing to a Duplex that has ended.
	ErrClosed = errors.New("duplex closed")
	// ErrSubstreamExists is returned when a Mux already has a substream with the requested name.
	ErrSubstreamExists = errors.New("substream already exists")
	// ErrInvalidSubstreamName is returned for an empty substream name.
	ErrInvalidSubstreamName = errors.New("invalid substream name")
	// ErrReadingMessage wraps failures of the underlying connection read.
	ErrReadingMessage = errors.New("error reading message")
	// ErrDialingWebsocket wraps websocket handshake failures.
	ErrDialingWebsocket = errors.New("error dialing websocket server")
)

// Duplex is an ordered, message-oriented, bidirectional channel.
type Duplex interface {
	// Inbound returns the channel of received messages. It is closed when the Duplex ends.
	Inbound() <-chan []byte
	// Write sends one message. It fails with ErrClosed after the Duplex ended.
	Write(msg []byte) error
	// Close ends the Duplex. A non-nil cause destroys it: queued inbound
	// messages are discarded and Err reports the cause.
	Close(cause error) error
	// Done is closed when the Duplex has ended.
	Done() <-chan struct{}
	// Err returns the cause of the end, or nil for a graceful close or a live Duplex.
	Err() error
}

// endpoint carries the lifecycle state shared by every Duplex implementation.
type endpoint struct {
	in   *inbox
	done chan struct{}
	once sync.Once

	mu  sync.Mutex
	err error
}

func newEndpoint() *endpoint {
	return &endpoint{
		in:   newInbox(),
		done: make(chan struct{}),
	}
}

func (e *endpoint) Inbound() <-chan []byte {
	return e.in.out
}

func (e *endpoint) Done() <-chan struct{} {
	return e.done
}

func (e *endpoint) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

func (e *endpoint) closed() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

// finish ends the endpoint exactly once and reports whether this call did it.
func (e *endpoint) finish(cause error) bool {
	finished := false
	e.once.Do(func() {
		e.mu.Lock()
		e.err = cause
		e.mu.Unlock()

		e.in.close(cause != nil)
		close(e.done)
		finished = true
	})
	return finished
}

// inbox is an unbounded FIFO feeding an unbuffered output channel, so that
// producers never block on slow consumers.
type inbox struct {
	mu     sync.Mutex
	queue  [][]byte
	closed bool

	wake chan struct{}
	quit chan struct{}
	out  chan []byte
}

func newInbox() *inbox {
	b := &inbox{
		wake: make(chan struct{}, 1),
		quit: make(chan struct{}),
		out:  make(chan []byte),
	}
	go b.pump()
	return b
}

func (b *inbox) push(msg []byte) bool {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return false
	}
	b.queue = append(b.queue, msg)
	b.mu.Unlock()

	b.notify()
	return true
}

// close stops accepting messages. Queued messages are still delivered unless discard is set.
func (b *inbox) close(discard bool) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	if discard {
		b.queue = nil
		close(b.quit)
	}
	b.mu.Unlock()

	b.notify()
}

func (b *inbox) notify() {
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

func (b *inbox) pump() {
	defer close(b.out)

	for {
		b.mu.Lock()
		if len(b.queue) > 0 {
			msg := b.queue[0]
			b.queue[0] = nil
			b.queue = b.queue[1:]
			b.mu.Unlock()

			select {
			case b.out <- msg:
			case <-b.quit:
				return
			}
			continue
		}
		closed := b.closed
		b.mu.Unlock()

		if closed {
			return
		}

		select {
		case <-b.wake:
		case <-b.quit:
			return
		}
	}
}
