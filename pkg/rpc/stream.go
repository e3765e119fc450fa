package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/erc7824/nitrolite/walletprovider/pkg/log"
	"github.com/erc7824/nitrolite/walletprovider/pkg/transport"
)

// StreamConnectionConfig contains configuration options for a StreamConnection.
type StreamConnectionConfig struct {
	// NotificationBufferSize is the number of notifications queued for the
	// notification callback before the read loop waits for it.
	NotificationBufferSize int
}

// DefaultStreamConnectionConfig provides defaults for a StreamConnection.
var DefaultStreamConnectionConfig = StreamConnectionConfig{
	NotificationBufferSize: 100,
}

// NotificationHandler receives unsolicited messages from the remote peer.
type NotificationHandler func(n Notification)

// StreamConnection forwards requests over a transport.Duplex and matches
// the responses coming back by request id. Messages without an id are
// delivered to the notification handler in arrival order on a dedicated
// goroutine, so the handler may itself issue requests.
type StreamConnection struct {
	cfg StreamConnectionConfig
	lg  log.Logger

	mu            sync.Mutex
	duplex        transport.Duplex
	done          chan struct{}
	responseSinks map[string]chan *Response
	onNotify      NotificationHandler
}

// NewStreamConnection creates a StreamConnection that is not yet serving.
func NewStreamConnection(cfg StreamConnectionConfig, lg log.Logger) *StreamConnection {
	if cfg.NotificationBufferSize <= 0 {
		cfg.NotificationBufferSize = DefaultStreamConnectionConfig.NotificationBufferSize
	}
	return &StreamConnection{
		cfg:           cfg,
		lg:            log.OrNoop(lg).WithName("rpc-stream"),
		done:          make(chan struct{}),
		responseSinks: make(map[string]chan *Response),
	}
}

// OnNotification registers the handler for unsolicited messages. It must be
// called before Serve; later registrations replace the previous handler.
func (s *StreamConnection) OnNotification(fn NotificationHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.onNotify = fn
}

// Middleware returns the terminal handler that sends each request over the
// stream and settles the response with the peer's answer.
func (s *StreamConnection) Middleware() Handler {
	return func(c *Context) {
		res, err := s.Call(c.Context, c.Request)
		if err != nil {
			c.Fail(err)
			return
		}
		if res.Error != nil {
			c.Fail(res.Error)
			return
		}
		c.SucceedRaw(res.Result)
	}
}

// Serve starts reading d. It returns immediately; handleClosure is called
// once when d ends or ctx is done, after every pending request has failed
// with ErrConnectionClosed.
func (s *StreamConnection) Serve(ctx context.Context, d transport.Duplex, handleClosure func(err error)) error {
	s.mu.Lock()
	if s.duplex != nil {
		s.mu.Unlock()
		return fmt.Errorf("stream connection is already serving")
	}
	s.duplex = d
	onNotify := s.onNotify
	s.mu.Unlock()

	notifications := make(chan Notification, s.cfg.NotificationBufferSize)
	notifierDone := make(chan struct{})
	go func() {
		defer close(notifierDone)
		for n := range notifications {
			if onNotify != nil {
				onNotify(n)
			}
		}
	}()

	go func() {
		err := s.readMessages(ctx, d, notifications)
		close(notifications)

		s.mu.Lock()
		close(s.done)
		pending := len(s.responseSinks)
		s.responseSinks = make(map[string]chan *Response)
		s.mu.Unlock()

		if pending > 0 {
			s.lg.Warn("stream ended with pending requests", "pending", pending)
		}

		<-notifierDone
		handleClosure(err)
	}()

	return nil
}

// incoming is the union of the response and notification shapes.
type incoming struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	Result json.RawMessage `json:"result"`
	Error  *Error          `json:"error"`
}

func (s *StreamConnection) readMessages(ctx context.Context, d transport.Duplex, notifications chan<- Notification) error {
	in := d.Inbound()
	for {
		var raw []byte
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-in:
			if !ok {
				return d.Err()
			}
			raw = msg
		}

		var msg incoming
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.lg.Warn("malformed message", "message", string(raw), "error", err)
			continue
		}

		if len(msg.ID) == 0 || string(msg.ID) == "null" {
			if msg.Method == "" {
				s.lg.Warn("message is neither a response nor a notification", "message", string(raw))
				continue
			}
			select {
			case notifications <- Notification{JSONRPC: Version, Method: msg.Method, Params: msg.Params}:
			case <-ctx.Done():
				return nil
			}
			continue
		}

		s.mu.Lock()
		sink, exists := s.responseSinks[string(msg.ID)]
		delete(s.responseSinks, string(msg.ID))
		s.mu.Unlock()

		if !exists {
			s.lg.Warn("response for unknown request", "id", string(msg.ID))
			continue
		}
		sink <- &Response{JSONRPC: Version, ID: msg.ID, Result: msg.Result, Error: msg.Error}
	}
}

// Call writes req to the stream and waits for the matching response, for
// ctx to be done, or for the stream to end. A response carrying an error
// object is returned without an error.
func (s *StreamConnection) Call(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, ErrNilRequest
	}
	if len(req.ID) == 0 {
		return nil, ErrMissingID
	}

	key := string(req.ID)
	s.mu.Lock()
	d := s.duplex
	if d == nil {
		s.mu.Unlock()
		return nil, ErrNotConnected
	}
	select {
	case <-s.done:
		s.mu.Unlock()
		return nil, ErrConnectionClosed
	default:
	}
	if _, exists := s.responseSinks[key]; exists {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDuplicateID, key)
	}
	sink := make(chan *Response, 1)
	s.responseSinks[key] = sink
	s.mu.Unlock()

	out := *req
	out.JSONRPC = Version
	raw, err := json.Marshal(&out)
	if err != nil {
		s.forget(key)
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	if err := d.Write(raw); err != nil {
		s.forget(key)
		if errors.Is(err, transport.ErrClosed) {
			return nil, fmt.Errorf("%w: %w", ErrConnectionClosed, err)
		}
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	select {
	case res := <-sink:
		return res, nil
	case <-s.done:
		select {
		case res := <-sink:
			return res, nil
		default:
			return nil, ErrConnectionClosed
		}
	case <-ctx.Done():
		s.forget(key)
		return nil, ctx.Err()
	}
}

func (s *StreamConnection) forget(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.responseSinks, key)
}

// Done is closed once the stream has ended.
func (s *StreamConnection) Done() <-chan struct{} {
	return s.done
}
