package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/erc7824/nitrolite/walletprovider/pkg/log"
)

// envelope is the wire form of a multiplexed message.
type envelope struct {
	Name string          `json:"name"`
	Data json.RawMessage `json:"data"`
}

// Mux splits a parent Duplex into independently addressable named substreams.
type Mux struct {
	parent Duplex
	lg     log.Logger

	mu      sync.Mutex
	streams map[string]*Substream
	serving bool
}

// NewMux creates a Mux over parent. Substreams should be created before Serve
// so that no early message is orphaned.
func NewMux(parent Duplex, lg log.Logger) *Mux {
	return &Mux{
		parent:  parent,
		lg:      log.OrNoop(lg).WithName("mux"),
		streams: make(map[string]*Substream),
	}
}

// CreateStream registers the substream called name.
func (m *Mux) CreateStream(name string) (*Substream, error) {
	if name == "" {
		return nil, ErrInvalidSubstreamName
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.streams[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrSubstreamExists, name)
	}
	s := &Substream{endpoint: newEndpoint(), name: name, mux: m}
	m.streams[name] = s
	return s, nil
}

// Serve pumps parent messages to their substreams until the parent ends or ctx
// is done. It returns immediately; handleClosure is called exactly once with
// the parent's end cause (nil on graceful end or cancellation). Every substream
// ends with the same cause.
func (m *Mux) Serve(ctx context.Context, handleClosure func(error)) {
	m.mu.Lock()
	if m.serving {
		m.mu.Unlock()
		handleClosure(nil)
		return
	}
	m.serving = true
	m.mu.Unlock()

	go func() {
		cause := m.pump(ctx)

		m.mu.Lock()
		streams := make([]*Substream, 0, len(m.streams))
		for _, s := range m.streams {
			streams = append(streams, s)
		}
		m.mu.Unlock()

		for _, s := range streams {
			s.finish(cause)
		}
		handleClosure(cause)
	}()
}

func (m *Mux) pump(ctx context.Context) error {
	in := m.parent.Inbound()
	for {
		select {
		case <-ctx.Done():
			return nil
		case raw, ok := <-in:
			if !ok {
				return m.parent.Err()
			}
			m.route(raw)
		}
	}
}

func (m *Mux) route(raw []byte) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		m.lg.Warn("malformed multiplexed message", "error", err)
		return
	}

	m.mu.Lock()
	s, ok := m.streams[env.Name]
	m.mu.Unlock()

	if !ok {
		m.lg.Warn("orphaned data for substream", "name", env.Name)
		return
	}
	s.in.push(env.Data)
}

// Destroy ends the parent duplex with cause, which ends every substream.
func (m *Mux) Destroy(cause error) error {
	return m.parent.Close(cause)
}

var _ Duplex = (*Substream)(nil)

// Substream is one named channel of a Mux. Messages must be valid JSON.
type Substream struct {
	*endpoint
	name string
	mux  *Mux
}

// Name returns the substream name.
func (s *Substream) Name() string {
	return s.name
}

// Write wraps msg in an envelope addressed to this substream's name.
func (s *Substream) Write(msg []byte) error {
	if s.closed() {
		return ErrClosed
	}
	if !json.Valid(msg) {
		return fmt.Errorf("substream %s: message is not valid JSON", s.name)
	}

	raw, err := json.Marshal(envelope{Name: s.name, Data: msg})
	if err != nil {
		return err
	}
	return s.mux.parent.Write(raw)
}

// Close ends only this substream; the parent and its siblings are unaffected.
func (s *Substream) Close(cause error) error {
	s.finish(cause)
	return nil
}
