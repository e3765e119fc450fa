package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"

	"github.com/erc7824/nitrolite/walletprovider/pkg/log"
)

// WebsocketConfig contains configuration options for a WebsocketDuplex.
type WebsocketConfig struct {
	// HandshakeTimeout bounds the opening handshake when dialing.
	HandshakeTimeout time.Duration `validate:"gt=0"`
	// PingInterval is how often a ping control frame is sent.
	PingInterval time.Duration `validate:"gt=0"`
	// PongWait is how long to wait for any frame before the peer is considered dead.
	PongWait time.Duration `validate:"gtfield=PingInterval"`
	// WriteTimeout bounds every single write.
	WriteTimeout time.Duration `validate:"gt=0"`
	// ReadLimit is the maximum inbound message size in bytes; zero disables the limit.
	ReadLimit int64 `validate:"gte=0"`
}

// DefaultWebsocketConfig provides defaults suited to a local wallet bridge.
var DefaultWebsocketConfig = WebsocketConfig{
	HandshakeTimeout: 5 * time.Second,
	PingInterval:     15 * time.Second,
	PongWait:         40 * time.Second,
	WriteTimeout:     5 * time.Second,
	ReadLimit:        4 << 20,
}

// maxCloseReasonLen keeps the close frame within the 125 byte control frame limit.
const maxCloseReasonLen = 123

var validate = validator.New()

// Validate reports configuration values that cannot work.
func (c WebsocketConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid websocket config: %w", err)
	}
	return nil
}

var _ Duplex = (*WebsocketDuplex)(nil)

// WebsocketDuplex adapts a gorilla websocket connection to the Duplex interface.
// Each text or binary frame is one message; outgoing messages are sent as text frames.
type WebsocketDuplex struct {
	*endpoint

	cfg     WebsocketConfig
	conn    *websocket.Conn
	lg      log.Logger
	writeMu sync.Mutex
}

// DialWebsocket opens a websocket connection to url and wraps it in a WebsocketDuplex.
// The duplex is closed when ctx is done.
func DialWebsocket(ctx context.Context, url string, cfg WebsocketConfig) (*WebsocketDuplex, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{
		HandshakeTimeout:  cfg.HandshakeTimeout,
		EnableCompression: true,
	}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDialingWebsocket, err)
	}

	return NewWebsocketDuplex(ctx, conn, cfg), nil
}

// NewWebsocketDuplex wraps an established connection, on either the dialing or
// the accepting side, and starts its read and ping loops.
func NewWebsocketDuplex(ctx context.Context, conn *websocket.Conn, cfg WebsocketConfig) *WebsocketDuplex {
	d := &WebsocketDuplex{
		endpoint: newEndpoint(),
		cfg:      cfg,
		conn:     conn,
		lg:       log.FromContext(ctx).WithName("ws-duplex"),
	}

	go d.closeOnContextDone(ctx)
	go d.readMessages()
	go d.pingPeriodically()

	return d
}

func (d *WebsocketDuplex) closeOnContextDone(ctx context.Context) {
	select {
	case <-ctx.Done():
		d.Close(nil)
	case <-d.done:
	}
}

func (d *WebsocketDuplex) readMessages() {
	if d.cfg.ReadLimit > 0 {
		d.conn.SetReadLimit(d.cfg.ReadLimit)
	}
	d.extendReadDeadline()
	d.conn.SetPongHandler(func(string) error {
		d.extendReadDeadline()
		return nil
	})

	for {
		_, msg, err := d.conn.ReadMessage()
		if d.closed() {
			return
		}
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				d.lg.Info("websocket closed by peer")
				d.shutdown(nil)
				return
			}
			d.lg.Error("websocket read error", "error", err)
			d.shutdown(fmt.Errorf("%w: %w", ErrReadingMessage, err))
			return
		}

		d.extendReadDeadline()
		if !d.in.push(msg) {
			return
		}
	}
}

func (d *WebsocketDuplex) extendReadDeadline() {
	if d.cfg.PongWait > 0 {
		_ = d.conn.SetReadDeadline(time.Now().Add(d.cfg.PongWait))
	}
}

func (d *WebsocketDuplex) pingPeriodically() {
	ticker := time.NewTicker(d.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.done:
			return
		case <-ticker.C:
			d.writeMu.Lock()
			err := d.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(d.cfg.WriteTimeout))
			d.writeMu.Unlock()
			if err != nil {
				d.lg.Error("error sending ping", "error", err)
				d.shutdown(fmt.Errorf("error sending ping: %w", err))
				return
			}
		}
	}
}

// Write sends msg as a single text frame.
func (d *WebsocketDuplex) Write(msg []byte) error {
	if d.closed() {
		return ErrClosed
	}

	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	if err := d.conn.SetWriteDeadline(time.Now().Add(d.cfg.WriteTimeout)); err != nil {
		return err
	}
	if err := d.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		go d.shutdown(fmt.Errorf("error writing message: %w", err))
		return err
	}
	return nil
}

// Close sends a close frame and tears the connection down.
func (d *WebsocketDuplex) Close(cause error) error {
	if !d.finish(cause) {
		return nil
	}

	code, text := websocket.CloseNormalClosure, ""
	if cause != nil {
		code, text = websocket.CloseInternalServerErr, cause.Error()
		if len(text) > maxCloseReasonLen {
			text = text[:maxCloseReasonLen]
		}
	}

	d.writeMu.Lock()
	_ = d.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(d.cfg.WriteTimeout))
	d.writeMu.Unlock()

	return d.conn.Close()
}

// shutdown ends the duplex after a connection failure without a close handshake.
func (d *WebsocketDuplex) shutdown(cause error) {
	if d.finish(cause) {
		if err := d.conn.Close(); err != nil {
			d.lg.Debug("error closing connection", "error", err)
		}
	}
}
