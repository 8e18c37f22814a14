// Package websocket carries session frames over a websocket connection.
package websocket

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-sonic/core/transport"
)

const (
	defaultConnectTimeout = 10 * time.Second
	closeWriteTimeout     = time.Second
	receiveBufferSize     = 64
)

type received struct {
	frame []byte
	err   error
}

type Transport struct {
	conn *websocket.Conn

	frames chan received
	done   chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool
}

// New wraps an established connection and starts reading from it.
func New(conn *websocket.Conn) *Transport {
	t := &Transport{
		conn:   conn,
		frames: make(chan received, receiveBufferSize),
		done:   make(chan struct{}),
	}
	go t.readLoop()
	return t
}

type options struct {
	header         http.Header
	connectTimeout time.Duration
	dialer         *websocket.Dialer
}

type Option func(*options)

// WithBearerToken authenticates the upgrade request.
func WithBearerToken(token string) Option {
	return func(o *options) {
		o.header.Set("Authorization", "Bearer "+token)
	}
}

func WithHeader(key, value string) Option {
	return func(o *options) {
		o.header.Set(key, value)
	}
}

func WithConnectTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.connectTimeout = timeout
	}
}

func WithDialer(dialer *websocket.Dialer) Option {
	return func(o *options) {
		o.dialer = dialer
	}
}

// Dial connects to url.
func Dial(ctx context.Context, url string, opts ...Option) (*Transport, error) {
	o := options{
		header:         http.Header{},
		connectTimeout: defaultConnectTimeout,
		dialer:         websocket.DefaultDialer,
	}
	for _, opt := range opts {
		opt(&o)
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline && o.connectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.connectTimeout)
		defer cancel()
	}

	conn, resp, err := o.dialer.DialContext(ctx, url, o.header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return New(conn), nil
}

// NewDialer returns a dialer that opens one connection to url per session.
func NewDialer(url string, opts ...Option) transport.Dialer {
	return func(ctx context.Context) (transport.Transport, error) {
		return Dial(ctx, url, opts...)
	}
}

func (t *Transport) Send(ctx context.Context, frame []byte) error {
	if t.closed.Load() {
		return transport.ErrClosed
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = t.conn.SetWriteDeadline(deadline)
		defer t.conn.SetWriteDeadline(time.Time{})
	}
	if err := t.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		if t.closed.Load() {
			return transport.ErrClosed
		}
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

func (t *Transport) Receive(ctx context.Context) ([]byte, error) {
	if t.closed.Load() {
		return nil, transport.ErrClosed
	}

	select {
	case r, ok := <-t.frames:
		if !ok {
			return nil, transport.ErrClosed
		}
		return r.frame, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *Transport) readLoop() {
	defer close(t.done)
	defer close(t.frames)

	for {
		messageType, data, err := t.conn.ReadMessage()
		if err != nil {
			if t.closed.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			t.frames <- received{err: fmt.Errorf("failed to read frame: %w", err)}
			return
		}

		switch messageType {
		case websocket.TextMessage, websocket.BinaryMessage:
			t.frames <- received{frame: data}
		}
	}
}

// Close sends a normal closure when no write is in progress, closes the
// connection and waits for the read loop to stop. Closing the connection also
// fails a Send that is stuck on a peer that stopped reading.
func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.closed.Store(true)
		if t.writeMu.TryLock() {
			_ = t.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(closeWriteTimeout))
			t.writeMu.Unlock()
		}
		err = t.conn.Close()

		// Unblock the read loop if nobody is receiving.
		go func() {
			for range t.frames {
			}
		}()
	})
	<-t.done
	return err
}
