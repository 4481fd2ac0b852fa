// Package feed is a Socket.IO client for the livestream event feed, speaking
// Engine.IO v4 over a websocket. It owns the connection lifecycle: connecting,
// answering heartbeats and reconnecting with backoff. Events are handed to a
// single handler goroutine in the order the feed sends them.
package feed

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var ErrClosed = errors.New("feed client closed")

type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Handler receives feed events one at a time.
type Handler interface {
	HandleEvent(ctx context.Context, ev Event)
}

type HandlerFunc func(ctx context.Context, ev Event)

func (f HandlerFunc) HandleEvent(ctx context.Context, ev Event) { f(ctx, ev) }

// Config configures the feed connection.
type Config struct {
	// URL of the Socket.IO server, http(s) or ws(s). A path selects the namespace.
	URL string
	// APIKey is sent as {"apiKey": ...} connect auth when set.
	APIKey string
	// ReconnectDelay is the first delay before reconnecting.
	ReconnectDelay time.Duration
	// MaxReconnectDelay caps the exponential reconnect delay.
	MaxReconnectDelay time.Duration
	HandshakeTimeout  time.Duration
	WriteTimeout      time.Duration
	// QueueSize buffers events between the reader and the handler.
	QueueSize int
	// OnStateChange is called on every connection state transition.
	OnStateChange func(State)
}

func DefaultConfig() Config {
	return Config{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 10 * time.Second,
		HandshakeTimeout:  10 * time.Second,
		WriteTimeout:      10 * time.Second,
		QueueSize:         1024,
	}
}

// defaultReadTimeout applies until the server announces its heartbeat.
const defaultReadTimeout = 60 * time.Second

type Client struct {
	config    Config
	endpoint  string
	namespace string
	handler   Handler

	state  atomic.Int32
	closed atomic.Bool
	done   chan struct{}

	connMu  sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex

	events chan Event
	wg     sync.WaitGroup
}

// NewClient validates the configuration. Nothing is dialled until Run.
func NewClient(config Config, handler Handler) (*Client, error) {
	defaults := DefaultConfig()
	if config.ReconnectDelay <= 0 {
		config.ReconnectDelay = defaults.ReconnectDelay
	}
	if config.MaxReconnectDelay < config.ReconnectDelay {
		config.MaxReconnectDelay = max(defaults.MaxReconnectDelay, config.ReconnectDelay)
	}
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = defaults.HandshakeTimeout
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}
	if config.QueueSize <= 0 {
		config.QueueSize = defaults.QueueSize
	}

	endpoint, namespace, err := endpointURL(config.URL)
	if err != nil {
		return nil, err
	}

	return &Client{
		config:    config,
		endpoint:  endpoint,
		namespace: namespace,
		handler:   handler,
		done:      make(chan struct{}),
		events:    make(chan Event, config.QueueSize),
	}, nil
}

func (c *Client) State() State {
	return State(c.state.Load())
}

func (c *Client) setState(s State) {
	if State(c.state.Swap(int32(s))) == s {
		return
	}
	log.Debugf("Feed connection %s", s)
	if c.config.OnStateChange != nil {
		c.config.OnStateChange(s)
	}
}

// Run keeps the feed connected until ctx is cancelled or Close is called,
// reconnecting with exponential backoff after every failure or disconnect.
func (c *Client) Run(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}

	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		c.wg.Wait()
	}()
	go func() {
		select {
		case <-c.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	c.wg.Add(1)
	go c.dispatchLoop(ctx)

	b := &backoff.Backoff{
		Min:    c.config.ReconnectDelay,
		Max:    c.config.MaxReconnectDelay,
		Factor: 2,
		Jitter: true,
	}

	for {
		connected, err := c.session(ctx)
		c.setState(StateDisconnected)

		if c.closed.Load() {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if connected {
			b.Reset()
		}
		delay := b.Duration()
		log.WithError(err).Debugf("Reconnecting to websocket in %s", delay)

		select {
		case <-ctx.Done():
			if c.closed.Load() {
				return nil
			}
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// Close disconnects from the namespace and stops Run.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()

	if conn != nil {
		if c.State() == StateConnected {
			_ = c.write(conn, encodeDisconnect(c.namespace))
		}
		c.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(c.config.WriteTimeout))
		c.writeMu.Unlock()
	}

	close(c.done)
	return nil
}

func (c *Client) dispatchLoop(ctx context.Context) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-c.events:
			c.handler.HandleEvent(ctx, ev)
		}
	}
}

func (c *Client) write(conn *websocket.Conn, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// session runs one connection until it fails. connected reports whether the
// namespace handshake completed, which resets the reconnect backoff.
func (c *Client) session(ctx context.Context) (connected bool, err error) {
	c.setState(StateConnecting)

	dialer := websocket.Dialer{HandshakeTimeout: c.config.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		log.WithError(err).Warn("Websocket connection failed")
		return false, errors.Wrap(err, "websocket dial")
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	stop := make(chan struct{})
	defer func() {
		close(stop)
		c.connMu.Lock()
		c.conn = nil
		c.connMu.Unlock()
		conn.Close()
	}()
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	readTimeout := defaultReadTimeout
	for {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if connected {
				log.WithError(err).Warn("Disconnected from websocket")
			} else if ctx.Err() == nil {
				log.WithError(err).Warn("Websocket connection failed")
			}
			return connected, errors.Wrap(err, "websocket read")
		}
		if len(msg) == 0 {
			continue
		}

		switch msg[0] {
		case eioOpen:
			open, err := c.handleOpen(conn, msg[1:])
			if err != nil {
				log.WithError(err).Warn("Websocket connection failed")
				return false, err
			}
			if heartbeat := time.Duration(open.PingInterval+open.PingTimeout) * time.Millisecond; heartbeat > 0 {
				readTimeout = heartbeat
			}

		case eioPing:
			if err := c.write(conn, []byte{eioPong}); err != nil {
				log.WithError(err).Warn("Disconnected from websocket")
				return connected, errors.Wrap(err, "write pong")
			}

		case eioClose:
			log.Warn("Disconnected from websocket: transport close")
			return connected, errors.New("transport closed by server")

		case eioMessage:
			pkt, err := decodeSocketPacket(msg[1:])
			if err != nil {
				log.WithError(err).Debug("Ignoring malformed socket.io packet")
				continue
			}
			if pkt.Namespace != c.namespace {
				continue
			}

			switch pkt.Type {
			case sioConnect:
				connected = true
				c.setState(StateConnected)
				log.WithField("namespace", c.namespace).Info("Connected to websocket")

			case sioConnectError:
				reason := connectErrorMessage(pkt.Data)
				log.WithField("reason", reason).Warn("Websocket connection failed")
				return connected, errors.Errorf("connect error: %s", reason)

			case sioDisconnect:
				log.Warn("Disconnected from websocket: io server disconnect")
				return connected, errors.New("disconnected by server")

			case sioEvent:
				if !connected {
					continue
				}
				ev, err := decodeEvent(pkt.Data)
				if err != nil {
					log.WithError(err).Debug("Ignoring malformed event")
					continue
				}
				select {
				case c.events <- ev:
				case <-ctx.Done():
					return connected, ctx.Err()
				}
			}
		}
	}
}

// handleOpen reads the Engine.IO handshake and joins the namespace.
func (c *Client) handleOpen(conn *websocket.Conn, payload []byte) (openPayload, error) {
	var open openPayload
	if err := json.Unmarshal(payload, &open); err != nil {
		return open, errors.Wrap(err, "decode engine.io open packet")
	}

	var auth map[string]string
	if c.config.APIKey != "" {
		auth = map[string]string{"apiKey": c.config.APIKey}
	}
	packet, err := encodeConnect(c.namespace, auth)
	if err != nil {
		return open, err
	}
	if err := c.write(conn, packet); err != nil {
		return open, errors.Wrap(err, "write connect packet")
	}
	return open, nil
}
