// Package conn manages individual CQL native-protocol connections: frame
// transport, stream-id multiplexing, the handshake sequence, heartbeats,
// and authentication.
package conn

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/lirium-labs/cqldriver/internal/clog"
	"github.com/lirium-labs/cqldriver/internal/protocol"
)

// eventStream is the stream id the server uses for unsolicited EVENT
// pushes; it is never allocated to an outgoing request.
const eventStream int16 = -1

// Config bundles the per-connection options a Dial needs: negotiated
// protocol version, compression preference, credentials, and the knobs
// the spec names for the handshake and multiplexing limits.
type Config struct {
	TLS                   *tls.Config
	ConnectTimeout        time.Duration
	Authenticator         Authenticator
	Keyspace              string
	CompressionPreference string // "lz4", "snappy", or "" for auto
	MaxRequestsPerConn    int16  // bounds the stream-id allocator
	HeartbeatInterval     time.Duration
	HeartbeatTimeout      time.Duration
	MaxDefunctTimeouts    int // consecutive OperationTimedOut before defunct
	Events                []protocol.RegisterEventType
	OnEvent               func(*protocol.Event)
	OnDefunct             func(*Connection, error)
	Logger                *clog.Logger
}

func (c Config) withDefaults() Config {
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.MaxRequestsPerConn == 0 {
		c.MaxRequestsPerConn = 32768
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.HeartbeatTimeout == 0 {
		c.HeartbeatTimeout = 10 * time.Second
	}
	if c.MaxDefunctTimeouts == 0 {
		c.MaxDefunctTimeouts = 5
	}
	return c
}

// Connection is one multiplexed TCP session to a single host.
type Connection struct {
	Endpoint string
	// ID correlates this connection's log lines across reconnects, the
	// idiomatic replacement for the teacher's wall-clock-derived
	// correlation ids (fmt.Sprintf("%d", time.Now().UnixNano())) in
	// client/conn.go/client/heartbeat.go — stream ids already correlate
	// requests to responses, so this exists purely for log correlation.
	ID       string
	cfg      Config
	log      *clog.Logger

	netConn net.Conn
	Version protocol.Version
	reader  *protocol.Reader
	writer  *protocol.Writer

	streamIDs *streamIDAllocator

	mu       sync.Mutex
	pending  map[int16]chan response
	closed   bool
	closeErr error

	keyspaceMu sync.RWMutex
	keyspace   string

	defunctTimeouts int32 // atomic
	lastActivity    int64 // atomic, unix nanos

	heartbeat *heartbeatLoop

	compressionEnabled bool

	closeOnce sync.Once
	closeCh   chan struct{}
}

type response struct {
	frame *protocol.Frame
	err   error
}

// Dial opens a TCP session to endpoint and drives it through the full
// handshake: OPTIONS, STARTUP(+compression), authenticate, optional USE
// keyspace, REGISTER.
func Dial(ctx context.Context, endpoint string, cfg Config) (*Connection, error) {
	cfg = cfg.withDefaults()
	if cfg.Logger == nil {
		cfg.Logger = clog.New(false)
	}

	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}
	var nc net.Conn
	var err error
	if cfg.TLS != nil {
		nc, err = tls.DialWithDialer(dialer, "tcp", endpoint, cfg.TLS)
	} else {
		nc, err = dialer.DialContext(ctx, "tcp", endpoint)
	}
	if err != nil {
		return nil, fmt.Errorf("conn: dial %s: %w", endpoint, err)
	}

	c := &Connection{
		Endpoint:  endpoint,
		ID:        uuid.NewString(),
		cfg:       cfg,
		log:       cfg.Logger,
		netConn:   nc,
		Version:   protocol.SupportedVersions[0],
		streamIDs: newStreamIDAllocator(cfg.MaxRequestsPerConn),
		pending:   make(map[int16]chan response),
		keyspace:  cfg.Keyspace,
		closeCh:   make(chan struct{}),
	}
	c.reader = protocol.NewReader(nc, nil)
	c.writer = protocol.NewWriter(nc, nil)
	c.touch()

	go c.readLoop()

	if err := c.handshake(ctx); err != nil {
		c.defunct(err)
		return nil, err
	}

	c.heartbeat = newHeartbeatLoop(c, cfg.HeartbeatInterval, cfg.HeartbeatTimeout)
	c.heartbeat.start()

	return c, nil
}

func (c *Connection) touch() {
	atomic.StoreInt64(&c.lastActivity, time.Now().UnixNano())
}

func (c *Connection) idleFor() time.Duration {
	return time.Since(time.Unix(0, atomic.LoadInt64(&c.lastActivity)))
}

// handshake performs OPTIONS (to learn SUPPORTED compression algorithms),
// STARTUP with the negotiated CQL_VERSION and COMPRESSION options, the
// SASL authenticate loop if the server demands it, an optional USE
// keyspace, and REGISTER for the configured event types.
func (c *Connection) handshake(ctx context.Context) error {
	optionsResp, err := c.Send(ctx, protocol.OpOptions, protocol.EncodeOptions(), 0)
	if err != nil {
		return fmt.Errorf("conn: OPTIONS: %w", err)
	}
	supported, err := protocol.DecodeSupported(optionsResp.Body)
	if err != nil {
		return fmt.Errorf("conn: decode SUPPORTED: %w", err)
	}

	startupOptions := map[string]string{"CQL_VERSION": "3.0.0"}
	var codec interface {
		protocol.BodyCompressor
		protocol.BodyDecompressor
	}
	if algos, ok := supported["COMPRESSION"]; ok {
		if negotiated := protocol.NegotiateCompression(algos, c.cfg.CompressionPreference); negotiated != nil {
			codec = negotiated
			startupOptions["COMPRESSION"] = negotiated.Name()
		}
	}

	startupResp, err := c.Send(ctx, protocol.OpStartup, protocol.EncodeStartup(startupOptions), 0)
	if err != nil {
		return fmt.Errorf("conn: STARTUP: %w", err)
	}

	switch startupResp.Header.Opcode {
	case protocol.OpReady:
		// no auth required
	case protocol.OpAuthenticate:
		if err := c.authenticate(ctx, startupResp.Body); err != nil {
			return err
		}
	default:
		return &ProtocolError{Endpoint: c.Endpoint, Reason: fmt.Sprintf("unexpected response to STARTUP: %s", startupResp.Header.Opcode)}
	}

	// Compression applies to every frame after STARTUP completes; wire it
	// into the reader/writer only now so the STARTUP frame itself (which
	// negotiates the choice) is never itself compressed.
	if codec != nil {
		c.reader = protocol.NewReader(c.netConn, codec)
		c.writer = protocol.NewWriter(c.netConn, codec)
		c.compressionEnabled = true
	}

	if c.keyspace != "" {
		if _, err := c.Send(ctx, protocol.OpQuery, protocol.EncodeQuery(
			"USE "+quoteKeyspace(c.keyspace), protocol.QueryParameters{Consistency: protocol.ConsistencyOne},
		), 0); err != nil {
			return fmt.Errorf("conn: USE %s: %w", c.keyspace, err)
		}
	}

	if len(c.cfg.Events) > 0 {
		if _, err := c.Send(ctx, protocol.OpRegister, protocol.EncodeRegister(c.cfg.Events), 0); err != nil {
			return fmt.Errorf("conn: REGISTER: %w", err)
		}
	}

	return nil
}

func quoteKeyspace(ks string) string {
	return "\"" + ks + "\""
}

func (c *Connection) authenticate(ctx context.Context, authenticateBody []byte) error {
	if c.cfg.Authenticator == nil {
		return fmt.Errorf("conn: server requires authentication but no authenticator configured")
	}
	if _, err := protocol.DecodeAuthenticate(authenticateBody); err != nil {
		return fmt.Errorf("conn: decode AUTHENTICATE: %w", err)
	}

	token, err := c.cfg.Authenticator.InitialResponse()
	if err != nil {
		return fmt.Errorf("conn: auth initial response: %w", err)
	}

	for {
		resp, err := c.Send(ctx, protocol.OpAuthResponse, protocol.EncodeAuthResponse(token), 0)
		if err != nil {
			return fmt.Errorf("conn: AUTH_RESPONSE: %w", err)
		}
		switch resp.Header.Opcode {
		case protocol.OpAuthSuccess:
			return nil
		case protocol.OpAuthChallenge:
			challenge, err := protocol.DecodeAuthChallenge(resp.Body)
			if err != nil {
				return fmt.Errorf("conn: decode AUTH_CHALLENGE: %w", err)
			}
			next, done, err := c.cfg.Authenticator.EvaluateChallenge(challenge)
			if err != nil {
				return fmt.Errorf("conn: auth challenge: %w", err)
			}
			if done {
				return nil
			}
			token = next
		case protocol.OpError:
			se, err := protocol.DecodeServerError(resp.Body)
			if err != nil {
				return fmt.Errorf("conn: decode ERROR during auth: %w", err)
			}
			return se
		default:
			return &ProtocolError{Endpoint: c.Endpoint, Reason: fmt.Sprintf("unexpected response during auth: %s", resp.Header.Opcode)}
		}
	}
}

// Send writes one request frame and blocks until its response arrives,
// the context is cancelled, or the connection is closed/defuncted.
func (c *Connection) Send(ctx context.Context, opcode protocol.Opcode, body []byte, flags protocol.Flags) (*protocol.Frame, error) {
	c.mu.Lock()
	if c.closed {
		err := c.closeErr
		c.mu.Unlock()
		if err == nil {
			err = ErrConnectionClosed
		}
		return nil, err
	}
	id, ok := c.streamIDs.Acquire()
	if !ok {
		c.mu.Unlock()
		return nil, ErrConnectionBusy
	}
	ch := make(chan response, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	release := func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		c.streamIDs.Release(id)
	}

	if c.compressionEnabled {
		flags |= protocol.FlagCompression
	}
	if err := c.writer.WriteFrame(c.Version, flags, id, opcode, body); err != nil {
		release()
		return nil, fmt.Errorf("conn: write frame: %w", err)
	}
	c.touch()

	select {
	case r := <-ch:
		release()
		if r.err != nil {
			return nil, r.err
		}
		if r.frame.Header.Opcode == protocol.OpError {
			se, err := protocol.DecodeServerError(r.frame.Body)
			if err != nil {
				return nil, fmt.Errorf("conn: decode ERROR: %w", err)
			}
			return r.frame, se
		}
		return r.frame, nil
	case <-ctx.Done():
		atomic.AddInt32(&c.defunctTimeouts, 1)
		if int(atomic.LoadInt32(&c.defunctTimeouts)) >= c.cfg.MaxDefunctTimeouts {
			c.defunct(fmt.Errorf("conn: defunct read timeout threshold exceeded"))
		}
		go func() {
			select {
			case <-ch:
			case <-c.closeCh:
			}
			release()
		}()
		return nil, &OperationTimedOutError{Endpoint: c.Endpoint, Stream: id}
	case <-c.closeCh:
		release()
		return nil, ErrConnectionClosed
	}
}

// readLoop owns the socket's read side exclusively and dispatches frames
// by stream id to the waiter registered in Send, or to the configured
// OnEvent callback for unsolicited pushes on the event stream.
func (c *Connection) readLoop() {
	for {
		frame, err := c.reader.ReadFrame()
		if err != nil {
			c.defunct(err)
			return
		}
		c.touch()
		atomic.StoreInt32(&c.defunctTimeouts, 0)

		if frame.Header.Opcode == protocol.OpEvent {
			if c.cfg.OnEvent != nil {
				if ev, err := protocol.DecodeEvent(frame.Body); err == nil {
					c.cfg.OnEvent(ev)
				}
			}
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[frame.Header.Stream]
		c.mu.Unlock()
		if !ok {
			// No waiter is registered for this stream id; drop the frame.
			continue
		}
		ch <- response{frame: frame}
	}
}

// defunct marks the connection closed, drains every pending waiter with
// err, and invokes OnDefunct so the owning pool can start a reconnection
// schedule. Safe to call multiple times; only the first call matters.
func (c *Connection) defunct(err error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.closeErr = err
		pending := c.pending
		c.pending = nil
		c.mu.Unlock()

		close(c.closeCh)
		for _, ch := range pending {
			ch <- response{err: err}
		}
		c.netConn.Close()
		if c.heartbeat != nil {
			c.heartbeat.stop()
		}
		c.log.Warnf("conn", "connection %s to %s defunct: %v", c.ID, c.Endpoint, err)
		if c.cfg.OnDefunct != nil {
			c.cfg.OnDefunct(c, err)
		}
	})
}

// Close shuts the connection down immediately without a drain grace
// window; use Shutdown for an orderly drain.
func (c *Connection) Close() error {
	c.defunct(ErrConnectionClosed)
	return nil
}

// Shutdown refuses new sends immediately and waits up to grace for
// in-flight requests to complete before resolving the rest with
// ErrShuttingDown.
func (c *Connection) Shutdown(grace time.Duration) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.closeErr = ErrShuttingDown
	c.mu.Unlock()

	deadline := time.After(grace)
	for {
		c.mu.Lock()
		n := len(c.pending)
		c.mu.Unlock()
		if n == 0 {
			break
		}
		select {
		case <-deadline:
			goto drain
		case <-time.After(10 * time.Millisecond):
		}
	}
drain:
	c.defunct(ErrShuttingDown)
}

// InFlight reports the number of currently outstanding requests, used by
// the pool's least-in-flight borrow heuristic.
func (c *Connection) InFlight() int {
	return c.streamIDs.InUse()
}

// HasCapacity reports whether at least one more stream id is available.
func (c *Connection) HasCapacity() bool {
	return c.streamIDs.InUse() < int(c.streamIDs.Capacity())
}

// IsClosed reports whether the connection has been defuncted or closed.
func (c *Connection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Keyspace returns the keyspace last bound on this connection via USE.
func (c *Connection) Keyspace() string {
	c.keyspaceMu.RLock()
	defer c.keyspaceMu.RUnlock()
	return c.keyspace
}

// SetKeyspace rebinds this connection's keyspace with a USE statement.
func (c *Connection) SetKeyspace(ctx context.Context, ks string) error {
	if c.Keyspace() == ks {
		return nil
	}
	if _, err := c.Send(ctx, protocol.OpQuery, protocol.EncodeQuery(
		"USE "+quoteKeyspace(ks), protocol.QueryParameters{Consistency: protocol.ConsistencyOne},
	), 0); err != nil {
		return err
	}
	c.keyspaceMu.Lock()
	c.keyspace = ks
	c.keyspaceMu.Unlock()
	return nil
}
