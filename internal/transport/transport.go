// Package transport owns the single logical STOMP-over-websocket session
// to the room server. It multiplexes inbound topic messages to registered
// handlers, publishes outbound commands, and keeps the session alive with
// heart-beats, automatic retry, and forced recovery for silent stalls.
package transport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"auxroom/internal/proto"
	"auxroom/internal/stomp"
)

const (
	// HeartBeatInterval is offered for both directions, so either endpoint
	// can detect a dead peer within roughly one missed interval.
	HeartBeatInterval = 10 * time.Second

	// ReconnectDelay is the fixed automatic retry delay. No backoff: a
	// bounded retry storm is accepted over a stretched outage.
	ReconnectDelay = 2 * time.Second

	// StallThreshold is how stale inbound activity may get before
	// ForceReconnect treats an apparently-live session as dead.
	StallThreshold = 25 * time.Second

	// SettleDelay separates teardown from reactivation on a forced
	// reconnect so the old session's close cannot race the new handshake.
	SettleDelay = 500 * time.Millisecond
)

// Handler receives the raw JSON body of a message on one destination.
type Handler func(body []byte)

// AuthContext is the connection-level metadata sent with every CONNECT.
type AuthContext struct {
	Token        string
	Name         string
	RoomPassword string
}

// Callbacks notify the owner about session lifecycle changes. All fields
// are optional.
type Callbacks struct {
	OnConnect       func()
	OnDisconnect    func()
	OnProtocolError func(message string)
}

// Conn is the subset of a websocket connection the transport needs.
// *websocket.Conn satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer opens the underlying websocket. Tests substitute a fake.
type Dialer func(url string) (Conn, error)

func defaultDialer(url string) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{})
	return conn, err
}

// Transport maintains at most one active underlying connection. Connect is
// idempotent while activated; the retry loop, heart-beats, and forced
// reconnects all run through the injected clock.
type Transport struct {
	url  string
	clk  clock.Clock
	log  zerolog.Logger
	dial Dialer

	mu           sync.Mutex
	activated    bool
	sessionUp    bool
	generation   uint64
	conn         Conn
	lastActivity time.Time
	auth         AuthContext
	cb           Callbacks
	subs         map[string][]Handler
	subOrder     []string

	writeMu sync.Mutex
}

// Option configures a Transport.
type Option func(*Transport)

// WithClock substitutes the scheduling clock (mock in tests).
func WithClock(c clock.Clock) Option { return func(t *Transport) { t.clk = c } }

// WithDialer substitutes the websocket dialer.
func WithDialer(d Dialer) Option { return func(t *Transport) { t.dial = d } }

// WithLogger sets the transport logger.
func WithLogger(l zerolog.Logger) Option { return func(t *Transport) { t.log = l } }

// New creates a Transport for the given ws(s) URL.
func New(url string, opts ...Option) *Transport {
	t := &Transport{
		url:  url,
		clk:  clock.New(),
		log:  zerolog.Nop(),
		dial: defaultDialer,
		subs: make(map[string][]Handler),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.log = t.log.With().Str("component", "transport").Logger()
	return t
}

// Connect activates the session. A call while already activated is a
// no-op, so at most one underlying connection exists at a time.
func (t *Transport) Connect(auth AuthContext, cb Callbacks, subs map[string]Handler) {
	t.mu.Lock()
	if t.activated {
		t.mu.Unlock()
		t.log.Debug().Msg("connect ignored, session already active")
		return
	}
	t.activated = true
	t.auth = auth
	t.cb = cb
	t.subs = make(map[string][]Handler, len(subs))
	t.subOrder = t.subOrder[:0]
	for dest, h := range subs {
		t.subs[dest] = []Handler{h}
		t.subOrder = append(t.subOrder, dest)
	}
	t.generation++
	gen := t.generation
	t.mu.Unlock()

	go t.run(gen)
}

// Subscribe appends a handler for a destination. Handlers registered for
// the same destination run in registration order. Must be called before
// Connect to be included in the session's SUBSCRIBE set.
func (t *Transport) Subscribe(destination string, h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.subs[destination]; !ok {
		t.subOrder = append(t.subOrder, destination)
	}
	t.subs[destination] = append(t.subs[destination], h)
}

// Send serializes body and publishes it iff the session is currently up.
// Otherwise the send is silently dropped; callers must not assume
// delivery and rely on the next state snapshot instead.
func (t *Transport) Send(destination string, body any) {
	t.mu.Lock()
	conn, up := t.conn, t.sessionUp
	t.mu.Unlock()
	if !up || conn == nil {
		t.log.Debug().Str("dest", destination).Msg("send dropped, not connected")
		return
	}
	payload, err := json.Marshal(body)
	if err != nil {
		t.log.Warn().Err(err).Str("dest", destination).Msg("send encode failed")
		return
	}
	frame := stomp.NewFrame(stomp.CmdSend,
		stomp.HdrDestination, destination,
		stomp.HdrContentType, "application/json",
	)
	frame.Body = payload
	if err := t.write(conn, frame.Marshal()); err != nil {
		t.log.Warn().Err(err).Str("dest", destination).Msg("send failed")
	}
}

// Active reports whether the underlying session is currently up.
func (t *Transport) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessionUp
}

// LastActivity returns the time of the last inbound frame of any kind.
func (t *Transport) LastActivity() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastActivity
}

// ForceReconnect tears down and re-activates the session when it is down
// or when inbound activity is older than StallThreshold. Recovery is what
// the automatic retry cannot provide for silently-stalled sessions.
func (t *Transport) ForceReconnect() {
	t.mu.Lock()
	stale := !t.sessionUp || t.clk.Now().Sub(t.lastActivity) > StallThreshold
	if !t.activated || !stale {
		t.mu.Unlock()
		return
	}
	t.log.Info().Time("last_activity", t.lastActivity).Msg("forcing reconnect")
	t.teardownLocked()
	t.generation++
	gen := t.generation
	t.mu.Unlock()

	timer := t.clk.Timer(SettleDelay)
	go func() {
		<-timer.C
		t.mu.Lock()
		current := t.activated && t.generation == gen
		t.mu.Unlock()
		if current {
			t.run(gen)
		}
	}()
}

// Disconnect deactivates the session for good (no automatic retry).
func (t *Transport) Disconnect() {
	t.mu.Lock()
	if !t.activated {
		t.mu.Unlock()
		return
	}
	t.activated = false
	t.generation++
	if t.conn != nil && t.sessionUp {
		frame := stomp.NewFrame(stomp.CmdDisconnect, stomp.HdrReceipt, "bye")
		_ = t.write(t.conn, frame.Marshal())
	}
	t.teardownLocked()
	t.mu.Unlock()
}

func (t *Transport) teardownLocked() {
	if t.conn != nil {
		_ = t.conn.Close()
		t.conn = nil
	}
	t.sessionUp = false
}

func (t *Transport) write(conn Conn, data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

// run owns one connection attempt cycle for a generation. It returns when
// the transport is deactivated or superseded by a newer generation.
func (t *Transport) run(gen uint64) {
	for {
		if !t.current(gen) {
			return
		}
		fatal := t.session(gen)
		if fatal || !t.current(gen) {
			return
		}
		t.clk.Sleep(ReconnectDelay)
	}
}

func (t *Transport) current(gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.activated && t.generation == gen
}

// session dials, handshakes, subscribes, and reads until the connection
// dies. It returns true when the failure is fatal-to-session (protocol
// rejection) and retrying would be wrong.
func (t *Transport) session(gen uint64) (fatal bool) {
	conn, err := t.dial(t.url)
	if err != nil {
		t.log.Warn().Err(err).Msg("dial failed")
		return false
	}

	connect := stomp.NewFrame(stomp.CmdConnect,
		stomp.HdrAcceptVersion, "1.2",
		stomp.HdrHost, "/",
		stomp.HdrHeartBeat, fmt.Sprintf("%d,%d", HeartBeatInterval.Milliseconds(), HeartBeatInterval.Milliseconds()),
		proto.HeaderUserToken, t.auth.Token,
		proto.HeaderUserName, t.auth.Name,
	)
	if t.auth.RoomPassword != "" {
		connect.Set(proto.HeaderRoomPassword, t.auth.RoomPassword)
	}
	if err := t.write(conn, connect.Marshal()); err != nil {
		_ = conn.Close()
		return false
	}

	reply, err := t.readFrame(conn)
	if err != nil {
		_ = conn.Close()
		return false
	}
	switch reply.Command {
	case stomp.CmdConnected:
		// fall through to session setup
	case stomp.CmdError:
		return t.protocolError(conn, reply)
	default:
		t.log.Warn().Str("command", reply.Command).Msg("unexpected handshake reply")
		_ = conn.Close()
		return false
	}

	t.mu.Lock()
	if !t.activated || t.generation != gen {
		t.mu.Unlock()
		_ = conn.Close()
		return false
	}
	t.conn = conn
	t.sessionUp = true
	t.lastActivity = t.clk.Now()
	order := append([]string(nil), t.subOrder...)
	cb := t.cb
	t.mu.Unlock()

	for i, dest := range order {
		sub := stomp.NewFrame(stomp.CmdSubscribe,
			stomp.HdrID, fmt.Sprintf("sub-%d", i),
			stomp.HdrDestination, dest,
		)
		if err := t.write(conn, sub.Marshal()); err != nil {
			t.dropSession(gen, cb)
			return false
		}
	}

	if cb.OnConnect != nil {
		cb.OnConnect()
	}

	stopBeats := t.startHeartBeats(conn, gen)
	defer stopBeats()

	for {
		raw, err := t.readRaw(conn)
		if err != nil {
			t.dropSession(gen, cb)
			return false
		}
		t.touch()
		if stomp.IsHeartBeat(raw) {
			continue
		}
		frame, err := stomp.Parse(raw)
		if err != nil {
			t.log.Warn().Err(err).Msg("discarding malformed frame")
			continue
		}
		switch frame.Command {
		case stomp.CmdMessage:
			t.dispatch(frame)
		case stomp.CmdError:
			fatal := t.protocolError(conn, frame)
			t.dropSession(gen, cb)
			return fatal
		case stomp.CmdReceipt:
			// only used for the DISCONNECT receipt; nothing to do
		default:
			t.log.Debug().Str("command", frame.Command).Msg("ignoring frame")
		}
	}
}

// protocolError reports a server-rejected handshake or mid-session ERROR.
// Protocol rejection is non-recoverable locally: the transport deactivates
// and leaves recovery (credential reset, full reload) to the caller.
func (t *Transport) protocolError(conn Conn, frame *stomp.Frame) bool {
	message := frame.Get(stomp.HdrMessage)
	if message == "" {
		message = string(frame.Body)
	}
	t.log.Error().Str("message", message).Msg("protocol error")
	_ = conn.Close()

	t.mu.Lock()
	t.activated = false
	t.generation++
	t.teardownLocked()
	cb := t.cb
	t.mu.Unlock()

	if cb.OnProtocolError != nil {
		cb.OnProtocolError(message)
	}
	return true
}

func (t *Transport) dropSession(gen uint64, cb Callbacks) {
	t.mu.Lock()
	wasUp := t.sessionUp && t.generation == gen
	if wasUp {
		t.teardownLocked()
	}
	t.mu.Unlock()
	if wasUp && cb.OnDisconnect != nil {
		cb.OnDisconnect()
	}
}

func (t *Transport) touch() {
	t.mu.Lock()
	t.lastActivity = t.clk.Now()
	t.mu.Unlock()
}

func (t *Transport) readRaw(conn Conn) ([]byte, error) {
	for {
		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}
		return payload, nil
	}
}

func (t *Transport) readFrame(conn Conn) (*stomp.Frame, error) {
	for {
		raw, err := t.readRaw(conn)
		if err != nil {
			return nil, err
		}
		t.touch()
		if stomp.IsHeartBeat(raw) {
			continue
		}
		return stomp.Parse(raw)
	}
}

// startHeartBeats emits the outbound keep-alive on the negotiated period
// until the session ends. The ticker comes from the injected clock, which
// production wires to a monotonic source that does not stretch when the
// host throttles background work.
func (t *Transport) startHeartBeats(conn Conn, gen uint64) func() {
	ticker := t.clk.Ticker(HeartBeatInterval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				if !t.current(gen) {
					return
				}
				if err := t.write(conn, stomp.HeartBeat()); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()
	return func() {
		ticker.Stop()
		close(done)
	}
}

// dispatch decodes the destination once and fans the body out to every
// registered handler in order, synchronously on the read goroutine.
func (t *Transport) dispatch(frame *stomp.Frame) {
	dest := frame.Get(stomp.HdrDestination)
	t.mu.Lock()
	handlers := append([]Handler(nil), t.subs[dest]...)
	t.mu.Unlock()
	if len(handlers) == 0 {
		t.log.Debug().Str("dest", dest).Msg("message for unknown destination")
		return
	}
	for _, h := range handlers {
		h(frame.Body)
	}
}
