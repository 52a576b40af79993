package socketio

import (
	"crypto/tls"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Signals raised by the socket itself, alongside server events.
const (
	EventConnect      = "connect"
	EventDisconnect   = "disconnect"
	EventConnectError = "connect_error"
	EventError        = "error"
)

var (
	ErrClosed           = errors.New("socket closed")
	ErrSendQueueFull    = errors.New("send queue full")
	errServerDisconnect = errors.New("server disconnected namespace")
)

type Options struct {
	Path             string
	EIO              int
	Header           http.Header
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	QueueSize        int
	Reconnect        bool
	ReconnectMax     time.Duration
	TLSSkipVerify    bool
	Logger           *slog.Logger
}

type Socket struct {
	url       string
	namespace string
	opts      Options
	log       *slog.Logger

	mu       sync.RWMutex
	handlers map[string][]func(args []json.RawMessage)

	send      chan string
	stop      chan struct{}
	done      chan struct{}
	startOnce sync.Once
	closeOnce sync.Once

	connMu sync.Mutex
	conn   *websocket.Conn
}

func New(rootURL string, opts Options) (*Socket, error) {
	if opts.EIO == 0 {
		opts.EIO = 3
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.ReconnectMax <= 0 {
		opts.ReconnectMax = 8 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	u, namespace, err := BuildURL(rootURL, opts.Path, opts.EIO)
	if err != nil {
		return nil, err
	}
	return &Socket{
		url:       u,
		namespace: namespace,
		opts:      opts,
		log:       opts.Logger.With("component", "socketio"),
		handlers:  make(map[string][]func(args []json.RawMessage)),
		send:      make(chan string, opts.QueueSize),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}, nil
}

func (s *Socket) URL() string {
	return s.url
}

// On appends a handler for the event. Handlers run on the read goroutine in
// registration order.
func (s *Socket) On(event string, handler func(args []json.RawMessage)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[event] = append(s.handlers[event], handler)
}

func (s *Socket) fire(event string, args []json.RawMessage) {
	s.mu.RLock()
	list := s.handlers[event]
	s.mu.RUnlock()
	for _, h := range list {
		h(args)
	}
}

// Connect starts the connection loop in the background and returns at once.
func (s *Socket) Connect() error {
	select {
	case <-s.stop:
		return ErrClosed
	default:
	}
	s.startOnce.Do(func() {
		go s.run()
	})
	return nil
}

// Emit queues an event. Events queued before the namespace is connected are
// flushed once it is.
func (s *Socket) Emit(event string, args ...any) error {
	frame, err := EncodeEvent(s.namespace, event, args...)
	if err != nil {
		return err
	}
	select {
	case <-s.stop:
		return ErrClosed
	default:
	}
	select {
	case s.send <- frame:
		return nil
	default:
		return ErrSendQueueFull
	}
}

func (s *Socket) Close() error {
	s.closeOnce.Do(func() {
		close(s.stop)
		s.connMu.Lock()
		if s.conn != nil {
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			_ = s.conn.Close()
		}
		s.connMu.Unlock()
	})
	return nil
}

// Done is closed when the connection loop has exited.
func (s *Socket) Done() <-chan struct{} {
	return s.done
}

func (s *Socket) stopped() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}

func (s *Socket) run() {
	defer close(s.done)
	backoff := time.Second
	for {
		if s.stopped() {
			return
		}
		connected, err := s.runOnce()
		if connected {
			s.fire(EventDisconnect, nil)
			backoff = time.Second
		}
		if s.stopped() {
			return
		}
		if err != nil {
			if connected {
				s.log.Warn("socketio disconnected", "url", s.url, "err", err)
			} else {
				s.log.Warn("socketio connect failed", "url", s.url, "err", err)
				msg, _ := json.Marshal(err.Error())
				s.fire(EventConnectError, []json.RawMessage{msg})
			}
		}
		if !s.opts.Reconnect || errors.Is(err, errServerDisconnect) {
			return
		}
		select {
		case <-s.stop:
			return
		case <-time.After(backoff):
		}
		if backoff < s.opts.ReconnectMax {
			backoff *= 2
			if backoff > s.opts.ReconnectMax {
				backoff = s.opts.ReconnectMax
			}
		}
	}
}

func (s *Socket) setConn(conn *websocket.Conn) bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if conn != nil && s.stopped() {
		return false
	}
	s.conn = conn
	return true
}

func (s *Socket) runOnce() (bool, error) {
	s.log.Debug("socketio connecting", "url", s.url)
	dialer := websocket.Dialer{
		HandshakeTimeout: s.opts.HandshakeTimeout,
	}
	if s.opts.TLSSkipVerify {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	conn, _, err := dialer.Dial(s.url, s.opts.Header)
	if err != nil {
		return false, err
	}
	defer conn.Close()
	if !s.setConn(conn) {
		return false, ErrClosed
	}
	defer s.setConn(nil)

	_ = conn.SetReadDeadline(time.Now().Add(s.opts.HandshakeTimeout))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return false, err
	}
	hs, err := parseOpen(string(raw))
	if err != nil {
		return false, err
	}
	s.log.Debug("socketio handshake", "sid", hs.SID, "ping_interval_ms", hs.PingInterval)

	pingInterval := time.Duration(hs.PingInterval) * time.Millisecond
	if pingInterval <= 0 {
		pingInterval = 25 * time.Second
	}
	pingTimeout := time.Duration(hs.PingTimeout) * time.Millisecond
	if pingTimeout <= 0 {
		pingTimeout = 20 * time.Second
	}

	runDone := make(chan struct{})
	ready := make(chan struct{})
	var readyOnce sync.Once
	control := make(chan string, 8)
	writerDone := make(chan struct{})
	go s.writeLoop(conn, control, ready, runDone, writerDone, pingInterval)
	sendControl := func(frame string) {
		select {
		case control <- frame:
		default:
		}
	}
	finish := func(err error) (bool, error) {
		close(runDone)
		<-writerDone
		return true, err
	}

	if s.opts.EIO >= 4 || s.namespace != "/" {
		sendControl(EncodeConnect(s.namespace))
	}

	for {
		_ = conn.SetReadDeadline(time.Now().Add(pingInterval + pingTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return finish(err)
		}
		frame := string(raw)
		if frame == "" {
			continue
		}
		switch frame[0] {
		case enginePing:
			sendControl(string(enginePong) + frame[1:])
		case enginePong, engineNoop:
		case engineClose:
			return finish(errors.New("engine.io close"))
		case engineMessage:
			p, err := ParsePacket(frame)
			if err != nil {
				s.log.Debug("socketio bad packet", "err", err)
				continue
			}
			if p.Namespace != s.namespace {
				continue
			}
			switch p.Type {
			case PacketConnect:
				readyOnce.Do(func() { close(ready) })
				s.log.Info("socketio connected", "url", s.url, "namespace", s.namespace)
				s.fire(EventConnect, nil)
			case PacketDisconnect:
				return finish(errServerDisconnect)
			case PacketEvent:
				name, args, err := p.Event()
				if err != nil {
					s.log.Error("socketio bad event packet", "err", err)
					continue
				}
				s.fire(name, args)
			case PacketError:
				if s.opts.EIO >= 4 {
					s.fire(EventConnectError, []json.RawMessage{p.Data})
				} else {
					s.fire(EventError, []json.RawMessage{p.Data})
				}
			case PacketBinaryEvent, PacketBinaryAck:
				s.log.Warn("socketio binary packet not supported, dropped")
			case PacketAck:
			}
		default:
			s.log.Debug("socketio unknown frame", "type", string(frame[0]))
		}
	}
}

func (s *Socket) writeLoop(conn *websocket.Conn, control <-chan string, ready <-chan struct{}, runDone <-chan struct{}, writerDone chan<- struct{}, pingInterval time.Duration) {
	defer close(writerDone)
	var pings <-chan time.Time
	if s.opts.EIO < 4 {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		pings = ticker.C
	}
	var events chan string
	write := func(frame string) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
			s.log.Debug("socketio write failed", "err", err)
			_ = conn.Close()
			return false
		}
		return true
	}
	for {
		select {
		case <-runDone:
			return
		case <-s.stop:
			return
		case <-ready:
			events = s.send
			ready = nil
		case frame := <-control:
			if !write(frame) {
				return
			}
		case <-pings:
			if !write(string(enginePing)) {
				return
			}
		case frame := <-events:
			if !write(frame) {
				return
			}
		}
	}
}
