// Package minarai is a client for the minarai socketio-connector. A Client
// joins a session over a persistent event channel, dispatches inbound events
// to listeners and sends chat messages and commands as envelopes.
//
// A Client is meant to be driven from one goroutine. Inbound events arrive on
// the transport's reader goroutine; listener registration is safe from any
// goroutine while events are dispatched.
package minarai

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

type Client struct {
	opts      Options
	log       *slog.Logger
	http      *http.Client
	now       func() time.Time
	uploadURL string

	listeners listenerRegistry

	mu        sync.RWMutex
	state     State
	identity  Identity
	transport Transport
}

func New(identity Identity, opts *Options) (*Client, error) {
	if err := identity.validate(); err != nil {
		return nil, err
	}
	var o Options
	if opts != nil {
		o = *opts
	}
	o = o.withDefaults()
	return &Client{
		opts:      o,
		log:       o.Logger.With("component", "minarai"),
		http:      o.HTTPClient,
		now:       time.Now,
		uploadURL: strings.TrimSuffix(o.ChannelRootURL, "/") + "/" + o.APIVersion + "/upload-image",
		state:     StateUninitialized,
		identity:  identity,
	}, nil
}

// On registers fn for ev and returns the handle that removes it. Listeners run
// in registration order on the transport's reader goroutine.
func (c *Client) On(ev Event, fn ListenerFunc) ListenerID {
	if ev < 0 || ev >= eventCount {
		panic(fmt.Sprintf("minarai: unknown event %d", int(ev)))
	}
	if fn == nil {
		panic("minarai: nil listener")
	}
	return c.listeners.add(ev, fn)
}

// Off removes one registration. It reports whether the registration existed.
func (c *Client) Off(ev Event, id ListenerID) bool {
	if ev < 0 || ev >= eventCount {
		return false
	}
	return c.listeners.remove(ev, id)
}

func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Client) IsInitialized() bool {
	s := c.State()
	return s == StateConnecting || s == StateJoined
}

func (c *Client) IsJoined() bool {
	return c.State() == StateJoined
}

func (c *Client) IsClosed() bool {
	return c.State() == StateClosed
}

// Identity returns the current session identity, which reflects the join
// acknowledgment once joined.
func (c *Client) Identity() Identity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identity
}

// Init opens the event channel and starts joining. It succeeds only once per
// Client; the join completes asynchronously (see EventJoined).
func (c *Client) Init() error {
	c.mu.Lock()
	switch c.state {
	case StateConnecting, StateJoined:
		c.mu.Unlock()
		c.log.Warn("init rejected", "err", ErrAlreadyInitialized)
		return ErrAlreadyInitialized
	case StateClosed:
		c.mu.Unlock()
		c.log.Warn("init rejected", "err", ErrClosed)
		return ErrClosed
	}

	t, err := c.opts.Dial(c.opts.ChannelRootURL, c.opts.Transport, c.opts.Logger)
	if err != nil {
		c.mu.Unlock()
		c.log.Error("create transport failed", "url", c.opts.ChannelRootURL, "err", err)
		return fmt.Errorf("create transport: %w", err)
	}
	t.On(EventConnect.String(), func([]json.RawMessage) { c.onConnect() })
	t.On(EventJoined.String(), c.onJoined)
	t.On(signalConnectError, c.onConnectError)
	t.On(signalDisconnect, func([]json.RawMessage) {
		c.log.Info("transport disconnected")
	})
	for _, ev := range Events() {
		ev := ev
		t.On(ev.String(), func(args []json.RawMessage) { c.handleFrame(ev, args) })
	}
	c.transport = t
	c.state = StateConnecting
	c.mu.Unlock()

	c.log.Info("connecting", "url", c.opts.ChannelRootURL, "path", c.opts.Transport.Path)
	if err := t.Connect(); err != nil {
		c.mu.Lock()
		if c.transport == t {
			c.transport = nil
			c.state = StateUninitialized
		}
		c.mu.Unlock()
		_ = t.Close()
		c.log.Error("connect failed", "err", err)
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

func (c *Client) onConnect() {
	c.mu.RLock()
	t, id, state := c.transport, c.identity, c.state
	c.mu.RUnlock()
	if t == nil || state == StateClosed {
		return
	}
	c.log.Info("connected, joining as client", "client_id", id.ClientID, "user_id", id.UserID, "device_id", id.DeviceID)
	raw, err := json.Marshal(id)
	if err != nil {
		c.log.Error("encode join request failed", "err", err)
		return
	}
	if err := t.Emit(emitJoinAsClient, json.RawMessage(raw)); err != nil {
		c.log.Error("emit join-as-client failed", "err", err)
	}
}

func (c *Client) onJoined(args []json.RawMessage) {
	id, err := parseJoinAck(args)
	if err != nil {
		c.log.Error("join acknowledgment rejected", "err", err)
		return
	}
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.identity = id
	c.state = StateJoined
	c.mu.Unlock()
	c.log.Info("joined", "client_id", id.ClientID, "user_id", id.UserID, "device_id", id.DeviceID)
}

func (c *Client) onConnectError(args []json.RawMessage) {
	var detail any
	if len(args) > 0 {
		_ = json.Unmarshal(args[0], &detail)
	}
	c.log.Error("transport connect error", "detail", detail)
}

// Close releases the transport. Later calls are no-ops and a closed Client
// cannot be initialized again.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	t := c.transport
	c.transport = nil
	c.state = StateClosed
	c.mu.Unlock()

	c.log.Info("closing")
	if t != nil {
		if err := t.Close(); err != nil {
			c.log.Warn("close transport failed", "err", err)
			return err
		}
	}
	return nil
}

// session returns the transport and identity for an operation that needs the
// given state, logging and returning the violation otherwise.
func (c *Client) session(op string, needJoined bool) (Transport, Identity, error) {
	c.mu.RLock()
	state, t, id := c.state, c.transport, c.identity
	c.mu.RUnlock()

	var err error
	switch {
	case state == StateUninitialized:
		err = ErrNotInitialized
	case state == StateClosed:
		err = ErrClosed
	case needJoined && state != StateJoined:
		err = ErrNotJoined
	}
	if err != nil {
		c.log.Warn(op+" rejected", "state", state, "err", err)
		return nil, Identity{}, err
	}
	return t, id, nil
}
