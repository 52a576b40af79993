// Package connectortest runs an in-process stand-in for the minarai
// socketio-connector: a Socket.IO (EIO 3) websocket endpoint, the
// upload-image endpoint and an image download endpoint.
package connectortest

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nextremer/minarai-client-go/internal/socketio"
)

type Config struct {
	APIVersion string
	// JoinOverride replaces fields of the join-as-client payload in the joined ack.
	JoinOverride map[string]any
	// JoinReply, when set, is sent verbatim as the joined payload.
	JoinReply any
	// SkipJoin leaves join-as-client unanswered.
	SkipJoin bool
	// ImageViaHeader makes the image endpoint require credential headers
	// instead of query parameters.
	ImageViaHeader bool
}

type Event struct {
	Name string
	Args []json.RawMessage
}

type ImageRequest struct {
	Path     string
	RawQuery string
	Query    map[string]string
	Headers map[string]string
}

type Upload struct {
	Fields      map[string]string
	FileName    string
	ContentType string
	Data        []byte
}

type Server struct {
	cfg      Config
	http     *httptest.Server
	upgrader websocket.Upgrader

	mu       sync.Mutex
	cond     *sync.Cond
	conns    map[string]*session
	events   []Event
	images   map[string][]byte
	imageReq []ImageRequest
	uploads  []Upload
}

type session struct {
	conn   *websocket.Conn
	send   chan string
	closed chan struct{}
	once   sync.Once
}

func (s *session) Send(frame string) error {
	select {
	case <-s.closed:
		return websocket.ErrCloseSent
	case s.send <- frame:
		return nil
	}
}

func (s *session) Close() {
	s.once.Do(func() {
		close(s.closed)
		_ = s.conn.Close()
	})
}

func (s *session) writeLoop() {
	for {
		select {
		case <-s.closed:
			return
		case frame := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := s.conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				s.Close()
				return
			}
		}
	}
}

func NewServer(cfg Config) *Server {
	if cfg.APIVersion == "" {
		cfg.APIVersion = "v1"
	}
	s := &Server{
		cfg:    cfg,
		conns:  make(map[string]*session),
		images: make(map[string][]byte),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	s.cond = sync.NewCond(&s.mu)
	s.http = httptest.NewServer(s.Router())
	return s
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/socket.io/"+s.cfg.APIVersion+"/", s.handleSocket)
	mux.HandleFunc("/"+s.cfg.APIVersion+"/upload-image", s.handleUpload)
	mux.HandleFunc("/images/", s.handleImage)
	return mux
}

func (s *Server) URL() string {
	return s.http.URL
}

func (s *Server) Close() {
	s.mu.Lock()
	for _, c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()
	s.http.Close()
}

// AddImage registers bytes under name and returns the URL they are served at.
func (s *Server) AddImage(name string, data []byte) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images[name] = data
	return s.http.URL + "/images/" + name
}

func (s *Server) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func (s *Server) ImageRequests() []ImageRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ImageRequest(nil), s.imageReq...)
}

func (s *Server) Uploads() []Upload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Upload(nil), s.uploads...)
}

// WaitEvent blocks until an event with the given name has been received, or
// the timeout elapses.
func (s *Server) WaitEvent(name string, timeout time.Duration) (Event, bool) {
	deadline := time.Now().Add(timeout)
	timer := time.AfterFunc(timeout, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer timer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		for _, ev := range s.events {
			if ev.Name == name {
				return ev, true
			}
		}
		if !time.Now().Before(deadline) {
			return Event{}, false
		}
		s.cond.Wait()
	}
}

// Push sends a server event to every connected client.
func (s *Server) Push(event string, args ...any) error {
	frame, err := socketio.EncodeEvent("/", event, args...)
	if err != nil {
		return err
	}
	return s.broadcast(frame)
}

// PushRaw sends an already framed Engine.IO packet to every connected client.
func (s *Server) PushRaw(frame string) error {
	return s.broadcast(frame)
}

func (s *Server) broadcast(frame string) error {
	s.mu.Lock()
	conns := make([]*session, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	if len(conns) == 0 {
		return errors.New("no connected clients")
	}
	for _, c := range conns {
		if err := c.Send(frame); err != nil {
			return err
		}
	}
	return nil
}

// Connections reports how many clients are currently connected.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// DisconnectAll drops every client connection from the server side.
func (s *Server) DisconnectAll() {
	s.mu.Lock()
	conns := make([]*session, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	for _, c := range conns {
		c.Close()
	}
}

func (s *Server) record(ev Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.cond.Broadcast()
	s.mu.Unlock()
}

func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("transport") != "websocket" {
		http.Error(w, "websocket transport only", http.StatusBadRequest)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("connectortest upgrade failed", "err", err)
		return
	}
	sid := uuid.NewString()
	sess := &session{
		conn:   conn,
		send:   make(chan string, 128),
		closed: make(chan struct{}),
	}
	go sess.writeLoop()
	defer sess.Close()

	s.mu.Lock()
	s.conns[sid] = sess
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.conns, sid)
		s.mu.Unlock()
	}()

	open, _ := json.Marshal(socketio.Handshake{
		SID:          sid,
		Upgrades:     []string{},
		PingInterval: 25000,
		PingTimeout:  5000,
	})
	_ = sess.Send("0" + string(open))
	_ = sess.Send("40")

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		frame := string(raw)
		switch {
		case strings.HasPrefix(frame, "2"):
			_ = sess.Send("3" + frame[1:])
		case strings.HasPrefix(frame, "40"):
			_ = sess.Send(frame)
		case strings.HasPrefix(frame, "42"):
			p, err := socketio.ParsePacket(frame)
			if err != nil {
				continue
			}
			name, args, err := p.Event()
			if err != nil {
				continue
			}
			s.record(Event{Name: name, Args: args})
			switch name {
			case "join-as-client":
				if !s.cfg.SkipJoin {
					s.replyJoined(sess, args)
				}
			case "force-disconnect":
				if frame, err := socketio.EncodeEvent("/", "disconnected", map[string]any{}); err == nil {
					_ = sess.Send(frame)
				}
			}
		}
	}
}

func (s *Server) replyJoined(sess *session, args []json.RawMessage) {
	var reply any = s.cfg.JoinReply
	if reply == nil {
		payload := map[string]any{}
		if len(args) > 0 {
			_ = json.Unmarshal(args[0], &payload)
		}
		for k, v := range s.cfg.JoinOverride {
			payload[k] = v
		}
		reply = payload
	}
	frame, err := socketio.EncodeEvent("/", "joined", reply)
	if err != nil {
		return
	}
	_ = sess.Send(frame)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	up := Upload{Fields: make(map[string]string)}
	for k, v := range r.MultipartForm.Value {
		if len(v) > 0 {
			up.Fields[k] = v[0]
		}
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file required", http.StatusBadRequest)
		return
	}
	defer file.Close()
	buf, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "read file", http.StatusBadRequest)
		return
	}
	up.FileName = header.Filename
	up.ContentType = header.Header.Get("Content-Type")
	up.Data = buf

	url := s.AddImage(up.FileName, up.Data)
	s.mu.Lock()
	s.uploads = append(s.uploads, up)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"message": "ok", "url": url})
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	req := ImageRequest{
		Path:     r.URL.Path,
		RawQuery: r.URL.RawQuery,
		Query:    map[string]string{},
		Headers:  map[string]string{},
	}
	for k := range r.URL.Query() {
		req.Query[k] = r.URL.Query().Get(k)
	}
	for _, h := range []string{"X-Minarai-Application-Id", "X-Minarai-Application-Secret", "X-Minarai-User-Id"} {
		if v := r.Header.Get(h); v != "" {
			req.Headers[h] = v
		}
	}
	name := strings.TrimPrefix(r.URL.Path, "/images/")
	s.mu.Lock()
	s.imageReq = append(s.imageReq, req)
	data, ok := s.images[name]
	s.mu.Unlock()

	var authorized bool
	if s.cfg.ImageViaHeader {
		authorized = req.Headers["X-Minarai-Application-Id"] != "" && req.Headers["X-Minarai-User-Id"] != ""
	} else {
		authorized = req.Query["applicationId"] != "" && req.Query["userId"] != ""
	}
	if !authorized {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(data)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
