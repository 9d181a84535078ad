package signaling

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/telecall/internal/store"
	"github.com/1ureka/telecall/internal/util"
)

// Server exposes a store.Store at /ws. Every connection may issue any store
// operation; subscriptions live as long as the connection.
type Server struct {
	store store.Store
	pin   string

	mu       sync.Mutex
	listener net.Listener
	http     *http.Server
	conns    map[*conn]struct{}
	closed   bool
}

// NewServer creates a signaling server over st. An empty pin disables
// authentication.
func NewServer(st store.Store, pin string) *Server {
	return &Server{
		store: st,
		pin:   pin,
		conns: make(map[*conn]struct{}),
	}
}

// Handler returns the HTTP handler serving /ws.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	return mux
}

// Start begins listening on addr (":0" picks a random port) and returns
// the bound address.
func (s *Server) Start(addr string) (net.Addr, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to start WS server: %w", err)
	}

	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	s.mu.Lock()
	s.listener = listener
	s.http = srv
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			util.LogError("signaling server stopped: %v", err)
		}
	}()
	return listener.Addr(), nil
}

// Close stops accepting connections and drops the open ones.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	srv := s.http
	conns := s.conns
	s.conns = make(map[*conn]struct{})
	s.mu.Unlock()

	var err error
	if srv != nil {
		err = srv.Close()
	}
	for c := range conns {
		c.ws.Close()
	}
	return err
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.pin != "" {
		pin := r.URL.Query().Get("pin")
		if subtle.ConstantTimeCompare([]byte(pin), []byte(s.pin)) != 1 {
			util.LogWarning("rejected connection from %s: invalid PIN", r.RemoteAddr)
			http.Error(w, "Invalid PIN", http.StatusUnauthorized)
			return
		}
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := &conn{srv: s, ws: ws, subs: make(map[string]store.Unsubscribe)}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ws.Close()
		return
	}
	s.conns[c] = struct{}{}
	s.mu.Unlock()

	util.LogInfo("participant connected from %s", r.RemoteAddr)
	c.serve()

	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	util.LogInfo("participant %s disconnected", r.RemoteAddr)
}

// conn is one client connection.
type conn struct {
	srv *Server
	ws  *websocket.Conn

	writeMu sync.Mutex

	mu   sync.Mutex
	subs map[string]store.Unsubscribe
}

// serve handles requests in arrival order until the connection drops.
func (c *conn) serve() {
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		c.mu.Lock()
		subs := c.subs
		c.subs = nil
		c.mu.Unlock()
		for _, unsub := range subs {
			unsub()
		}
		c.ws.Close()
	}()

	for {
		var msg Message
		if err := c.ws.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				util.LogDebug("WS read: %v", err)
			}
			return
		}
		c.send(c.handle(ctx, msg))
	}
}

// handle runs one request and returns its result message.
func (c *conn) handle(ctx context.Context, msg Message) Message {
	res := Message{Op: OpResult, ID: msg.ID}
	st := c.srv.store

	var err error
	switch msg.Op {
	case OpSet:
		err = st.Set(ctx, msg.Path, store.Fields(msg.Fields))
	case OpUpdate:
		err = st.Update(ctx, msg.Path, store.Fields(msg.Fields))
	case OpGet:
		var snap store.Snapshot
		snap, err = st.Get(ctx, msg.Path)
		res.Path, res.Exists, res.Fields = snap.Path, snap.Exists, snap.Fields
	case OpDelete:
		err = st.Delete(ctx, msg.Path)
	case OpAppend:
		res.EntryID, err = st.Append(ctx, msg.Path, msg.Collection, store.Fields(msg.Fields))
	case OpWatch:
		sub := msg.Sub
		err = c.subscribe(sub, func() (store.Unsubscribe, error) {
			return st.Watch(ctx, msg.Path, func(s store.Snapshot) {
				c.send(Message{Op: OpSnapshot, Sub: sub, Path: s.Path, Exists: s.Exists, Fields: s.Fields})
			})
		})
	case OpWatchAppends:
		sub := msg.Sub
		err = c.subscribe(sub, func() (store.Unsubscribe, error) {
			return st.WatchAppends(ctx, msg.Path, msg.Collection, func(e store.Entry) {
				c.send(Message{Op: OpEntry, Sub: sub, EntryID: e.ID, Seq: e.Seq, Fields: e.Fields})
			})
		})
	case OpUnwatch:
		c.unsubscribe(msg.Sub)
	default:
		err = fmt.Errorf("unknown op %q", msg.Op)
	}

	res.Error = errorCode(err)
	return res
}

func (c *conn) subscribe(sub string, watch func() (store.Unsubscribe, error)) error {
	if sub == "" {
		return fmt.Errorf("missing subscription id")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subs == nil {
		return store.ErrClosed
	}
	if _, dup := c.subs[sub]; dup {
		return fmt.Errorf("duplicate subscription %s", sub)
	}
	unsub, err := watch()
	if err != nil {
		return err
	}
	c.subs[sub] = unsub
	return nil
}

func (c *conn) unsubscribe(sub string) {
	c.mu.Lock()
	unsub := c.subs[sub]
	delete(c.subs, sub)
	c.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// send writes one message. Write errors surface as a read error in serve.
func (c *conn) send(msg Message) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteJSON(msg); err != nil {
		util.LogDebug("WS write: %v", err)
	}
}
