// Package surface is the WebSocket channel for display surfaces: map widgets
// send click, hover and search events and receive overlay patches.
package surface

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/joeblew999/plat-overlay/internal/metrics"
	"github.com/joeblew999/plat-overlay/internal/overlay"
	"github.com/joeblew999/plat-overlay/internal/search"
	"github.com/joeblew999/plat-overlay/internal/service"
	"github.com/joeblew999/plat-overlay/internal/session"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMessage = 4096
)

// Inbound message types.
const (
	TypeClick  = "click"
	TypeHover  = "hover"
	TypeSearch = "search"
	TypeClear  = "clear"
)

// Outbound message types.
const (
	TypeSnapshot = "snapshot"
	TypePatch    = "patch"
	TypeDetail   = "detail"
	TypeState    = "state"
	TypeError    = "error"
)

// Request is a message from a surface.
type Request struct {
	Type     string `json:"type"`
	RegionID string `json:"regionId,omitempty"`
	Query    string `json:"query,omitempty"`
}

// Message is sent to a surface. Snapshot carries every region; Patch only the
// regions whose encoding changed.
type Message struct {
	Type      string                `json:"type"`
	Token     uint64                `json:"token,omitempty"`
	Regions   []overlay.Region      `json:"regions,omitempty"`
	Highlight string                `json:"highlight,omitempty"`
	Detail    *session.RegionDetail `json:"detail,omitempty"`
	State     *search.State         `json:"state,omitempty"`
	Error     string                `json:"error,omitempty"`
}

// Server upgrades requests to surface connections.
type Server struct {
	sess     *session.Session
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func New(sess *session.Session, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		sess:   sess,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type client struct {
	id   uuid.UUID
	conn *websocket.Conn
	send chan Message
	done chan struct{} // closed when the handler is finishing
	gone chan struct{} // closed when writePump has exited
}

func newClient(conn *websocket.Conn) *client {
	return &client{
		id:   uuid.New(),
		conn: conn,
		send: make(chan Message, 32),
		done: make(chan struct{}),
		gone: make(chan struct{}),
	}
}

// push queues m. It drops m once the writer is gone or the handler is done.
func (c *client) push(m Message) {
	select {
	case c.send <- m:
	case <-c.done:
	case <-c.gone:
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("surface upgrade failed", "error", err)
		return
	}
	c := newClient(conn)
	log := s.logger.With("surface", c.id.String())
	metrics.SurfaceClients.Inc()
	defer metrics.SurfaceClients.Dec()
	log.Info("surface connected", "remote", r.RemoteAddr)

	ctx, cancel := context.WithCancel(r.Context())
	events := s.sess.Bus().Subscribe()

	go s.writePump(c)

	prev, err := s.sess.Overlay(ctx)
	if err == nil {
		c.push(Message{Type: TypeSnapshot, Regions: prev.Regions, Highlight: prev.Highlight})
		go s.watch(ctx, c, events, prev)
	}

	s.readPump(ctx, c, log)

	cancel()
	s.sess.Bus().Unsubscribe(events)
	close(c.done)
	<-c.gone
	log.Info("surface disconnected")
}

// watch turns session events into overlay patches.
func (s *Server) watch(ctx context.Context, c *client, events chan service.Event, prev *overlay.Document) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Kind != service.EventScores && ev.Kind != service.EventHighlight {
				continue
			}
			doc, err := s.sess.Overlay(ctx)
			if err != nil {
				return
			}
			changed := overlay.Diff(prev, doc)
			prev = doc
			if len(changed) == 0 {
				continue
			}
			c.push(Message{Type: TypePatch, Token: ev.Token, Regions: changed, Highlight: doc.Highlight})
		}
	}
}

func (s *Server) readPump(ctx context.Context, c *client, log *slog.Logger) {
	c.conn.SetReadLimit(maxMessage)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("surface read failed", "error", err)
			}
			return
		}
		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			c.push(Message{Type: TypeError, Error: "invalid message: " + err.Error()})
			continue
		}
		c.push(s.handle(ctx, req))
	}
}

func (s *Server) handle(ctx context.Context, req Request) Message {
	switch req.Type {
	case TypeClick, TypeHover:
		op := s.sess.Hover
		if req.Type == TypeClick {
			op = s.sess.Click
		}
		d, err := op(ctx, req.RegionID)
		if err != nil {
			return Message{Type: TypeError, Error: err.Error()}
		}
		return Message{Type: TypeDetail, Detail: &d}
	case TypeSearch:
		st, err := s.sess.Search(ctx, req.Query)
		if err != nil {
			return Message{Type: TypeError, Error: err.Error()}
		}
		return Message{Type: TypeState, State: &st}
	case TypeClear:
		st, err := s.sess.ClearHighlight(ctx)
		if err != nil {
			return Message{Type: TypeError, Error: err.Error()}
		}
		return Message{Type: TypeState, State: &st}
	default:
		return Message{Type: TypeError, Error: "unknown message type " + req.Type}
	}
}

// writePump owns all writes. On exit it closes the connection, which also
// ends readPump.
func (s *Server) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		close(c.gone)
	}()

	for {
		select {
		case m := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(m); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
