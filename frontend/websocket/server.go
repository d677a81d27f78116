// Package websocket implements gencode.Frontend for browser clients over
// WebSocket. Each connection is its own chat.
package websocket

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	gencode "github.com/nevindra/gencode"
)

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
	pingEvery = (pongWait * 9) / 10

	maxInboundBytes = 64 << 10
	outboundBuffer  = 32
)

// ErrUnknownChat is returned by Send when the chat's connection is gone.
var ErrUnknownChat = errors.New("websocket: unknown chat")

// Inbound is a client frame. Type "message" carries Text; "ping" is answered
// with "pong".
type Inbound struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Outbound is a server frame: "ready", "message", "typing", "pong", "error".
type Outbound struct {
	Type   string `json:"type"`
	ChatID string `json:"chat_id,omitempty"`
	ID     string `json:"id,omitempty"`
	Text   string `json:"text,omitempty"`
}

type client struct {
	chatID string
	userID string
	out    chan Outbound
	done   chan struct{}
}

// Server upgrades HTTP requests to WebSocket connections and bridges them to
// the bot router. It implements both http.Handler and gencode.Frontend.
type Server struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger
	in       chan gencode.IncomingMessage

	mu      sync.Mutex
	clients map[string]*client
}

var (
	_ gencode.Frontend = (*Server)(nil)
	_ http.Handler     = (*Server)(nil)
)

// Option configures a Server.
type Option func(*Server)

// WithAllowedOrigins restricts the Origin header. An empty list accepts any
// origin.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) {
		if len(origins) == 0 {
			return
		}
		s.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			for _, o := range origins {
				if strings.EqualFold(o, origin) {
					return true
				}
			}
			return false
		}
	}
}

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a WebSocket frontend.
func NewServer(opts ...Option) *Server {
	s := &Server{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger:  gencode.NopLogger,
		in:      make(chan gencode.IncomingMessage),
		clients: make(map[string]*client),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ServeHTTP upgrades the request and serves the connection until it closes.
// The optional "user" query parameter identifies the user for allow-lists.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxInboundBytes)

	c := &client{
		chatID: gencode.NewID(),
		userID: strings.TrimSpace(r.URL.Query().Get("user")),
		out:    make(chan Outbound, outboundBuffer),
		done:   make(chan struct{}),
	}
	if c.userID == "" {
		c.userID = c.chatID
	}
	s.register(c)
	defer s.unregister(c)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop(ctx, conn, c)
	}()

	c.push(Outbound{Type: "ready", ChatID: c.chatID})
	s.logger.Debug("websocket: connected", "chat", c.chatID, "remote", r.RemoteAddr)

	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var in Inbound
		if err := conn.ReadJSON(&in); err != nil {
			cancel()
			<-writerDone
			return
		}
		switch strings.ToLower(strings.TrimSpace(in.Type)) {
		case "ping":
			c.push(Outbound{Type: "pong"})
		case "message":
			msg := gencode.IncomingMessage{
				ID:     gencode.NewID(),
				ChatID: c.chatID,
				UserID: c.userID,
				Text:   in.Text,
			}
			select {
			case s.in <- msg:
			case <-ctx.Done():
				<-writerDone
				return
			}
		default:
			c.push(Outbound{Type: "error", Text: "unsupported frame type"})
		}
	}
}

func (s *Server) writeLoop(ctx context.Context, conn *websocket.Conn, c *client) {
	ticker := time.NewTicker(pingEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case out := <-c.out:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := conn.WriteJSON(out); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// push queues a frame without blocking. A full queue drops the frame.
func (c *client) push(out Outbound) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.out <- out:
		return true
	default:
		return false
	}
}

func (s *Server) register(c *client) {
	s.mu.Lock()
	s.clients[c.chatID] = c
	s.mu.Unlock()
}

func (s *Server) unregister(c *client) {
	s.mu.Lock()
	delete(s.clients, c.chatID)
	s.mu.Unlock()
	close(c.done)
	s.logger.Debug("websocket: disconnected", "chat", c.chatID)
}

func (s *Server) lookup(chatID string) (*client, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[chatID]
	return c, ok
}

// Poll returns incoming messages from all connections. The channel is closed
// when ctx is cancelled.
func (s *Server) Poll(ctx context.Context) (<-chan gencode.IncomingMessage, error) {
	ch := make(chan gencode.IncomingMessage)
	go func() {
		defer close(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-s.in:
				select {
				case ch <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch, nil
}

// Send queues text for the chat's connection and returns the frame ID.
func (s *Server) Send(_ context.Context, chatID string, text string) (string, error) {
	c, ok := s.lookup(chatID)
	if !ok {
		return "", ErrUnknownChat
	}
	id := gencode.NewID()
	if !c.push(Outbound{Type: "message", ID: id, Text: text}) {
		return "", errors.New("websocket: client not reading")
	}
	return id, nil
}

// SendTyping sends a typing frame. Unknown chats are ignored.
func (s *Server) SendTyping(_ context.Context, chatID string) error {
	if c, ok := s.lookup(chatID); ok {
		c.push(Outbound{Type: "typing"})
	}
	return nil
}
