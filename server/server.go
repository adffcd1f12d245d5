// Package server exposes a session over a JSON method channel on WebSocket,
// the request/response and event-push surface a reader UI talks to.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/grandcat/zeroconf"
	"github.com/sirupsen/logrus"

	"github.com/srg/uhfsession/internal/groutine"
)

const (
	shutdownTimeout   = 5 * time.Second
	streamStopTimeout = 2 * time.Second
	defaultBuffer     = 128
)

// Config holds the server configuration
type Config struct {
	Listen       string
	MDNSEnabled  bool
	MDNSName     string
	StreamBuffer int
	Logger       *logrus.Logger
}

// Server serves the method channel.
type Server struct {
	session  Session
	cfg      Config
	logger   *logrus.Logger
	registry *Registry
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[string]*client
	// owners maps a stream name to the client that receives its events.
	owners map[string]*client
	// closing is set once shutdown begins; no wg.Add happens after it.
	closing bool

	wg sync.WaitGroup
}

// New creates a server for sess.
func New(sess Session, cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.StreamBuffer <= 0 {
		cfg.StreamBuffer = defaultBuffer
	}

	s := &Server{
		session:  sess,
		cfg:      cfg,
		logger:   cfg.Logger,
		registry: NewRegistry(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[string]*client),
		owners:  make(map[string]*client),
	}
	s.registerMethods()
	return s
}

// Methods lists the method names the server answers.
func (s *Server) Methods() []string {
	return s.registry.Methods()
}

// Handler returns the HTTP routes: the WebSocket endpoint and a health check.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(wsPath, s.handleWebSocket)
	mux.HandleFunc(healthPath, s.handleHealth)
	return mux
}

// ListenAndServe listens on the configured address and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Listen, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then closes every client.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{Handler: s.Handler()}

	if s.cfg.MDNSEnabled {
		mdns, err := s.registerMDNS(ln.Addr())
		if err != nil {
			s.logger.WithError(err).Warn("mDNS advertisement unavailable")
		} else {
			defer mdns.Shutdown()
		}
	}

	serveErr := make(chan error, 1)
	groutine.Go(ctx, "http-serve", func(context.Context) {
		s.logger.WithField("addr", ln.Addr().String()).Info("Method channel listening")
		serveErr <- httpServer.Serve(ln)
	})

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			s.closeClients()
			s.wg.Wait()
			return fmt.Errorf("serve: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.WithError(err).Warn("HTTP shutdown error")
	}
	s.closeClients()
	s.wg.Wait()
	s.logger.Info("Method channel stopped")
	return nil
}

func (s *Server) registerMDNS(addr net.Addr) (*zeroconf.Server, error) {
	tcp, ok := addr.(*net.TCPAddr)
	if !ok {
		return nil, fmt.Errorf("unsupported listener address %s", addr)
	}

	txt := []string{
		"version=1.0",
		"protocol=websocket",
		"path=" + wsPath,
	}
	mdns, err := zeroconf.Register(s.cfg.MDNSName, MDNSServiceType, MDNSDomain, tcp.Port, txt, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register mDNS service: %w", err)
	}
	s.logger.WithFields(logrus.Fields{
		"name": s.cfg.MDNSName,
		"port": tcp.Port,
	}).Info("mDNS service registered")
	return mdns, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":    "ok",
		"clients":   s.clientCount(),
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Warn("WebSocket upgrade error")
		return
	}

	c := newClient(context.Background(), conn, s.cfg.StreamBuffer, s.logger)
	if !s.addClient(c) {
		c.close()
		return
	}
	defer s.wg.Done()
	c.logger.WithField("remote", r.RemoteAddr).Info("Client connected")

	groutine.Go(c.ctx, "ws-events", c.writeEvents)

	defer func() {
		s.removeClient(c)
		c.close()
		c.logger.Info("Client disconnected")
	}()

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		s.dispatch(c, message)
	}
}

// dispatch parses one request and runs its handler on a separate goroutine,
// so a long request does not hold up the connection.
func (s *Server) dispatch(c *client, message []byte) {
	var req Request
	if err := json.Unmarshal(message, &req); err != nil {
		c.logger.WithError(err).Debug("Failed to parse request")
		c.reply(errorReply("", &MethodError{Code: CodeParseError, Msg: "invalid message format"}))
		return
	}
	if req.Method == "" {
		c.reply(errorReply(req.ID, &MethodError{Code: CodeParseError, Msg: "method is required"}))
		return
	}

	fn, ok := s.registry.Get(req.Method)
	if !ok {
		c.reply(errorReply(req.ID, &MethodError{Code: CodeNotImplemented, Msg: fmt.Sprintf("unknown method: %s", req.Method)}))
		return
	}

	if !s.track() {
		return
	}
	groutine.Go(c.ctx, "ws-"+req.Method, func(ctx context.Context) {
		defer s.wg.Done()

		result, err := fn(ctx, c, req.Arguments)
		if err != nil {
			c.logger.WithError(err).WithField("method", req.Method).Debug("Method failed")
			c.reply(errorReply(req.ID, err))
			return
		}
		c.reply(resultReply(req.ID, result))
	})
}

// addClient registers c and counts its connection as running work. It
// refuses once the server is closing.
func (s *Server) addClient(c *client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.wg.Add(1)
	s.clients[c.id] = c
	return true
}

// track counts one unit of running work unless the server is closing.
func (s *Server) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.wg.Add(1)
	return true
}

// removeClient forgets c and stops every stream it owned.
func (s *Server) removeClient(c *client) {
	s.mu.Lock()
	delete(s.clients, c.id)
	var owned []string
	for stream, owner := range s.owners {
		if owner == c {
			owned = append(owned, stream)
			delete(s.owners, stream)
		}
	}
	s.mu.Unlock()

	if len(owned) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), streamStopTimeout)
	defer cancel()
	for _, stream := range owned {
		var err error
		switch stream {
		case StreamDevices:
			_, err = s.session.StopScan(ctx)
		case StreamTags:
			_, err = s.session.StopTagInventory(ctx)
		case StreamConnectivity:
			err = s.session.StopConnectivityPoll(ctx)
		}
		if err != nil {
			c.logger.WithError(err).WithField("stream", stream).Debug("Failed to stop orphaned stream")
		}
	}
}

func (s *Server) closeClients() {
	s.mu.Lock()
	s.closing = true
	clients := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}

func (s *Server) clientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// claim routes stream's events to c from now on.
func (s *Server) claim(stream string, c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.owners[stream] = c
}

// disown drops the owner of stream. A nil c drops any owner.
func (s *Server) disown(stream string, c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if owner, ok := s.owners[stream]; ok && (c == nil || owner == c) {
		delete(s.owners, stream)
	}
}
