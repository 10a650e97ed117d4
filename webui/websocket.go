package webui

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"alterego/logging"
	"alterego/orchestrator"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// SnapshotSource is implemented by *orchestrator.Orchestrator.
type SnapshotSource interface {
	Subscribe(buffer int) (<-chan orchestrator.Snapshot, func())
}

// StreamerConfig tunes the websocket connections.
type StreamerConfig struct {
	PingInterval time.Duration
	PongWait     time.Duration
	WriteWait    time.Duration
	// MaxMessageSize caps client frames; clients only send control frames
	MaxMessageSize int64
	// SubscriberBuffer is passed to Subscribe
	SubscriberBuffer int
}

// DefaultStreamerConfig returns the defaults used by the server.
func DefaultStreamerConfig() StreamerConfig {
	return StreamerConfig{
		PingInterval:     30 * time.Second,
		PongWait:         60 * time.Second,
		WriteWait:        10 * time.Second,
		MaxMessageSize:   512,
		SubscriberBuffer: 1,
	}
}

// SnapshotStreamer serves /ws. Each connection gets its own orchestrator
// subscription, so a slow client only ever lags behind to the newest
// snapshot and never holds up the others.
type SnapshotStreamer struct {
	source   SnapshotSource
	config   StreamerConfig
	logger   *logging.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	conns   map[*websocket.Conn]struct{}
	closed  bool
	clients atomic.Int64
}

// NewSnapshotStreamer creates a streamer over source.
func NewSnapshotStreamer(source SnapshotSource, config StreamerConfig, logger *logging.Logger) *SnapshotStreamer {
	if logger == nil {
		logger = logging.NewNop()
	}
	defaults := DefaultStreamerConfig()
	if config.PingInterval <= 0 {
		config.PingInterval = defaults.PingInterval
	}
	if config.PongWait <= config.PingInterval {
		config.PongWait = 2 * config.PingInterval
	}
	if config.WriteWait <= 0 {
		config.WriteWait = defaults.WriteWait
	}
	if config.MaxMessageSize <= 0 {
		config.MaxMessageSize = defaults.MaxMessageSize
	}
	return &SnapshotStreamer{
		source: source,
		config: config,
		logger: logger.Named("ws"),
		conns:  make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// same-origin deployment; the token check runs before the upgrade
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// HandleConnection upgrades the request and streams snapshots until the
// client goes away or the subscription ends.
func (s *SnapshotStreamer) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Websocket upgrade failed", zap.String("remote_addr", getClientIP(r)), zap.Error(err))
		return
	}
	if !s.track(conn) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(s.config.WriteWait))
		conn.Close()
		return
	}

	snaps, unsubscribe := s.source.Subscribe(s.config.SubscriberBuffer)
	remote := getClientIP(r)
	s.logger.Debug("Client connected", zap.String("remote_addr", remote), zap.Int64("clients", s.ClientCount()))

	gone := make(chan struct{})
	go s.readPump(conn, gone)
	s.writePump(conn, snaps, gone)

	unsubscribe()
	s.untrack(conn)
	s.logger.Debug("Client disconnected", zap.String("remote_addr", remote), zap.Int64("clients", s.ClientCount()))
}

func (s *SnapshotStreamer) track(conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	s.clients.Add(1)
	return true
}

func (s *SnapshotStreamer) untrack(conn *websocket.Conn) {
	s.mu.Lock()
	if _, ok := s.conns[conn]; ok {
		delete(s.conns, conn)
		s.clients.Add(-1)
	}
	s.mu.Unlock()
	conn.Close()
}

// readPump discards client frames and keeps the read deadline fresh on
// pongs. It closes gone when the connection fails.
func (s *SnapshotStreamer) readPump(conn *websocket.Conn, gone chan<- struct{}) {
	defer close(gone)
	conn.SetReadLimit(s.config.MaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(s.config.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.config.PongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				s.logger.Debug("Unexpected websocket close", zap.Error(err))
			}
			return
		}
	}
}

// writePump is the only writer on conn.
func (s *SnapshotStreamer) writePump(conn *websocket.Conn, snaps <-chan orchestrator.Snapshot, gone <-chan struct{}) {
	ping := time.NewTicker(s.config.PingInterval)
	defer ping.Stop()

	for {
		select {
		case <-gone:
			return
		case snap, ok := <-snaps:
			if !ok {
				s.writeClose(conn)
				return
			}
			if err := s.writeMessage(conn, NewSnapshotMessage(snap)); err != nil {
				s.logger.Debug("Websocket write failed", zap.Error(err))
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.config.WriteWait)); err != nil {
				return
			}
		}
	}
}

func (s *SnapshotStreamer) writeMessage(conn *websocket.Conn, msg WSMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(s.config.WriteWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// writeClose sends the shutdown envelope and a going-away close frame.
func (s *SnapshotStreamer) writeClose(conn *websocket.Conn) {
	_ = s.writeMessage(conn, NewShutdownMessage())
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
		time.Now().Add(s.config.WriteWait))
}

// ClientCount returns the number of open connections.
func (s *SnapshotStreamer) ClientCount() int64 {
	return s.clients.Load()
}

// Close refuses new connections and closes the open ones. Their handlers
// notice through the read pump and unsubscribe.
func (s *SnapshotStreamer) Close() {
	s.mu.Lock()
	s.closed = true
	conns := make([]*websocket.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}
