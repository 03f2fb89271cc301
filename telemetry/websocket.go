package telemetry

import (
	"net/http"
	"sync"
	"time"

	"github.com/edaniels/golog"
	"github.com/gorilla/websocket"
	goutils "go.viam.com/utils"
)

const writeTimeout = time.Second

// Streamer broadcasts snapshots to websocket clients as JSON. Publish is
// nonblocking: it stores the latest snapshot and nudges a broadcaster
// goroutine through a coalescing slot, so a slow client can never stall the
// control loop.
type Streamer struct {
	logger   golog.Logger
	upgrader websocket.Upgrader

	mu     sync.Mutex
	conns  map[*websocket.Conn]bool
	latest Snapshot
	dirty  chan struct{}

	activeBackgroundWorkers sync.WaitGroup
	closed                  chan struct{}
	closeOnce               sync.Once
}

// NewStreamer creates a streamer and starts its broadcaster.
func NewStreamer(logger golog.Logger) *Streamer {
	s := &Streamer{
		logger: logger,
		conns:  make(map[*websocket.Conn]bool),
		dirty:  make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
	s.activeBackgroundWorkers.Add(1)
	goutils.ManagedGo(s.broadcast, s.activeBackgroundWorkers.Done)
	return s
}

// ServeHTTP upgrades the request to a websocket and registers the client.
func (s *Streamer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnw("websocket upgrade failed", "error", err)
		return
	}
	s.mu.Lock()
	s.conns[conn] = true
	s.mu.Unlock()

	// drain client messages to observe close; the stream is write-only
	s.activeBackgroundWorkers.Add(1)
	goutils.ManagedGo(func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.drop(conn)
				return
			}
		}
	}, s.activeBackgroundWorkers.Done)
}

// Publish stores the snapshot for broadcast. Never blocks.
func (s *Streamer) Publish(snap Snapshot) {
	s.mu.Lock()
	s.latest = snap
	s.mu.Unlock()
	select {
	case s.dirty <- struct{}{}:
	default:
	}
}

func (s *Streamer) broadcast() {
	for {
		select {
		case <-s.closed:
			return
		case <-s.dirty:
		}
		s.mu.Lock()
		snap := s.latest
		conns := make([]*websocket.Conn, 0, len(s.conns))
		for c := range s.conns {
			conns = append(conns, c)
		}
		s.mu.Unlock()
		for _, conn := range conns {
			if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				s.drop(conn)
				continue
			}
			if err := conn.WriteJSON(snap); err != nil {
				s.drop(conn)
			}
		}
	}
}

func (s *Streamer) drop(conn *websocket.Conn) {
	s.mu.Lock()
	if _, ok := s.conns[conn]; ok {
		delete(s.conns, conn)
		conn.Close()
	}
	s.mu.Unlock()
}

// Close disconnects all clients and stops the broadcaster.
func (s *Streamer) Close() {
	s.closeOnce.Do(func() { close(s.closed) })
	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
		delete(s.conns, conn)
	}
	s.mu.Unlock()
	s.activeBackgroundWorkers.Wait()
}
