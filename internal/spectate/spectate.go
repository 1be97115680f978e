// Package spectate streams read-only game snapshots to WebSocket clients.
// Spectators never gain a write path: the feed only serializes what the
// engine's snapshot already exposes.
package spectate

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/minhqd/among-arena/internal/game"
)

// DefaultInterval is how often a snapshot frame is pushed to each client.
const DefaultInterval = 250 * time.Millisecond

// writeWait bounds a single frame write so one stuck client cannot pin its
// feed goroutine.
const writeWait = 5 * time.Second

// Snapshotter is the engine surface the feed needs.
type Snapshotter interface {
	Snapshot() game.Snapshot
	Done() <-chan struct{}
}

// Feed serves one game's spectator stream.
type Feed struct {
	source   Snapshotter
	interval time.Duration
	logger   *log.Logger
	upgrader websocket.Upgrader
}

// NewFeed creates a feed over a snapshot source.
func NewFeed(source Snapshotter, logger *log.Logger) *Feed {
	if logger == nil {
		logger = log.New(log.Writer(), "[spectate] ", log.LstdFlags)
	}
	return &Feed{
		source:   source,
		interval: DefaultInterval,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the connection and streams snapshots until the client
// leaves or the game finishes. After the final frame the connection closes
// normally.
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.logger.Printf("upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// Drain client frames so close messages are processed; spectators have
	// nothing to say.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-clientGone:
			return
		case <-f.source.Done():
			f.send(conn, f.source.Snapshot())
			deadline := time.Now().Add(writeWait)
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "game over"), deadline)
			return
		case <-ticker.C:
			if !f.send(conn, f.source.Snapshot()) {
				return
			}
		}
	}
}

// send writes one snapshot frame; false means the connection is gone.
func (f *Feed) send(conn *websocket.Conn, snap game.Snapshot) bool {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(snap); err != nil {
		return false
	}
	return true
}
