// Package feed streams director events to WebSocket subscribers as JSON.
// Graph editors and debugger frontends connect to follow a running daemon
// without attaching to the operator console.
package feed

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cueworks/stagehand/internal/config"
	"github.com/cueworks/stagehand/internal/director"
)

// keepaliveInterval is how often idle client connections are pinged.
const keepaliveInterval = 54 * time.Second

// shutdownTimeout bounds how long Stop waits for the HTTP server to drain.
const shutdownTimeout = 5 * time.Second

// Feed fans director events out to WebSocket clients. Start blocks serving
// until Stop is called, so a Feed slots into the server lifecycle directly.
type Feed struct {
	cfg config.FeedConfig
	d   *director.Director
	log *zap.Logger

	upgrader websocket.Upgrader
	srv      *http.Server

	mu       sync.Mutex
	clients  map[*client]struct{}
	listener net.Listener
	running  bool

	events chan director.Event
	quit   chan struct{}
	wg     sync.WaitGroup
}

// client is one connected subscriber with its own outbound queue.
type client struct {
	conn *websocket.Conn
	send chan director.Event
}

// New creates a Feed over the given director.
//
// Precondition: d and logger must be non-nil; cfg should be validated.
func New(cfg config.FeedConfig, d *director.Director, logger *zap.Logger) *Feed {
	f := &Feed{
		cfg: cfg,
		d:   d,
		log: logger,
		upgrader: websocket.Upgrader{
			// Editor frontends connect from file:// and dev-server origins.
			// The feed binds to localhost in every shipped config.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
		events:  make(chan director.Event, cfg.Buffer),
		quit:    make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(cfg.Path, f.handleWS)
	f.srv = &http.Server{
		Addr:    cfg.Addr(),
		Handler: mux,
	}
	return f
}

// Start subscribes to the director and serves WebSocket upgrades.
//
// Postcondition: Blocks until Stop is called or the listener fails.
func (f *Feed) Start() error {
	ln, err := net.Listen("tcp", f.cfg.Addr())
	if err != nil {
		return fmt.Errorf("feed listening on %s: %w", f.cfg.Addr(), err)
	}

	f.mu.Lock()
	f.listener = ln
	f.running = true
	f.mu.Unlock()

	f.d.Subscribe(f.events)

	f.wg.Add(1)
	go f.fanOut()

	f.log.Info("feed listening",
		zap.String("addr", ln.Addr().String()),
		zap.String("path", f.cfg.Path),
	)

	err = f.srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop unsubscribes from the director, shuts the server down, and closes
// every client connection.
func (f *Feed) Stop() {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return
	}
	f.running = false
	f.mu.Unlock()

	f.d.Unsubscribe(f.events)
	close(f.quit)
	f.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = f.srv.Shutdown(ctx)

	f.mu.Lock()
	for c := range f.clients {
		delete(f.clients, c)
		close(c.send)
	}
	f.mu.Unlock()

	f.log.Info("feed stopped")
}

// Addr returns the actual listening address, or empty string if not yet listening.
func (f *Feed) Addr() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listener != nil {
		return f.listener.Addr().String()
	}
	return ""
}

// IsRunning reports whether the feed is accepting connections.
func (f *Feed) IsRunning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

// ClientCount reports how many subscribers are connected.
func (f *Feed) ClientCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

// fanOut moves events from the director subscription to every client queue.
func (f *Feed) fanOut() {
	defer f.wg.Done()
	for {
		select {
		case <-f.quit:
			return
		case ev := <-f.events:
			f.broadcast(ev)
		}
	}
}

// broadcast queues one event on every client. A client whose queue is full
// is dropped rather than allowed to stall the engine.
func (f *Feed) broadcast(ev director.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for c := range f.clients {
		select {
		case c.send <- ev:
		default:
			delete(f.clients, c)
			close(c.send)
			f.log.Warn("feed client dropped, send queue full",
				zap.String("remote_addr", c.conn.RemoteAddr().String()),
			)
		}
	}
}

// remove unregisters a client after its reader exits. Safe to call for a
// client that broadcast or Stop already dropped.
func (f *Feed) remove(c *client) {
	f.mu.Lock()
	if _, ok := f.clients[c]; ok {
		delete(f.clients, c)
		close(c.send)
	}
	f.mu.Unlock()
	_ = c.conn.Close()
}

// handleWS upgrades one HTTP request and pumps events until the client
// disconnects.
func (f *Feed) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{
		conn: conn,
		send: make(chan director.Event, f.cfg.Buffer),
	}

	f.mu.Lock()
	f.clients[c] = struct{}{}
	count := len(f.clients)
	f.mu.Unlock()

	f.log.Info("feed client connected",
		zap.String("remote_addr", conn.RemoteAddr().String()),
		zap.Int("clients", count),
	)

	go f.writePump(c)
	f.readPump(c)

	f.log.Info("feed client disconnected",
		zap.String("remote_addr", conn.RemoteAddr().String()),
	)
}

// readPump drains inbound frames. The feed is one-directional; reads only
// detect disconnects and answer control frames.
func (f *Feed) readPump(c *client) {
	defer f.remove(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				f.log.Debug("feed client read error", zap.Error(err))
			}
			return
		}
	}
}

// writePump writes queued events and keepalive pings to one client.
func (f *Feed) writePump(c *client) {
	ticker := time.NewTicker(keepaliveInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(f.cfg.WriteTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(f.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
