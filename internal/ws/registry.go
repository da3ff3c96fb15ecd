// Package ws delivers push events to websocket clients and runs the
// translate_multi message protocol.
package ws

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/appknox/ak-translator/internal/logging"
	"github.com/appknox/ak-translator/internal/metrics"
	"github.com/appknox/ak-translator/internal/orchestrator"
)

// ErrClientNotConnected is returned when sending to an unknown client id.
var ErrClientNotConnected = errors.New("client not connected")

// Conn is the part of *websocket.Conn the registry writes through.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

type client struct {
	conn Conn
	mu   sync.Mutex // gorilla allows one concurrent writer
}

func (c *client) write(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

// Registry maps client ids to open connections. It is safe for concurrent
// use by the connection handlers and any number of dispatcher goroutines.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*client
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewRegistry(logger *zap.Logger, m *metrics.Metrics) *Registry {
	return &Registry{
		clients: make(map[string]*client),
		logger:  logging.OrNop(logger),
		metrics: m,
	}
}

// Connect registers conn under id, closing any connection it replaces.
func (r *Registry) Connect(id string, conn Conn) {
	r.mu.Lock()
	old, replaced := r.clients[id]
	r.clients[id] = &client{conn: conn}
	total := len(r.clients)
	r.mu.Unlock()

	if replaced {
		_ = old.conn.Close()
	} else {
		r.metrics.ConnectionOpened()
	}
	r.logger.Info("client connected", zap.String("client_id", id), zap.Int("connections", total))
}

// Disconnect removes and closes id's connection.
func (r *Registry) Disconnect(id string) bool {
	r.mu.Lock()
	c, ok := r.clients[id]
	delete(r.clients, id)
	total := len(r.clients)
	r.mu.Unlock()
	if !ok {
		return false
	}

	_ = c.conn.Close()
	r.metrics.ConnectionClosed()
	r.logger.Info("client disconnected", zap.String("client_id", id), zap.Int("connections", total))
	return true
}

// remove drops c only if it is still the connection registered for id.
func (r *Registry) remove(id string, c *client) {
	r.mu.Lock()
	current, ok := r.clients[id]
	if ok && current == c {
		delete(r.clients, id)
	}
	r.mu.Unlock()
	if ok && current == c {
		_ = c.conn.Close()
		r.metrics.ConnectionClosed()
	}
}

// detach removes id only while it is still bound to conn, so a handler whose
// connection was replaced does not unregister its successor.
func (r *Registry) detach(id string, conn Conn) {
	r.mu.RLock()
	c, ok := r.clients[id]
	r.mu.RUnlock()
	if ok && c.conn == conn {
		r.remove(id, c)
		r.logger.Info("client disconnected", zap.String("client_id", id), zap.Int("connections", r.Count()))
	}
}

// Send writes msg as JSON to id. An unknown id is logged and reported as
// ErrClientNotConnected; a failed write also disconnects the client.
func (r *Registry) Send(id string, msg any) error {
	r.mu.RLock()
	c, ok := r.clients[id]
	r.mu.RUnlock()
	if !ok {
		r.logger.Debug("dropping message for disconnected client", zap.String("client_id", id))
		return ErrClientNotConnected
	}

	if err := c.write(msg); err != nil {
		r.logger.Warn("failed to send to client, disconnecting", zap.String("client_id", id), zap.Error(err))
		r.remove(id, c)
		return fmt.Errorf("failed to send to %s: %w", id, err)
	}
	return nil
}

// Notify implements orchestrator.Notifier. Events for clients that have gone
// away are dropped silently.
func (r *Registry) Notify(ctx context.Context, clientID string, ev orchestrator.Event) error {
	err := r.Send(clientID, ev)
	if errors.Is(err, ErrClientNotConnected) {
		return nil
	}
	return err
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Clients returns the connected ids, sorted.
func (r *Registry) Clients() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}
