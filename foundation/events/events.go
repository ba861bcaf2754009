// Package events maintains the registry of live viewer connections and
// implements the canvas fan-out to every registered viewer.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kaspixel/kaspixel/foundation/canvas"
	"go.uber.org/zap"
)

// Conn represents the behavior a viewer connection must provide. The
// gorilla websocket connection implements this interface.
type Conn interface {
	WriteJSON(v any) error
	ReadJSON(v any) error
	SetReadDeadline(t time.Time) error
	Close() error
}

// socket wraps a connection with a write lock. Broadcast fan-outs and the
// session loop's ping/pong replies write from different goroutines and the
// underlying websocket allows only one concurrent writer.
type socket struct {
	conn Conn
	wmu  sync.Mutex
}

func (s *socket) WriteJSON(v any) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	return s.conn.WriteJSON(v)
}

func (s *socket) ReadJSON(v any) error {
	return s.conn.ReadJSON(v)
}

func (s *socket) SetReadDeadline(t time.Time) error {
	return s.conn.SetReadDeadline(t)
}

func (s *socket) Close() error {
	return s.conn.Close()
}

// Events maintains the mapping of unique id and connection so any state
// change can be fanned out to every live viewer.
type Events struct {
	log    *zap.SugaredLogger
	canvas *canvas.Canvas
	mu     sync.RWMutex
	conns  map[string]*socket

	// Serializes the mutate-then-send sequence of each broadcast so two
	// pixel updates can never interleave across viewers.
	bmu sync.Mutex

	readTimeout time.Duration
}

// New constructs an Events for registering connections and broadcasting
// canvas changes to them. A non-positive readTimeout selects the default.
func New(log *zap.SugaredLogger, cvs *canvas.Canvas, readTimeout time.Duration) *Events {
	if readTimeout <= 0 {
		readTimeout = defaultReadTimeout
	}

	return &Events{
		log:         log,
		canvas:      cvs,
		conns:       make(map[string]*socket),
		readTimeout: readTimeout,
	}
}

// Shutdown closes and removes all registered connections.
func (evt *Events) Shutdown() {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	for id, conn := range evt.conns {
		delete(evt.conns, id)
		conn.Close()
	}
}

// Register adds the specified connection to the registry and returns the
// unique id assigned to it. Registration always succeeds.
func (evt *Events) Register(conn Conn) string {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	id := uuid.NewString()
	evt.conns[id] = &socket{conn: conn}

	evt.log.Infow("events: register", "id", id, "connections", len(evt.conns))
	return id
}

// Unregister removes the specified connection from the registry. Unknown
// ids are a silent no-op so cleanup paths can run unconditionally.
func (evt *Events) Unregister(id string) {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	if _, exists := evt.conns[id]; !exists {
		return
	}

	delete(evt.conns, id)
	evt.log.Infow("events: unregister", "id", id, "connections", len(evt.conns))
}

// Copy returns a point-in-time copy of the registry so an in-flight
// fan-out can't be corrupted by a concurrent unregister.
func (evt *Events) Copy() map[string]Conn {
	evt.mu.RLock()
	defer evt.mu.RUnlock()

	conns := make(map[string]Conn, len(evt.conns))
	for id, sck := range evt.conns {
		conns[id] = sck
	}

	return conns
}

// lookup returns the wrapped socket for the specified id.
func (evt *Events) lookup(id string) (*socket, bool) {
	evt.mu.RLock()
	defer evt.mu.RUnlock()

	sck, exists := evt.conns[id]
	return sck, exists
}

// Len returns the number of live connections.
func (evt *Events) Len() int {
	evt.mu.RLock()
	defer evt.mu.RUnlock()

	return len(evt.conns)
}
