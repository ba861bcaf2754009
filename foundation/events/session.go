package events

import (
	"encoding/json"
	"errors"
	"time"
)

// defaultReadTimeout is how long a session tolerates silence from a peer
// before the liveness probe must have proven the connection healthy.
const defaultReadTimeout = 30 * time.Second

// Run drives one viewer connection through its full lifetime: registry
// admission, initial canvas sync, the serve loop, and cleanup. Whatever
// path the session exits on, the connection is unregistered.
func (evt *Events) Run(conn Conn) {
	id := evt.Register(conn)
	defer evt.Unregister(id)

	sck, exists := evt.lookup(id)
	if !exists {
		return
	}

	if err := evt.SendCanvasState(sck); err != nil {
		evt.log.Infow("events: session: initial state send failed", "id", id, "ERROR", err)
		return
	}

	evt.serve(id, sck)
}

// serve processes inbound messages until the peer disconnects or stops
// accepting liveness probes. Read errors on the underlying websocket are
// permanent, so the loop never tries to read past one; the probe
// goroutine keeps the read deadline ahead of the clock for as long as
// the peer accepts pings, and a quiet but healthy viewer is never
// dropped.
func (evt *Events) serve(id string, sck *socket) {
	shut := make(chan struct{})
	defer close(shut)

	go evt.probe(id, sck, shut)

	evt.extendReadDeadline(id, sck)

	for {
		var msg inbound
		if err := sck.ReadJSON(&msg); err != nil {
			if isMalformed(err) {

				// A full frame arrived, it just wasn't a valid message.
				// The peer is alive and the read path is intact.
				evt.log.Infow("events: session: malformed message ignored", "id", id, "ERROR", err)
				evt.extendReadDeadline(id, sck)
				continue
			}

			evt.log.Infow("events: session: disconnected", "id", id, "ERROR", err)
			return
		}

		evt.extendReadDeadline(id, sck)

		switch msg.Type {
		case TypePixelUpdate:
			evt.BroadcastPixel(msg.Data.X, msg.Data.Y, msg.Data.Color)

		case TypePing:
			if err := sck.WriteJSON(Message{Type: TypePong}); err != nil {
				evt.log.Infow("events: session: pong failed", "id", id, "ERROR", err)
				return
			}

		default:
			// Non-pixel, non-ping messages are not fatal.
		}
	}
}

// probe pings the peer once per timeout interval. A ping the connection
// accepts proves it can still carry traffic, so the read deadline gets
// pushed forward; a ping it refuses means the peer is gone, and closing
// the connection releases the blocked read in serve.
func (evt *Events) probe(id string, sck *socket, shut chan struct{}) {
	ticker := time.NewTicker(evt.readTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := sck.WriteJSON(Message{Type: TypePing}); err != nil {
				evt.log.Infow("events: session: ping probe failed", "id", id, "ERROR", err)
				sck.Close()
				return
			}
			evt.extendReadDeadline(id, sck)

		case <-shut:
			return
		}
	}
}

// extendReadDeadline pushes the receive deadline past the next probe
// cycle so the deadline only ever expires if the probe stalled.
func (evt *Events) extendReadDeadline(id string, sck *socket) {
	if err := sck.SetReadDeadline(time.Now().Add(2 * evt.readTimeout)); err != nil {
		evt.log.Infow("events: session: set read deadline failed", "id", id, "ERROR", err)
	}
}

// isMalformed reports whether the read delivered a frame that isn't valid
// JSON for the expected message form.
func isMalformed(err error) bool {
	var syntax *json.SyntaxError
	var unmarshal *json.UnmarshalTypeError
	return errors.As(err, &syntax) || errors.As(err, &unmarshal)
}
