package events

// BroadcastPixel applies the specified pixel to the canvas and fans the
// update out to every registered connection. Out-of-bounds coordinates are
// logged and dropped with no state change. Any connection that fails to
// accept the message is unregistered after the fan-out pass.
func (evt *Events) BroadcastPixel(x int, y int, color string) {
	evt.bmu.Lock()
	defer evt.bmu.Unlock()

	if err := evt.canvas.Set(x, y, color); err != nil {
		evt.log.Infow("events: broadcast pixel rejected", "x", x, "y", y, "ERROR", err)
		return
	}

	msg := Message{
		Type: TypePixelUpdate,
		Data: PixelData{X: x, Y: y, Color: color},
	}

	evt.send(msg)
}

// BroadcastCanvas sends the current full canvas snapshot to every
// registered connection. It does not clear the canvas; callers wiping the
// board must clear it first.
func (evt *Events) BroadcastCanvas() {
	evt.bmu.Lock()
	defer evt.bmu.Unlock()

	msg := Message{
		Type: TypeCanvasState,
		Data: evt.canvas.Copy(),
	}

	evt.send(msg)
}

// SendCanvasState sends the current full canvas snapshot to the one
// specified connection. Used to seed a newly connected viewer.
func (evt *Events) SendCanvasState(conn Conn) error {
	msg := Message{
		Type: TypeCanvasState,
		Data: evt.canvas.Copy(),
	}

	return conn.WriteJSON(msg)
}

// send fans the specified message out to a snapshot of the registry and
// prunes every connection whose send failed. A failed send is the most
// direct signal of a dead peer, so no extra liveness bookkeeping is kept
// here.
func (evt *Events) send(msg Message) {
	conns := evt.Copy()

	var failed []string
	for id, conn := range conns {
		if err := conn.WriteJSON(msg); err != nil {
			evt.log.Infow("events: send failed", "id", id, "ERROR", err)
			failed = append(failed, id)
		}
	}

	for _, id := range failed {
		evt.Unregister(id)
	}
}
