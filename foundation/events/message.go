package events

// Message types exchanged with viewers over the websocket.
const (
	TypeCanvasState = "canvas_state"
	TypePixelUpdate = "pixel_update"
	TypePing        = "ping"
	TypePong        = "pong"
)

// Message is the JSON frame exchanged with viewers in both directions.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// PixelData carries a single pixel change inside a pixel_update frame.
type PixelData struct {
	X     int    `json:"x"`
	Y     int    `json:"y"`
	Color string `json:"color"`
}

// inbound is the client frame before the data payload is interpreted. The
// payload is kept loose since clients have been seen sending partial or
// malformed data sections.
type inbound struct {
	Type string    `json:"type"`
	Data PixelData `json:"data"`
}
