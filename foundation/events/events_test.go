package events_test

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kaspixel/kaspixel/foundation/canvas"
	"github.com/kaspixel/kaspixel/foundation/events"
	"go.uber.org/zap"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

// =============================================================================

// timeoutError mimics the deadline error a real websocket read produces.
type timeoutError struct{}

func (timeoutError) Error() string   { return "read deadline exceeded" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// fakeConn scripts the behavior of a viewer connection. Reads run through
// the provided script; once the script is exhausted every read returns
// sticky, matching the real websocket contract where a read error is
// permanent. With no sticky error, reads block until the connection is
// closed, which is how a quiet but healthy peer behaves. Writes succeed
// until failAfter messages have been written, or always when failAfter
// is -1.
type fakeConn struct {
	mu        sync.Mutex
	wrote     []events.Message
	failAfter int
	reads     []func(v any) error
	readIdx   int
	sticky    error
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		failAfter: -1,
		sticky:    errors.New("connection closed"),
		closed:    make(chan struct{}),
	}
}

func (c *fakeConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.failAfter >= 0 && len(c.wrote) >= c.failAfter {
		return errors.New("write on closed connection")
	}

	msg, ok := v.(events.Message)
	if !ok {
		return errors.New("unexpected message type")
	}

	c.wrote = append(c.wrote, msg)
	return nil
}

func (c *fakeConn) ReadJSON(v any) error {
	c.mu.Lock()
	if c.readIdx < len(c.reads) {
		read := c.reads[c.readIdx]
		c.readIdx++
		c.mu.Unlock()
		return read(v)
	}
	sticky := c.sticky
	c.mu.Unlock()

	if sticky != nil {
		return sticky
	}

	<-c.closed
	return errors.New("connection closed")
}

func (c *fakeConn) SetReadDeadline(t time.Time) error { return nil }

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) messages() []events.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	msgs := make([]events.Message, len(c.wrote))
	copy(msgs, c.wrote)
	return msgs
}

// pings counts the ping frames the connection received.
func (c *fakeConn) pings() int {
	var n int
	for _, msg := range c.messages() {
		if msg.Type == events.TypePing {
			n++
		}
	}
	return n
}

// readFrame scripts one inbound frame from its JSON form.
func readFrame(frame string) func(v any) error {
	return func(v any) error {
		return json.Unmarshal([]byte(frame), v)
	}
}

func newEvents(width int, height int, readTimeout time.Duration) (*events.Events, *canvas.Canvas) {
	cvs := canvas.New(width, height)
	return events.New(zap.NewNop().Sugar(), cvs, readTimeout), cvs
}

// =============================================================================

func Test_BroadcastPixel(t *testing.T) {
	t.Log("Given the need to fan a pixel update out to every viewer.")
	{
		t.Logf("\tTest 0:\tWhen broadcasting (5,5) on a 1000x1000 board.")
		{
			evts, cvs := newEvents(1000, 1000, 0)

			c1 := newFakeConn()
			c2 := newFakeConn()
			evts.Register(c1)
			evts.Register(c2)

			evts.BroadcastPixel(5, 5, "#ff0000")

			if cvs.Copy()[canvas.Key(5, 5)] != "#ff0000" {
				t.Fatalf("\t%s\tTest 0:\tShould apply the pixel to the board.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould apply the pixel to the board.", success)

			for i, c := range []*fakeConn{c1, c2} {
				msgs := c.messages()
				if len(msgs) != 1 || msgs[0].Type != events.TypePixelUpdate {
					t.Fatalf("\t%s\tTest 0:\tShould deliver one pixel_update to conn %d: %+v", failed, i, msgs)
				}

				data, ok := msgs[0].Data.(events.PixelData)
				if !ok || data.X != 5 || data.Y != 5 || data.Color != "#ff0000" {
					t.Fatalf("\t%s\tTest 0:\tShould carry the pixel data to conn %d: %+v", failed, i, msgs[0].Data)
				}
			}
			t.Logf("\t%s\tTest 0:\tShould deliver the pixel_update to every viewer.", success)
		}

		t.Logf("\tTest 1:\tWhen broadcasting out-of-bounds (1000,5).")
		{
			evts, cvs := newEvents(1000, 1000, 0)

			c1 := newFakeConn()
			evts.Register(c1)

			evts.BroadcastPixel(1000, 5, "#ff0000")

			if cvs.Len() != 0 {
				t.Fatalf("\t%s\tTest 1:\tShould leave the board unchanged: len %d", failed, cvs.Len())
			}
			t.Logf("\t%s\tTest 1:\tShould leave the board unchanged.", success)

			if len(c1.messages()) != 0 {
				t.Fatalf("\t%s\tTest 1:\tShould send nothing to viewers: %+v", failed, c1.messages())
			}
			t.Logf("\t%s\tTest 1:\tShould send nothing to viewers.", success)
		}
	}
}

func Test_PruneOnSendFailure(t *testing.T) {
	t.Log("Given the need to drop viewers whose sends fail.")
	{
		t.Logf("\tTest 0:\tWhen one of two viewers rejects a broadcast.")
		{
			evts, _ := newEvents(100, 100, 0)

			healthy := newFakeConn()
			dead := newFakeConn()
			dead.failAfter = 0

			evts.Register(healthy)
			evts.Register(dead)

			evts.BroadcastPixel(1, 2, "#abcdef")

			if evts.Len() != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould have pruned the failing viewer: len %d", failed, evts.Len())
			}
			t.Logf("\t%s\tTest 0:\tShould have pruned the failing viewer.", success)

			if len(healthy.messages()) != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould still deliver to the healthy viewer.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould still deliver to the healthy viewer.", success)
		}
	}
}

func Test_DoubleUnregister(t *testing.T) {
	t.Log("Given the need to run cleanup paths unconditionally.")
	{
		t.Logf("\tTest 0:\tWhen unregistering the same id twice.")
		{
			evts, _ := newEvents(100, 100, 0)

			id := evts.Register(newFakeConn())
			evts.Unregister(id)
			evts.Unregister(id)

			if evts.Len() != 0 {
				t.Fatalf("\t%s\tTest 0:\tShould have no connections left: len %d", failed, evts.Len())
			}
			t.Logf("\t%s\tTest 0:\tShould have no connections left.", success)
		}
	}
}

func Test_Session(t *testing.T) {
	t.Log("Given the need to run full viewer sessions.")
	{
		t.Logf("\tTest 0:\tWhen a viewer sends a pixel update and disconnects.")
		{
			evts, cvs := newEvents(1000, 1000, 0)

			conn := newFakeConn()
			conn.reads = []func(v any) error{
				readFrame(`{"type":"pixel_update","data":{"x":7,"y":8,"color":"#00ff00"}}`),
			}

			evts.Run(conn)

			if cvs.Copy()[canvas.Key(7, 8)] != "#00ff00" {
				t.Fatalf("\t%s\tTest 0:\tShould apply the viewer's pixel.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould apply the viewer's pixel.", success)

			msgs := conn.messages()
			if len(msgs) != 2 || msgs[0].Type != events.TypeCanvasState || msgs[1].Type != events.TypePixelUpdate {
				t.Fatalf("\t%s\tTest 0:\tShould receive initial state then the echo: %+v", failed, msgs)
			}
			t.Logf("\t%s\tTest 0:\tShould receive initial state then the echo.", success)

			if evts.Len() != 0 {
				t.Fatalf("\t%s\tTest 0:\tShould unregister on disconnect: len %d", failed, evts.Len())
			}
			t.Logf("\t%s\tTest 0:\tShould unregister on disconnect.", success)
		}

		t.Logf("\tTest 1:\tWhen a viewer pings.")
		{
			evts, _ := newEvents(10, 10, 0)

			conn := newFakeConn()
			conn.reads = []func(v any) error{
				readFrame(`{"type":"ping"}`),
			}

			evts.Run(conn)

			msgs := conn.messages()
			if len(msgs) != 2 || msgs[1].Type != events.TypePong {
				t.Fatalf("\t%s\tTest 1:\tShould answer with a pong: %+v", failed, msgs)
			}
			t.Logf("\t%s\tTest 1:\tShould answer with a pong.", success)
		}

		t.Logf("\tTest 2:\tWhen a viewer sends a malformed frame.")
		{
			evts, _ := newEvents(10, 10, 0)

			conn := newFakeConn()
			conn.reads = []func(v any) error{
				func(v any) error { return &json.SyntaxError{} },
				readFrame(`{"type":"ping"}`),
			}

			evts.Run(conn)

			msgs := conn.messages()
			if len(msgs) != 2 || msgs[1].Type != events.TypePong {
				t.Fatalf("\t%s\tTest 2:\tShould survive the malformed frame and keep serving: %+v", failed, msgs)
			}
			t.Logf("\t%s\tTest 2:\tShould survive the malformed frame and keep serving.", success)
		}
	}
}

func Test_QuietViewer(t *testing.T) {
	t.Log("Given the need to keep quiet but healthy viewers connected.")
	{
		t.Logf("\tTest 0:\tWhen a viewer sends nothing for several probe cycles.")
		{
			const readTimeout = 20 * time.Millisecond
			evts, _ := newEvents(100, 100, readTimeout)

			conn := newFakeConn()
			conn.sticky = nil

			done := make(chan struct{})
			go func() {
				evts.Run(conn)
				close(done)
			}()

			time.Sleep(8 * readTimeout)

			if evts.Len() != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould keep the quiet viewer registered: len %d", failed, evts.Len())
			}
			t.Logf("\t%s\tTest 0:\tShould keep the quiet viewer registered.", success)

			// One ping per probe cycle, never a flood.
			pings := conn.pings()
			if pings < 1 || pings > 20 {
				t.Fatalf("\t%s\tTest 0:\tShould probe roughly once per cycle: got %d pings", failed, pings)
			}
			t.Logf("\t%s\tTest 0:\tShould probe roughly once per cycle.", success)

			conn.Close()
			select {
			case <-done:
			case <-time.After(time.Second):
				t.Fatalf("\t%s\tTest 0:\tShould end the session when the peer closes.", failed)
			}

			if evts.Len() != 0 {
				t.Fatalf("\t%s\tTest 0:\tShould unregister when the peer closes: len %d", failed, evts.Len())
			}
			t.Logf("\t%s\tTest 0:\tShould unregister when the peer closes.", success)
		}
	}
}

func Test_ReadDeadlineExpiry(t *testing.T) {
	t.Log("Given that websocket read errors are permanent.")
	{
		t.Logf("\tTest 0:\tWhen every read reports an expired deadline.")
		{
			const readTimeout = 20 * time.Millisecond
			evts, _ := newEvents(100, 100, readTimeout)

			conn := newFakeConn()
			conn.sticky = timeoutError{}

			evts.Run(conn)

			if evts.Len() != 0 {
				t.Fatalf("\t%s\tTest 0:\tShould end the session: len %d", failed, evts.Len())
			}
			t.Logf("\t%s\tTest 0:\tShould end the session instead of rereading the dead stream.", success)

			// The session must exit on the first sticky error, not spin
			// on it sending pings.
			if pings := conn.pings(); pings > 2 {
				t.Fatalf("\t%s\tTest 0:\tShould not flood the peer with pings: got %d", failed, pings)
			}
			t.Logf("\t%s\tTest 0:\tShould not flood the peer with pings.", success)
		}
	}
}

func Test_PingProbe(t *testing.T) {
	t.Log("Given the need to detect dead viewers through the liveness probe.")
	{
		t.Logf("\tTest 0:\tWhen the probe ping cannot be sent.")
		{
			const readTimeout = 20 * time.Millisecond
			evts, _ := newEvents(1000, 1000, readTimeout)

			healthy := newFakeConn()
			evts.Register(healthy)

			// The dying viewer accepts the initial canvas state and then
			// goes quiet; the first probe write fails and must close the
			// connection, releasing the blocked read.
			dying := newFakeConn()
			dying.failAfter = 1
			dying.sticky = nil

			done := make(chan struct{})
			go func() {
				evts.Run(dying)
				close(done)
			}()

			select {
			case <-done:
			case <-time.After(time.Second):
				t.Fatalf("\t%s\tTest 0:\tShould end the session after the failed probe.", failed)
			}

			if evts.Len() != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould remove the dead viewer before the next broadcast: len %d", failed, evts.Len())
			}
			t.Logf("\t%s\tTest 0:\tShould remove the dead viewer before the next broadcast.", success)

			evts.BroadcastPixel(3, 3, "#0000ff")

			if len(healthy.messages()) != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould deliver the next broadcast to the healthy viewer only.", failed)
			}
			if len(dying.messages()) != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould not deliver anything further to the dead viewer: %+v", failed, dying.messages())
			}
			t.Logf("\t%s\tTest 0:\tShould deliver the next broadcast to the healthy viewer only.", success)
		}
	}
}

func Test_BroadcastCanvas(t *testing.T) {
	t.Log("Given the need to resync every viewer with the full board.")
	{
		t.Logf("\tTest 0:\tWhen broadcasting the canvas snapshot.")
		{
			evts, cvs := newEvents(100, 100, 0)
			cvs.Set(1, 1, "#111111")
			cvs.Set(2, 2, "#222222")

			conn := newFakeConn()
			evts.Register(conn)

			evts.BroadcastCanvas()

			msgs := conn.messages()
			if len(msgs) != 1 || msgs[0].Type != events.TypeCanvasState {
				t.Fatalf("\t%s\tTest 0:\tShould deliver one canvas_state: %+v", failed, msgs)
			}

			state, ok := msgs[0].Data.(map[string]string)
			if !ok || len(state) != 2 {
				t.Fatalf("\t%s\tTest 0:\tShould carry the full board: %+v", failed, msgs[0].Data)
			}
			t.Logf("\t%s\tTest 0:\tShould deliver the full board to the viewer.", success)

			if cvs.Len() != 2 {
				t.Fatalf("\t%s\tTest 0:\tShould leave the board intact: len %d", failed, cvs.Len())
			}
			t.Logf("\t%s\tTest 0:\tShould leave the board intact.", success)
		}
	}
}
