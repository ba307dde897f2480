package session

import "sync"

// writer serializes all outbound frames on a session. The websocket layer
// permits a single concurrent writer, and both the output relay and the
// watchdog send frames, so every write goes through here.
type writer struct {
	mu    sync.Mutex
	conn  Conn
	ended bool
}

func (w *writer) output(data string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ended {
		return
	}
	_ = w.conn.WriteJSON(outputMsg{Type: "output", Data: data})
}

// end sends the termination frame. It fires at most once per session and no
// output can follow it.
func (w *writer) end(code int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ended {
		return
	}
	w.ended = true
	_ = w.conn.WriteJSON(endMsg{Type: "end", Code: code})
}
