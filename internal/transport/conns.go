package transport

import (
	"sync"

	ws "nhooyr.io/websocket"
)

// conns keeps at most one audio connection per session.
type conns struct {
	mu sync.Mutex
	m  map[string]*ws.Conn
}

func newConns() *conns { return &conns{m: make(map[string]*ws.Conn)} }

// replace sets the connection for a session and closes the previous one if present.
func (r *conns) replace(sessionID string, c *ws.Conn) (prevClosed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.m[sessionID]; ok && old != nil {
		_ = old.Close(ws.StatusPolicyViolation, "replaced")
		prevClosed = true
	}
	r.m[sessionID] = c
	return
}

// release forgets c unless a newer connection already took its place.
func (r *conns) release(sessionID string, c *ws.Conn) bool {
	r.mu.Lock(); defer r.mu.Unlock()
	if r.m[sessionID] != c {
		return false
	}
	delete(r.m, sessionID)
	return true
}

func (r *conns) count() int {
	r.mu.Lock(); defer r.mu.Unlock()
	return len(r.m)
}
