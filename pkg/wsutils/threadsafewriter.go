package wsutils

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ThreadSafeWriter serializes writes to one websocket connection so the
// lifecycle manager and broadcast fan-out never interleave frames. Each
// write carries a deadline; a saturated peer fails the send instead of
// wedging the broadcaster.
type ThreadSafeWriter struct {
	*websocket.Conn
	sync.Mutex

	writeTimeout time.Duration
}

func (t *ThreadSafeWriter) WriteJSON(val any) error {
	t.Lock()
	defer t.Unlock()

	if t.writeTimeout > 0 {
		_ = t.Conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	}
	return t.Conn.WriteJSON(val)
}

// ClosePolicyViolation sends a 1008 close frame with the given reason and
// closes the connection. Used when admission is refused.
func (t *ThreadSafeWriter) ClosePolicyViolation(reason string) error {
	t.Lock()
	_ = t.Conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason),
		time.Now().Add(time.Second),
	)
	t.Unlock()
	return t.Conn.Close()
}

func (t *ThreadSafeWriter) Close() error {
	return t.Conn.Close()
}

func (t *ThreadSafeWriter) ReadJSON(val any) error {
	return t.Conn.ReadJSON(val)
}

func NewThreadSafeWriter(conn *websocket.Conn, writeTimeout time.Duration) *ThreadSafeWriter {
	return &ThreadSafeWriter{
		Conn:         conn,
		writeTimeout: writeTimeout,
	}
}
