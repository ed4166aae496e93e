package ws

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// Connection is one browser tab's WebSocket, bound to an authenticated user.
// All writes go through writeMu so frames never interleave.
type Connection struct {
	ID        string   // connection ID (UUID)
	UserID    string   // authenticated owner
	Conn      net.Conn // underlying TCP connection
	CreatedAt time.Time

	writeTimeout time.Duration
	lastSeen     atomic.Int64 // unix nanos of the last frame received
	writeMu      sync.Mutex
	closeOnce    sync.Once
}

func newConnection(id, userID string, conn net.Conn, writeTimeout time.Duration) *Connection {
	c := &Connection{
		ID:           id,
		UserID:       userID,
		Conn:         conn,
		CreatedAt:    time.Now(),
		writeTimeout: writeTimeout,
	}
	c.Touch()
	return c
}

// Touch records client activity.
func (c *Connection) Touch() {
	c.lastSeen.Store(time.Now().UnixNano())
}

// LastSeen returns when the client last sent a frame.
func (c *Connection) LastSeen() time.Time {
	return time.Unix(0, c.lastSeen.Load())
}

// Write implements io.Writer under the write lock. The control frame
// handler uses it to answer pings and close frames.
func (c *Connection) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.setWriteDeadline()
	defer c.clearWriteDeadline()
	return c.Conn.Write(p)
}

// WriteMessage sends a WebSocket text frame.
func (c *Connection) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.setWriteDeadline()
	defer c.clearWriteDeadline()
	return wsutil.WriteServerMessage(c.Conn, ws.OpText, data)
}

// WritePing sends a protocol-level ping frame.
func (c *Connection) WritePing() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.setWriteDeadline()
	defer c.clearWriteDeadline()
	return ws.WriteFrame(c.Conn, ws.NewPingFrame(nil))
}

func (c *Connection) setWriteDeadline() {
	if c.writeTimeout > 0 {
		_ = c.Conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
}

func (c *Connection) clearWriteDeadline() {
	if c.writeTimeout > 0 {
		_ = c.Conn.SetWriteDeadline(time.Time{})
	}
}

// Close closes the underlying network connection once.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() { err = c.Conn.Close() })
	return err
}

// ConnectionManager is a thread-safe registry of connections indexed by
// connection ID and by user. A user may hold several connections, one per
// open tab.
type ConnectionManager struct {
	mu     sync.RWMutex
	byID   map[string]*Connection
	byUser map[string]map[string]*Connection
}

// NewConnectionManager creates an empty ConnectionManager ready for use.
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		byID:   make(map[string]*Connection),
		byUser: make(map[string]map[string]*Connection),
	}
}

// Add registers conn. first reports whether it is the user's only
// connection.
func (cm *ConnectionManager) Add(conn *Connection) (first bool) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.byID[conn.ID] = conn
	tabs, ok := cm.byUser[conn.UserID]
	if !ok {
		tabs = make(map[string]*Connection)
		cm.byUser[conn.UserID] = tabs
	}
	tabs[conn.ID] = conn
	return len(tabs) == 1
}

// Remove unregisters the connection with the given ID. ok is false if it was
// already gone; last reports whether the user has no connections left.
func (cm *ConnectionManager) Remove(id string) (conn *Connection, last, ok bool) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	conn, ok = cm.byID[id]
	if !ok {
		return nil, false, false
	}
	delete(cm.byID, id)

	tabs := cm.byUser[conn.UserID]
	delete(tabs, id)
	if len(tabs) == 0 {
		delete(cm.byUser, conn.UserID)
		last = true
	}
	return conn, last, true
}

// Get returns the connection for the given ID, or nil if not found.
func (cm *ConnectionManager) Get(id string) *Connection {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.byID[id]
}

// ForUser returns a snapshot of the user's connections.
func (cm *ConnectionManager) ForUser(userID string) []*Connection {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	tabs := cm.byUser[userID]
	conns := make([]*Connection, 0, len(tabs))
	for _, c := range tabs {
		conns = append(conns, c)
	}
	return conns
}

// SendToUser writes data to every connection of userID and returns how many
// writes succeeded. Failed connections are left for the read loop or the
// heartbeat to clean up.
func (cm *ConnectionManager) SendToUser(userID string, data []byte) int {
	sent := 0
	for _, c := range cm.ForUser(userID) {
		if err := c.WriteMessage(data); err == nil {
			sent++
		}
	}
	return sent
}

// Count returns the current number of active connections.
func (cm *ConnectionManager) Count() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.byID)
}

// Users returns the IDs of users with at least one connection.
func (cm *ConnectionManager) Users() []string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	ids := make([]string, 0, len(cm.byUser))
	for id := range cm.byUser {
		ids = append(ids, id)
	}
	return ids
}

// All returns a snapshot of all current connections.
func (cm *ConnectionManager) All() []*Connection {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	conns := make([]*Connection, 0, len(cm.byID))
	for _, conn := range cm.byID {
		conns = append(conns, conn)
	}
	return conns
}
