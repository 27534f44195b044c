package speech

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ConnectionObserver tracks open sockets.
type ConnectionObserver interface {
	ConnectionOpened()
	ConnectionClosed()
}

// ConnectionManager WebSocket连接管理器，每个会话最多保留一个连接
type ConnectionManager struct {
	connections map[string]*websocket.Conn
	observer    ConnectionObserver
	mu          sync.Mutex
}

// NewConnectionManager 创建连接管理器
func NewConnectionManager(observer ConnectionObserver) *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[string]*websocket.Conn),
		observer:    observer,
	}
}

// AddConnection 添加连接；同一会话的旧连接会被关闭
func (cm *ConnectionManager) AddConnection(sessionID string, conn *websocket.Conn) {
	cm.mu.Lock()
	old, exists := cm.connections[sessionID]
	cm.connections[sessionID] = conn
	cm.mu.Unlock()

	if exists {
		closeConn(old, websocket.ClosePolicyViolation, "replaced by a newer connection")
	} else if cm.observer != nil {
		cm.observer.ConnectionOpened()
	}
}

// RemoveConnection 移除连接。只有当前登记的连接才会被移除。
func (cm *ConnectionManager) RemoveConnection(sessionID string, conn *websocket.Conn) {
	cm.mu.Lock()
	current, exists := cm.connections[sessionID]
	if !exists || current != conn {
		cm.mu.Unlock()
		return
	}
	delete(cm.connections, sessionID)
	cm.mu.Unlock()

	if cm.observer != nil {
		cm.observer.ConnectionClosed()
	}
}

// Count returns the number of registered sessions.
func (cm *ConnectionManager) Count() int {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return len(cm.connections)
}

// CloseAll 关闭所有连接
func (cm *ConnectionManager) CloseAll() {
	cm.mu.Lock()
	conns := cm.connections
	cm.connections = make(map[string]*websocket.Conn)
	cm.mu.Unlock()

	for range conns {
		if cm.observer != nil {
			cm.observer.ConnectionClosed()
		}
	}
	for _, conn := range conns {
		closeConn(conn, websocket.CloseGoingAway, "server shutting down")
	}
}

func closeConn(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(time.Second)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	_ = conn.Close()
}
