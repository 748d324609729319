package chat

import (
	"fmt"
	"sync"
)

// Registry tracks active subscriber connections per project room.
// Membership is pure in-memory process-local state; it rebuilds from
// empty on restart.
type Registry struct {
	mu    sync.RWMutex
	rooms map[int64]map[*Connection]struct{}
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{rooms: make(map[int64]map[*Connection]struct{})}
}

// Join adds the connection to the project room. Joining twice has the
// effect of one join.
func (r *Registry) Join(projectID int64, conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room := r.rooms[projectID]
	if room == nil {
		room = make(map[*Connection]struct{})
		r.rooms[projectID] = room
	}
	room[conn] = struct{}{}
}

// Leave removes the connection from the room; no-op if not a member.
// Once Leave returns, no subsequent broadcast delivers to the connection.
func (r *Registry) Leave(projectID int64, conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room := r.rooms[projectID]
	if room == nil {
		return
	}
	delete(room, conn)
	if len(room) == 0 {
		delete(r.rooms, projectID)
	}
}

// Members returns the current subscriber count for the project.
func (r *Registry) Members(projectID int64) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[projectID])
}

// Broadcast delivers payload to every currently-joined connection of the
// project. Delivery per connection is best-effort and independently
// bounded; failures are collected and returned, never escalated. The
// membership check and the send happen under the read lock, so a
// connection whose Leave completed is never delivered to, and each
// member receives the payload at most once.
func (r *Registry) Broadcast(projectID int64, payload []byte) (delivered int, errs []error) {
	r.mu.RLock()
	snapshot := make([]*Connection, 0, len(r.rooms[projectID]))
	for conn := range r.rooms[projectID] {
		snapshot = append(snapshot, conn)
	}
	r.mu.RUnlock()

	for _, conn := range snapshot {
		if !r.sendToMember(projectID, conn, payload) {
			errs = append(errs, fmt.Errorf("deliver to connection %s: not a member or unreachable", conn.ID))
			continue
		}
		delivered++
	}
	return delivered, errs
}

// sendToMember re-checks membership under the read lock before handing
// the payload to the connection's buffered channel. Send itself never
// blocks, so holding the lock across it is safe.
func (r *Registry) sendToMember(projectID int64, conn *Connection, payload []byte) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room := r.rooms[projectID]
	if room == nil {
		return false
	}
	if _, member := room[conn]; !member {
		return false
	}
	return conn.Send(payload) == nil
}
