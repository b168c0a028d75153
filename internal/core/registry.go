package core

import (
	"fmt"
	"sync"
)

// StatusRoom is the global room carrying service status broadcasts. Any
// authenticated connection may join or leave it freely.
const StatusRoom = "status"

// UserRoom derives the per-user notification room name. A connection may
// only ever join the room derived from its own identity; that policy is
// enforced at the handler level, the registry itself is identity-agnostic.
func UserRoom(userID int64) string {
	return fmt.Sprintf("user:%d", userID)
}

// Registry is the in-memory mapping of room name to live member
// connections. A room with zero members is indistinguishable from a
// non-existent one and is deleted eagerly; nothing here is persisted.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]map[string]*Connection
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]map[string]*Connection),
	}
}

// Join adds the connection to a room. Idempotent: joining a room already
// joined is a no-op. The room's member set and the connection's own room
// set are updated under the same lock.
func (r *Registry) Join(conn *Connection, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[room]
	if !ok {
		members = make(map[string]*Connection)
		r.rooms[room] = members
	}
	members[conn.ID] = conn
	conn.rooms[room] = struct{}{}
}

// Leave removes the connection from a room. Idempotent: leaving a room
// not joined is a no-op.
func (r *Registry) Leave(conn *Connection, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(conn, room)
}

func (r *Registry) leaveLocked(conn *Connection, room string) {
	members, ok := r.rooms[room]
	if !ok {
		return
	}
	delete(members, conn.ID)
	delete(conn.rooms, room)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
}

// MembersOf returns a snapshot of the room's live members at call time.
// Concurrent mutation may invalidate it immediately; callers must treat
// a member that has since vanished as a silent skip.
func (r *Registry) MembersOf(room string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[room]
	if len(members) == 0 {
		return nil
	}
	out := make([]*Connection, 0, len(members))
	for _, c := range members {
		out = append(out, c)
	}
	return out
}

// InRoom reports whether the connection is currently a member of room.
func (r *Registry) InRoom(conn *Connection, room string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := conn.rooms[room]
	return ok
}

// Rooms returns a snapshot of the room names the connection occupies.
func (r *Registry) Rooms(conn *Connection) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(conn.rooms))
	for name := range conn.rooms {
		out = append(out, name)
	}
	return out
}

// RemoveConnection removes the connection from every room it occupies in
// one critical section, so a concurrent MembersOf observes either the
// pre- or post-removal state for all rooms, never a partial one.
func (r *Registry) RemoveConnection(conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for room := range conn.rooms {
		r.leaveLocked(conn, room)
	}
}

// RoomCount returns how many non-empty rooms exist.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
