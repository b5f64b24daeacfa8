package discussion

import "sync"

// BroadcastConn is the outbound half of a discussion websocket.
type BroadcastConn interface {
	SendJSON(v any) error
}

// Registry tracks which connections listen to which archive's discussion.
type Registry struct {
	mu    sync.Mutex
	rooms map[int64]map[BroadcastConn]struct{}
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[int64]map[BroadcastConn]struct{})}
}

// Join registers a connection in an archive's room.
func (r *Registry) Join(archiveID int64, conn BroadcastConn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[archiveID]
	if !ok {
		room = make(map[BroadcastConn]struct{})
		r.rooms[archiveID] = room
	}
	room[conn] = struct{}{}
}

// Leave removes a connection. Empty rooms are dropped.
func (r *Registry) Leave(archiveID int64, conn BroadcastConn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[archiveID]
	if !ok {
		return
	}
	delete(room, conn)
	if len(room) == 0 {
		delete(r.rooms, archiveID)
	}
}

// Broadcast sends a payload to every connection in the room, including the
// sender. Connections whose send fails are pruned.
func (r *Registry) Broadcast(archiveID int64, payload any) {
	r.mu.Lock()
	room, ok := r.rooms[archiveID]
	if !ok {
		r.mu.Unlock()
		return
	}
	conns := make([]BroadcastConn, 0, len(room))
	for conn := range room {
		conns = append(conns, conn)
	}
	r.mu.Unlock()

	var dead []BroadcastConn
	for _, conn := range conns {
		if err := conn.SendJSON(payload); err != nil {
			dead = append(dead, conn)
		}
	}

	if len(dead) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok = r.rooms[archiveID]
	if !ok {
		return
	}
	for _, conn := range dead {
		delete(room, conn)
	}
	if len(room) == 0 {
		delete(r.rooms, archiveID)
	}
}

// Size reports how many connections listen to an archive.
func (r *Registry) Size(archiveID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms[archiveID])
}
