package battle

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// newRoomCode derives an 8-char uppercase room code. Collisions are
// practically impossible but the registry still verifies before insert.
func newRoomCode() string {
	return strings.ToUpper(uuid.NewString()[:8])
}

// Registry is the authoritative in-memory store of active rooms. The
// map is guarded here; each room serializes its own mutations.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*Room)}
}

// Create inserts a new room under a code checked for uniqueness against
// the live map, retrying on the off chance of a clash.
func (reg *Registry) Create(cfg RoomConfig, hostID, hostName string) *Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	id := newRoomCode()
	for {
		if _, taken := reg.rooms[id]; !taken {
			break
		}
		id = newRoomCode()
	}
	room := NewRoom(id, cfg, hostID, hostName)
	reg.rooms[id] = room
	return room
}

func (reg *Registry) Get(roomID string) (*Room, error) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	room, ok := reg.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// Remove drops the room and tears down its pending work. Removing an
// unknown id is a no-op.
func (reg *Registry) Remove(roomID string) {
	reg.mu.Lock()
	room, ok := reg.rooms[roomID]
	delete(reg.rooms, roomID)
	reg.mu.Unlock()

	if ok {
		room.Teardown()
	}
}

// ListWaiting returns the rooms still open for joining, for the lobby.
func (reg *Registry) ListWaiting() []*Room {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	out := make([]*Room, 0, len(reg.rooms))
	for _, room := range reg.rooms {
		if room.Status() == StatusWaiting {
			out = append(out, room)
		}
	}
	return out
}
