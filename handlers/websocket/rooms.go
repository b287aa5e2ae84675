package websocket

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/render"
)

type RoomInfo struct {
	ID         string `json:"id"`
	Users      int    `json:"users"`
	LastActive *int64 `json:"lastActive,omitempty"`
}

// Rooms tracks socket.io room occupancy for the room listing endpoint.
type Rooms struct {
	mu         sync.RWMutex
	users      map[string]int
	lastActive map[string]int64
	now        func() time.Time
}

func NewRooms() *Rooms {
	return &Rooms{
		users:      make(map[string]int),
		lastActive: make(map[string]int64),
		now:        time.Now,
	}
}

// Set records the current user count of a room. A count of zero drops the
// room from the active set but keeps its last activity time.
func (r *Rooms) Set(id string, users int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastActive[id] = r.now().UnixMilli()
	if users <= 0 {
		delete(r.users, id)
		return
	}
	r.users[id] = users
}

func (r *Rooms) Users(id string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.users[id]
}

// List returns every known room, busiest first, then most recently active.
func (r *Rooms) List() []RoomInfo {
	r.mu.RLock()
	list := make([]RoomInfo, 0, len(r.lastActive))
	for id, last := range r.lastActive {
		last := last
		list = append(list, RoomInfo{ID: id, Users: r.users[id], LastActive: &last})
	}
	r.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		if list[i].Users != list[j].Users {
			return list[i].Users > list[j].Users
		}
		if *list[i].LastActive != *list[j].LastActive {
			return *list[i].LastActive > *list[j].LastActive
		}
		return list[i].ID < list[j].ID
	})
	return list
}

func HandleListRooms(rooms *Rooms) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, rooms.List())
	}
}
