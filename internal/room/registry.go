package room

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"quizbattle/internal/constants"
	"quizbattle/internal/models"
)

var (
	ErrRoomNotFound        = errors.New("room: not found")
	ErrRoomFull            = errors.New("room: full")
	ErrRoomNotAccepting    = errors.New("room: not accepting players")
	ErrNotEnoughPlayers    = errors.New("room: not enough players")
	ErrPlayerAlreadyInRoom = errors.New("room: player already in a room")
	ErrPlayerNotInRoom     = errors.New("room: player not in any room")
)

// Registry owns the set of rooms and the player-to-room index. All mutation
// happens on the hub goroutine; the lock exists because read-only admin
// handlers inspect the registry concurrently. There is deliberately no lock
// per room beyond this.
type Registry struct {
	mu         sync.RWMutex
	rooms      map[string]*models.Room
	order      []string
	playerRoom map[string]string
	nextRoomID int
	maxPlayers int
	minPlayers int
}

func NewRegistry(maxPlayers, minPlayers int) *Registry {
	return &Registry{
		rooms:      make(map[string]*models.Room),
		playerRoom: make(map[string]string),
		nextRoomID: 1,
		maxPlayers: maxPlayers,
		minPlayers: minPlayers,
	}
}

// CreateRoom makes a fresh waiting room.
func (r *Registry) CreateRoom() *models.Room {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.createRoomLocked()
}

func (r *Registry) createRoomLocked() *models.Room {
	room := &models.Room{
		ID:         fmt.Sprintf("room_%d", r.nextRoomID),
		Status:     constants.RoomStatusWaiting,
		MaxPlayers: r.maxPlayers,
		CreatedAt:  time.Now(),
	}
	r.nextRoomID++
	r.rooms[room.ID] = room
	r.order = append(r.order, room.ID)
	return room
}

// PlacePlayer puts a player into preferredRoomID when given, otherwise into
// the first waiting room with spare capacity in creation order, creating one
// if none exists. First-fit keeps the room count bounded and avoids
// fragmenting players across half-empty rooms.
func (r *Registry) PlacePlayer(playerID, name, preferredRoomID string) (*models.Room, *models.Player, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.playerRoom[playerID]; ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrPlayerAlreadyInRoom, current)
	}

	var room *models.Room
	if preferredRoomID != "" {
		target, ok := r.rooms[preferredRoomID]
		if !ok {
			return nil, nil, fmt.Errorf("%w: %s", ErrRoomNotFound, preferredRoomID)
		}
		if target.Status != constants.RoomStatusWaiting {
			return nil, nil, ErrRoomNotAccepting
		}
		if target.IsFull() {
			return nil, nil, ErrRoomFull
		}
		room = target
	} else {
		for _, id := range r.order {
			candidate := r.rooms[id]
			if candidate.Status == constants.RoomStatusWaiting && !candidate.IsFull() {
				room = candidate
				break
			}
		}
		if room == nil {
			room = r.createRoomLocked()
		}
	}

	now := time.Now()
	player := &models.Player{
		ID:        playerID,
		Name:      name,
		Connected: true,
		JoinedAt:  now,
		LastSeen:  now,
	}
	room.Players = append(room.Players, player)
	r.playerRoom[playerID] = room.ID
	return room, player, nil
}

// RemovePlayer detaches a player from its room. An empty room that is not
// mid-game is deleted; a playing room survives even with no players left so
// that scores outlive pure disconnects.
func (r *Registry) RemovePlayer(playerID string) (*models.Room, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	roomID, ok := r.playerRoom[playerID]
	if !ok {
		return nil, false, ErrPlayerNotInRoom
	}
	room := r.rooms[roomID]

	for i, p := range room.Players {
		if p.ID == playerID {
			room.Players = append(room.Players[:i], room.Players[i+1:]...)
			break
		}
	}
	delete(r.playerRoom, playerID)

	if room.IsEmpty() && room.Status != constants.RoomStatusPlaying {
		r.deleteRoomLocked(roomID)
		return room, true, nil
	}
	return room, false, nil
}

func (r *Registry) deleteRoomLocked(roomID string) {
	delete(r.rooms, roomID)
	for i, id := range r.order {
		if id == roomID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// StartGame transitions waiting -> playing once the room has enough players.
func (r *Registry) StartGame(roomID string) (*models.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	if room.Status != constants.RoomStatusWaiting {
		return nil, ErrRoomNotAccepting
	}
	if room.PlayerCount() < r.minPlayers {
		return nil, fmt.Errorf("%w: need at least %d", ErrNotEnoughPlayers, r.minPlayers)
	}
	room.Status = constants.RoomStatusPlaying
	return room, nil
}

// AbortGame reverts a playing room to waiting without producing results, for
// starts that fail after the status flip.
func (r *Registry) AbortGame(roomID string) (*models.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	if room.Status == constants.RoomStatusPlaying {
		room.Status = constants.RoomStatusWaiting
	}
	return room, nil
}

// FinishGame recycles a playing room back to waiting so it can host the next
// game. Players that dropped mid-game and never came back are pruned; an
// empty room is deleted.
func (r *Registry) FinishGame(roomID string) (*models.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	room.Status = constants.RoomStatusFinished

	kept := room.Players[:0]
	for _, p := range room.Players {
		if p.Connected {
			p.Ready = false
			kept = append(kept, p)
		} else {
			delete(r.playerRoom, p.ID)
		}
	}
	room.Players = kept

	if room.IsEmpty() {
		r.deleteRoomLocked(roomID)
		return room, nil
	}
	room.Status = constants.RoomStatusWaiting
	return room, nil
}

// SetConnected flips a player's transport liveness. connectionID is the new
// transport identity, empty on disconnect.
func (r *Registry) SetConnected(playerID, connectionID string, connected bool) (*models.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	roomID, ok := r.playerRoom[playerID]
	if !ok {
		return nil, ErrPlayerNotInRoom
	}
	room := r.rooms[roomID]
	player := room.FindPlayer(playerID)
	if player == nil {
		return nil, ErrPlayerNotInRoom
	}
	player.Connected = connected
	player.ConnectionID = connectionID
	player.LastSeen = time.Now()
	return room, nil
}

func (r *Registry) Room(roomID string) (*models.Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[roomID]
	return room, ok
}

// RoomOf returns the room the player currently belongs to.
func (r *Registry) RoomOf(playerID string) (*models.Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	roomID, ok := r.playerRoom[playerID]
	if !ok {
		return nil, false
	}
	return r.rooms[roomID], true
}

// Rooms returns all rooms in creation order. The pointers are live; callers
// off the hub goroutine must use CopyRooms instead.
func (r *Registry) Rooms() []*models.Room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*models.Room, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.rooms[id])
	}
	return out
}

func copyRoomLocked(room *models.Room) *models.Room {
	cp := *room
	cp.Players = make([]*models.Player, len(room.Players))
	for i, p := range room.Players {
		pc := *p
		cp.Players[i] = &pc
	}
	return &cp
}

// CopyRoom returns a detached copy of one room, safe to marshal while the hub
// keeps mutating the live one.
func (r *Registry) CopyRoom(roomID string) (*models.Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return nil, false
	}
	return copyRoomLocked(room), true
}

// CopyRooms returns detached copies of every room in creation order.
func (r *Registry) CopyRooms() []*models.Room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*models.Room, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, copyRoomLocked(r.rooms[id]))
	}
	return out
}

type Stats struct {
	TotalRooms     int `json:"total_rooms"`
	WaitingRooms   int `json:"waiting_rooms"`
	PlayingRooms   int `json:"playing_rooms"`
	TotalPlayers   int `json:"total_players"`
	AvailableSlots int `json:"available_slots"`
}

func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{
		TotalRooms:   len(r.rooms),
		TotalPlayers: len(r.playerRoom),
	}
	for _, room := range r.rooms {
		switch room.Status {
		case constants.RoomStatusWaiting:
			stats.WaitingRooms++
			stats.AvailableSlots += room.MaxPlayers - room.PlayerCount()
		case constants.RoomStatusPlaying:
			stats.PlayingRooms++
		}
	}
	return stats
}

// Reset drops every room and player.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms = make(map[string]*models.Room)
	r.order = nil
	r.playerRoom = make(map[string]string)
	r.nextRoomID = 1
}

// Snapshot copies the registry state for persistence.
func (r *Registry) Snapshot() *models.Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := &models.Snapshot{
		PlayerRoomIndex: make(map[string]string, len(r.playerRoom)),
		NextRoomID:      r.nextRoomID,
	}
	for _, id := range r.order {
		snap.Rooms = append(snap.Rooms, copyRoomLocked(r.rooms[id]))
	}
	for player, roomID := range r.playerRoom {
		snap.PlayerRoomIndex[player] = roomID
	}
	return snap
}

// Restore rebuilds registry state from a snapshot. The player index is
// rebuilt from room membership rather than trusted from the file, and every
// player comes back disconnected: no transport survives a restart.
func (r *Registry) Restore(snap *models.Snapshot) {
	if snap == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rooms = make(map[string]*models.Room)
	r.order = nil
	r.playerRoom = make(map[string]string)

	for _, room := range snap.Rooms {
		if room == nil || room.ID == "" {
			continue
		}
		if room.MaxPlayers <= 0 {
			room.MaxPlayers = r.maxPlayers
		}
		for _, p := range room.Players {
			p.Connected = false
			p.ConnectionID = ""
			r.playerRoom[p.ID] = room.ID
		}
		r.rooms[room.ID] = room
		r.order = append(r.order, room.ID)
	}

	r.nextRoomID = snap.NextRoomID
	if r.nextRoomID < 1 {
		r.nextRoomID = 1
	}
}
