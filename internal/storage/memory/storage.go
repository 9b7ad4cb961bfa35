package memory

import (
	"context"
	"sync"

	"github.com/mcoot/escaperoom/internal/model"
	"github.com/mcoot/escaperoom/internal/storage"
)

// Storage is an in-memory implementation of the storage interface
type Storage struct {
	mu sync.RWMutex

	rooms    map[model.RoomCode]*model.Room
	messages map[model.RoomCode][]model.Message
}

// New creates a new in-memory storage instance
func New() *Storage {
	return &Storage{
		rooms:    make(map[model.RoomCode]*model.Room),
		messages: make(map[model.RoomCode][]model.Message),
	}
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// Room operations

func (s *Storage) CreateRoom(ctx context.Context, room *model.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room.Code]; ok {
		return model.ErrRoomCodeTaken
	}
	s.rooms[room.Code] = room.Clone()
	return nil
}

func (s *Storage) GetRoom(ctx context.Context, code model.RoomCode) (*model.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[code]
	if !ok {
		return nil, model.ErrRoomNotFound
	}
	return room.Clone(), nil
}

func (s *Storage) RoomExists(ctx context.Context, code model.RoomCode) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.rooms[code]
	return ok, nil
}

func (s *Storage) UpdateRoom(ctx context.Context, room *model.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.rooms[room.Code]
	if !ok {
		return model.ErrRoomNotFound
	}
	stored.Started = room.Started
	stored.Timer = room.Timer
	stored.TimerStopped = room.TimerStopped
	stored.HostPlayerID = room.HostPlayerID
	stored.UpdatedAt = room.UpdatedAt
	return nil
}

func (s *Storage) DeleteRoom(ctx context.Context, code model.RoomCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, code)
	delete(s.messages, code)
	return nil
}

func (s *Storage) DecrementTimer(ctx context.Context, code model.RoomCode) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[code]
	if !ok {
		return 0, model.ErrRoomNotFound
	}
	if room.Timer > 0 {
		room.Timer--
	}
	return room.Timer, nil
}

// Player operations

func (s *Storage) SavePlayer(ctx context.Context, code model.RoomCode, player *model.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[code]
	if !ok {
		return model.ErrRoomNotFound
	}
	if player.IsHost {
		room.HostPlayerID = player.ID
	}
	if existing := room.GetPlayer(player.ID); existing != nil {
		*existing = *player
		return nil
	}
	room.Players = append(room.Players, *player)
	model.SortPlayers(room.Players)
	return nil
}

func (s *Storage) DeletePlayer(ctx context.Context, code model.RoomCode, id model.PlayerID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[code]
	if !ok {
		return nil
	}
	kept := room.Players[:0]
	for _, p := range room.Players {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	room.Players = kept
	return nil
}

func (s *Storage) TransferHost(ctx context.Context, code model.RoomCode, from, to model.PlayerID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[code]
	if !ok {
		return model.ErrRoomNotFound
	}
	next := room.GetPlayer(to)
	if next == nil {
		return model.ErrNotFound
	}
	if prev := room.GetPlayer(from); prev != nil {
		prev.IsHost = false
	}
	next.IsHost = true
	room.HostPlayerID = to
	return nil
}

// Enigma operations

func (s *Storage) SaveEnigma(ctx context.Context, code model.RoomCode, enigma *model.Enigma) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[code]
	if !ok {
		return model.ErrRoomNotFound
	}
	stored := room.GetEnigma(enigma.ID)
	if stored == nil {
		return model.ErrNotFound
	}
	if stored.Version != enigma.Version {
		return model.ErrVersionConflict
	}
	enigma.Version++
	*stored = enigma.Clone()
	return nil
}

// Message operations

func (s *Storage) AppendMessage(ctx context.Context, msg *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[msg.RoomCode]; !ok {
		return model.ErrRoomNotFound
	}
	s.messages[msg.RoomCode] = append(s.messages[msg.RoomCode], *msg)
	return nil
}

func (s *Storage) ListMessages(ctx context.Context, code model.RoomCode, limit int) ([]model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.rooms[code]; !ok {
		return nil, model.ErrRoomNotFound
	}
	all := s.messages[code]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	result := make([]model.Message, len(all))
	copy(result, all)
	return result, nil
}
