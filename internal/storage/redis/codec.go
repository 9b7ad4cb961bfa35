package redis

import (
	"encoding/json"
	"time"

	"github.com/mcoot/escaperoom/internal/model"
)

// roomHash is the flat representation of the room record
type roomHash struct {
	ID           string `redis:"id"`
	Code         string `redis:"code"`
	Started      bool   `redis:"started"`
	Timer        int    `redis:"timer"`
	TimerStopped bool   `redis:"timer_stopped"`
	HostPlayerID string `redis:"host_player_id"`
	CreatedAt    int64  `redis:"created_at"`
	UpdatedAt    int64  `redis:"updated_at"`
}

func toRoomHash(room *model.Room) *roomHash {
	return &roomHash{
		ID:           string(room.ID),
		Code:         string(room.Code),
		Started:      room.Started,
		Timer:        room.Timer,
		TimerStopped: room.TimerStopped,
		HostPlayerID: string(room.HostPlayerID),
		CreatedAt:    room.CreatedAt.UnixNano(),
		UpdatedAt:    room.UpdatedAt.UnixNano(),
	}
}

func (h *roomHash) toRoom() *model.Room {
	return &model.Room{
		ID:           model.RoomID(h.ID),
		Code:         model.RoomCode(h.Code),
		Started:      h.Started,
		Timer:        h.Timer,
		TimerStopped: h.TimerStopped,
		HostPlayerID: model.PlayerID(h.HostPlayerID),
		CreatedAt:    time.Unix(0, h.CreatedAt).UTC(),
		UpdatedAt:    time.Unix(0, h.UpdatedAt).UTC(),
	}
}

func encodeAll[T any](items []T, key func(T) string) (map[string]any, error) {
	fields := make(map[string]any, len(items))
	for _, item := range items {
		data, err := json.Marshal(item)
		if err != nil {
			return nil, err
		}
		fields[key(item)] = data
	}
	return fields, nil
}

func decodeAll[T any](fields map[string]string) ([]T, error) {
	items := make([]T, 0, len(fields))
	for _, raw := range fields {
		var item T
		if err := json.Unmarshal([]byte(raw), &item); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}
