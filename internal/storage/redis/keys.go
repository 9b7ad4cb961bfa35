package redis

import (
	"fmt"

	"github.com/mcoot/escaperoom/internal/model"
)

// Key prefix for all game-related data
const keyPrefix = "escape"

// roomKey returns the Redis key for the room HASH
func roomKey(code model.RoomCode) string {
	return fmt.Sprintf("%s:room:%s", keyPrefix, code)
}

// playersKey returns the Redis key for the HASH of player id -> player
func playersKey(code model.RoomCode) string {
	return fmt.Sprintf("%s:room:%s:players", keyPrefix, code)
}

// enigmasKey returns the Redis key for the HASH of enigma id -> enigma state
func enigmasKey(code model.RoomCode) string {
	return fmt.Sprintf("%s:room:%s:enigmas", keyPrefix, code)
}

// messagesKey returns the Redis key for the LIST of chat messages
func messagesKey(code model.RoomCode) string {
	return fmt.Sprintf("%s:room:%s:messages", keyPrefix, code)
}

// allRoomKeys returns every key owned by a room
func allRoomKeys(code model.RoomCode) []string {
	return []string{roomKey(code), playersKey(code), enigmasKey(code), messagesKey(code)}
}
