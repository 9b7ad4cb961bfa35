package model

import "time"

// MessageID uniquely identifies a chat message
type MessageID string

// MaxMessageLength is the maximum number of characters in a chat message
const MaxMessageLength = 500

// Message is a chat line posted in a room. Messages are append-only and
// removed only when their room is torn down. The author pseudo is copied at
// post time so history survives the author leaving.
type Message struct {
	ID           MessageID
	RoomID       RoomID
	RoomCode     RoomCode
	AuthorID     PlayerID
	AuthorPseudo string
	Text         string
	CreatedAt    time.Time
}
