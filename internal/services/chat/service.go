// Package chat handles the message log of each room.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/mcoot/escaperoom/internal/dependencies/clock"
	"github.com/mcoot/escaperoom/internal/dependencies/random"
	"github.com/mcoot/escaperoom/internal/model"
	"github.com/mcoot/escaperoom/internal/services/events"
	"github.com/mcoot/escaperoom/internal/services/roomqueue"
	"github.com/mcoot/escaperoom/internal/storage"
)

// DefaultHistoryLimit is the number of messages returned when no limit is given
const DefaultHistoryLimit = 100

// Service posts and lists chat messages
type Service struct {
	storage   storage.Storage
	queue     *roomqueue.Queue
	publisher events.Publisher
	clock     clock.Clock
	random    random.Random
	logger    *slog.Logger
}

// New creates a new chat service
func New(
	storage storage.Storage,
	queue *roomqueue.Queue,
	publisher events.Publisher,
	clock clock.Clock,
	random random.Random,
	logger *slog.Logger,
) *Service {
	return &Service{
		storage:   storage,
		queue:     queue,
		publisher: publisher,
		clock:     clock,
		random:    random,
		logger:    logger.With(slog.String("component", "chat")),
	}
}

// ValidateText trims a message and checks it is neither blank nor too long
func ValidateText(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", fmt.Errorf("%w: message is empty", model.ErrValidationFailed)
	}
	if utf8.RuneCountInString(trimmed) > model.MaxMessageLength {
		return "", fmt.Errorf("%w: message longer than %d characters", model.ErrValidationFailed, model.MaxMessageLength)
	}
	return trimmed, nil
}

// Send appends a message from a room member and broadcasts it to the room
func (s *Service) Send(ctx context.Context, code model.RoomCode, authorID model.PlayerID, text string) (*model.Message, error) {
	text, err := ValidateText(text)
	if err != nil {
		return nil, err
	}

	var posted *model.Message
	err = s.queue.Do(ctx, code, func(ctx context.Context) error {
		room, err := s.storage.GetRoom(ctx, code)
		if err != nil {
			return err
		}
		author := room.GetPlayer(authorID)
		if author == nil {
			return fmt.Errorf("%w: player %s", model.ErrNotFound, authorID)
		}

		msg := &model.Message{
			ID:           model.MessageID(s.random.ID()),
			RoomID:       room.ID,
			RoomCode:     code,
			AuthorID:     author.ID,
			AuthorPseudo: author.Pseudo,
			Text:         text,
			CreatedAt:    s.clock.Now(),
		}
		if err := s.storage.AppendMessage(ctx, msg); err != nil {
			s.logger.Error("failed to append message",
				slog.String("room", string(code)),
				slog.String("error", err.Error()),
			)
			return err
		}

		s.publisher.Publish(model.Event{
			Type:      model.EventMessagePosted,
			Timestamp: msg.CreatedAt,
			RoomCode:  code,
			PlayerID:  authorID,
			Payload:   model.MessagePostedPayload{Message: *msg},
		})
		posted = msg
		return nil
	})
	if err != nil {
		return nil, err
	}
	return posted, nil
}

// List returns up to limit of the latest messages, oldest first.
// A limit <= 0 uses DefaultHistoryLimit.
func (s *Service) List(ctx context.Context, code model.RoomCode, limit int) ([]model.Message, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return s.storage.ListMessages(ctx, code, limit)
}
