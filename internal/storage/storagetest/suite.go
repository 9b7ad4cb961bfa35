// Package storagetest holds the behaviour every storage backend must share.
package storagetest

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/escaperoom/internal/model"
	"github.com/mcoot/escaperoom/internal/storage"
)

// BaseTime is the creation time used by fixtures
var BaseTime = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

// Suite runs the shared storage contract against a backend.
// Backends embed it and set NewStorage.
type Suite struct {
	suite.Suite
	NewStorage func(t *testing.T) storage.Storage

	Storage storage.Storage
	Ctx     context.Context
}

func (s *Suite) SetupTest() {
	s.Storage = s.NewStorage(s.T())
	s.Ctx = context.Background()
}

// NewRoom returns a room fixture holding one empty state per puzzle
func NewRoom(code model.RoomCode) *model.Room {
	return &model.Room{
		ID:        model.RoomID("room-" + string(code)),
		Code:      code,
		Timer:     3600,
		CreatedAt: BaseTime,
		UpdatedAt: BaseTime,
		Enigmas: []model.Enigma{
			{ID: model.Enigma1, Data: json.RawMessage(`{"storyboards":[]}`)},
			{ID: model.Enigma2, Data: json.RawMessage(`{"photos":[]}`)},
			{ID: model.Enigma3, Data: json.RawMessage(`{"roles":[]}`)},
			{ID: model.Enigma4, Data: json.RawMessage(`{"ambiance":null}`)},
		},
	}
}

// NewPlayer returns a connected player fixture who joined offset after BaseTime
func NewPlayer(id model.PlayerID, pseudo string, offset time.Duration) *model.Player {
	return &model.Player{
		ID:           id,
		Pseudo:       pseudo,
		Connected:    true,
		CurrentScene: model.SceneMain,
		JoinedAt:     BaseTime.Add(offset),
		LastSeenAt:   BaseTime.Add(offset),
	}
}

func (s *Suite) createRoom(code model.RoomCode) *model.Room {
	room := NewRoom(code)
	s.Require().NoError(s.Storage.CreateRoom(s.Ctx, room))
	return room
}

// Room tests

func (s *Suite) TestCreateAndGetRoom() {
	s.createRoom("ABC234")

	room, err := s.Storage.GetRoom(s.Ctx, "ABC234")
	s.Require().NoError(err)
	s.Equal(model.RoomCode("ABC234"), room.Code)
	s.Equal(model.RoomID("room-ABC234"), room.ID)
	s.Equal(3600, room.Timer)
	s.False(room.Started)
	s.False(room.TimerStopped)
	s.Empty(room.Players)
	s.Require().Len(room.Enigmas, 4)
	for i, id := range []model.EnigmaID{model.Enigma1, model.Enigma2, model.Enigma3, model.Enigma4} {
		s.Equal(id, room.Enigmas[i].ID)
		s.False(room.Enigmas[i].Completed)
	}
	s.JSONEq(`{"photos":[]}`, string(room.GetEnigma(model.Enigma2).Data))
}

func (s *Suite) TestCreateRoomCodeTaken() {
	s.createRoom("ABC234")

	err := s.Storage.CreateRoom(s.Ctx, NewRoom("ABC234"))
	s.ErrorIs(err, model.ErrRoomCodeTaken)
}

func (s *Suite) TestGetRoomNotFound() {
	_, err := s.Storage.GetRoom(s.Ctx, "NOPE99")
	s.ErrorIs(err, model.ErrRoomNotFound)
}

func (s *Suite) TestRoomExists() {
	exists, err := s.Storage.RoomExists(s.Ctx, "ABC234")
	s.Require().NoError(err)
	s.False(exists)

	s.createRoom("ABC234")

	exists, err = s.Storage.RoomExists(s.Ctx, "ABC234")
	s.Require().NoError(err)
	s.True(exists)
}

func (s *Suite) TestUpdateRoom() {
	room := s.createRoom("ABC234")
	room.Started = true
	room.Timer = 42
	room.TimerStopped = true
	room.HostPlayerID = "p1"

	s.Require().NoError(s.Storage.UpdateRoom(s.Ctx, room))

	stored, err := s.Storage.GetRoom(s.Ctx, "ABC234")
	s.Require().NoError(err)
	s.True(stored.Started)
	s.Equal(42, stored.Timer)
	s.True(stored.TimerStopped)
	s.Equal(model.PlayerID("p1"), stored.HostPlayerID)
}

func (s *Suite) TestUpdateRoomNotFound() {
	err := s.Storage.UpdateRoom(s.Ctx, NewRoom("NOPE99"))
	s.ErrorIs(err, model.ErrRoomNotFound)
}

func (s *Suite) TestDeleteRoomCascades() {
	s.createRoom("ABC234")
	s.Require().NoError(s.Storage.SavePlayer(s.Ctx, "ABC234", NewPlayer("p1", "Alice", 0)))
	s.Require().NoError(s.Storage.AppendMessage(s.Ctx, &model.Message{
		ID: "m1", RoomID: "room-ABC234", RoomCode: "ABC234", AuthorID: "p1", AuthorPseudo: "Alice",
		Text: "hello", CreatedAt: BaseTime,
	}))

	s.Require().NoError(s.Storage.DeleteRoom(s.Ctx, "ABC234"))

	exists, err := s.Storage.RoomExists(s.Ctx, "ABC234")
	s.Require().NoError(err)
	s.False(exists)

	// A new room with the same code starts clean
	s.createRoom("ABC234")
	room, err := s.Storage.GetRoom(s.Ctx, "ABC234")
	s.Require().NoError(err)
	s.Empty(room.Players)
	msgs, err := s.Storage.ListMessages(s.Ctx, "ABC234", 0)
	s.Require().NoError(err)
	s.Empty(msgs)
}

func (s *Suite) TestDecrementTimer() {
	room := NewRoom("ABC234")
	room.Timer = 2
	s.Require().NoError(s.Storage.CreateRoom(s.Ctx, room))

	for _, want := range []int{1, 0, 0} {
		got, err := s.Storage.DecrementTimer(s.Ctx, "ABC234")
		s.Require().NoError(err)
		s.Equal(want, got)
	}

	stored, err := s.Storage.GetRoom(s.Ctx, "ABC234")
	s.Require().NoError(err)
	s.Equal(0, stored.Timer)
}

func (s *Suite) TestDecrementTimerNotFound() {
	_, err := s.Storage.DecrementTimer(s.Ctx, "NOPE99")
	s.ErrorIs(err, model.ErrRoomNotFound)
}

// Player tests

func (s *Suite) TestSavePlayersOrderedByJoin() {
	s.createRoom("ABC234")
	s.Require().NoError(s.Storage.SavePlayer(s.Ctx, "ABC234", NewPlayer("p2", "Bob", time.Minute)))
	s.Require().NoError(s.Storage.SavePlayer(s.Ctx, "ABC234", NewPlayer("p1", "Alice", 0)))

	room, err := s.Storage.GetRoom(s.Ctx, "ABC234")
	s.Require().NoError(err)
	s.Require().Len(room.Players, 2)
	s.Equal("Alice", room.Players[0].Pseudo)
	s.Equal("Bob", room.Players[1].Pseudo)
	s.Equal(model.SceneMain, room.Players[0].CurrentScene)
	s.True(room.Players[0].Connected)
	s.WithinDuration(BaseTime, room.Players[0].JoinedAt, time.Second)
}

func (s *Suite) TestSavePlayerUpdatesExisting() {
	s.createRoom("ABC234")
	player := NewPlayer("p1", "Alice", 0)
	s.Require().NoError(s.Storage.SavePlayer(s.Ctx, "ABC234", player))

	player.Connected = false
	player.CurrentScene = model.SceneEnigma2
	s.Require().NoError(s.Storage.SavePlayer(s.Ctx, "ABC234", player))

	room, err := s.Storage.GetRoom(s.Ctx, "ABC234")
	s.Require().NoError(err)
	s.Require().Len(room.Players, 1)
	s.False(room.Players[0].Connected)
	s.Equal(model.SceneEnigma2, room.Players[0].CurrentScene)
}

func (s *Suite) TestSaveHostPlayerRecordsRoomHost() {
	s.createRoom("ABC234")
	host := NewPlayer("p1", "Alice", 0)
	host.IsHost = true
	s.Require().NoError(s.Storage.SavePlayer(s.Ctx, "ABC234", host))
	s.Require().NoError(s.Storage.SavePlayer(s.Ctx, "ABC234", NewPlayer("p2", "Bob", time.Minute)))

	room, err := s.Storage.GetRoom(s.Ctx, "ABC234")
	s.Require().NoError(err)
	s.Equal(model.PlayerID("p1"), room.HostPlayerID)
	s.True(room.GetPlayer("p1").IsHost)
}

func (s *Suite) TestSavePlayerRoomNotFound() {
	err := s.Storage.SavePlayer(s.Ctx, "NOPE99", NewPlayer("p1", "Alice", 0))
	s.ErrorIs(err, model.ErrRoomNotFound)
}

func (s *Suite) TestDeletePlayer() {
	s.createRoom("ABC234")
	s.Require().NoError(s.Storage.SavePlayer(s.Ctx, "ABC234", NewPlayer("p1", "Alice", 0)))
	s.Require().NoError(s.Storage.SavePlayer(s.Ctx, "ABC234", NewPlayer("p2", "Bob", time.Minute)))

	s.Require().NoError(s.Storage.DeletePlayer(s.Ctx, "ABC234", "p1"))

	room, err := s.Storage.GetRoom(s.Ctx, "ABC234")
	s.Require().NoError(err)
	s.Require().Len(room.Players, 1)
	s.Equal(model.PlayerID("p2"), room.Players[0].ID)
}

func (s *Suite) TestTransferHost() {
	s.createRoom("ABC234")
	host := NewPlayer("p1", "Alice", 0)
	host.IsHost = true
	s.Require().NoError(s.Storage.SavePlayer(s.Ctx, "ABC234", host))
	s.Require().NoError(s.Storage.SavePlayer(s.Ctx, "ABC234", NewPlayer("p2", "Bob", time.Minute)))

	s.Require().NoError(s.Storage.TransferHost(s.Ctx, "ABC234", "p1", "p2"))

	room, err := s.Storage.GetRoom(s.Ctx, "ABC234")
	s.Require().NoError(err)
	s.Equal(model.PlayerID("p2"), room.HostPlayerID)
	s.False(room.GetPlayer("p1").IsHost)
	s.True(room.GetPlayer("p2").IsHost)
}

func (s *Suite) TestTransferHostToMissingPlayer() {
	s.createRoom("ABC234")
	err := s.Storage.TransferHost(s.Ctx, "ABC234", "p1", "ghost")
	s.ErrorIs(err, model.ErrNotFound)
}

// Enigma tests

func (s *Suite) TestSaveEnigmaIncrementsVersion() {
	s.createRoom("ABC234")
	room, err := s.Storage.GetRoom(s.Ctx, "ABC234")
	s.Require().NoError(err)

	enigma := room.GetEnigma(model.Enigma2).Clone()
	enigma.Data = json.RawMessage(`{"photos":["High-key","","","",""]}`)
	enigma.Completed = true
	s.Require().NoError(s.Storage.SaveEnigma(s.Ctx, "ABC234", &enigma))
	s.Equal(int64(1), enigma.Version)

	room, err = s.Storage.GetRoom(s.Ctx, "ABC234")
	s.Require().NoError(err)
	stored := room.GetEnigma(model.Enigma2)
	s.True(stored.Completed)
	s.Equal(int64(1), stored.Version)
	s.JSONEq(`{"photos":["High-key","","","",""]}`, string(stored.Data))

	// Other puzzles untouched
	s.Equal(int64(0), room.GetEnigma(model.Enigma3).Version)
}

func (s *Suite) TestSaveEnigmaStaleVersion() {
	s.createRoom("ABC234")
	room, err := s.Storage.GetRoom(s.Ctx, "ABC234")
	s.Require().NoError(err)

	first := room.GetEnigma(model.Enigma3).Clone()
	second := room.GetEnigma(model.Enigma3).Clone()

	first.Data = json.RawMessage(`{"roles":["jack"]}`)
	s.Require().NoError(s.Storage.SaveEnigma(s.Ctx, "ABC234", &first))

	second.Data = json.RawMessage(`{"roles":["rose"]}`)
	err = s.Storage.SaveEnigma(s.Ctx, "ABC234", &second)
	s.ErrorIs(err, model.ErrVersionConflict)

	room, err = s.Storage.GetRoom(s.Ctx, "ABC234")
	s.Require().NoError(err)
	s.JSONEq(`{"roles":["jack"]}`, string(room.GetEnigma(model.Enigma3).Data))
}

func (s *Suite) TestSaveEnigmaUnknown() {
	s.createRoom("ABC234")
	err := s.Storage.SaveEnigma(s.Ctx, "ABC234", &model.Enigma{ID: "enigma9", Data: json.RawMessage(`{}`)})
	s.ErrorIs(err, model.ErrNotFound)
}

// Message tests

func (s *Suite) TestListMessagesAscending() {
	s.createRoom("ABC234")
	for i := range 3 {
		s.Require().NoError(s.Storage.AppendMessage(s.Ctx, &model.Message{
			ID:           model.MessageID(fmt.Sprintf("m%d", i)),
			RoomID:       "room-ABC234",
			RoomCode:     "ABC234",
			AuthorID:     "p1",
			AuthorPseudo: "Alice",
			Text:         fmt.Sprintf("message %d", i),
			CreatedAt:    BaseTime.Add(time.Duration(i) * time.Second),
		}))
	}

	msgs, err := s.Storage.ListMessages(s.Ctx, "ABC234", 0)
	s.Require().NoError(err)
	s.Require().Len(msgs, 3)
	s.Equal("message 0", msgs[0].Text)
	s.Equal("message 2", msgs[2].Text)
	s.Equal("Alice", msgs[0].AuthorPseudo)
	s.Equal(model.PlayerID("p1"), msgs[0].AuthorID)

	latest, err := s.Storage.ListMessages(s.Ctx, "ABC234", 2)
	s.Require().NoError(err)
	s.Require().Len(latest, 2)
	s.Equal("message 1", latest[0].Text)
	s.Equal("message 2", latest[1].Text)
}

func (s *Suite) TestAppendMessageRoomNotFound() {
	err := s.Storage.AppendMessage(s.Ctx, &model.Message{ID: "m1", RoomCode: "NOPE99", Text: "hi"})
	s.ErrorIs(err, model.ErrRoomNotFound)
}

func (s *Suite) TestListMessagesRoomNotFound() {
	_, err := s.Storage.ListMessages(s.Ctx, "NOPE99", 0)
	s.ErrorIs(err, model.ErrRoomNotFound)
}
