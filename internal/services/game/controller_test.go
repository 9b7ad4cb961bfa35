package game

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/escaperoom/internal/dependencies/mocks"
	"github.com/mcoot/escaperoom/internal/model"
	"github.com/mcoot/escaperoom/internal/services/enigma"
	"github.com/mcoot/escaperoom/internal/services/events"
	"github.com/mcoot/escaperoom/internal/services/roomqueue"
	"github.com/mcoot/escaperoom/internal/services/timers"
	"github.com/mcoot/escaperoom/internal/storage"
	"github.com/mcoot/escaperoom/internal/storage/memory"
	"github.com/mcoot/escaperoom/internal/testutil"
)

const (
	testCode = model.RoomCode("AB12C3")
	alice    = model.PlayerID("alice-id")
	bob      = model.PlayerID("bob-id")
)

// conflictingStorage fails the first SaveEnigma calls with a version conflict
type conflictingStorage struct {
	storage.Storage
	conflicts int
	saves     int
}

func (c *conflictingStorage) SaveEnigma(ctx context.Context, code model.RoomCode, e *model.Enigma) error {
	c.saves++
	if c.conflicts > 0 {
		c.conflicts--
		return model.ErrVersionConflict
	}
	return c.Storage.SaveEnigma(ctx, code, e)
}

type ControllerSuite struct {
	suite.Suite
	storage    *memory.Storage
	clock      *mocks.MockClock
	timers     *timers.Registry
	recorder   *events.Recorder
	controller *Controller
	ctx        context.Context
}

func TestControllerSuite(t *testing.T) {
	suite.Run(t, new(ControllerSuite))
}

func (s *ControllerSuite) SetupTest() {
	s.storage = memory.New()
	s.clock = mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	s.timers = timers.New(s.clock)
	s.recorder = events.NewRecorder()
	s.controller = s.newController(s.storage, DefaultConfig())
	s.ctx = context.Background()
	s.seedRoom()
}

func (s *ControllerSuite) newController(store storage.Storage, config Config) *Controller {
	return NewController(
		store,
		roomqueue.New(),
		s.timers,
		enigma.DefaultRegistry(),
		s.recorder,
		s.clock,
		testutil.NopLogger(),
		config,
	)
}

func (s *ControllerSuite) seedRoom() {
	states, err := enigma.DefaultRegistry().InitialStates()
	s.Require().NoError(err)
	now := s.clock.Now()
	room := &model.Room{
		ID:           "room-1",
		Code:         testCode,
		Timer:        3600,
		HostPlayerID: alice,
		Players: []model.Player{
			{ID: alice, Pseudo: "Alice", IsHost: true, Connected: true, CurrentScene: model.SceneMain, JoinedAt: now},
			{ID: bob, Pseudo: "Bob", Connected: true, CurrentScene: model.SceneMain, JoinedAt: now.Add(time.Second)},
		},
		Enigmas:   states,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.Require().NoError(s.storage.CreateRoom(context.Background(), room))
}

func (s *ControllerSuite) room() *model.Room {
	room, err := s.storage.GetRoom(s.ctx, testCode)
	s.Require().NoError(err)
	return room
}

func (s *ControllerSuite) complete(ids ...model.EnigmaID) {
	room := s.room()
	for _, id := range ids {
		e := room.GetEnigma(id)
		e.Completed = true
		s.Require().NoError(s.storage.SaveEnigma(s.ctx, testCode, e))
	}
}

func (s *ControllerSuite) start() {
	_, err := s.controller.StartGame(s.ctx, testCode, alice)
	s.Require().NoError(err)
	s.recorder.Reset()
}

func (s *ControllerSuite) lastChange() model.Change {
	updates := s.recorder.OfType(model.EventRoomUpdated)
	s.Require().NotEmpty(updates)
	return updates[len(updates)-1].Payload.(model.RoomUpdatedPayload).Change
}

// StartGame tests

func (s *ControllerSuite) TestStartGameByHost() {
	room, err := s.controller.StartGame(s.ctx, testCode, alice)
	s.Require().NoError(err)

	s.True(room.Started)
	s.False(room.TimerStopped)
	s.Equal(3600, room.Timer)
	s.True(s.room().Started)
	s.Equal([]model.EventType{model.EventGameStarted, model.EventSceneChanged}, s.recorder.Types())

	scene := s.recorder.OfType(model.EventSceneChanged)[0]
	s.Empty(scene.Recipient)
	s.Equal(model.SceneMain, scene.Payload.(model.SceneChangedPayload).Scene)
	s.True(s.timers.Pending(timers.TickKey(testCode)))
}

func (s *ControllerSuite) TestStartGameByGuestIsNotAuthorized() {
	_, err := s.controller.StartGame(s.ctx, testCode, bob)
	s.ErrorIs(err, model.ErrNotAuthorized)

	_, err = s.controller.StartGame(s.ctx, testCode, "stranger")
	s.ErrorIs(err, model.ErrNotAuthorized)

	s.False(s.room().Started)
	s.Empty(s.recorder.Events())
}

func (s *ControllerSuite) TestStartGameTwiceFails() {
	s.start()

	_, err := s.controller.StartGame(s.ctx, testCode, alice)
	s.ErrorIs(err, model.ErrGameAlreadyStarted)
}

func (s *ControllerSuite) TestStartGameUnknownRoom() {
	_, err := s.controller.StartGame(s.ctx, "ZZZZZZ", alice)
	s.ErrorIs(err, model.ErrRoomNotFound)
}

// Countdown tests

func (s *ControllerSuite) TestTickDecrementsByOne() {
	s.start()

	s.clock.Advance(time.Second)
	s.Equal(3599, s.room().Timer)

	s.clock.Advance(2 * time.Second)
	s.Equal(3597, s.room().Timer)

	ticks := s.recorder.OfType(model.EventRoomUpdated)
	s.Require().Len(ticks, 3)
	for i, e := range ticks {
		change := e.Payload.(model.RoomUpdatedPayload).Change
		s.Equal(model.ChangeKindTimer, change.Kind)
		s.Equal(model.TimerChange{Timer: 3599 - i}, change.Data)
	}
}

func (s *ControllerSuite) TestNoTicksBeforeStart() {
	s.clock.Advance(5 * time.Second)

	s.Equal(3600, s.room().Timer)
	s.Empty(s.recorder.Events())
}

func (s *ControllerSuite) TestTimeoutEndsGame() {
	s.controller = s.newController(s.storage, Config{
		TimerStart:   2 * time.Second,
		TickInterval: time.Second,
		Gating:       DefaultConfig().Gating,
	})
	s.start()

	s.clock.Advance(2 * time.Second)
	s.Equal(0, s.room().Timer)
	s.False(s.room().TimerStopped)
	s.Empty(s.recorder.OfType(model.EventGameOver))

	s.clock.Advance(time.Second)
	room := s.room()
	s.Equal(0, room.Timer)
	s.True(room.TimerStopped)

	over := s.recorder.OfType(model.EventGameOver)
	s.Require().Len(over, 1)
	s.Equal(model.StopReasonTimeout, over[0].Payload.(model.GameOverPayload).Reason)
	s.Equal(model.TimerChange{Timer: 0, Stopped: true, Reason: model.StopReasonTimeout}, s.lastChange().Data)

	// The loop is gone once stopped
	s.False(s.timers.Pending(timers.TickKey(testCode)))
	s.recorder.Reset()
	s.clock.Advance(10 * time.Second)
	s.Empty(s.recorder.Events())
	s.Equal(0, s.room().Timer)
}

func (s *ControllerSuite) TestCompletionStopsCountdown() {
	s.start()
	s.clock.Advance(time.Second)

	s.complete(model.Enigma1, model.Enigma2, model.Enigma3)
	s.clock.Advance(time.Second)

	room := s.room()
	s.True(room.TimerStopped)
	s.Equal(3599, room.Timer)
	s.Equal(model.TimerChange{Timer: 3599, Stopped: true, Reason: model.StopReasonCompleted}, s.lastChange().Data)
	s.Empty(s.recorder.OfType(model.EventGameOver))

	s.clock.Advance(30 * time.Second)
	s.Equal(3599, s.room().Timer)
	s.False(s.timers.Pending(timers.TickKey(testCode)))
}

func (s *ControllerSuite) TestPartialCompletionKeepsCounting() {
	s.start()
	s.complete(model.Enigma1, model.Enigma2, model.Enigma4)

	s.clock.Advance(time.Second)

	s.False(s.room().TimerStopped)
	s.Equal(3599, s.room().Timer)
}

func (s *ControllerSuite) TestGatingIsConfigurable() {
	s.controller = s.newController(s.storage, Config{
		TimerStart:   time.Hour,
		TickInterval: time.Second,
		Gating:       []model.EnigmaID{model.Enigma2},
	})
	s.start()
	s.complete(model.Enigma2)

	s.clock.Advance(time.Second)

	s.True(s.room().TimerStopped)
}

func (s *ControllerSuite) TestCountdownStopsWhenRoomDeleted() {
	s.start()
	s.Require().NoError(s.storage.DeleteRoom(s.ctx, testCode))

	s.clock.Advance(time.Second)

	s.False(s.timers.Pending(timers.TickKey(testCode)))
	s.Empty(s.recorder.Events())
}

func (s *ControllerSuite) TestResumeTimer() {
	room := s.room()
	room.Started = true
	s.Require().NoError(s.storage.UpdateRoom(s.ctx, room))

	s.controller.ResumeTimer(room)
	s.True(s.timers.Pending(timers.TickKey(testCode)))

	s.clock.Advance(time.Second)
	s.Equal(3599, s.room().Timer)
}

func (s *ControllerSuite) TestResumeTimerIgnoresIdleRooms() {
	s.controller.ResumeTimer(s.room())
	s.False(s.timers.Pending(timers.TickKey(testCode)))

	room := s.room()
	room.Started = true
	room.TimerStopped = true
	s.controller.ResumeTimer(room)
	s.False(s.timers.Pending(timers.TickKey(testCode)))
}

func (s *ControllerSuite) TestStopTimer() {
	s.start()
	s.controller.StopTimer(testCode)

	s.clock.Advance(5 * time.Second)
	s.Equal(3600, s.room().Timer)
}

// ChangeScene tests

func (s *ControllerSuite) TestSceneGuard() {
	room, err := s.controller.ChangeScene(s.ctx, testCode, alice, model.SceneEnigma2)
	s.Require().NoError(err)
	s.Equal(model.SceneEnigma2, room.GetPlayer(alice).CurrentScene)

	_, err = s.controller.ChangeScene(s.ctx, testCode, alice, model.SceneEnigma3)
	s.ErrorIs(err, model.ErrInvalidSceneChange)
	s.Equal(model.SceneEnigma2, s.room().GetPlayer(alice).CurrentScene)

	room, err = s.controller.ChangeScene(s.ctx, testCode, alice, model.SceneMain)
	s.Require().NoError(err)
	s.Equal(model.SceneMain, room.GetPlayer(alice).CurrentScene)
}

func (s *ControllerSuite) TestSceneChangeOnlyTellsRequester() {
	_, err := s.controller.ChangeScene(s.ctx, testCode, bob, model.SceneEnigma1)
	s.Require().NoError(err)

	evts := s.recorder.Events()
	s.Require().Len(evts, 2)
	for _, e := range evts {
		s.Equal(bob, e.Recipient)
	}
	s.Equal(model.EventSceneChanged, evts[0].Type)
	s.Equal(model.SceneEnigma1, evts[0].Payload.(model.SceneChangedPayload).Scene)
	s.Equal(model.ChangeKindSceneChange, s.lastChange().Kind)

	// The other player is unaffected
	s.Equal(model.SceneMain, s.room().GetPlayer(alice).CurrentScene)
}

func (s *ControllerSuite) TestSceneChangeRejectsSameScene() {
	_, err := s.controller.ChangeScene(s.ctx, testCode, alice, model.SceneMain)
	s.ErrorIs(err, model.ErrInvalidSceneChange)
	s.Empty(s.recorder.Events())
}

func (s *ControllerSuite) TestSceneChangeUnknownPlayer() {
	_, err := s.controller.ChangeScene(s.ctx, testCode, "ghost", model.SceneEnigma1)
	s.ErrorIs(err, model.ErrNotFound)
}

// Puzzle tests

func (s *ControllerSuite) TestSwapOnCurrentScene() {
	_, err := s.controller.ChangeScene(s.ctx, testCode, alice, model.SceneEnigma1)
	s.Require().NoError(err)
	s.recorder.Reset()

	before := s.room().GetEnigma(model.Enigma1)

	room, err := s.controller.ApplyPatch(s.ctx, testCode, alice, "", enigma.Patch{Op: enigma.OpSwap, A: "image1", B: "image2"})
	s.Require().NoError(err)

	after := room.GetEnigma(model.Enigma1)
	s.Equal(before.Version+1, after.Version)
	s.NotEqual(string(before.Data), string(after.Data))

	change := s.lastChange()
	s.Equal("enigma1:swap-slots", change.Kind)
	s.Equal(map[string]string{"slot1": "image1", "slot2": "image2"}, change.Data)
	s.Empty(s.recorder.Events()[0].Recipient)

	// Swapping back restores the original layout
	room, err = s.controller.ApplyPatch(s.ctx, testCode, bob, model.Enigma1, enigma.Patch{Op: enigma.OpSwap, A: "image1", B: "image2"})
	s.Require().NoError(err)
	s.JSONEq(string(before.Data), string(room.GetEnigma(model.Enigma1).Data))
}

func (s *ControllerSuite) TestPatchNeedsPuzzleScene() {
	_, err := s.controller.ApplyPatch(s.ctx, testCode, alice, "", enigma.Patch{Op: enigma.OpSwap, A: "image1", B: "image2"})
	s.ErrorIs(err, model.ErrValidationFailed)
}

func (s *ControllerSuite) TestPatchUnknownEnigma() {
	_, err := s.controller.ApplyPatch(s.ctx, testCode, alice, "enigma9", enigma.Patch{Op: enigma.OpUpdate})
	s.ErrorIs(err, model.ErrValidationFailed)
}

func (s *ControllerSuite) TestPatchUnknownPlayer() {
	_, err := s.controller.ApplyPatch(s.ctx, testCode, "ghost", model.Enigma1, enigma.Patch{Op: enigma.OpSwap, A: "image1", B: "image2"})
	s.ErrorIs(err, model.ErrNotFound)
}

func (s *ControllerSuite) TestFailedPatchLeavesStateUntouched() {
	before := s.room().GetEnigma(model.Enigma1)

	_, err := s.controller.ApplyPatch(s.ctx, testCode, alice, model.Enigma1, enigma.Patch{
		Op:    enigma.OpMove,
		Items: []enigma.MoveItem{{Key: "image1", X: 0.1, Y: 0.1}, {Key: "missing", X: 0, Y: 0}},
	})
	s.ErrorIs(err, model.ErrNotFound)

	after := s.room().GetEnigma(model.Enigma1)
	s.Equal(before.Version, after.Version)
	s.JSONEq(string(before.Data), string(after.Data))
	s.Empty(s.recorder.Events())
}

func (s *ControllerSuite) TestPatchRetriesVersionConflict() {
	store := &conflictingStorage{Storage: s.storage, conflicts: 1}
	s.controller = s.newController(store, DefaultConfig())
	value := "High-key"

	room, err := s.controller.ApplyPatch(s.ctx, testCode, alice, model.Enigma2, enigma.Patch{Op: enigma.OpUpdate, Index: 2, Value: &value})
	s.Require().NoError(err)

	s.Equal(2, store.saves)
	s.JSONEq(`{"photos":["","","High-key","",""]}`, string(room.GetEnigma(model.Enigma2).Data))
}

func (s *ControllerSuite) TestPatchGivesUpAfterRepeatedConflicts() {
	store := &conflictingStorage{Storage: s.storage, conflicts: maxSaveAttempts}
	s.controller = s.newController(store, DefaultConfig())
	value := "x"

	_, err := s.controller.ApplyPatch(s.ctx, testCode, alice, model.Enigma2, enigma.Patch{Op: enigma.OpUpdate, Index: 0, Value: &value})
	s.ErrorIs(err, model.ErrVersionConflict)
	s.Equal(maxSaveAttempts, store.saves)
}

func (s *ControllerSuite) TestSubmitWrongSolution() {
	completed, err := s.controller.Submit(s.ctx, testCode, alice, model.Enigma2)
	s.Require().NoError(err)

	s.False(completed)
	s.False(s.room().GetEnigma(model.Enigma2).Completed)
	change := s.lastChange()
	s.Equal("enigma2:submit-result", change.Kind)
	s.Equal(model.SubmitResult{Completed: false}, change.Data)
}

func (s *ControllerSuite) TestCompletionLatchSurvivesReset() {
	for i, v := range enigma.DefaultLightingSolution {
		_, err := s.controller.ApplyPatch(s.ctx, testCode, alice, model.Enigma2, enigma.Patch{Op: enigma.OpUpdate, Index: i, Value: &v})
		s.Require().NoError(err)
	}

	completed, err := s.controller.Submit(s.ctx, testCode, bob, model.Enigma2)
	s.Require().NoError(err)
	s.True(completed)
	s.Equal(model.SubmitResult{Completed: true}, s.lastChange().Data)

	room, err := s.controller.ResetEnigma(s.ctx, testCode, alice, model.Enigma2)
	s.Require().NoError(err)
	s.Equal("enigma2:reset", s.lastChange().Kind)

	state := room.GetEnigma(model.Enigma2)
	s.True(state.Completed)
	var photos enigma.PhotoState
	s.Require().NoError(json.Unmarshal(state.Data, &photos))
	s.Equal([]string{"", "", "", "", ""}, photos.Photos)

	// Submitting the now empty state does not undo completion
	completed, err = s.controller.Submit(s.ctx, testCode, bob, model.Enigma2)
	s.Require().NoError(err)
	s.True(completed)
	s.True(s.room().GetEnigma(model.Enigma2).Completed)
}

func (s *ControllerSuite) TestAmbianceNeverCompletes() {
	value := "noir"
	_, err := s.controller.ApplyPatch(s.ctx, testCode, alice, model.Enigma4, enigma.Patch{Op: enigma.OpUpdate, Value: &value})
	s.Require().NoError(err)

	completed, err := s.controller.Submit(s.ctx, testCode, alice, model.Enigma4)
	s.Require().NoError(err)
	s.False(completed)
}
