package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/escaperoom/internal/api"
	"github.com/mcoot/escaperoom/internal/api/response"
	"github.com/mcoot/escaperoom/internal/factory"
	"github.com/mcoot/escaperoom/internal/realtime"
	"github.com/mcoot/escaperoom/internal/testutil"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line string
		want command
	}{
		{"hello there", command{Type: realtime.IntentChatSend, Data: map[string]any{"text": "hello there"}}},
		{"/start", command{Type: realtime.IntentStart}},
		{"/leave", command{Type: realtime.IntentLeave}},
		{"/quit", command{Quit: true}},
		{"/help", command{Help: true}},
		{"/scene enigma1", command{Type: realtime.IntentChangeScene, Data: map[string]any{"scene": "enigma1"}}},
		{"/submit", command{Type: realtime.IntentSubmit, Data: map[string]any{}}},
		{"/reset enigma2", command{Type: realtime.IntentReset, Data: map[string]any{"enigma": "enigma2"}}},
		{"/swap image1 image4", command{Type: realtime.IntentSwapSlots, Data: map[string]any{"a": "image1", "b": "image4"}}},
		{"/swap image1 image4 enigma1", command{Type: realtime.IntentSwapSlots, Data: map[string]any{"a": "image1", "b": "image4", "enigma": "enigma1"}}},
		{"/move key 0.5 -0.25", command{Type: realtime.IntentMove, Data: map[string]any{
			"items": []any{map[string]any{"key": "key", "x": 0.5, "y": -0.25}},
		}}},
		{"/update 2 blue", command{Type: realtime.IntentUpdate, Data: map[string]any{"index": 2, "value": "blue"}}},
		{"/update - on enigma3", command{Type: realtime.IntentUpdate, Data: map[string]any{"value": "on", "enigma": "enigma3"}}},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := parseCommand(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCommandNullValue(t *testing.T) {
	got, err := parseCommand("/update 1 null")
	require.NoError(t, err)

	frame, err := realtime.Encode(got.Type, got.Data)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"enigma.update","data":{"index":1,"value":null}}`, string(frame))
}

func TestParseCommandErrors(t *testing.T) {
	_, err := parseCommand("   ")
	assert.ErrorIs(t, err, errNoCommand)

	for _, line := range []string{
		"/dance",
		"/start now",
		"/scene",
		"/swap image1",
		"/move key up down",
		"/update one blue",
		"/submit enigma1 extra",
	} {
		_, err := parseCommand(line)
		assert.Error(t, err, line)
	}
}

func TestSocketURL(t *testing.T) {
	tests := []struct {
		server string
		want   string
	}{
		{"http://localhost:8080", "ws://localhost:8080/ws"},
		{"https://escape.example.com/", "wss://escape.example.com/ws"},
		{"http://host/prefix", "ws://host/prefix/ws"},
	}
	for _, tt := range tests {
		c := &Config{ServerURL: tt.server}
		got, err := c.SocketURL()
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := (&Config{ServerURL: "ftp://host"}).SocketURL()
	assert.Error(t, err)
}

func TestPrintFrame(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	var buf bytes.Buffer
	NewOutput("text", &buf, io.Discard).PrintFrame(now, realtime.Envelope{Type: "room:new-player", Data: json.RawMessage(`{"pseudo":"Bob"}`)})
	assert.Equal(t, "[12:00:00] room.newPlayer: {\"pseudo\":\"Bob\"}\n", buf.String())

	buf.Reset()
	NewOutput("json", &buf, io.Discard).PrintFrame(now, realtime.Envelope{Type: "errors:full"})
	var line FrameLine
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "errors:full", line.Type)
	assert.Equal(t, string(realtime.CodeRoomFull), line.Error)

	buf.Reset()
	NewOutput("text", &buf, io.Discard).PrintFrame(now, realtime.Envelope{Type: "error:teapot"})
	assert.Contains(t, buf.String(), "error error.unknown")
}

func TestPrintRoom(t *testing.T) {
	var buf bytes.Buffer
	NewOutput("text", &buf, io.Discard).Print(response.Room{
		Code:    "AB12C3",
		Started: true,
		Timer:   3599,
		Players: []response.Player{
			{ID: "p1", Pseudo: "Alice", IsHost: true, Connected: true, CurrentScene: "main"},
			{ID: "p2", Pseudo: "Bob", CurrentScene: "enigma1"},
		},
		Enigmas: map[string]response.Enigma{
			"enigma2": {},
			"enigma1": {Completed: true},
		},
	})

	out := buf.String()
	assert.Contains(t, out, "Room: AB12C3")
	assert.Contains(t, out, "timer 59:59, running")
	assert.Contains(t, out, "Alice (p1) in main [host]")
	assert.Contains(t, out, "Bob (p2) in enigma1 [disconnected]")
	assert.Less(t, strings.Index(out, "enigma1: solved"), strings.Index(out, "enigma2: unsolved"))
}

// syncBuffer is written by the play reader goroutine while the test reads it
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func startServer(t *testing.T) (*httptest.Server, *factory.TestApp) {
	t.Helper()

	app := factory.NewTestApp()
	logger := testutil.NopLogger()
	sockets := realtime.NewHandler(app.Services(), app.HubManager, realtime.DefaultHandlerConfig(), logger)
	server := httptest.NewServer(api.NewRouter(api.RouterConfig{
		Logger:         logger,
		RoomController: app.RoomController,
		ChatService:    app.ChatService,
		HubManager:     app.HubManager,
		Sockets:        sockets,
		StorageType:    app.StorageType,
		AllowedOrigin:  "*",
	}))
	t.Cleanup(func() {
		server.Close()
		_ = app.Close()
	})
	return server, app
}

func run(t *testing.T, server *httptest.Server, stdin io.Reader, stdout io.Writer, args ...string) error {
	t.Helper()

	cmd := NewRootCmd()
	cmd.SetArgs(append([]string{"--server", server.URL}, args...))
	cmd.SetIn(stdin)
	cmd.SetOut(stdout)
	cmd.SetErr(io.Discard)
	return cmd.Execute()
}

func TestRoomCommands(t *testing.T) {
	server, app := startServer(t)
	app.MockRandom.QueueString("AB12C3")

	var out bytes.Buffer
	require.NoError(t, run(t, server, nil, &out, "room", "create"))
	assert.Equal(t, "Room created: AB12C3\n", out.String())

	out.Reset()
	require.NoError(t, run(t, server, nil, &out, "-o", "json", "room", "get", "ab12c3"))
	var room response.Room
	require.NoError(t, json.Unmarshal(out.Bytes(), &room))
	assert.Equal(t, "AB12C3", room.Code)
	assert.Empty(t, room.Players)

	out.Reset()
	require.NoError(t, run(t, server, nil, &out, "room", "messages", "AB12C3"))
	assert.Equal(t, "No messages\n", out.String())

	err := run(t, server, nil, io.Discard, "room", "get", "ZZZZZZ")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "ROOM_NOT_FOUND", apiErr.Code)

	err = run(t, server, nil, io.Discard, "room", "messages", "AB12C3", "--limit", "-1")
	assert.Error(t, err)
}

func TestHealthCommand(t *testing.T) {
	server, _ := startServer(t)

	var out bytes.Buffer
	require.NoError(t, run(t, server, nil, &out, "-o", "json", "health"))

	var health response.HealthResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, factory.StorageTypeMemory, health.Storage)
}

func TestPlay(t *testing.T) {
	server, app := startServer(t)
	app.MockRandom.QueueString("AB12C3")
	_, err := app.RoomController.CreateRoom(t.Context())
	require.NoError(t, err)

	stdin, input := io.Pipe()
	out := &syncBuffer{}
	errCh := make(chan error, 1)
	go func() {
		errCh <- run(t, server, stdin, out, "play", "AB12C3", "Alice")
	}()

	assert.Eventually(t, func() bool {
		return strings.Contains(out.String(), realtime.MsgJoined)
	}, 2*time.Second, 10*time.Millisecond)

	_, err = io.WriteString(input, "hello from the terminal\n")
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		return strings.Contains(out.String(), realtime.MsgChatMessage)
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, input.Close())
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("play did not return after end of input")
	}

	messages, err := app.ChatService.List(t.Context(), "AB12C3", 0)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "hello from the terminal", messages[0].Text)
}

func TestPlayUnknownRoom(t *testing.T) {
	server, _ := startServer(t)

	var out bytes.Buffer
	err := run(t, server, strings.NewReader(""), &out, "play", "ZZZZZZ", "Alice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), string(realtime.CodeRoomNotFound))
	assert.Contains(t, out.String(), "error "+string(realtime.CodeRoomNotFound))
}
