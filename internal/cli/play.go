package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/mcoot/escaperoom/internal/realtime"
)

const playHelp = `Commands:
  /start                          start the game (host only)
  /scene <scene>                  move to another scene
  /move <key> <x> <y> [enigma]    drag an item to normalized coordinates
  /swap <a> <b> [enigma]          swap two items
  /update <index> <value> [enigma]  set a value, index - for the whole
                                  puzzle, value null to clear
  /submit [enigma]                check the puzzle on your scene
  /reset [enigma]                 reset the puzzle on your scene
  /leave                          leave the room
  /quit                           disconnect without leaving
Anything else is sent to the room chat.`

func newPlayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "play <code> <pseudo>",
		Short: "Join a room and play from the terminal",
		Long: `Join a room over the websocket protocol and print every message the
server sends. Lines read from standard input are sent as chat messages,
or as game intents when they start with a slash.

` + playHelp + `

Press Ctrl+C to disconnect.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return play(ctx, cmd.InOrStdin(), newOutput(cmd), args[0], args[1])
		},
	}
}

func play(ctx context.Context, in io.Reader, out *Output, code, pseudo string) error {
	socketURL, err := cfg.SocketURL()
	if err != nil {
		return err
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, socketURL, nil)
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if err := send(conn, command{Type: realtime.IntentJoin, Data: map[string]any{"code": code, "pseudo": pseudo}}); err != nil {
		return err
	}
	if err := awaitJoin(conn, out); err != nil {
		return err
	}

	// Reader
	done := make(chan error, 1)
	go func() {
		for {
			var env realtime.Envelope
			if err := conn.ReadJSON(&env); err != nil {
				done <- err
				return
			}
			out.PrintFrame(time.Now(), env)
		}
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			disconnect(conn)
			return nil
		case err := <-done:
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("connection lost: %w", err)
		case line, ok := <-lines:
			if !ok {
				// Let the server answer what was already sent
				disconnect(conn)
				select {
				case <-done:
				case <-time.After(time.Second):
				}
				return nil
			}
			c, err := parseCommand(line)
			if errors.Is(err, errNoCommand) {
				continue
			}
			if err != nil {
				out.PrintError(err)
				continue
			}
			if c.Quit {
				disconnect(conn)
				return nil
			}
			if c.Help {
				out.PrintMessage(playHelp)
				continue
			}
			if err := send(conn, c); err != nil {
				return err
			}
		}
	}
}

// awaitJoin prints frames until the server accepts or refuses the join
func awaitJoin(conn *websocket.Conn, out *Output) error {
	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	for {
		var env realtime.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return fmt.Errorf("join failed: %w", err)
		}
		out.PrintFrame(time.Now(), env)

		if realtime.CanonicalMessage(env.Type) == realtime.MsgJoined {
			return conn.SetReadDeadline(time.Time{})
		}
		if isErrorName(env.Type) {
			return fmt.Errorf("join failed: %s", realtime.NormalizeError(env.Type))
		}
	}
}

func send(conn *websocket.Conn, c command) error {
	frame, err := realtime.Encode(c.Type, c.Data)
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("send failed: %w", err)
	}
	return nil
}

func disconnect(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

// command is one parsed input line
type command struct {
	Type string
	Data map[string]any
	Quit bool
	Help bool
}

var errNoCommand = errors.New("empty line")

// parseCommand turns an input line into an intent. Lines not starting with
// a slash are chat messages.
func parseCommand(line string) (command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return command{}, errNoCommand
	}
	if !strings.HasPrefix(line, "/") {
		return command{Type: realtime.IntentChatSend, Data: map[string]any{"text": line}}, nil
	}

	fields := strings.Fields(line)
	name, args := fields[0], fields[1:]

	switch name {
	case "/quit":
		return command{Quit: true}, nil
	case "/help":
		return command{Help: true}, nil
	case "/start":
		return noArgs(realtime.IntentStart, args)
	case "/leave":
		return noArgs(realtime.IntentLeave, args)
	case "/submit":
		return withEnigma(realtime.IntentSubmit, args, 0, map[string]any{})
	case "/reset":
		return withEnigma(realtime.IntentReset, args, 0, map[string]any{})
	case "/scene":
		if len(args) != 1 {
			return command{}, fmt.Errorf("usage: /scene <scene>")
		}
		return command{Type: realtime.IntentChangeScene, Data: map[string]any{"scene": args[0]}}, nil
	case "/swap":
		if len(args) < 2 {
			return command{}, fmt.Errorf("usage: /swap <a> <b> [enigma]")
		}
		return withEnigma(realtime.IntentSwapSlots, args, 2, map[string]any{"a": args[0], "b": args[1]})
	case "/move":
		if len(args) < 3 {
			return command{}, fmt.Errorf("usage: /move <key> <x> <y> [enigma]")
		}
		x, errX := strconv.ParseFloat(args[1], 64)
		y, errY := strconv.ParseFloat(args[2], 64)
		if errX != nil || errY != nil {
			return command{}, fmt.Errorf("coordinates must be numbers")
		}
		item := map[string]any{"key": args[0], "x": x, "y": y}
		return withEnigma(realtime.IntentMove, args, 3, map[string]any{"items": []any{item}})
	case "/update":
		if len(args) < 2 {
			return command{}, fmt.Errorf("usage: /update <index> <value> [enigma]")
		}
		data := map[string]any{"value": json.RawMessage("null")}
		if args[1] != "null" {
			data["value"] = args[1]
		}
		if args[0] != "-" {
			index, err := strconv.Atoi(args[0])
			if err != nil {
				return command{}, fmt.Errorf("index must be a number or -")
			}
			data["index"] = index
		}
		return withEnigma(realtime.IntentUpdate, args, 2, data)
	default:
		return command{}, fmt.Errorf("unknown command %s, try /help", name)
	}
}

func noArgs(intent string, args []string) (command, error) {
	if len(args) != 0 {
		return command{}, fmt.Errorf("%s takes no arguments", intent)
	}
	return command{Type: intent}, nil
}

// withEnigma reads the optional target puzzle following n positional args
func withEnigma(intent string, args []string, n int, data map[string]any) (command, error) {
	switch len(args) - n {
	case 0:
	case 1:
		data["enigma"] = args[n]
	default:
		return command{}, fmt.Errorf("too many arguments")
	}
	return command{Type: intent, Data: data}, nil
}
