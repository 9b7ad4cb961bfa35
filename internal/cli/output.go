package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/mcoot/escaperoom/internal/api/response"
	"github.com/mcoot/escaperoom/internal/realtime"
)

// Output handles formatting output based on the configured format
type Output struct {
	format string
	out    io.Writer
	errOut io.Writer
}

// NewOutput creates a new Output formatter
func NewOutput(format string, out, errOut io.Writer) *Output {
	return &Output{format: format, out: out, errOut: errOut}
}

// Print outputs data in the configured format
func (o *Output) Print(data any) {
	if o.format == "json" {
		o.printJSON(data)
	} else {
		o.printText(data)
	}
}

// PrintError outputs an error
func (o *Output) PrintError(err error) {
	if o.format == "json" {
		errData := map[string]any{
			"error": map[string]string{
				"message": err.Error(),
			},
		}
		data, _ := json.Marshal(errData)
		_, _ = fmt.Fprintln(o.errOut, string(data))
	} else {
		_, _ = fmt.Fprintf(o.errOut, "Error: %s\n", err)
	}
}

// PrintMessage outputs a simple message
func (o *Output) PrintMessage(msg string) {
	if o.format == "json" {
		data, _ := json.Marshal(map[string]string{"message": msg})
		_, _ = fmt.Fprintln(o.out, string(data))
	} else {
		_, _ = fmt.Fprintln(o.out, msg)
	}
}

// FrameLine is one server message as printed by play
type FrameLine struct {
	Time  time.Time       `json:"time"`
	Type  string          `json:"type"`
	Error string          `json:"error,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// PrintFrame outputs one server message. Names from older servers are
// printed under their current name.
func (o *Output) PrintFrame(now time.Time, env realtime.Envelope) {
	line := FrameLine{Time: now, Type: realtime.CanonicalMessage(env.Type), Data: env.Data}
	if isErrorName(env.Type) {
		line.Type = env.Type
		line.Error = string(realtime.NormalizeError(env.Type))
	}

	if o.format == "json" {
		data, _ := json.Marshal(line)
		_, _ = fmt.Fprintln(o.out, string(data))
		return
	}

	label := line.Type
	if line.Error != "" {
		label = "error " + line.Error
	}
	display := strings.ReplaceAll(string(line.Data), "\n", " ")
	if len(display) > 160 {
		display = display[:160] + "..."
	}
	_, _ = fmt.Fprintf(o.out, "[%s] %s: %s\n", now.Format("15:04:05"), label, display)
}

func isErrorName(messageType string) bool {
	return realtime.IsError(messageType) || strings.HasPrefix(messageType, "error")
}

func (o *Output) printJSON(data any) {
	enc := json.NewEncoder(o.out)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func (o *Output) printText(data any) {
	switch v := data.(type) {
	case response.Room:
		o.printRoom(v)
	case response.CreateRoomResponse:
		_, _ = fmt.Fprintf(o.out, "Room created: %s\n", v.Code)
	case response.MessagesResponse:
		o.printMessages(v)
	case response.HealthResponse:
		o.printHealth(v)
	default:
		// Fallback to JSON for unknown types
		o.printJSON(data)
	}
}

func (o *Output) printRoom(r response.Room) {
	w := o.out
	_, _ = fmt.Fprintf(w, "Room: %s\n", r.Code)
	if r.Started {
		state := "running"
		if r.TimerStopped {
			state = "stopped"
		}
		_, _ = fmt.Fprintf(w, "Started: yes (timer %s, %s)\n", formatTimer(r.Timer), state)
	} else {
		_, _ = fmt.Fprintf(w, "Started: no (timer %s)\n", formatTimer(r.Timer))
	}

	_, _ = fmt.Fprintf(w, "Players (%d):\n", len(r.Players))
	for _, p := range r.Players {
		flags := ""
		if p.IsHost {
			flags += " [host]"
		}
		if !p.Connected {
			flags += " [disconnected]"
		}
		_, _ = fmt.Fprintf(w, "  - %s (%s) in %s%s\n", p.Pseudo, p.ID, p.CurrentScene, flags)
	}

	ids := make([]string, 0, len(r.Enigmas))
	for id := range r.Enigmas {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	_, _ = fmt.Fprintln(w, "Enigmas:")
	for _, id := range ids {
		status := "unsolved"
		if r.Enigmas[id].Completed {
			status = "solved"
		}
		_, _ = fmt.Fprintf(w, "  - %s: %s\n", id, status)
	}
}

func (o *Output) printMessages(m response.MessagesResponse) {
	if len(m.Messages) == 0 {
		_, _ = fmt.Fprintln(o.out, "No messages")
		return
	}
	for _, msg := range m.Messages {
		_, _ = fmt.Fprintf(o.out, "[%s] %s: %s\n", msg.CreatedAt.Format("15:04:05"), msg.Author.Pseudo, msg.Text)
	}
}

func (o *Output) printHealth(h response.HealthResponse) {
	_, _ = fmt.Fprintf(o.out, "Status: %s\n", h.Status)
	_, _ = fmt.Fprintf(o.out, "Storage: %s\n", h.Storage)
	_, _ = fmt.Fprintf(o.out, "Rooms: %d\n", h.Rooms)
	_, _ = fmt.Fprintf(o.out, "Sockets: %d\n", h.Sockets)
}

func formatTimer(seconds int) string {
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
