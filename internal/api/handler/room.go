package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/mcoot/escaperoom/internal/api/apierr"
	"github.com/mcoot/escaperoom/internal/api/response"
	"github.com/mcoot/escaperoom/internal/model"
	"github.com/mcoot/escaperoom/internal/services/chat"
	"github.com/mcoot/escaperoom/internal/services/room"
)

// createAttempts bounds retries when a generated code collides
const createAttempts = 3

// RoomHandler handles room endpoints
type RoomHandler struct {
	roomController *room.Controller
	chatService    *chat.Service
	logger         *slog.Logger
}

// NewRoomHandler creates a new room handler
func NewRoomHandler(roomController *room.Controller, chatService *chat.Service, logger *slog.Logger) *RoomHandler {
	return &RoomHandler{
		roomController: roomController,
		chatService:    chatService,
		logger:         logger,
	}
}

// Create handles POST /api/v1/rooms
func (h *RoomHandler) Create(w http.ResponseWriter, r *http.Request) {
	var (
		created *model.Room
		err     error
	)
	for range createAttempts {
		created, err = h.roomController.CreateRoom(r.Context())
		if !errors.Is(err, model.ErrRoomCodeTaken) {
			break
		}
	}
	if err != nil {
		h.logger.Error("failed to create room", slog.String("error", err.Error()))
		apierr.WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusCreated, response.CreateRoomResponse{Code: string(created.Code)})
}

// Get handles GET /api/v1/rooms/{code}. A missing room is a 404, which the
// client uses as the existence check before joining.
func (h *RoomHandler) Get(w http.ResponseWriter, r *http.Request) {
	code := roomCode(r)

	found, err := h.roomController.GetRoom(r.Context(), code)
	if err != nil {
		apierr.WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.RoomFromModel(found))
}

// Messages handles GET /api/v1/rooms/{code}/messages
func (h *RoomHandler) Messages(w http.ResponseWriter, r *http.Request) {
	code := roomCode(r)

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			apierr.WriteError(w, apierr.NewInvalidRequestError("limit must be a positive integer"))
			return
		}
		limit = n
	}

	exists, err := h.roomController.RoomExists(r.Context(), code)
	if err != nil {
		apierr.WriteError(w, err)
		return
	}
	if !exists {
		apierr.WriteError(w, model.ErrRoomNotFound)
		return
	}

	messages, err := h.chatService.List(r.Context(), code, limit)
	if err != nil {
		apierr.WriteError(w, err)
		return
	}

	resp := response.MessagesResponse{Messages: make([]response.Message, len(messages))}
	for i, m := range messages {
		resp.Messages[i] = response.MessageFromModel(m)
	}
	response.JSON(w, http.StatusOK, resp)
}

// roomCode reads the code path variable. Codes are matched case-insensitively.
func roomCode(r *http.Request) model.RoomCode {
	return model.RoomCode(strings.ToUpper(mux.Vars(r)["code"]))
}
