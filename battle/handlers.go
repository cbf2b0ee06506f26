package battle

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handler exposes the read-only REST surface next to the websocket
// protocol: clients browsing the lobby poll these before connecting.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RoomInfoHandler serves GET /battle/room/:roomId.
func (h *Handler) RoomInfoHandler(ctx *gin.Context) {
	snap, err := h.svc.GetRoomInfo(ctx.Param("roomId"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrRoomNotFound) {
			status = http.StatusNotFound
		}
		ctx.JSON(status, gin.H{"success": false, "message": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"success": true, "room": snap})
}

// RoomListHandler serves GET /battle/rooms with the joinable rooms.
func (h *Handler) RoomListHandler(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"success": true, "rooms": h.svc.ListRooms()})
}
