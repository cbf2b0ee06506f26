package transport

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true }, // origin filtered by the server middleware
}

// ServeWS upgrades GET /ws connections. The actor identifies itself
// with user_id and username query parameters.
func ServeWS(hub *Hub, handler ActionHandler, logger *slog.Logger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		userID := ctx.Query("user_id")
		username := ctx.Query("username")
		if userID == "" || username == "" {
			ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing-identity"})
			return
		}

		conn, err := upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
		if err != nil {
			logger.Error("websocket upgrade failed", "user_id", userID, "err", err)
			return
		}
		NewClient(hub, conn, userID, username, handler, logger).Run()
	}
}
