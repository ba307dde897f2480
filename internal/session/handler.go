package session

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// The session performs its own credential check; origin is not an
		// authentication boundary here.
		return true
	},
}

// Handler upgrades the request to a websocket and hands it to the
// orchestrator. The handler returns only when the session has concluded.
func (o *Orchestrator) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			o.log.Warn("websocket upgrade failed", zap.Error(err))
			return
		}
		o.Serve(c.Request.Context(), ws, c.ClientIP())
	}
}
