package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const maxFrameSize = 64 << 10

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler upgrades the request and serves the socket until it closes. A
// token may be passed as ?token= to authenticate on connect; otherwise the
// client sends an authenticate frame.
func (g *Gateway) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			g.logger.Debug("upgrade failed", zap.Error(err))
			return
		}
		g.Serve(context.WithoutCancel(c.Request.Context()), conn, c.Query("token"))
	}
}

// Serve runs the read loop for an upgraded socket. Frames from one
// connection are handled in arrival order.
func (g *Gateway) Serve(ctx context.Context, conn *websocket.Conn, token string) {
	c := g.Open(conn)
	defer g.Close(c)

	conn.SetReadLimit(maxFrameSize)
	conn.SetPongHandler(func(string) error {
		c.markAlive()
		return nil
	})
	go g.writePump(c, conn)

	if token != "" {
		if err := g.authenticate(c, AuthenticateFrame{Token: token}); err != nil {
			return
		}
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				g.logger.Debug("read failed", zap.Uint64("conn", c.ID), zap.Error(err))
			}
			return
		}
		if err := g.HandleFrame(ctx, c, raw); errors.Is(err, errCloseConn) {
			return
		}
	}
}

// writePump copies queued frames to the socket. When Send is closed it
// flushes what is left, sends a close frame and drops the socket.
func (g *Gateway) writePump(c *Conn, conn *websocket.Conn) {
	defer conn.Close()
	for msg := range c.Send {
		_ = conn.SetWriteDeadline(time.Now().Add(g.opts.WriteWait))
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.terminate()
			for range c.Send {
			}
			return
		}
	}
	_ = conn.SetWriteDeadline(time.Now().Add(g.opts.WriteWait))
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
