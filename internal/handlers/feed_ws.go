package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"

	"github.com/rokuhara/jinrou/internal/middleware"
	"github.com/rokuhara/jinrou/internal/notify"
)

// FeedWSHandler streams engine events to a gateway over a websocket. The path
// suffix selects a room ("/feed/ws/<roomID>"); an empty suffix subscribes to
// every room. The gateway renders announcements and top-board updates from
// the event stream.
func FeedWSHandler(logger *logrus.Logger, b *notify.Broadcaster) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/feed/ws"), "/")

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"feed"},
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != "feed" {
			c.Close(websocket.StatusPolicyViolation, "client must speak the feed subprotocol")
			return
		}

		middleware.LogWebSocketConnect(logger, r.RemoteAddr, r.URL.Path)

		events, cancel := b.Subscribe(roomID)
		defer cancel()

		ctx := r.Context()
		var closeErr error
		for ev := range events {
			data, err := json.Marshal(ev)
			if err != nil {
				logger.Warnf("failed to marshal feed event: %v", err)
				continue
			}
			writeCtx, cancelWrite := context.WithTimeout(ctx, 10*time.Second)
			err = c.Write(writeCtx, websocket.MessageText, data)
			cancelWrite()
			if err != nil {
				closeErr = err
				break
			}
		}

		middleware.LogWebSocketDisconnect(logger, r.RemoteAddr, r.URL.Path, closeErr)
		c.Close(websocket.StatusNormalClosure, "feed closed")
	}
}
