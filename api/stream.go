// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/kopi-greenbeans/mcmonitor/monitor"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10

	// Views are complete states, so a slow client only needs the latest.
	streamBuffer = 1
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The dashboard may be served from another origin.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Stream upgrades to a WebSocket and pushes the view on connect and after
// every change.
func (h *Handler) Stream(c *gin.Context) {
	ctx := c.Request.Context()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.log.Warn(ctx, "websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	views := make(chan monitor.View, streamBuffer)
	push := func(v monitor.View) {
		for {
			select {
			case views <- v:
				return
			default:
			}
			// Replace a stale pending view with the newer one.
			select {
			case <-views:
			default:
			}
		}
	}

	id, unsubscribe := h.monitor.Subscribe(push)
	defer unsubscribe()

	// Any view already queued by the subscription is at least as new.
	select {
	case views <- h.monitor.Snapshot():
	default:
	}

	l := h.log.With(slog.String("subscriber", id))
	l.Debug(ctx, "stream opened")
	defer l.Debug(ctx, "stream closed")

	// Reads only serve to notice the client going away and to handle pongs.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return

		case v := <-views:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(v); err != nil {
				return
			}

		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
