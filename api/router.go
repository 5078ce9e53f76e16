// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package api serves the monitor's state over HTTP and a WebSocket stream.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kopi-greenbeans/mcmonitor/internal/log"
	"github.com/kopi-greenbeans/mcmonitor/monitor"
)

// BasePath prefixes every dashboard endpoint.
const BasePath = "/api/v1"

// Handler binds the HTTP endpoints to a monitor.
type Handler struct {
	monitor *monitor.Monitor
	log     log.Logger
}

// NewRouter builds the gin engine.
func NewRouter(m *monitor.Monitor, logger *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogging(log.Wrap(logger)))

	h := &Handler{monitor: m, log: log.Wrap(logger)}

	v1 := r.Group(BasePath)
	{
		v1.GET("/snapshot", h.GetSnapshot)
		v1.GET("/readings/current", h.GetCurrent)
		v1.GET("/readings/window", h.GetWindow)
		v1.GET("/alarms", h.GetAlarms)
		v1.GET("/devices", h.GetDevices)

		v1.GET("/device", h.GetDevice)
		v1.PUT("/device", h.PutDevice)

		v1.GET("/thresholds", h.GetThresholds)
		v1.PUT("/thresholds", h.PutThresholds)

		v1.GET("/notifications", h.GetNotifications)
		v1.PUT("/notifications", h.PutNotifications)

		v1.POST("/export/csv", h.ExportCSV)

		v1.GET("/stream", h.Stream)
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}

func requestLogging(l log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		l.Debug(context.Background(), "request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("latency", time.Since(start)),
		)
	}
}
