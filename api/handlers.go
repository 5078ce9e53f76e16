// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kopi-greenbeans/mcmonitor/monitor"
)

// ExportUnavailableMessage is returned by the CSV export placeholder.
const ExportUnavailableMessage = "Ekspor CSV tersedia di versi build / gunakan tombol di UI demo."

type (
	deviceRequest struct {
		ID string `json:"id" binding:"required"`
	}

	thresholdsRequest struct {
		Min *float64 `json:"min"`
		Max *float64 `json:"max"`
	}

	notificationsRequest struct {
		Enabled *bool `json:"enabled" binding:"required"`
	}
)

// GetSnapshot serves the full monitor view.
func (h *Handler) GetSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, h.monitor.Snapshot())
}

// GetCurrent serves the latest reading and its status, or 204 before the
// first reading arrives.
func (h *Handler) GetCurrent(c *gin.Context) {
	v := h.monitor.Snapshot()
	if v.Current == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, gin.H{"current": v.Current, "status": v.Status})
}

// GetWindow serves the rolling reading window, oldest first.
func (h *Handler) GetWindow(c *gin.Context) {
	c.JSON(http.StatusOK, h.monitor.Snapshot().Window)
}

// GetAlarms serves the alarm log, newest first.
func (h *Handler) GetAlarms(c *gin.Context) {
	c.JSON(http.StatusOK, h.monitor.Alarms())
}

// GetDevices lists the selectable devices.
func (h *Handler) GetDevices(c *gin.Context) {
	c.JSON(http.StatusOK, monitor.Devices())
}

// GetDevice serves the selected device.
func (h *Handler) GetDevice(c *gin.Context) {
	c.JSON(http.StatusOK, h.monitor.Device())
}

// PutDevice selects a device. Unknown IDs are rejected with 404.
func (h *Handler) PutDevice(c *gin.Context) {
	var req deviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := h.monitor.SetDevice(req.ID); err != nil {
		var unknown *monitor.UnknownDeviceError
		if errors.As(err, &unknown) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		h.log.Err(c.Request.Context(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.monitor.Device())
}

// GetThresholds serves the moisture alarm band.
func (h *Handler) GetThresholds(c *gin.Context) {
	c.JSON(http.StatusOK, h.monitor.Thresholds())
}

// PutThresholds updates either bound of the alarm band.
func (h *Handler) PutThresholds(c *gin.Context) {
	var req thresholdsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := h.monitor.SetThresholds(req.Min, req.Max); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.monitor.Thresholds())
}

// GetNotifications reports whether alarm notifications are enabled.
func (h *Handler) GetNotifications(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"enabled": h.monitor.Notifications()})
}

// PutNotifications toggles alarm notifications.
func (h *Handler) PutNotifications(c *gin.Context) {
	var req notificationsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	h.monitor.SetNotifications(*req.Enabled)
	c.JSON(http.StatusOK, gin.H{"enabled": h.monitor.Notifications()})
}

// ExportCSV is a placeholder; export is not offered by this service.
func (h *Handler) ExportCSV(c *gin.Context) {
	c.JSON(http.StatusNotImplemented, gin.H{"message": ExportUnavailableMessage})
}
