package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"quitescan/internal/attendance"
	"quitescan/internal/metrics"
)

// ProcessScan toggles a student's check-in state from a scanned token. The
// endpoint always answers 200 with a success/failure payload so the scanner
// UI only ever deals with one response shape.
func (h *Handler) ProcessScan(c *gin.Context) {
	var req struct {
		QRCode string `json:"qr_code"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.QRCode == "" {
		c.JSON(http.StatusOK, gin.H{"success": false, "message": "QR code is required"})
		return
	}

	result, err := h.scans.ProcessScan(c.Request.Context(), req.QRCode)
	if err != nil {
		if errors.Is(err, attendance.ErrInvalidCode) {
			metrics.Scans.WithLabelValues("invalid").Inc()
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "Invalid QR code"})
			return
		}
		log.Printf("process scan failed: %v", err)
		c.JSON(http.StatusOK, gin.H{"success": false, "message": "Scan failed, please try again"})
		return
	}

	metrics.Scans.WithLabelValues(result.Action).Inc()
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"message":      result.Message,
		"student_name": result.StudentName,
		"action":       result.Action,
		"timestamp":    result.Timestamp.Format("2006-01-02 15:04:05"),
	})
}
