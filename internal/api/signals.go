package api

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"signal-bridge/internal/monitor"
	"signal-bridge/internal/pipeline"
	"signal-bridge/internal/queue"
	"signal-bridge/pkg/db"

	"github.com/gin-gonic/gin"
)

const maxImageBytes = 10 << 20

type textRequest struct {
	Text      string `json:"text"`
	ChannelID string `json:"channel_id"`
	Wait      bool   `json:"wait"`
}

func (s *Server) submitText(c *gin.Context) {
	var req textRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":  "INVALID_PAYLOAD",
			"error": "invalid request payload",
		})
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":  "MISSING_TEXT",
			"error": "text is required",
		})
		return
	}
	if !s.channelAllowed(c, req.ChannelID) {
		return
	}
	s.submit(c, pipeline.Task{Source: pipeline.SourceText, ChannelID: req.ChannelID, Text: req.Text}, req.Wait)
}

func (s *Server) submitImage(c *gin.Context) {
	channelID := c.PostForm("channel_id")
	if !s.channelAllowed(c, channelID) {
		return
	}
	if s.Pipeline == nil || !s.Pipeline.CanReadImages() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"code":  "OCR_DISABLED",
			"error": "image intake is not configured",
		})
		return
	}
	fh, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":  "MISSING_IMAGE",
			"error": "multipart field \"image\" is required",
		})
		return
	}
	if fh.Size > maxImageBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"code":  "IMAGE_TOO_LARGE",
			"error": "image exceeds 10MB",
		})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_IMAGE", "error": "cannot read image"})
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxImageBytes))
	if err != nil || len(data) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_IMAGE", "error": "cannot read image"})
		return
	}

	wait, _ := strconv.ParseBool(c.Query("wait"))
	s.submit(c, pipeline.Task{Source: pipeline.SourceImage, ChannelID: channelID, Image: data}, wait)
}

// channelAllowed writes 403 and returns false when the request comes from
// a channel other than the configured one.
func (s *Server) channelAllowed(c *gin.Context, channelID string) bool {
	if s.AllowedChannelID == "" || channelID == s.AllowedChannelID {
		return true
	}
	c.JSON(http.StatusForbidden, gin.H{
		"code":  "CHANNEL_NOT_ALLOWED",
		"error": "signals are only accepted from the configured channel",
	})
	return false
}

func (s *Server) submit(c *gin.Context, task pipeline.Task, wait bool) {
	if s.Worker == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"code": "NOT_READY", "error": "signal worker not running"})
		return
	}
	var reply chan pipeline.Outcome
	if wait {
		reply = make(chan pipeline.Outcome, 1)
		task.Reply = reply
	}

	taskID, err := s.Worker.Submit(task)
	switch {
	case errors.Is(err, pipeline.ErrQueueFull):
		c.JSON(http.StatusServiceUnavailable, gin.H{"code": "QUEUE_FULL", "error": "signal queue is full, retry later"})
		return
	case err != nil:
		c.JSON(http.StatusServiceUnavailable, gin.H{"code": "SHUTTING_DOWN", "error": "signal worker stopped"})
		return
	}

	if !wait {
		c.JSON(http.StatusAccepted, gin.H{"task_id": taskID})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.WaitTimeout)
	defer cancel()
	select {
	case out := <-reply:
		c.JSON(http.StatusOK, out)
	case <-ctx.Done():
		c.JSON(http.StatusAccepted, gin.H{"task_id": taskID, "message": "still processing"})
	}
}

func (s *Server) listPending(c *gin.Context) {
	if s.Store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"code": "NOT_READY", "error": "signal queue not configured"})
		return
	}
	recs, err := s.Store.ListPending(c.Request.Context())
	if err != nil {
		internalError(c, err)
		return
	}
	if recs == nil {
		recs = []queue.SignalRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"signals": recs, "count": len(recs)})
}

func (s *Server) getSignal(c *gin.Context) {
	if s.Store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"code": "NOT_READY", "error": "signal queue not configured"})
		return
	}
	rec, err := s.Store.Get(c.Param("id"))
	switch {
	case errors.Is(err, queue.ErrInvalidID):
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_ID", "error": "invalid signal id"})
	case errors.Is(err, queue.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "NOT_FOUND", "error": "signal not found"})
	case err != nil:
		internalError(c, err)
	default:
		c.JSON(http.StatusOK, rec)
	}
}

func (s *Server) getSignalAudit(c *gin.Context) {
	if s.DB == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"code": "NOT_READY", "error": "audit store not configured"})
		return
	}
	entries, err := s.DB.ListAuditBySignal(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, db.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "NOT_FOUND", "error": "no audit rows for signal"})
	case err != nil:
		internalError(c, err)
	default:
		c.JSON(http.StatusOK, gin.H{"entries": entries})
	}
}

func (s *Server) getRecentAudit(c *gin.Context) {
	if s.DB == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"code": "NOT_READY", "error": "audit store not configured"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	entries, err := s.DB.RecentAudit(c.Request.Context(), limit)
	if err != nil {
		internalError(c, err)
		return
	}
	if entries == nil {
		entries = []db.AuditEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (s *Server) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.Status(c.Request.Context()))
}

// Status assembles the runtime summary from the wired components.
func (s *Server) Status(ctx context.Context) monitor.Status {
	st := monitor.Status{
		Mode:     s.Meta.Mode,
		Degraded: s.Meta.Degraded,
		Version:  s.Meta.Version,
		Uptime:   time.Since(s.Meta.StartedAt).Round(time.Second).String(),
	}
	if s.Worker != nil {
		st.QueuedTasks = s.Worker.Pending()
	}
	if s.Pipeline != nil {
		st.ImageIntake = s.Pipeline.CanReadImages()
	}
	if s.Store != nil {
		m := s.Store.Metrics()
		st.SignalsDir = s.Store.PendingDir()
		st.Store = &m
		if recs, err := s.Store.ListPending(ctx); err == nil {
			st.PendingSignals = len(recs)
		}
	}
	return st
}

func (s *Server) getMetrics(c *gin.Context) {
	if s.Metrics == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"code": "NOT_READY", "error": "metrics not initialized"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"metrics":        s.Metrics.GetSnapshot(),
		"dropped_events": s.Bus.Dropped(),
	})
}

// internalError logs err and answers 500 without exposing it.
func internalError(c *gin.Context, err error) {
	log.Printf("❌ %s %s: %v", c.Request.Method, c.FullPath(), err)
	c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL_ERROR", "error": "internal error"})
}
