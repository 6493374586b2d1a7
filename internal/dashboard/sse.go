package dashboard

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/linegrade/internal/models"
	"github.com/zulandar/linegrade/internal/session"
)

// heartbeatEvery keeps idle progress streams open through proxies.
const heartbeatEvery = 15 * time.Second

// progressEvent is the payload of a "progress" SSE event.
type progressEvent struct {
	SessionID        string `json:"session_id"`
	CompletedBatches int    `json:"completed_batches"`
	TotalBatches     int    `json:"total_batches"`
	RatedLines       int    `json:"rated_lines"`
	GradingStatus    string `json:"grading_status"`
}

// progress streams a session's grading progress as server-sent events. An
// event is sent whenever the progress changes; the stream ends with a
// "completed" event carrying the full grading state.
func (h *handlers) progress(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	state, err := h.sessions.State(ctx, id)
	if errors.Is(err, session.ErrNotFound) {
		errorJSON(c, http.StatusNotFound, err)
		return
	}
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	ticker := time.NewTicker(h.progressInterval)
	heartbeat := time.NewTicker(heartbeatEvery)
	defer ticker.Stop()
	defer heartbeat.Stop()

	var last progressEvent
	for {
		evt := progressOf(state)
		if evt != last {
			writeSSE(c.Writer, "progress", evt)
			last = evt
		}
		if state.GradingStatus == models.GradingCompleted {
			writeSSE(c.Writer, "completed", state)
			c.Writer.Flush()
			return
		}
		c.Writer.Flush()

		if !waitForTick(ctx.Done(), c.Writer, ticker.C, heartbeat.C) {
			return
		}

		next, err := h.sessions.State(ctx, id)
		if err != nil {
			if ctx.Err() == nil {
				writeSSE(c.Writer, "error", gin.H{"error": err.Error()})
				c.Writer.Flush()
			}
			return
		}
		state = next
	}
}

// waitForTick blocks until the next tick, writing heartbeats meanwhile. It
// returns false when the client went away.
func waitForTick(done <-chan struct{}, w gin.ResponseWriter, tick, heartbeat <-chan time.Time) bool {
	for {
		select {
		case <-done:
			return false
		case <-heartbeat:
			writeSSE(w, "heartbeat", map[string]string{
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			})
			w.Flush()
		case <-tick:
			return true
		}
	}
}

func progressOf(s *session.GradingState) progressEvent {
	return progressEvent{
		SessionID:        s.SessionID,
		CompletedBatches: s.CompletedBatches,
		TotalBatches:     s.TotalBatches,
		RatedLines:       len(s.LineRatings),
		GradingStatus:    s.GradingStatus,
	}
}

// writeSSE writes a single SSE event to the writer.
func writeSSE(w io.Writer, event string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, string(jsonData))
}
