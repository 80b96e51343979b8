package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"questionnaire-agent-go/internal/service"
	"questionnaire-agent-go/pkg/log"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// JobHandler serves job polling, cancellation and the push stream.
type JobHandler struct {
	jobService service.JobService
}

// NewJobHandler creates a JobHandler.
func NewJobHandler(jobService service.JobService) *JobHandler {
	return &JobHandler{jobService: jobService}
}

// GetRequestStatus is the polling endpoint for a single job.
func (h *JobHandler) GetRequestStatus(c *gin.Context) {
	job, err := h.jobService.Get(c.Param("jobID"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, job)
}

// ListActiveJobs returns all PENDING and RUNNING jobs, oldest first.
func (h *JobHandler) ListActiveJobs(c *gin.Context) {
	jobs, err := h.jobService.ListActive()
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, jobs)
}

// CancelJob requests cooperative cancellation of a running job. The worker
// notices the flag at its next checkpoint.
func (h *JobHandler) CancelJob(c *gin.Context) {
	if err := h.jobService.RequestCancel(c.Param("jobID")); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"job_id": c.Param("jobID"), "cancel_requested": true})
}

// Stream upgrades to a WebSocket and pushes every job update until the
// client disconnects. Slow clients miss updates rather than blocking
// workers, so the polling endpoint stays the source of truth.
func (h *JobHandler) Stream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Errorf("[JobHandler] websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	updates, unsubscribe := h.jobService.Subscribe()
	defer unsubscribe()

	// Drain the read side so client-initiated closes are noticed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	log.Info("[JobHandler] job stream client connected")
	for {
		select {
		case <-done:
			return
		case job, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.WriteJSON(job); err != nil {
				log.Warnf("[JobHandler] job stream write failed: %v", err)
				return
			}
		}
	}
}
