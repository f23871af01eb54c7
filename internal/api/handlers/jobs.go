package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/parkline/ticketspool/internal/core"
	"github.com/parkline/ticketspool/internal/escpos"
)

// CreateJobRequest submits either a parking ticket, rendered with the
// configured layout, or a pre-rendered base64 payload. Jobs can only target
// registered printers.
type CreateJobRequest struct {
	PrinterID   string         `json:"printer_id"`
	TicketType  string         `json:"ticket_type"`
	Priority    string         `json:"priority"`
	Ticket      *escpos.Ticket `json:"ticket"`
	Payload     []byte         `json:"payload"`
	Copies      int            `json:"copies"`
	MaxAttempts int            `json:"max_attempts"`
}

type JobResponse struct {
	ID          string     `json:"id"`
	TicketType  string     `json:"ticket_type"`
	Priority    string     `json:"priority,omitempty"`
	Status      string     `json:"status"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"max_attempts"`
	Error       string     `json:"error_message,omitempty"`
	RetryAt     *time.Time `json:"retry_at,omitempty"`
	PrinterID   string     `json:"printer_id,omitempty"`
	PrinterName string     `json:"printer_name,omitempty"`
	PrinterKind string     `json:"printer_kind"`
	PayloadSize int        `json:"payload_size"`
	Copies      int        `json:"copies"`
	SubmittedBy string     `json:"submitted_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	PrintedAt   *time.Time `json:"printed_at,omitempty"`
	Duration    *int64     `json:"duration_ms,omitempty"`
}

type ListJobsQuery struct {
	TicketType string `form:"ticket_type"`
	Status     string `form:"status"`
	Priority   string `form:"priority"`
	PrinterID  string `form:"printer_id"`
	FromDate   string `form:"from_date"`
	ToDate     string `form:"to_date"`
	Limit      int    `form:"limit"`
	Offset     int    `form:"offset"`
}

type QueueResponse struct {
	core.QueueStatus
	EstimatedWaitMS int64 `json:"estimated_wait_ms"`
}

// ProfileResolver looks up registered printers. *printer.Manager satisfies it.
type ProfileResolver interface {
	Profile(id string) (core.PrinterProfile, error)
}

type JobHandler struct {
	queue    *core.QueueManager
	printers ProfileResolver
	layout   escpos.Layout
	logger   *slog.Logger
}

func NewJobHandler(queue *core.QueueManager, printers ProfileResolver, layout escpos.Layout, logger *slog.Logger) *JobHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobHandler{
		queue:    queue,
		printers: printers,
		layout:   layout,
		logger:   logger,
	}
}

func (h *JobHandler) CreateJob(c *gin.Context) {
	var req CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	if req.PrinterID == "" {
		badRequest(c, "printer_id is required")
		return
	}
	profile, err := h.printers.Profile(req.PrinterID)
	if err != nil {
		respondError(c, err)
		return
	}

	ticketType := core.TicketType(req.TicketType)
	switch ticketType {
	case "", core.TicketStandard, core.TicketThermal, core.TicketDuplicate:
	default:
		badRequest(c, fmt.Sprintf("unknown ticket type %q", req.TicketType))
		return
	}

	payload := req.Payload
	if req.Ticket != nil {
		ticket := *req.Ticket
		if ticketType == core.TicketDuplicate {
			ticket.Duplicate = true
		}
		encoded, err := escpos.Encode(ticket, h.layout)
		if err != nil {
			respondError(c, err)
			return
		}
		payload = encoded
	}
	if len(payload) == 0 {
		badRequest(c, "ticket or payload is required")
		return
	}

	id, err := h.queue.Enqueue(c.Request.Context(), core.JobSpec{
		TicketType:  ticketType,
		Priority:    core.Priority(req.Priority),
		MaxAttempts: req.MaxAttempts,
		Printer:     profile,
		Payload:     payload,
		Copies:      req.Copies,
		SubmittedBy: c.ClientIP(),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":      id,
		"message": "job submitted successfully",
	})
}

func (h *JobHandler) ListJobs(c *gin.Context) {
	var query ListJobsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		badRequest(c, err.Error())
		return
	}

	if query.Limit <= 0 {
		query.Limit = 50
	}
	if query.Limit > 100 {
		query.Limit = 100
	}
	if query.Offset < 0 {
		query.Offset = 0
	}

	filter := core.HistoryFilter{
		TicketType: core.TicketType(query.TicketType),
		Status:     core.JobStatus(query.Status),
		Priority:   core.Priority(query.Priority),
		PrinterID:  query.PrinterID,
		Limit:      query.Limit,
		Offset:     query.Offset,
	}

	if query.FromDate != "" {
		t, err := parseDate(query.FromDate, false)
		if err != nil {
			badRequest(c, "invalid from_date")
			return
		}
		filter.FromDate = &t
	}
	if query.ToDate != "" {
		t, err := parseDate(query.ToDate, true)
		if err != nil {
			badRequest(c, "invalid to_date")
			return
		}
		filter.ToDate = &t
	}

	jobs := h.queue.History(filter)
	responses := make([]JobResponse, 0, len(jobs))
	for i := range jobs {
		responses = append(responses, jobToResponse(&jobs[i]))
	}

	c.JSON(http.StatusOK, gin.H{
		"jobs":   responses,
		"limit":  query.Limit,
		"offset": query.Offset,
		"count":  len(responses),
	})
}

// parseDate accepts RFC 3339 timestamps or plain dates. A plain to_date
// covers the whole day.
func parseDate(s string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, time.Local)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

func (h *JobHandler) GetJob(c *gin.Context) {
	job, ok := h.queue.Job(c.Param("id"))
	if !ok {
		respondError(c, core.ErrJobNotFound)
		return
	}
	c.JSON(http.StatusOK, jobToResponse(&job))
}

func (h *JobHandler) CancelJob(c *gin.Context) {
	id := c.Param("id")
	if err := h.queue.Cancel(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "job cancelled", "id": id})
}

func (h *JobHandler) RetryJob(c *gin.Context) {
	id := c.Param("id")
	if err := h.queue.RetryFailed(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "job requeued", "id": id})
}

func (h *JobHandler) ClearCompleted(c *gin.Context) {
	n := h.queue.ClearCompleted(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"cleared": n})
}

// ProcessQueue runs one dispatch step and waits for it to settle.
func (h *JobHandler) ProcessQueue(c *gin.Context) {
	processed := h.queue.ProcessQueue(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"processed": processed})
}

func (h *JobHandler) GetQueue(c *gin.Context) {
	status := h.queue.Status()
	c.JSON(http.StatusOK, QueueResponse{
		QueueStatus:     status,
		EstimatedWaitMS: status.EstimatedWait.Milliseconds(),
	})
}

func jobToResponse(job *core.PrintJob) JobResponse {
	resp := JobResponse{
		ID:          job.ID,
		TicketType:  string(job.TicketType),
		Priority:    string(job.Priority),
		Status:      string(job.Status),
		Attempts:    job.Attempts,
		MaxAttempts: job.MaxAttempts,
		Error:       job.Error,
		RetryAt:     job.RetryAt,
		PrinterID:   job.Printer.ID,
		PrinterName: job.Printer.Name,
		PrinterKind: string(job.Printer.Kind),
		PayloadSize: len(job.Payload),
		Copies:      job.Copies,
		SubmittedBy: job.SubmittedBy,
		CreatedAt:   job.CreatedAt,
		UpdatedAt:   job.UpdatedAt,
		PrintedAt:   job.PrintedAt,
	}
	if job.PrintedAt != nil {
		d := job.PrintedAt.Sub(job.CreatedAt).Milliseconds()
		resp.Duration = &d
	}
	return resp
}
