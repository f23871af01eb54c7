package core

import (
	"context"
	"time"
)

type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusPrinting  JobStatus = "printing"
	JobStatusRetrying  JobStatus = "retrying"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// IsTerminal reports whether a job in this status belongs in history.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusQueued, JobStatusPrinting, JobStatusRetrying,
		JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

type TicketType string

const (
	TicketStandard  TicketType = "standard"
	TicketThermal   TicketType = "thermal"
	TicketDuplicate TicketType = "duplicate"
)

// Priority is the caller-supplied tier. The zero value means unspecified.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

type TransportKind string

const (
	TransportUSB       TransportKind = "usb"
	TransportBluetooth TransportKind = "bluetooth"
	TransportNetwork   TransportKind = "network"
)

func (k TransportKind) Valid() bool {
	switch k {
	case TransportUSB, TransportBluetooth, TransportNetwork:
		return true
	}
	return false
}

// PrinterProfile identifies the target printer. Address is a device node for
// usb and bluetooth printers and host[:port] for network printers.
type PrinterProfile struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Kind       TransportKind `json:"kind"`
	Address    string        `json:"address"`
	ChunkSize  int           `json:"chunk_size,omitempty"`
	ChunkDelay time.Duration `json:"chunk_delay,omitempty"`
	Status     string        `json:"status,omitempty"`
}

type PrintJob struct {
	ID          string         `json:"id"`
	TicketType  TicketType     `json:"ticket_type"`
	Priority    Priority       `json:"priority,omitempty"`
	Status      JobStatus      `json:"status"`
	Attempts    int            `json:"attempts"`
	MaxAttempts int            `json:"max_attempts"`
	Error       string         `json:"error,omitempty"`
	RetryAt     *time.Time     `json:"retry_at,omitempty"`
	Printer     PrinterProfile `json:"printer"`
	Payload     []byte         `json:"payload"`
	Copies      int            `json:"copies"`
	SubmittedBy string         `json:"submitted_by,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	PrintedAt   *time.Time     `json:"printed_at,omitempty"`
}

// clone returns a deep copy safe to hand outside the manager's lock.
func (j *PrintJob) clone() PrintJob {
	c := *j
	if j.Payload != nil {
		c.Payload = append([]byte(nil), j.Payload...)
	}
	if j.RetryAt != nil {
		t := *j.RetryAt
		c.RetryAt = &t
	}
	if j.PrintedAt != nil {
		t := *j.PrintedAt
		c.PrintedAt = &t
	}
	return c
}

// JobSpec is what callers submit. MaxAttempts of 0 selects the configured
// default; Copies of 0 means one copy.
type JobSpec struct {
	TicketType  TicketType
	Priority    Priority
	MaxAttempts int
	Printer     PrinterProfile
	Payload     []byte
	Copies      int
	SubmittedBy string
}

type QueueStatus struct {
	Queued        int           `json:"queued"`
	Printing      int           `json:"printing"`
	Retrying      int           `json:"retrying"`
	Completed     int           `json:"completed"`
	Failed        int           `json:"failed"`
	Cancelled     int           `json:"cancelled"`
	Total         int           `json:"total"`
	Processing    bool          `json:"processing"`
	LastPrintAt   *time.Time    `json:"last_print_at,omitempty"`
	EstimatedWait time.Duration `json:"estimated_wait"`
}

type HistoryFilter struct {
	TicketType TicketType
	Status     JobStatus
	Priority   Priority
	PrinterID  string
	FromDate   *time.Time
	ToDate     *time.Time
	Limit      int
	Offset     int
}

// Transport delivers a payload to a printer. Any non-nil error is treated as
// a failed attempt.
type Transport interface {
	Send(ctx context.Context, printer PrinterProfile, payload []byte, copies int) error
}

// JobStore persists job records so queued and retrying work survives a
// restart. The manager calls SaveJob at every state transition.
type JobStore interface {
	SaveJob(ctx context.Context, job *PrintJob) error
	LoadJobs(ctx context.Context) ([]*PrintJob, error)
	DeleteJobs(ctx context.Context, ids []string) error
}

type MetricsRecorder interface {
	IncJobsSubmitted()
	IncJobsCompleted()
	IncJobsFailed()
	IncJobsRetried()
	IncJobsCancelled()
	SetQueueDepth(n int)
	SetInflight(n int)
}
