package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/parkline/ticketspool/internal/config"
	"github.com/parkline/ticketspool/internal/core"
	"github.com/parkline/ticketspool/internal/printer"
)

type WebhookEvent string

const (
	EventJobCompleted         WebhookEvent = "job_completed"
	EventJobFailed            WebhookEvent = "job_failed"
	EventPrinterStatusChanged WebhookEvent = "printer_status_changed"
	EventQueueStatus          WebhookEvent = "queue_status"
	EventTest                 WebhookEvent = "test"
)

var ErrTargetNotFound = errors.New("webhook target not found")

// Targets without an events list get these. Queue status changes on every
// transition, so it must be asked for explicitly.
var defaultEvents = []WebhookEvent{EventJobCompleted, EventJobFailed, EventPrinterStatusChanged}

type WebhookPayload struct {
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	Signature string    `json:"signature,omitempty"`
}

type JobEventData struct {
	JobID        string `json:"job_id"`
	TicketType   string `json:"ticket_type"`
	Priority     string `json:"priority,omitempty"`
	PrinterID    string `json:"printer_id,omitempty"`
	PrinterName  string `json:"printer_name,omitempty"`
	Status       string `json:"status"`
	Attempts     int    `json:"attempts"`
	ErrorMessage string `json:"error_message,omitempty"`
	Duration     int64  `json:"duration_ms,omitempty"`
}

type PrinterStatusData struct {
	PrinterID      string    `json:"printer_id"`
	PrinterName    string    `json:"printer_name"`
	Kind           string    `json:"kind"`
	PreviousStatus string    `json:"previous_status"`
	NewStatus      string    `json:"new_status"`
	Timestamp      time.Time `json:"timestamp"`
}

type QueueStatusData struct {
	Queued     int  `json:"queued"`
	Printing   int  `json:"printing"`
	Retrying   int  `json:"retrying"`
	Failed     int  `json:"failed"`
	Total      int  `json:"total"`
	Processing bool `json:"processing"`
}

type WebhookConfig struct {
	RetryCount  int
	RetryDelay  time.Duration
	Timeout     time.Duration
	WorkerCount int
	QueueSize   int
}

// Recorder receives delivery counts. *metrics.Metrics satisfies it.
type Recorder interface {
	IncWebhooksSent()
	IncWebhookErrors()
}

// EventSource is the subset of *core.QueueManager the sender subscribes to.
type EventSource interface {
	OnPrintComplete(fn core.CompleteListener) func()
	OnPrintError(fn core.ErrorListener) func()
	OnQueueStatusChange(fn core.StatusChangeListener) func()
}

type target struct {
	config.WebhookTarget
	events map[WebhookEvent]bool
}

type webhookTask struct {
	target  *target
	event   WebhookEvent
	payload *WebhookPayload
	attempt int
}

type httpError struct {
	status int
}

func (e *httpError) Error() string { return fmt.Sprintf("http error: %d", e.status) }

type WebhookSender struct {
	targets     []*target
	httpClient  *http.Client
	retryCount  int
	retryDelay  time.Duration
	workerCount int
	queue       chan *webhookTask
	stopCh      chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
	logger      *slog.Logger
	recorder    Recorder
}

func NewWebhookSender(targets []config.WebhookTarget, cfg WebhookConfig, logger *slog.Logger, recorder Recorder) *WebhookSender {
	if cfg.RetryCount <= 0 {
		cfg.RetryCount = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 3
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &WebhookSender{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		retryCount:  cfg.RetryCount,
		retryDelay:  cfg.RetryDelay,
		workerCount: cfg.WorkerCount,
		queue:       make(chan *webhookTask, cfg.QueueSize),
		stopCh:      make(chan struct{}),
		logger:      logger,
		recorder:    recorder,
	}

	for _, t := range targets {
		events := make(map[WebhookEvent]bool)
		names := t.Events
		if len(names) == 0 {
			for _, e := range defaultEvents {
				events[e] = true
			}
		}
		for _, name := range names {
			events[WebhookEvent(name)] = true
		}
		s.targets = append(s.targets, &target{WebhookTarget: t, events: events})
	}
	return s
}

func (s *WebhookSender) Start() {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
}

func (s *WebhookSender) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// Subscribe forwards queue events to the configured targets. The returned
// func detaches every listener it registered.
func (s *WebhookSender) Subscribe(src EventSource) func() {
	unsubs := []func(){
		src.OnPrintComplete(s.SendJobCompleted),
		src.OnPrintError(s.SendJobFailed),
		src.OnQueueStatusChange(s.SendQueueStatus),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

func jobData(job core.PrintJob) *JobEventData {
	return &JobEventData{
		JobID:        job.ID,
		TicketType:   string(job.TicketType),
		Priority:     string(job.Priority),
		PrinterID:    job.Printer.ID,
		PrinterName:  job.Printer.Name,
		Status:       string(job.Status),
		Attempts:     job.Attempts,
		ErrorMessage: job.Error,
	}
}

func (s *WebhookSender) SendJobCompleted(job core.PrintJob) {
	data := jobData(job)
	if job.PrintedAt != nil {
		data.Duration = job.PrintedAt.Sub(job.CreatedAt).Milliseconds()
	}
	s.enqueue(EventJobCompleted, data)
}

func (s *WebhookSender) SendJobFailed(job core.PrintJob, err error) {
	data := jobData(job)
	if err != nil {
		data.ErrorMessage = err.Error()
	}
	s.enqueue(EventJobFailed, data)
}

func (s *WebhookSender) SendQueueStatus(status core.QueueStatus) {
	s.enqueue(EventQueueStatus, &QueueStatusData{
		Queued:     status.Queued,
		Printing:   status.Printing,
		Retrying:   status.Retrying,
		Failed:     status.Failed,
		Total:      status.Total,
		Processing: status.Processing,
	})
}

// SendPrinterStatusChange has the printer.StatusChangeFunc signature so it
// can be registered with the printer manager directly.
func (s *WebhookSender) SendPrinterStatusChange(p printer.Printer, prevStatus, newStatus string) {
	s.enqueue(EventPrinterStatusChanged, &PrinterStatusData{
		PrinterID:      p.ID,
		PrinterName:    p.Name,
		Kind:           string(p.Kind),
		PreviousStatus: prevStatus,
		NewStatus:      newStatus,
		Timestamp:      time.Now(),
	})
}

func (s *WebhookSender) enqueue(event WebhookEvent, data any) {
	for _, t := range s.targets {
		if !t.events[event] {
			continue
		}

		task := &webhookTask{
			target: t,
			event:  event,
			payload: &WebhookPayload{
				Event:     string(event),
				Timestamp: time.Now(),
				Data:      data,
			},
		}

		select {
		case s.queue <- task:
		default:
			s.logger.Warn("webhook queue full, dropping event",
				slog.String("webhook", t.Name),
				slog.String("event", string(event)),
			)
		}
	}
}

func (s *WebhookSender) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopCh:
			return
		case task := <-s.queue:
			if err := s.sendWithRetry(task); err != nil {
				if s.recorder != nil {
					s.recorder.IncWebhookErrors()
				}
				s.logger.Error("webhook delivery failed",
					slog.Int("worker", id),
					slog.String("webhook", task.target.Name),
					slog.String("event", string(task.event)),
					slog.Int("attempts", task.attempt),
					slog.String("error", err.Error()),
				)
				continue
			}
			if s.recorder != nil {
				s.recorder.IncWebhooksSent()
			}
		}
	}
}

func (s *WebhookSender) sendWithRetry(task *webhookTask) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	var lastErr error
	for task.attempt < s.retryCount {
		task.attempt++

		err := s.sendRequest(ctx, task.target, task.payload)
		if err == nil {
			return nil
		}

		lastErr = err

		if isClientError(err) {
			return err
		}

		if task.attempt < s.retryCount {
			backoff := s.retryDelay * time.Duration(1<<(task.attempt-1))
			s.logger.Warn("webhook delivery failed, retrying",
				slog.String("webhook", task.target.Name),
				slog.Int("attempt", task.attempt),
				slog.Duration("backoff", backoff),
				slog.String("error", err.Error()),
			)

			select {
			case <-ctx.Done():
				return errors.New("shutdown requested")
			case <-time.After(backoff):
			}
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (s *WebhookSender) sendRequest(ctx context.Context, t *target, payload *WebhookPayload) error {
	dataBytes, err := json.Marshal(payload.Data)
	if err != nil {
		return fmt.Errorf("marshal data: %w", err)
	}

	signed := *payload
	if t.Secret != "" {
		signed.Signature = signPayload(dataBytes, t.Secret)
	}

	fullPayload, err := json.Marshal(&signed)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.URL, bytes.NewReader(fullPayload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Event", signed.Event)
	if signed.Signature != "" {
		req.Header.Set("X-Webhook-Signature", signed.Signature)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &httpError{status: resp.StatusCode}
	}

	return nil
}

// TargetInfo describes a configured target without its secret.
type TargetInfo struct {
	Name   string   `json:"name"`
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Signed bool     `json:"signed"`
}

func (s *WebhookSender) Targets() []TargetInfo {
	infos := make([]TargetInfo, 0, len(s.targets))
	for _, t := range s.targets {
		events := make([]string, 0, len(t.events))
		for e := range t.events {
			events = append(events, string(e))
		}
		sort.Strings(events)
		infos = append(infos, TargetInfo{
			Name:   t.Name,
			URL:    t.URL,
			Events: events,
			Signed: t.Secret != "",
		})
	}
	return infos
}

// Test delivers a single signed test event to the named target, bypassing
// the queue and the retry loop.
func (s *WebhookSender) Test(ctx context.Context, name string) error {
	for _, t := range s.targets {
		if t.Name != name {
			continue
		}
		return s.sendRequest(ctx, t, &WebhookPayload{
			Event:     string(EventTest),
			Timestamp: time.Now(),
			Data: map[string]any{
				"test":    true,
				"message": "test webhook from ticketspool",
				"webhook": name,
			},
		})
	}
	return fmt.Errorf("%w: %s", ErrTargetNotFound, name)
}

// signPayload returns the hex HMAC-SHA256 of the JSON-encoded event data.
func signPayload(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

func isClientError(err error) bool {
	var he *httpError
	if errors.As(err, &he) {
		return he.status >= 400 && he.status < 500
	}
	return false
}
