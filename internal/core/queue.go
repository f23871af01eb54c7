package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/parkline/ticketspool/internal/config"
)

// QueueManager owns the lifecycle of every print job. Jobs wait in a
// priority queue, a ticker-driven loop hands one job at a time to the
// transport, and failed attempts are re-queued after an exponential delay
// until MaxAttempts is reached.
//
// All job state is guarded by mu. The transport call and listener callbacks
// run without holding it; the processing flag keeps at most one job in flight.
type QueueManager struct {
	transport Transport
	store     JobStore
	config    config.QueueConfig
	clock     Clock
	newID     func() string
	logger    *slog.Logger
	metrics   MetricsRecorder

	mu         sync.Mutex
	queue      *PriorityQueue[string]
	active     map[string]*PrintJob
	history    map[string]*PrintJob
	timers     map[string]Timer
	processing bool
	lastPrint  *time.Time
	running    bool
	stopped    bool

	onComplete listeners[CompleteListener]
	onError    listeners[ErrorListener]
	onStatus   listeners[StatusChangeListener]

	// base is cancelled by Stop. Dispatches derive from it rather than
	// from the caller's context.
	base       context.Context
	cancelBase context.CancelFunc
	stopCh     chan struct{}
	wg         sync.WaitGroup
}

type Option func(*QueueManager)

func WithClock(c Clock) Option {
	return func(m *QueueManager) { m.clock = c }
}

func WithIDGenerator(fn func() string) Option {
	return func(m *QueueManager) { m.newID = fn }
}

func WithLogger(l *slog.Logger) Option {
	return func(m *QueueManager) { m.logger = l }
}

func WithMetrics(r MetricsRecorder) Option {
	return func(m *QueueManager) { m.metrics = r }
}

// NewQueueManager builds a manager. store may be nil, in which case job state
// lives in memory only. Zero-valued config fields fall back to defaults.
func NewQueueManager(transport Transport, store JobStore, cfg *config.QueueConfig, opts ...Option) *QueueManager {
	defaults := config.DefaultQueueConfig()
	var qc config.QueueConfig
	if cfg != nil {
		qc = *cfg
	}
	if qc.DispatchInterval <= 0 {
		qc.DispatchInterval = defaults.DispatchInterval
	}
	if qc.MaxAttempts < 1 {
		qc.MaxAttempts = defaults.MaxAttempts
	}
	if qc.BackoffBase <= 0 {
		qc.BackoffBase = defaults.BackoffBase
	}
	if qc.MaxBackoff <= 0 {
		qc.MaxBackoff = defaults.MaxBackoff
	}
	if qc.DispatchTimeout <= 0 {
		qc.DispatchTimeout = defaults.DispatchTimeout
	}
	if qc.AvgJobDuration <= 0 {
		qc.AvgJobDuration = defaults.AvgJobDuration
	}

	m := &QueueManager{
		transport: transport,
		store:     store,
		config:    qc,
		clock:     systemClock{},
		newID:     uuid.NewString,
		logger:    slog.Default(),
		metrics:   nopMetrics{},
		queue:     NewPriorityQueue[string](),
		active:    make(map[string]*PrintJob),
		history:   make(map[string]*PrintJob),
		timers:    make(map[string]Timer),
		stopCh:    make(chan struct{}),
	}
	m.base, m.cancelBase = context.WithCancel(context.Background())
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start restores persisted jobs and launches the dispatch loop.
func (m *QueueManager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return ErrManagerStopped
	}
	if m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = true
	m.mu.Unlock()

	if err := m.Restore(ctx); err != nil {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
		return fmt.Errorf("failed to restore print jobs: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return ErrManagerStopped
	}
	m.wg.Add(1)
	go m.dispatcher(m.base)

	return nil
}

// Stop halts the dispatch loop, cancels retry timers and clears all
// in-memory state. Persisted records are left untouched.
func (m *QueueManager) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	for id, t := range m.timers {
		t.Stop()
		delete(m.timers, id)
	}
	m.queue.Clear()
	m.active = make(map[string]*PrintJob)
	m.history = make(map[string]*PrintJob)
	m.lastPrint = nil
	m.mu.Unlock()

	close(m.stopCh)
	m.cancelBase()
	m.wg.Wait()

	m.onComplete.clear()
	m.onError.clear()
	m.onStatus.clear()
}

// Restore rehydrates jobs from the store. Jobs caught mid-print go back to
// the queue, retrying jobs re-arm their timer for whatever delay remains, and
// terminal jobs load into history. Jobs already known are skipped.
func (m *QueueManager) Restore(ctx context.Context) error {
	if m.store == nil {
		return nil
	}

	jobs, err := m.store.LoadJobs(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return ErrManagerStopped
	}

	now := m.clock.Now()
	restored := 0
	for _, job := range jobs {
		if job == nil || !job.Status.Valid() {
			continue
		}
		if _, ok := m.active[job.ID]; ok {
			continue
		}
		if _, ok := m.history[job.ID]; ok {
			continue
		}
		restored++

		switch job.Status {
		case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
			m.history[job.ID] = job
			if job.PrintedAt != nil && (m.lastPrint == nil || job.PrintedAt.After(*m.lastPrint)) {
				t := *job.PrintedAt
				m.lastPrint = &t
			}

		case JobStatusPrinting:
			// The outcome of an interrupted attempt is unknown, so it counts.
			job.UpdatedAt = now
			if job.Attempts >= job.MaxAttempts {
				job.Status = JobStatusFailed
				if job.Error == "" {
					job.Error = "interrupted by restart"
				}
				m.history[job.ID] = job
			} else {
				job.Status = JobStatusQueued
				m.active[job.ID] = job
				m.queue.Enqueue(job.ID, Score(job.TicketType, job.Attempts > 0, job.Priority))
			}
			m.persist(ctx, job)

		case JobStatusQueued:
			m.active[job.ID] = job
			m.queue.Enqueue(job.ID, Score(job.TicketType, job.Attempts > 0, job.Priority))

		case JobStatusRetrying:
			m.active[job.ID] = job
			var delay time.Duration
			if job.RetryAt != nil {
				delay = job.RetryAt.Sub(now)
			}
			if delay < 0 {
				delay = 0
			}
			m.scheduleRetry(job.ID, delay)
		}
	}
	m.metrics.SetQueueDepth(m.queue.Len())

	var notes []notification
	if restored > 0 {
		m.logger.Info("print jobs restored",
			slog.Int("restored", restored),
			slog.Int("queued", m.queue.Len()),
			slog.Int("retrying", len(m.timers)),
		)
		notes = m.statusNote()
	}
	m.mu.Unlock()

	m.deliver(notes)
	return nil
}

func (m *QueueManager) dispatcher(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.DispatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

// tick runs one dispatch step. A panic anywhere in the step is logged and
// the loop carries on with the next tick.
func (m *QueueManager) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("print dispatch step panicked", slog.Any("panic", r))
			m.mu.Lock()
			m.processing = false
			m.mu.Unlock()
		}
	}()
	m.ProcessQueue(ctx)
}

// Enqueue validates spec, registers a queued job and returns its id. The job
// is printed asynchronously by the dispatch loop.
func (m *QueueManager) Enqueue(ctx context.Context, spec JobSpec) (string, error) {
	if err := validateSpec(spec); err != nil {
		return "", err
	}

	maxAttempts := spec.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = m.config.MaxAttempts
	}
	copies := spec.Copies
	if copies == 0 {
		copies = 1
	}
	ticketType := spec.TicketType
	if ticketType == "" {
		ticketType = TicketStandard
	}

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return "", ErrManagerStopped
	}

	now := m.clock.Now()
	job := &PrintJob{
		ID:          m.newID(),
		TicketType:  ticketType,
		Priority:    spec.Priority,
		Status:      JobStatusQueued,
		MaxAttempts: maxAttempts,
		Printer:     spec.Printer,
		Payload:     append([]byte(nil), spec.Payload...),
		Copies:      copies,
		SubmittedBy: spec.SubmittedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	m.active[job.ID] = job
	m.queue.Enqueue(job.ID, Score(job.TicketType, false, job.Priority))
	m.persist(ctx, job)
	m.metrics.IncJobsSubmitted()
	m.metrics.SetQueueDepth(m.queue.Len())

	m.logger.Info("print job enqueued",
		slog.String("job_id", job.ID),
		slog.String("ticket_type", string(job.TicketType)),
		slog.String("priority", string(job.Priority)),
		slog.String("printer", job.Printer.Name),
	)

	notes := m.statusNote()
	m.mu.Unlock()

	m.deliver(notes)
	return job.ID, nil
}

func validateSpec(spec JobSpec) error {
	if len(spec.Payload) == 0 {
		return invalidArgument("payload is required")
	}
	if !spec.Printer.Kind.Valid() {
		return invalidArgument("unknown printer kind %q", spec.Printer.Kind)
	}
	if spec.Printer.Address == "" {
		return invalidArgument("printer address is required")
	}
	if spec.MaxAttempts < 0 {
		return invalidArgument("max attempts must be non-negative")
	}
	if spec.Copies < 0 {
		return invalidArgument("copies must be non-negative")
	}
	if !ValidPriority(spec.Priority) {
		return invalidArgument("unknown priority %q", spec.Priority)
	}
	return nil
}

// ProcessQueue dispatches the highest-priority ready job and waits for the
// transport to settle. It returns false without doing anything when a job
// is already in flight or nothing is ready.
//
// Cancelling ctx does not abort the print or cost the job an attempt; only
// the dispatch timeout and Stop bound the transport call.
func (m *QueueManager) ProcessQueue(ctx context.Context) bool {
	ctx = context.WithoutCancel(ctx)

	job, notes := m.beginDispatch(ctx)
	m.deliver(notes)
	if job == nil {
		return false
	}

	err := m.send(ctx, *job)

	notes = m.finishDispatch(ctx, job.ID, err)
	m.deliver(notes)
	return true
}

func (m *QueueManager) beginDispatch(ctx context.Context) (*PrintJob, []notification) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped || m.processing {
		return nil, nil
	}

	var job *PrintJob
	for {
		id, ok := m.queue.Dequeue()
		if !ok {
			break
		}
		j := m.active[id]
		if j == nil || (j.Status != JobStatusQueued && j.Status != JobStatusRetrying) {
			continue
		}
		job = j
		break
	}
	m.metrics.SetQueueDepth(m.queue.Len())
	if job == nil {
		return nil, nil
	}

	m.processing = true
	job.Attempts++
	job.Status = JobStatusPrinting
	job.UpdatedAt = m.clock.Now()
	job.RetryAt = nil
	m.persist(ctx, job)
	m.metrics.SetInflight(1)

	m.logger.Debug("print job dispatched",
		slog.String("job_id", job.ID),
		slog.Int("attempt", job.Attempts),
		slog.Int("max_attempts", job.MaxAttempts),
		slog.String("printer", job.Printer.Name),
	)

	snapshot := job.clone()
	return &snapshot, m.statusNote()
}

// send calls the transport, bounded by the dispatch timeout. A transport
// that panics or never returns is reported as a failed attempt.
func (m *QueueManager) send(ctx context.Context, job PrintJob) error {
	if m.transport == nil {
		return errors.New("printer transport not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, m.config.DispatchTimeout)
	defer cancel()
	defer context.AfterFunc(m.base, cancel)()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("printer transport panicked: %v", r)
			}
		}()
		done <- m.transport.Send(ctx, job.Printer, job.Payload, job.Copies)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("print dispatch aborted: %w", ctx.Err())
	}
}

func (m *QueueManager) finishDispatch(ctx context.Context, id string, sendErr error) []notification {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.processing = false
	m.metrics.SetInflight(0)

	job := m.active[id]
	if job == nil || job.Status != JobStatusPrinting {
		return nil
	}

	if sendErr != nil {
		return m.handleJobFailure(ctx, job, sendErr)
	}

	now := m.clock.Now()
	job.Status = JobStatusCompleted
	job.PrintedAt = &now
	job.UpdatedAt = now
	m.archive(job)
	m.lastPrint = &now
	m.persist(ctx, job)
	m.metrics.IncJobsCompleted()

	m.logger.Info("print job completed",
		slog.String("job_id", job.ID),
		slog.Int("attempt", job.Attempts),
		slog.String("printer", job.Printer.Name),
	)

	done := job.clone()
	return append([]notification{{complete: &done}}, m.statusNote()...)
}

func (m *QueueManager) handleJobFailure(ctx context.Context, job *PrintJob, sendErr error) []notification {
	now := m.clock.Now()
	job.Error = sendErr.Error()
	job.UpdatedAt = now

	if job.Attempts < job.MaxAttempts {
		delay := m.calculateBackoff(job.Attempts)
		retryAt := now.Add(delay)
		job.Status = JobStatusRetrying
		job.RetryAt = &retryAt
		m.persist(ctx, job)
		m.scheduleRetry(job.ID, delay)
		m.metrics.IncJobsRetried()

		m.logger.Warn("print attempt failed, retry scheduled",
			slog.String("job_id", job.ID),
			slog.Int("attempt", job.Attempts),
			slog.Int("max_attempts", job.MaxAttempts),
			slog.Duration("delay", delay),
			slog.String("error", job.Error),
		)
		return m.statusNote()
	}

	job.Status = JobStatusFailed
	m.archive(job)
	m.persist(ctx, job)
	m.metrics.IncJobsFailed()

	m.logger.Error("print job failed",
		slog.String("job_id", job.ID),
		slog.Int("attempts", job.Attempts),
		slog.String("printer", job.Printer.Name),
		slog.String("error", job.Error),
	)

	failed := job.clone()
	return append([]notification{{failed: &failed, err: sendErr}}, m.statusNote()...)
}

// calculateBackoff returns BackoffBase * 2^attempts, clamped to MaxBackoff.
func (m *QueueManager) calculateBackoff(attempts int) time.Duration {
	backoff := m.config.BackoffBase
	for i := 0; i < attempts; i++ {
		if backoff > math.MaxInt64/2 || backoff*2 >= m.config.MaxBackoff {
			return m.config.MaxBackoff
		}
		backoff *= 2
	}
	if backoff > m.config.MaxBackoff {
		return m.config.MaxBackoff
	}
	return backoff
}

func (m *QueueManager) scheduleRetry(id string, delay time.Duration) {
	if t, ok := m.timers[id]; ok {
		t.Stop()
	}
	m.timers[id] = m.clock.AfterFunc(delay, func() {
		m.requeueRetry(id)
	})
}

// requeueRetry puts a retrying job back into the ready set once its delay
// has elapsed, with the reprint boost applied.
func (m *QueueManager) requeueRetry(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.timers, id)
	if m.stopped {
		return
	}
	job := m.active[id]
	if job == nil || job.Status != JobStatusRetrying {
		return
	}
	m.queue.Remove(func(v string) bool { return v == id })
	m.queue.Enqueue(id, Score(job.TicketType, true, job.Priority))
	m.metrics.SetQueueDepth(m.queue.Len())

	m.logger.Debug("print job re-queued for retry",
		slog.String("job_id", id),
		slog.Int("attempts", job.Attempts),
	)
}

// RetryFailed moves a failed job back to the queue with a fresh attempt budget.
func (m *QueueManager) RetryFailed(ctx context.Context, id string) error {
	m.mu.Lock()

	job, ok := m.history[id]
	if !ok {
		_, isActive := m.active[id]
		m.mu.Unlock()
		if isActive {
			return fmt.Errorf("%w: %s is still active", ErrInvalidJobState, id)
		}
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if job.Status != JobStatusFailed {
		status := job.Status
		m.mu.Unlock()
		return fmt.Errorf("%w: %s is %s, only failed jobs can be retried", ErrInvalidJobState, id, status)
	}

	job.Attempts = 0
	job.Error = ""
	job.RetryAt = nil
	job.Status = JobStatusQueued
	job.UpdatedAt = m.clock.Now()
	delete(m.history, id)
	m.active[id] = job
	m.queue.Enqueue(id, Score(job.TicketType, true, job.Priority))
	m.persist(ctx, job)
	m.metrics.SetQueueDepth(m.queue.Len())

	m.logger.Info("failed print job re-queued", slog.String("job_id", id))

	notes := m.statusNote()
	m.mu.Unlock()

	m.deliver(notes)
	return nil
}

// Cancel withdraws a queued or retrying job before it is dispatched. A job
// that is printing cannot be cancelled.
func (m *QueueManager) Cancel(ctx context.Context, id string) error {
	m.mu.Lock()

	job, ok := m.active[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if job.Status == JobStatusPrinting {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s is printing", ErrInvalidJobState, id)
	}

	m.queue.Remove(func(v string) bool { return v == id })
	if t, ok := m.timers[id]; ok {
		t.Stop()
		delete(m.timers, id)
	}

	job.Status = JobStatusCancelled
	job.UpdatedAt = m.clock.Now()
	job.RetryAt = nil
	m.archive(job)
	m.persist(ctx, job)
	m.metrics.IncJobsCancelled()
	m.metrics.SetQueueDepth(m.queue.Len())

	m.logger.Info("print job cancelled", slog.String("job_id", id))

	notes := m.statusNote()
	m.mu.Unlock()

	m.deliver(notes)
	return nil
}

// ClearCompleted drops completed jobs from history and returns how many
// were removed. Failed and cancelled jobs are kept.
func (m *QueueManager) ClearCompleted(ctx context.Context) int {
	m.mu.Lock()

	var ids []string
	for id, job := range m.history {
		if job.Status == JobStatusCompleted {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		m.mu.Unlock()
		return 0
	}
	if err := m.deleteStored(ctx, ids); err != nil {
		m.mu.Unlock()
		return 0
	}
	for _, id := range ids {
		delete(m.history, id)
	}

	notes := m.statusNote()
	m.mu.Unlock()

	m.deliver(notes)
	return len(ids)
}

// PruneHistory removes terminal jobs last updated before cutoff and returns
// them, oldest first.
func (m *QueueManager) PruneHistory(ctx context.Context, cutoff time.Time) []PrintJob {
	m.mu.Lock()

	var pruned []PrintJob
	var ids []string
	for id, job := range m.history {
		if job.UpdatedAt.Before(cutoff) {
			pruned = append(pruned, job.clone())
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		m.mu.Unlock()
		return nil
	}
	// Jobs the store still holds would come back on the next Restore, so
	// they stay in history until the delete succeeds.
	if err := m.deleteStored(ctx, ids); err != nil {
		m.mu.Unlock()
		return nil
	}
	for _, id := range ids {
		delete(m.history, id)
	}

	notes := m.statusNote()
	m.mu.Unlock()

	m.deliver(notes)

	sort.Slice(pruned, func(i, j int) bool {
		return pruned[i].CreatedAt.Before(pruned[j].CreatedAt)
	})
	return pruned
}

func (m *QueueManager) Status() QueueStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked()
}

func (m *QueueManager) statusLocked() QueueStatus {
	var s QueueStatus
	count := func(j *PrintJob) {
		s.Total++
		switch j.Status {
		case JobStatusQueued:
			s.Queued++
		case JobStatusPrinting:
			s.Printing++
		case JobStatusRetrying:
			s.Retrying++
		case JobStatusCompleted:
			s.Completed++
		case JobStatusFailed:
			s.Failed++
		case JobStatusCancelled:
			s.Cancelled++
		}
	}
	for _, j := range m.active {
		count(j)
	}
	for _, j := range m.history {
		count(j)
	}

	s.Processing = m.processing
	if m.lastPrint != nil {
		t := *m.lastPrint
		s.LastPrintAt = &t
	}
	s.EstimatedWait = time.Duration(s.Queued) * m.config.AvgJobDuration
	return s
}

func (m *QueueManager) statusNote() []notification {
	if m.onStatus.len() == 0 {
		return nil
	}
	s := m.statusLocked()
	return []notification{{status: &s}}
}

// Job returns a copy of the job with the given id from either the active
// set or history.
func (m *QueueManager) Job(id string) (PrintJob, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if j, ok := m.active[id]; ok {
		return j.clone(), true
	}
	if j, ok := m.history[id]; ok {
		return j.clone(), true
	}
	return PrintJob{}, false
}

// History returns active and archived jobs matching filter, newest first.
func (m *QueueManager) History(filter HistoryFilter) []PrintJob {
	m.mu.Lock()
	var jobs []PrintJob
	for _, set := range []map[string]*PrintJob{m.active, m.history} {
		for _, j := range set {
			if filter.matches(j) {
				jobs = append(jobs, j.clone())
			}
		}
	}
	m.mu.Unlock()

	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
		}
		return jobs[i].ID > jobs[j].ID
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(jobs) {
			return []PrintJob{}
		}
		jobs = jobs[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(jobs) {
		jobs = jobs[:filter.Limit]
	}
	if jobs == nil {
		jobs = []PrintJob{}
	}
	return jobs
}

func (f HistoryFilter) matches(j *PrintJob) bool {
	if f.TicketType != "" && j.TicketType != f.TicketType {
		return false
	}
	if f.Status != "" && j.Status != f.Status {
		return false
	}
	if f.Priority != "" && j.Priority != f.Priority {
		return false
	}
	if f.PrinterID != "" && j.Printer.ID != f.PrinterID {
		return false
	}
	if f.FromDate != nil && j.CreatedAt.Before(*f.FromDate) {
		return false
	}
	if f.ToDate != nil && j.CreatedAt.After(*f.ToDate) {
		return false
	}
	return true
}

func (m *QueueManager) OnPrintComplete(fn CompleteListener) (unsubscribe func()) {
	return m.onComplete.add(fn)
}

func (m *QueueManager) OnPrintError(fn ErrorListener) (unsubscribe func()) {
	return m.onError.add(fn)
}

func (m *QueueManager) OnQueueStatusChange(fn StatusChangeListener) (unsubscribe func()) {
	return m.onStatus.add(fn)
}

// archive moves a job that reached a terminal status from active to history.
func (m *QueueManager) archive(job *PrintJob) {
	delete(m.active, job.ID)
	m.history[job.ID] = job
}

// persist writes the job through to the store. Store errors are logged and
// never block a transition.
func (m *QueueManager) persist(ctx context.Context, job *PrintJob) {
	if m.store == nil {
		return
	}
	if err := m.store.SaveJob(ctx, job); err != nil {
		m.logger.Error("failed to persist print job",
			slog.String("job_id", job.ID),
			slog.String("status", string(job.Status)),
			slog.String("error", err.Error()),
		)
	}
}

// deleteStored removes jobs from the store. The caller's cancellation is
// ignored so a dropped request cannot leave memory and store out of step.
func (m *QueueManager) deleteStored(ctx context.Context, ids []string) error {
	if m.store == nil {
		return nil
	}
	if err := m.store.DeleteJobs(context.WithoutCancel(ctx), ids); err != nil {
		m.logger.Error("failed to delete print jobs",
			slog.Int("count", len(ids)),
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}

type nopMetrics struct{}

func (nopMetrics) IncJobsSubmitted() {}
func (nopMetrics) IncJobsCompleted() {}
func (nopMetrics) IncJobsFailed() {}
func (nopMetrics) IncJobsRetried() {}
func (nopMetrics) IncJobsCancelled() {}
func (nopMetrics) SetQueueDepth(int) {}
func (nopMetrics) SetInflight(int) {}
