package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

// Metrics holds the spool's counters and gauges. It satisfies
// core.MetricsRecorder.
type Metrics struct {
	// counters
	jobsSubmitted uint64
	jobsCompleted uint64
	jobsFailed    uint64
	jobsRetried   uint64
	jobsCancelled uint64
	webhooksSent  uint64
	webhookErrors uint64
	jobsArchived  uint64

	// gauges
	queueDepth int64
	inflight   int64
}

func New() *Metrics {
	return &Metrics{}
}

// counters
func (m *Metrics) IncJobsSubmitted() { atomic.AddUint64(&m.jobsSubmitted, 1) }
func (m *Metrics) IncJobsCompleted() { atomic.AddUint64(&m.jobsCompleted, 1) }
func (m *Metrics) IncJobsFailed()    { atomic.AddUint64(&m.jobsFailed, 1) }
func (m *Metrics) IncJobsRetried()   { atomic.AddUint64(&m.jobsRetried, 1) }
func (m *Metrics) IncJobsCancelled() { atomic.AddUint64(&m.jobsCancelled, 1) }

func (m *Metrics) IncWebhooksSent()      { atomic.AddUint64(&m.webhooksSent, 1) }
func (m *Metrics) IncWebhookErrors()     { atomic.AddUint64(&m.webhookErrors, 1) }
func (m *Metrics) AddJobsArchived(n int) { atomic.AddUint64(&m.jobsArchived, uint64(n)) }

// gauges
func (m *Metrics) SetQueueDepth(n int) { atomic.StoreInt64(&m.queueDepth, int64(n)) }
func (m *Metrics) SetInflight(n int)   { atomic.StoreInt64(&m.inflight, int64(n)) }

type Snapshot struct {
	JobsSubmitted uint64 `json:"jobs_submitted_total"`
	JobsCompleted uint64 `json:"jobs_completed_total"`
	JobsFailed    uint64 `json:"jobs_failed_total"`
	JobsRetried   uint64 `json:"jobs_retried_total"`
	JobsCancelled uint64 `json:"jobs_cancelled_total"`
	WebhooksSent  uint64 `json:"webhooks_sent_total"`
	WebhookErrors uint64 `json:"webhook_errors_total"`
	JobsArchived  uint64 `json:"jobs_archived_total"`
	QueueDepth    int64  `json:"queue_depth"`
	Inflight      int64  `json:"inflight"`
}

func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		JobsSubmitted: atomic.LoadUint64(&m.jobsSubmitted),
		JobsCompleted: atomic.LoadUint64(&m.jobsCompleted),
		JobsFailed:    atomic.LoadUint64(&m.jobsFailed),
		JobsRetried:   atomic.LoadUint64(&m.jobsRetried),
		JobsCancelled: atomic.LoadUint64(&m.jobsCancelled),
		WebhooksSent:  atomic.LoadUint64(&m.webhooksSent),
		WebhookErrors: atomic.LoadUint64(&m.webhookErrors),
		JobsArchived:  atomic.LoadUint64(&m.jobsArchived),
		QueueDepth:    atomic.LoadInt64(&m.queueDepth),
		Inflight:      atomic.LoadInt64(&m.inflight),
	}
}

// Http handler

func (m *Metrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s := m.Snapshot()
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		fmt.Fprintf(w,
			"spool_jobs_submitted_total %d\n"+
				"spool_jobs_completed_total %d\n"+
				"spool_jobs_failed_total %d\n"+
				"spool_jobs_retried_total %d\n"+
				"spool_jobs_cancelled_total %d\n"+
				"spool_webhooks_sent_total %d\n"+
				"spool_webhook_errors_total %d\n"+
				"spool_jobs_archived_total %d\n"+
				"spool_queue_depth %d\n"+
				"spool_inflight %d\n",
			s.JobsSubmitted, s.JobsCompleted, s.JobsFailed, s.JobsRetried, s.JobsCancelled,
			s.WebhooksSent, s.WebhookErrors, s.JobsArchived,
			s.QueueDepth, s.Inflight,
		)
	})
}
