package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

func TestMetrics_CountersAndGauges(t *testing.T) {
	m := New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.IncJobsSubmitted()
			m.IncJobsCompleted()
		}()
	}
	wg.Wait()

	m.IncJobsFailed()
	m.IncJobsRetried()
	m.IncJobsRetried()
	m.IncJobsCancelled()
	m.AddJobsArchived(7)
	m.SetQueueDepth(4)
	m.SetQueueDepth(3)
	m.SetInflight(1)

	s := m.Snapshot()
	if s.JobsSubmitted != 50 || s.JobsCompleted != 50 {
		t.Errorf("submitted = %d, completed = %d, want 50 and 50", s.JobsSubmitted, s.JobsCompleted)
	}
	if s.JobsRetried != 2 {
		t.Errorf("JobsRetried = %d, want 2", s.JobsRetried)
	}
	if s.JobsArchived != 7 {
		t.Errorf("JobsArchived = %d, want 7", s.JobsArchived)
	}
	if s.QueueDepth != 3 || s.Inflight != 1 {
		t.Errorf("QueueDepth = %d, Inflight = %d, want 3 and 1", s.QueueDepth, s.Inflight)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.IncJobsSubmitted()
	m.SetQueueDepth(2)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"spool_jobs_submitted_total 1\n", "spool_queue_depth 2\n", "spool_inflight 0\n"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q", want)
		}
	}
}
