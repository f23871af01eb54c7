package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/parkline/ticketspool/internal/archive"
	"github.com/parkline/ticketspool/internal/config"
	"github.com/parkline/ticketspool/internal/core"
	"github.com/parkline/ticketspool/internal/escpos"
	"github.com/parkline/ticketspool/internal/metrics"
	"github.com/parkline/ticketspool/internal/printer"
)

type recordingTransport struct {
	mu       sync.Mutex
	payloads [][]byte
	sendErr  error
	probeErr error
}

func (r *recordingTransport) Send(_ context.Context, _ core.PrinterProfile, payload []byte, _ int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads = append(r.payloads, payload)
	return r.sendErr
}

func (r *recordingTransport) Probe(context.Context, core.PrinterProfile) (*printer.Status, error) {
	if r.probeErr != nil {
		return nil, r.probeErr
	}
	return &printer.Status{IsOnline: true, CanPrint: true, LastChecked: time.Now()}, nil
}

type testServer struct {
	router    *gin.Engine
	queue     *core.QueueManager
	printers  *printer.Manager
	transport *recordingTransport
	metrics   *metrics.Metrics
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tr := &recordingTransport{}
	pm := printer.NewManagerWithTransports(nil, config.PrintersConfig{}, logger, map[core.TransportKind]printer.Transport{
		core.TransportNetwork: tr,
	})
	m := metrics.New()
	q := core.NewQueueManager(pm, nil, &config.QueueConfig{MaxAttempts: 1}, core.WithLogger(logger), core.WithMetrics(m))
	t.Cleanup(q.Stop)

	arch, err := archive.NewArchiver(q, archive.ArchiveConfig{ArchivePath: t.TempDir(), Logger: logger})
	if err != nil {
		t.Fatalf("NewArchiver: %v", err)
	}

	cfg := config.LoadFromEnv()
	router := NewRouter(Deps{
		Config:   cfg,
		Queue:    q,
		Printers: pm,
		Archiver: arch,
		Metrics:  m,
		Layout:   escpos.DefaultLayout(),
		Logger:   logger,
	})
	return &testServer{router: router, queue: q, printers: pm, transport: tr, metrics: m}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("Unmarshal %q: %v", w.Body.String(), err)
	}
}

func (s *testServer) addPrinter(t *testing.T) string {
	t.Helper()
	p, err := s.printers.AddPrinter(context.Background(), printer.Printer{PrinterProfile: core.PrinterProfile{
		Name: "Gate", Kind: core.TransportNetwork, Address: "10.0.0.9",
	}})
	if err != nil {
		t.Fatalf("AddPrinter: %v", err)
	}
	return p.ID
}

func TestCreateJob_TicketIsEncodedAndPrinted(t *testing.T) {
	s := newTestServer(t)
	gate := s.addPrinter(t)

	w := s.do(t, http.MethodPost, "/api/jobs", map[string]any{
		"printer_id":  gate,
		"ticket_type": "thermal",
		"priority":    "high",
		"ticket": map[string]any{
			"serial":         42,
			"vehicle_number": "ka01ab1234",
			"entry_time":     "2024-05-01T08:30:00Z",
		},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var created struct {
		ID string `json:"id"`
	}
	decode(t, w, &created)
	if created.ID == "" {
		t.Fatal("empty job id")
	}

	w = s.do(t, http.MethodGet, "/api/jobs/"+created.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GetJob status = %d", w.Code)
	}
	var job struct {
		Status     string `json:"status"`
		TicketType string `json:"ticket_type"`
		Priority   string `json:"priority"`
	}
	decode(t, w, &job)
	if job.Status != "queued" || job.TicketType != "thermal" || job.Priority != "high" {
		t.Errorf("job = %+v", job)
	}

	w = s.do(t, http.MethodPost, "/api/queue/process", nil)
	var processed struct {
		Processed bool `json:"processed"`
	}
	decode(t, w, &processed)
	if !processed.Processed {
		t.Fatal("processed = false, want true")
	}

	s.transport.mu.Lock()
	defer s.transport.mu.Unlock()
	if len(s.transport.payloads) != 1 {
		t.Fatalf("payloads = %d, want 1", len(s.transport.payloads))
	}
	if p := s.transport.payloads[0]; !bytes.HasPrefix(p, []byte{0x1b, '@'}) || !bytes.Contains(p, []byte("KA01AB1234")) {
		t.Errorf("payload does not look like an encoded ticket: %q", p)
	}
}

func TestCreateJob_RawPayloadToRegisteredPrinter(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/printers", map[string]any{
		"name": "Entry", "kind": "network", "address": "10.0.0.7",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("CreatePrinter status = %d, body %s", w.Code, w.Body.String())
	}
	var p struct {
		ID string `json:"id"`
	}
	decode(t, w, &p)

	w = s.do(t, http.MethodPost, "/api/jobs", map[string]any{
		"printer_id": p.ID,
		"payload":    base64.StdEncoding.EncodeToString([]byte("raw bytes")),
		"copies":     2,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("CreateJob status = %d, body %s", w.Code, w.Body.String())
	}

	w = s.do(t, http.MethodGet, "/api/jobs?printer_id="+p.ID, nil)
	var list struct {
		Jobs []struct {
			PrinterName string `json:"printer_name"`
			PayloadSize int    `json:"payload_size"`
			Copies      int    `json:"copies"`
		} `json:"jobs"`
		Count int `json:"count"`
	}
	decode(t, w, &list)
	if list.Count != 1 || list.Jobs[0].PrinterName != "Entry" || list.Jobs[0].PayloadSize != 9 || list.Jobs[0].Copies != 2 {
		t.Errorf("list = %+v", list)
	}
}

func TestCreateJob_Validation(t *testing.T) {
	s := newTestServer(t)
	gate := s.addPrinter(t)

	tests := []struct {
		name string
		body map[string]any
		code int
		err  string
	}{
		{"no printer", map[string]any{"payload": "eA=="}, http.StatusBadRequest, "invalid_argument"},
		{"inline printer profile", map[string]any{"printer": map[string]any{"kind": "usb", "address": "/etc/hosts"}, "payload": "eA=="}, http.StatusBadRequest, "invalid_argument"},
		{"no payload", map[string]any{"printer_id": gate}, http.StatusBadRequest, "invalid_argument"},
		{"unknown printer", map[string]any{"printer_id": "nope", "payload": "eA=="}, http.StatusNotFound, "not_found"},
		{"bad priority", map[string]any{"printer_id": gate, "payload": "eA==", "priority": "asap"}, http.StatusBadRequest, "invalid_argument"},
		{"bad ticket type", map[string]any{"printer_id": gate, "payload": "eA==", "ticket_type": "a4"}, http.StatusBadRequest, "invalid_argument"},
		{"ticket without vehicle", map[string]any{"printer_id": gate, "ticket": map[string]any{"serial": 1}}, http.StatusBadRequest, "invalid_argument"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/api/jobs", tt.body)
			if w.Code != tt.code {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.code, w.Body.String())
			}
			var resp struct {
				Error   string `json:"error"`
				Message string `json:"message"`
			}
			decode(t, w, &resp)
			if resp.Error != tt.err || resp.Message == "" {
				t.Errorf("response = %+v, want error %q", resp, tt.err)
			}
		})
	}
}

func TestJobLifecycleEndpoints(t *testing.T) {
	s := newTestServer(t)
	s.transport.sendErr = errors.New("paper jam")

	id, err := s.queue.Enqueue(context.Background(), core.JobSpec{
		Printer: core.PrinterProfile{Kind: core.TransportNetwork, Address: "10.0.0.9"},
		Payload: []byte("x"),
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	if w := s.do(t, http.MethodPost, "/api/jobs/"+id+"/retry", nil); w.Code != http.StatusBadRequest {
		t.Errorf("retry of queued job status = %d, want 400", w.Code)
	}

	s.do(t, http.MethodPost, "/api/queue/process", nil)
	job, _ := s.queue.Job(id)
	if job.Status != core.JobStatusFailed {
		t.Fatalf("status = %s, want failed", job.Status)
	}

	if w := s.do(t, http.MethodPost, "/api/jobs/"+id+"/cancel", nil); w.Code != http.StatusNotFound {
		t.Errorf("cancel of failed job status = %d, want 404", w.Code)
	}

	s.transport.sendErr = nil
	if w := s.do(t, http.MethodPost, "/api/jobs/"+id+"/retry", nil); w.Code != http.StatusOK {
		t.Fatalf("retry status = %d, body %s", w.Code, w.Body.String())
	}
	s.do(t, http.MethodPost, "/api/queue/process", nil)

	w := s.do(t, http.MethodGet, "/api/queue", nil)
	var status struct {
		Completed int `json:"completed"`
		Total     int `json:"total"`
	}
	decode(t, w, &status)
	if status.Completed != 1 || status.Total != 1 {
		t.Errorf("queue = %+v, want 1 completed", status)
	}

	w = s.do(t, http.MethodDelete, "/api/jobs/completed", nil)
	var cleared struct {
		Cleared int `json:"cleared"`
	}
	decode(t, w, &cleared)
	if cleared.Cleared != 1 {
		t.Errorf("cleared = %d, want 1", cleared.Cleared)
	}

	if w := s.do(t, http.MethodGet, "/api/jobs/"+id, nil); w.Code != http.StatusNotFound {
		t.Errorf("GetJob after clear status = %d, want 404", w.Code)
	}
}

func TestCancelQueuedJob(t *testing.T) {
	s := newTestServer(t)

	id, err := s.queue.Enqueue(context.Background(), core.JobSpec{
		Printer: core.PrinterProfile{Kind: core.TransportNetwork, Address: "10.0.0.9"},
		Payload: []byte("x"),
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	if w := s.do(t, http.MethodPost, "/api/jobs/"+id+"/cancel", nil); w.Code != http.StatusOK {
		t.Fatalf("cancel status = %d", w.Code)
	}
	w := s.do(t, http.MethodGet, "/api/jobs?status=cancelled", nil)
	var list struct {
		Count int `json:"count"`
	}
	decode(t, w, &list)
	if list.Count != 1 {
		t.Errorf("cancelled jobs = %d, want 1", list.Count)
	}
}

func TestListJobs_InvalidDate(t *testing.T) {
	s := newTestServer(t)
	if w := s.do(t, http.MethodGet, "/api/jobs?from_date=yesterday", nil); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestPrinterEndpoints(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/printers", map[string]any{
		"name": "Exit", "kind": "network", "address": "10.0.0.8", "chunk_delay_ms": 15,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("CreatePrinter status = %d", w.Code)
	}
	var p struct {
		ID           string `json:"id"`
		ChunkDelayMS int64  `json:"chunk_delay_ms"`
	}
	decode(t, w, &p)
	if p.ChunkDelayMS != 15 {
		t.Errorf("chunk_delay_ms = %d, want 15", p.ChunkDelayMS)
	}

	if w := s.do(t, http.MethodPost, "/api/printers", map[string]any{
		"name": "Exit", "kind": "network", "address": "10.0.0.10",
	}); w.Code != http.StatusConflict {
		t.Errorf("duplicate status = %d, want 409", w.Code)
	}
	if w := s.do(t, http.MethodPost, "/api/printers", map[string]any{
		"name": "Serial", "kind": "rs232", "address": "/dev/ttyS0",
	}); w.Code != http.StatusBadRequest {
		t.Errorf("bad kind status = %d, want 400", w.Code)
	}
	if w := s.do(t, http.MethodPost, "/api/printers", map[string]any{
		"name": "Hosts", "kind": "usb", "address": "/etc/hosts",
	}); w.Code != http.StatusBadRequest {
		t.Errorf("non-device usb address status = %d, want 400", w.Code)
	}

	w = s.do(t, http.MethodGet, "/api/printers/"+p.ID+"/status", nil)
	var status struct {
		Status string `json:"status"`
		Probe  *struct {
			IsOnline bool `json:"is_online"`
		} `json:"probe"`
	}
	decode(t, w, &status)
	if status.Status != printer.StatusOnline || status.Probe == nil || !status.Probe.IsOnline {
		t.Errorf("status = %+v", status)
	}

	w = s.do(t, http.MethodPut, "/api/printers/"+p.ID, map[string]any{
		"name": "Exit 2", "kind": "network", "address": "10.0.0.8",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("UpdatePrinter status = %d", w.Code)
	}

	w = s.do(t, http.MethodGet, "/api/printers", nil)
	var list struct {
		Printers []struct {
			Name string `json:"name"`
		} `json:"printers"`
	}
	decode(t, w, &list)
	if len(list.Printers) != 1 || list.Printers[0].Name != "Exit 2" {
		t.Errorf("printers = %+v", list.Printers)
	}

	if w := s.do(t, http.MethodDelete, "/api/printers/"+p.ID, nil); w.Code != http.StatusOK {
		t.Errorf("DeletePrinter status = %d", w.Code)
	}
	if w := s.do(t, http.MethodGet, "/api/printers/"+p.ID, nil); w.Code != http.StatusNotFound {
		t.Errorf("GetPrinter after delete status = %d, want 404", w.Code)
	}
}

func TestHealthMetricsAndSettings(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Errorf("health = %d %s", w.Code, w.Body.String())
	}
	if id := w.Header().Get("X-Request-ID"); id == "" {
		t.Error("missing X-Request-ID")
	}

	if _, err := s.queue.Enqueue(context.Background(), core.JobSpec{
		Printer: core.PrinterProfile{Kind: core.TransportNetwork, Address: "10.0.0.9"},
		Payload: []byte("x"),
	}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	w = s.do(t, http.MethodGet, "/metrics", nil)
	if !strings.Contains(w.Body.String(), "spool_jobs_submitted_total 1") {
		t.Errorf("metrics body = %s", w.Body.String())
	}

	w = s.do(t, http.MethodPut, "/api/settings/archive", map[string]any{"archive_days": 7})
	if w.Code != http.StatusOK {
		t.Fatalf("UpdateArchiveSettings status = %d", w.Code)
	}
	w = s.do(t, http.MethodGet, "/api/settings/server", nil)
	var cfg struct {
		ArchiveDays int `json:"archive_days"`
	}
	decode(t, w, &cfg)
	if cfg.ArchiveDays != 7 {
		t.Errorf("archive_days = %d, want 7", cfg.ArchiveDays)
	}

	w = s.do(t, http.MethodPost, "/api/archives/run", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"archived":0`) {
		t.Errorf("archive run = %d %s", w.Code, w.Body.String())
	}
	if w := s.do(t, http.MethodGet, "/api/archives/archive_2000_01.jsonl/jobs", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing archive jobs status = %d, want 404", w.Code)
	}
}

type countingStore struct {
	counts map[core.JobStatus]int
	err    error
}

func (c countingStore) CountByStatus(context.Context) (map[core.JobStatus]int, error) {
	return c.counts, c.err
}

func TestHealth_ReportsDatabase(t *testing.T) {
	s := newTestServer(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ok := NewRouter(Deps{Queue: s.queue, Printers: s.printers, Jobs: countingStore{counts: map[core.JobStatus]int{core.JobStatusCompleted: 4}}, Logger: logger})
	w := httptest.NewRecorder()
	ok.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	var health struct {
		Status   string         `json:"status"`
		Database string         `json:"database"`
		Stored   map[string]int `json:"stored"`
	}
	decode(t, w, &health)
	if w.Code != http.StatusOK || health.Database != "ok" || health.Stored["completed"] != 4 {
		t.Errorf("health = %d %+v", w.Code, health)
	}

	down := NewRouter(Deps{Queue: s.queue, Printers: s.printers, Jobs: countingStore{err: errors.New("database is closed")}, Logger: logger})
	w = httptest.NewRecorder()
	down.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusServiceUnavailable || !strings.Contains(w.Body.String(), `"status":"degraded"`) {
		t.Errorf("health with failing store = %d %s", w.Code, w.Body.String())
	}
}
