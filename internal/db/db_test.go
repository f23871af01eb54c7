package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/parkline/ticketspool/internal/core"
	"github.com/parkline/ticketspool/internal/printer"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(context.Background(), DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestOpen_MigrationsIdempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "spool.db")

	d, err := Open(ctx, DriverSQLite, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	d.Close()

	d, err = Open(ctx, DriverSQLite, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer d.Close()

	versions, err := d.AppliedVersions(ctx)
	if err != nil {
		t.Fatalf("AppliedVersions: %v", err)
	}
	if len(versions) != 1 || versions[0] != "001_init" {
		t.Errorf("versions = %v, want [001_init]", versions)
	}
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	if _, err := Open(context.Background(), "mysql", "x"); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestRebind(t *testing.T) {
	pg := &DB{driver: DriverPostgres}
	if got, want := pg.rebind("UPDATE t SET a = ?, b = ? WHERE id = ?"), "UPDATE t SET a = $1, b = $2 WHERE id = $3"; got != want {
		t.Errorf("rebind = %q, want %q", got, want)
	}

	lite := &DB{driver: DriverSQLite}
	if got := lite.rebind("SELECT ?"); got != "SELECT ?" {
		t.Errorf("sqlite rebind = %q, want unchanged", got)
	}
}

func TestLoadMigrations_Sorted(t *testing.T) {
	fsys := fstest.MapFS{
		"m/002_b.sql":  {Data: []byte("B")},
		"m/001_a.sql":  {Data: []byte("A")},
		"m/README.txt": {Data: []byte("skip")},
	}
	migrations, err := loadMigrations(fsys, "m")
	if err != nil {
		t.Fatalf("loadMigrations: %v", err)
	}
	if len(migrations) != 2 || migrations[0].Version != "001_a" || migrations[1].SQL != "B" {
		t.Errorf("migrations = %+v", migrations)
	}
}

func sampleJob(id string, status core.JobStatus, at time.Time) *core.PrintJob {
	return &core.PrintJob{
		ID:          id,
		TicketType:  core.TicketThermal,
		Priority:    core.PriorityHigh,
		Status:      status,
		MaxAttempts: 3,
		Printer: core.PrinterProfile{
			ID: "p1", Name: "Gate 1", Kind: core.TransportNetwork, Address: "10.0.0.5:9100",
			ChunkSize: 256, ChunkDelay: 20 * time.Millisecond,
		},
		Payload:     []byte{0x1b, '@', 'h', 'i'},
		Copies:      2,
		SubmittedBy: "gate-kiosk",
		CreatedAt:   at,
		UpdatedAt:   at,
	}
}

func loadJob(t *testing.T, s *JobStore, id string) *core.PrintJob {
	t.Helper()
	jobs, err := s.LoadJobs(context.Background())
	if err != nil {
		t.Fatalf("LoadJobs: %v", err)
	}
	for _, j := range jobs {
		if j.ID == id {
			return j
		}
	}
	t.Fatalf("job %s not stored", id)
	return nil
}

func TestJobStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewJobStore(openTestDB(t))

	now := time.Date(2024, 4, 2, 10, 30, 0, 0, time.UTC)
	job := sampleJob("job-1", core.JobStatusQueued, now)
	if err := s.SaveJob(ctx, job); err != nil {
		t.Fatalf("SaveJob: %v", err)
	}

	got := loadJob(t, s, "job-1")
	if got.TicketType != core.TicketThermal || got.Priority != core.PriorityHigh || got.Status != core.JobStatusQueued {
		t.Errorf("job = %+v", got)
	}
	if got.Printer != job.Printer {
		t.Errorf("Printer = %+v, want %+v", got.Printer, job.Printer)
	}
	if string(got.Payload) != string(job.Payload) {
		t.Errorf("Payload = %q, want %q", got.Payload, job.Payload)
	}
	if !got.CreatedAt.Equal(now) || got.RetryAt != nil || got.PrintedAt != nil {
		t.Errorf("times = %v %v %v", got.CreatedAt, got.RetryAt, got.PrintedAt)
	}

	retryAt := now.Add(2 * time.Second)
	job.Status = core.JobStatusRetrying
	job.Attempts = 1
	job.Error = "paper out"
	job.RetryAt = &retryAt
	job.UpdatedAt = now.Add(time.Second)
	if err := s.SaveJob(ctx, job); err != nil {
		t.Fatalf("SaveJob update: %v", err)
	}

	got = loadJob(t, s, "job-1")
	if got.Status != core.JobStatusRetrying || got.Attempts != 1 || got.Error != "paper out" {
		t.Errorf("updated job = %+v", got)
	}
	if got.RetryAt == nil || !got.RetryAt.Equal(retryAt) {
		t.Errorf("RetryAt = %v, want %v", got.RetryAt, retryAt)
	}

	all, err := s.LoadJobs(ctx)
	if err != nil {
		t.Fatalf("LoadJobs: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("LoadJobs = %d, want 1", len(all))
	}
}

func TestJobStore_DeleteAndCount(t *testing.T) {
	ctx := context.Background()
	s := NewJobStore(openTestDB(t))

	now := time.Date(2024, 4, 2, 10, 30, 0, 0, time.UTC)
	for i, st := range []core.JobStatus{core.JobStatusQueued, core.JobStatusCompleted, core.JobStatusCompleted, core.JobStatusFailed} {
		job := sampleJob(string(rune('a'+i)), st, now.Add(time.Duration(i)*time.Second))
		if err := s.SaveJob(ctx, job); err != nil {
			t.Fatalf("SaveJob: %v", err)
		}
	}

	counts, err := s.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	if counts[core.JobStatusCompleted] != 2 || counts[core.JobStatusQueued] != 1 || counts[core.JobStatusFailed] != 1 {
		t.Errorf("counts = %v", counts)
	}

	if err := s.DeleteJobs(ctx, []string{"b", "c"}); err != nil {
		t.Fatalf("DeleteJobs: %v", err)
	}
	if err := s.DeleteJobs(ctx, nil); err != nil {
		t.Fatalf("DeleteJobs(nil): %v", err)
	}

	counts, err = s.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	if counts[core.JobStatusCompleted] != 0 || counts[core.JobStatusQueued] != 1 {
		t.Errorf("counts after delete = %v", counts)
	}

	all, err := s.LoadJobs(ctx)
	if err != nil {
		t.Fatalf("LoadJobs: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("remaining = %d, want 2", len(all))
	}
}

func TestPrinterStore_CRUD(t *testing.T) {
	ctx := context.Background()
	s := NewPrinterStore(openTestDB(t))

	now := time.Date(2024, 4, 2, 9, 0, 0, 0, time.UTC)
	p := &printer.Printer{
		PrinterProfile: core.PrinterProfile{
			ID: "p1", Name: "Gate 1", Kind: core.TransportBluetooth, Address: "/dev/rfcomm0",
			ChunkSize: 128, ChunkDelay: 30 * time.Millisecond, Status: printer.StatusUnknown,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.CreatePrinter(ctx, p); err != nil {
		t.Fatalf("CreatePrinter: %v", err)
	}

	dup := *p
	dup.ID = "p2"
	if err := s.CreatePrinter(ctx, &dup); err == nil {
		t.Error("expected unique name violation")
	}

	seen := now.Add(time.Minute)
	if err := s.UpdatePrinterStatus(ctx, "p1", printer.StatusOnline, seen); err != nil {
		t.Fatalf("UpdatePrinterStatus: %v", err)
	}
	if err := s.IncrementPrintCount(ctx, "p1", 3); err != nil {
		t.Fatalf("IncrementPrintCount: %v", err)
	}

	p.Name = "Gate 1A"
	p.UpdatedAt = seen
	if err := s.UpdatePrinter(ctx, p); err != nil {
		t.Fatalf("UpdatePrinter: %v", err)
	}

	got, err := s.GetPrinter(ctx, "p1")
	if err != nil {
		t.Fatalf("GetPrinter: %v", err)
	}
	if got.Name != "Gate 1A" || got.Kind != core.TransportBluetooth || got.ChunkDelay != 30*time.Millisecond {
		t.Errorf("printer = %+v", got)
	}
	if got.Status != printer.StatusOnline || got.TotalPrints != 3 {
		t.Errorf("Status = %q TotalPrints = %d, want online 3", got.Status, got.TotalPrints)
	}
	if got.LastSeenAt == nil || !got.LastSeenAt.Equal(seen) {
		t.Errorf("LastSeenAt = %v, want %v", got.LastSeenAt, seen)
	}

	list, err := s.ListPrinters(ctx)
	if err != nil {
		t.Fatalf("ListPrinters: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("ListPrinters = %d, want 1", len(list))
	}

	if err := s.DeletePrinter(ctx, "p1"); err != nil {
		t.Fatalf("DeletePrinter: %v", err)
	}
	if _, err := s.GetPrinter(ctx, "p1"); !errors.Is(err, printer.ErrPrinterNotFound) {
		t.Errorf("GetPrinter error = %v, want ErrPrinterNotFound", err)
	}
}
