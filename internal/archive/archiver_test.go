package archive

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/parkline/ticketspool/internal/core"
)

type fakePruner struct {
	jobs    []core.PrintJob
	cutoffs []time.Time
}

func (f *fakePruner) PruneHistory(_ context.Context, cutoff time.Time) []core.PrintJob {
	f.cutoffs = append(f.cutoffs, cutoff)
	var pruned, kept []core.PrintJob
	for _, j := range f.jobs {
		if j.UpdatedAt.Before(cutoff) {
			pruned = append(pruned, j)
		} else {
			kept = append(kept, j)
		}
	}
	f.jobs = kept
	return pruned
}

type archivedCounter struct{ n int }

func (c *archivedCounter) AddJobsArchived(n int) { c.n += n }

var fixedNow = time.Date(2024, 5, 20, 3, 0, 0, 0, time.UTC)

func newTestArchiver(t *testing.T, src Pruner, rec Recorder) *Archiver {
	t.Helper()
	a, err := NewArchiver(src, ArchiveConfig{
		ArchivePath: t.TempDir(),
		ArchiveDays: 30,
		Recorder:    rec,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:         func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("NewArchiver: %v", err)
	}
	return a
}

func TestRunArchive_WritesMonthlyFile(t *testing.T) {
	old := fixedNow.AddDate(0, 0, -45)
	src := &fakePruner{jobs: []core.PrintJob{
		{ID: "old-1", Status: core.JobStatusCompleted, UpdatedAt: old},
		{ID: "old-2", Status: core.JobStatusFailed, Error: "paper out", UpdatedAt: old.Add(time.Hour)},
		{ID: "recent", Status: core.JobStatusCompleted, UpdatedAt: fixedNow.AddDate(0, 0, -2)},
	}}
	rec := &archivedCounter{}
	a := newTestArchiver(t, src, rec)

	n, err := a.RunArchive(context.Background())
	if err != nil {
		t.Fatalf("RunArchive: %v", err)
	}
	if n != 2 {
		t.Errorf("archived = %d, want 2", n)
	}
	if rec.n != 2 {
		t.Errorf("recorded = %d, want 2", rec.n)
	}
	if want := fixedNow.AddDate(0, 0, -30); !src.cutoffs[0].Equal(want) {
		t.Errorf("cutoff = %v, want %v", src.cutoffs[0], want)
	}

	archives, err := a.ListArchives()
	if err != nil {
		t.Fatalf("ListArchives: %v", err)
	}
	if len(archives) != 1 || archives[0].Filename != "archive_2024_05.jsonl" {
		t.Fatalf("archives = %+v, want archive_2024_05.jsonl", archives)
	}
	if archives[0].DateRange != "2024_05" {
		t.Errorf("DateRange = %q, want 2024_05", archives[0].DateRange)
	}

	info, err := a.GetArchiveInfo("archive_2024_05.jsonl")
	if err != nil {
		t.Fatalf("GetArchiveInfo: %v", err)
	}
	if info.JobCount != 2 {
		t.Errorf("JobCount = %d, want 2", info.JobCount)
	}

	jobs, err := a.ReadArchive("archive_2024_05.jsonl")
	if err != nil {
		t.Fatalf("ReadArchive: %v", err)
	}
	if len(jobs) != 2 || jobs[0].ID != "old-1" || jobs[1].Error != "paper out" {
		t.Errorf("jobs = %+v", jobs)
	}
}

func TestRunArchive_Appends(t *testing.T) {
	old := fixedNow.AddDate(0, -2, 0)
	src := &fakePruner{jobs: []core.PrintJob{{ID: "a", UpdatedAt: old}}}
	a := newTestArchiver(t, src, nil)

	if _, err := a.RunArchive(context.Background()); err != nil {
		t.Fatalf("RunArchive: %v", err)
	}
	src.jobs = []core.PrintJob{{ID: "b", UpdatedAt: old}}
	if _, err := a.RunArchive(context.Background()); err != nil {
		t.Fatalf("RunArchive: %v", err)
	}

	jobs, err := a.ReadArchive("archive_2024_05.jsonl")
	if err != nil {
		t.Fatalf("ReadArchive: %v", err)
	}
	if len(jobs) != 2 || jobs[0].ID != "a" || jobs[1].ID != "b" {
		t.Errorf("jobs = %+v, want a then b", jobs)
	}
}

func TestRunArchive_NothingToDo(t *testing.T) {
	a := newTestArchiver(t, &fakePruner{}, nil)

	n, err := a.RunArchive(context.Background())
	if err != nil {
		t.Fatalf("RunArchive: %v", err)
	}
	if n != 0 {
		t.Errorf("archived = %d, want 0", n)
	}

	archives, err := a.ListArchives()
	if err != nil {
		t.Fatalf("ListArchives: %v", err)
	}
	if len(archives) != 0 {
		t.Errorf("archives = %d, want none", len(archives))
	}
}

func TestGetArchiveInfo_NotFound(t *testing.T) {
	a := newTestArchiver(t, &fakePruner{}, nil)

	for _, name := range []string{"archive_1999_01.jsonl", "../etc/passwd"} {
		if _, err := a.GetArchiveInfo(name); !errors.Is(err, ErrArchiveNotFound) {
			t.Errorf("GetArchiveInfo(%q) error = %v, want ErrArchiveNotFound", name, err)
		}
	}
}

func TestArchiver_StartStop(t *testing.T) {
	old := fixedNow.AddDate(-1, 0, 0)
	src := &fakePruner{jobs: []core.PrintJob{{ID: "x", UpdatedAt: old}}}
	rec := &archivedCounter{}
	a, err := NewArchiver(src, ArchiveConfig{
		ArchivePath: t.TempDir(),
		Interval:    5 * time.Millisecond,
		Recorder:    rec,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:         func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("NewArchiver: %v", err)
	}

	a.Start()
	deadline := time.Now().Add(2 * time.Second)
	for {
		a.mu.Lock()
		n := rec.n
		a.mu.Unlock()
		if n == 1 || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	a.Stop()
	a.Stop()

	if rec.n != 1 {
		t.Errorf("archived = %d, want 1", rec.n)
	}
}
