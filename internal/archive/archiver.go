// Package archive moves old finished print jobs out of the queue's history
// into monthly JSON-lines files.
package archive

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/parkline/ticketspool/internal/core"
)

var ErrArchiveNotFound = errors.New("archive not found")

// Pruner is implemented by *core.QueueManager.
type Pruner interface {
	PruneHistory(ctx context.Context, cutoff time.Time) []core.PrintJob
}

// Recorder receives the number of archived jobs. *metrics.Metrics satisfies it.
type Recorder interface {
	AddJobsArchived(n int)
}

type Archiver struct {
	source      Pruner
	archivePath string
	archiveDays int
	interval    time.Duration
	recorder    Recorder
	logger      *slog.Logger
	now         func() time.Time

	mu       sync.Mutex
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type ArchiveFile struct {
	Filename  string    `json:"filename"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
	JobCount  int       `json:"job_count"`
	DateRange string    `json:"date_range"`
}

type ArchiveConfig struct {
	ArchivePath string
	ArchiveDays int
	// Interval between archive runs. Defaults to 24h.
	Interval time.Duration
	Recorder Recorder
	Logger   *slog.Logger
	Now      func() time.Time
}

func NewArchiver(source Pruner, config ArchiveConfig) (*Archiver, error) {
	if config.ArchivePath == "" {
		config.ArchivePath = "./data/archives"
	}
	if config.ArchiveDays <= 0 {
		config.ArchiveDays = 30
	}
	if config.Interval <= 0 {
		config.Interval = 24 * time.Hour
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	if err := os.MkdirAll(config.ArchivePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	return &Archiver{
		source:      source,
		archivePath: config.ArchivePath,
		archiveDays: config.ArchiveDays,
		interval:    config.Interval,
		recorder:    config.Recorder,
		logger:      config.Logger,
		now:         config.Now,
		stopCh:      make(chan struct{}),
	}, nil
}

func (a *Archiver) Start() {
	a.wg.Add(1)
	go a.runDailyArchive()
}

func (a *Archiver) Stop() {
	a.stopOnce.Do(func() { close(a.stopCh) })
	a.wg.Wait()
}

func (a *Archiver) runDailyArchive() {
	defer a.wg.Done()

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-a.stopCh:
			return
		case <-ticker.C:
			if _, err := a.RunArchive(context.Background()); err != nil {
				a.logger.Error("archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}

// RunArchive prunes history older than the retention window and appends the
// pruned jobs to this month's archive file. It returns how many were written.
func (a *Archiver) RunArchive(ctx context.Context) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	cutoff := now.AddDate(0, 0, -a.archiveDays)

	jobs := a.source.PruneHistory(ctx, cutoff)
	if len(jobs) == 0 {
		return 0, nil
	}

	path := filepath.Join(a.archivePath, archiveName(now))
	if err := appendJobs(path, jobs); err != nil {
		return 0, fmt.Errorf("failed to write archive: %w", err)
	}

	if a.recorder != nil {
		a.recorder.AddJobsArchived(len(jobs))
	}
	a.logger.Info("history archived",
		slog.Int("jobs", len(jobs)),
		slog.String("file", filepath.Base(path)),
		slog.Time("cutoff", cutoff),
	)
	return len(jobs), nil
}

func archiveName(t time.Time) string {
	return fmt.Sprintf("archive_%s.jsonl", t.Format("2006_01"))
}

func appendJobs(path string, jobs []core.PrintJob) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for i := range jobs {
		if err := enc.Encode(&jobs[i]); err != nil {
			f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (a *Archiver) ListArchives() ([]*ArchiveFile, error) {
	files, err := os.ReadDir(a.archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive directory: %w", err)
	}

	var archives []*ArchiveFile
	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".jsonl") {
			continue
		}

		info, err := file.Info()
		if err != nil {
			continue
		}

		archives = append(archives, &ArchiveFile{
			Filename:  file.Name(),
			Size:      info.Size(),
			CreatedAt: info.ModTime(),
			DateRange: dateRange(file.Name()),
		})
	}

	sort.Slice(archives, func(i, j int) bool {
		return archives[i].Filename < archives[j].Filename
	})
	return archives, nil
}

// GetArchiveInfo stats one archive and counts the jobs it holds.
func (a *Archiver) GetArchiveInfo(filename string) (*ArchiveFile, error) {
	if filename != filepath.Base(filename) {
		return nil, ErrArchiveNotFound
	}
	filePath := filepath.Join(a.archivePath, filename)

	info, err := os.Stat(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrArchiveNotFound
		}
		return nil, fmt.Errorf("failed to stat archive: %w", err)
	}

	count, err := countLines(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive: %w", err)
	}

	return &ArchiveFile{
		Filename:  filename,
		Size:      info.Size(),
		CreatedAt: info.ModTime(),
		JobCount:  count,
		DateRange: dateRange(filename),
	}, nil
}

// ReadArchive decodes every job in an archive file.
func (a *Archiver) ReadArchive(filename string) ([]core.PrintJob, error) {
	if filename != filepath.Base(filename) {
		return nil, ErrArchiveNotFound
	}
	f, err := os.Open(filepath.Join(a.archivePath, filename))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrArchiveNotFound
		}
		return nil, err
	}
	defer f.Close()

	var jobs []core.PrintJob
	dec := json.NewDecoder(f)
	for dec.More() {
		var job core.PrintJob
		if err := dec.Decode(&job); err != nil {
			return nil, fmt.Errorf("failed to decode archive: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (a *Archiver) SetArchiveDays(days int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.archiveDays = days
}

func (a *Archiver) GetArchiveDays() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.archiveDays
}

func (a *Archiver) GetArchivePath() string {
	return a.archivePath
}

func dateRange(filename string) string {
	if !strings.HasPrefix(filename, "archive_") {
		return ""
	}
	return strings.TrimSuffix(strings.TrimPrefix(filename, "archive_"), ".jsonl")
}

func countLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	n := 0
	for sc.Scan() {
		if len(sc.Bytes()) > 0 {
			n++
		}
	}
	return n, sc.Err()
}
