package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/parkline/ticketspool/internal/core"
)

// JobStore persists print jobs for the queue manager.
type JobStore struct {
	db *DB
}

func NewJobStore(d *DB) *JobStore {
	return &JobStore{db: d}
}

var _ core.JobStore = (*JobStore)(nil)

func (s *JobStore) SaveJob(ctx context.Context, job *core.PrintJob) error {
	_, err := s.db.exec(ctx, UpsertJob,
		job.ID, string(job.TicketType), string(job.Priority), string(job.Status),
		job.Attempts, job.MaxAttempts, job.Error, nullTime(job.RetryAt),
		job.Printer.ID, job.Printer.Name, string(job.Printer.Kind), job.Printer.Address,
		job.Printer.ChunkSize, job.Printer.ChunkDelay.Milliseconds(),
		job.Payload, job.Copies, job.SubmittedBy,
		job.CreatedAt.UTC(), job.UpdatedAt.UTC(), nullTime(job.PrintedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save print job %s: %w", job.ID, err)
	}
	return nil
}

func (s *JobStore) LoadJobs(ctx context.Context) ([]*core.PrintJob, error) {
	rows, err := s.db.query(ctx, ListJobs)
	if err != nil {
		return nil, fmt.Errorf("failed to list print jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*core.PrintJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan print job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// DeleteJobs removes the given jobs in a single transaction.
func (s *JobStore) DeleteJobs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.db.rebind(DeleteJob))
	if err != nil {
		return fmt.Errorf("failed to prepare delete: %w", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return fmt.Errorf("failed to delete print job %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// CountByStatus returns the number of stored jobs per status. The health
// endpoint uses it to check the database is reachable.
func (s *JobStore) CountByStatus(ctx context.Context) (map[core.JobStatus]int, error) {
	rows, err := s.db.query(ctx, CountJobsByStatus)
	if err != nil {
		return nil, fmt.Errorf("failed to count print jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[core.JobStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[core.JobStatus(status)] = n
	}
	return counts, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*core.PrintJob, error) {
	var (
		job                  core.PrintJob
		ticketType, priority string
		status, kind         string
		chunkDelayMS         int64
		retryAt, printedAt   sql.NullTime
		createdAt, updatedAt time.Time
	)
	err := row.Scan(
		&job.ID, &ticketType, &priority, &status,
		&job.Attempts, &job.MaxAttempts, &job.Error, &retryAt,
		&job.Printer.ID, &job.Printer.Name, &kind, &job.Printer.Address,
		&job.Printer.ChunkSize, &chunkDelayMS,
		&job.Payload, &job.Copies, &job.SubmittedBy,
		&createdAt, &updatedAt, &printedAt,
	)
	if err != nil {
		return nil, err
	}

	job.TicketType = core.TicketType(ticketType)
	job.Priority = core.Priority(priority)
	job.Status = core.JobStatus(status)
	job.Printer.Kind = core.TransportKind(kind)
	job.Printer.ChunkDelay = time.Duration(chunkDelayMS) * time.Millisecond
	job.CreatedAt = createdAt
	job.UpdatedAt = updatedAt
	job.RetryAt = timePtr(retryAt)
	job.PrintedAt = timePtr(printedAt)
	return &job, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
