package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/parkline/ticketspool/internal/core"
	"github.com/parkline/ticketspool/internal/printer"
)

// PrinterStore persists the printer registry.
type PrinterStore struct {
	db *DB
}

func NewPrinterStore(d *DB) *PrinterStore {
	return &PrinterStore{db: d}
}

var _ printer.Store = (*PrinterStore)(nil)

func (s *PrinterStore) CreatePrinter(ctx context.Context, p *printer.Printer) error {
	_, err := s.db.exec(ctx, InsertPrinter,
		p.ID, p.Name, string(p.Kind), p.Address, p.ChunkSize, p.ChunkDelay.Milliseconds(),
		p.Status, nullTime(p.LastSeenAt), p.TotalPrints, p.CreatedAt.UTC(), p.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to create printer: %w", err)
	}
	return nil
}

func (s *PrinterStore) GetPrinter(ctx context.Context, id string) (*printer.Printer, error) {
	p, err := scanPrinter(s.db.queryRow(ctx, GetPrinterByID, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", printer.ErrPrinterNotFound, id)
		}
		return nil, fmt.Errorf("failed to get printer: %w", err)
	}
	return p, nil
}

func (s *PrinterStore) ListPrinters(ctx context.Context) ([]*printer.Printer, error) {
	rows, err := s.db.query(ctx, ListPrinters)
	if err != nil {
		return nil, fmt.Errorf("failed to list printers: %w", err)
	}
	defer rows.Close()

	var printers []*printer.Printer
	for rows.Next() {
		p, err := scanPrinter(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan printer: %w", err)
		}
		printers = append(printers, p)
	}
	return printers, rows.Err()
}

func (s *PrinterStore) UpdatePrinter(ctx context.Context, p *printer.Printer) error {
	_, err := s.db.exec(ctx, UpdatePrinter,
		p.Name, string(p.Kind), p.Address, p.ChunkSize, p.ChunkDelay.Milliseconds(),
		p.UpdatedAt.UTC(), p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update printer: %w", err)
	}
	return nil
}

func (s *PrinterStore) UpdatePrinterStatus(ctx context.Context, id, status string, seenAt time.Time) error {
	_, err := s.db.exec(ctx, UpdatePrinterStatus, status, seenAt.UTC(), seenAt.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update printer status: %w", err)
	}
	return nil
}

func (s *PrinterStore) IncrementPrintCount(ctx context.Context, id string, n int) error {
	_, err := s.db.exec(ctx, IncrementPrinterPrints, n, id)
	if err != nil {
		return fmt.Errorf("failed to increment print count: %w", err)
	}
	return nil
}

func (s *PrinterStore) DeletePrinter(ctx context.Context, id string) error {
	_, err := s.db.exec(ctx, DeletePrinter, id)
	if err != nil {
		return fmt.Errorf("failed to delete printer: %w", err)
	}
	return nil
}

func scanPrinter(row scanner) (*printer.Printer, error) {
	var (
		p            printer.Printer
		kind         string
		chunkDelayMS int64
		lastSeenAt   sql.NullTime
	)
	err := row.Scan(
		&p.ID, &p.Name, &kind, &p.Address, &p.ChunkSize, &chunkDelayMS,
		&p.Status, &lastSeenAt, &p.TotalPrints, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Kind = core.TransportKind(kind)
	p.ChunkDelay = time.Duration(chunkDelayMS) * time.Millisecond
	p.LastSeenAt = timePtr(lastSeenAt)
	return &p, nil
}
