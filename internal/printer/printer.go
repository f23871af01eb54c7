// Package printer holds the printer registry and the transports that move
// ticket bytes to USB, Bluetooth and network thermal printers.
package printer

import (
	"context"
	"errors"
	"time"

	"github.com/parkline/ticketspool/internal/core"
)

var (
	ErrPrinterNotFound      = errors.New("printer not found")
	ErrPrinterOffline       = errors.New("printer is offline")
	ErrConnectionFailed     = errors.New("connection failed")
	ErrInvalidStatus        = errors.New("invalid status response")
	ErrPrinterCannotPrint   = errors.New("printer cannot print in current state")
	ErrPrinterAlreadyExists = errors.New("printer already exists")
	ErrUnsupportedKind      = errors.New("unsupported printer kind")
	ErrAddressNotAllowed    = errors.New("printer address not allowed")
)

const (
	StatusUnknown  = "unknown"
	StatusOnline   = "online"
	StatusOffline  = "offline"
	StatusError    = "error"
	StatusPaperOut = "paper_out"
	StatusPaperLow = "paper_low"
)

// Printer is a registered printer together with its bookkeeping.
type Printer struct {
	core.PrinterProfile
	LastSeenAt  *time.Time `json:"last_seen_at,omitempty"`
	TotalPrints int64      `json:"total_prints"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Store persists the registry. It is satisfied by db.PrinterStore.
type Store interface {
	CreatePrinter(ctx context.Context, p *Printer) error
	ListPrinters(ctx context.Context) ([]*Printer, error)
	UpdatePrinter(ctx context.Context, p *Printer) error
	UpdatePrinterStatus(ctx context.Context, id, status string, seenAt time.Time) error
	IncrementPrintCount(ctx context.Context, id string, n int) error
	DeletePrinter(ctx context.Context, id string) error
}

// Transport is a core.Transport that can also report printer health.
type Transport interface {
	core.Transport
	Probe(ctx context.Context, p core.PrinterProfile) (*Status, error)
}

// StatusChangeFunc is called when a health check moves a printer to a new status.
type StatusChangeFunc func(p Printer, oldStatus, newStatus string)
