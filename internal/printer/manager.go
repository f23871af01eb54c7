package printer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/parkline/ticketspool/internal/config"
	"github.com/parkline/ticketspool/internal/core"
)

// Manager is the printer registry. It routes print jobs to the transport for
// each printer kind, so it serves as the queue manager's core.Transport, and
// runs a periodic health check over every registered printer.
type Manager struct {
	store      Store
	config     config.PrintersConfig
	transports map[core.TransportKind]Transport
	prefixes   []string
	logger     *slog.Logger

	mu       sync.RWMutex
	printers map[string]*Printer
	onChange []StatusChangeFunc

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

var _ core.Transport = (*Manager)(nil)

// NewManager builds a registry with the standard transports. store may be nil.
func NewManager(store Store, cfg config.PrintersConfig, logger *slog.Logger) *Manager {
	transports := map[core.TransportKind]Transport{
		core.TransportNetwork:   NewNetworkTransport(cfg.ConnectionTimeout, cfg.StatusProbe),
		core.TransportUSB:       NewUSBTransport(cfg.ChunkSize),
		core.TransportBluetooth: NewBluetoothTransport(cfg.ChunkSize, cfg.BluetoothBytesPerSec),
	}
	return NewManagerWithTransports(store, cfg, logger, transports)
}

func NewManagerWithTransports(store Store, cfg config.PrintersConfig, logger *slog.Logger, transports map[core.TransportKind]Transport) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	prefixes := cfg.DevicePrefixes
	if len(prefixes) == 0 {
		prefixes = config.DefaultDevicePrefixes
	}
	return &Manager{
		store:      store,
		config:     cfg,
		transports: transports,
		prefixes:   prefixes,
		logger:     logger,
		printers:   make(map[string]*Printer),
		stopCh:     make(chan struct{}),
	}
}

// Start loads the registry from the store and launches the health check loop.
func (pm *Manager) Start(ctx context.Context) error {
	if err := pm.load(ctx); err != nil {
		return err
	}

	pm.wg.Add(1)
	go pm.healthCheckLoop()
	return nil
}

func (pm *Manager) Stop() {
	pm.stopOnce.Do(func() { close(pm.stopCh) })
	pm.wg.Wait()
}

func (pm *Manager) load(ctx context.Context) error {
	if pm.store == nil {
		return nil
	}

	printers, err := pm.store.ListPrinters(ctx)
	if err != nil {
		return fmt.Errorf("failed to load printers: %w", err)
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()
	for _, p := range printers {
		pm.printers[p.ID] = p
	}
	pm.logger.Info("printers loaded", slog.Int("count", len(printers)))
	return nil
}

// OnStatusChange registers fn to be told about status transitions.
func (pm *Manager) OnStatusChange(fn StatusChangeFunc) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.onChange = append(pm.onChange, fn)
}

func (pm *Manager) validatePrinter(p *Printer) error {
	if p.Name == "" {
		return fmt.Errorf("%w: printer name is required", core.ErrInvalidArgument)
	}
	if !p.Kind.Valid() {
		return fmt.Errorf("%w: unknown printer kind %q", core.ErrInvalidArgument, p.Kind)
	}
	if p.Address == "" {
		return fmt.Errorf("%w: printer address is required", core.ErrInvalidArgument)
	}
	if p.ChunkSize < 0 || p.ChunkDelay < 0 {
		return fmt.Errorf("%w: chunk size and delay must be non-negative", core.ErrInvalidArgument)
	}
	if err := pm.checkAddress(p.PrinterProfile); err != nil {
		return fmt.Errorf("%w: %w", core.ErrInvalidArgument, err)
	}
	return nil
}

// checkAddress keeps USB and Bluetooth printers under the configured device
// prefixes so a profile cannot point the transport at an arbitrary file.
func (pm *Manager) checkAddress(p core.PrinterProfile) error {
	if p.Kind != core.TransportUSB && p.Kind != core.TransportBluetooth {
		return nil
	}
	path := filepath.Clean(p.Address)
	for _, prefix := range pm.prefixes {
		if strings.HasPrefix(path, prefix) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s is not under %s", ErrAddressNotAllowed, p.Address, strings.Join(pm.prefixes, ", "))
}

func (pm *Manager) AddPrinter(ctx context.Context, p Printer) (Printer, error) {
	if err := pm.validatePrinter(&p); err != nil {
		return Printer{}, err
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()

	if _, exists := pm.printers[p.ID]; exists {
		return Printer{}, ErrPrinterAlreadyExists
	}
	for _, existing := range pm.printers {
		if existing.Name == p.Name {
			return Printer{}, fmt.Errorf("%w: %s", ErrPrinterAlreadyExists, p.Name)
		}
	}

	now := time.Now()
	p.Status = StatusUnknown
	p.LastSeenAt = nil
	p.TotalPrints = 0
	p.CreatedAt = now
	p.UpdatedAt = now

	if pm.store != nil {
		if err := pm.store.CreatePrinter(ctx, &p); err != nil {
			return Printer{}, err
		}
	}

	pm.printers[p.ID] = &p
	pm.logger.Info("printer added",
		slog.String("printer_id", p.ID),
		slog.String("name", p.Name),
		slog.String("kind", string(p.Kind)),
	)
	return p, nil
}

func (pm *Manager) UpdatePrinter(ctx context.Context, p Printer) (Printer, error) {
	if err := pm.validatePrinter(&p); err != nil {
		return Printer{}, err
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()

	existing, ok := pm.printers[p.ID]
	if !ok {
		return Printer{}, ErrPrinterNotFound
	}

	updated := *existing
	updated.Name = p.Name
	updated.Kind = p.Kind
	updated.Address = p.Address
	updated.ChunkSize = p.ChunkSize
	updated.ChunkDelay = p.ChunkDelay
	updated.UpdatedAt = time.Now()

	if pm.store != nil {
		if err := pm.store.UpdatePrinter(ctx, &updated); err != nil {
			return Printer{}, err
		}
	}

	pm.printers[p.ID] = &updated
	return updated, nil
}

func (pm *Manager) RemovePrinter(ctx context.Context, id string) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if _, exists := pm.printers[id]; !exists {
		return ErrPrinterNotFound
	}

	if pm.store != nil {
		if err := pm.store.DeletePrinter(ctx, id); err != nil {
			return err
		}
	}

	delete(pm.printers, id)
	pm.logger.Info("printer removed", slog.String("printer_id", id))
	return nil
}

func (pm *Manager) GetPrinter(id string) (Printer, error) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	p, exists := pm.printers[id]
	if !exists {
		return Printer{}, ErrPrinterNotFound
	}
	return *p, nil
}

// Profile returns the profile a print job should carry for printer id.
func (pm *Manager) Profile(id string) (core.PrinterProfile, error) {
	p, err := pm.GetPrinter(id)
	if err != nil {
		return core.PrinterProfile{}, err
	}
	return p.PrinterProfile, nil
}

func (pm *Manager) ListPrinters() []Printer {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	printers := make([]Printer, 0, len(pm.printers))
	for _, p := range pm.printers {
		printers = append(printers, *p)
	}
	sort.Slice(printers, func(i, j int) bool {
		return printers[i].Name < printers[j].Name
	})
	return printers
}

// Send delivers payload through the transport for the profile's kind. The
// profile need not be registered; registered printers get their print
// count and last-seen time updated.
func (pm *Manager) Send(ctx context.Context, p core.PrinterProfile, payload []byte, copies int) error {
	transport, ok := pm.transports[p.Kind]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedKind, p.Kind)
	}
	if err := pm.checkAddress(p); err != nil {
		return err
	}

	if err := transport.Send(ctx, p, payload, copies); err != nil {
		if errors.Is(err, ErrPrinterOffline) || errors.Is(err, ErrConnectionFailed) {
			pm.updatePrinterStatus(ctx, p.ID, StatusOffline)
		}
		return err
	}

	if copies < 1 {
		copies = 1
	}
	pm.recordPrint(ctx, p.ID, copies)
	return nil
}

func (pm *Manager) recordPrint(ctx context.Context, id string, copies int) {
	if id == "" {
		return
	}

	pm.mu.Lock()
	p, exists := pm.printers[id]
	if exists {
		p.TotalPrints += int64(copies)
	}
	pm.mu.Unlock()
	if !exists {
		return
	}

	pm.updatePrinterStatus(ctx, id, StatusOnline)
	if pm.store != nil {
		if err := pm.store.IncrementPrintCount(ctx, id, copies); err != nil {
			pm.logger.Warn("failed to record print count",
				slog.String("printer_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
}

// CheckStatus probes one printer and records the outcome.
func (pm *Manager) CheckStatus(ctx context.Context, id string) (*Status, error) {
	p, err := pm.GetPrinter(id)
	if err != nil {
		return nil, err
	}

	transport, ok := pm.transports[p.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedKind, p.Kind)
	}

	status, err := transport.Probe(ctx, p.PrinterProfile)
	if err != nil {
		if errors.Is(err, ErrInvalidStatus) {
			pm.updatePrinterStatus(ctx, id, StatusError)
		} else {
			pm.updatePrinterStatus(ctx, id, StatusOffline)
		}
		return status, err
	}

	pm.updatePrinterStatus(ctx, id, determineStatusString(status))
	return status, nil
}

func (pm *Manager) CheckAllStatuses(ctx context.Context) {
	pm.mu.RLock()
	ids := make([]string, 0, len(pm.printers))
	for id := range pm.printers {
		ids = append(ids, id)
	}
	pm.mu.RUnlock()

	for _, id := range ids {
		if _, err := pm.CheckStatus(ctx, id); err != nil {
			pm.logger.Debug("printer health check failed",
				slog.String("printer_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (pm *Manager) updatePrinterStatus(ctx context.Context, id, status string) {
	if id == "" {
		return
	}

	pm.mu.Lock()
	p, exists := pm.printers[id]
	if !exists {
		pm.mu.Unlock()
		return
	}

	oldStatus := p.Status
	now := time.Now()
	p.Status = status
	if status != StatusOffline {
		p.LastSeenAt = &now
	}
	snapshot := *p
	callbacks := append([]StatusChangeFunc(nil), pm.onChange...)
	pm.mu.Unlock()

	if pm.store != nil {
		if err := pm.store.UpdatePrinterStatus(ctx, id, status, now); err != nil {
			pm.logger.Warn("failed to persist printer status",
				slog.String("printer_id", id),
				slog.String("error", err.Error()),
			)
		}
	}

	if oldStatus == status {
		return
	}
	pm.logger.Info("printer status changed",
		slog.String("printer_id", id),
		slog.String("name", snapshot.Name),
		slog.String("old_status", oldStatus),
		slog.String("new_status", status),
	)
	for _, fn := range callbacks {
		fn(snapshot, oldStatus, status)
	}
}

func (pm *Manager) healthCheckLoop() {
	defer pm.wg.Done()

	interval := pm.config.HealthCheckInterval
	if interval == 0 {
		interval = 30 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-pm.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	pm.CheckAllStatuses(ctx)

	for {
		select {
		case <-pm.stopCh:
			return
		case <-ticker.C:
			pm.CheckAllStatuses(ctx)
		}
	}
}
