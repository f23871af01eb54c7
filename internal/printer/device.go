package printer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/parkline/ticketspool/internal/core"
)

const defaultChunkSize = 512

// USBTransport writes to a USB printer class device node such as /dev/usb/lp0.
type USBTransport struct {
	chunkSize int
}

func NewUSBTransport(chunkSize int) *USBTransport {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	return &USBTransport{chunkSize: chunkSize}
}

func (t *USBTransport) Send(ctx context.Context, p core.PrinterProfile, payload []byte, copies int) error {
	return writeDevice(ctx, p, payload, copies, chunkSizeFor(p, t.chunkSize), nil)
}

func (t *USBTransport) Probe(_ context.Context, p core.PrinterProfile) (*Status, error) {
	return probeDevice(p.Address)
}

// BluetoothTransport writes to an RFCOMM serial node such as /dev/rfcomm0.
// Serial Bluetooth printers drop data when flooded, so every printer gets a
// byte-rate limiter and chunks are optionally spaced by ChunkDelay.
type BluetoothTransport struct {
	chunkSize   int
	bytesPerSec int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewBluetoothTransport(chunkSize, bytesPerSec int) *BluetoothTransport {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	return &BluetoothTransport{
		chunkSize:   chunkSize,
		bytesPerSec: bytesPerSec,
		limiters:    make(map[string]*rate.Limiter),
	}
}

func (t *BluetoothTransport) Send(ctx context.Context, p core.PrinterProfile, payload []byte, copies int) error {
	size := chunkSizeFor(p, t.chunkSize)
	return writeDevice(ctx, p, payload, copies, size, t.limiter(p.Address, size))
}

func (t *BluetoothTransport) Probe(_ context.Context, p core.PrinterProfile) (*Status, error) {
	return probeDevice(p.Address)
}

func (t *BluetoothTransport) limiter(address string, chunkSize int) *rate.Limiter {
	if t.bytesPerSec <= 0 {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	l, ok := t.limiters[address]
	if !ok || l.Burst() < chunkSize {
		burst := t.bytesPerSec
		if burst < chunkSize {
			burst = chunkSize
		}
		l = rate.NewLimiter(rate.Limit(t.bytesPerSec), burst)
		t.limiters[address] = l
	}
	return l
}

func chunkSizeFor(p core.PrinterProfile, fallback int) int {
	if p.ChunkSize > 0 {
		return p.ChunkSize
	}
	return fallback
}

func writeDevice(ctx context.Context, p core.PrinterProfile, payload []byte, copies, chunkSize int, limiter *rate.Limiter) error {
	f, err := os.OpenFile(p.Address, os.O_WRONLY, 0)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrPrinterOffline, p.Address)
		}
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	defer f.Close()

	if copies < 1 {
		copies = 1
	}
	for c := 0; c < copies; c++ {
		for off := 0; off < len(payload); off += chunkSize {
			if err := ctx.Err(); err != nil {
				return err
			}

			end := off + chunkSize
			if end > len(payload) {
				end = len(payload)
			}
			chunk := payload[off:end]

			if limiter != nil {
				if err := limiter.WaitN(ctx, len(chunk)); err != nil {
					return err
				}
			}
			if _, err := f.Write(chunk); err != nil {
				return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
			}

			if p.ChunkDelay > 0 && end < len(payload) {
				if err := sleepCtx(ctx, p.ChunkDelay); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// probeDevice reports a device node as online when it can be opened for writing.
func probeDevice(path string) (*Status, error) {
	now := time.Now()
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return offlineStatus(now), fmt.Errorf("%w: %s", ErrPrinterOffline, path)
		}
		return offlineStatus(now), fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	f.Close()
	return &Status{IsOnline: true, CanPrint: true, LastChecked: now}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
