package printer

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/parkline/ticketspool/internal/core"
)

const (
	defaultTCPPort          = 9100
	defaultReadWriteTimeout = 10 * time.Second
)

// NetworkTransport prints over a raw TCP socket (JetDirect, port 9100).
// Each job gets its own connection.
type NetworkTransport struct {
	timeout time.Duration
	probe   bool
}

// NewNetworkTransport returns a transport with the given dial and I/O
// timeout. With probe set, Send checks the real-time status first and
// refuses to print when the printer reports it cannot.
func NewNetworkTransport(timeout time.Duration, probe bool) *NetworkTransport {
	if timeout <= 0 {
		timeout = defaultReadWriteTimeout
	}
	return &NetworkTransport{timeout: timeout, probe: probe}
}

func (t *NetworkTransport) Send(ctx context.Context, p core.PrinterProfile, payload []byte, copies int) error {
	conn, err := t.connect(ctx, p.Address)
	if err != nil {
		return err
	}
	defer conn.Close()

	if t.probe {
		status, err := t.readStatus(conn)
		if err != nil {
			return err
		}
		if !status.CanPrint {
			return fmt.Errorf("%w: %s", ErrPrinterCannotPrint, determineStatusString(status))
		}
	}

	if copies < 1 {
		copies = 1
	}
	for i := 0; i < copies; i++ {
		if _, err := conn.Write(payload); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
		}
	}
	return nil
}

// Probe connects to the printer and requests its real-time status.
func (t *NetworkTransport) Probe(ctx context.Context, p core.PrinterProfile) (*Status, error) {
	conn, err := t.connect(ctx, p.Address)
	if err != nil {
		return offlineStatus(time.Now()), err
	}
	defer conn.Close()

	return t.readStatus(conn)
}

func (t *NetworkTransport) connect(ctx context.Context, address string) (net.Conn, error) {
	dialer := net.Dialer{Timeout: t.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", withDefaultPort(address))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	deadline := time.Now().Add(t.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	// Unblock reads and writes as soon as the job is abandoned.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	return &ctxConn{Conn: conn, stop: stop}, nil
}

func (t *NetworkTransport) readStatus(conn net.Conn) (*Status, error) {
	if _, err := conn.Write(statusRequest); err != nil {
		return offlineStatus(time.Now()), fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	response := make([]byte, statusResponseLength)
	if _, err := io.ReadFull(conn, response); err != nil {
		return offlineStatus(time.Now()), fmt.Errorf("%w: %v", ErrInvalidStatus, err)
	}

	status, ok := parseStatus(response)
	if !ok {
		return offlineStatus(time.Now()), fmt.Errorf("%w: % x", ErrInvalidStatus, response)
	}
	status.LastChecked = time.Now()
	return status, nil
}

type ctxConn struct {
	net.Conn
	stop func() bool
}

func (c *ctxConn) Close() error {
	c.stop()
	return c.Conn.Close()
}

func withDefaultPort(address string) string {
	if _, _, err := net.SplitHostPort(address); err == nil {
		return address
	}
	return net.JoinHostPort(strings.Trim(address, "[]"), strconv.Itoa(defaultTCPPort))
}
