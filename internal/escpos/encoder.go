// Package escpos renders parking tickets as ESC/POS byte streams for 58mm
// and 80mm thermal receipt printers.
package escpos

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	esc = 0x1b
	gs  = 0x1d
)

var (
	cmdInit          = []byte{esc, '@'}
	cmdAlignLeft     = []byte{esc, 'a', 0}
	cmdAlignCenter   = []byte{esc, 'a', 1}
	cmdBoldOn        = []byte{esc, 'E', 1}
	cmdBoldOff       = []byte{esc, 'E', 0}
	cmdSizeNormal    = []byte{gs, '!', 0x00}
	cmdSizeDouble    = []byte{gs, '!', 0x11}
	cmdCutFull       = []byte{gs, 'V', 'A', 0}
	cmdCutPartial    = []byte{gs, 'V', 'B', 0}
	cmdBarcodeHRI    = []byte{gs, 'H', 2}
	cmdBarcodeHeight = []byte{gs, 'h', 80}
)

type CutMode string

const (
	CutNone    CutMode = "none"
	CutFull    CutMode = "full"
	CutPartial CutMode = "partial"
)

var ErrMissingVehicle = errors.New("ticket vehicle number is required")

// Ticket is the parking record printed on a ticket.
type Ticket struct {
	Serial        int        `json:"serial"`
	VehicleNumber string     `json:"vehicle_number"`
	VehicleType   string     `json:"vehicle_type"`
	TransportName string     `json:"transport_name"`
	DriverName    string     `json:"driver_name"`
	DriverPhone   string     `json:"driver_phone"`
	EntryTime     time.Time  `json:"entry_time"`
	ExitTime      *time.Time `json:"exit_time,omitempty"`
	ParkingFee    int64      `json:"parking_fee"`
	PaymentStatus string     `json:"payment_status"`
	PaymentType   string     `json:"payment_type"`
	Notes         string     `json:"notes"`
	CreatedBy     string     `json:"created_by"`
	Duplicate     bool       `json:"duplicate"`
}

// Layout controls paper width and the fixed text around the ticket body.
type Layout struct {
	Width      int      `json:"width"`
	Header     []string `json:"header"`
	Footer     []string `json:"footer"`
	Currency   string   `json:"currency"`
	TimeFormat string   `json:"time_format"`
	Cut        CutMode  `json:"cut"`
	Barcode    bool     `json:"barcode"`
}

// DefaultLayout is a 58mm (32 column) layout.
func DefaultLayout() Layout {
	return Layout{
		Width:      32,
		Currency:   "Rs.",
		TimeFormat: "02 Jan 2006 15:04",
		Cut:        CutPartial,
		Barcode:    true,
	}
}

// Encode renders t. Missing optional fields are printed as N/A.
func Encode(t Ticket, layout Layout) ([]byte, error) {
	vehicle := strings.ToUpper(strings.TrimSpace(t.VehicleNumber))
	if vehicle == "" {
		return nil, ErrMissingVehicle
	}

	l := withDefaults(layout)
	var b bytes.Buffer
	b.Write(cmdInit)

	b.Write(cmdAlignCenter)
	if len(l.Header) > 0 {
		b.Write(cmdBoldOn)
		for _, line := range l.Header {
			writeLine(&b, center(sanitize(line), l.Width))
		}
		b.Write(cmdBoldOff)
	}
	if t.Duplicate {
		b.Write(cmdBoldOn)
		writeLine(&b, center("** DUPLICATE **", l.Width))
		b.Write(cmdBoldOff)
	}

	b.Write(cmdSizeDouble)
	writeLine(&b, sanitize(vehicle))
	b.Write(cmdSizeNormal)
	writeLine(&b, strings.Repeat("-", l.Width))

	b.Write(cmdAlignLeft)
	rows := [][2]string{
		{"Ticket No", strconv.Itoa(t.Serial)},
		{"Vehicle", orNA(t.VehicleType)},
		{"Transport", orNA(t.TransportName)},
		{"Driver", orNA(t.DriverName)},
		{"Phone", orNA(t.DriverPhone)},
		{"Entry", formatTime(&t.EntryTime, l.TimeFormat)},
		{"Exit", formatTime(t.ExitTime, l.TimeFormat)},
	}
	for _, r := range rows {
		writeField(&b, r[0], r[1], l.Width)
	}

	if t.ParkingFee > 0 || t.ExitTime != nil {
		writeLine(&b, strings.Repeat("-", l.Width))
		b.Write(cmdBoldOn)
		writeField(&b, "Fee", formatFee(t.ParkingFee, l.Currency), l.Width)
		b.Write(cmdBoldOff)
		writeField(&b, "Payment", orNA(t.PaymentStatus), l.Width)
		writeField(&b, "Paid by", orNA(t.PaymentType), l.Width)
	}

	if notes := strings.TrimSpace(t.Notes); notes != "" && notes != "N/A" {
		writeLine(&b, strings.Repeat("-", l.Width))
		for _, line := range wrap(sanitize(notes), l.Width) {
			writeLine(&b, line)
		}
	}

	if l.Barcode && t.Serial > 0 {
		b.Write(cmdAlignCenter)
		writeBarcode(&b, fmt.Sprintf("%06d", t.Serial))
	}

	if len(l.Footer) > 0 {
		b.Write(cmdAlignCenter)
		for _, line := range l.Footer {
			writeLine(&b, center(sanitize(line), l.Width))
		}
	}
	if t.CreatedBy != "" {
		b.Write(cmdAlignCenter)
		writeLine(&b, center(sanitize("Issued by "+t.CreatedBy), l.Width))
	}

	b.Write([]byte{esc, 'd', 4})
	switch l.Cut {
	case CutFull:
		b.Write(cmdCutFull)
	case CutPartial:
		b.Write(cmdCutPartial)
	}

	return b.Bytes(), nil
}

func withDefaults(l Layout) Layout {
	d := DefaultLayout()
	if l.Width <= 0 {
		l.Width = d.Width
	}
	if l.TimeFormat == "" {
		l.TimeFormat = d.TimeFormat
	}
	if l.Cut == "" {
		l.Cut = d.Cut
	}
	return l
}

func writeLine(b *bytes.Buffer, s string) {
	b.WriteString(s)
	b.WriteByte('\n')
}

// writeField prints "label   value" across the width, moving the value to
// its own right-aligned line when both do not fit.
func writeField(b *bytes.Buffer, label, value string, width int) {
	label = sanitize(label) + ":"
	value = sanitize(value)
	gap := width - len(label) - len(value)
	if gap >= 1 {
		writeLine(b, label+strings.Repeat(" ", gap)+value)
		return
	}
	writeLine(b, label)
	for _, line := range wrap(value, width) {
		writeLine(b, strings.Repeat(" ", width-len(line))+line)
	}
}

// writeBarcode prints data as CODE128 (code set B).
func writeBarcode(b *bytes.Buffer, data string) {
	b.Write(cmdBarcodeHRI)
	b.Write(cmdBarcodeHeight)
	payload := "{B" + data
	b.Write([]byte{gs, 'k', 73, byte(len(payload))})
	b.WriteString(payload)
	b.WriteByte('\n')
}

func center(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat(" ", (width-len(s))/2) + s
}

func wrap(s string, width int) []string {
	var lines []string
	var line string
	for _, word := range strings.Fields(s) {
		for len(word) > width {
			if line != "" {
				lines = append(lines, line)
				line = ""
			}
			lines = append(lines, word[:width])
			word = word[width:]
		}
		if word == "" {
			continue
		}
		switch {
		case line == "":
			line = word
		case len(line)+1+len(word) <= width:
			line += " " + word
		default:
			lines = append(lines, line)
			line = word
		}
	}
	if line != "" {
		lines = append(lines, line)
	}
	return lines
}

// sanitize keeps printable ASCII so free text cannot inject control codes.
func sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\t' || r == '\n' || r == '\r':
			b.WriteByte(' ')
		case r < 0x20 || r > 0x7e:
			b.WriteByte('?')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}

func formatTime(t *time.Time, layout string) string {
	if t == nil || t.IsZero() {
		return "N/A"
	}
	return t.Format(layout)
}

func formatFee(amount int64, currency string) string {
	if currency == "" {
		return strconv.FormatInt(amount, 10)
	}
	return currency + " " + strconv.FormatInt(amount, 10)
}
