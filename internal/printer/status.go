package printer

import "time"

// ESC/POS real-time status request: DLE EOT n.
var statusRequest = []byte{
	0x10, 0x04, 0x01, // printer status
	0x10, 0x04, 0x02, // offline cause
	0x10, 0x04, 0x04, // roll paper sensor
}

const statusResponseLength = 3

// Every real-time status byte has bits 1 and 4 set and bits 0 and 7 clear.
const (
	statusFixedMask = 0x93
	statusFixedBits = 0x12
)

const (
	bitOffline       = 0x08
	bitCoverOpen     = 0x04
	bitFeedButton    = 0x08
	bitPaperEndStop  = 0x20
	bitErrorOccurred = 0x40
	bitsNearEnd      = 0x0c
	bitsPaperEnd     = 0x60
)

type Status struct {
	IsOnline     bool      `json:"is_online"`
	CanPrint     bool      `json:"can_print"`
	CoverOpen    bool      `json:"cover_open"`
	PaperEnd     bool      `json:"paper_end"`
	PaperNearEnd bool      `json:"paper_near_end"`
	Error        bool      `json:"error"`
	RawStatus    [3]byte   `json:"raw_status"`
	LastChecked  time.Time `json:"last_checked"`
}

func offlineStatus(now time.Time) *Status {
	return &Status{LastChecked: now}
}

// parseStatus decodes the three replies to statusRequest. ok is false when
// any byte fails the fixed-bit check.
func parseStatus(resp []byte) (status *Status, ok bool) {
	if len(resp) < statusResponseLength {
		return nil, false
	}
	for _, b := range resp[:statusResponseLength] {
		if b&statusFixedMask != statusFixedBits {
			return nil, false
		}
	}

	printerByte, offlineByte, paperByte := resp[0], resp[1], resp[2]
	status = &Status{
		RawStatus:    [3]byte{printerByte, offlineByte, paperByte},
		IsOnline:     printerByte&bitOffline == 0,
		CoverOpen:    offlineByte&bitCoverOpen != 0,
		PaperEnd:     offlineByte&bitPaperEndStop != 0 || paperByte&bitsPaperEnd != 0,
		PaperNearEnd: paperByte&bitsNearEnd != 0,
		Error:        offlineByte&bitErrorOccurred != 0,
	}
	status.CanPrint = status.IsOnline && !status.CoverOpen && !status.PaperEnd && !status.Error &&
		offlineByte&bitFeedButton == 0
	return status, true
}

func determineStatusString(status *Status) string {
	switch {
	case status == nil || !status.IsOnline && !status.CoverOpen && !status.PaperEnd && !status.Error:
		return StatusOffline
	case status.PaperEnd:
		return StatusPaperOut
	case status.CoverOpen || status.Error:
		return StatusError
	case status.PaperNearEnd:
		return StatusPaperLow
	}
	return StatusOnline
}
