package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/parkline/ticketspool/internal/core"
	"github.com/parkline/ticketspool/internal/printer"
)

type CreatePrinterRequest struct {
	Name         string `json:"name" binding:"required"`
	Kind         string `json:"kind" binding:"required"`
	Address      string `json:"address" binding:"required"`
	ChunkSize    int    `json:"chunk_size"`
	ChunkDelayMS int    `json:"chunk_delay_ms"`
}

type UpdatePrinterRequest = CreatePrinterRequest

type PrinterResponse struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Kind         string     `json:"kind"`
	Address      string     `json:"address"`
	ChunkSize    int        `json:"chunk_size"`
	ChunkDelayMS int64      `json:"chunk_delay_ms"`
	Status       string     `json:"status"`
	LastSeenAt   *time.Time `json:"last_seen_at,omitempty"`
	TotalPrints  int64      `json:"total_prints"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

type PrinterStatusResponse struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Probe  *printer.Status `json:"probe,omitempty"`
	Error  string          `json:"error,omitempty"`
}

type PrinterHandler struct {
	printers *printer.Manager
}

func NewPrinterHandler(printers *printer.Manager) *PrinterHandler {
	return &PrinterHandler{printers: printers}
}

func (h *PrinterHandler) ListPrinters(c *gin.Context) {
	printers := h.printers.ListPrinters()

	responses := make([]PrinterResponse, 0, len(printers))
	for i := range printers {
		responses = append(responses, printerToResponse(&printers[i]))
	}

	c.JSON(http.StatusOK, gin.H{
		"printers": responses,
		"count":    len(responses),
	})
}

func (h *PrinterHandler) CreatePrinter(c *gin.Context) {
	var req CreatePrinterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	p, err := h.printers.AddPrinter(c.Request.Context(), requestToPrinter("", &req))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, printerToResponse(&p))
}

func (h *PrinterHandler) GetPrinter(c *gin.Context) {
	p, err := h.printers.GetPrinter(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, printerToResponse(&p))
}

func (h *PrinterHandler) UpdatePrinter(c *gin.Context) {
	var req UpdatePrinterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	p, err := h.printers.UpdatePrinter(c.Request.Context(), requestToPrinter(c.Param("id"), &req))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, printerToResponse(&p))
}

func (h *PrinterHandler) DeletePrinter(c *gin.Context) {
	if err := h.printers.RemovePrinter(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "printer deleted"})
}

// GetPrinterStatus probes the printer now. An unreachable printer is
// reported with 200 and its recorded status rather than as a request error.
func (h *PrinterHandler) GetPrinterStatus(c *gin.Context) {
	id := c.Param("id")

	status, err := h.printers.CheckStatus(c.Request.Context(), id)
	if err != nil && errors.Is(err, printer.ErrPrinterNotFound) {
		respondError(c, err)
		return
	}

	p, getErr := h.printers.GetPrinter(id)
	if getErr != nil {
		respondError(c, getErr)
		return
	}

	resp := PrinterStatusResponse{
		ID:     id,
		Status: p.Status,
		Probe:  status,
	}
	if err != nil {
		resp.Error = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

func requestToPrinter(id string, req *CreatePrinterRequest) printer.Printer {
	return printer.Printer{
		PrinterProfile: core.PrinterProfile{
			ID:         id,
			Name:       req.Name,
			Kind:       core.TransportKind(req.Kind),
			Address:    req.Address,
			ChunkSize:  req.ChunkSize,
			ChunkDelay: time.Duration(req.ChunkDelayMS) * time.Millisecond,
		},
	}
}

func printerToResponse(p *printer.Printer) PrinterResponse {
	return PrinterResponse{
		ID:           p.ID,
		Name:         p.Name,
		Kind:         string(p.Kind),
		Address:      p.Address,
		ChunkSize:    p.ChunkSize,
		ChunkDelayMS: p.ChunkDelay.Milliseconds(),
		Status:       p.Status,
		LastSeenAt:   p.LastSeenAt,
		TotalPrints:  p.TotalPrints,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}
