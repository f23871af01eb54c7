package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/parkline/ticketspool/internal/archive"
	"github.com/parkline/ticketspool/internal/core"
	"github.com/parkline/ticketspool/internal/escpos"
	"github.com/parkline/ticketspool/internal/printer"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func respondError(c *gin.Context, err error) {
	status, code := classify(err)
	c.JSON(status, ErrorResponse{
		Error:   code,
		Message: err.Error(),
	})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   "invalid_argument",
		Message: message,
	})
}

// classify maps service errors to an HTTP status and a stable error code.
// Not-found checks come first since ErrJobNotFound is also an invalid
// argument.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, core.ErrJobNotFound),
		errors.Is(err, printer.ErrPrinterNotFound),
		errors.Is(err, archive.ErrArchiveNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, printer.ErrPrinterAlreadyExists):
		return http.StatusConflict, "already_exists"
	case errors.Is(err, core.ErrInvalidJobState):
		return http.StatusBadRequest, "invalid_state"
	case errors.Is(err, core.ErrInvalidArgument),
		errors.Is(err, escpos.ErrMissingVehicle),
		errors.Is(err, printer.ErrUnsupportedKind),
		errors.Is(err, printer.ErrAddressNotAllowed):
		return http.StatusBadRequest, "invalid_argument"
	case errors.Is(err, core.ErrManagerStopped):
		return http.StatusServiceUnavailable, "unavailable"
	}
	return http.StatusInternalServerError, "internal_error"
}
