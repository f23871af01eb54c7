package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/parkline/ticketspool/internal/archive"
	"github.com/parkline/ticketspool/internal/config"
	"github.com/parkline/ticketspool/internal/db"
)

type SettingsHandler struct {
	config   *config.Config
	archiver *archive.Archiver
}

// ServerConfigResponse is the running configuration with credentials left out.
type ServerConfigResponse struct {
	Port                int    `json:"port"`
	DatabaseDriver      string `json:"database_driver"`
	DatabasePath        string `json:"database_path,omitempty"`
	ArchivePath         string `json:"archive_path"`
	ArchiveDays         int    `json:"archive_days"`
	HealthCheckInterval string `json:"health_check_interval"`
	ConnectionTimeout   string `json:"connection_timeout"`
	StatusProbe         bool   `json:"status_probe"`
	DispatchInterval    string `json:"dispatch_interval"`
	MaxAttempts         int    `json:"max_attempts"`
	BackoffBase         string `json:"backoff_base"`
	MaxBackoff          string `json:"max_backoff"`
	DispatchTimeout     string `json:"dispatch_timeout"`
	Webhooks            int    `json:"webhooks"`
	LogLevel            string `json:"log_level"`
	LogFormat           string `json:"log_format"`
}

type UpdateArchiveSettingsRequest struct {
	ArchiveDays int `json:"archive_days" binding:"min=0"`
}

// NewSettingsHandler builds the handler. archiver may be nil when archiving
// is disabled.
func NewSettingsHandler(cfg *config.Config, archiver *archive.Archiver) *SettingsHandler {
	return &SettingsHandler{
		config:   cfg,
		archiver: archiver,
	}
}

func (h *SettingsHandler) GetServerConfig(c *gin.Context) {
	archiveDays := h.config.Database.ArchiveDays
	if h.archiver != nil {
		archiveDays = h.archiver.GetArchiveDays()
	}

	resp := ServerConfigResponse{
		Port:                h.config.Server.Port,
		DatabaseDriver:      h.config.Database.Driver,
		ArchivePath:         h.config.Database.ArchivePath,
		ArchiveDays:         archiveDays,
		HealthCheckInterval: h.config.Printers.HealthCheckInterval.String(),
		ConnectionTimeout:   h.config.Printers.ConnectionTimeout.String(),
		StatusProbe:         h.config.Printers.StatusProbe,
		DispatchInterval:    h.config.Queue.DispatchInterval.String(),
		MaxAttempts:         h.config.Queue.MaxAttempts,
		BackoffBase:         h.config.Queue.BackoffBase.String(),
		MaxBackoff:          h.config.Queue.MaxBackoff.String(),
		DispatchTimeout:     h.config.Queue.DispatchTimeout.String(),
		Webhooks:            len(h.config.Webhooks),
		LogLevel:            h.config.Logging.Level,
		LogFormat:           h.config.Logging.Format,
	}
	if h.config.Database.Driver == db.DriverSQLite {
		resp.DatabasePath = h.config.Database.Path
	}

	c.JSON(http.StatusOK, resp)
}

func (h *SettingsHandler) UpdateArchiveSettings(c *gin.Context) {
	var req UpdateArchiveSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if h.archiver == nil {
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "archive_disabled",
			Message: "archiving is not enabled",
		})
		return
	}

	archiveDays := req.ArchiveDays
	if archiveDays <= 0 {
		archiveDays = h.config.Database.ArchiveDays
	}
	h.archiver.SetArchiveDays(archiveDays)

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"message":      "Archive settings updated",
		"archive_days": archiveDays,
	})
}

func RegisterSettingsRoutes(r *gin.RouterGroup, h *SettingsHandler) {
	r.GET("/settings/server", h.GetServerConfig)
	r.PUT("/settings/archive", h.UpdateArchiveSettings)
}
