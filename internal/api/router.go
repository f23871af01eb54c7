// Package api wires the HTTP handlers into a gin engine.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/parkline/ticketspool/internal/api/handlers"
	"github.com/parkline/ticketspool/internal/api/middleware"
	"github.com/parkline/ticketspool/internal/archive"
	"github.com/parkline/ticketspool/internal/config"
	"github.com/parkline/ticketspool/internal/core"
	"github.com/parkline/ticketspool/internal/escpos"
	"github.com/parkline/ticketspool/internal/metrics"
	"github.com/parkline/ticketspool/internal/printer"
	"github.com/parkline/ticketspool/internal/webhook"
)

// JobCounter reports how many jobs the database holds per status.
// *db.JobStore satisfies it.
type JobCounter interface {
	CountByStatus(ctx context.Context) (map[core.JobStatus]int, error)
}

// Deps are the services the router exposes. Config, Archiver, Webhooks and
// Metrics may be nil, in which case their routes are not registered. Without
// Jobs the health check skips the database.
type Deps struct {
	Config   *config.Config
	Queue    *core.QueueManager
	Printers *printer.Manager
	Jobs     JobCounter
	Archiver *archive.Archiver
	Webhooks *webhook.WebhookSender
	Metrics  *metrics.Metrics
	Layout   escpos.Layout
	Logger   *slog.Logger
}

func NewRouter(d Deps) *gin.Engine {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}

	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(d.Logger))
	r.Use(middleware.RequestLogger(d.Logger))

	r.GET("/health", func(c *gin.Context) {
		status := d.Queue.Status()
		resp := gin.H{
			"status":     "ok",
			"processing": status.Processing,
			"queued":     status.Queued,
			"printers":   len(d.Printers.ListPrinters()),
		}
		code := http.StatusOK
		if d.Jobs != nil {
			stored, err := d.Jobs.CountByStatus(c.Request.Context())
			if err != nil {
				d.Logger.Error("health check: database unavailable", slog.String("error", err.Error()))
				resp["status"] = "degraded"
				resp["database"] = err.Error()
				code = http.StatusServiceUnavailable
			} else {
				resp["database"] = "ok"
				resp["stored"] = stored
			}
		}
		c.JSON(code, resp)
	})
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}

	jobs := handlers.NewJobHandler(d.Queue, d.Printers, d.Layout, d.Logger)
	printers := handlers.NewPrinterHandler(d.Printers)

	apiGroup := r.Group("/api")
	{
		apiGroup.POST("/jobs", jobs.CreateJob)
		apiGroup.GET("/jobs", jobs.ListJobs)
		apiGroup.DELETE("/jobs/completed", jobs.ClearCompleted)
		apiGroup.GET("/jobs/:id", jobs.GetJob)
		apiGroup.POST("/jobs/:id/cancel", jobs.CancelJob)
		apiGroup.POST("/jobs/:id/retry", jobs.RetryJob)

		apiGroup.GET("/queue", jobs.GetQueue)
		apiGroup.POST("/queue/process", jobs.ProcessQueue)

		apiGroup.GET("/printers", printers.ListPrinters)
		apiGroup.POST("/printers", printers.CreatePrinter)
		apiGroup.GET("/printers/:id", printers.GetPrinter)
		apiGroup.PUT("/printers/:id", printers.UpdatePrinter)
		apiGroup.DELETE("/printers/:id", printers.DeletePrinter)
		apiGroup.GET("/printers/:id/status", printers.GetPrinterStatus)

		if d.Archiver != nil {
			archives := handlers.NewArchiveHandler(d.Archiver)
			apiGroup.GET("/archives", archives.ListArchives)
			apiGroup.GET("/archives/:filename", archives.GetArchiveInfo)
			apiGroup.GET("/archives/:filename/jobs", archives.GetArchiveJobs)
			apiGroup.POST("/archives/run", archives.RunArchive)
		}
		if d.Webhooks != nil {
			handlers.RegisterWebhookRoutes(apiGroup, handlers.NewWebhookHandler(d.Webhooks))
		}
		if d.Config != nil {
			handlers.RegisterSettingsRoutes(apiGroup, handlers.NewSettingsHandler(d.Config, d.Archiver))
		}
	}

	return r
}

// NewServer builds the HTTP server for handler from the server config.
func NewServer(cfg config.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
}
