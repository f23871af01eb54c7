package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/parkline/ticketspool/internal/archive"
)

type ArchiveHandler struct {
	archiver *archive.Archiver
}

func NewArchiveHandler(archiver *archive.Archiver) *ArchiveHandler {
	return &ArchiveHandler{archiver: archiver}
}

type ArchiveListResponse struct {
	Archives    []*archive.ArchiveFile `json:"archives"`
	Count       int                    `json:"count"`
	ArchiveDays int                    `json:"archive_days"`
	ArchivePath string                 `json:"archive_path"`
}

func (h *ArchiveHandler) ListArchives(c *gin.Context) {
	archives, err := h.archiver.ListArchives()
	if err != nil {
		respondError(c, err)
		return
	}
	if archives == nil {
		archives = []*archive.ArchiveFile{}
	}

	c.JSON(http.StatusOK, ArchiveListResponse{
		Archives:    archives,
		Count:       len(archives),
		ArchiveDays: h.archiver.GetArchiveDays(),
		ArchivePath: h.archiver.GetArchivePath(),
	})
}

func (h *ArchiveHandler) GetArchiveInfo(c *gin.Context) {
	info, err := h.archiver.GetArchiveInfo(c.Param("filename"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// GetArchiveJobs returns the jobs stored in one archive file.
func (h *ArchiveHandler) GetArchiveJobs(c *gin.Context) {
	jobs, err := h.archiver.ReadArchive(c.Param("filename"))
	if err != nil {
		respondError(c, err)
		return
	}

	resp := make([]JobResponse, 0, len(jobs))
	for i := range jobs {
		resp = append(resp, jobToResponse(&jobs[i]))
	}
	c.JSON(http.StatusOK, gin.H{"jobs": resp, "count": len(resp)})
}

// RunArchive triggers an archive pass outside the daily schedule.
func (h *ArchiveHandler) RunArchive(c *gin.Context) {
	n, err := h.archiver.RunArchive(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"archived": n})
}
