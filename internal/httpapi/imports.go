package httpapi

import (
	"net/http"
	"time"

	"leadpool-crm/internal/importer"

	"github.com/gin-gonic/gin"
)

const maxUploadBytes = 10 << 20

// ImportCSV accepts a multipart "file" (.csv or .xlsx). action=preview (the
// default) is a dry run; action=import writes the new leads.
func (h Handlers) ImportCSV(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)
	fh, err := c.FormFile("file")
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	action := c.DefaultPostForm("action", "preview")
	if action != "preview" && action != "import" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "action must be preview or import"})
		return
	}

	f, err := fh.Open()
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable upload"})
		return
	}
	defer f.Close()

	table, err := importer.ParseUpload(fh.Filename, f)
	if err != nil {
		writeError(c, err)
		return
	}

	ctx := c.Request.Context()
	if action == "preview" {
		p, err := h.Importer.PreviewCSV(ctx, table)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, p)
		return
	}
	res, err := h.Importer.ImportCSV(ctx, table)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Sync runs a manual spreadsheet sync and returns the finished run.
func (h Handlers) Sync(c *gin.Context) {
	run, err := h.Importer.Sync(c.Request.Context(), importer.SyncManual)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (h Handlers) SyncLogs(c *gin.Context) {
	from, err := queryTime(c, "from")
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	to, err := queryTime(c, "to")
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	runs, err := h.Importer.ListRuns(c.Request.Context(), from, to)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (h Handlers) SyncStats(c *gin.Context) {
	ctx := c.Request.Context()
	today, err := h.Importer.TodayStats(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	last, err := h.Importer.LastSyncTime(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	var lastSync *string
	if last != nil {
		s := last.UTC().Format(time.RFC3339)
		lastSync = &s
	}
	c.JSON(http.StatusOK, gin.H{
		"enabled":      h.Importer.SyncEnabled(),
		"today":        today,
		"lastSyncTime": lastSync,
	})
}
