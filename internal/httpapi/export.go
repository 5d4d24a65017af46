package httpapi

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"time"

	"leadpool-crm/internal/leads"
	"leadpool-crm/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
)

const exportSheet = "Leads"

var exportHeader = []string{
	"ID", "Name", "Email", "Phone", "City", "Status", "Assigned To", "Source",
	"Interest", "Ad Campaign", "Notes", "Next Follow Up", "Last Contacted", "Created At",
}

func exportRow(l leads.Lead) []string {
	return []string{
		l.ID, l.Name, l.Email, l.Phone, l.City, string(l.Status), l.AssignedTo, l.Source,
		l.Interest, l.AdCampaign, l.Notes, formatTime(l.NextFollowUp), formatTime(l.LastContactedAt),
		l.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// ExportLeads streams every lead as xlsx (default) or csv (?format=csv).
func (h Handlers) ExportLeads(c *gin.Context) {
	format := c.DefaultQuery("format", "xlsx")
	if format != "xlsx" && format != "csv" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "format must be xlsx or csv"})
		return
	}
	all, err := h.Leads.List(c.Request.Context(), leads.Filter{})
	if err != nil {
		writeError(c, err)
		return
	}
	name := fmt.Sprintf("leads-%s.%s", time.Now().UTC().Format("20060102-150405"), format)
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))

	if format == "csv" {
		c.Header("Content-Type", "text/csv; charset=utf-8")
		c.Status(http.StatusOK)
		w := csv.NewWriter(c.Writer)
		_ = w.Write(exportHeader)
		for _, l := range all {
			_ = w.Write(exportRow(l))
		}
		w.Flush()
		if err := w.Error(); err != nil {
			logger.From(c.Request.Context()).Error("csv export write failed", "err", err)
		}
		return
	}

	f, err := buildWorkbook(all)
	if err != nil {
		writeError(c, err)
		return
	}
	defer f.Close()
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Status(http.StatusOK)
	if err := f.Write(c.Writer); err != nil {
		logger.From(c.Request.Context()).Error("xlsx export write failed", "err", err)
	}
}

func buildWorkbook(all []leads.Lead) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), exportSheet); err != nil {
		f.Close()
		return nil, err
	}
	sw, err := f.NewStreamWriter(exportSheet)
	if err != nil {
		f.Close()
		return nil, err
	}
	if err := sw.SetRow("A1", toCells(exportHeader)); err != nil {
		f.Close()
		return nil, err
	}
	for i, l := range all {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			f.Close()
			return nil, err
		}
		if err := sw.SetRow(cell, toCells(exportRow(l))); err != nil {
			f.Close()
			return nil, err
		}
	}
	if err := sw.Flush(); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

func toCells(row []string) []interface{} {
	out := make([]interface{}, len(row))
	for i, v := range row {
		out[i] = v
	}
	return out
}
