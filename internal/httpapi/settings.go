package httpapi

import (
	"net/http"

	"leadpool-crm/internal/stats"

	"github.com/gin-gonic/gin"
)

type settingRequest struct {
	Key   string `json:"key" validate:"required"`
	Value string `json:"value"`
}

type templateRequest struct {
	Template string `json:"template" validate:"required"`
}

func (h Handlers) ListSettings(c *gin.Context) {
	out, err := h.Settings.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": out})
}

func (h Handlers) PutSetting(c *gin.Context) {
	var req settingRequest
	if !bindJSON(c, &req) {
		return
	}
	s, err := h.Settings.Put(c.Request.Context(), req.Key, req.Value)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h Handlers) WhatsAppTemplate(c *gin.Context) {
	tmpl, err := h.Settings.WhatsAppTemplate(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"template": tmpl})
}

func (h Handlers) PutWhatsAppTemplate(c *gin.Context) {
	var req templateRequest
	if !bindJSON(c, &req) {
		return
	}
	s, err := h.Settings.SetWhatsAppTemplate(c.Request.Context(), req.Template)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"template": s.Value, "updated_at": s.UpdatedAt})
}

// --- Dashboards ---

func (h Handlers) MyStats(c *gin.Context) {
	out, err := h.Stats.Team(c.Request.Context(), actor(c).ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) AdminStats(c *gin.Context) {
	out, err := h.Stats.Admin(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// ActivityStats summarizes the activity log over ?from&to (default: today).
func (h Handlers) ActivityStats(c *gin.Context) {
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
	r := stats.TimeRange{From: from, To: to}
	if from.IsZero() && to.IsZero() {
		r = stats.Day(timeNow())
	}
	out, err := h.Stats.Activity(c.Request.Context(), stats.ActivitySummaryRequest{
		UserID: c.Query("user_id"),
		Range:  r,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}
