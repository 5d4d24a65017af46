package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"leadpool-crm/internal/activity"
	"leadpool-crm/internal/leads"
	"leadpool-crm/internal/outreach"

	"github.com/gin-gonic/gin"
)

const (
	defaultPageSize = 100
	maxPageSize     = 500
)

func pageSize(c *gin.Context) int {
	n := queryInt(c, "limit", defaultPageSize)
	if n == 0 || n > maxPageSize {
		return maxPageSize
	}
	return n
}

// --- Pool protocol (team + admin) ---

func (h Handlers) Pool(c *gin.Context) {
	out, err := h.Leads.Pool(c.Request.Context(), pageSize(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"leads": out})
}

func (h Handlers) AcceptLead(c *gin.Context) {
	l, err := h.Leads.AcceptLead(c.Request.Context(), actor(c).ID, c.Param("id"))
	switch {
	case err == nil:
		h.Metrics.ObserveAccept("accepted")
	case errors.Is(err, leads.ErrAlreadyAssigned):
		h.Metrics.ObserveAccept("conflict")
	default:
		h.Metrics.ObserveAccept("error")
	}
	if err != nil {
		if errors.Is(err, leads.ErrAlreadyAssigned) {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "lead already taken by another agent"})
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, l)
}

func (h Handlers) ReleaseLead(c *gin.Context) {
	l, err := h.Leads.ReleaseLead(c.Request.Context(), actor(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, l)
}

func (h Handlers) MyLeads(c *gin.Context) {
	out, err := h.Leads.AssignedTo(c.Request.Context(), actor(c).ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"leads": out})
}

func (h Handlers) MyFollowUps(c *gin.Context) {
	out, err := h.Leads.UrgentFollowUps(c.Request.Context(), actor(c).ID, queryInt(c, "limit", 0))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"leads": out})
}

// --- Lifecycle ---

type statusRequest struct {
	Status leads.Status `json:"status" validate:"required,oneof=new contacted qualified converted lost"`
}

type followUpRequest struct {
	When  time.Time `json:"when"`
	Notes string    `json:"notes"`
}

type activityRequest struct {
	Type    activity.Type `json:"type" validate:"required,oneof=call whatsapp note"`
	Details string        `json:"details"`
}

func (h Handlers) UpdateStatus(c *gin.Context) {
	var req statusRequest
	if !bindJSON(c, &req) {
		return
	}
	l, err := h.Leads.UpdateStatus(c.Request.Context(), actor(c), c.Param("id"), req.Status)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, l)
}

func (h Handlers) ScheduleFollowUp(c *gin.Context) {
	var req followUpRequest
	if !bindJSON(c, &req) {
		return
	}
	l, err := h.Leads.ScheduleFollowUp(c.Request.Context(), actor(c), c.Param("id"), req.When, req.Notes)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, l)
}

// workable loads the lead and checks the caller may act on it.
func (h Handlers) workable(c *gin.Context) (leads.Lead, bool) {
	a := actor(c)
	l, err := h.Leads.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return leads.Lead{}, false
	}
	if !a.Admin && l.AssignedTo != a.ID {
		writeError(c, leads.ErrNotOwner)
		return leads.Lead{}, false
	}
	return l, true
}

func (h Handlers) AddActivity(c *gin.Context) {
	var req activityRequest
	if !bindJSON(c, &req) {
		return
	}
	l, ok := h.workable(c)
	if !ok {
		return
	}
	a, err := h.Activity.Record(c.Request.Context(), actor(c).ID, l.ID, req.Type, strings.TrimSpace(req.Details))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

func (h Handlers) LeadActivities(c *gin.Context) {
	l, ok := h.workable(c)
	if !ok {
		return
	}
	out, err := h.Activity.ForLead(c.Request.Context(), l.ID, queryInt(c, "limit", 50))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"activities": out})
}

func (h Handlers) WhatsAppLink(c *gin.Context) { h.openLink(c, outreach.ChannelWhatsApp) }

func (h Handlers) CallLink(c *gin.Context) { h.openLink(c, outreach.ChannelCall) }

func (h Handlers) openLink(c *gin.Context, ch outreach.Channel) {
	link, err := h.Outreach.Open(c.Request.Context(), actor(c), c.Param("id"), ch)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, link)
}

// --- Admin CRUD ---

func (h Handlers) ListLeads(c *gin.Context) {
	f := leads.Filter{
		AssignedTo: strings.TrimSpace(c.Query("assigned_to")),
		Search:     c.Query("search"),
		Limit:      pageSize(c),
		Offset:     queryInt(c, "offset", 0),
	}
	if st := strings.TrimSpace(c.Query("status")); st != "" {
		s := leads.Status(st)
		if !s.Valid() {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
			return
		}
		f.Statuses = []leads.Status{s}
	}
	switch c.Query("pool") {
	case "true":
		f.Unassigned = true
	case "false":
		f.AssignedOnly = true
	}
	out, err := h.Leads.List(c.Request.Context(), f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"leads": out})
}

func (h Handlers) CreateLead(c *gin.Context) {
	var req leads.CreateInput
	if !bindJSON(c, &req) {
		return
	}
	l, err := h.Leads.Create(c.Request.Context(), actor(c), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, l)
}

func (h Handlers) QuickAddLead(c *gin.Context) {
	var req leads.QuickAddInput
	if !bindJSON(c, &req) {
		return
	}
	l, err := h.Leads.QuickAdd(c.Request.Context(), actor(c), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, l)
}

func (h Handlers) GetLead(c *gin.Context) {
	l, err := h.Leads.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, l)
}

func (h Handlers) UpdateLead(c *gin.Context) {
	var req leads.UpdateInput
	if !bindJSON(c, &req) {
		return
	}
	l, err := h.Leads.Update(c.Request.Context(), actor(c), c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, l)
}

func (h Handlers) DeleteLead(c *gin.Context) {
	if err := h.Leads.Delete(c.Request.Context(), actor(c), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h Handlers) UnassignAll(c *gin.Context) {
	res, err := h.Leads.UnassignAll(c.Request.Context(), actor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
