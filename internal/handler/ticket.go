package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/assist-service/internal/model"
	"github.com/psds-microservice/assist-service/internal/service"
	"github.com/psds-microservice/assist-service/internal/store"
)

type TicketHandler struct {
	svc service.TicketServicer
	log *slog.Logger
}

func NewTicketHandler(svc service.TicketServicer, log *slog.Logger) *TicketHandler {
	return &TicketHandler{svc: svc, log: orDefault(log).With("component", "ticket_handler")}
}

type createTicketRequest struct {
	Solicitante     *model.Requester `json:"solicitante"`
	Location        string           `json:"location"`
	Hub             string           `json:"hub"`
	VehicleType     string           `json:"vehicleType"`
	IsBulky         bool             `json:"isBulky"`
	RouteID         string           `json:"routeId"`
	Urgency         model.Urgency    `json:"urgency"`
	PackageCount    *int             `json:"packageCount"`
	DeliveryRegions []string         `json:"deliveryRegions"`
	Prompt          string           `json:"prompt"`
}

func (h *TicketHandler) Create(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req createTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	t, err := h.svc.Create(c.Request.Context(), a, service.CreateTicketInput{
		Requester:       req.Solicitante,
		Location:        req.Location,
		Hub:             req.Hub,
		VehicleType:     req.VehicleType,
		RouteID:         req.RouteID,
		Urgency:         req.Urgency,
		PackageCount:    req.PackageCount,
		DeliveryRegions: req.DeliveryRegions,
		IsBulky:         req.IsBulky,
		Prompt:          req.Prompt,
	})
	if err != nil {
		writeError(c, h.log, err, "failed to create ticket")
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (h *TicketHandler) Get(c *gin.Context) {
	t, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.log, err, "failed to get ticket")
		return
	}
	c.JSON(http.StatusOK, t)
}

// List accepts ?status= repeated or comma separated, ?assignedTo= and ?requesterId=.
func (h *TicketHandler) List(c *gin.Context) {
	var filter store.TicketFilter
	for _, v := range c.QueryArray("status") {
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				filter.Statuses = append(filter.Statuses, model.TicketStatus(strings.ToUpper(s)))
			}
		}
	}
	filter.AssignedTo = c.Query("assignedTo")
	filter.RequesterID = c.Query("requesterId")

	items, err := h.svc.List(c.Request.Context(), filter)
	if err != nil {
		writeError(c, h.log, err, "failed to list tickets")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"tickets": items,
		"total":   len(items),
	})
}

type assignRequest struct {
	DriverID string `json:"driverId"`
}

func (h *TicketHandler) Assign(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req assignRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
			return
		}
	}
	t, err := h.svc.Assign(c.Request.Context(), a, c.Param("id"), req.DriverID)
	if err != nil {
		writeError(c, h.log, err, "failed to assign ticket")
		return
	}
	c.JSON(http.StatusOK, t)
}

type transitionFunc func(ctx context.Context, actor service.Actor, id string) (*model.Ticket, error)

// transition adapts a single-ticket lifecycle operation to a handler.
func (h *TicketHandler) transition(op transitionFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		a, ok := actor(c)
		if !ok {
			return
		}
		t, err := op(c.Request.Context(), a, c.Param("id"))
		if err != nil {
			writeError(c, h.log, err, "failed to update ticket")
			return
		}
		c.JSON(http.StatusOK, t)
	}
}

func (h *TicketHandler) Submit() gin.HandlerFunc   { return h.transition(h.svc.SubmitForApproval) }
func (h *TicketHandler) Approve() gin.HandlerFunc  { return h.transition(h.svc.Approve) }
func (h *TicketHandler) Reject() gin.HandlerFunc   { return h.transition(h.svc.Reject) }
func (h *TicketHandler) Conclude() gin.HandlerFunc { return h.transition(h.svc.Conclude) }
func (h *TicketHandler) MoveBack() gin.HandlerFunc { return h.transition(h.svc.MoveBack) }
func (h *TicketHandler) Archive() gin.HandlerFunc  { return h.transition(h.svc.Archive) }
func (h *TicketHandler) Cancel() gin.HandlerFunc   { return h.transition(h.svc.Cancel) }
func (h *TicketHandler) Restore() gin.HandlerFunc  { return h.transition(h.svc.Restore) }
func (h *TicketHandler) SoftDelete() gin.HandlerFunc {
	return h.transition(h.svc.SoftDelete)
}

func (h *TicketHandler) DeletePermanent(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), a, c.Param("id")); err != nil {
		writeError(c, h.log, err, "failed to delete ticket")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *TicketHandler) Purge(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	ids, err := h.svc.PurgeExcluded(c.Request.Context(), a)
	if err != nil {
		writeError(c, h.log, err, "failed to purge tickets")
		return
	}
	if ids == nil {
		ids = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"deleted": ids, "count": len(ids)})
}
