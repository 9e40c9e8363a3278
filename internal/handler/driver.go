package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/assist-service/internal/model"
	"github.com/psds-microservice/assist-service/internal/service"
	"github.com/psds-microservice/assist-service/internal/store"
)

type DriverHandler struct {
	svc service.DriverServicer
	log *slog.Logger
}

func NewDriverHandler(svc service.DriverServicer, log *slog.Logger) *DriverHandler {
	return &DriverHandler{svc: svc, log: orDefault(log).With("component", "driver_handler")}
}

func (h *DriverHandler) List(c *gin.Context) {
	items, err := h.svc.List(c.Request.Context())
	if err != nil {
		writeError(c, h.log, err, "failed to list drivers")
		return
	}
	c.JSON(http.StatusOK, gin.H{"drivers": items, "total": len(items)})
}

func (h *DriverHandler) Get(c *gin.Context) {
	d, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.log, err, "failed to get driver")
		return
	}
	c.JSON(http.StatusOK, d)
}

type updateDriverRequest struct {
	Name        *string `json:"name,omitempty"`
	Phone       *string `json:"phone,omitempty"`
	Hub         *string `json:"hub,omitempty"`
	VehicleType *string `json:"vehicleType,omitempty"`
	Avatar      *string `json:"avatar,omitempty"`
}

func (h *DriverHandler) Update(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req updateDriverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	d, err := h.svc.UpdateProfile(c.Request.Context(), a, c.Param("id"), store.DriverProfile{
		Name:        req.Name,
		Phone:       req.Phone,
		Hub:         req.Hub,
		VehicleType: req.VehicleType,
		Avatar:      req.Avatar,
	})
	if err != nil {
		writeError(c, h.log, err, "failed to update driver")
		return
	}
	c.JSON(http.StatusOK, d)
}

type driverStatusRequest struct {
	Status model.DriverStatus `json:"status" binding:"required"`
}

func (h *DriverHandler) SetStatus(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req driverStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status is required"})
		return
	}
	d, err := h.svc.SetStatus(c.Request.Context(), a, c.Param("id"), req.Status)
	if err != nil {
		writeError(c, h.log, err, "failed to change driver status")
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *DriverHandler) Delete(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), a, c.Param("id")); err != nil {
		writeError(c, h.log, err, "failed to delete driver")
		return
	}
	c.Status(http.StatusNoContent)
}
