package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/assist-service/internal/service"
)

type Authenticator interface {
	Register(ctx context.Context, in service.RegisterInput) (*service.Session, error)
	Login(ctx context.Context, email, password string) (*service.Session, error)
}

type AuthHandler struct {
	svc Authenticator
	log *slog.Logger
}

func NewAuthHandler(svc Authenticator, log *slog.Logger) *AuthHandler {
	return &AuthHandler{svc: svc, log: orDefault(log).With("component", "auth_handler")}
}

type registerRequest struct {
	Name        string `json:"name" binding:"required"`
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=8,max=72"`
	Phone       string `json:"phone"`
	Hub         string `json:"hub"`
	VehicleType string `json:"vehicleType"`
	Avatar      string `json:"avatar"`
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name, a valid email and a password of 8 to 72 characters are required"})
		return
	}
	sess, err := h.svc.Register(c.Request.Context(), service.RegisterInput{
		Name:        req.Name,
		Email:       req.Email,
		Password:    req.Password,
		Phone:       req.Phone,
		Hub:         req.Hub,
		VehicleType: req.VehicleType,
		Avatar:      req.Avatar,
	})
	if err != nil {
		writeError(c, h.log, err, "failed to register")
		return
	}
	c.JSON(http.StatusCreated, sess)
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
		return
	}
	sess, err := h.svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, h.log, err, "failed to log in")
		return
	}
	c.JSON(http.StatusOK, sess)
}
