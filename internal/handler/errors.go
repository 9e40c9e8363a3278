package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/assist-service/internal/auth"
	"github.com/psds-microservice/assist-service/internal/errs"
	"github.com/psds-microservice/assist-service/internal/service"
)

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errs.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, errs.ErrUnauthenticated), errors.Is(err, errs.ErrBadCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, errs.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, errs.ErrTicketNotFound), errors.Is(err, errs.ErrDriverNotFound), errors.Is(err, errs.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrInvalidTransition), errors.Is(err, errs.ErrStatusConflict), errors.Is(err, errs.ErrEmailTaken),
		errors.Is(err, errs.ErrDriverBusy):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// writeError responds with the mapped status. Unexpected errors are logged
// and hidden behind a generic message.
func writeError(c *gin.Context, log *slog.Logger, err error, generic string) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		log.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
		c.JSON(code, gin.H{"error": generic})
		return
	}
	c.JSON(code, gin.H{"error": err.Error()})
}

// actor returns the authenticated caller. Routes using it sit behind auth.Middleware.
func actor(c *gin.Context) (service.Actor, bool) {
	claims, ok := auth.FromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return service.Actor{}, false
	}
	return service.Actor{ID: claims.UserID, Role: claims.Role}, true
}

func orDefault(log *slog.Logger) *slog.Logger {
	if log == nil {
		return slog.Default()
	}
	return log
}
