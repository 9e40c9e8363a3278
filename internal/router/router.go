package router

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/assist-service/api"
	"github.com/psds-microservice/assist-service/internal/auth"
	"github.com/psds-microservice/assist-service/internal/handler"
	"github.com/psds-microservice/assist-service/internal/model"
	"github.com/psds-microservice/assist-service/internal/ratelimit"
	"github.com/psds-microservice/helpy/paths"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

type Handlers struct {
	Health  *handler.HealthHandler
	Auth    *handler.AuthHandler
	Tickets *handler.TicketHandler
	Drivers *handler.DriverHandler
	Chat    *handler.ChatHandler
	Feed    *handler.FeedHandler
}

type Deps struct {
	Handlers    Handlers
	Tokens      auth.TokenParser
	ChatLimiter *ratelimit.Limiter
	Log         *slog.Logger
}

func New(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	h := d.Handlers

	r := gin.New()
	r.Use(gin.Recovery(), RequestID(), Logger(log))
	r.GET(paths.PathHealth, h.Health.Health)
	r.GET(paths.PathReady, h.Health.Ready)
	r.GET(paths.PathSwagger, func(c *gin.Context) { c.Redirect(http.StatusFound, paths.PathSwagger+"/") })
	r.GET(paths.PathSwagger+"/*any", func(c *gin.Context) {
		if strings.TrimPrefix(c.Param("any"), "/") == "openapi.json" {
			c.Data(http.StatusOK, "application/json", api.OpenAPISpec)
			return
		}
		if strings.TrimPrefix(c.Param("any"), "/") == "" {
			c.Request.URL.Path = paths.PathSwagger + "/index.html"
			c.Request.RequestURI = paths.PathSwagger + "/index.html"
		}
		ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL(paths.PathSwagger+"/openapi.json"))(c)
	})

	public := r.Group("/auth")
	{
		public.POST("/register", h.Auth.Register)
		public.POST("/login", h.Auth.Login)
	}

	authed := r.Group("", auth.Middleware(d.Tokens))
	admin := auth.RequireRole(model.RoleAdmin)
	{
		authed.POST("/tickets", h.Tickets.Create)
		authed.GET("/tickets", h.Tickets.List)
		authed.POST("/tickets/purge", admin, h.Tickets.Purge)
		authed.GET("/tickets/:id", h.Tickets.Get)
		authed.POST("/tickets/:id/assign", h.Tickets.Assign)
		authed.POST("/tickets/:id/submit", h.Tickets.Submit())
		authed.POST("/tickets/:id/approve", admin, h.Tickets.Approve())
		authed.POST("/tickets/:id/reject", admin, h.Tickets.Reject())
		authed.POST("/tickets/:id/conclude", admin, h.Tickets.Conclude())
		authed.POST("/tickets/:id/move-back", admin, h.Tickets.MoveBack())
		authed.POST("/tickets/:id/archive", admin, h.Tickets.Archive())
		authed.POST("/tickets/:id/cancel", h.Tickets.Cancel())
		authed.POST("/tickets/:id/restore", admin, h.Tickets.Restore())
		authed.DELETE("/tickets/:id", admin, h.Tickets.SoftDelete())
		authed.DELETE("/tickets/:id/permanent", admin, h.Tickets.DeletePermanent)

		authed.GET("/drivers", h.Drivers.List)
		authed.GET("/drivers/:id", h.Drivers.Get)
		authed.PATCH("/drivers/:id", h.Drivers.Update)
		authed.PUT("/drivers/:id/status", h.Drivers.SetStatus)
		authed.DELETE("/drivers/:id", admin, h.Drivers.Delete)

		authed.POST("/api/chat", d.ChatLimiter.Middleware(userKey), h.Chat.Chat)

		authed.GET("/ws/tickets", h.Feed.Tickets)
		authed.GET("/ws/drivers", h.Feed.Drivers)
	}

	return r
}

func userKey(c *gin.Context) string {
	if claims, ok := auth.FromContext(c); ok {
		return claims.UserID
	}
	return c.ClientIP()
}
