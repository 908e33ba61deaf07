// Package api exposes the dispatch core over HTTP using gin, plus the
// realtime WebSocket endpoint. Identity arrives pre-authenticated as
// X-User-ID / X-User-Role headers from the fronting gateway.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	dispatch "github.com/alanoney1-alt/UpTend-sub013"
	"github.com/alanoney1-alt/UpTend-sub013/emergency"
	"github.com/alanoney1-alt/UpTend-sub013/engine"
	"github.com/alanoney1-alt/UpTend-sub013/hub"
	"github.com/alanoney1-alt/UpTend-sub013/id"
	"github.com/alanoney1-alt/UpTend-sub013/pro"
)

// Roles injected by the auth gateway.
const (
	RoleCustomer = "customer"
	RolePro      = "pro"
	RoleAdmin    = "admin"
)

const (
	headerUserID = "X-User-ID"
	headerRole   = "X-User-Role"

	ctxUserID = "userID"
	ctxRole   = "role"
)

// API wires all HTTP handlers together for the dispatch system.
type API struct {
	eng    *engine.Engine
	emrg   *emergency.Dispatcher
	hub    *hub.Hub
	pros   pro.Store
	logger *slog.Logger
}

// New creates an API.
func New(eng *engine.Engine, emrg *emergency.Dispatcher, h *hub.Hub, pros pro.Store, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{eng: eng, emrg: emrg, hub: h, pros: pros, logger: logger}
}

// Router returns the fully assembled gin engine with all routes.
func (a *API) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(a.requestLogger())

	r.GET("/healthz", a.healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws", a.serveWS)

	api := r.Group("/api")
	api.Use(a.identity())

	api.POST("/jobs", a.createJob)
	api.GET("/jobs/:id", a.getJob)
	api.POST("/jobs/:id/accept", a.acceptJob)
	api.POST("/jobs/:id/en-route", a.markEnRoute)
	api.POST("/jobs/:id/check-in", a.checkIn)
	api.POST("/jobs/:id/delay-reason", a.delayReason)
	api.GET("/jobs/:id/no-show-status", a.noShowStatus)
	api.POST("/jobs/:id/start-no-show-timer", a.startNoShowTimer)
	api.POST("/jobs/:id/resolve", a.resolveJob)
	api.POST("/jobs/:id/cancel", a.cancelJob)

	api.POST("/emergency/request", a.emergencyRequest)
	api.POST("/emergency/:id/accept", a.emergencyAccept)
	api.GET("/emergency/status/:id", a.emergencyStatus)
	api.POST("/emergency/disaster-mode", a.disasterMode)

	return r
}

func (a *API) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// identity lifts the gateway-injected identity headers into the
// request context. Requests with no identity are rejected before any
// handler runs.
func (a *API) identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(headerUserID)
		if raw == "" {
			writeError(c, dispatch.ErrUnauthorized)
			c.Abort()
			return
		}
		userID, err := id.Parse(raw)
		if err != nil {
			writeError(c, dispatch.ErrUnauthorized)
			c.Abort()
			return
		}
		c.Set(ctxUserID, userID)
		c.Set(ctxRole, c.GetHeader(headerRole))
		c.Next()
	}
}

func (a *API) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		a.logger.Info("http request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("duration", time.Since(start)),
		)
	}
}

func callerID(c *gin.Context) id.ID {
	v, _ := c.Get(ctxUserID)
	userID, _ := v.(id.ID)
	return userID
}

func callerRole(c *gin.Context) string {
	v, _ := c.Get(ctxRole)
	role, _ := v.(string)
	return role
}

// pathID parses the :id route parameter, writing a 400 on failure.
func pathID(c *gin.Context) (id.ID, bool) {
	parsed, err := id.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return id.Nil, false
	}
	return parsed, true
}
