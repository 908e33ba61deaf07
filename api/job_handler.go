package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	dispatch "github.com/alanoney1-alt/UpTend-sub013"
	"github.com/alanoney1-alt/UpTend-sub013/engine"
	"github.com/alanoney1-alt/UpTend-sub013/geo"
)

type createJobRequest struct {
	ServiceType   string     `json:"serviceType" binding:"required"`
	Description   string     `json:"description"`
	Address       string     `json:"address"`
	Lat           float64    `json:"lat"`
	Lng           float64    `json:"lng"`
	Phone         string     `json:"phone"`
	Email         string     `json:"email"`
	ScheduledFor  *time.Time `json:"scheduledFor"`
	PriceEstimate float64    `json:"priceEstimate"`
}

func (a *API) createJob(c *gin.Context) {
	var req createJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	j, err := a.eng.CreateJob(c.Request.Context(), engine.CreateRequest{
		CustomerID:    callerID(c),
		ServiceType:   req.ServiceType,
		Description:   req.Description,
		Address:       req.Address,
		Lat:           req.Lat,
		Lng:           req.Lng,
		Phone:         req.Phone,
		Email:         req.Email,
		ScheduledFor:  req.ScheduledFor,
		PriceEstimate: req.PriceEstimate,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, j)
}

func (a *API) getJob(c *gin.Context) {
	jobID, ok := pathID(c)
	if !ok {
		return
	}
	j, err := a.eng.GetJob(c.Request.Context(), jobID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, j)
}

type acceptRequest struct {
	ETAMinutes int `json:"etaMinutes"`
}

func (a *API) acceptJob(c *gin.Context) {
	if callerRole(c) != RolePro {
		writeError(c, dispatch.ErrUnauthorized)
		return
	}
	jobID, ok := pathID(c)
	if !ok {
		return
	}
	var req acceptRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	j, err := a.eng.Accept(c.Request.Context(), jobID, callerID(c), req.ETAMinutes)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, j)
}

func (a *API) markEnRoute(c *gin.Context) {
	jobID, ok := pathID(c)
	if !ok {
		return
	}
	j, err := a.eng.MarkEnRoute(c.Request.Context(), jobID, callerID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, j)
}

type checkInRequest struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (a *API) checkIn(c *gin.Context) {
	jobID, ok := pathID(c)
	if !ok {
		return
	}
	var req checkInRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	j, err := a.eng.CheckIn(c.Request.Context(), jobID, callerID(c),
		geo.Point{Lat: req.Lat, Lng: req.Lng})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, j)
}

type delayReasonRequest struct {
	Reason string `json:"reason" binding:"required"`
}

func (a *API) delayReason(c *gin.Context) {
	jobID, ok := pathID(c)
	if !ok {
		return
	}
	var req delayReasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := a.eng.RecordDelay(c.Request.Context(), jobID, callerID(c), req.Reason); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "delay recorded"})
}

func (a *API) noShowStatus(c *gin.Context) {
	jobID, ok := pathID(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, a.eng.NoShowStatus(jobID))
}

func (a *API) startNoShowTimer(c *gin.Context) {
	if callerRole(c) != RoleAdmin {
		writeError(c, dispatch.ErrUnauthorized)
		return
	}
	jobID, ok := pathID(c)
	if !ok {
		return
	}
	if err := a.eng.StartNoShowTimer(c.Request.Context(), jobID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "timer armed"})
}

func (a *API) resolveJob(c *gin.Context) {
	jobID, ok := pathID(c)
	if !ok {
		return
	}
	j, err := a.eng.Resolve(c.Request.Context(), jobID, callerID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, j)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (a *API) cancelJob(c *gin.Context) {
	jobID, ok := pathID(c)
	if !ok {
		return
	}
	var req cancelRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	j, err := a.eng.Cancel(c.Request.Context(), jobID, req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, j)
}
