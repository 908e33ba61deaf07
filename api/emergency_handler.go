package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	dispatch "github.com/alanoney1-alt/UpTend-sub013"
	"github.com/alanoney1-alt/UpTend-sub013/emergency"
	"github.com/alanoney1-alt/UpTend-sub013/geo"
	"github.com/alanoney1-alt/UpTend-sub013/pro"
)

type emergencyRequestBody struct {
	EmergencyType string   `json:"emergencyType" binding:"required"`
	Severity      string   `json:"severity"`
	Description   string   `json:"description"`
	Address       string   `json:"address" binding:"required"`
	Lat           float64  `json:"lat"`
	Lng           float64  `json:"lng"`
	Phone         string   `json:"phone"`
	Email         string   `json:"email"`
	Region        string   `json:"region"`
	PhotoURLs     []string `json:"photoUrls"`
}

func (a *API) emergencyRequest(c *gin.Context) {
	var req emergencyRequestBody
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := a.emrg.Dispatch(c.Request.Context(), emergency.Request{
		CustomerID:    callerID(c),
		EmergencyType: req.EmergencyType,
		Severity:      emergency.Severity(req.Severity),
		Description:   req.Description,
		Address:       req.Address,
		Origin:        geo.Point{Lat: req.Lat, Lng: req.Lng},
		Phone:         req.Phone,
		Email:         req.Email,
		Region:        req.Region,
		PhotoURLs:     req.PhotoURLs,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	body := gin.H{
		"dispatch":    res.Job,
		"slaDeadline": res.Job.SLADeadline,
	}
	if res.AssignedPro != nil {
		body["autoAssignedPro"] = proProfile(res.AssignedPro)
	}
	c.JSON(http.StatusCreated, body)
}

func (a *API) emergencyAccept(c *gin.Context) {
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

func (a *API) emergencyStatus(c *gin.Context) {
	jobID, ok := pathID(c)
	if !ok {
		return
	}
	j, err := a.eng.GetJob(c.Request.Context(), jobID)
	if err != nil {
		writeError(c, err)
		return
	}

	body := gin.H{"dispatch": j}
	if !j.AssignedProID.IsZero() {
		if p, proErr := a.pros.GetPro(c.Request.Context(), j.AssignedProID); proErr == nil {
			body["assignedPro"] = proProfile(p)
		}
	}
	c.JSON(http.StatusOK, body)
}

type disasterModeRequest struct {
	Region    string `json:"region" binding:"required"`
	StormName string `json:"stormName"`
}

func (a *API) disasterMode(c *gin.Context) {
	if callerRole(c) != RoleAdmin {
		writeError(c, dispatch.ErrUnauthorized)
		return
	}
	var req disasterModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	notified, err := a.emrg.ActivateDisasterMode(c.Request.Context(), req.Region, req.StormName)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"region": req.Region, "prosNotified": notified})
}

// proProfile is the pro's public-facing subset: never the raw record.
func proProfile(p *pro.Availability) gin.H {
	return gin.H{
		"proId":  p.ProID,
		"rating": p.Rating,
		"skills": p.Skills,
		"region": p.Region,
	}
}
