package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/fraudgate/internal/anomaly"
	"github.com/mbd888/fraudgate/internal/decision"
	"github.com/mbd888/fraudgate/internal/realtime"
	"github.com/mbd888/fraudgate/internal/validation"
)

// transactionRequest is the POST /v1/transactions payload.
type transactionRequest struct {
	UserID    string  `json:"userId"`
	DeviceID  string  `json:"deviceId"`
	IPAddress string  `json:"ipAddress"`
	Amount    float64 `json:"amount"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
}

func (s *Server) evaluateTransaction(c *gin.Context) {
	var req transactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Request body must be valid JSON",
		})
		return
	}

	// Fall back to the connection's source address, matching how most
	// gateways forward the original client IP.
	if req.IPAddress == "" {
		req.IPAddress = c.ClientIP()
	}

	if errs := validation.Validate(
		validation.Required("userId", req.UserID),
		validation.ValidEntityID("userId", req.UserID),
		validation.Required("deviceId", req.DeviceID),
		validation.ValidEntityID("deviceId", req.DeviceID),
		validation.ValidIP("ipAddress", req.IPAddress),
		validation.PositiveAmount("amount", req.Amount),
		validation.ValidLatitude("lat", req.Lat),
		validation.ValidLongitude("lon", req.Lon),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}

	d, err := s.fuser.Evaluate(c.Request.Context(), &decision.Transaction{
		UserID:    req.UserID,
		DeviceID:  req.DeviceID,
		IPAddress: req.IPAddress,
		Amount:    req.Amount,
		Lat:       req.Lat,
		Lon:       req.Lon,
		Timestamp: time.Now(),
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "evaluation_failed",
			"message": "Could not evaluate transaction",
		})
		return
	}

	c.JSON(http.StatusOK, d)
}

func (s *Server) listDecisions(c *gin.Context) {
	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_limit",
				"message": "limit must be a positive integer",
			})
			return
		}
		if n > 500 {
			n = 500
		}
		limit = n
	}

	var (
		list []*decision.Decision
		err  error
	)
	if user := c.Query("user"); user != "" {
		list, err = s.decisions.ListByUser(c.Request.Context(), user, limit)
	} else {
		list, err = s.decisions.ListRecent(c.Request.Context(), limit)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "list_failed",
			"message": "Could not load decisions",
		})
		return
	}

	if list == nil {
		list = []*decision.Decision{}
	}
	c.JSON(http.StatusOK, gin.H{
		"decisions": list,
		"count":     len(list),
	})
}

func (s *Server) getUserProfile(c *gin.Context) {
	userID := c.Param("id")

	p, err := s.profiles.Get(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "profile_lookup_failed",
			"message": "Could not load profile",
		})
		return
	}
	if p == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "No profile for user " + userID,
		})
		return
	}

	c.JSON(http.StatusOK, p)
}

func (s *Server) getNetworkRisk(c *gin.Context) {
	userID := c.Param("user")

	risk, err := s.graph.NetworkRisk(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "traversal_failed",
			"message": "Could not compute network risk",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"userId":      userID,
		"networkRisk": risk,
	})
}

func (s *Server) getGraphStats(c *gin.Context) {
	stats := s.graph.Stats()
	c.JSON(http.StatusOK, gin.H{
		"nodes":      stats.Nodes,
		"edges":      stats.Edges,
		"fraudNodes": stats.FraudNodes,
		"realtime":   s.realtimeHub.Stats(),
	})
}

func (s *Server) markFraud(c *gin.Context) {
	nodeID := c.Param("node")
	if errs := validation.Validate(
		validation.Required("node", nodeID),
		validation.ValidEntityID("node", nodeID),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}

	s.graph.MarkFraud(nodeID)
	s.realtimeHub.BroadcastFraudMarked(nodeID)

	stats := s.graph.Stats()
	c.JSON(http.StatusOK, gin.H{
		"nodeId":     nodeID,
		"status":     "marked",
		"fraudNodes": stats.FraudNodes,
	})
}

// fitModelRequest is the POST /v1/model/fit payload: the transaction
// history the anomaly scorer should learn from.
type fitModelRequest struct {
	Samples []anomaly.Sample `json:"samples"`
}

func (s *Server) fitModel(c *gin.Context) {
	var req fitModelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Request body must be valid JSON",
		})
		return
	}

	if err := s.scorer.Fit(req.Samples); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "fit_failed",
			"message": err.Error(),
		})
		return
	}

	s.realtimeHub.Broadcast(&realtime.Event{
		Type:      realtime.EventModelFitted,
		Timestamp: time.Now(),
		Data:      map[string]interface{}{"samples": len(req.Samples)},
	})

	c.JSON(http.StatusOK, gin.H{
		"trained": true,
		"samples": len(req.Samples),
	})
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	healthy, statuses := s.healthReg.CheckAll(ctx)

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, gin.H{
		"status":    status,
		"version":   "0.1.0",
		"checks":    statuses,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "Fraudgate",
		"description": "Real-time transaction fraud decision pipeline",
		"version":     "0.1.0",
		"verdicts":    []string{"APPROVE", "REVIEW", "BLOCK"},
	})
}
