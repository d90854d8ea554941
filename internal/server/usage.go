package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	usagedomain "github.com/moneyradar/moneyradar/internal/usage/domain"
	"go.uber.org/zap"
)

// allowIngest consults the redis token bucket for the customer. A redis
// outage fails open rather than blocking ingestion.
func (s *Server) allowIngest(c *gin.Context, customerID string) bool {
	if s.usageLimiter == nil || !s.usageLimiter.Enabled() {
		return true
	}

	allowed, err := s.usageLimiter.AllowCustomer(c.Request.Context(), customerID)
	if err != nil {
		s.log.Warn("usage ingest rate limit check failed", zap.Error(err))
		return true
	}
	if !allowed {
		AbortWithError(c, ErrRateLimited)
		return false
	}
	return true
}

func (s *Server) RecordUsage(c *gin.Context) {
	var req usagedomain.RecordUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if !s.allowIngest(c, req.CustomerID) {
		return
	}

	record, err := s.usageSvc.Record(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if s.obsMetrics != nil {
		s.obsMetrics.UsageIngested()
	}
	c.JSON(http.StatusCreated, record)
}

func (s *Server) BulkImportUsage(c *gin.Context) {
	var req struct {
		Items []usagedomain.RecordUsageRequest `json:"items"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	if len(req.Items) == 0 {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	result, err := s.usageSvc.BulkImport(c.Request.Context(), req.Items)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
