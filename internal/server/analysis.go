package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	scoredomain "github.com/moneyradar/moneyradar/internal/score/domain"
)

// ScanMismatch runs the usage/plan mismatch pass over every active
// subscription. The report lists all current candidates; alert creation
// behind it is deduplicated.
func (s *Server) ScanMismatch(c *gin.Context) {
	report, err := s.mismatch.AnalyzeAll(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if s.obsMetrics != nil {
		s.obsMetrics.ScanRun("mismatch")
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) PlanMispricing(c *gin.Context) {
	findings, err := s.mismatch.DetectPlanMispricing(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"mispriced_plans": findings})
}

func (s *Server) ScanRisks(c *gin.Context) {
	report, err := s.risk.ScanAllRisks(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if s.obsMetrics != nil {
		s.obsMetrics.ScanRun("risk")
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) ScoreCustomer(c *gin.Context) {
	customerID := strings.TrimSpace(c.Param("customer_id"))
	if customerID == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	score, err := s.scorer.ScoreCustomer(c.Request.Context(), customerID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, score)
}

func (s *Server) GetCustomerScore(c *gin.Context) {
	customerID := strings.TrimSpace(c.Param("customer_id"))
	if customerID == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	score, err := s.scorer.GetScore(c.Request.Context(), customerID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, score)
}

func (s *Server) ListScores(c *gin.Context) {
	category := scoredomain.ExpansionCategory(strings.TrimSpace(c.Query("category")))
	switch category {
	case scoredomain.CategorySafeToUpsell,
		scoredomain.CategoryNeutral,
		scoredomain.CategoryDoNotTouch,
		scoredomain.CategoryLikelyToChurn:
	default:
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	scores, err := s.scorer.ListByCategory(c.Request.Context(), category)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"scores": scores})
}
