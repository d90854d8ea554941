package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	experimentdomain "github.com/moneyradar/moneyradar/internal/experiment/domain"
)

const defaultExperimentHistoryLimit = 20

func (s *Server) CreateExperiment(c *gin.Context) {
	var req experimentdomain.CreateExperimentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	exp, err := s.experimentSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, exp)
}

func (s *Server) StartExperiment(c *gin.Context) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	exp, err := s.experimentSvc.Start(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, exp)
}

func (s *Server) RecordExperimentResult(c *gin.Context) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	var req experimentdomain.RecordResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	exp, err := s.experimentSvc.RecordResult(c.Request.Context(), id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, exp)
}

func (s *Server) AnalyzeExperiment(c *gin.Context) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	analysis, err := s.experimentSvc.Analyze(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, analysis)
}

func (s *Server) ActiveExperiments(c *gin.Context) {
	experiments, err := s.experimentSvc.Active(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"experiments": experiments})
}

func (s *Server) ExperimentHistory(c *gin.Context) {
	limit, err := parseOptionalInt(c.Query("limit"), defaultExperimentHistoryLimit)
	if err != nil || limit <= 0 {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	experiments, err := s.experimentSvc.History(c.Request.Context(), strings.TrimSpace(c.Query("metric")), limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"experiments": experiments})
}

func (s *Server) ExperimentSummary(c *gin.Context) {
	summary, err := s.experimentRpt.Summary(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (s *Server) ExperimentLearnings(c *gin.Context) {
	metric := strings.TrimSpace(c.Query("metric"))
	if metric == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	learnings, err := s.experimentRpt.Learnings(c.Request.Context(), metric)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"metric": metric, "learnings": learnings})
}
