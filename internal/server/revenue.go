package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const defaultSnapshotLookbackDays = 30

func (s *Server) RevenueOverview(c *gin.Context) {
	overview, err := s.revenueSvc.Overview(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, overview)
}

func (s *Server) ListSnapshots(c *gin.Context) {
	days, err := parseOptionalInt(c.Query("days"), defaultSnapshotLookbackDays)
	if err != nil || days <= 0 {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	limit, err := parseOptionalInt(c.Query("limit"), days)
	if err != nil || limit <= 0 {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	since := s.clk.Now().AddDate(0, 0, -days)
	snapshots, err := s.revenueSvc.RecentSnapshots(c.Request.Context(), since, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"snapshots": snapshots})
}

// CalculateSnapshot computes the snapshot for the requested date, defaulting
// to today. Recomputing an existing date returns the stored row unchanged.
func (s *Server) CalculateSnapshot(c *gin.Context) {
	date, err := parseOptionalTime(c.Query("date"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	var at time.Time
	if date != nil {
		at = *date
	} else {
		at = s.clk.Now()
	}

	snapshot, err := s.revenueSvc.CalculateDailySnapshot(c.Request.Context(), at)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if s.obsMetrics != nil {
		s.obsMetrics.SnapshotComputed()
	}
	c.JSON(http.StatusOK, snapshot)
}
