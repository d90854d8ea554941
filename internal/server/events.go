package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/moneyradar/moneyradar/internal/ingestion"
)

// IngestEvent accepts one normalized billing event from an upstream
// connector. Replays of an already-seen source_event_id return 200 with
// duplicate set instead of erroring.
func (s *Server) IngestEvent(c *gin.Context) {
	var evt ingestion.NormalizedEvent
	if err := c.ShouldBindJSON(&evt); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	result, err := s.processor.Process(c.Request.Context(), evt)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	c.JSON(status, result)
}
