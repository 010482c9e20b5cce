package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vetpms/backend/internal/domain/shared"
	"github.com/vetpms/backend/internal/infrastructure/logger"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// OK sends a 200 response with the payload as-is
func (h *BaseHandler) OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}

// Error maps a domain error to its HTTP status and answers with the
// `{"error": "..."}` body. Internal causes are logged, never leaked.
func (h *BaseHandler) Error(c *gin.Context, err error) {
	log := logger.FromGinContext(c)

	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		switch domainErr.Code {
		case shared.ErrValidation.Code:
			c.JSON(http.StatusBadRequest, gin.H{"error": domainErr.Message})
			return
		case shared.ErrNotFound.Code:
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		case shared.ErrInvalidState.Code:
			c.JSON(http.StatusBadRequest, gin.H{"error": domainErr.Message})
			return
		case shared.ErrPersistenceUnavailable.Code:
			log.Error("store unavailable", zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": "store unavailable"})
			return
		case shared.ErrMalformedRecord.Code:
			log.Error("malformed stored record", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			return
		}
	}

	log.Error("unhandled error", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}

// BadRequest answers 400 with the given message
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": message})
}
