package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/resulthound/resulthound/models"
)

// asHarvestError normalizes any error into a HarvestError. The fetcher
// returns wrapper types around HarvestError, so this must unwrap, not
// type-assert.
func asHarvestError(err error) *models.HarvestError {
	var harvestErr *models.HarvestError
	if errors.As(err, &harvestErr) {
		return harvestErr
	}
	return models.NewHarvestError(models.ErrCodeInternal, err.Error(), err)
}

// respondError writes a structured JSON error with the mapped HTTP status.
func respondError(c *gin.Context, err error) {
	harvestErr := asHarvestError(err)
	c.JSON(mapErrorToStatus(harvestErr), gin.H{
		"success": false,
		"error":   harvestErr.ToDetail(),
	})
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(e *models.HarvestError) int {
	switch e.Code {
	case models.ErrCodeFormat, models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeTimeout:
		return http.StatusGatewayTimeout // 504
	case models.ErrCodeFetchFailed, models.ErrCodeParseFailed, models.ErrCodeLLMFailure:
		return http.StatusBadGateway // 502
	case models.ErrCodePortalReject:
		return http.StatusNotFound // 404
	case models.ErrCodeRateLimited, models.ErrCodeLLMRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeUnauthorized, models.ErrCodeLLMAuthFailure:
		return http.StatusUnauthorized // 401
	default:
		return http.StatusInternalServerError // 500
	}
}
