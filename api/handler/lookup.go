package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/resulthound/resulthound/models"
	"github.com/resulthound/resulthound/portal"
)

// PostLookup returns a handler for POST /api/v1/lookup: a synchronous
// single-student lookup that returns the parsed rows inline.
func PostLookup(fetcher portal.Fetcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.LookupRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, models.NewHarvestError(models.ErrCodeInvalidInput, err.Error(), err))
			return
		}

		start := time.Now()

		ctx := c.Request.Context()
		if req.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, time.Duration(req.Timeout)*time.Second)
			defer cancel()
		}

		lookupStart := time.Now()
		result, err := fetcher.Fetch(ctx, models.StudentQuery{
			RegisterNumber: req.RegisterNumber,
			DateOfBirth:    req.DateOfBirth,
		})
		lookupMs := time.Since(lookupStart).Milliseconds()

		if err != nil {
			harvestErr := asHarvestError(err)
			c.JSON(mapErrorToStatus(harvestErr), models.LookupResponse{
				Success: false,
				Timing: models.TimingInfo{
					TotalMs:  time.Since(start).Milliseconds(),
					LookupMs: lookupMs,
				},
				Error: harvestErr.ToDetail(),
			})
			return
		}

		c.JSON(http.StatusOK, models.LookupResponse{
			Success:     true,
			StudentName: result.StudentName,
			Rows:        result.Rows,
			Timing: models.TimingInfo{
				TotalMs:  time.Since(start).Milliseconds(),
				LookupMs: lookupMs,
			},
		})
	}
}
