package handler

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/resulthound/resulthound/config"
	"github.com/resulthound/resulthound/export"
	"github.com/resulthound/resulthound/harvest"
	"github.com/resulthound/resulthound/models"
	"github.com/resulthound/resulthound/portal"
	"github.com/resulthound/resulthound/roster"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// PostRun returns a handler for POST /api/v1/runs.
//
// Flow:
//  1. Read the multipart roster upload + optional overrides.
//  2. Load and validate the roster — a FORMAT_ERROR aborts here, before
//     any portal traffic.
//  3. Register a run and launch the sequential harvest loop in the
//     background.
//  4. Return 202 with the run ID for polling.
func PostRun(registry *harvest.Registry, fetcher portal.Fetcher, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var opts models.RunOptions
		if err := c.ShouldBind(&opts); err != nil {
			respondError(c, models.NewHarvestError(models.ErrCodeInvalidInput, err.Error(), err))
			return
		}

		fileHeader, err := c.FormFile("roster")
		if err != nil {
			respondError(c, models.NewHarvestError(
				models.ErrCodeInvalidInput,
				`multipart file field "roster" is required`,
				err,
			))
			return
		}

		file, err := fileHeader.Open()
		if err != nil {
			respondError(c, models.NewHarvestError(models.ErrCodeInternal, "failed to open upload", err))
			return
		}
		defer file.Close()

		queries, err := roster.Load(file, fileHeader.Filename)
		if err != nil {
			respondError(c, err)
			return
		}

		if len(queries) > cfg.Runs.MaxStudents {
			respondError(c, models.NewHarvestError(
				models.ErrCodeInvalidInput,
				fmt.Sprintf("roster has %d students, maximum is %d", len(queries), cfg.Runs.MaxStudents),
				nil,
			))
			return
		}

		run := harvest.NewRun(len(queries))
		registry.Add(run)

		h := harvest.New(fetcher, cfg.Portal.StudentDelay)
		if opts.DelayMs > 0 {
			h.Delay = time.Duration(opts.DelayMs) * time.Millisecond
		}
		if opts.Timeout > 0 {
			h.Timeout = time.Duration(opts.Timeout) * time.Second
		}
		h.WebhookURL = cfg.Webhook.URL
		h.WebhookSecret = cfg.Webhook.Secret

		// The loop outlives this request on purpose; progress is polled
		// via GET /runs/:id.
		go h.Execute(context.Background(), run, queries)

		c.JSON(http.StatusAccepted, models.RunResponse{
			ID:     run.ID,
			Status: harvest.StatusProcessing,
			Total:  run.Total,
		})
	}
}

// GetRun returns a handler for GET /api/v1/runs/:id.
func GetRun(registry *harvest.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		run, ok := registry.Get(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{
				"error": models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: "run not found",
				},
			})
			return
		}
		c.JSON(http.StatusOK, run.StatusResponse())
	}
}

// ExportRun returns a handler for GET /api/v1/runs/:id/export.
// The download is only available once the run has reached a terminal
// status; partial runs export whatever rows were gathered.
func ExportRun(registry *harvest.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		run, ok := registry.Get(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{
				"error": models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: "run not found",
				},
			})
			return
		}

		if !run.Done() {
			c.JSON(http.StatusConflict, gin.H{
				"error": models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: "run is still processing",
				},
			})
			return
		}

		var buf bytes.Buffer
		if err := export.Write(&buf, run.Table, run.Failures()); err != nil {
			respondError(c, err)
			return
		}

		c.Header("Content-Disposition", `attachment; filename="student_results.xlsx"`)
		c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
	}
}
