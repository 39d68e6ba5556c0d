package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/resulthound/resulthound/config"
	"github.com/resulthound/resulthound/export"
	"github.com/resulthound/resulthound/harvest"
	"github.com/resulthound/resulthound/models"
	"github.com/resulthound/resulthound/qa"
)

// AskRun returns a handler for POST /api/v1/runs/:id/ask: question
// answering over a finished run's table.
func AskRun(registry *harvest.Registry, client *qa.Client, cfg *config.Config) gin.HandlerFunc {
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

		var req models.AskRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, models.NewHarvestError(models.ErrCodeInvalidInput, err.Error(), err))
			return
		}

		answer, err := client.Ask(c.Request.Context(), run.Table, req.Question, askParams(req, cfg))
		if err != nil {
			harvestErr := asHarvestError(err)
			c.JSON(mapErrorToStatus(harvestErr), models.AskResponse{
				Success: false,
				Error:   harvestErr.ToDetail(),
			})
			return
		}

		c.JSON(http.StatusOK, models.AskResponse{
			Success:    true,
			Answer:     answer.Text,
			SampleRows: answer.SampleRows,
			Usage:      answer.Usage,
		})
	}
}

// AskUpload returns a handler for POST /api/v1/ask: question answering
// over a previously exported workbook, uploaded as the "results" file.
// This is the restart path — no run needs to exist server-side.
func AskUpload(client *qa.Client, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.AskRequest
		if err := c.ShouldBind(&req); err != nil {
			respondError(c, models.NewHarvestError(models.ErrCodeInvalidInput, err.Error(), err))
			return
		}

		fileHeader, err := c.FormFile("results")
		if err != nil {
			respondError(c, models.NewHarvestError(
				models.ErrCodeInvalidInput,
				`multipart file field "results" is required`,
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

		table, err := export.Read(file)
		if err != nil {
			respondError(c, err)
			return
		}

		answer, err := client.Ask(c.Request.Context(), table, req.Question, askParams(req, cfg))
		if err != nil {
			harvestErr := asHarvestError(err)
			c.JSON(mapErrorToStatus(harvestErr), models.AskResponse{
				Success: false,
				Error:   harvestErr.ToDetail(),
			})
			return
		}

		c.JSON(http.StatusOK, models.AskResponse{
			Success:    true,
			Answer:     answer.Text,
			SampleRows: answer.SampleRows,
			Usage:      answer.Usage,
		})
	}
}

// askParams fills request overrides on top of the configured defaults.
func askParams(req models.AskRequest, cfg *config.Config) qa.AskParams {
	params := qa.AskParams{
		APIKey:  req.LLMAPIKey,
		Model:   cfg.QA.Model,
		BaseURL: cfg.QA.BaseURL,
	}
	if req.LLMModel != "" {
		params.Model = req.LLMModel
	}
	if req.LLMBaseURL != "" {
		params.BaseURL = req.LLMBaseURL
	}
	return params
}
