package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// lookupRequest mirrors the Resulthound lookup API request model.
type lookupRequest struct {
	RegisterNumber string `json:"register_number"`
	DateOfBirth    string `json:"date_of_birth"`
	Timeout        int    `json:"timeout,omitempty"`
}

// lookupResponse mirrors the Resulthound lookup API response model.
type lookupResponse struct {
	Success     bool   `json:"success"`
	StudentName string `json:"student_name"`
	Rows        []struct {
		RegisterNumber string `json:"register_number"`
		StudentName    string `json:"student_name"`
		SubjectCode    string `json:"subject_code"`
		SubjectName    string `json:"subject_name"`
		Marks          string `json:"marks"`
		Status         string `json:"status"`
	} `json:"rows"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// runResponse mirrors the Resulthound run creation response.
type runResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Total  int    `json:"total"`
	Error  *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// runStatusResponse mirrors the Resulthound run status response.
type runStatusResponse struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
	Rows      int    `json:"rows"`
	Failures  []struct {
		RegisterNumber string `json:"register_number"`
		Code           string `json:"code"`
		Reason         string `json:"reason"`
	} `json:"failures"`
}

// askResponse mirrors the Resulthound question-answering response.
type askResponse struct {
	Success    bool   `json:"success"`
	Answer     string `json:"answer"`
	SampleRows int    `json:"sample_rows"`
	Error      *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func main() {
	apiURL := os.Getenv("RESULTHOUND_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("RESULTHOUND_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "RESULTHOUND_API_KEY is required")
		os.Exit(1)
	}

	s := server.NewMCPServer(
		"resulthound",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	lookupTool := mcp.NewTool("lookup_student",
		mcp.WithDescription("Look up one student's examination results on the university portal by register number and date of birth. Returns the subject rows inline."),
		mcp.WithString("register_number",
			mcp.Required(),
			mcp.Description("The student's register number"),
		),
		mcp.WithString("date_of_birth",
			mcp.Required(),
			mcp.Description("The student's date of birth in DD/MM/YYYY format"),
		),
	)
	s.AddTool(lookupTool, handleLookupStudent(apiURL, apiKey))

	harvestTool := mcp.NewTool("harvest_results",
		mcp.WithDescription("Fetch examination results for a whole roster of students and wait for the run to finish. The roster is CSV text with 'Register Number' and 'Date of Birth' columns."),
		mcp.WithString("roster_csv",
			mcp.Required(),
			mcp.Description("CSV content with a header row containing 'Register Number' and 'Date of Birth' (DD/MM/YYYY) columns"),
		),
		mcp.WithNumber("delay_ms",
			mcp.Description("Pause between consecutive lookups in milliseconds (default: server-configured)"),
		),
	)
	s.AddTool(harvestTool, handleHarvestResults(apiURL, apiKey))

	askTool := mcp.NewTool("ask_results",
		mcp.WithDescription("Ask a free-text question about a finished harvest run's result data. The answer comes from an LLM that sees a sample of the table."),
		mcp.WithString("run_id",
			mcp.Required(),
			mcp.Description("The run ID returned by harvest_results"),
		),
		mcp.WithString("question",
			mcp.Required(),
			mcp.Description("The question to ask about the result data"),
		),
		mcp.WithString("llm_api_key",
			mcp.Required(),
			mcp.Description("API key for the LLM service (OpenAI-compatible)"),
		),
		mcp.WithString("llm_model",
			mcp.Description("LLM model to use (default: server-configured)"),
		),
		mcp.WithString("llm_base_url",
			mcp.Description("Base URL for the LLM API. Supports any OpenAI-compatible API."),
		),
	)
	s.AddTool(askTool, handleAskResults(apiURL, apiKey))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

// apiPost sends a JSON POST request to the Resulthound API and returns the body.
func apiPost(ctx context.Context, client *http.Client, apiURL, apiKey, path string, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

// apiPostMultipart uploads a file field plus form values and returns the body.
func apiPostMultipart(ctx context.Context, client *http.Client, apiURL, apiKey, path, fieldName, fileName string, fileContent []byte, fields map[string]string) ([]byte, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile(fieldName, fileName)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(fileContent); err != nil {
		return nil, fmt.Errorf("write form file: %w", err)
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("write form field: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL+path, &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("X-API-Key", apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

// pollRunCompletion polls the run endpoint until status is no longer "processing" or context is cancelled.
func pollRunCompletion(ctx context.Context, client *http.Client, apiURL, apiKey, runID string) ([]byte, error) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL+"/api/v1/runs/"+runID, nil)
			if err != nil {
				return nil, fmt.Errorf("create poll request: %w", err)
			}
			req.Header.Set("X-API-Key", apiKey)

			resp, err := client.Do(req)
			if err != nil {
				return nil, fmt.Errorf("poll request failed: %w", err)
			}

			body, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			if err != nil {
				return nil, fmt.Errorf("read poll response: %w", err)
			}

			var status struct {
				Status string `json:"status"`
			}
			if err := json.Unmarshal(body, &status); err != nil {
				return nil, fmt.Errorf("parse poll status: %w", err)
			}

			if status.Status != "processing" {
				return body, nil
			}
		}
	}
}

func handleLookupStudent(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 120 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		registerNumber, err := request.RequireString("register_number")
		if err != nil {
			return mcp.NewToolResultError("register_number is required"), nil
		}
		dateOfBirth, err := request.RequireString("date_of_birth")
		if err != nil {
			return mcp.NewToolResultError("date_of_birth is required"), nil
		}

		respBody, err := apiPost(ctx, client, apiURL, apiKey, "/api/v1/lookup", lookupRequest{
			RegisterNumber: registerNumber,
			DateOfBirth:    dateOfBirth,
		})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("lookup request failed: %v", err)), nil
		}

		var lookupResp lookupResponse
		if err := json.Unmarshal(respBody, &lookupResp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse lookup response: %v", err)), nil
		}

		if !lookupResp.Success {
			errMsg := "lookup failed"
			if lookupResp.Error != nil {
				errMsg = fmt.Sprintf("[%s] %s", lookupResp.Error.Code, lookupResp.Error.Message)
			}
			return mcp.NewToolResultError(errMsg), nil
		}

		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("Student: %s (%s)\n\n", lookupResp.StudentName, registerNumber))
		for _, row := range lookupResp.Rows {
			sb.WriteString(fmt.Sprintf("%s  %s  %s  %s\n", row.SubjectCode, row.SubjectName, row.Marks, row.Status))
		}

		return mcp.NewToolResultText(sb.String()), nil
	}
}

func handleHarvestResults(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 600 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		rosterCSV, err := request.RequireString("roster_csv")
		if err != nil {
			return mcp.NewToolResultError("roster_csv is required"), nil
		}

		fields := map[string]string{}
		args := request.GetArguments()
		if delayMs, ok := args["delay_ms"]; ok {
			fields["delay_ms"] = fmt.Sprintf("%v", delayMs)
		}

		// POST to create the run.
		respBody, err := apiPostMultipart(ctx, client, apiURL, apiKey, "/api/v1/runs", "roster", "roster.csv", []byte(rosterCSV), fields)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("run request failed: %v", err)), nil
		}

		var runResp runResponse
		if err := json.Unmarshal(respBody, &runResp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse run response: %v", err)), nil
		}

		if runResp.ID == "" {
			errMsg := "run creation failed"
			if runResp.Error != nil {
				errMsg = fmt.Sprintf("[%s] %s", runResp.Error.Code, runResp.Error.Message)
			}
			return mcp.NewToolResultError(errMsg), nil
		}

		// Poll for completion.
		resultBody, err := pollRunCompletion(ctx, client, apiURL, apiKey, runResp.ID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("polling run failed: %v", err)), nil
		}

		var statusResp runStatusResponse
		if err := json.Unmarshal(resultBody, &statusResp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse run status: %v", err)), nil
		}

		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("Run %s: %s (%d/%d students, %d result rows)\n",
			statusResp.ID, statusResp.Status, statusResp.Completed, statusResp.Total, statusResp.Rows))
		if len(statusResp.Failures) > 0 {
			sb.WriteString("\nSkipped students:\n")
			for _, f := range statusResp.Failures {
				sb.WriteString(fmt.Sprintf("  %s: [%s] %s\n", f.RegisterNumber, f.Code, f.Reason))
			}
		}
		sb.WriteString(fmt.Sprintf("\nDownload: %s/api/v1/runs/%s/export\nAsk questions with ask_results using run_id %s\n",
			apiURL, statusResp.ID, statusResp.ID))

		return mcp.NewToolResultText(sb.String()), nil
	}
}

func handleAskResults(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 120 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		runID, err := request.RequireString("run_id")
		if err != nil {
			return mcp.NewToolResultError("run_id is required"), nil
		}
		question, err := request.RequireString("question")
		if err != nil {
			return mcp.NewToolResultError("question is required"), nil
		}
		llmAPIKey, err := request.RequireString("llm_api_key")
		if err != nil {
			return mcp.NewToolResultError("llm_api_key is required"), nil
		}

		payload := map[string]interface{}{
			"question":    question,
			"llm_api_key": llmAPIKey,
		}
		if llmModel := request.GetString("llm_model", ""); llmModel != "" {
			payload["llm_model"] = llmModel
		}
		if llmBaseURL := request.GetString("llm_base_url", ""); llmBaseURL != "" {
			payload["llm_base_url"] = llmBaseURL
		}

		respBody, err := apiPost(ctx, client, apiURL, apiKey, "/api/v1/runs/"+runID+"/ask", payload)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("ask request failed: %v", err)), nil
		}

		var aResp askResponse
		if err := json.Unmarshal(respBody, &aResp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse ask response: %v", err)), nil
		}

		if !aResp.Success {
			errMsg := "ask failed"
			if aResp.Error != nil {
				errMsg = fmt.Sprintf("[%s] %s", aResp.Error.Code, aResp.Error.Message)
			}
			return mcp.NewToolResultError(errMsg), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("%s\n\n(answered from a %d-row sample)", aResp.Answer, aResp.SampleRows)), nil
	}
}
