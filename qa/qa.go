// Package qa forwards free-text questions about a ResultTable to an
// OpenAI-compatible chat endpoint and returns the answer verbatim. The
// reasoning lives entirely on the other side of the wire; this package only
// builds the prompt and classifies transport failures.
package qa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	prettytable "github.com/jedib0t/go-pretty/v6/table"

	"github.com/resulthound/resulthound/models"
)

// Client is a lightweight OpenAI-compatible chat client.
// It uses net/http directly — no third-party SDK needed.
type Client struct {
	httpClient *http.Client

	// maxSampleRows caps how many table rows ride along in the prompt.
	maxSampleRows int
}

// NewClient creates a new Client with the given http.Client.
// Pass nil to use a default client.
func NewClient(httpClient *http.Client, maxSampleRows int) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if maxSampleRows <= 0 {
		maxSampleRows = 20
	}
	return &Client{httpClient: httpClient, maxSampleRows: maxSampleRows}
}

// AskParams holds per-request LLM configuration (BYOK).
type AskParams struct {
	APIKey  string
	Model   string
	BaseURL string // e.g. "https://api.groq.com/openai/v1"
}

// Answer holds the question-answering output.
type Answer struct {
	Text       string
	SampleRows int
	Usage      *models.LLMUsage
}

// chatRequest is the OpenAI chat completion request body.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse is the minimal OpenAI chat completion response we need.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// chatErrorResponse captures an API error from the LLM provider.
type chatErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// Ask sends the table sample and question to the LLM and returns its answer.
//
// A missing credential fails with LLM_AUTH_FAILURE before any network I/O;
// provider-side failures are classified but never retried or reinterpreted.
func (c *Client) Ask(ctx context.Context, table *models.ResultTable, question string, params AskParams) (*Answer, error) {
	if strings.TrimSpace(params.APIKey) == "" {
		return nil, models.NewHarvestError(models.ErrCodeLLMAuthFailure, "LLM API key is missing", nil)
	}
	if table.Len() == 0 {
		return nil, models.NewHarvestError(models.ErrCodeInvalidInput, "no result data to ask about", nil)
	}

	sample, sampleRows := renderSample(table, c.maxSampleRows)

	reqBody := chatRequest{
		Model: params.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildUserPrompt(sample, sampleRows, table.Len(), question)},
		},
		Temperature: 0,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := strings.TrimRight(params.BaseURL, "/") + "/chat/completions"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+params.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, models.NewHarvestError(models.ErrCodeLLMFailure, "LLM request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, models.NewHarvestError(models.ErrCodeLLMFailure, "failed to read LLM response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyLLMError(resp.StatusCode, respBody)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, models.NewHarvestError(models.ErrCodeLLMFailure, "failed to parse LLM response", err)
	}

	if len(chatResp.Choices) == 0 {
		return nil, models.NewHarvestError(models.ErrCodeLLMFailure, "LLM returned no choices", nil)
	}

	return &Answer{
		Text:       chatResp.Choices[0].Message.Content,
		SampleRows: sampleRows,
		Usage: &models.LLMUsage{
			PromptTokens:     chatResp.Usage.PromptTokens,
			CompletionTokens: chatResp.Usage.CompletionTokens,
			TotalTokens:      chatResp.Usage.TotalTokens,
		},
	}, nil
}

const systemPrompt = `You are an assistant helping to analyze student examination results.
Answer based only on the provided data. If the information needed is not in
the data, state that clearly instead of guessing.`

// buildUserPrompt renders the question with the table sample attached.
func buildUserPrompt(sample string, sampleRows, totalRows int, question string) string {
	return fmt.Sprintf(`Here are the student results (%d of %d rows shown):

%s

Question: %s`, sampleRows, totalRows, sample, question)
}

// renderSample formats up to maxRows of the table as plain text.
func renderSample(table *models.ResultTable, maxRows int) (string, int) {
	rows := table.Rows()
	if len(rows) > maxRows {
		rows = rows[:maxRows]
	}

	t := prettytable.NewWriter()
	header := make(prettytable.Row, len(models.ResultRowHeader))
	for i, h := range models.ResultRowHeader {
		header[i] = h
	}
	t.AppendHeader(header)

	for _, row := range rows {
		fields := row.Fields()
		cells := make(prettytable.Row, len(fields))
		for i, f := range fields {
			cells[i] = f
		}
		t.AppendRow(cells)
	}

	return t.Render(), len(rows)
}

// classifyLLMError maps HTTP status codes to appropriate error codes.
func classifyLLMError(statusCode int, body []byte) *models.HarvestError {
	var errResp chatErrorResponse
	msg := "LLM API error"
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		msg = errResp.Error.Message
	}

	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return models.NewHarvestError(models.ErrCodeLLMAuthFailure, msg, nil)
	case statusCode == http.StatusTooManyRequests:
		return models.NewHarvestError(models.ErrCodeLLMRateLimited, msg, nil)
	default:
		return models.NewHarvestError(models.ErrCodeLLMFailure, fmt.Sprintf("LLM API returned %d: %s", statusCode, msg), nil)
	}
}
