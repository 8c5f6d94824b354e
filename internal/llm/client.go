// Package llm wraps the chat-completions service that turns an OCR
// markdown table into a structured door record.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/qianyu2019/firedoor-extractor/internal/models"
	"github.com/qianyu2019/firedoor-extractor/pkg/errs"
	"github.com/qianyu2019/firedoor-extractor/pkg/httpclient"
)

// Config holds the completion-service endpoint settings.
type Config struct {
	URL    string `yaml:"url"`
	Model  string `yaml:"model"`
	APIKey string `yaml:"apiKey"`
}

// Client calls the chat-completions endpoint with the fixed extraction
// prompt. One Client per worker.
type Client struct {
	cfg  Config
	http *httpclient.Client
}

// NewClient creates an extraction client using hc for transport.
func NewClient(cfg Config, hc *httpclient.Client) *Client {
	return &Client{cfg: cfg, http: hc}
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type completionRequest struct {
	Model          string         `json:"model"`
	Messages       []message      `json:"messages"`
	Temperature    float64        `json:"temperature"`
	DoSample       bool           `json:"do_sample"`
	ResponseFormat responseFormat `json:"response_format"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// ExtractRecord sends the markdown to the model and parses its JSON-only
// answer into a normalized ExtractionRecord. Non-JSON content is a
// protocol error carrying the raw model output.
func (c *Client) ExtractRecord(ctx context.Context, markdown string) (*models.ExtractionRecord, error) {
	payload := completionRequest{
		Model: c.cfg.Model,
		Messages: []message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPromptPrefix + markdown},
		},
		Temperature:    0,
		DoSample:       false,
		ResponseFormat: responseFormat{Type: "json_object"},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("llm: failed to marshal request: %w", err)
	}

	header := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}
	resp, err := c.http.PostJSON(ctx, c.cfg.URL, header, body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("llm: unexpected status %d: %s", resp.StatusCode, resp.Body)
	}

	var parsed completionResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return nil, &errs.ProtocolError{
			Service: "completions",
			Reason:  "response is not valid JSON",
			Payload: string(resp.Body),
			Err:     err,
		}
	}
	if len(parsed.Choices) == 0 {
		return nil, &errs.ProtocolError{
			Service: "completions",
			Reason:  "missing choices[0].message.content",
			Payload: string(resp.Body),
		}
	}

	content := parsed.Choices[0].Message.Content
	record := &models.ExtractionRecord{}
	if err := json.Unmarshal([]byte(content), record); err != nil {
		return nil, &errs.ProtocolError{
			Service: "completions",
			Reason:  "model content is not valid JSON",
			Payload: content,
			Err:     err,
		}
	}
	record.Normalize()
	return record, nil
}
