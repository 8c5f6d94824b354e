// Package ocr wraps the layout-parsing OCR service that turns a door
// sheet image into a markdown table.
package ocr

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/qianyu2019/firedoor-extractor/pkg/errs"
	"github.com/qianyu2019/firedoor-extractor/pkg/httpclient"
)

// Client calls the layout-parsing endpoint. One Client per worker; it
// does not retry beyond what its httpclient already does.
type Client struct {
	baseURL string
	http    *httpclient.Client
}

// NewClient creates an OCR client against baseURL using hc for transport.
func NewClient(baseURL string, hc *httpclient.Client) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    hc,
	}
}

type layoutRequest struct {
	File               string `json:"file"`
	FileType           int    `json:"fileType"`
	Visualize          bool   `json:"visualize"`
	PrettifyMarkdown   bool   `json:"prettifyMarkdown"`
	UseLayoutDetection bool   `json:"useLayoutDetection"`
	PromptLabel        string `json:"promptLabel"`
}

type layoutResponse struct {
	Result struct {
		LayoutParsingResults []struct {
			Markdown struct {
				Text string `json:"text"`
			} `json:"markdown"`
		} `json:"layoutParsingResults"`
	} `json:"result"`
}

// ExtractMarkdown posts the PNG image and returns the markdown text of
// the first layout-parsing result. An unexpected envelope shape is a
// protocol error carrying the offending payload.
func (c *Client) ExtractMarkdown(ctx context.Context, png []byte) (string, error) {
	req := layoutRequest{
		File:               base64.StdEncoding.EncodeToString(png),
		FileType:           1,
		Visualize:          false,
		PrettifyMarkdown:   false,
		UseLayoutDetection: true,
		PromptLabel:        "table",
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("ocr: failed to marshal request: %w", err)
	}

	resp, err := c.http.PostJSON(ctx, c.baseURL+"/layout-parsing", nil, body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ocr: unexpected status %d: %s", resp.StatusCode, resp.Body)
	}

	var parsed layoutResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return "", &errs.ProtocolError{
			Service: "ocr",
			Reason:  "response is not valid JSON",
			Payload: string(resp.Body),
			Err:     err,
		}
	}
	results := parsed.Result.LayoutParsingResults
	if len(results) == 0 || results[0].Markdown.Text == "" {
		return "", &errs.ProtocolError{
			Service: "ocr",
			Reason:  "missing layoutParsingResults[0].markdown.text",
			Payload: string(resp.Body),
		}
	}
	return results[0].Markdown.Text, nil
}
