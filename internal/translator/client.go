// Package translator implements the LLM-backed subtitle translator:
// batch subtitle segments to a local Ollama instance and parse its
// numbered-line output back into the same segment shape.
//
// Segments are sent in fixed-size batches, one request per batch with no
// retry; a reply whose numbering cannot be parsed falls back to a newline
// split, padded with empty strings when short. The module talks to
// Ollama's plain generate endpoint with a bracket-numbered text format the
// response parser can realign against the original cues.
package translator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// generateRequest is Ollama's /api/generate request body.
type generateRequest struct {
	Model     string          `json:"model"`
	Prompt    string          `json:"prompt"`
	Stream    bool            `json:"stream"`
	Options   generateOptions `json:"options"`
	KeepAlive string          `json:"keep_alive,omitempty"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Client talks to a local Ollama server's native /api/generate endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
	model      string
}

// NewClient builds a Client against baseURL (e.g. http://localhost:11434)
// using model for every request.
func NewClient(baseURL, model string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		baseURL:    baseURL,
		model:      model,
	}
}

// generationTemperature and generationMaxTokens are the fixed decoding
// parameters.
const (
	generationTemperature = 0.3
	generationMaxTokens   = 4096
)

// Generate sends prompt to Ollama and returns the raw completion text.
// keepAlive is passed through verbatim ("" lets Ollama apply its own
// default, "0" unloads the model immediately after this call).
func (c *Client) Generate(ctx context.Context, prompt, keepAlive string) (string, error) {
	reqBody := generateRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: false,
		Options: generateOptions{
			Temperature: generationTemperature,
			NumPredict:  generationMaxTokens,
		},
		KeepAlive: keepAlive,
	}
	data, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("translator: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("translator: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("translator: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("translator: ollama returned status %d", resp.StatusCode)
	}

	var parsed generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("translator: decode response: %w", err)
	}
	return parsed.Response, nil
}

// Unload best-effort asks Ollama to drop the model from memory immediately,
// freeing the GPU for the STT adapter's next run. Errors are not fatal to
// callers — it's an optimisation, not a correctness requirement.
func (c *Client) Unload(ctx context.Context) error {
	_, err := c.Generate(ctx, "", "0")
	return err
}
