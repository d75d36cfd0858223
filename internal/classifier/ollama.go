package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
)

// inputPlaceholder is the substitution point for site metadata in prompt
// templates.
const inputPlaceholder = "{{INPUT_JSON}}"

type (
	// OllamaRequest is the generate-API request body. Format "json" makes
	// the model emit a machine-parseable response.
	OllamaRequest struct {
		Model  string `json:"model"`
		Prompt string `json:"prompt"`
		Format string `json:"format"`
		Stream bool   `json:"stream"`
	}

	// OllamaResponse wraps the model's raw output string.
	OllamaResponse struct {
		Response string `json:"response"`
	}
)

// OllamaClient calls a local Ollama server's generate endpoint. The request
// carries no explicit timeout; generation time is unbounded and governed by
// the context.
type OllamaClient struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewOllamaClient creates a client for the given server URL and model.
func NewOllamaClient(baseURL, model string) *OllamaClient {
	return &OllamaClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{},
	}
}

// Classify renders the prompt template with the site metadata and asks the
// model for a verdict. The generate response carries the verdict as a JSON
// string inside a JSON body; both layers are parsed here.
func (c *OllamaClient) Classify(ctx context.Context, metadata SiteMetadata, promptTemplate string) (Classification, error) {
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return Classification{}, newClassifyError(ErrorTypeMetadataSerialization, err)
	}

	body, err := json.Marshal(OllamaRequest{
		Model:  c.model,
		Prompt: strings.Replace(promptTemplate, inputPlaceholder, string(metadataJSON), 1),
		Format: "json",
		Stream: false,
	})
	if err != nil {
		return Classification{}, newClassifyError(ErrorTypeMetadataSerialization, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return Classification{}, newClassifyError(ErrorTypeOllamaAPI, err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Classification{}, classifyOllamaError(err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Classification{}, newClassifyError(ErrorTypeOllamaAPI,
			fmt.Errorf("ollama API returned status %d", resp.StatusCode))
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Classification{}, newClassifyError(ErrorTypeOllamaResponseParse, err)
	}

	var ollamaResp OllamaResponse
	if err := json.Unmarshal(respBody, &ollamaResp); err != nil {
		return Classification{}, newClassifyError(ErrorTypeOllamaResponseParse, err)
	}

	var classification Classification
	if err := json.Unmarshal([]byte(ollamaResp.Response), &classification); err != nil {
		return Classification{}, newClassifyError(ErrorTypeClassificationParse, err)
	}

	return classification, nil
}

// classifyOllamaError maps a transport failure to the taxonomy: timeouts to
// OllamaApiTimeoutError, refused connections to OllamaApiConnectionError.
func classifyOllamaError(err error) *ClassifyError {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return newClassifyError(ErrorTypeOllamaAPITimeout, err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return newClassifyError(ErrorTypeOllamaAPITimeout, err)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return newClassifyError(ErrorTypeOllamaAPIConnection, err)
	}

	return newClassifyError(ErrorTypeOllamaAPI, err)
}
