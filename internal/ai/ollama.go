package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// OllamaClient talks to a local Ollama server for both embeddings and
// generation.
type OllamaClient struct {
	config *ClientConfig
	http   *http.Client
}

// NewOllamaClient creates a client for an Ollama server.
func NewOllamaClient(config *ClientConfig) *OllamaClient {
	if config.BaseURL == "" {
		config.BaseURL = "http://127.0.0.1:11434"
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.EmbedModel == "" {
		config.EmbedModel = "all-minilm"
	}
	if config.GenModel == "" {
		config.GenModel = "phi3:mini"
	}
	if config.Dim == 0 {
		// all-minilm dimensionality
		config.Dim = 384
	}

	return &OllamaClient{
		config: config,
		// Generation can legitimately take minutes on CPU; per-call
		// deadlines come from the request context.
		http: &http.Client{Timeout: 5 * time.Minute},
	}
}

// Embed returns a normalized embedding for a single text.
func (c *OllamaClient) Embed(ctx context.Context, text string) ([]float32, error) {
	payload := map[string]string{
		"model":  c.config.EmbedModel,
		"prompt": text,
	}
	b, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.config.BaseURL+"/api/embeddings", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama embeddings: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama embeddings: %s", resp.Status)
	}

	var out struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if len(out.Embedding) == 0 {
		return nil, errors.New("ollama embeddings: empty vector")
	}
	// Ollama does not normalize; the index expects unit vectors.
	return l2Normalize(out.Embedding), nil
}

// EmbedBatch embeds texts one call at a time; the endpoint takes a
// single prompt per request.
func (c *OllamaClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := c.Embed(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("embed batch item %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// Generate runs a non-streaming completion.
func (c *OllamaClient) Generate(ctx context.Context, prompt string, temperature float32, maxTokens int) (string, error) {
	payload := map[string]any{
		"model":  c.config.GenModel,
		"prompt": prompt,
		"stream": false,
		"options": map[string]any{
			"temperature": temperature,
			"num_predict": maxTokens,
		},
	}
	b, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.config.BaseURL+"/api/generate", bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama generate: %s", resp.Status)
	}

	var out struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Response), nil
}

// Ping checks server reachability via the tags endpoint.
func (c *OllamaClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama ping: %s", resp.Status)
	}
	return nil
}

// Dim returns the embedding dimension
func (c *OllamaClient) Dim() int {
	return c.config.Dim
}
