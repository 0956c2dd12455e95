package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// Embedding task types. Queries and documents are embedded
// asymmetrically; mixing them degrades retrieval quality.
const (
	taskTypeQuery    = "RETRIEVAL_QUERY"
	taskTypeDocument = "RETRIEVAL_DOCUMENT"
)

// geminiEmbedder is the slice of the genai model surface the embedding
// path uses.
type geminiEmbedder interface {
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// GeminiClient uses the Google Gemini API for embeddings and generation.
type GeminiClient struct {
	config   *ClientConfig
	client   *genai.Client
	embedder geminiEmbedder
}

// NewGeminiClient creates a new client for the Google Gemini API.
func NewGeminiClient(ctx context.Context, config *ClientConfig) (*GeminiClient, error) {
	if config == nil {
		return nil, errors.New("config cannot be nil")
	}

	// Defaults for Gemini API
	if config.EmbedModel == "" {
		config.EmbedModel = "text-embedding-005"
	}
	if config.GenModel == "" {
		config.GenModel = "gemini-2.0-flash"
	}
	if config.Dim == 0 {
		config.Dim = 768
	}
	if config.Location == "" && strings.TrimSpace(config.APIKey) == "" {
		config.Location = "us-central1"
	}

	cc := genai.ClientConfig{
		Backend: genai.BackendVertexAI,
	}
	if strings.TrimSpace(config.APIKey) != "" {
		cc.APIKey = config.APIKey
	}
	if strings.TrimSpace(config.ProjectID) != "" {
		cc.Project = config.ProjectID
	}
	if strings.TrimSpace(config.Location) != "" {
		cc.Location = config.Location
	}

	client, err := genai.NewClient(ctx, &cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{
		config:   config,
		client:   client,
		embedder: client.Models,
	}, nil
}

// Embed embeds a single search question.
func (c *GeminiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.embed(ctx, []string{text}, taskTypeQuery)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds document chunks in one request; the response
// carries one embedding per input content, in order.
func (c *GeminiClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return c.embed(ctx, texts, taskTypeDocument)
}

func (c *GeminiClient) embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var contents []*genai.Content
	for _, t := range texts {
		contents = append(contents, genai.Text(t)...)
	}

	cfg := genai.EmbedContentConfig{
		TaskType: taskType,
	}
	res, err := c.embedder.EmbedContent(ctx, c.config.EmbedModel, contents, &cfg)
	if err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}
	if res == nil || len(res.Embeddings) != len(texts) {
		return nil, errors.New("embedding count mismatch")
	}

	vecs := make([][]float32, len(res.Embeddings))
	for i, e := range res.Embeddings {
		vecs[i] = l2Normalize(e.Values)
	}
	return vecs, nil
}

// Generate implements grounded completion using the Gemini API.
func (c *GeminiClient) Generate(ctx context.Context, prompt string, temperature float32, maxTokens int) (string, error) {
	cfg := genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: int32(maxTokens),
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.config.GenModel, genai.Text(prompt), &cfg)
	if err != nil {
		return "", fmt.Errorf("generation failed: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("no answer returned")
	}

	part := resp.Candidates[0].Content.Parts[0]
	return strings.TrimSpace(part.Text), nil
}

// Ping verifies the API is reachable with a cheap token count call.
func (c *GeminiClient) Ping(ctx context.Context) error {
	_, err := c.client.Models.CountTokens(ctx, c.config.GenModel, genai.Text("ping"), nil)
	return err
}

func (c *GeminiClient) Dim() int {
	return c.config.Dim
}
