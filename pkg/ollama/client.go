// Package ollama classifies photos with a vision model served by Ollama.
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/menta2k/ecorecycle/pkg/client"
	"github.com/menta2k/ecorecycle/pkg/types"
)

// requestTimeout applies when the caller's context has no deadline. Vision
// models on CPU are slow.
const requestTimeout = 300 * time.Second

// Client wraps the Ollama API client
type Client struct {
	client *api.Client
	model  string
}

// NewClient creates a client for the Ollama server at ollamaURL using model
func NewClient(ollamaURL, model string) (*Client, error) {
	parsedURL, err := url.Parse(ollamaURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("invalid ollama URL %q", ollamaURL)
	}

	// drop any path such as /api/chat, the SDK adds its own
	baseURL := &url.URL{
		Scheme: parsedURL.Scheme,
		Host:   parsedURL.Host,
	}

	return &Client{
		client: api.NewClient(baseURL, http.DefaultClient),
		model:  model,
	}, nil
}

// SimpleQuery asks a free-text question about the photo
func (c *Client) SimpleQuery(ctx context.Context, prompt string, image []byte) (string, error) {
	return c.chat(ctx, prompt, image, nil)
}

// Classify asks the model for the photo's material
func (c *Client) Classify(ctx context.Context, filename string, image []byte) (*types.ClassificationResult, error) {
	options := map[string]any{"temperature": 0.2}

	modelLower := strings.ToLower(c.model)
	if strings.Contains(modelLower, "minicpm-v4") ||
		strings.Contains(modelLower, "minicpm-v-4") ||
		strings.Contains(modelLower, "minicpmv4") {
		options["top_p"] = 0.8
		options["num_ctx"] = 4096
	}

	text, err := c.chat(ctx, client.ClassifyPrompt, image, options)
	if err != nil {
		return nil, err
	}
	if text == "" {
		return nil, fmt.Errorf("empty response from ollama")
	}
	return client.ParseModelLabel(text, filename), nil
}

func (c *Client) chat(ctx context.Context, prompt string, image []byte, options map[string]any) (string, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, requestTimeout)
		defer cancel()
	}

	msg := api.Message{Role: "user", Content: prompt}
	if len(image) > 0 {
		msg.Images = []api.ImageData{api.ImageData(image)}
	}

	streamFalse := false
	req := &api.ChatRequest{
		Model:    c.model,
		Messages: []api.Message{msg},
		Stream:   &streamFalse,
		Options:  options,
	}

	var responseContent string
	err := c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		responseContent += resp.Message.Content
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat error: %w", err)
	}
	return responseContent, nil
}
