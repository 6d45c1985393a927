// Package gemini adapts google.golang.org/genai to the text generation and
// live relay interfaces used by the rest of the service.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"google.golang.org/genai"

	"github.com/petpal/health-backend/internal/config"
)

// ErrNotConfigured is returned when no API key was supplied.
var ErrNotConfigured = errors.New("gemini api key not configured")

// Client wraps a genai client with the models selected in config.
type Client struct {
	genai       *genai.Client
	model       string
	liveModel   string
	voice       string
	temperature *float32
}

// New connects a client for the Gemini API backend.
func New(ctx context.Context, cfg config.GeminiConfig) (*Client, error) {
	if !cfg.Enabled() {
		return nil, ErrNotConfigured
	}

	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	var temperature *float32
	if cfg.Temperature != nil {
		val := float32(*cfg.Temperature)
		temperature = &val
	}

	return &Client{
		genai:       gc,
		model:       cfg.Model,
		liveModel:   strings.TrimPrefix(cfg.LiveModel, "models/"),
		voice:       cfg.Voice,
		temperature: temperature,
	}, nil
}

// Model returns the text model name.
func (c *Client) Model() string {
	return c.model
}

// LiveModel returns the live model name.
func (c *Client) LiveModel() string {
	return c.liveModel
}

func (c *Client) contentConfig(system string) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{Temperature: c.temperature}
	if strings.TrimSpace(system) != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	return cfg
}

// Generate returns the full text reply for prompt.
func (c *Client) Generate(ctx context.Context, system, prompt string) (string, error) {
	resp, err := c.genai.Models.GenerateContent(ctx, c.model, genai.Text(prompt), c.contentConfig(system))
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	text := resp.Text()
	log.Printf("[gemini] generated model=%s length=%d", c.model, len(text))
	return text, nil
}

// Stream calls onDelta for every text fragment and returns the concatenated reply.
func (c *Client) Stream(ctx context.Context, system, prompt string, onDelta func(string) error) (string, error) {
	var builder strings.Builder
	for resp, err := range c.genai.Models.GenerateContentStream(ctx, c.model, genai.Text(prompt), c.contentConfig(system)) {
		if err != nil {
			return builder.String(), fmt.Errorf("stream content: %w", err)
		}
		delta := resp.Text()
		if delta == "" {
			continue
		}
		builder.WriteString(delta)
		if onDelta != nil {
			if err := onDelta(delta); err != nil {
				return builder.String(), err
			}
		}
	}
	return builder.String(), nil
}
