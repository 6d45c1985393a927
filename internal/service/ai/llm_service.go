package ai

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/petpal/health-backend/internal/config"
)

// ErrUnavailable means no text generation backend is configured.
var ErrUnavailable = errors.New("text generation not configured")

// Generator produces text from a system instruction and a user prompt.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
	// Stream calls onDelta for each fragment and returns the full reply.
	Stream(ctx context.Context, system, prompt string, onDelta func(string) error) (string, error)
}

// Service selects the text backend named by AI_PROVIDER.
type Service struct {
	backend Generator
	name    string
	stream  bool
}

// NewService builds the service. gemini may be nil when no Gemini key is set;
// the service is then unavailable unless Ark is selected and configured.
func NewService(ctx context.Context, cfg config.AIConfig, gemini Generator) (*Service, error) {
	svc := &Service{stream: cfg.StreamResponse}

	switch cfg.Provider {
	case config.ProviderArk:
		backend, err := NewArkBackend(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create ark backend: %w", err)
		}
		svc.backend = backend
		svc.name = config.ProviderArk
	default:
		if gemini != nil {
			svc.backend = gemini
			svc.name = config.ProviderGemini
		}
	}

	if svc.backend == nil {
		log.Printf("[ai] no text backend configured; consultations will use the fallback reply")
	} else {
		log.Printf("[ai] text backend=%s stream=%t", svc.name, svc.stream)
	}
	return svc, nil
}

// Available reports whether a backend is configured.
func (s *Service) Available() bool {
	return s != nil && s.backend != nil
}

// Backend names the active provider, or "" when none.
func (s *Service) Backend() string {
	if s == nil {
		return ""
	}
	return s.name
}

// StreamingEnabled 指示是否开启 SSE 流式输出。
func (s *Service) StreamingEnabled() bool {
	return s.Available() && s.stream
}

// Generate returns the full reply.
func (s *Service) Generate(ctx context.Context, system, prompt string) (string, error) {
	if !s.Available() {
		return "", ErrUnavailable
	}

	text, err := s.backend.Generate(ctx, system, prompt)
	if err != nil {
		return "", fmt.Errorf("failed to generate with %s: %w", s.name, err)
	}
	return text, nil
}

// Stream forwards reply fragments to onDelta.
func (s *Service) Stream(ctx context.Context, system, prompt string, onDelta func(string) error) (string, error) {
	if !s.Available() {
		return "", ErrUnavailable
	}
	if !s.stream {
		return "", fmt.Errorf("streaming disabled in configuration")
	}

	text, err := s.backend.Stream(ctx, system, prompt, onDelta)
	if err != nil {
		return text, fmt.Errorf("failed to stream with %s: %w", s.name, err)
	}
	return text, nil
}
