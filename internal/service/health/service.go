// Package health implements the consultation, prescription and vaccination
// flows on top of memory, prompt building and text generation.
package health

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/petpal/health-backend/internal/analysis/entities"
	"github.com/petpal/health-backend/internal/model/agent"
	"github.com/petpal/health-backend/internal/model/pet"
	"github.com/petpal/health-backend/internal/service/ai"
	"github.com/petpal/health-backend/internal/service/memory"
	"github.com/petpal/health-backend/internal/service/prompt"
)

var (
	ErrEmptyMessage      = errors.New("no message provided")
	ErrMissingMedication = errors.New("medication is required")
	ErrMissingVaccine    = errors.New("vaccine is required")
)

// FallbackReply is returned by consultations when no generator is configured.
const FallbackReply = "I'm sorry, the AI service is not configured. Please check the API key."

// Generator is the text generation surface used here.
type Generator interface {
	Available() bool
	Generate(ctx context.Context, system, prompt string) (string, error)
	Stream(ctx context.Context, system, prompt string, onDelta func(string) error) (string, error)
}

// Memory is the best-effort long-term memory surface used here.
type Memory interface {
	Remember(ctx context.Context, subjectID, message, role string, metadata map[string]any) bool
	HealthContext(ctx context.Context, subjectID, query string) string
	StoreFindings(ctx context.Context, subjectID, consultationID string, f memory.Findings) bool
	AddMedication(ctx context.Context, subjectID, medication, dosage, frequency string) bool
	AddVaccination(ctx context.Context, subjectID, vaccine, date, vet string) bool
	Medications(ctx context.Context, subjectID string) []string
	Vaccinations(ctx context.Context, subjectID string) []string
}

// Service wires the health flows together.
type Service struct {
	gen     Generator
	mem     Memory
	routing string
}

// NewService builds the service; the routing instruction is derived once from agents.
func NewService(gen Generator, mem Memory, agents agent.Store) *Service {
	var routing string
	if agents != nil {
		routing = prompt.RoutingInstruction(agents.List())
	}
	return &Service{gen: gen, mem: mem, routing: routing}
}

// ConsultRequest is one consultation turn.
type ConsultRequest struct {
	Mode           prompt.Mode
	Message        string
	ConsultationID string
	Profile        pet.Profile
}

// ConsultReply is the assistant's answer with the health terms spotted in the exchange.
type ConsultReply struct {
	Text     string
	Entities entities.Entities
}

// Consult answers one question, recalling and storing memory around the call.
// Without a generator the reply is FallbackReply.
func (s *Service) Consult(ctx context.Context, req ConsultRequest) (ConsultReply, error) {
	if strings.TrimSpace(req.Message) == "" {
		return ConsultReply{}, ErrEmptyMessage
	}
	profile := req.Profile.WithDefaults()

	history := s.mem.HealthContext(ctx, profile.ID, req.Message)
	meta := map[string]any{"type": "consultation", "consultation_id": req.ConsultationID}
	s.mem.Remember(ctx, profile.ID, req.Message, "user", meta)

	text := FallbackReply
	if s.gen.Available() {
		p := prompt.BuildConsultation(prompt.ConsultationInput{
			Profile:       profile,
			HealthContext: history,
			Message:       req.Message,
			Mode:          req.Mode,
		})

		reply, err := s.gen.Generate(ctx, s.routing, p)
		if err != nil {
			return ConsultReply{}, err
		}
		text = reply
	}

	s.mem.Remember(ctx, profile.ID, text, "assistant", meta)
	found := entities.Extract(req.Message)
	log.Printf("[health] consultation dog=%s mode=%s memory=%t length=%d symptoms=%d", profile.ID, req.Mode, history != "", len(text), len(found.Symptoms))
	return ConsultReply{Text: text, Entities: found}, nil
}

// FinishConsultation stores the findings of a finished consultation. stored is
// false when memory is unavailable.
func (s *Service) FinishConsultation(ctx context.Context, dogID, consultationID string, f memory.Findings) bool {
	stored := s.mem.StoreFindings(ctx, subject(dogID), consultationID, f)
	log.Printf("[health] consultation finished dog=%s id=%s stored=%t", subject(dogID), consultationID, stored)
	return stored
}

// TextRequest is the body of the REST text consultation.
type TextRequest struct {
	Message       string
	Profile       pet.Profile
	MemoryContext string
}

// TextReply carries a random session id; ids are never derived from content.
type TextReply struct {
	Response  string `json:"response"`
	SessionID string `json:"session_id"`
}

// TextConsultation answers a stateless REST consultation. Memory is supplied by the caller.
func (s *Service) TextConsultation(ctx context.Context, req TextRequest) (TextReply, error) {
	p, err := s.textPrompt(req)
	if err != nil {
		return TextReply{}, err
	}

	text, err := s.gen.Generate(ctx, "", p)
	if err != nil {
		return TextReply{}, err
	}
	return TextReply{Response: text, SessionID: uuid.NewString()}, nil
}

// StreamTextConsultation is TextConsultation with incremental deltas.
func (s *Service) StreamTextConsultation(ctx context.Context, req TextRequest, onDelta func(string) error) (TextReply, error) {
	p, err := s.textPrompt(req)
	if err != nil {
		return TextReply{}, err
	}

	text, err := s.gen.Stream(ctx, "", p, onDelta)
	if err != nil {
		return TextReply{}, err
	}
	return TextReply{Response: text, SessionID: uuid.NewString()}, nil
}

// ValidateText rejects requests that carry no message.
func ValidateText(req TextRequest) error {
	if strings.TrimSpace(req.Message) == "" {
		return ErrEmptyMessage
	}
	return nil
}

// StreamingAvailable reports whether StreamTextConsultation can produce deltas.
func (s *Service) StreamingAvailable() bool {
	if !s.gen.Available() {
		return false
	}
	if sg, ok := s.gen.(interface{ StreamingEnabled() bool }); ok {
		return sg.StreamingEnabled()
	}
	return true
}

func (s *Service) textPrompt(req TextRequest) (string, error) {
	if err := ValidateText(req); err != nil {
		return "", err
	}
	if !s.gen.Available() {
		return "", ai.ErrUnavailable
	}
	return prompt.BuildHealthPrompt(prompt.HealthPromptInput{
		Profile:       req.Profile,
		MemoryContext: req.MemoryContext,
		Message:       req.Message,
	}), nil
}
