// Package relay pairs one client connection with one upstream live session and
// forwards messages in both directions until either side ends.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"

	"github.com/petpal/health-backend/internal/model/live"
	"github.com/petpal/health-backend/internal/model/pet"
	"github.com/petpal/health-backend/internal/model/session"
)

// Client is the app side of a relay session.
type Client interface {
	// Read blocks for the next inbound message. Errors wrapping live.ErrMalformed
	// or *live.DecodeError describe a bad frame; any other error means the
	// connection is gone. Close must unblock a pending Read.
	Read(ctx context.Context) (live.ClientMessage, error)
	Send(ctx context.Context, msg live.ServerMessage) error
	Close() error
}

// MediaChunk is a typed binary payload sent upstream.
type MediaChunk struct {
	MIMEType string
	Data     []byte
}

// Chunk is one message received from the upstream live session.
type Chunk struct {
	Media            []MediaChunk
	Text             []string
	InputTranscript  string
	OutputTranscript string
	TurnComplete     bool
}

// Upstream is the generation service side of a relay session. Receive returns
// io.EOF when the upstream ended normally; Close must unblock a pending Receive.
type Upstream interface {
	SendMedia(chunk MediaChunk) error
	SendText(text string) error
	Receive() (Chunk, error)
	Close() error
}

// Dialer opens upstream live sessions.
type Dialer interface {
	Dial(ctx context.Context, kind session.Kind) (Upstream, error)
}

// Recorder receives completed turns. Implementations are best-effort.
type Recorder interface {
	Remember(ctx context.Context, subjectID, message, role string, metadata map[string]any) bool
}

// Severity classifies the handling of a single message.
type Severity int

const (
	Continue Severity = iota
	Recoverable
	Stop
	Fatal
)

// Result is the outcome of handling one message.
type Result struct {
	Severity Severity
	Err      error
}

// Reason says why a relay ended.
type Reason string

const (
	ReasonStopped        Reason = "stopped"
	ReasonClientClosed   Reason = "client_closed"
	ReasonUpstreamClosed Reason = "upstream_closed"
	ReasonFailed         Reason = "failed"
	ReasonCancelled      Reason = "cancelled"
)

// Outcome is returned once both directions have exited.
type Outcome struct {
	Reason Reason
	Err    error
}

// State holds the session-local fields a client may change with config messages.
type State struct {
	mu        sync.Mutex
	sessionID string
	kind      session.Kind
	dogName   string
	dogID     string
}

// NewState returns state with placeholder subject fields.
func NewState(sessionID string, kind session.Kind) *State {
	return &State{
		sessionID: sessionID,
		kind:      kind,
		dogName:   pet.DefaultName,
		dogID:     pet.DefaultID,
	}
}

// Subject returns the current subject id and display name.
func (s *State) Subject() (id, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dogID, s.dogName
}

func (s *State) apply(cfg live.ConfigUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg.DogName != nil {
		s.dogName = strings.TrimSpace(*cfg.DogName)
		if s.dogName == "" {
			s.dogName = pet.DefaultName
		}
	}
	if cfg.DogID != nil {
		s.dogID = strings.TrimSpace(*cfg.DogID)
		if s.dogID == "" {
			s.dogID = pet.DefaultID
		}
	}
}

// Options tune a single Run.
type Options struct {
	Recorder Recorder
}

type loop struct {
	client   Client
	upstream Upstream
	state    *State
	recorder Recorder
}

// Run forwards client messages upstream and upstream chunks to the client until
// one direction ends. It then closes both sides and returns after both loops
// have exited.
func Run(ctx context.Context, client Client, upstream Upstream, state *State, opts Options) Outcome {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	l := &loop{client: client, upstream: upstream, state: state, recorder: opts.Recorder}

	results := make(chan Outcome, 2)
	go func() { results <- l.inbound(ctx) }()
	go func() { results <- l.outbound(ctx) }()

	pending := 2
	var first Outcome
	select {
	case first = <-results:
		pending--
	case <-ctx.Done():
		first = Outcome{Reason: ReasonCancelled, Err: ctx.Err()}
	}

	cancel()
	if err := upstream.Close(); err != nil {
		log.Printf("[relay] close upstream session=%s: %v", state.sessionID, err)
	}
	_ = client.Close()

	for ; pending > 0; pending-- {
		<-results
	}

	return first
}

// invalidMessage is what clients see for a rejected frame; details stay in the log.
const invalidMessage = "invalid message"

func (l *loop) inbound(ctx context.Context) Outcome {
	for {
		msg, err := l.client.Read(ctx)
		var res Result
		if err != nil {
			res = classifyReadError(err)
			if res.Severity == Continue {
				if ctx.Err() != nil {
					return Outcome{Reason: ReasonCancelled}
				}
				return Outcome{Reason: ReasonClientClosed}
			}
		} else {
			res = l.handleInbound(msg)
		}

		switch res.Severity {
		case Continue:
		case Recoverable:
			log.Printf("[relay] rejected client message session=%s: %v", l.state.sessionID, res.Err)
			if sendErr := l.client.Send(ctx, live.Error{Message: invalidMessage}); sendErr != nil {
				return Outcome{Reason: ReasonClientClosed}
			}
		case Stop:
			log.Printf("[relay] client requested stop session=%s", l.state.sessionID)
			return Outcome{Reason: ReasonStopped}
		case Fatal:
			if ctx.Err() != nil {
				return Outcome{Reason: ReasonCancelled}
			}
			log.Printf("[relay] inbound failed session=%s: %v", l.state.sessionID, res.Err)
			_ = l.client.Send(ctx, live.Error{Message: "live session failed"})
			return Outcome{Reason: ReasonFailed, Err: res.Err}
		}
	}
}

// classifyReadError maps client read errors; Continue here means the
// connection itself is gone.
func classifyReadError(err error) Result {
	var decodeErr *live.DecodeError
	switch {
	case errors.As(err, &decodeErr):
		return Result{Severity: Fatal, Err: err}
	case errors.Is(err, live.ErrMalformed):
		return Result{Severity: Recoverable, Err: err}
	default:
		return Result{Severity: Continue, Err: err}
	}
}

func (l *loop) handleInbound(msg live.ClientMessage) Result {
	switch m := msg.(type) {
	case live.AudioChunk:
		if err := l.upstream.SendMedia(MediaChunk{MIMEType: live.MIMEAudioPCM, Data: m.Data}); err != nil {
			return Result{Severity: Fatal, Err: fmt.Errorf("forward audio: %w", err)}
		}
	case live.VideoFrame:
		if err := l.upstream.SendMedia(MediaChunk{MIMEType: live.MIMEImageJPG, Data: m.Data}); err != nil {
			return Result{Severity: Fatal, Err: fmt.Errorf("forward video frame: %w", err)}
		}
	case live.TextInput:
		if err := l.upstream.SendText(m.Text); err != nil {
			return Result{Severity: Fatal, Err: fmt.Errorf("forward text: %w", err)}
		}
	case live.ConfigUpdate:
		l.state.apply(m)
		id, name := l.state.Subject()
		log.Printf("[relay] config applied session=%s dog=%s name=%q", l.state.sessionID, id, name)
	case live.Stop:
		return Result{Severity: Stop}
	default:
		return Result{Severity: Recoverable, Err: fmt.Errorf("%w: unsupported message %T", live.ErrMalformed, msg)}
	}
	return Result{Severity: Continue}
}

func (l *loop) outbound(ctx context.Context) Outcome {
	var userTurn, modelTurn strings.Builder

	for {
		chunk, err := l.upstream.Receive()
		if err != nil {
			if ctx.Err() != nil {
				return Outcome{Reason: ReasonCancelled}
			}
			if errors.Is(err, io.EOF) {
				log.Printf("[relay] upstream closed session=%s", l.state.sessionID)
				return Outcome{Reason: ReasonUpstreamClosed}
			}
			log.Printf("[relay] upstream receive failed session=%s: %v", l.state.sessionID, err)
			_ = l.client.Send(ctx, live.Error{Message: "live session failed"})
			return Outcome{Reason: ReasonFailed, Err: fmt.Errorf("receive upstream: %w", err)}
		}

		for _, msg := range reshape(chunk) {
			if err := l.client.Send(ctx, msg); err != nil {
				return Outcome{Reason: ReasonClientClosed}
			}
		}

		userTurn.WriteString(chunk.InputTranscript)
		modelTurn.WriteString(chunk.OutputTranscript)
		for _, text := range chunk.Text {
			modelTurn.WriteString(text)
		}

		if chunk.TurnComplete {
			l.recordTurn(ctx, userTurn.String(), modelTurn.String())
			userTurn.Reset()
			modelTurn.Reset()
		}
	}
}

// reshape converts one upstream chunk into client messages, preserving order:
// media, model text, then transcriptions.
func reshape(chunk Chunk) []live.ServerMessage {
	out := make([]live.ServerMessage, 0, len(chunk.Media)+len(chunk.Text)+2)
	for _, media := range chunk.Media {
		if len(media.Data) == 0 {
			continue
		}
		out = append(out, live.Audio{Data: media.Data, MIMEType: media.MIMEType})
	}
	for _, text := range chunk.Text {
		if text == "" {
			continue
		}
		out = append(out, live.Response{Text: text})
	}
	if chunk.InputTranscript != "" {
		out = append(out, live.Transcript{Role: live.RoleUser, Text: chunk.InputTranscript})
	}
	if chunk.OutputTranscript != "" {
		out = append(out, live.Transcript{Role: live.RoleAssistant, Text: chunk.OutputTranscript})
	}
	return out
}

func (l *loop) recordTurn(ctx context.Context, user, assistant string) {
	if l.recorder == nil {
		return
	}
	subjectID, name := l.state.Subject()
	metadata := map[string]any{
		"type":       "live_turn",
		"session_id": l.state.sessionID,
		"kind":       string(l.state.kind),
		"dog_name":   name,
	}
	if text := strings.TrimSpace(user); text != "" {
		l.recorder.Remember(ctx, subjectID, text, live.RoleUser, metadata)
	}
	if text := strings.TrimSpace(assistant); text != "" {
		l.recorder.Remember(ctx, subjectID, text, live.RoleAssistant, metadata)
	}
}
