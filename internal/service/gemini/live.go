package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"strings"

	"github.com/gorilla/websocket"
	"google.golang.org/genai"

	"github.com/petpal/health-backend/internal/model/session"
	"github.com/petpal/health-backend/internal/service/relay"
)

// LiveDialer opens Gemini Live sessions for the relay.
type LiveDialer struct {
	client      *Client
	instruction func(session.Kind) string
}

var _ relay.Dialer = (*LiveDialer)(nil)

// NewLiveDialer returns a dialer whose system instruction is chosen per session kind.
func NewLiveDialer(client *Client, instruction func(session.Kind) string) *LiveDialer {
	return &LiveDialer{client: client, instruction: instruction}
}

// Dial connects one live session. A dialer without a client always fails with
// ErrNotConfigured.
func (d *LiveDialer) Dial(ctx context.Context, kind session.Kind) (relay.Upstream, error) {
	if d.client == nil {
		return nil, ErrNotConfigured
	}

	var instruction string
	if d.instruction != nil {
		instruction = d.instruction(kind)
	}

	sess, err := d.client.genai.Live.Connect(ctx, d.client.liveModel, LiveConfig(instruction, d.client.voice))
	if err != nil {
		return nil, fmt.Errorf("connect live model %s: %w", d.client.liveModel, err)
	}

	log.Printf("[gemini] live session connected model=%s kind=%s", d.client.liveModel, kind)
	return &liveSession{session: sess}, nil
}

// LiveConfig builds the connect config: audio responses in the given prebuilt
// voice with both directions transcribed.
func LiveConfig(instruction, voice string) *genai.LiveConnectConfig {
	cfg := &genai.LiveConnectConfig{
		ResponseModalities:       []genai.Modality{genai.ModalityAudio},
		InputAudioTranscription:  &genai.AudioTranscriptionConfig{},
		OutputAudioTranscription: &genai.AudioTranscriptionConfig{},
	}
	if strings.TrimSpace(instruction) != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{genai.NewPartFromText(instruction)}}
	}
	if voice != "" {
		cfg.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
			},
		}
	}
	return cfg
}

type liveSession struct {
	session *genai.Session
}

func (s *liveSession) SendMedia(chunk relay.MediaChunk) error {
	blob := &genai.Blob{Data: chunk.Data, MIMEType: chunk.MIMEType}
	if strings.HasPrefix(chunk.MIMEType, "image/") {
		return s.session.SendRealtimeInput(genai.LiveRealtimeInput{Video: blob})
	}
	return s.session.SendRealtimeInput(genai.LiveRealtimeInput{Audio: blob})
}

func (s *liveSession) SendText(text string) error {
	return s.session.SendRealtimeInput(genai.LiveRealtimeInput{Text: text})
}

// Receive skips control messages that carry nothing for the client.
func (s *liveSession) Receive() (relay.Chunk, error) {
	for {
		msg, err := s.session.Receive()
		if err != nil {
			if isNormalClose(err) {
				return relay.Chunk{}, io.EOF
			}
			return relay.Chunk{}, err
		}
		if msg.GoAway != nil {
			log.Printf("[gemini] live session going away time_left=%s", msg.GoAway.TimeLeft)
		}

		chunk, ok := ConvertMessage(msg)
		if ok {
			return chunk, nil
		}
	}
}

func (s *liveSession) Close() error {
	return s.session.Close()
}

// isNormalClose also covers a connection closed locally, as CloseAll does on shutdown.
func isNormalClose(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}

// ConvertMessage maps a live server message to a relay chunk. ok is false when
// the message has no server content worth forwarding.
func ConvertMessage(msg *genai.LiveServerMessage) (relay.Chunk, bool) {
	if msg == nil || msg.ServerContent == nil {
		return relay.Chunk{}, false
	}
	content := msg.ServerContent

	var chunk relay.Chunk
	if content.ModelTurn != nil {
		for _, part := range content.ModelTurn.Parts {
			if part == nil || part.Thought {
				continue
			}
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				chunk.Media = append(chunk.Media, relay.MediaChunk{
					MIMEType: part.InlineData.MIMEType,
					Data:     part.InlineData.Data,
				})
			}
			if part.Text != "" {
				chunk.Text = append(chunk.Text, part.Text)
			}
		}
	}
	if content.InputTranscription != nil {
		chunk.InputTranscript = content.InputTranscription.Text
	}
	if content.OutputTranscription != nil {
		chunk.OutputTranscript = content.OutputTranscription.Text
	}
	chunk.TurnComplete = content.TurnComplete

	empty := len(chunk.Media) == 0 && len(chunk.Text) == 0 &&
		chunk.InputTranscript == "" && chunk.OutputTranscript == "" && !chunk.TurnComplete
	return chunk, !empty
}
