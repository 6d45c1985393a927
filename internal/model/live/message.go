package live

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MIME types attached to media forwarded upstream.
const (
	MIMEAudioPCM = "audio/pcm"
	MIMEImageJPG = "image/jpeg"
)

// ErrMalformed marks a client frame that can be rejected without ending the session.
var ErrMalformed = errors.New("malformed client message")

// DecodeError reports a payload that could not be decoded from its transport
// encoding. It ends the session.
type DecodeError struct {
	Type string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s payload: %v", e.Type, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ClientKind is the wire tag of an inbound frame.
type ClientKind string

const (
	ClientAudio  ClientKind = "audio"
	ClientVideo  ClientKind = "video_frame"
	ClientText   ClientKind = "text"
	ClientConfig ClientKind = "config"
	ClientStop   ClientKind = "stop"
)

// ClientMessage is one inbound frame. The concrete type is one of AudioChunk,
// VideoFrame, TextInput, ConfigUpdate or Stop.
type ClientMessage interface {
	Kind() ClientKind
}

// AudioChunk carries decoded PCM audio.
type AudioChunk struct {
	Data []byte
}

// VideoFrame carries one decoded JPEG frame.
type VideoFrame struct {
	Data []byte
}

// TextInput is typed user text.
type TextInput struct {
	Text string
}

// ConfigUpdate changes session-local fields. Nil fields are left untouched.
type ConfigUpdate struct {
	DogName *string
	DogID   *string
}

// Stop asks the relay to end the session.
type Stop struct{}

func (AudioChunk) Kind() ClientKind   { return ClientAudio }
func (VideoFrame) Kind() ClientKind   { return ClientVideo }
func (TextInput) Kind() ClientKind    { return ClientText }
func (ConfigUpdate) Kind() ClientKind { return ClientConfig }
func (Stop) Kind() ClientKind         { return ClientStop }

type inboundFrame struct {
	Type    string  `json:"type"`
	Data    string  `json:"data"`
	Text    string  `json:"text"`
	DogName *string `json:"dog_name"`
	DogID   *string `json:"dog_id"`
}

// DecodeClient parses a JSON text frame. Envelope problems wrap ErrMalformed;
// bad base64 payloads return a *DecodeError.
func DecodeClient(raw []byte) (ClientMessage, error) {
	var frame inboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch ClientKind(strings.ToLower(strings.TrimSpace(frame.Type))) {
	case ClientAudio:
		data, err := decodePayload(frame.Type, frame.Data)
		if err != nil {
			return nil, err
		}
		return AudioChunk{Data: data}, nil
	case ClientVideo, "video":
		data, err := decodePayload(frame.Type, frame.Data)
		if err != nil {
			return nil, err
		}
		return VideoFrame{Data: data}, nil
	case ClientText:
		text := frame.Text
		if text == "" {
			text = frame.Data
		}
		if strings.TrimSpace(text) == "" {
			return nil, fmt.Errorf("%w: empty text", ErrMalformed)
		}
		return TextInput{Text: text}, nil
	case ClientConfig:
		return ConfigUpdate{DogName: frame.DogName, DogID: frame.DogID}, nil
	case ClientStop:
		return Stop{}, nil
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	default:
		return nil, fmt.Errorf("%w: unsupported type %q", ErrMalformed, frame.Type)
	}
}

func decodePayload(kind, data string) ([]byte, error) {
	if data == "" {
		return nil, fmt.Errorf("%w: empty %s payload", ErrMalformed, kind)
	}
	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, &DecodeError{Type: kind, Err: err}
	}
	return decoded, nil
}

// ServerKind is the wire tag of an outbound frame.
type ServerKind string

const (
	ServerReady      ServerKind = "ready"
	ServerAudio      ServerKind = "audio"
	ServerTranscript ServerKind = "transcript"
	ServerResponse   ServerKind = "response"
	ServerError      ServerKind = "error"
)

// Transcript roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ServerMessage is one outbound frame. The concrete type is one of Ready,
// Audio, Transcript, Response or Error.
type ServerMessage interface {
	Kind() ServerKind
}

// Ready tells the client the upstream session is open.
type Ready struct {
	SessionID string
}

// Audio carries raw model audio; it is base64 encoded on JSON frames.
type Audio struct {
	Data     []byte
	MIMEType string
}

// Transcript is recognised speech of either side.
type Transcript struct {
	Role string
	Text string
}

// Response is model text output.
type Response struct {
	Text string
}

// Error is the only error surface exposed to clients.
type Error struct {
	Message string
}

func (Ready) Kind() ServerKind      { return ServerReady }
func (Audio) Kind() ServerKind      { return ServerAudio }
func (Transcript) Kind() ServerKind { return ServerTranscript }
func (Response) Kind() ServerKind   { return ServerResponse }
func (Error) Kind() ServerKind      { return ServerError }

type outboundFrame struct {
	Type      ServerKind `json:"type"`
	SessionID string     `json:"session_id,omitempty"`
	Data      string     `json:"data,omitempty"`
	MIMEType  string     `json:"mime_type,omitempty"`
	Role      string     `json:"role,omitempty"`
	Text      string     `json:"text,omitempty"`
	Message   string     `json:"message,omitempty"`
}

// EncodeServer renders an outbound message as a JSON text frame.
func EncodeServer(msg ServerMessage) ([]byte, error) {
	var frame outboundFrame
	switch m := msg.(type) {
	case Ready:
		frame = outboundFrame{Type: ServerReady, SessionID: m.SessionID}
	case Audio:
		frame = outboundFrame{Type: ServerAudio, Data: base64.StdEncoding.EncodeToString(m.Data), MIMEType: m.MIMEType}
	case Transcript:
		frame = outboundFrame{Type: ServerTranscript, Role: m.Role, Text: m.Text}
	case Response:
		frame = outboundFrame{Type: ServerResponse, Role: RoleAssistant, Text: m.Text}
	case Error:
		frame = outboundFrame{Type: ServerError, Message: m.Message}
	default:
		return nil, fmt.Errorf("unsupported server message %T", msg)
	}
	return json.Marshal(frame)
}
