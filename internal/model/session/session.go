package session

import "time"

// Kind tags what a relay or request/response session is used for.
type Kind string

const (
	KindVoice        Kind = "voice"
	KindVideo        Kind = "video"
	KindLive         Kind = "live"
	KindConsultation Kind = "consultation"
	KindPrescription Kind = "prescription"
	KindVaccination  Kind = "vaccination"
)

// Streaming reports whether sessions of this kind own an upstream live connection.
func (k Kind) Streaming() bool {
	switch k {
	case KindVoice, KindVideo, KindLive:
		return true
	default:
		return false
	}
}

// Session captures one client connection for the lifetime of its socket.
type Session struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	CreatedAt time.Time `json:"createdAt"`
}
