package relay

import (
	"context"
	"log"

	"github.com/petpal/health-backend/internal/model/live"
	"github.com/petpal/health-backend/internal/model/session"
	sessionsvc "github.com/petpal/health-backend/internal/service/session"
)

// Relay opens upstream sessions for registered clients and keeps the registry
// in step with their lifetime.
type Relay struct {
	sessions *sessionsvc.Manager
	dialer   Dialer
	recorder Recorder
}

// New builds a relay. recorder may be nil.
func New(sessions *sessionsvc.Manager, dialer Dialer, recorder Recorder) *Relay {
	return &Relay{sessions: sessions, dialer: dialer, recorder: recorder}
}

// Sessions exposes the registry the relay keeps.
func (r *Relay) Sessions() *sessionsvc.Manager {
	return r.sessions
}

// Serve runs one relay session for a client whose session was already opened in
// the registry. The session is removed and the client closed before Serve
// returns, whatever the outcome.
func (r *Relay) Serve(ctx context.Context, sess session.Session, client Client) Outcome {
	defer r.sessions.Remove(sess.ID)

	upstream, err := r.dialer.Dial(ctx, sess.Kind)
	if err != nil {
		log.Printf("[relay] dial upstream failed session=%s kind=%s: %v", sess.ID, sess.Kind, err)
		_ = client.Send(ctx, live.Error{Message: "unable to start live session"})
		_ = client.Close()
		return Outcome{Reason: ReasonFailed, Err: err}
	}

	if err := r.sessions.Attach(sess.ID, upstream); err != nil {
		log.Printf("[relay] attach upstream failed session=%s: %v", sess.ID, err)
		_ = upstream.Close()
		_ = client.Send(ctx, live.Error{Message: "unable to start live session"})
		_ = client.Close()
		return Outcome{Reason: ReasonFailed, Err: err}
	}

	if err := client.Send(ctx, live.Ready{SessionID: sess.ID}); err != nil {
		_ = upstream.Close()
		_ = client.Close()
		return Outcome{Reason: ReasonClientClosed}
	}

	log.Printf("[relay] session started id=%s kind=%s", sess.ID, sess.Kind)
	outcome := Run(ctx, client, upstream, NewState(sess.ID, sess.Kind), Options{Recorder: r.recorder})
	if outcome.Err != nil {
		log.Printf("[relay] session ended id=%s reason=%s: %v", sess.ID, outcome.Reason, outcome.Err)
	} else {
		log.Printf("[relay] session ended id=%s reason=%s", sess.ID, outcome.Reason)
	}
	return outcome
}
