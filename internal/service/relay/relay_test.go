package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petpal/health-backend/internal/model/live"
	"github.com/petpal/health-backend/internal/model/session"
	sessionsvc "github.com/petpal/health-backend/internal/service/session"
)

var errConnClosed = errors.New("use of closed connection")

type readResult struct {
	msg live.ClientMessage
	err error
}

type fakeClient struct {
	inbound chan readResult
	done    chan struct{}
	once    sync.Once

	mu   sync.Mutex
	sent []live.ServerMessage
}

func newFakeClient(items ...readResult) *fakeClient {
	c := &fakeClient{
		inbound: make(chan readResult, len(items)),
		done:    make(chan struct{}),
	}
	for _, item := range items {
		c.inbound <- item
	}
	return c
}

func (c *fakeClient) Read(ctx context.Context) (live.ClientMessage, error) {
	select {
	case item := <-c.inbound:
		return item.msg, item.err
	case <-c.done:
		return nil, errConnClosed
	}
}

func (c *fakeClient) Send(_ context.Context, msg live.ServerMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return nil
}

func (c *fakeClient) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *fakeClient) messages() []live.ServerMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]live.ServerMessage(nil), c.sent...)
}

func (c *fakeClient) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

type receiveResult struct {
	chunk Chunk
	err   error
}

type fakeUpstream struct {
	receive chan receiveResult
	done    chan struct{}
	once    sync.Once
	sendErr error

	mu    sync.Mutex
	media []MediaChunk
	texts []string
}

func newFakeUpstream(items ...receiveResult) *fakeUpstream {
	u := &fakeUpstream{
		receive: make(chan receiveResult, len(items)),
		done:    make(chan struct{}),
	}
	for _, item := range items {
		u.receive <- item
	}
	return u
}

func (u *fakeUpstream) SendMedia(chunk MediaChunk) error {
	if u.sendErr != nil {
		return u.sendErr
	}
	u.mu.Lock()
	u.media = append(u.media, chunk)
	u.mu.Unlock()
	return nil
}

func (u *fakeUpstream) SendText(text string) error {
	if u.sendErr != nil {
		return u.sendErr
	}
	u.mu.Lock()
	u.texts = append(u.texts, text)
	u.mu.Unlock()
	return nil
}

func (u *fakeUpstream) Receive() (Chunk, error) {
	select {
	case item := <-u.receive:
		return item.chunk, item.err
	case <-u.done:
		return Chunk{}, errConnClosed
	}
}

func (u *fakeUpstream) Close() error {
	u.once.Do(func() { close(u.done) })
	return nil
}

func (u *fakeUpstream) closed() bool {
	select {
	case <-u.done:
		return true
	default:
		return false
	}
}

type fakeDialer struct {
	upstream *fakeUpstream
	err      error
	kinds    []session.Kind
}

func (d *fakeDialer) Dial(_ context.Context, kind session.Kind) (Upstream, error) {
	d.kinds = append(d.kinds, kind)
	if d.err != nil {
		return nil, d.err
	}
	return d.upstream, nil
}

type recorded struct {
	subjectID string
	message   string
	role      string
	metadata  map[string]any
}

type fakeRecorder struct {
	mu      sync.Mutex
	entries []recorded
}

func (r *fakeRecorder) Remember(_ context.Context, subjectID, message, role string, metadata map[string]any) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, recorded{subjectID: subjectID, message: message, role: role, metadata: metadata})
	return true
}

func runWithTimeout(t *testing.T, client Client, upstream Upstream, state *State, opts Options) Outcome {
	t.Helper()
	done := make(chan Outcome, 1)
	go func() {
		done <- Run(context.Background(), client, upstream, state, opts)
	}()
	select {
	case outcome := <-done:
		return outcome
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not finish")
		return Outcome{}
	}
}

func TestRunForwardsAudioAsRawBytes(t *testing.T) {
	client := newFakeClient(
		readResult{msg: live.AudioChunk{Data: []byte{0x01, 0x02}}},
		readResult{msg: live.Stop{}},
	)
	upstream := newFakeUpstream()

	outcome := runWithTimeout(t, client, upstream, NewState("s1", session.KindLive), Options{})

	assert.Equal(t, ReasonStopped, outcome.Reason)
	require.Len(t, upstream.media, 1)
	assert.Equal(t, MediaChunk{MIMEType: live.MIMEAudioPCM, Data: []byte{0x01, 0x02}}, upstream.media[0])
	assert.True(t, upstream.closed())
	assert.True(t, client.closed())
}

func TestRunForwardsVideoAndText(t *testing.T) {
	client := newFakeClient(
		readResult{msg: live.VideoFrame{Data: []byte("jpeg")}},
		readResult{msg: live.TextInput{Text: "is he limping?"}},
		readResult{msg: live.Stop{}},
	)
	upstream := newFakeUpstream()

	outcome := runWithTimeout(t, client, upstream, NewState("s1", session.KindVideo), Options{})

	assert.Equal(t, ReasonStopped, outcome.Reason)
	require.Len(t, upstream.media, 1)
	assert.Equal(t, live.MIMEImageJPG, upstream.media[0].MIMEType)
	assert.Equal(t, []string{"is he limping?"}, upstream.texts)
}

func TestRunClientDisconnectClosesUpstream(t *testing.T) {
	client := newFakeClient(readResult{err: io.ErrUnexpectedEOF})
	upstream := newFakeUpstream()

	outcome := runWithTimeout(t, client, upstream, NewState("s1", session.KindVoice), Options{})

	assert.Equal(t, ReasonClientClosed, outcome.Reason)
	assert.NoError(t, outcome.Err)
	assert.True(t, upstream.closed())
	assert.Empty(t, client.messages())
}

func TestRunUpstreamFailureNotifiesClient(t *testing.T) {
	client := newFakeClient()
	upstream := newFakeUpstream(receiveResult{err: errors.New("quota exceeded")})

	outcome := runWithTimeout(t, client, upstream, NewState("s1", session.KindLive), Options{})

	assert.Equal(t, ReasonFailed, outcome.Reason)
	require.Error(t, outcome.Err)
	msgs := client.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, live.Error{Message: "live session failed"}, msgs[0])
	assert.True(t, client.closed())
}

func TestRunUpstreamEOFEndsQuietly(t *testing.T) {
	client := newFakeClient()
	upstream := newFakeUpstream(receiveResult{err: io.EOF})

	outcome := runWithTimeout(t, client, upstream, NewState("s1", session.KindLive), Options{})

	assert.Equal(t, ReasonUpstreamClosed, outcome.Reason)
	assert.Empty(t, client.messages())
	assert.True(t, client.closed())
}

func TestRunMalformedMessageIsRecoverable(t *testing.T) {
	client := newFakeClient(
		readResult{err: fmt.Errorf("%w: unsupported type %q", live.ErrMalformed, "hologram")},
		readResult{msg: live.TextInput{Text: "still here"}},
		readResult{msg: live.Stop{}},
	)
	upstream := newFakeUpstream()

	outcome := runWithTimeout(t, client, upstream, NewState("s1", session.KindLive), Options{})

	assert.Equal(t, ReasonStopped, outcome.Reason)
	assert.Equal(t, []string{"still here"}, upstream.texts)
	msgs := client.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, live.Error{Message: "invalid message"}, msgs[0])
}

func TestRunBadPayloadEndsSession(t *testing.T) {
	client := newFakeClient(
		readResult{err: &live.DecodeError{Type: "audio", Err: errors.New("illegal base64 data")}},
		readResult{msg: live.TextInput{Text: "never forwarded"}},
	)
	upstream := newFakeUpstream()

	outcome := runWithTimeout(t, client, upstream, NewState("s1", session.KindLive), Options{})

	assert.Equal(t, ReasonFailed, outcome.Reason)
	assert.Empty(t, upstream.texts)
	assert.Equal(t, []live.ServerMessage{live.Error{Message: "live session failed"}}, client.messages())
}

func TestRunUpstreamSendFailureIsFatal(t *testing.T) {
	client := newFakeClient(readResult{msg: live.AudioChunk{Data: []byte{0x01}}})
	upstream := newFakeUpstream()
	upstream.sendErr = errors.New("broken pipe")

	outcome := runWithTimeout(t, client, upstream, NewState("s1", session.KindVoice), Options{})

	assert.Equal(t, ReasonFailed, outcome.Reason)
	assert.ErrorContains(t, outcome.Err, "forward audio")
}

func TestRunReshapesUpstreamChunks(t *testing.T) {
	client := newFakeClient()
	upstream := newFakeUpstream(
		receiveResult{chunk: Chunk{
			Media:           []MediaChunk{{MIMEType: "audio/pcm;rate=24000", Data: []byte{0x09}}},
			InputTranscript: "can he eat grapes",
		}},
		receiveResult{chunk: Chunk{Text: []string{"No, grapes are toxic."}}},
		receiveResult{chunk: Chunk{OutputTranscript: "No.", TurnComplete: true}},
		receiveResult{err: io.EOF},
	)

	outcome := runWithTimeout(t, client, upstream, NewState("s1", session.KindLive), Options{})

	assert.Equal(t, ReasonUpstreamClosed, outcome.Reason)
	assert.Equal(t, []live.ServerMessage{
		live.Audio{Data: []byte{0x09}, MIMEType: "audio/pcm;rate=24000"},
		live.Transcript{Role: live.RoleUser, Text: "can he eat grapes"},
		live.Response{Text: "No, grapes are toxic."},
		live.Transcript{Role: live.RoleAssistant, Text: "No."},
	}, client.messages())
}

func TestRunRecordsCompletedTurns(t *testing.T) {
	state := NewState("s1", session.KindVoice)
	name, id := "Rex", "dog-7"
	state.apply(live.ConfigUpdate{DogName: &name, DogID: &id})

	client := newFakeClient()
	upstream := newFakeUpstream(
		receiveResult{chunk: Chunk{InputTranscript: "he threw up "}},
		receiveResult{chunk: Chunk{InputTranscript: "twice"}},
		receiveResult{chunk: Chunk{OutputTranscript: "Keep him hydrated.", TurnComplete: true}},
		receiveResult{err: io.EOF},
	)
	recorder := &fakeRecorder{}

	runWithTimeout(t, client, upstream, state, Options{Recorder: recorder})

	require.Len(t, recorder.entries, 2)
	assert.Equal(t, "dog-7", recorder.entries[0].subjectID)
	assert.Equal(t, "he threw up twice", recorder.entries[0].message)
	assert.Equal(t, live.RoleUser, recorder.entries[0].role)
	assert.Equal(t, "Keep him hydrated.", recorder.entries[1].message)
	assert.Equal(t, live.RoleAssistant, recorder.entries[1].role)
	assert.Equal(t, "Rex", recorder.entries[1].metadata["dog_name"])
}

func TestStateApplyKeepsUnsetFields(t *testing.T) {
	state := NewState("s1", session.KindLive)
	name := "Bella"
	state.apply(live.ConfigUpdate{DogName: &name})

	id, got := state.Subject()
	assert.Equal(t, "Bella", got)
	assert.Equal(t, "default", id)

	blank := "  "
	state.apply(live.ConfigUpdate{DogName: &blank})
	_, got = state.Subject()
	assert.Equal(t, "Your dog", got)
}

func TestServeSendsReadyAndUnregisters(t *testing.T) {
	sessions := sessionsvc.NewManager()
	sess, err := sessions.Open("", session.KindLive)
	require.NoError(t, err)

	upstream := newFakeUpstream()
	dialer := &fakeDialer{upstream: upstream}
	client := newFakeClient(readResult{msg: live.Stop{}})

	outcome := New(sessions, dialer, nil).Serve(context.Background(), sess, client)

	assert.Equal(t, ReasonStopped, outcome.Reason)
	assert.Equal(t, []session.Kind{session.KindLive}, dialer.kinds)
	msgs := client.messages()
	require.NotEmpty(t, msgs)
	assert.Equal(t, live.Ready{SessionID: sess.ID}, msgs[0])
	assert.Equal(t, 0, sessions.Len())
	assert.True(t, upstream.closed())
}

func TestServeDialFailure(t *testing.T) {
	sessions := sessionsvc.NewManager()
	sess, err := sessions.Open("abc", session.KindVoice)
	require.NoError(t, err)

	client := newFakeClient()
	outcome := New(sessions, &fakeDialer{err: errors.New("no key")}, nil).Serve(context.Background(), sess, client)

	assert.Equal(t, ReasonFailed, outcome.Reason)
	assert.Equal(t, []live.ServerMessage{live.Error{Message: "unable to start live session"}}, client.messages())
	assert.True(t, client.closed())
	assert.Equal(t, 0, sessions.Len())
}
