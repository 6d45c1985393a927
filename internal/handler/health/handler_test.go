package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/petpal/health-backend/internal/model/agent"
	healthsvc "github.com/petpal/health-backend/internal/service/health"
	"github.com/petpal/health-backend/internal/service/memory"
	sessionsvc "github.com/petpal/health-backend/internal/service/session"
)

type stubGenerator struct {
	available bool
	reply     string
}

func (g stubGenerator) Available() bool { return g.available }

func (g stubGenerator) Generate(context.Context, string, string) (string, error) {
	return g.reply, nil
}

func (g stubGenerator) Stream(_ context.Context, _, _ string, onDelta func(string) error) (string, error) {
	for _, part := range strings.SplitAfter(g.reply, " ") {
		if err := onDelta(part); err != nil {
			return "", err
		}
	}
	return g.reply, nil
}

// blockingGenerator holds Generate until its context ends.
type blockingGenerator struct {
	started   chan struct{}
	cancelled chan struct{}
}

func (g *blockingGenerator) Available() bool { return true }

func (g *blockingGenerator) Generate(ctx context.Context, _, _ string) (string, error) {
	close(g.started)
	<-ctx.Done()
	close(g.cancelled)
	return "", ctx.Err()
}

func (g *blockingGenerator) Stream(ctx context.Context, _, _ string, _ func(string) error) (string, error) {
	return "", ctx.Err()
}

type stubMemory struct {
	mu   sync.Mutex
	meds []string
}

func (m *stubMemory) Remember(context.Context, string, string, string, map[string]any) bool {
	return true
}

func (m *stubMemory) HealthContext(context.Context, string, string) string { return "" }

func (m *stubMemory) StoreFindings(context.Context, string, string, memory.Findings) bool {
	return true
}

func (m *stubMemory) AddMedication(_ context.Context, _, medication, dosage, _ string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.meds = append(m.meds, "Medication prescribed: "+medication+" "+dosage)
	return true
}

func (m *stubMemory) AddVaccination(context.Context, string, string, string, string) bool {
	return true
}

func (m *stubMemory) Medications(context.Context, string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.meds...)
}

func (m *stubMemory) Vaccinations(context.Context, string) []string { return nil }

func newRouter(gen healthsvc.Generator) (http.Handler, *sessionsvc.Manager) {
	sessions := sessionsvc.NewManager()
	svc := healthsvc.NewService(gen, &stubMemory{}, agent.NewMemoryStore(agent.Seed()))

	r := chi.NewRouter()
	New(svc, sessions).RegisterRoutes(r)
	return r, sessions
}

func TestTextConsultation(t *testing.T) {
	router, _ := newRouter(stubGenerator{available: true, reply: "Keep Rex hydrated."})

	body := `{"message":"Rex is panting","dog_name":"Rex","health_context":{"allergies":["chicken"]}}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/health/text", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}

	var reply healthsvc.TextReply
	if err := json.NewDecoder(rec.Body).Decode(&reply); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if reply.Response != "Keep Rex hydrated." || reply.SessionID == "" {
		t.Fatalf("unexpected reply %+v", reply)
	}
}

func TestTextConsultationErrors(t *testing.T) {
	cases := []struct {
		name   string
		gen    stubGenerator
		body   string
		status int
	}{
		{"bad json", stubGenerator{available: true}, "{", http.StatusBadRequest},
		{"empty message", stubGenerator{available: true}, `{"message":""}`, http.StatusBadRequest},
		{"unconfigured", stubGenerator{}, `{"message":"hi"}`, http.StatusServiceUnavailable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router, _ := newRouter(tc.gen)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/health/text", strings.NewReader(tc.body)))
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rec.Code)
			}
		})
	}
}

func TestTextStream(t *testing.T) {
	router, _ := newRouter(stubGenerator{available: true, reply: "Call your vet."})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/health/text/stream", strings.NewReader(`{"message":"limping"}`)))

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	out := rec.Body.String()
	for _, event := range []string{"event: start\n", "event: delta\n", "event: message\n", "event: end\n"} {
		if !strings.Contains(out, event) {
			t.Fatalf("missing %q in stream:\n%s", event, out)
		}
	}
	if strings.Count(out, "event: delta\n") != 3 {
		t.Fatalf("expected one delta per word:\n%s", out)
	}
}

func TestTextStreamRejectsEmptyMessage(t *testing.T) {
	router, _ := newRouter(stubGenerator{available: true})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/health/text/stream", strings.NewReader(`{"message":" "}`)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", rec.Code)
	}
}

func dialWS(t *testing.T, router http.Handler, path string) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+path, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func roundTrip(t *testing.T, conn *websocket.Conn, msg any) map[string]any {
	t.Helper()

	if raw, ok := msg.(string); ok {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
			t.Fatalf("write: %v", err)
		}
	} else if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write: %v", err)
	}
	return readJSON(t, conn)
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame map[string]any
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read: %v", err)
	}
	return frame
}

func waitEmpty(t *testing.T, sessions *sessionsvc.Manager) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for sessions.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("sessions still registered: %d", sessions.Len())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestConsultationSocket(t *testing.T) {
	router, sessions := newRouter(stubGenerator{available: true, reply: "Chocolate is toxic."})
	conn := dialWS(t, router, "/ws/consultation")

	hello := readJSON(t, conn)
	if hello["type"] != "connected" || hello["session_id"] == "" {
		t.Fatalf("unexpected greeting %v", hello)
	}
	if sessions.Len() != 1 {
		t.Fatalf("expected registered session, got %d", sessions.Len())
	}

	reply := roundTrip(t, conn, map[string]string{"message": "Rex ate chocolate", "mode": "emergency", "dog_name": "Rex"})
	if reply["type"] != "response" || reply["text"] != "Chocolate is toxic." || reply["role"] != "assistant" {
		t.Fatalf("unexpected reply %v", reply)
	}
	found, ok := reply["entities"].(map[string]any)
	if !ok {
		t.Fatalf("missing entities %v", reply)
	}
	if conditions, _ := found["conditions"].([]any); len(conditions) != 1 || conditions[0] != "poisoning" {
		t.Fatalf("unexpected entities %v", found)
	}
	if symptoms, ok := found["symptoms"].([]any); !ok || len(symptoms) != 0 {
		t.Fatalf("symptoms should be an empty list, got %v", found)
	}

	empty := roundTrip(t, conn, map[string]string{"message": ""})
	if empty["type"] != "error" || empty["message"] != "No message provided" {
		t.Fatalf("unexpected empty reply %v", empty)
	}

	finished := roundTrip(t, conn, map[string]any{"action": "finish", "summary": "Chocolate ingestion", "symptoms": []string{"vomiting"}})
	if finished["action"] != "findings_stored" || finished["stored"] != true {
		t.Fatalf("unexpected finish reply %v", finished)
	}

	garbage := roundTrip(t, conn, "not json")
	if garbage["type"] != "error" {
		t.Fatalf("expected error for invalid frame, got %v", garbage)
	}

	conn.Close()
	waitEmpty(t, sessions)
}

func TestConsultationSocketWithoutGenerator(t *testing.T) {
	router, _ := newRouter(stubGenerator{})
	conn := dialWS(t, router, "/ws/consultation")
	readJSON(t, conn)

	reply := roundTrip(t, conn, map[string]string{"message": "hello"})
	if reply["text"] != healthsvc.FallbackReply {
		t.Fatalf("expected fallback text, got %v", reply)
	}
}

func TestPrescriptionSocket(t *testing.T) {
	router, sessions := newRouter(stubGenerator{available: true, reply: "CAUTION: monitor kidney values."})
	conn := dialWS(t, router, "/ws/prescription")
	readJSON(t, conn)

	added := roundTrip(t, conn, map[string]string{"action": "add", "medication": "Carprofen", "dosage": "75mg", "dog_name": "Rex"})
	if added["action"] != "added" || added["message"] != "Added Carprofen to Rex's prescriptions" {
		t.Fatalf("unexpected add reply %v", added)
	}

	list := roundTrip(t, conn, map[string]string{"action": "list"})
	meds, _ := list["medications"].([]any)
	if len(meds) != 1 {
		t.Fatalf("unexpected list reply %v", list)
	}

	check := roundTrip(t, conn, map[string]string{"action": "check_interaction", "medication": "Meloxicam"})
	if check["action"] != "interaction_check" || check["safe_to_prescribe"] != false || check["verdict"] != "CAUTION" {
		t.Fatalf("unexpected interaction reply %v", check)
	}

	unknown := roundTrip(t, conn, map[string]string{"action": "refill"})
	if unknown["type"] != "error" {
		t.Fatalf("expected error for unknown action, got %v", unknown)
	}

	conn.Close()
	waitEmpty(t, sessions)
}

func TestVaccinationSocket(t *testing.T) {
	router, _ := newRouter(stubGenerator{})
	conn := dialWS(t, router, "/ws/vaccination")

	hello := readJSON(t, conn)
	if hello["message"] != welcomeVaccination {
		t.Fatalf("unexpected greeting %v", hello)
	}

	added := roundTrip(t, conn, map[string]string{"action": "add", "vaccine": "Rabies", "date": "2024-05-01"})
	if added["message"] != "Recorded Rabies vaccination for Your dog" {
		t.Fatalf("unexpected add reply %v", added)
	}

	list := roundTrip(t, conn, map[string]string{})
	if list["action"] != "list" {
		t.Fatalf("empty action should list, got %v", list)
	}
	if vax, ok := list["vaccinations"].([]any); !ok || len(vax) != 0 {
		t.Fatalf("expected empty vaccination list, got %v", list)
	}

	booster := roundTrip(t, conn, map[string]string{"action": "booster_due"})
	if booster["type"] != "error" || booster["message"] != "Cannot calculate boosters - AI not configured" {
		t.Fatalf("unexpected booster reply %v", booster)
	}
}

func TestConsultationSocketCancelsGenerationOnDisconnect(t *testing.T) {
	gen := &blockingGenerator{started: make(chan struct{}), cancelled: make(chan struct{})}
	router, sessions := newRouter(gen)
	conn := dialWS(t, router, "/ws/consultation")
	readJSON(t, conn)

	if err := conn.WriteJSON(map[string]string{"message": "Rex is limping"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case <-gen.started:
	case <-time.After(2 * time.Second):
		t.Fatal("generation never started")
	}

	conn.Close()

	select {
	case <-gen.cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("generation kept running after the client left")
	}
	waitEmpty(t, sessions)
}
