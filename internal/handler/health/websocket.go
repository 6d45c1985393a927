// Package health serves the consultation, prescription and vaccination
// WebSocket loops and the REST text consultation.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/petpal/health-backend/internal/handler/wsconn"
	"github.com/petpal/health-backend/internal/model/pet"
	"github.com/petpal/health-backend/internal/model/session"
	"github.com/petpal/health-backend/internal/service/ai"
	healthsvc "github.com/petpal/health-backend/internal/service/health"
	"github.com/petpal/health-backend/internal/service/memory"
	"github.com/petpal/health-backend/internal/service/prompt"
	sessionsvc "github.com/petpal/health-backend/internal/service/session"
	"github.com/petpal/health-backend/pkg/utils"
)

const (
	welcomeConsultation = "Welcome to PetPal Health! How can I help your furry friend today?"
	welcomePrescription = "Prescription management ready"
	welcomeVaccination  = "Vaccination tracking ready"
)

// Handler 健康咨询相关的处理器
type Handler struct {
	svc      *healthsvc.Service
	sessions *sessionsvc.Manager
	upgrader websocket.Upgrader
}

// New 创建健康处理器
func New(svc *healthsvc.Service, sessions *sessionsvc.Manager) *Handler {
	return &Handler{
		svc:      svc,
		sessions: sessions,
		upgrader: wsconn.NewUpgrader(),
	}
}

// RegisterRoutes 注册健康相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/health/text", h.handleText)
	r.Post("/health/text/stream", h.handleTextStream)

	r.Get("/ws/consultation", h.handleConsultation)
	r.Get("/ws/prescription", h.handlePrescription)
	r.Get("/ws/vaccination", h.handleVaccination)
}

type outbound map[string]any

func errorFrame(message string) outbound {
	return outbound{"type": "error", "message": message}
}

// frameHandler answers one JSON frame. Bad input is answered with an error
// frame; the loop only ends when the socket does.
type frameHandler func(ctx context.Context, sessionID string, raw []byte) outbound

type frame struct {
	messageType int
	data        []byte
}

// readFrames keeps reading while a frame is being answered, so pongs still
// refresh the read deadline. A failed read cancels ctx and closes the channel.
func readFrames(ctx context.Context, cancel context.CancelFunc, conn *wsconn.Conn) <-chan frame {
	frames := make(chan frame)
	go func() {
		defer close(frames)
		defer cancel()
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			select {
			case frames <- frame{messageType: mt, data: data}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return frames
}

// serveLoop runs the shared lifecycle: register, greet, answer frames in
// order, unregister on exit.
func (h *Handler) serveLoop(w http.ResponseWriter, r *http.Request, kind session.Kind, welcome string, handle frameHandler) {
	sess, err := h.sessions.Open("", kind)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "unable to open session")
		return
	}
	defer h.sessions.Remove(sess.ID)

	tag := fmt.Sprintf("%s-ws", kind)
	conn, err := wsconn.Upgrade(&h.upgrader, w, r, tag)
	if err != nil {
		return
	}
	defer conn.Close()

	log.Printf("[%s] session opened id=%s", tag, sess.ID)
	defer log.Printf("[%s] session closed id=%s", tag, sess.ID)

	if err := conn.WriteJSON(outbound{"type": "connected", "session_id": sess.ID, "message": welcome}); err != nil {
		return
	}

	// ctx ends with the socket so in-flight generation stops on disconnect.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	frames := readFrames(ctx, cancel, conn)

	for f := range frames {
		reply := errorFrame("invalid message: expected JSON text frame")
		if f.messageType == websocket.TextMessage && json.Valid(f.data) {
			reply = handle(ctx, sess.ID, f.data)
		}

		if err := conn.WriteJSON(reply); err != nil {
			log.Printf("[%s] write failed session=%s: %v", tag, sess.ID, err)
			return
		}
	}
}

type consultationFrame struct {
	Action         string `json:"action"`
	Mode           string `json:"mode"`
	Message        string `json:"message"`
	DogID          string `json:"dog_id"`
	ConsultationID string `json:"consultation_id"`
	DogName        string `json:"dog_name"`
	Breed          string `json:"breed"`
	Age            string `json:"age"`
	Weight         string `json:"weight"`

	// finish only
	Summary         string   `json:"summary"`
	Symptoms        []string `json:"symptoms"`
	Conditions      []string `json:"conditions"`
	Recommendations []string `json:"recommendations"`
}

func (h *Handler) handleConsultation(w http.ResponseWriter, r *http.Request) {
	h.serveLoop(w, r, session.KindConsultation, welcomeConsultation, h.consult)
}

func (h *Handler) consult(ctx context.Context, sessionID string, raw []byte) outbound {
	var in consultationFrame
	if err := json.Unmarshal(raw, &in); err != nil {
		return errorFrame("invalid message: " + err.Error())
	}

	consultationID := in.ConsultationID
	if consultationID == "" {
		consultationID = sessionID
	}

	if in.Action == "finish" {
		stored := h.svc.FinishConsultation(ctx, in.DogID, consultationID, memory.Findings{
			Summary:         in.Summary,
			Symptoms:        in.Symptoms,
			Conditions:      in.Conditions,
			Recommendations: in.Recommendations,
		})
		return outbound{"type": "response", "action": "findings_stored", "stored": stored}
	}

	reply, err := h.svc.Consult(ctx, healthsvc.ConsultRequest{
		Mode:           prompt.ParseMode(in.Mode),
		Message:        in.Message,
		ConsultationID: consultationID,
		Profile: pet.Profile{
			ID:     in.DogID,
			Name:   in.DogName,
			Breed:  in.Breed,
			Age:    in.Age,
			Weight: in.Weight,
		},
	})
	switch {
	case errors.Is(err, healthsvc.ErrEmptyMessage):
		return errorFrame("No message provided")
	case err != nil:
		log.Printf("[consultation-ws] generation failed session=%s: %v", sessionID, err)
		return errorFrame("AI error: " + err.Error())
	}

	return outbound{
		"type":     "response",
		"role":     "assistant",
		"text":     reply.Text,
		"audio":    nil,
		"entities": reply.Entities,
	}
}

type prescriptionFrame struct {
	Action     string `json:"action"`
	Medication string `json:"medication"`
	Dosage     string `json:"dosage"`
	Frequency  string `json:"frequency"`
	DogID      string `json:"dog_id"`
	DogName    string `json:"dog_name"`
}

func (h *Handler) handlePrescription(w http.ResponseWriter, r *http.Request) {
	h.serveLoop(w, r, session.KindPrescription, welcomePrescription, h.prescription)
}

func (h *Handler) prescription(ctx context.Context, _ string, raw []byte) outbound {
	var in prescriptionFrame
	if err := json.Unmarshal(raw, &in); err != nil {
		return errorFrame("invalid message: " + err.Error())
	}
	if in.Action == "" {
		in.Action = "list"
	}
	req := healthsvc.PrescriptionRequest{
		DogID:      in.DogID,
		DogName:    in.DogName,
		Medication: in.Medication,
		Dosage:     in.Dosage,
		Frequency:  in.Frequency,
	}

	switch in.Action {
	case "add":
		if _, err := h.svc.AddPrescription(ctx, req); err != nil {
			return errorFrame(err.Error())
		}
		return outbound{
			"type":       "response",
			"action":     "added",
			"medication": in.Medication,
			"message":    fmt.Sprintf("Added %s to %s's prescriptions", in.Medication, displayName(in.DogName)),
		}

	case "list":
		return outbound{
			"type":        "response",
			"action":      "list",
			"medications": h.svc.Prescriptions(ctx, in.DogID),
		}

	case "check_interaction":
		report, err := h.svc.CheckInteraction(ctx, req)
		switch {
		case errors.Is(err, healthsvc.ErrMissingMedication):
			return errorFrame(err.Error())
		case errors.Is(err, ai.ErrUnavailable):
			return errorFrame("Cannot check interactions - AI not configured")
		case err != nil:
			return errorFrame("AI error: " + err.Error())
		}
		return outbound{
			"type":              "response",
			"action":            "interaction_check",
			"medication":        report.Medication,
			"interactions":      report.Interactions,
			"verdict":           report.Verdict,
			"safe_to_prescribe": report.Safe,
		}
	}
	return errorFrame(fmt.Sprintf("unknown action %q", in.Action))
}

type vaccinationFrame struct {
	Action  string `json:"action"`
	Vaccine string `json:"vaccine"`
	Date    string `json:"date"`
	Vet     string `json:"vet"`
	DogID   string `json:"dog_id"`
	DogName string `json:"dog_name"`
	Breed   string `json:"breed"`
	Age     string `json:"age"`
}

func (h *Handler) handleVaccination(w http.ResponseWriter, r *http.Request) {
	h.serveLoop(w, r, session.KindVaccination, welcomeVaccination, h.vaccination)
}

func (h *Handler) vaccination(ctx context.Context, _ string, raw []byte) outbound {
	var in vaccinationFrame
	if err := json.Unmarshal(raw, &in); err != nil {
		return errorFrame("invalid message: " + err.Error())
	}
	if in.Action == "" {
		in.Action = "list"
	}
	req := healthsvc.VaccinationRequest{
		Profile: pet.Profile{ID: in.DogID, Name: in.DogName, Breed: in.Breed, Age: in.Age},
		Vaccine: in.Vaccine,
		Date:    in.Date,
		Vet:     in.Vet,
	}

	switch in.Action {
	case "add":
		if _, err := h.svc.AddVaccination(ctx, req); err != nil {
			return errorFrame(err.Error())
		}
		return outbound{
			"type":    "response",
			"action":  "added",
			"vaccine": in.Vaccine,
			"date":    in.Date,
			"message": fmt.Sprintf("Recorded %s vaccination for %s", in.Vaccine, displayName(in.DogName)),
		}

	case "list":
		return outbound{
			"type":         "response",
			"action":       "list",
			"vaccinations": h.svc.Vaccinations(ctx, in.DogID),
		}

	case "booster_due":
		schedule, err := h.svc.BoosterSchedule(ctx, req)
		switch {
		case errors.Is(err, ai.ErrUnavailable):
			return errorFrame("Cannot calculate boosters - AI not configured")
		case err != nil:
			return errorFrame("AI error: " + err.Error())
		}
		return outbound{
			"type":     "response",
			"action":   "booster_schedule",
			"schedule": schedule,
		}
	}
	return errorFrame(fmt.Sprintf("unknown action %q", in.Action))
}

func displayName(name string) string {
	return pet.Profile{Name: name}.WithDefaults().Name
}
