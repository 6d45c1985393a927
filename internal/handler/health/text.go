package health

import (
	"errors"
	"log"
	"net/http"

	"github.com/petpal/health-backend/internal/model/pet"
	"github.com/petpal/health-backend/internal/service/ai"
	healthsvc "github.com/petpal/health-backend/internal/service/health"
	"github.com/petpal/health-backend/pkg/utils"
)

// textRequest is the legacy REST consultation body.
type textRequest struct {
	Message       string `json:"message"`
	DogName       string `json:"dog_name"`
	DogBreed      string `json:"dog_breed"`
	DogAge        string `json:"dog_age"`
	HealthContext struct {
		Allergies   []string `json:"allergies"`
		Medications []string `json:"medications"`
	} `json:"health_context"`
	MemoryContext string `json:"memory_context"`
}

func (r textRequest) toService() healthsvc.TextRequest {
	return healthsvc.TextRequest{
		Message: r.Message,
		Profile: pet.Profile{
			Name:        r.DogName,
			Breed:       r.DogBreed,
			Age:         r.DogAge,
			Allergies:   r.HealthContext.Allergies,
			Medications: r.HealthContext.Medications,
		},
		MemoryContext: r.MemoryContext,
	}
}

// StreamEvent is one SSE payload of the streaming text consultation.
type StreamEvent struct {
	Event     string `json:"event"`
	Content   string `json:"content,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Finished  bool   `json:"finished,omitempty"`
	Error     string `json:"error,omitempty"`
}

// handleText 处理一次性文本问诊
func (h *Handler) handleText(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	reply, err := h.svc.TextConsultation(r.Context(), req.toService())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, reply)
}

// handleTextStream 以SSE流式返回文本问诊结果
func (h *Handler) handleTextStream(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !h.svc.StreamingAvailable() {
		utils.RespondError(w, http.StatusServiceUnavailable, "ai streaming unavailable")
		return
	}
	// 空消息在写出SSE头之前拒绝
	in := req.toService()
	if err := healthsvc.ValidateText(in); err != nil {
		respondServiceError(w, err)
		return
	}

	sse, err := utils.NewSSEWriter(w)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	ctx := r.Context()
	sse.Event("start", StreamEvent{Event: "start"})

	reply, err := h.svc.StreamTextConsultation(ctx, in, func(delta string) error {
		return sse.Event("delta", StreamEvent{Event: "delta", Content: delta})
	})
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("[health] stream consultation failed: %v", err)
			sse.Event("error", StreamEvent{Event: "error", Error: err.Error()})
		}
		return
	}

	sse.Event("message", StreamEvent{Event: "message", Content: reply.Response, SessionID: reply.SessionID})
	sse.Event("end", StreamEvent{Event: "end", SessionID: reply.SessionID, Finished: true})
}

func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, healthsvc.ErrEmptyMessage):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ai.ErrUnavailable):
		utils.RespondError(w, http.StatusServiceUnavailable, "AI service not configured")
	default:
		log.Printf("[health] text consultation failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
	}
}
