// Package live exposes the realtime voice and video relay over WebSocket.
package live

import (
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/petpal/health-backend/internal/handler/wsconn"
	"github.com/petpal/health-backend/internal/model/session"
	"github.com/petpal/health-backend/internal/service/relay"
	sessionsvc "github.com/petpal/health-backend/internal/service/session"
	"github.com/petpal/health-backend/pkg/utils"
)

// Handler WebSocket 实时语音/视频中继处理器
type Handler struct {
	relay    *relay.Relay
	upgrader websocket.Upgrader
}

// New 创建中继处理器
func New(r *relay.Relay) *Handler {
	return &Handler{
		relay:    r,
		upgrader: wsconn.NewUpgrader(),
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/live", h.handleLive)
	r.Get("/ws/voice/{sessionID}", h.handleVoice)
	r.Get("/ws/video/{sessionID}", h.handleVideo)
}

func (h *Handler) handleLive(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "", session.KindLive, false)
}

func (h *Handler) handleVoice(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, chi.URLParam(r, "sessionID"), session.KindVoice, true)
}

func (h *Handler) handleVideo(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, chi.URLParam(r, "sessionID"), session.KindVideo, false)
}

// serve registers the session before the upgrade so a duplicate id is refused
// with a plain HTTP status.
func (h *Handler) serve(w http.ResponseWriter, r *http.Request, id string, kind session.Kind, binaryAudio bool) {
	sessions := h.relay.Sessions()

	sess, err := sessions.Open(id, kind)
	if err != nil {
		if errors.Is(err, sessionsvc.ErrSessionExists) {
			utils.RespondError(w, http.StatusConflict, err.Error())
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, "unable to open session")
		return
	}

	conn, err := wsconn.Upgrade(&h.upgrader, w, r, "live-ws")
	if err != nil {
		sessions.Remove(sess.ID)
		return
	}

	log.Printf("[live-ws] client connected session=%s kind=%s", sess.ID, kind)
	h.relay.Serve(r.Context(), sess, &wsClient{conn: conn, binaryAudio: binaryAudio})
}
