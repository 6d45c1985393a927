package status

import (
	"html/template"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/petpal/health-backend/internal/model/agent"
	sessionsvc "github.com/petpal/health-backend/internal/service/session"
	"github.com/petpal/health-backend/pkg/utils"
)

// Info is the static part of the status report, fixed at startup.
type Info struct {
	Service          string
	Version          string
	GeminiConfigured bool
	MemoryConfigured bool
	TextBackend      string
	Model            string
	LiveModel        string
}

// Report is the /health payload.
type Report struct {
	Status         string   `json:"status"`
	Service        string   `json:"service"`
	Version        string   `json:"version"`
	Agents         []string `json:"agents"`
	GoogleAPIKey   bool     `json:"google_api_key"`
	Mem0APIKey     bool     `json:"mem0_api_key"`
	TextBackend    string   `json:"text_backend,omitempty"`
	Model          string   `json:"model,omitempty"`
	LiveModel      string   `json:"live_model,omitempty"`
	ActiveSessions int      `json:"active_sessions"`
}

// Handler 服务状态处理器
type Handler struct {
	info     Info
	agents   agent.Store
	sessions *sessionsvc.Manager
}

// New 创建状态处理器
func New(info Info, agents agent.Store, sessions *sessionsvc.Manager) *Handler {
	return &Handler{info: info, agents: agents, sessions: sessions}
}

// RegisterRoutes 注册状态路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.handleHome)
	r.Get("/health", h.handleHealth)
}

// Report assembles the current status.
func (h *Handler) Report() Report {
	profiles := h.agents.List()
	ids := make([]string, 0, len(profiles))
	for _, p := range profiles {
		ids = append(ids, p.ID)
	}

	return Report{
		Status:         "ok",
		Service:        h.info.Service,
		Version:        h.info.Version,
		Agents:         ids,
		GoogleAPIKey:   h.info.GeminiConfigured,
		Mem0APIKey:     h.info.MemoryConfigured,
		TextBackend:    h.info.TextBackend,
		Model:          h.info.Model,
		LiveModel:      h.info.LiveModel,
		ActiveSessions: h.sessions.Len(),
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.Report())
}

func (h *Handler) handleHome(w http.ResponseWriter, r *http.Request) {
	data := struct {
		Report
		Profiles []agent.Profile
	}{h.Report(), h.agents.List()}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := homePage.Execute(w, data); err != nil {
		log.Printf("[status] render home page: %v", err)
	}
}

var homePage = template.Must(template.New("home").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>PetPal AI Backend</title>
    <style>
        body { font-family: system-ui; max-width: 800px; margin: 50px auto; padding: 20px; background: #1a1a2e; color: #eee; }
        h1 { color: #a855f7; }
        .status { padding: 8px 16px; border-radius: 8px; display: inline-block; margin: 4px 0; }
        .ok { background: #22c55e20; color: #22c55e; }
        .err { background: #ef444420; color: #ef4444; }
        .endpoint { background: #ffffff10; padding: 12px; margin: 8px 0; border-radius: 8px; font-family: monospace; }
    </style>
</head>
<body>
    <h1>PetPal AI Health Backend v{{.Version}}</h1>

    <h2>Status</h2>
    <p class="status {{if .GoogleAPIKey}}ok{{else}}err{{end}}">GOOGLE_API_KEY</p><br>
    <p class="status {{if .Mem0APIKey}}ok{{else}}err{{end}}">MEM0_API_KEY</p>
    <p>Text backend: {{if .TextBackend}}{{.TextBackend}} {{.Model}}{{else}}not configured{{end}}</p>
    <p>Live model: {{.LiveModel}}</p>
    <p>Active sessions: {{.ActiveSessions}}</p>

    <h2>Agents</h2>
    {{range .Profiles}}<p><strong>{{.ID}}</strong> - {{.Description}}</p>
    {{end}}
    <h2>WebSocket Endpoints</h2>
    <div class="endpoint">ws://host/ws/live</div>
    <div class="endpoint">ws://host/ws/voice/{session_id}</div>
    <div class="endpoint">ws://host/ws/video/{session_id}</div>
    <div class="endpoint">ws://host/ws/consultation</div>
    <div class="endpoint">ws://host/ws/prescription</div>
    <div class="endpoint">ws://host/ws/vaccination</div>

    <h2>REST Endpoints</h2>
    <div class="endpoint">GET /health</div>
    <div class="endpoint">GET /api/agents</div>
    <div class="endpoint">POST /health/text</div>
    <div class="endpoint">POST /health/text/stream</div>
</body>
</html>
`))
