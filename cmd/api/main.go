package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/petpal/health-backend/internal/config"
	"github.com/petpal/health-backend/internal/handler"
	"github.com/petpal/health-backend/internal/handler/status"
	"github.com/petpal/health-backend/internal/model/agent"
	"github.com/petpal/health-backend/internal/service/ai"
	"github.com/petpal/health-backend/internal/service/gemini"
	"github.com/petpal/health-backend/internal/service/health"
	"github.com/petpal/health-backend/internal/service/memory"
	"github.com/petpal/health-backend/internal/service/prompt"
	"github.com/petpal/health-backend/internal/service/relay"
	"github.com/petpal/health-backend/internal/service/session"
)

const (
	serviceName    = "petpal-health-backend"
	serviceVersion = "2.0.0"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// Gemini client backs both text generation and the live relay
	var geminiClient *gemini.Client
	var textBackend ai.Generator
	if cfg.Gemini.Enabled() {
		geminiClient, err = gemini.New(ctx, cfg.Gemini)
		if err != nil {
			log.Printf("warning: failed to initialize Gemini client: %v", err)
		} else {
			textBackend = geminiClient
			log.Printf("Gemini client initialized model=%s live=%s", geminiClient.Model(), geminiClient.LiveModel())
		}
	} else {
		log.Println("GOOGLE_API_KEY 未配置，跳过 Gemini 初始化")
	}

	aiService, err := ai.NewService(ctx, cfg.AI, textBackend)
	if err != nil {
		log.Printf("warning: failed to initialize AI service: %v", err)
		log.Println("continuing without text generation - 请检查 Ark 模型相关环境变量")
		aiService, _ = ai.NewService(ctx, config.AIConfig{}, textBackend)
	}

	memoryGateway := memory.NewGateway(cfg.Memory, nil)
	if memoryGateway.Enabled() {
		log.Println("Mem0 memory gateway enabled")
	} else {
		log.Println("MEM0_API_KEY 未配置，记忆功能关闭")
	}

	agentStore := agent.NewMemoryStore(agent.Seed())
	healthService := health.NewService(aiService, memoryGateway, agentStore)

	sessions := session.NewManager()
	dialer := gemini.NewLiveDialer(geminiClient, prompt.LiveInstruction)
	liveRelay := relay.New(sessions, dialer, memoryGateway)

	info := status.Info{
		Service:          serviceName,
		Version:          serviceVersion,
		GeminiConfigured: geminiClient != nil,
		MemoryConfigured: memoryGateway.Enabled(),
		TextBackend:      aiService.Backend(),
		Model:            textModel(cfg, aiService),
		LiveModel:        cfg.Gemini.LiveModel,
	}

	router := handler.NewRouter(info, agentStore, healthService, liveRelay)

	startServer(ctx, cfg.Server, router, sessions)
}

func textModel(cfg *config.Config, svc *ai.Service) string {
	switch svc.Backend() {
	case config.ProviderArk:
		return cfg.AI.Model
	case config.ProviderGemini:
		return cfg.Gemini.Model
	}
	return ""
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, sessions *session.Manager) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// 升级后的 WebSocket 连接不受 Shutdown 管理，关闭上游以结束中继会话
	srv.RegisterOnShutdown(sessions.CloseAll)

	log.Printf("PetPal health backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
