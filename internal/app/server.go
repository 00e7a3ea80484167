// internal/app/server.go
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"qrloop-service/internal/config"
	"qrloop-service/internal/db"
	"qrloop-service/internal/domain/qrcampaign"
	"qrloop-service/internal/domain/tool"
	campaignHandler "qrloop-service/internal/handlers/qrcampaign"
	toolHandler "qrloop-service/internal/handlers/tool"
	wsHandler "qrloop-service/internal/handlers/websocket"
	"qrloop-service/internal/middleware"
	"qrloop-service/internal/pkg/jwt"
	"qrloop-service/internal/pkg/ratelimit"
	"qrloop-service/internal/repository/memory"
	"qrloop-service/internal/repository/postgres"
	campaignUsecase "qrloop-service/internal/service/qrcampaign"
	toolUsecase "qrloop-service/internal/service/tool"
	"qrloop-service/internal/websocket"
	wsHandlers "qrloop-service/internal/websocket/handler"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Server struct {
	cfg     config.AppConfig
	engine  *gin.Engine
	logger  *zap.Logger
	closers []func()

	mu      sync.Mutex
	httpSrv *http.Server
	stopped bool
}

func NewServer(cfg config.AppConfig, logger *zap.Logger) *Server {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	return &Server{cfg: cfg, engine: gin.New(), logger: logger}
}

// Start wires every dependency and blocks serving HTTP until Shutdown is called
// or the listener fails. Pools and the hub are released when it returns.
func (s *Server) Start(ctx context.Context) error {
	defer s.release()

	// ----- Storage -----
	store, tools, err := s.openStore(ctx)
	if err != nil {
		return err
	}

	// ----- Redis & Scan Limiter -----
	limiter := s.buildScanLimiter()

	// ----- JWT -----
	verifier, err := jwt.LoadVerifier(s.cfg.JWT)
	if err != nil {
		return fmt.Errorf("failed to load JWT verifier: %w", err)
	}

	// ----- WebSocket Hub -----
	hub := websocket.NewHub(verifier, s.logger)

	// ----- Services (Usecases) -----
	generator := campaignUsecase.NewCodeGenerator(s.cfg.CodegenMaxAttempts, s.logger)
	campaignService := campaignUsecase.NewCampaignService(store, generator, hub, s.logger)
	toolService := toolUsecase.NewToolService(tools, s.logger)

	hub.RegisterHandler(wsHandlers.NewProgressHandler(campaignService, toolService))

	hubCtx, stopHub := context.WithCancel(ctx)
	s.closers = append(s.closers, stopHub)
	go hub.Run(hubCtx)

	// ----- Handlers -----
	handlers := &Handlers{
		ToolHandler:     toolHandler.NewToolHandler(toolService),
		CampaignHandler: campaignHandler.NewCampaignHandler(campaignService, toolService, limiter, s.logger),
		WSHandler:       wsHandler.NewWebSocketHandler(hub, s.cfg.WSAllowedOrigins, s.logger),
		AuthMiddleware:  middleware.NewAuthMiddleware(verifier),
		WebhookAuth:     middleware.WebhookAuth(toolService),
		WebhookThrottle: middleware.Throttle(s.cfg.WebhookRPS, s.cfg.WebhookBurst),
	}

	// ----- Middlewares -----
	s.engine.Use(
		middleware.RecoveryMiddleware(s.logger),
		middleware.LoggingMiddleware(s.logger),
		middleware.CORSMiddleware(),
	)

	// ----- Router -----
	SetupRouter(s.engine, handlers)

	// ----- Start HTTP -----
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	httpSrv := &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpSrv = httpSrv
	s.mu.Unlock()

	s.logger.Info("server running",
		zap.String("addr", s.cfg.HTTPAddr),
		zap.String("store", s.cfg.StoreDriver),
		zap.String("env", s.cfg.Env),
	)

	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown drains HTTP connections. It is safe to call before Start has
// finished wiring.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	httpSrv := s.httpSrv
	s.mu.Unlock()

	if httpSrv == nil {
		return nil
	}
	return httpSrv.Shutdown(ctx)
}

func (s *Server) release() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

func (s *Server) openStore(ctx context.Context) (qrcampaign.Store, tool.Repository, error) {
	switch s.cfg.StoreDriver {
	case config.StoreDriverMemory:
		s.logger.Warn("using in-memory store, data is lost on restart")
		mem := memory.NewStore()
		return mem, mem, nil

	case config.StoreDriverPostgres:
		pool, err := db.ConnectDB(ctx, db.PostgresConfig{
			URL:      s.cfg.DatabaseURL,
			MaxConns: s.cfg.DBMaxConns,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		s.closers = append(s.closers, pool.Close)

		if err := db.EnsureSchema(ctx, pool); err != nil {
			return nil, nil, fmt.Errorf("failed to apply schema: %w", err)
		}
		s.logger.Info("connected to PostgreSQL")

		return postgres.NewCampaignStore(postgres.NewDB(pool)), postgres.NewToolRepository(pool), nil

	default:
		return nil, nil, fmt.Errorf("unknown STORE_DRIVER %q", s.cfg.StoreDriver)
	}
}

// buildScanLimiter prefers the shared Redis counter and falls back to a
// per-process limiter when Redis is not configured or unreachable.
func (s *Server) buildScanLimiter() ratelimit.ScanLimiter {
	local := ratelimit.NewLocalScanLimiter(s.cfg.ScanRateLimit, s.cfg.ScanRateWindow)
	if s.cfg.RedisAddr == "" || s.cfg.StoreDriver == config.StoreDriverMemory {
		return local
	}

	client, err := db.NewRedisClient(db.RedisConfig{
		Addr:     s.cfg.RedisAddr,
		Password: s.cfg.RedisPass,
		PoolSize: 10,
	})
	if err != nil {
		s.logger.Warn("redis unavailable, scan rate limit is per-instance", zap.Error(err))
		return local
	}
	s.closers = append(s.closers, func() { closeRedis(client, s.logger) })
	s.logger.Info("connected to Redis", zap.String("addr", s.cfg.RedisAddr))

	return ratelimit.NewRedisScanLimiter(client, s.cfg.ScanRateLimit, s.cfg.ScanRateWindow)
}

func closeRedis(client *redis.Client, logger *zap.Logger) {
	if err := client.Close(); err != nil {
		logger.Warn("failed to close redis client", zap.Error(err))
	}
}
