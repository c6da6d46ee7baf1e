package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"consultline/internal/database"
	"consultline/internal/devstore"
	authHandler "consultline/internal/handler/http/auth"
	chatHandler "consultline/internal/handler/http/chat"
	sessionHandler "consultline/internal/handler/http/session"
	walletHandler "consultline/internal/handler/http/wallet"
	wsHandler "consultline/internal/handler/ws"
	"consultline/internal/middleware"
	"consultline/pkg/config"
	"consultline/pkg/constants"
	"consultline/pkg/env"
	"consultline/pkg/jwt"
	"consultline/pkg/logger"
	"consultline/pkg/metrics"
)

type stores struct {
	sessions devstore.SessionStore
	wallet   devstore.Wallet
	uids     devstore.UIDAllocator
	counter  middleware.WindowCounter
	redis    *database.RedisClient
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(&logger.Config{
		Level:    cfg.Log.Level,
		Format:   cfg.Log.Format,
		Output:   cfg.Log.Output,
		FilePath: cfg.Log.FilePath,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Fatal("Dev backend stopped", zap.Error(err))
	}
	logger.Info("Server exited")
}

func run(ctx context.Context, cfg *config.Config) error {
	// 1. Metrics and tokens
	appMetrics := metrics.NewMetrics(cfg.Server.ServiceName)
	jwtManager := jwt.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpiry, constants.RTCTokenExpiry)

	// 2. Stores
	st, err := openStores(ctx, cfg, appMetrics)
	if err != nil {
		return err
	}
	if st.redis != nil {
		defer st.redis.Close()
	}
	messages := devstore.NewMessageStore()

	// 3. Handlers
	sessionHdlr := sessionHandler.NewHandler(st.sessions, st.wallet, messages, jwtManager, appMetrics, cfg.Wallet.CallCost)
	chatHdlr := chatHandler.NewHandler(messages, appMetrics)
	walletHdlr := walletHandler.NewHandler(st.wallet)
	authHdlr := authHandler.NewHandler(jwtManager)
	hub := wsHandler.NewSignalingHub(st.uids, jwtManager, appMetrics,
		env.GetInt("WS_MAX_SIGNALING_CONNECTIONS", 1000),
		env.GetStringSlice("WS_ALLOWED_ORIGINS", nil))
	defer hub.Close()

	// 4. Router
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	_ = router.SetTrustedProxies(nil)

	router.Use(middleware.HealthCheck(cfg.Server.ServiceName))
	router.Use(middleware.RequestLogger())
	router.Use(middleware.Recovery())
	router.Use(middleware.NewPrometheusMiddleware(appMetrics).Handler())

	router.GET(middleware.GetMetricsPath(), middleware.MetricsHandler(prometheus.DefaultGatherer))

	if cfg.Server.Environment != "production" {
		router.POST("/dev/token", authHdlr.IssueToken)
	}

	// The signaling socket authenticates with the rtc token itself
	router.GET("/rtc/ws", hub.ServeWS)

	api := router.Group("/")
	api.Use(middleware.AuthMiddleware(jwtManager), middleware.Timeout(constants.DefaultTimeout))
	{
		startLimiter := middleware.NewRateLimiter(st.counter, "session_start", 10, time.Minute)
		api.POST("/communication/session/start", startLimiter.Middleware(), sessionHdlr.Start)
		api.POST("/communication/session/join", sessionHdlr.Join)
		api.POST("/communication/session/end", sessionHdlr.End)

		chatHdlr.RegisterRoutes(api.Group("/chat"))

		api.GET("/wallet/balance", walletHdlr.Balance)
		api.POST("/wallet/recharge", walletHdlr.Recharge)
	}

	// 5. Serve
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Dev backend starting",
			zap.Int("port", cfg.Server.Port),
			zap.Bool("redis", st.redis != nil))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	})
	if st.redis != nil {
		g.Go(func() error {
			return st.redis.RunHealthCheck(gctx, 10*time.Second)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.GracefulShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Server forced to shutdown", zap.Error(err))
		}
		return nil
	})

	return g.Wait()
}

// openStores selects Redis-backed stores when REDIS_HOST is set
func openStores(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (*stores, error) {
	if cfg.Redis.Host == "" {
		logger.Info("Using in-memory stores")
		return &stores{
			sessions: devstore.NewMemorySessionStore(),
			wallet:   devstore.NewMemoryWallet(cfg.Wallet.StartBalance),
			uids:     &devstore.MemoryUIDAllocator{},
			counter:  middleware.NewMemoryWindowCounter(),
		}, nil
	}

	redisDB, err := database.NewRedisDB(ctx, &database.RedisConfig{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: 10,
		Timeout:  cfg.Redis.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.RedisAddr(), err)
	}
	logger.Info("Connected to Redis", zap.String("addr", cfg.RedisAddr()))

	return &stores{
		sessions: devstore.NewRedisSessionStore(redisDB.Client, m),
		wallet:   devstore.NewRedisWallet(redisDB.Client, cfg.Wallet.StartBalance, m),
		uids:     devstore.NewRedisUIDAllocator(redisDB.Client),
		counter:  middleware.NewRedisWindowCounter(redisDB.Client),
		redis:    redisDB,
	}, nil
}
