package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/merkledrop-io/merkledrop/internal/api/handler"
	"github.com/merkledrop-io/merkledrop/internal/audit"
	"github.com/merkledrop-io/merkledrop/internal/merkle"
	"github.com/merkledrop-io/merkledrop/internal/token"
	"github.com/merkledrop-io/merkledrop/internal/vesting"
	"github.com/merkledrop-io/merkledrop/internal/webhooks"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	if err := run(logger); err != nil {
		logger.Fatal("merkledropd exited with error", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	// ── Configuration ────────────────────────────────────────────────────────
	viper.SetConfigName("merkledropd")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("configs")
	viper.AddConfigPath(".")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.port", 8085)
	viper.SetDefault("server.grpc_port", 9095)
	viper.SetDefault("server.cors_origins", []string{"http://localhost:3000"})
	viper.SetDefault("server.rate_limit_rps", 20)
	viper.SetDefault("database.url", "")
	viper.SetDefault("schedule.creation", "")
	viper.SetDefault("schedule.round_duration", "720h") // 30 days
	viper.SetDefault("schedule.cliff_mode", "hard")
	viper.SetDefault("schedule.roots", []string{})
	viper.SetDefault("schedule.cliff_offsets", []int{})
	viper.SetDefault("schedule.tge_percents", []int{})
	viper.SetDefault("schedule.round_counts", []int{})
	viper.SetDefault("token.supply_cap", "")
	viper.SetDefault("token.auto_wire", true)
	viper.SetDefault("token.renounce_owner_on_wire", false)
	viper.SetDefault("admin.secret", "")
	viper.SetDefault("admin.token_ttl", "12h")
	viper.SetDefault("audit.sweep_interval", "5m")
	viper.SetDefault("audit.fail_threshold", 2)

	if err := viper.ReadInConfig(); err != nil {
		var cfgNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgNotFound) {
			return fmt.Errorf("read config: %w", err)
		}
		logger.Warn("no config file found, using defaults and env vars")
	}

	// ── Schedule ─────────────────────────────────────────────────────────────
	dists, roundDuration, cliffMode, err := buildSchedule()
	if err != nil {
		return fmt.Errorf("build schedule: %w", err)
	}
	logger.Info("vesting schedule loaded",
		zap.Int("distributions", len(dists)),
		zap.Duration("round_duration", roundDuration),
		zap.String("cliff_mode", string(cliffMode)),
	)

	// ── Storage + token ledger ───────────────────────────────────────────────
	var supplyCap *big.Int
	if capStr := viper.GetString("token.supply_cap"); capStr != "" {
		var ok bool
		supplyCap, ok = new(big.Int).SetString(capStr, 10)
		if !ok {
			return fmt.Errorf("token.supply_cap %q is not a decimal integer", capStr)
		}
	}

	var (
		store       vesting.Store
		ledger      token.Ledger
		webhookRepo *webhooks.Repository
		db          *pgxpool.Pool
	)

	dbURL := viper.GetString("database.url")
	if dbURL != "" {
		db, err = pgxpool.New(context.Background(), dbURL)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer db.Close()
		if err := db.Ping(context.Background()); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
		logger.Info("connected to postgres")

		store = vesting.NewPostgresStore(db, logger)
		ledger = token.NewPostgresLedger(db, supplyCap, logger)
		webhookRepo = webhooks.NewRepository(db)
	} else {
		logger.Warn("no database.url configured; using in-memory storage (state is lost on restart)")
		store = vesting.NewMemoryStore()
		ledger = token.NewMemoryLedger(supplyCap)
	}

	// ── Webhooks ─────────────────────────────────────────────────────────────
	var webhookSvc *webhooks.Service
	if webhookRepo != nil {
		webhookSvc = webhooks.NewService(webhookRepo, logger)
		webhookSvc.SetMetricsRecorder(handler.RecordWebhookDelivery)
	}

	// ── Engine ───────────────────────────────────────────────────────────────
	var sink vesting.Sink
	if webhookSvc != nil {
		sink = &webhookSink{svc: webhookSvc}
	}

	engineCfg := vesting.Config{
		RoundDuration:           roundDuration,
		CliffMode:               cliffMode,
		RenounceOwnerOnSetToken: viper.GetBool("token.renounce_owner_on_wire"),
	}

	var initialLedger token.Ledger
	if viper.GetBool("token.auto_wire") {
		initialLedger = ledger
	}
	engine := vesting.NewEngine(dists, store, initialLedger, sink, logger, engineCfg)
	if initialLedger == nil {
		logger.Info("token ledger staged; claims rejected until POST /api/v1/admin/token")
	}

	// ── Auditor ──────────────────────────────────────────────────────────────
	auditor := audit.New(store, ledger, len(dists), audit.Config{
		SweepInterval: viper.GetDuration("audit.sweep_interval"),
		FailThreshold: viper.GetInt("audit.fail_threshold"),
	}, logger)
	auditor.SetMetricsRecord(handler.RecordAuditSweep)
	if webhookSvc != nil {
		auditor.SetWebhookDispatch(func(ctx context.Context, eventType string, payload map[string]string) {
			webhookSvc.Dispatch(ctx, eventType, payload)
		})
	}

	// ── Admin auth ───────────────────────────────────────────────────────────
	var adminAuth gin.HandlerFunc
	adminSecret := viper.GetString("admin.secret")
	if adminSecret != "" {
		tokens := handler.NewAdminTokens(adminSecret, "merkledrop", viper.GetDuration("admin.token_ttl"))
		adminAuth = handler.RequireAdmin(tokens)
	}

	// ── HTTP Router ──────────────────────────────────────────────────────────
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	corsOrigins := viper.GetStringSlice("server.cors_origins")
	router.Use(cors.New(cors.Config{
		AllowOrigins:     corsOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: !containsWildcard(corsOrigins),
		MaxAge:           12 * time.Hour,
	}))

	// Security headers
	router.Use(func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	})

	// Request body size limit (1 MB)
	router.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 1<<20)
		c.Next()
	})

	rps := viper.GetInt("server.rate_limit_rps")
	if rps > 0 {
		router.Use(handler.RateLimiter(rps, rps*2))
	}

	router.Use(handler.PrometheusMiddleware())
	router.Use(requestLogger(logger))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", handler.MetricsHandler())

	v1 := router.Group("/api/v1")
	handler.NewClaimHandler(engine, logger).Register(v1)

	if adminAuth != nil {
		handler.NewAdminHandler(engine, ledger, adminAuth, logger).Register(v1)
		if webhookSvc != nil {
			webhooks.NewHandler(webhookSvc, adminAuth, logger).Register(v1)
		}
	} else {
		logger.Warn("admin.secret not configured; admin and webhook routes are disabled")
	}

	// ── gRPC health side port ────────────────────────────────────────────────
	grpcPort := viper.GetInt("server.grpc_port")
	grpcLis, err := net.Listen("tcp", fmt.Sprintf(":%d", grpcPort))
	if err != nil {
		return fmt.Errorf("gRPC listen on :%d: %w", grpcPort, err)
	}
	grpcServer := grpc.NewServer()
	healthSvc := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthSvc)
	healthSvc.SetServingStatus("merkledrop.v1.ClaimService", grpc_health_v1.HealthCheckResponse_SERVING)
	reflection.Register(grpcServer)

	go func() {
		logger.Info("gRPC health listening", zap.Int("port", grpcPort))
		if err := grpcServer.Serve(grpcLis); err != nil {
			logger.Error("gRPC serve error", zap.Error(err))
		}
	}()

	// ── Background reconciliation ────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go auditor.Start(quit)

	// ── HTTP server ──────────────────────────────────────────────────────────
	httpPort := viper.GetInt("server.port")
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", httpPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("merkledrop HTTP listening", zap.Int("port", httpPort))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP listen error", zap.Error(err))
		}
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────────
	<-quit
	logger.Info("shutting down merkledrop...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(ctx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}
	grpcServer.GracefulStop()

	logger.Info("merkledrop stopped")
	return nil
}

// buildSchedule assembles the distribution schedule from configuration.
func buildSchedule() ([]*vesting.Distribution, time.Duration, vesting.CliffMode, error) {
	roundDuration := viper.GetDuration("schedule.round_duration")

	cliffMode, err := vesting.ParseCliffMode(viper.GetString("schedule.cliff_mode"))
	if err != nil {
		return nil, 0, "", err
	}

	creation := time.Now().UTC()
	if s := viper.GetString("schedule.creation"); s != "" {
		creation, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, 0, "", fmt.Errorf("schedule.creation: %w", err)
		}
	}

	rootStrs := viper.GetStringSlice("schedule.roots")
	roots := make([]merkle.Hash, len(rootStrs))
	for i, s := range rootStrs {
		if s == "" {
			continue // zero root, assigned later via the admin API
		}
		roots[i], err = merkle.ParseHash(s)
		if err != nil {
			return nil, 0, "", fmt.Errorf("schedule.roots[%d]: %w", i, err)
		}
	}

	dists, err := vesting.NewSchedule(
		creation,
		roundDuration,
		roots,
		viper.GetIntSlice("schedule.cliff_offsets"),
		viper.GetIntSlice("schedule.tge_percents"),
		viper.GetIntSlice("schedule.round_counts"),
	)
	if err != nil {
		return nil, 0, "", err
	}
	return dists, roundDuration, cliffMode, nil
}

// webhookSink forwards engine events to webhook subscribers.
type webhookSink struct {
	svc *webhooks.Service
}

func (s *webhookSink) Claimed(ev vesting.ClaimedEvent) {
	s.svc.Dispatch(context.Background(), webhooks.EventClaimExecuted, map[string]string{
		"claimant":      ev.Claimant.String(),
		"amount":        ev.Amount.String(),
		"distribution":  fmt.Sprintf("%d", ev.Distribution),
		"round":         fmt.Sprintf("%d", ev.Round),
		"fully_claimed": fmt.Sprintf("%t", ev.FullyClaimed),
	})
}

func (s *webhookSink) DistributionPaused(ev vesting.PauseEvent) {
	s.svc.Dispatch(context.Background(), webhooks.EventDistributionPaused, map[string]string{
		"distribution": fmt.Sprintf("%d", ev.Distribution),
	})
}

func (s *webhookSink) DistributionUnpaused(ev vesting.PauseEvent) {
	s.svc.Dispatch(context.Background(), webhooks.EventDistributionUnpaused, map[string]string{
		"distribution": fmt.Sprintf("%d", ev.Distribution),
	})
}

func (s *webhookSink) MerkleRootUpdated(ev vesting.RootEvent) {
	s.svc.Dispatch(context.Background(), webhooks.EventRootUpdated, map[string]string{
		"distribution": fmt.Sprintf("%d", ev.Distribution),
		"root":         ev.New.String(),
	})
}

// containsWildcard returns true if origins includes "*".
func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}

// requestLogger returns a Gin middleware that logs each request with zap.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
