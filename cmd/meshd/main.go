package main

import (
	"context"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"

	"debatemesh/internal/core/domain"
	"debatemesh/internal/core/ports"
	"debatemesh/internal/core/services"
	httphandlers "debatemesh/internal/handlers/http"
	"debatemesh/internal/infrastructure/media"
	"debatemesh/internal/infrastructure/middleware"
	"debatemesh/internal/infrastructure/monitoring"
	"debatemesh/internal/infrastructure/signal"
	webrtcinfra "debatemesh/internal/infrastructure/webrtc"
	"debatemesh/pkg/config"
	"debatemesh/pkg/logger"
	"debatemesh/pkg/tracing"
	"debatemesh/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v3"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Try multiple config paths
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/debatemesh/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error

	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}

	if err != nil {
		// Fallback to defaults if config cannot be loaded
		cfg = config.DefaultConfig()
	}

	// Initialize logger
	zapLogger := logger.New(cfg.Logging.Level)
	defer zapLogger.Sync()

	log := zapLogger.Sugar()

	// Initialize tracing
	tracerProvider, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "debatemesh",
		JaegerURL:   cfg.Tracing.JaegerURL,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}

	// Local participant identity
	participantID := domain.ParticipantID(os.Getenv("DEBATEMESH_PARTICIPANT_ID"))
	if participantID == "" {
		participantID = domain.ParticipantID(utils.GenerateParticipantID())
	}
	local := domain.Participant{
		ID:   participantID,
		Name: cfg.Room.Name,
		Role: domain.ParseRole(cfg.Room.Role),
	}

	log.Infow("joining room",
		"room_id", cfg.Room.ID,
		"participant_id", local.ID,
		"role", local.Role,
	)

	ctx := context.Background()

	// Presence always lives in redis; the signaling channel is selectable.
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatalw("failed to connect to redis", "address", cfg.Redis.Address, "error", err)
	}

	presence, err := signal.NewRedisPresence(ctx, redisClient, cfg.Room.ID, local.ID, cfg.Redis.PresenceTTL, log)
	if err != nil {
		log.Fatalw("failed to create presence tracker", "error", err)
	}

	var channel ports.SignalingChannel
	switch cfg.Signal.Transport {
	case "websocket":
		tokens := signal.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
		joinToken, err := tokens.MintJoinToken(cfg.Room.ID, local)
		if err != nil {
			log.Fatalw("failed to mint join token", "error", err)
		}
		channel, err = signal.NewWSChannel(ctx, signal.WSConfig{
			URL:          cfg.Signal.URL,
			PingInterval: cfg.Signal.PingInterval,
			PongTimeout:  cfg.Signal.PongTimeout,
			WriteTimeout: cfg.Signal.WriteTimeout,
			SendRate:     cfg.Signal.SendRate,
			SendBurst:    cfg.Signal.SendBurst,
		}, cfg.Room.ID, local.ID, joinToken, log)
		if err != nil {
			log.Fatalw("failed to connect websocket signaling", "error", err)
		}
	default:
		channel, err = signal.NewRedisChannel(ctx, redisClient, cfg.Room.ID, local.ID, log)
		if err != nil {
			log.Fatalw("failed to create redis signaling channel", "error", err)
		}
	}

	// WebRTC configuration (STUN/TURN from config)
	var iceServers []webrtc.ICEServer
	for _, s := range cfg.WebRTC.ICEServers {
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}

	peerFactory := webrtcinfra.NewPeerFactory(webrtcinfra.Config{ICEServers: iceServers}, log)
	device := media.NewDevice(media.SilenceSource{}, log)
	policy := services.NewCameraPolicy(cfg.Mesh.MaxCamerasOn)

	var metrics ports.MeshMetrics
	if cfg.Monitoring.PrometheusEnabled {
		metrics = monitoring.NewPrometheusCollector()
	}

	negotiator := services.NewNegotiator(
		local,
		channel,
		presence,
		device,
		peerFactory.Create,
		policy,
		metrics,
		services.NegotiatorOptions{RecheckInterval: cfg.Mesh.RecheckInterval},
		log,
	)
	if err := negotiator.Start(ctx); err != nil {
		log.Fatalw("failed to start mesh negotiator", "error", err)
	}

	// Admin API
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	router.Use(middleware.NewHTTPRateLimitMiddleware(cfg.Admin.RateLimitRPS, cfg.Admin.RateLimitBurst))
	adminHandler := httphandlers.NewAdminHandler(negotiator, local, cfg.Room.ID)
	adminHandler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    cfg.Admin.Address,
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infof("Starting admin server on %s", cfg.Admin.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for shutdown signals or server error
	sigChan := make(chan os.Signal, 1)
	ossignal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("admin server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("received shutdown signal", "signal", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Admin.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error during admin server shutdown", "error", err)
	}

	if err := negotiator.Close(); err != nil {
		log.Errorw("error closing negotiator", "error", err)
	}
	if err := channel.Close(); err != nil {
		log.Errorw("error closing signaling channel", "error", err)
	}
	if err := presence.Close(); err != nil {
		log.Errorw("error closing presence tracker", "error", err)
	}
	if err := redisClient.Close(); err != nil {
		log.Errorw("error closing redis client", "error", err)
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error shutting down tracer", "error", err)
	}

	log.Info("debatemesh stopped")
}
