package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"fieldlink/internal/config"
	"fieldlink/internal/handlers"
	"fieldlink/internal/repositories/mongodb"
	"fieldlink/internal/services"
	"fieldlink/pkg/cache"
	"fieldlink/pkg/database"
	"fieldlink/pkg/logger"
	"fieldlink/pkg/push"
	"fieldlink/pkg/sms"
	"fieldlink/pkg/websocket"
	"fieldlink/routes"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(&logger.Config{
		Level:  logger.LogLevel(cfg.App.LogLevel),
		Format: "json",
		Output: "stdout",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}

	// Store
	db, err := database.NewMongoDB(&database.DatabaseConfig{
		URI:            cfg.Database.URI,
		Database:       cfg.Database.Database,
		MaxPoolSize:    cfg.Database.MaxPoolSize,
		MinPoolSize:    cfg.Database.MinPoolSize,
		ConnectTimeout: cfg.Database.ConnectTimeout,
		SocketTimeout:  cfg.Database.SocketTimeout,
	})
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to MongoDB")
	}
	defer db.Close()

	if err := database.NewMigrator(db.Database).Up(); err != nil {
		log.WithError(err).Fatal("Failed to run migrations")
	}

	// Cache
	redisCache, err := cache.NewRedisCache(&cache.RedisConfig{
		Host:         cfg.Redis.Host,
		Port:         cfg.Redis.Port,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redisCache.Close()

	// Repositories
	userRepo := mongodb.NewUserRepository(db.Database, redisCache)
	groupRepo := mongodb.NewGroupRepository(db.Database, redisCache)
	sessionRepo := mongodb.NewPTTSessionRepository(db.Database, redisCache)
	emergencyRepo := mongodb.NewEmergencyRepository(db.Database, redisCache)
	locationRepo := mongodb.NewLocationRepository(db.Database, redisCache)
	messageRepo := mongodb.NewMessageRepository(db.Database, redisCache)

	// Notification providers for escalation actions
	smsProvider := buildSMSProvider(cfg, log)
	pushProvider := buildPushProvider(cfg, log)

	// Connection registry and services
	hub := websocket.NewHub(log)

	membershipService := services.NewMembershipService(groupRepo, redisCache, log)
	presenceService := services.NewPresenceService(userRepo, membershipService, hub, redisCache, log)
	floorService := services.NewFloorService(sessionRepo, membershipService, presenceService, hub, cfg.Floor, log)
	emergencyService := services.NewEmergencyService(
		emergencyRepo, userRepo, membershipService, presenceService, hub,
		smsProvider, pushProvider, cfg.SMS.DefaultFrom, log,
	)
	locationService := services.NewLocationService(locationRepo, membershipService, hub, redisCache, log)
	messageService := services.NewMessageService(messageRepo, membershipService, hub, log)
	authService := services.NewAuthService(userRepo, membershipService, cfg.Security.JWTSecret, log)

	// Disconnect hooks run in registration order: floor release first,
	// then the communication-loss check, presence last.
	hub.OnDisconnect(floorService.HandleDisconnect)
	hub.OnDisconnect(emergencyService.HandleDisconnect)
	hub.OnDisconnect(presenceService.HandleDisconnect)

	dispatcher := services.NewDispatcher(
		hub, authService, presenceService, floorService,
		emergencyService, locationService, messageService, log,
	)
	wsHandler := websocket.NewHandler(hub, cfg.WebSocket, dispatcher, log)

	// HTTP surface
	emergencyHandler := handlers.NewEmergencyHandler(emergencyService, emergencyRepo)
	historyHandler := handlers.NewHistoryHandler(sessionRepo, locationRepo, messageRepo)
	statsHandler := handlers.NewStatsHandler(hub, emergencyService)

	if config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	routes.Setup(router, cfg.Security.JWTSecret, wsHandler, emergencyHandler, historyHandler, statsHandler)

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.App.Host, cfg.App.Port),
		Handler: router,
	}

	go func() {
		log.Infof("Starting server on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Forced shutdown")
	}
}

func buildSMSProvider(cfg *config.Config, log *logger.Logger) sms.SMSProvider {
	switch cfg.SMS.Provider {
	case "twilio":
		if cfg.SMS.Twilio.AccountSID == "" {
			log.Warn("Twilio not configured; SMS escalation disabled")
			return nil
		}
		return sms.NewTwilioProvider(cfg.SMS.Twilio.AccountSID, cfg.SMS.Twilio.AuthToken, cfg.SMS.Twilio.FromNumber)
	case "aws":
		provider, err := sms.NewAWSSNSProvider(cfg.SMS.AWS.Region)
		if err != nil {
			log.WithError(err).Warn("SNS init failed; SMS escalation disabled")
			return nil
		}
		return provider
	default:
		log.Warnf("Unknown SMS provider %q; SMS escalation disabled", cfg.SMS.Provider)
		return nil
	}
}

func buildPushProvider(cfg *config.Config, log *logger.Logger) push.PushProvider {
	switch cfg.Push.Provider {
	case "fcm":
		if cfg.Push.FCM.Credentials == "" {
			log.Warn("FCM not configured; push escalation disabled")
			return nil
		}
		provider, err := push.NewFCMProvider(cfg.Push.FCM.Credentials)
		if err != nil {
			log.WithError(err).Warn("FCM init failed; push escalation disabled")
			return nil
		}
		return provider
	case "apns":
		provider, err := push.NewAPNSProvider(
			cfg.Push.APNS.KeyFile, cfg.Push.APNS.KeyID, cfg.Push.APNS.TeamID,
			cfg.Push.APNS.BundleID, cfg.Push.APNS.Production,
		)
		if err != nil {
			log.WithError(err).Warn("APNS init failed; push escalation disabled")
			return nil
		}
		return provider
	default:
		log.Warnf("Unknown push provider %q; push escalation disabled", cfg.Push.Provider)
		return nil
	}
}
