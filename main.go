package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"chromechat-service/internal/assistant"
	"chromechat-service/internal/auth"
	"chromechat-service/internal/config"
	"chromechat-service/internal/db"
	"chromechat-service/internal/grpcserver"
	"chromechat-service/internal/handlers"
	"chromechat-service/internal/middleware"
	"chromechat-service/internal/observability"
	"chromechat-service/internal/rabbitmq"
	"chromechat-service/internal/repositories"
	"chromechat-service/internal/repositories/memory"
	"chromechat-service/internal/repositories/mongostore"
	"chromechat-service/internal/services"
	"chromechat-service/internal/telemetry"
	"chromechat-service/internal/tracing"
	"chromechat-service/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("failed to set up tracing: %v", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	store, closeStore, err := openStore(cfg)
	if err != nil {
		log.Fatalf("failed to open %s store: %v", cfg.StoreDriver, err)
	}
	defer closeStore()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	log.Printf("event publisher mode=%s", rabbitmq.PublisherMode(publisher))
	observability.SetPublisher(publisher)
	reporter := telemetry.NewPermissionReporter(publisher, "chat.errors.permission", cfg.ServiceName, cfg.AppEnv)

	hub := ws.NewHub()
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		relay := ws.NewRedisBroadcaster(rdb, cfg.RedisChannel)
		hub.SetRelay(relay)
		go func() {
			if err := relay.Run(ctx, hub); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("redis relay stopped: %v", err)
				hub.SetRelay(nil)
			}
		}()
	}

	userService := services.NewUserService(store)
	friendService := services.NewFriendService(store)
	chatService := services.NewChatService(store)
	presenceService := services.NewPresenceService(store)
	for _, svc := range []interface {
		SetNotifier(services.Notifier)
		SetErrorReporter(services.ErrorReporter)
	}{userService, friendService, chatService, presenceService} {
		svc.SetNotifier(hub)
		svc.SetErrorReporter(reporter)
	}
	assistantService := services.NewAssistantService(chatService,
		assistant.NewClient(cfg.AssistantURL, cfg.AssistantAPIKey, cfg.AssistantModel))

	if err := userService.EnsureAssistant(ctx); err != nil {
		log.Fatalf("failed to provision assistant user: %v", err)
	}

	verifier := auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer)
	limiter := middleware.NewRateLimiter(cfg.RateLimitPerMinute, cfg.RateLimitBurst)
	go func() {
		ticker := time.NewTicker(cfg.RateLimitCleanup)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				limiter.Cleanup()
			}
		}
	}()

	userHandler := handlers.NewUserHandler(userService)
	friendHandler := handlers.NewFriendHandler(friendService)
	chatHandler := handlers.NewChatHandler(chatService)
	presenceHandler := handlers.NewPresenceHandler(presenceService)
	assistantHandler := handlers.NewAssistantHandler(assistantService)

	chatWS := ws.NewChatWebSocketHandler(hub, chatService, verifier)
	sessionWS := ws.NewSessionWebSocketHandler(hub, presenceService, verifier)

	router := gin.Default()

	// middlewares
	router.Use(middleware.RequestID())
	router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Authorization", "Content-Type", "X-Request-Id", "X-Device-Id"},
		ExposeHeaders:   []string{"X-Request-Id"},
		MaxAge:          12 * time.Hour,
	}))
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", handlers.Health(store))
	handlers.RegisterDebugRoutes(router, reporter, verifier, cfg.DebugRoutes)

	authMiddleware := middleware.AuthMiddleware(verifier)
	rateLimit := middleware.RateLimit(limiter)

	router.POST("/users/me", authMiddleware, userHandler.Register)
	router.GET("/users/me", authMiddleware, userHandler.Me)
	router.GET("/users", authMiddleware, userHandler.List)

	router.GET("/friend-requests", authMiddleware, friendHandler.ListRequests)
	router.POST("/friend-requests", authMiddleware, rateLimit, friendHandler.SendRequest)
	router.POST("/friend-requests/:request_id/accept", authMiddleware, friendHandler.Accept)
	router.POST("/friend-requests/:request_id/reject", authMiddleware, friendHandler.Reject)
	router.DELETE("/friends/:friend_id", authMiddleware, friendHandler.RemoveFriend)

	router.GET("/chats", authMiddleware, chatHandler.ListChats)
	router.POST("/chats/start", authMiddleware, chatHandler.StartChat)
	router.GET("/chats/:chat_id/messages", authMiddleware, chatHandler.GetChatMessages)
	router.POST("/chats/:chat_id/messages", authMiddleware, rateLimit, chatHandler.PostChatMessage)
	router.DELETE("/chats/:chat_id/messages", authMiddleware, chatHandler.ClearChat)
	router.POST("/chats/:chat_id/read", authMiddleware, chatHandler.MarkRead)

	router.PUT("/presence", authMiddleware, presenceHandler.Update)
	router.PUT("/presence/active-chat", authMiddleware, presenceHandler.SetActiveChat)

	router.POST("/assistant/messages", authMiddleware, rateLimit, assistantHandler.Ask)

	router.GET("/ws/chats/:chat_id", chatWS.Handle)
	router.GET("/ws/session", sessionWS.Handle)

	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		log.Fatalf("failed to listen grpc: %v", err)
	}
	go func() {
		if err := grpcserver.New(store).Serve(ctx, lis); err != nil {
			log.Printf("grpc server error: %v", err)
		}
	}()

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: router}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("chromechat-service listening http=:%s grpc=:%s store=%s", cfg.Port, cfg.GRPCPort, cfg.StoreDriver)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}
}

func openStore(cfg config.Config) (repositories.Store, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverMongo:
		client, database, err := db.ConnectMongo(cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, nil, err
		}
		return mongostore.NewStore(client, database), func() { _ = client.Disconnect(context.Background()) }, nil
	case config.DriverMemory:
		log.Println("using in-memory store, data is lost on restart")
		return memory.NewStore(), func() {}, nil
	default:
		database, err := db.Connect(cfg.DBDSN)
		if err != nil {
			return nil, nil, err
		}
		return repositories.NewSQLStore(database), func() { _ = database.Close() }, nil
	}
}
