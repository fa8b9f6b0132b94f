package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"chat-sync/internal/blob"
	"chat-sync/internal/chat"
	grpcserver "chat-sync/internal/grpc"
	"chat-sync/internal/handlers"
	"chat-sync/internal/identity"
	"chat-sync/internal/middleware"
	"chat-sync/internal/observability"
	"chat-sync/internal/rabbitmq"
	"chat-sync/internal/remoteconfig"
	"chat-sync/internal/repositories"
	"chat-sync/internal/session"
	"chat-sync/internal/telemetry"
	"chat-sync/internal/ws"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP, WebSocket and gRPC health servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx)
		},
	}
}

func serve(ctx context.Context) error {
	shutdownTracing, err := telemetry.SetupTracing(ctx, serviceName, cfg.OTLPEndpoint)
	if err != nil {
		logger.Warn().Err(err).Msg("tracing disabled")
	}

	database, err := connectDB(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	changes, err := openFeed(ctx, database)
	if err != nil {
		return err
	}
	defer changes.Close()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AuditExchange, logger)
	defer publisher.Close()
	observability.SetPublisher(publisher)
	audit := telemetry.NewAuditEmitter(publisher, cfg.AuditRoutingKey, serviceName, cfg.Env, logger)
	logger.Info().
		Str("publisher", rabbitmq.PublisherMode(publisher)).
		Str("noop_reason", rabbitmq.PublisherNoopReason(publisher)).
		Str("feed", cfg.FeedDriver).
		Msg("event plumbing ready")

	messages := repositories.NewMessageRepo(database, changes, cfg.WatchPollInterval, logger)
	uploader := blob.NewUploader(repositories.NewBlobRepo(database), cfg.PublicBaseURL, cfg.BlobMaxBytes, logger)
	remote := remoteconfig.NewProvider(repositories.NewConfigRepo(database), cfg.RemoteConfigTTL, logger)
	sessions := session.New(messages, session.DefaultConfig(), logger.With().Str("component", "session").Logger())
	defer sessions.Close()
	client := chat.NewClient(messages, uploader, sessions, remote, audit, logger)
	hub := ws.NewHub(logger)

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), otelgin.Middleware(serviceName), observability.HTTPMetricsMiddleware(), middleware.Logger(logger))

	handlers.RegisterOpsRoutes(router, database)
	handlers.RegisterDebugRoutes(router, audit, cfg.IsDevelopment())
	router.GET("/blobs/*key", handlers.NewBlobHandler(uploader).GetBlob)

	authed := router.Group("/", middleware.AuthMiddleware(identity.NewVerifier(cfg.JWTSecret)))
	rooms := handlers.NewRoomHandler(client, cfg.BlobMaxBytes)
	authed.POST("/rooms/:room_id/messages", rooms.PostMessage)
	authed.POST("/rooms/:room_id/media", rooms.PostMedia)
	authed.GET("/rooms/:room_id/messages", rooms.ListMessages)
	settings := handlers.NewConfigHandler(remote, audit)
	authed.GET("/config/:key", settings.GetValue)
	authed.PUT("/config/:key", settings.PutValue)
	authed.GET("/ws/rooms/:room_id", ws.NewRoomWebSocketHandler(hub, client, logger).Handle)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	health := grpcserver.NewHealthServer(database, logger)
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return err
	}
	go health.Watch(ctx, 10*time.Second)

	errCh := make(chan error, 2)
	go func() {
		logger.Info().Str("port", cfg.GRPCPort).Msg("grpc health listening")
		if err := health.Serve(lis); err != nil {
			errCh <- err
		}
	}()
	go func() {
		logger.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("starting chat-sync server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	case err = <-errCh:
		logger.Error().Err(err).Msg("server failed")
	}

	hub.CloseAll("server shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Warn().Err(shutdownErr).Msg("http shutdown")
	}
	health.Stop()
	if shutdownErr := shutdownTracing(shutdownCtx); shutdownErr != nil {
		logger.Warn().Err(shutdownErr).Msg("tracing shutdown")
	}
	return err
}
