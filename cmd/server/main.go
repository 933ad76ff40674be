// Package main runs the webinar platform HTTP server with WebSocket and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/nexstream/backend/config"
	"github.com/nexstream/backend/internal/attendance"
	"github.com/nexstream/backend/internal/auth"
	"github.com/nexstream/backend/internal/certificates"
	"github.com/nexstream/backend/internal/chat"
	"github.com/nexstream/backend/internal/conference"
	"github.com/nexstream/backend/internal/middleware"
	"github.com/nexstream/backend/internal/models"
	"github.com/nexstream/backend/internal/notify"
	"github.com/nexstream/backend/internal/realtime"
	"github.com/nexstream/backend/internal/registrations"
	"github.com/nexstream/backend/internal/users"
	"github.com/nexstream/backend/internal/webinars"
	"github.com/nexstream/backend/internal/worker"
	"github.com/nexstream/backend/pkg/database"
	"github.com/nexstream/backend/pkg/queue"
	"github.com/nexstream/backend/pkg/redis"
	"github.com/nexstream/backend/pkg/response"
	"github.com/nexstream/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	loc, err := cfg.Server.Location()
	if err != nil {
		logger.Fatal("timezone", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.KeyPrefix, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	// Rendered certificates are served inline when no bucket is configured.
	var objects certificates.ObjectStore
	if cfg.AWS.CertificatesBucket != "" {
		s3Client, err := storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			Bucket:               cfg.AWS.CertificatesBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		} else {
			objects = s3Client
		}
	}

	jobQueue := queue.NewQueue(rdb.Client, rdb.Prefix(), logger)
	hub := realtime.NewHub(realtime.NewRedisPubSub(rdb.Client, rdb.Prefix(), logger), logger)

	// Identity
	userRepo := users.NewRepository(pool)
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	authSvc := auth.NewService(userRepo, users.NewResolver(userRepo), jwtService,
		auth.NewRedisRevocations(rdb.Client, rdb.Prefix()), logger)
	authHandler := auth.NewHandler(authSvc, logger)
	authSvc.OnAuthChange(func(userID uuid.UUID, identity *models.Identity) {
		if identity == nil {
			hub.DisconnectUser(userID)
		}
	})

	// Webinars
	webinarRepo := webinars.NewRepository(pool)
	webinarSvc := webinars.NewService(webinarRepo, hub, loc, logger)
	webinarHandler := webinars.NewHandler(webinarSvc, logger)

	// Registrations
	registrationRepo := registrations.NewRepository(pool)
	registrationSvc := registrations.NewService(registrationRepo, webinarRepo, jobQueue, hub, logger)
	registrationHandler := registrations.NewHandler(registrationSvc, logger)

	// Attendance
	attendanceSvc := attendance.NewService(
		attendance.NewRepository(pool),
		attendance.NewRedisDedup(rdb.Client, rdb.Prefix(), cfg.Attendance.DedupTTL),
		registrationRepo, webinarRepo, cfg.Attendance.DeltaMinutes, logger,
	)
	attendanceHandler := attendance.NewHandler(attendanceSvc)
	monitor := attendance.NewMonitor(attendanceSvc, cfg.Attendance.Interval, logger)

	// Certificates
	certificateSvc := certificates.NewService(certificates.NewRepository(pool), registrationRepo, jobQueue,
		objects, registrationSvc, cfg.Certificate, logger)
	certificateHandler := certificates.NewHandler(certificateSvc)

	// Chat
	chatSvc := chat.NewService(chat.NewRepository(pool), webinarRepo,
		chat.NewRedisLimiter(rdb.Client, rdb.Prefix(), cfg.Chat.RateLimit, cfg.Chat.RateWindow),
		hub, cfg.Chat, logger)
	chatHandler := chat.NewHandler(chatSvc)

	// Conferencing widget
	conferenceHandler := conference.NewHandler(conference.NewService(webinarRepo, registrationSvc, cfg.Zego, logger))

	// Email
	emailRepo := notify.NewRepository(pool)
	emailHandler := notify.NewHandler(emailRepo, webinarRepo)
	var dispatcher notify.Dispatcher = notify.NewLogDispatcher(logger)
	if cfg.Email.APIKey != "" {
		dispatcher = notify.NewResendDispatcher(cfg.Email.APIKey, cfg.Email.FromName+" <"+cfg.Email.FromAddress+">", logger)
	}
	processor := worker.NewProcessor(jobQueue, certificateSvc, dispatcher, emailRepo, logger)

	viewer := realtime.NewViewer(chatSvc, registrationSvc, monitor, certificateSvc, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSOrigins()))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	authGroup := router.Group("/auth")
	{
		authGroup.POST("/signup", authHandler.SignUp)
		authGroup.POST("/signin", authHandler.SignIn)
		authGroup.POST("/signout", middleware.JWT(authSvc), authHandler.SignOut)
		authGroup.GET("/me", middleware.JWT(authSvc), authHandler.Me)
		authGroup.PATCH("/me", middleware.JWT(authSvc), authHandler.UpdateMe)
	}

	// Public reads. A token, when present, widens what Get may return.
	public := router.Group("")
	public.Use(middleware.OptionalJWT(authSvc))
	{
		public.GET("/webinars", webinarHandler.List)
		public.GET("/webinars/:id", webinarHandler.Get)
		public.GET("/certificates/:certId", certificateHandler.Verify)
		public.GET("/certificates/:certId/download", certificateHandler.Download)
	}

	api := router.Group("")
	api.Use(middleware.JWT(authSvc))
	{
		api.POST("/webinars", middleware.RequireRole(models.RoleHost, models.RoleAdmin), webinarHandler.Create)
		api.GET("/host/webinars", webinarHandler.ListMine)
		api.PATCH("/webinars/:id", webinarHandler.Update)
		api.DELETE("/webinars/:id", webinarHandler.Delete)
		api.POST("/webinars/:id/go-live", webinarHandler.GoLive)

		api.POST("/webinars/:id/register", registrationHandler.Register)
		api.GET("/webinars/:id/registration", registrationHandler.Mine)
		api.GET("/webinars/:id/registrations", registrationHandler.ListByWebinar)
		api.GET("/webinars/:id/sessions", attendanceHandler.Sessions)
		api.GET("/webinars/:id/emails", emailHandler.ListByWebinar)
		api.GET("/me/registrations", registrationHandler.ListMine)
		api.GET("/me/recordings", registrationHandler.ListPast)
		api.GET("/registrations/:id", registrationHandler.Get)
		api.POST("/registrations/:id/heartbeat", attendanceHandler.Heartbeat)
		api.GET("/registrations/:id/eligibility", certificateHandler.Eligibility)
		api.POST("/registrations/:id/certificate", certificateHandler.Issue)

		api.GET("/webinars/:id/chat", chatHandler.Snapshot)
		api.POST("/webinars/:id/chat", chatHandler.Post)
		api.DELETE("/webinars/:id/chat/:messageId", chatHandler.Delete)
		api.PUT("/webinars/:id/chat/pin", chatHandler.Pin)
		api.DELETE("/webinars/:id/chat/pin", chatHandler.Unpin)

		api.GET("/webinars/:id/conference-token", conferenceHandler.Token)

		// WebSocket (browsers pass the token as ?token=)
		api.GET("/ws", realtime.ServeWs(hub, viewer, cfg.Server.CORSOrigins(), logger))
	}

	admin := router.Group("/admin")
	admin.Use(middleware.JWT(authSvc), middleware.RequireRole(models.RoleAdmin))
	{
		admin.GET("/webinars/pending", webinarHandler.ListPending)
		admin.POST("/webinars/:id/approve", webinarHandler.Approve)
		admin.POST("/webinars/:id/reject", webinarHandler.Reject)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Background worker (certificate images and email)
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	go processor.Run(workerCtx)
	logger.Info("job worker started")

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
