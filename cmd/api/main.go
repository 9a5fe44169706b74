package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/hcmut-ssps/tutoring-api/api/swagger"
	"github.com/hcmut-ssps/tutoring-api/internal/handler"
	"github.com/hcmut-ssps/tutoring-api/internal/middleware"
	"github.com/hcmut-ssps/tutoring-api/internal/models"
	"github.com/hcmut-ssps/tutoring-api/internal/repository"
	"github.com/hcmut-ssps/tutoring-api/internal/service"
	"github.com/hcmut-ssps/tutoring-api/pkg/cache"
	"github.com/hcmut-ssps/tutoring-api/pkg/config"
	"github.com/hcmut-ssps/tutoring-api/pkg/database"
	"github.com/hcmut-ssps/tutoring-api/pkg/jobs"
	"github.com/hcmut-ssps/tutoring-api/pkg/logger"
	corsmiddleware "github.com/hcmut-ssps/tutoring-api/pkg/middleware/cors"
	reqidmiddleware "github.com/hcmut-ssps/tutoring-api/pkg/middleware/requestid"
	"github.com/hcmut-ssps/tutoring-api/pkg/storage"
)

// @title HCMUT Tutoring API
// @version 1.0.0
// @description Tutoring session management for the student support office
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close()

	libraryStore, err := storage.NewLocalStorage(cfg.Library.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init library storage", "error", err)
	}
	exportStore, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init export storage", "error", err)
	}

	// Repositories
	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	tutorRepo := repository.NewTutorRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	feedbackRepo := repository.NewFeedbackRepository(db)
	materialRepo := repository.NewMaterialRepository(db)
	exportRepo := repository.NewExportRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	ticketRepo := repository.NewTicketRepository(redisClient, cfg.CAS.TicketTTL)

	// Services
	validate := validator.New()
	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Notifications.UnreadCacheTTL, logr, true)
	notificationSvc := service.NewNotificationService(notificationRepo, cacheSvc, metricsSvc, validate, logr, cfg.Notifications.UnreadCacheTTL)
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		Secret:     cfg.JWT.Secret,
		Expiration: cfg.JWT.Expiration,
		Issuer:     cfg.JWT.Issuer,
	})
	casSvc := service.NewCASService(
		service.NewSeededCredentialStore(cfg.CAS.SeedAccounts),
		ticketRepo, userRepo, authSvc, cfg.CAS.ServiceURL, logr,
	)
	sessionSvc := service.NewSessionService(sessionRepo, tutorRepo, enrollmentRepo, notificationSvc, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, sessionRepo, studentRepo, notificationSvc, metricsSvc, logr)
	feedbackSvc := service.NewFeedbackService(feedbackRepo, enrollmentRepo, sessionRepo, studentRepo, tutorRepo, notificationSvc, validate, logr)
	studentSvc := service.NewStudentService(studentRepo, validate, logr)
	tutorSvc := service.NewTutorService(tutorRepo, subjectRepo, validate, logr)
	materialSvc := service.NewMaterialService(
		materialRepo, libraryStore,
		storage.NewSignedURLSigner(cfg.Library.SignedURLSecret, cfg.Library.SignedURLTTL),
		validate, logr,
	)
	exportSvc := service.NewExportService(
		exportRepo, enrollmentRepo, sessionRepo, exportStore,
		storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL),
		logr,
	)

	exportQueue := jobs.NewQueue("roster-exports", exportSvc.HandleJob, jobs.QueueConfig{
		Workers:    cfg.Exports.WorkerConcurrency,
		MaxRetries: cfg.Exports.WorkerRetries,
		Logger:     logr,
	})
	exportSvc.BindQueue(exportQueue)

	// Handlers
	authHandler := handler.NewAuthHandler(authSvc, casSvc)
	sessionHandler := handler.NewSessionHandler(sessionSvc, feedbackSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	notificationHandler := handler.NewNotificationHandler(notificationSvc)
	feedbackHandler := handler.NewFeedbackHandler(feedbackSvc)
	profileHandler := handler.NewProfileHandler(studentSvc, tutorSvc)
	materialHandler := handler.NewMaterialHandler(materialSvc, cfg.Library.MaxFileSize)
	exportHandler := handler.NewExportHandler(exportSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Simulated university SSO plus signed downloads sit outside the
	// authenticated API prefix.
	r.POST("/cas/login", authHandler.CASLogin)
	r.GET("/cas/serviceValidate", authHandler.CASServiceValidate)
	r.GET("/sso/callback", authHandler.SSOCallback)
	r.GET("/downloads/materials/:token", materialHandler.Download)
	r.GET("/downloads/exports/:token", exportHandler.Download)

	registerRoutes(r, cfg, authSvc, authHandler, sessionHandler, enrollmentHandler,
		notificationHandler, feedbackHandler, profileHandler, materialHandler,
		exportHandler, metricsHandler)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	exportQueue.Start(ctx)
	defer exportQueue.Stop()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}

func registerRoutes(
	r *gin.Engine,
	cfg *config.Config,
	authSvc *service.AuthService,
	auth *handler.AuthHandler,
	sessions *handler.SessionHandler,
	enrollments *handler.EnrollmentHandler,
	notifications *handler.NotificationHandler,
	feedback *handler.FeedbackHandler,
	profiles *handler.ProfileHandler,
	materials *handler.MaterialHandler,
	exports *handler.ExportHandler,
	metrics *handler.MetricsHandler,
) {
	api := r.Group(cfg.APIPrefix)

	api.POST("/auth/login", auth.Login)

	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))

	authed.GET("/auth/me", auth.Me)

	student := middleware.RequireRoles(models.RoleStudent)
	tutor := middleware.RequireRoles(models.RoleTutor)
	office := middleware.RequireRoles(models.RoleOffice)
	tutorOrOffice := middleware.RequireRoles(models.RoleTutor, models.RoleOffice)

	authed.GET("/sessions", sessions.List)
	authed.GET("/sessions/mine", tutor, sessions.ListMine)
	authed.GET("/sessions/:id", sessions.Get)
	authed.GET("/sessions/:id/roster", tutorOrOffice, sessions.Roster)
	authed.GET("/sessions/:id/feedback", sessions.ListFeedback)
	authed.POST("/sessions", tutorOrOffice, sessions.Create)
	authed.PUT("/sessions/:id/schedule", tutorOrOffice, sessions.UpdateSchedule)
	authed.POST("/sessions/:id/start", tutor, sessions.Start)
	authed.POST("/sessions/:id/complete", tutor, sessions.Complete)
	authed.POST("/sessions/:id/cancel", tutorOrOffice, sessions.Cancel)
	authed.POST("/sessions/:id/exports", tutorOrOffice, exports.Request)

	authed.GET("/enrollments/mine", student, enrollments.ListMine)
	authed.GET("/enrollments/available", student, enrollments.ListAvailable)
	authed.POST("/enrollments", student, enrollments.Enroll)
	authed.DELETE("/enrollments/:id", student, enrollments.Cancel)
	authed.POST("/enrollments/:id/reschedule", student, enrollments.Reschedule)
	authed.GET("/enrollments/:id/reschedule-targets", student, enrollments.RescheduleTargets)

	authed.GET("/notifications", notifications.List)
	authed.GET("/notifications/unread-count", notifications.UnreadCount)
	authed.POST("/notifications/:id/read", notifications.MarkRead)
	authed.POST("/notifications/subscriptions", notifications.Subscribe)
	authed.DELETE("/notifications/subscriptions", notifications.Unsubscribe)
	authed.POST("/notifications/announcements", office, notifications.Announce)

	authed.POST("/feedback", student, feedback.CreateFeedback)
	authed.POST("/session-requests", student, feedback.CreateSessionRequest)
	authed.GET("/session-requests", tutorOrOffice, feedback.ListSessionRequests)
	authed.POST("/technical-reports", feedback.CreateTechnicalReport)
	authed.PUT("/technical-reports/:id/status", office, feedback.UpdateReportStatus)

	authed.GET("/materials", materials.List)
	authed.GET("/materials/:id", materials.Get)
	authed.GET("/materials/:id/download-url", materials.DownloadURL)
	authed.POST("/materials", tutorOrOffice, materials.Create)
	authed.DELETE("/materials/:id", office, materials.Delete)

	authed.GET("/exports/:id", tutorOrOffice, exports.Status)

	authed.GET("/students/me", student, profiles.GetMyStudentProfile)
	authed.PUT("/students/me", student, profiles.UpdateMyStudentProfile)
	authed.GET("/students", office, profiles.ListStudents)
	authed.POST("/students", office, profiles.CreateStudent)

	authed.GET("/tutors/me", tutor, profiles.GetMyTutorProfile)
	authed.PUT("/tutors/me/expertise", tutor, profiles.SetExpertise)
	authed.GET("/tutors", profiles.ListTutors)
	authed.POST("/tutors", office, profiles.CreateTutor)

	authed.GET("/subjects", profiles.ListSubjects)
	authed.POST("/subjects", office, profiles.CreateSubject)

	authed.GET("/metrics/snapshot", office, metrics.Snapshot)
}
