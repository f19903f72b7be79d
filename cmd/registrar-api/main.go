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

	_ "github.com/univops/registrar-api/api/swagger"
	"github.com/univops/registrar-api/internal/handler"
	"github.com/univops/registrar-api/internal/middleware"
	"github.com/univops/registrar-api/internal/repository"
	"github.com/univops/registrar-api/internal/seed"
	"github.com/univops/registrar-api/internal/service"
	"github.com/univops/registrar-api/pkg/cache"
	"github.com/univops/registrar-api/pkg/config"
	"github.com/univops/registrar-api/pkg/database"
	"github.com/univops/registrar-api/pkg/logger"
	corsmiddleware "github.com/univops/registrar-api/pkg/middleware/cors"
	reqidmiddleware "github.com/univops/registrar-api/pkg/middleware/requestid"
	"github.com/univops/registrar-api/pkg/storage"
)

// @title Registrar API
// @version 1.0.0
// @description Enrollment and academic record engine
// @BasePath /
// @schemes http

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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, gpa caching disabled", "error", err)
		redisClient = nil
	}
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	departmentRepo := repository.NewDepartmentRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	employeeRepo := repository.NewEmployeeRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	gradeRepo := repository.NewGradeRepository(db)

	validate := validator.New()
	metricsSvc := service.NewMetricsService()
	catalogSvc := service.NewCatalogService(courseRepo, departmentRepo, employeeRepo, validate, logr)
	rosterSvc := service.NewRosterService(enrollmentRepo, courseRepo, studentRepo, gradeRepo, cfg.Registrar, validate, logr)
	transcriptSvc := service.NewTranscriptService(gradeRepo, enrollmentRepo, cacheRepo, cfg.Registrar.GPACacheTTL, metricsSvc, validate, logr)
	directorySvc := service.NewDirectoryService(studentRepo, employeeRepo, validate, logr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var reportSvc *service.ReportService
	if cfg.Reports.Enabled {
		store, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to init report storage", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
		reportSvc = service.NewReportService(transcriptSvc, studentRepo, store, signer, cfg.Reports, logr)
		reportSvc.Start(ctx)
		defer reportSvc.Stop()
	}

	if cfg.Seed.Enabled {
		if err := seed.Run(ctx, catalogSvc, directorySvc, rosterSvc, logr); err != nil {
			logr.Sugar().Warnw("seeding failed", "error", err)
		}
	}

	departmentHandler := handler.NewDepartmentHandler(catalogSvc)
	courseHandler := handler.NewCourseHandler(catalogSvc, rosterSvc, transcriptSvc)
	studentHandler := handler.NewStudentHandler(directorySvc, rosterSvc, transcriptSvc)
	employeeHandler := handler.NewEmployeeHandler(directorySvc)
	rosterHandler := handler.NewRosterHandler(rosterSvc)
	transcriptHandler := handler.NewTranscriptHandler(transcriptSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	{
		api.GET("/departments", departmentHandler.List)
		api.POST("/departments", departmentHandler.Create)
		api.GET("/departments/:id", departmentHandler.Get)
		api.PUT("/departments/:id", departmentHandler.Update)
		api.DELETE("/departments/:id", departmentHandler.Delete)

		api.GET("/courses", courseHandler.List)
		api.POST("/courses", courseHandler.Create)
		api.GET("/courses/:id", courseHandler.Get)
		api.PUT("/courses/:id", courseHandler.Update)
		api.DELETE("/courses/:id", courseHandler.Delete)
		api.GET("/courses/:id/roster", rosterHandler.Roster)
		api.GET("/courses/:id/seats", rosterHandler.Seats)
		api.GET("/courses/:id/eligibility", rosterHandler.Eligibility)
		api.GET("/courses/:id/grades", transcriptHandler.CourseGrades)

		api.GET("/students", studentHandler.List)
		api.POST("/students", studentHandler.Create)
		api.GET("/students/:id", studentHandler.Get)
		api.PUT("/students/:id", studentHandler.Update)
		api.DELETE("/students/:id", studentHandler.Delete)
		api.GET("/students/:id/courses", rosterHandler.StudentCourses)
		api.GET("/students/:id/grades", transcriptHandler.StudentGrades)
		api.GET("/students/:id/gpa", transcriptHandler.GPA)
		api.GET("/students/:id/transcript", transcriptHandler.Transcript)

		api.GET("/employees", employeeHandler.List)
		api.POST("/employees", employeeHandler.Create)
		api.GET("/employees/:id", employeeHandler.Get)
		api.PUT("/employees/:id", employeeHandler.Update)
		api.DELETE("/employees/:id", employeeHandler.Delete)
		api.GET("/directory/search", employeeHandler.Search)

		api.POST("/enrollments", rosterHandler.Enroll)
		api.DELETE("/enrollments", rosterHandler.Unenroll)
		api.POST("/enrollments/bulk", rosterHandler.BulkEnroll)

		api.PUT("/grades", transcriptHandler.Assign)
		api.GET("/grades", transcriptHandler.Get)
		api.DELETE("/grades/:id", transcriptHandler.Delete)

		api.GET("/system/metrics", metricsHandler.Snapshot)

		if reportSvc != nil {
			reportHandler := handler.NewReportHandler(reportSvc)
			api.POST("/students/:id/transcript/reports", reportHandler.Request)
			api.GET("/reports/:id", reportHandler.Status)
			api.GET("/reports/download", reportHandler.Download)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server shutdown failed", "error", err)
	}
}
