package app

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	_ "github.com/24Tech-io/nursepor-stable-sub008/api/swagger"
	"github.com/24Tech-io/nursepor-stable-sub008/internal/handler"
	"github.com/24Tech-io/nursepor-stable-sub008/internal/middleware"
	"github.com/24Tech-io/nursepor-stable-sub008/internal/models"
	"github.com/24Tech-io/nursepor-stable-sub008/pkg/config"
	"github.com/24Tech-io/nursepor-stable-sub008/pkg/logger"
	corsmiddleware "github.com/24Tech-io/nursepor-stable-sub008/pkg/middleware/cors"
	reqidmiddleware "github.com/24Tech-io/nursepor-stable-sub008/pkg/middleware/requestid"
)

type redisPinger struct{ client *redis.Client }

func (p redisPinger) PingContext(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Router builds the HTTP surface.
func (a *App) Router() *gin.Engine {
	svc := a.Services

	checks := map[string]handler.Pinger{"postgres": a.DB}
	if a.Redis != nil {
		checks["redis"] = redisPinger{client: a.Redis}
	}
	metricsHandler := handler.NewMetricsHandler(svc.Metrics, checks)
	enrollmentHandler := handler.NewEnrollmentHandler(svc.Coordinator, a.Cfg.Enrollment.RetryMaxElapsed)
	accessRequestHandler := handler.NewAccessRequestHandler(svc.AccessRequests)
	consistencyHandler := handler.NewConsistencyHandler(svc.Auditor, svc.Engine)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(a.Log))
	r.Use(otelgin.Middleware(a.Cfg.Telemetry.ServiceName))
	r.Use(corsmiddleware.New(a.Cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(svc.Metrics))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if a.Cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(a.Cfg.APIPrefix)
	api.Use(middleware.JWT(svc.Auth))

	api.POST("/enrollments", middleware.RequireRoles(models.RoleStudent, models.RoleAdmin), enrollmentHandler.Enroll)
	api.POST("/payments/completed", middleware.RequireRoles(models.RoleService, models.RoleAdmin), enrollmentHandler.PaymentCompleted)

	requests := api.Group("/access-requests")
	requests.POST("", middleware.RequireRoles(models.RoleStudent), accessRequestHandler.Create)
	reviewers := requests.Group("", middleware.RequireRoles(models.RoleAdmin))
	reviewers.GET("", accessRequestHandler.List)
	reviewers.GET("/:id", accessRequestHandler.Get)
	reviewers.POST("/:id/approve", accessRequestHandler.Approve)
	reviewers.POST("/:id/reject", accessRequestHandler.Reject)

	consistency := api.Group("/consistency", middleware.RequireRoles(models.RoleAdmin))
	consistency.GET("", consistencyHandler.Check)
	consistency.POST("/repair", consistencyHandler.Repair)
	consistency.POST("/orphans/cleanup", consistencyHandler.CleanupOrphans)

	return r
}
