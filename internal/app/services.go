package app

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/24Tech-io/nursepor-stable-sub008/internal/models"
	"github.com/24Tech-io/nursepor-stable-sub008/internal/repository"
	"github.com/24Tech-io/nursepor-stable-sub008/internal/service"
	"github.com/24Tech-io/nursepor-stable-sub008/pkg/config"
	"github.com/24Tech-io/nursepor-stable-sub008/pkg/events"
	"github.com/24Tech-io/nursepor-stable-sub008/pkg/jobs"
	"github.com/24Tech-io/nursepor-stable-sub008/pkg/lock"
)

type courseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type Services struct {
	Metrics        *service.MetricsService
	Locker         lock.Locker
	Notifier       *service.SyncNotifier
	Coordinator    *service.EnrollmentCoordinator
	AccessRequests *service.AccessRequestService
	Auditor        *service.ConsistencyAuditor
	Engine         *service.ReconciliationEngine
	Scheduler      *service.AuditScheduler
	Auth           *service.AuthService
}

func wireServices(cfg *config.Config, log *zap.Logger, db *sqlx.DB, client *redis.Client, repos Repos) (Services, error) {
	metrics := service.NewMetricsService()

	locker, err := lock.New(cfg.Lock, db, client, lock.WithObserver(metrics), lock.WithLogger(log.Named("lock")))
	if err != nil {
		return Services{}, fmt.Errorf("init lock: %w", err)
	}

	publishers := []events.Publisher{events.NewLogPublisher(log.Named("events"))}
	if cfg.Notifier.RedisEnabled && client != nil {
		publishers = append(publishers, events.NewRedisPublisher(client, cfg.Notifier.RedisChannel))
	}
	notifier := service.NewSyncNotifier(log.Named("notifier"), metrics, publishers...)

	var courses courseReader = repos.Courses
	if cfg.Cache.CourseTTL > 0 && client != nil {
		cache := repository.NewCacheRepository(client, "enrollment-sync:course:")
		courses = service.NewCachedCourseReader(repos.Courses, cache, cfg.Cache.CourseTTL, metrics, log.Named("course_cache"))
	}

	validate := validator.New()
	coordinator := service.NewEnrollmentCoordinator(
		repos.Enrollments,
		courses,
		repos.Students,
		locker,
		validate,
		log.Named("enrollment"),
		service.WithCoordinatorNotifier(notifier),
		service.WithCoordinatorMetrics(metrics),
	)
	accessRequests := service.NewAccessRequestService(repos.AccessRequests, repos.Enrollments, courses, coordinator, notifier, validate, log.Named("access_request"))
	auditor := service.NewConsistencyAuditor(repos.Consistency, metrics, log.Named("auditor"))
	engine := service.NewReconciliationEngine(auditor, coordinator, repos.Enrollments, repos.Progress, repos.AccessRequests, repos.Consistency, notifier, metrics, log.Named("reconcile"))

	var scheduler *service.AuditScheduler
	if cfg.Audit.Enabled {
		scheduler = service.NewAuditScheduler(auditor, engine, cfg.Audit.Interval, log.Named("audit_scheduler"), service.WithAutoRepair(cfg.Audit.AutoRepair))
	}

	return Services{
		Metrics:        metrics,
		Locker:         locker,
		Notifier:       notifier,
		Coordinator:    coordinator,
		AccessRequests: accessRequests,
		Auditor:        auditor,
		Engine:         engine,
		Scheduler:      scheduler,
		Auth:           service.NewAuthService(cfg.JWT.Secret),
	}, nil
}

func notifierQueueConfig(cfg config.NotifierConfig, log *zap.Logger) jobs.QueueConfig {
	return jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     log.Named("notifier_queue"),
	}
}
