// Package di provides dependency injection container for managing service lifecycle and dependencies.
package di

import (
	"context"
	"database/sql"
	"math/rand"
	"sync"
	"time"

	"examprep/internal/config"
	"examprep/internal/database"
	"examprep/internal/observability"
	"examprep/internal/services"
	contextutils "examprep/internal/utils"

	"gorm.io/gorm"
)

// ServiceContainerInterface defines the interface for service containers
type ServiceContainerInterface interface {
	GetService(name string) (interface{}, error)
	GetExamService() (services.ExamServiceInterface, error)
	GetDatabase() *sql.DB
	GetConfig() *config.Config
	GetLogger() *observability.Logger
	Initialize(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// ServiceContainer manages all service dependencies and lifecycle
type ServiceContainer struct {
	cfg           *config.Config
	logger        *observability.Logger
	dbManager     *database.Manager
	db            *sql.DB
	gormDB        *gorm.DB
	services      map[string]interface{}
	mu            sync.RWMutex
	shutdownFuncs []func(context.Context) error
}

var _ ServiceContainerInterface = (*ServiceContainer)(nil)

// NewServiceContainer creates a new dependency injection container
func NewServiceContainer(cfg *config.Config, logger *observability.Logger) *ServiceContainer {
	return &ServiceContainer{
		cfg:      cfg,
		logger:   logger,
		services: make(map[string]interface{}),
	}
}

// Initialize opens the database, applies migrations and wires the services
func (sc *ServiceContainer) Initialize(ctx context.Context) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	sc.dbManager = database.NewManager(sc.logger)
	db, err := sc.dbManager.InitDBWithConfig(ctx, sc.cfg.Database)
	if err != nil {
		return contextutils.WrapErrorf(err, "failed to initialize database")
	}
	sc.db = db
	sc.shutdownFuncs = append(sc.shutdownFuncs, func(_ context.Context) error {
		return db.Close()
	})

	gormDB, err := database.OpenGorm(db)
	if err != nil {
		_ = sc.cleanup(ctx)
		sc.db = nil
		return err
	}
	sc.gormDB = gormDB

	cache, err := services.NewRedisTestCache(ctx, sc.cfg.Redis, sc.logger)
	if err != nil {
		// the cache is optional; run without it rather than refuse to start
		sc.logger.Warn(ctx, "Test cache unavailable, continuing without it", map[string]interface{}{
			"redis_addr": sc.cfg.Redis.Addr,
			"error":      err.Error(),
		})
		cache = nil
	}
	if cache != nil {
		sc.shutdownFuncs = append(sc.shutdownFuncs, func(_ context.Context) error {
			return cache.Close()
		})
	}

	repo := services.NewGormExamRepository(gormDB, sc.logger)
	sc.services["exam_repository"] = repo
	sc.services["exam"] = BuildExamService(sc.cfg, repo, cache, observability.NewExamMetrics(), sc.logger)
	return nil
}

// BuildExamService wires the generation and grading pipeline from configuration
func BuildExamService(cfg *config.Config, repo services.ExamRepository, cache *services.RedisTestCache, metrics *observability.ExamMetrics, logger *observability.Logger) *services.ExamService {
	templates, err := services.NewPromptTemplateManager()
	if err != nil {
		// templates are embedded; a parse failure is a build defect
		panic(err)
	}
	rng := services.NewLockedSource(rand.New(rand.NewSource(time.Now().UnixNano())))

	rotator := services.NewCredentialRotator(cfg.LLM.APIKeys)
	gateway := services.NewOpenAIGateway(cfg.LLM, rotator, metrics, logger)
	prompts := services.NewPromptBuilder(templates, rng)
	media := services.NewMediaEnricher(
		services.NewTTSURLBuilder(cfg.Media.TTSBasePath),
		services.NewImageURLBuilder(cfg.Media.ImageBaseURL, cfg.Media.ImageWidth, cfg.Media.ImageHeight),
		cfg.Media,
		logger,
	)

	return services.NewExamService(services.ExamServiceDeps{
		Repo:         repo,
		Gateway:      gateway,
		Prompts:      prompts,
		Materializer: services.NewTestMaterializer(rng, media, logger),
		Grading:      services.NewGradingEngine(services.NewEssayGrader(gateway, prompts, logger), logger),
		Cache:        cache,
		Metrics:      metrics,
		Logger:       logger,
	})
}

// GetService retrieves a service by name with type assertion
func (sc *ServiceContainer) GetService(name string) (interface{}, error) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()

	service, exists := sc.services[name]
	if !exists {
		return nil, contextutils.ErrorWithContextf("service %s not found", name)
	}
	return service, nil
}

// GetServiceAs performs type-safe service retrieval
func GetServiceAs[T any](sc *ServiceContainer, name string) (T, error) {
	var zero T
	service, err := sc.GetService(name)
	if err != nil {
		return zero, err
	}

	typed, ok := service.(T)
	if !ok {
		return zero, contextutils.ErrorWithContextf("service %s is not of expected type %T", name, zero)
	}
	return typed, nil
}

// GetExamService returns the exam service
func (sc *ServiceContainer) GetExamService() (services.ExamServiceInterface, error) {
	return GetServiceAs[services.ExamServiceInterface](sc, "exam")
}

// GetDatabase returns the database instance
func (sc *ServiceContainer) GetDatabase() *sql.DB {
	return sc.db
}

// GetDatabaseManager returns the manager used to open the database
func (sc *ServiceContainer) GetDatabaseManager() *database.Manager {
	return sc.dbManager
}

// GetConfig returns the configuration
func (sc *ServiceContainer) GetConfig() *config.Config {
	return sc.cfg
}

// GetLogger returns the logger
func (sc *ServiceContainer) GetLogger() *observability.Logger {
	return sc.logger
}

// Shutdown releases the cache and database connections
func (sc *ServiceContainer) Shutdown(ctx context.Context) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	return sc.cleanup(ctx)
}

// cleanup runs shutdown funcs in reverse order of initialization
func (sc *ServiceContainer) cleanup(ctx context.Context) error {
	var errs []error
	for i := len(sc.shutdownFuncs) - 1; i >= 0; i-- {
		if err := sc.shutdownFuncs[i](ctx); err != nil {
			sc.logger.Error(ctx, "Shutdown step failed", err)
			errs = append(errs, err)
		}
	}
	sc.shutdownFuncs = nil

	if len(errs) > 0 {
		return contextutils.ErrorWithContextf("shutdown errors: %v", errs)
	}
	return nil
}
