package app

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/doclane/doclane/internal/config"
	"github.com/doclane/doclane/internal/db"
	"github.com/doclane/doclane/internal/extract"
	"github.com/doclane/doclane/internal/repository"
	"github.com/doclane/doclane/internal/service"
	"github.com/doclane/doclane/internal/staging"
	"github.com/doclane/doclane/internal/storage"
	"github.com/doclane/doclane/internal/task"
	"github.com/doclane/doclane/internal/vectorindex"
)

// App wires the shared dependency graph used by both the server and
// the worker process. Clients are constructed once at process start
// and injected; nothing re-constructs them mid-request.
type App struct {
	Cfg   *config.Config
	DB    *sqlx.DB
	Redis *redis.Client

	UserRepository     repository.UserRepository
	DocumentRepository repository.DocumentRepository
	FileRepository     repository.DocumentFileRepository
	ChunkRepository    repository.ChunkRepository

	Store   storage.ObjectStore
	Staging *staging.Area
	Queue   *task.Queue
	Index   vectorindex.Index

	AuthService      *service.AuthService
	UploadService    *service.UploadService
	DocumentService  *service.DocumentService
	VectorizeService *service.VectorizeService
}

func New(cfg *config.Config) (*App, error) {
	database, err := db.Init(cfg.DBDriver, cfg.DBConnection)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %v", err)
	}

	err = db.RunMigrations(database.DB, cfg.DBDriver)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %v", err)
	}

	// Repositories
	userRepository := repository.NewUserRepository(database)
	documentRepository := repository.NewDocumentRepository(database)
	fileRepository := repository.NewDocumentFileRepository(database)
	chunkRepository := repository.NewChunkRepository(database)

	// Storage
	store, err := storage.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize object store: %v", err)
	}

	stagingArea, err := staging.New(cfg.StagingDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize staging area: %v", err)
	}

	// Task queue
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	queue := task.NewQueue(redisClient, cfg.TaskQueue, cfg.TaskStatusTTL)

	// Vector index (optional)
	var index vectorindex.Index = vectorindex.Noop{}
	if cfg.QdrantAddr != "" {
		qdrantIndex, err := vectorindex.NewQdrant(cfg.QdrantAddr, cfg.QdrantCollection)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize vector index: %v", err)
		}
		index = qdrantIndex
	}

	// Services
	extractor := extract.NewExtractor(store)
	authService := service.NewAuthService(userRepository, cfg.JWTSecret, cfg.JWTExpiry)
	if cfg.AdminEmail != "" && cfg.AdminPassword != "" {
		if err := authService.EnsureAdmin(cfg.AdminEmail, cfg.AdminName, cfg.AdminPassword); err != nil {
			return nil, fmt.Errorf("failed to bootstrap admin account: %v", err)
		}
	}
	uploadService := service.NewUploadService(documentRepository, fileRepository, store, stagingArea, queue)
	vectorizeService := service.NewVectorizeService(
		documentRepository, fileRepository, chunkRepository,
		extractor, index,
		cfg.ChunkSize, cfg.ChunkOverlap, cfg.SummaryChunkChars,
	)
	documentService := service.NewDocumentService(
		documentRepository, fileRepository, store, stagingArea, queue,
		vectorizeService, cfg.PresignExpiry,
	)

	return &App{
		Cfg:   cfg,
		DB:    database,
		Redis: redisClient,

		UserRepository:     userRepository,
		DocumentRepository: documentRepository,
		FileRepository:     fileRepository,
		ChunkRepository:    chunkRepository,

		Store:   store,
		Staging: stagingArea,
		Queue:   queue,
		Index:   index,

		AuthService:      authService,
		UploadService:    uploadService,
		DocumentService:  documentService,
		VectorizeService: vectorizeService,
	}, nil
}

func (a *App) Close() error {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			return err
		}
	}
	if a.DB != nil {
		return a.DB.Close()
	}
	return nil
}
