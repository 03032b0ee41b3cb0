package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jo-hoe/picstash/internal/backend/cache"
	"github.com/jo-hoe/picstash/internal/backend/database"
	"github.com/jo-hoe/picstash/internal/backend/filestore"
	"github.com/jo-hoe/picstash/internal/ingest"
)

// CoreService owns the long-lived collaborators (database, file store,
// cache) and the ingestion pipeline built on top of them. The route layer
// talks only to this service.
type CoreService struct {
	config          *ServiceConfig
	databaseService database.DatabaseService
	fileStore       ingest.FileStore
	renditionCache  cache.RenditionCache
	redisCache      *cache.RedisCache
	ledger          *ingest.Ledger
	coordinator     *ingest.Coordinator
}

func NewCoreService(config *ServiceConfig) *CoreService {
	databaseService, err := getDatabaseService(config)
	if err != nil {
		slog.Error("failed to initialize database service", "error", err)
		panic(err)
	}

	fileStore, err := getFileStore(config)
	if err != nil {
		slog.Error("failed to initialize file store", "error", err)
		panic(err)
	}

	service := &CoreService{
		config:          config,
		databaseService: databaseService,
		fileStore:       fileStore,
		renditionCache:  cache.NopCache{},
	}

	if config.Cache.Enabled {
		redisCache := cache.NewRedisCache(config.Cache.Address, time.Duration(config.Cache.TTLSeconds)*time.Second)
		service.redisCache = redisCache
		service.renditionCache = redisCache
		slog.Info("rendition cache enabled", "address", config.Cache.Address)
	}

	deriver := ingest.NewDeriver(ingest.NewTranscoder(), ingest.DefaultPolicy, config.Upload.WorkerLimit)
	service.ledger = ingest.NewLedger(databaseService)
	service.coordinator = ingest.NewCoordinator(deriver, service.ledger, databaseService, fileStore, config.Upload.MaxSizeBytes)

	return service
}

func getDatabaseService(config *ServiceConfig) (database.DatabaseService, error) {
	databaseService, err := database.NewDatabase(config.Database.Type, config.Database.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	slog.Info("database initialized successfully", "type", config.Database.Type)
	return databaseService, nil
}

func getFileStore(config *ServiceConfig) (ingest.FileStore, error) {
	switch config.Storage.Type {
	case "disk":
		return filestore.NewDiskStore(config.Storage.Directory)
	case "s3":
		return filestore.NewS3Store(context.Background(), config.Storage.S3)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", config.Storage.Type)
	}
}

// Ingest runs the upload pipeline for one image.
func (service *CoreService) Ingest(ctx context.Context, userID, filename string, data []byte, title string) (*ingest.IngestResult, error) {
	return service.coordinator.Ingest(ctx, userID, filename, data, title)
}

// DeleteAsset removes an asset, its files, and its quota usage.
func (service *CoreService) DeleteAsset(ctx context.Context, userID, assetID string) error {
	asset, renditions, err := service.databaseService.GetAsset(ctx, assetID)
	if err == nil && asset != nil {
		locations := make([]string, 0, len(renditions))
		for _, rendition := range renditions {
			locations = append(locations, rendition.Location)
		}
		service.renditionCache.Invalidate(ctx, locations...)
	}
	return service.coordinator.Delete(ctx, userID, assetID)
}

// GetAsset returns an asset visible to userID: their own, or a public one.
func (service *CoreService) GetAsset(ctx context.Context, userID, assetID string) (*ingest.Asset, []ingest.Rendition, error) {
	asset, renditions, err := service.databaseService.GetAsset(ctx, assetID)
	if err != nil {
		return nil, nil, err
	}
	if asset == nil || (asset.UserID != userID && !asset.IsPublic) {
		return nil, nil, fmt.Errorf("%w: %s", ingest.ErrNotFound, assetID)
	}
	return asset, renditions, nil
}

// ListAssets returns the user's assets, newest first.
func (service *CoreService) ListAssets(ctx context.Context, userID string) ([]*ingest.Asset, error) {
	return service.databaseService.ListAssets(ctx, userID)
}

// GetRenditionContent returns the stored bytes of one rendition, serving
// from the cache when possible.
func (service *CoreService) GetRenditionContent(ctx context.Context, userID, assetID string, kind ingest.RenditionKind) ([]byte, error) {
	_, renditions, err := service.GetAsset(ctx, userID, assetID)
	if err != nil {
		return nil, err
	}

	for _, rendition := range renditions {
		if rendition.Kind != kind {
			continue
		}
		if data, ok := service.renditionCache.Get(ctx, rendition.Location); ok {
			return data, nil
		}
		data, err := service.fileStore.Read(ctx, rendition.Location)
		if err != nil {
			return nil, err
		}
		service.renditionCache.Set(ctx, rendition.Location, data)
		return data, nil
	}
	return nil, fmt.Errorf("%w: asset %s has no %s rendition", ingest.ErrNotFound, assetID, kind)
}

// SetAssetVisibility toggles the public flag on an asset owned by userID.
func (service *CoreService) SetAssetVisibility(ctx context.Context, userID, assetID string, public bool) error {
	asset, _, err := service.databaseService.GetAsset(ctx, assetID)
	if err != nil {
		return err
	}
	if asset == nil || asset.UserID != userID {
		return fmt.Errorf("%w: %s", ingest.ErrNotFound, assetID)
	}
	return service.databaseService.SetAssetVisibility(ctx, assetID, public)
}

// CreateUser registers a user with the given storage limit; non-positive
// limits fall back to the configured default quota.
func (service *CoreService) CreateUser(ctx context.Context, name string, limitBytes int64) (*database.User, error) {
	if limitBytes <= 0 {
		limitBytes = service.config.DefaultQuotaBytes
	}
	user := &database.User{
		ID:           uuid.NewString(),
		Name:         name,
		StorageLimit: limitBytes,
		CreatedAt:    time.Now().UTC(),
	}
	if err := service.databaseService.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// GetUser returns the user record, or nil when unknown.
func (service *CoreService) GetUser(ctx context.Context, userID string) (*database.User, error) {
	return service.databaseService.GetUser(ctx, userID)
}

func (service *CoreService) Close() error {
	if service.redisCache != nil {
		if err := service.redisCache.Close(); err != nil {
			slog.Error("failed to close rendition cache", "error", err)
		}
	}
	return service.databaseService.Close()
}
