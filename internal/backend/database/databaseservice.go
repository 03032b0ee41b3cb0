package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/jo-hoe/picstash/internal/ingest"
)

// User carries the account row, including the quota ledger entry
// (storage_used/storage_limit) the ingestion pipeline accounts against.
type User struct {
	ID           string
	Name         string
	StorageUsed  int64
	StorageLimit int64
	CreatedAt    time.Time
}

type DatabaseService interface {
	CreateDatabase() (*sql.DB, error)
	DoesDatabaseExist() bool
	Close() error

	CreateUser(ctx context.Context, user *User) error
	// GetUser returns nil without error when the user does not exist.
	GetUser(ctx context.Context, userID string) (*User, error)

	// Quota ledger contract (see ingest.QuotaStore). IncrementUsed performs
	// the check-and-increment as one conditional statement so concurrent
	// reserves for the same user cannot interleave.
	IncrementUsed(ctx context.Context, userID string, delta int64) (ok bool, err error)
	DecrementUsed(ctx context.Context, userID string, delta int64) (clamped bool, err error)

	// CreateAsset inserts the asset row and all rendition rows in a single
	// transaction.
	CreateAsset(ctx context.Context, asset *ingest.Asset, renditions []ingest.Rendition) error
	// GetAsset returns nil without error when the asset does not exist.
	// Renditions come back in fixed kind order (ORIGINAL, LARGE, MEDIUM,
	// SMALL) so callers and tests see a stable sequence.
	GetAsset(ctx context.Context, assetID string) (*ingest.Asset, []ingest.Rendition, error)
	ListAssets(ctx context.Context, userID string) ([]*ingest.Asset, error)
	// DeleteAsset removes asset and rendition rows transactionally and
	// reports the locations and bytes to reclaim; nil without error means
	// the asset was already gone.
	DeleteAsset(ctx context.Context, assetID string) (*ingest.AssetRemoval, error)
	SetAssetVisibility(ctx context.Context, assetID string, public bool) error
}
