package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Asset is the record of one uploaded original image. Immutable after
// creation except for title, description, and visibility.
type Asset struct {
	ID           string
	UserID       string
	Title        string
	Description  string
	OriginalName string
	MIMEType     string
	Size         int64
	Width        int
	Height       int
	Location     string
	IsPublic     bool
	CreatedAt    time.Time
}

// Rendition is one stored derived version of an asset. The ORIGINAL
// rendition shares the asset's location and bytes; the tier renditions own
// separate files.
type Rendition struct {
	ID        string
	AssetID   string
	Kind      RenditionKind
	Size      int64
	Width     int
	Height    int
	Location  string
	CreatedAt time.Time
}

// IngestResult is the persisted outcome of a successful ingestion.
type IngestResult struct {
	Asset      *Asset
	Renditions []Rendition
}

// AssetRemoval reports what a confirmed record deletion freed: the distinct
// storage locations to reclaim and the byte total to return to the owner's
// quota (the shared ORIGINAL file counted once).
type AssetRemoval struct {
	Locations []string
	Bytes     int64
}

// RecordStore is the persistence contract the coordinator consumes. Asset
// and rendition records are created as a single logical unit: either all
// rows exist afterwards or none do. DeleteAsset mirrors that: it removes the
// unit and reports what it removed, or returns nil when the asset no longer
// exists, so exactly one caller ever observes the removal.
type RecordStore interface {
	CreateAsset(ctx context.Context, asset *Asset, renditions []Rendition) error
	GetAsset(ctx context.Context, assetID string) (*Asset, []Rendition, error)
	DeleteAsset(ctx context.Context, assetID string) (*AssetRemoval, error)
}

// FileStore is the file-storage contract. Delete tolerates missing files so
// rollback and asset deletion can be retried safely.
type FileStore interface {
	Write(ctx context.Context, location string, data []byte) error
	Read(ctx context.Context, location string) ([]byte, error)
	Delete(ctx context.Context, location string) error
}

// Coordinator drives one upload through the pipeline:
// validate -> derive -> reserve quota -> persist -> commit. Any failure
// after the reservation triggers compensating cleanup (delete every file
// written in the attempt, release the reservation) before the error is
// returned, so a failed ingestion leaves no trace.
type Coordinator struct {
	deriver        *Deriver
	ledger         *Ledger
	records        RecordStore
	files          FileStore
	maxUploadBytes int64
}

func NewCoordinator(deriver *Deriver, ledger *Ledger, records RecordStore, files FileStore, maxUploadBytes int64) *Coordinator {
	return &Coordinator{
		deriver:        deriver,
		ledger:         ledger,
		records:        records,
		files:          files,
		maxUploadBytes: maxUploadBytes,
	}
}

// Ingest runs the full pipeline for one upload. The title falls back to the
// uploaded filename when empty. Errors are the typed pipeline errors:
// ErrInvalidInput, *DecodeError, *EncodeError, ErrQuotaExceeded,
// *StorageError.
func (c *Coordinator) Ingest(ctx context.Context, userID, filename string, data []byte, titleHint string) (*IngestResult, error) {
	// Validating
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: upload is empty", ErrInvalidInput)
	}
	if c.maxUploadBytes > 0 && int64(len(data)) > c.maxUploadBytes {
		return nil, fmt.Errorf("%w: upload of %d bytes exceeds limit of %d bytes",
			ErrInvalidInput, len(data), c.maxUploadBytes)
	}

	// Deriving. Nothing has been written yet, so failures here and in the
	// quota step need no rollback.
	derivation, err := c.deriver.Derive(ctx, data)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// ReservingQuota
	reservation, err := c.ledger.Reserve(ctx, userID, derivation.TotalBytes)
	if err != nil {
		return nil, err
	}

	// Persisting. Once the reservation is held the attempt runs to
	// completion or to a full rollback; caller cancellation must not leave
	// half-written state behind.
	persistCtx := context.WithoutCancel(ctx)
	result, err := c.persist(persistCtx, userID, filename, titleHint, derivation, reservation)
	if err != nil {
		return nil, err
	}

	// Committed
	reservation.Commit()
	slog.Info("ingestion committed",
		"user_id", userID,
		"asset_id", result.Asset.ID,
		"renditions", len(result.Renditions),
		"total_bytes", derivation.TotalBytes)
	return result, nil
}

func (c *Coordinator) persist(ctx context.Context, userID, filename, titleHint string, derivation *Derivation, reservation *Reservation) (*IngestResult, error) {
	assetID := uuid.NewString()
	baseName := assetID + ".jpg"
	now := time.Now().UTC()

	title := titleHint
	if title == "" {
		title = filename
	}

	asset := &Asset{
		ID:           assetID,
		UserID:       userID,
		Title:        title,
		OriginalName: filename,
		MIMEType:     derivation.Original.MIME,
		Size:         derivation.Original.Size,
		Width:        derivation.Original.Width,
		Height:       derivation.Original.Height,
		Location:     baseName,
		CreatedAt:    now,
	}

	var written []string
	if err := c.files.Write(ctx, asset.Location, derivation.Original.Bytes); err != nil {
		c.rollback(ctx, written, reservation)
		return nil, &StorageError{Op: "write original", Err: err}
	}
	written = append(written, asset.Location)

	// The ORIGINAL rendition references the asset's own file.
	renditions := []Rendition{{
		ID:        uuid.NewString(),
		AssetID:   assetID,
		Kind:      KindOriginal,
		Size:      derivation.Original.Size,
		Width:     derivation.Original.Width,
		Height:    derivation.Original.Height,
		Location:  asset.Location,
		CreatedAt: now,
	}}

	for _, derived := range derivation.Renditions {
		location := strings.ToLower(derived.Kind.String()) + "-" + baseName
		if err := c.files.Write(ctx, location, derived.Bytes); err != nil {
			c.rollback(ctx, written, reservation)
			return nil, &StorageError{Op: fmt.Sprintf("write %s rendition", derived.Kind), Err: err}
		}
		written = append(written, location)

		renditions = append(renditions, Rendition{
			ID:        uuid.NewString(),
			AssetID:   assetID,
			Kind:      derived.Kind,
			Size:      derived.Size,
			Width:     derived.Width,
			Height:    derived.Height,
			Location:  location,
			CreatedAt: now,
		})
	}

	if err := c.records.CreateAsset(ctx, asset, renditions); err != nil {
		c.rollback(ctx, written, reservation)
		return nil, &StorageError{Op: "create records", Err: err}
	}

	return &IngestResult{Asset: asset, Renditions: renditions}, nil
}

// rollback undoes a partially persisted attempt. Every acquired resource is
// released regardless of earlier rollback failures; secondary errors are
// logged and swallowed so the caller sees the primary failure.
func (c *Coordinator) rollback(ctx context.Context, written []string, reservation *Reservation) {
	for _, location := range written {
		if err := c.files.Delete(ctx, location); err != nil {
			slog.Error("rollback: failed to delete file", "location", location, "error", err)
		}
	}
	if err := reservation.Release(ctx); err != nil {
		slog.Error("rollback: failed to release quota reservation",
			"bytes", reservation.Bytes(), "error", err)
	}
}

// Delete removes an asset owned by userID: records first, then files
// (best-effort, missing files tolerated), then the quota adjustment.
// Returns ErrNotFound when the asset does not exist or belongs to someone
// else. The quota is adjusted only for the caller whose record deletion was
// confirmed, so concurrent deletes of the same asset reclaim its bytes once.
func (c *Coordinator) Delete(ctx context.Context, userID, assetID string) error {
	asset, _, err := c.records.GetAsset(ctx, assetID)
	if err != nil {
		return &StorageError{Op: "load asset", Err: err}
	}
	if asset == nil || asset.UserID != userID {
		return fmt.Errorf("%w: %s", ErrNotFound, assetID)
	}

	removal, err := c.records.DeleteAsset(ctx, assetID)
	if err != nil {
		return &StorageError{Op: "delete records", Err: err}
	}
	if removal == nil {
		// A concurrent delete removed the records after the ownership check;
		// that caller owns the file cleanup and the quota adjustment.
		return fmt.Errorf("%w: %s", ErrNotFound, assetID)
	}

	for _, location := range removal.Locations {
		if err := c.files.Delete(ctx, location); err != nil {
			slog.Warn("failed to delete asset file", "location", location, "error", err)
		}
	}

	if err := c.ledger.AdjustOnDelete(ctx, userID, removal.Bytes); err != nil {
		return err
	}

	slog.Info("asset deleted", "user_id", userID, "asset_id", assetID, "reclaimed_bytes", removal.Bytes)
	return nil
}
