package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jo-hoe/picstash/internal/ingest"

	_ "modernc.org/sqlite"
)

type SQLiteDatabase struct {
	db               *sql.DB
	connectionString string
}

func NewSQLiteDatabase(connectionString string) (DatabaseService, error) {
	db, err := sql.Open("sqlite", connectionString)
	if err != nil {
		return nil, err
	}
	// A single connection keeps in-memory databases coherent and serializes
	// writers, which SQLite requires anyway.
	db.SetMaxOpenConns(1)

	return &SQLiteDatabase{
		db:               db,
		connectionString: connectionString,
	}, nil
}

func (s *SQLiteDatabase) CreateDatabase() (*sql.DB, error) {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			name          TEXT NOT NULL,
			storage_used  INTEGER NOT NULL DEFAULT 0,
			storage_limit INTEGER NOT NULL,
			created_at    TIMESTAMP NOT NULL
		);
		CREATE TABLE IF NOT EXISTS assets (
			id            TEXT PRIMARY KEY,
			user_id       TEXT NOT NULL,
			title         TEXT NOT NULL,
			description   TEXT NOT NULL DEFAULT '',
			original_name TEXT NOT NULL,
			mime_type     TEXT NOT NULL,
			size          INTEGER NOT NULL,
			width         INTEGER NOT NULL,
			height        INTEGER NOT NULL,
			location      TEXT NOT NULL,
			is_public     INTEGER NOT NULL DEFAULT 0,
			created_at    TIMESTAMP NOT NULL
		);
		CREATE TABLE IF NOT EXISTS renditions (
			id         TEXT PRIMARY KEY,
			asset_id   TEXT NOT NULL,
			kind       TEXT NOT NULL,
			size       INTEGER NOT NULL,
			width      INTEGER NOT NULL,
			height     INTEGER NOT NULL,
			location   TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_assets_user ON assets(user_id);
		CREATE INDEX IF NOT EXISTS idx_renditions_asset ON renditions(asset_id);
	`)
	if err != nil {
		return nil, err
	}

	return s.db, nil
}

func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteDatabase) DoesDatabaseExist() bool {
	// In SQLite the database file is created on connect, so a successful
	// ping is the existence check.
	err := s.db.Ping()
	return err == nil
}

func (s *SQLiteDatabase) CreateUser(ctx context.Context, user *User) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO users (id, name, storage_used, storage_limit, created_at) VALUES (?, ?, ?, ?, ?)",
		user.ID, user.Name, user.StorageUsed, user.StorageLimit, user.CreatedAt)
	return err
}

func (s *SQLiteDatabase) GetUser(ctx context.Context, userID string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, name, storage_used, storage_limit, created_at FROM users WHERE id = ?", userID)
	var user User
	err := row.Scan(&user.ID, &user.Name, &user.StorageUsed, &user.StorageLimit, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// IncrementUsed performs the quota check and increment in one conditional
// UPDATE. Zero rows affected means the condition failed (or the user is
// unknown, which is reported as an error instead).
func (s *SQLiteDatabase) IncrementUsed(ctx context.Context, userID string, delta int64) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		"UPDATE users SET storage_used = storage_used + ? WHERE id = ? AND storage_used + ? <= storage_limit",
		delta, userID, delta)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected > 0 {
		return true, nil
	}

	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return false, err
	}
	if user == nil {
		return false, fmt.Errorf("unknown user %s", userID)
	}
	return false, nil
}

func (s *SQLiteDatabase) DecrementUsed(ctx context.Context, userID string, delta int64) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var used int64
	row := tx.QueryRowContext(ctx, "SELECT storage_used FROM users WHERE id = ?", userID)
	if err := row.Scan(&used); err != nil {
		if err == sql.ErrNoRows {
			return false, fmt.Errorf("unknown user %s", userID)
		}
		return false, err
	}

	clamped := delta > used
	newUsed := used - delta
	if clamped {
		newUsed = 0
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE users SET storage_used = ? WHERE id = ?", newUsed, userID); err != nil {
		return false, err
	}
	return clamped, tx.Commit()
}

func (s *SQLiteDatabase) CreateAsset(ctx context.Context, asset *ingest.Asset, renditions []ingest.Rendition) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `INSERT INTO assets
		(id, user_id, title, description, original_name, mime_type, size, width, height, location, is_public, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		asset.ID, asset.UserID, asset.Title, asset.Description, asset.OriginalName, asset.MIMEType,
		asset.Size, asset.Width, asset.Height, asset.Location, asset.IsPublic, asset.CreatedAt)
	if err != nil {
		return err
	}

	for _, rendition := range renditions {
		_, err = tx.ExecContext(ctx, `INSERT INTO renditions
			(id, asset_id, kind, size, width, height, location, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			rendition.ID, rendition.AssetID, string(rendition.Kind), rendition.Size,
			rendition.Width, rendition.Height, rendition.Location, rendition.CreatedAt)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

const assetColumns = "id, user_id, title, description, original_name, mime_type, size, width, height, location, is_public, created_at"

func scanAsset(row interface{ Scan(...any) error }) (*ingest.Asset, error) {
	var asset ingest.Asset
	err := row.Scan(&asset.ID, &asset.UserID, &asset.Title, &asset.Description, &asset.OriginalName,
		&asset.MIMEType, &asset.Size, &asset.Width, &asset.Height, &asset.Location, &asset.IsPublic,
		&asset.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &asset, nil
}

func (s *SQLiteDatabase) GetAsset(ctx context.Context, assetID string) (*ingest.Asset, []ingest.Rendition, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+assetColumns+" FROM assets WHERE id = ?", assetID)
	asset, err := scanAsset(row)
	if err == sql.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, asset_id, kind, size, width, height, location, created_at
		FROM renditions WHERE asset_id = ?
		ORDER BY CASE kind
			WHEN 'ORIGINAL' THEN 0
			WHEN 'LARGE' THEN 1
			WHEN 'MEDIUM' THEN 2
			WHEN 'SMALL' THEN 3
			ELSE 4 END`, assetID)
	if err != nil {
		return nil, nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var renditions []ingest.Rendition
	for rows.Next() {
		var rendition ingest.Rendition
		var kind string
		if err := rows.Scan(&rendition.ID, &rendition.AssetID, &kind, &rendition.Size,
			&rendition.Width, &rendition.Height, &rendition.Location, &rendition.CreatedAt); err != nil {
			return nil, nil, err
		}
		rendition.Kind = ingest.RenditionKind(kind)
		renditions = append(renditions, rendition)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return asset, renditions, nil
}

func (s *SQLiteDatabase) ListAssets(ctx context.Context, userID string) ([]*ingest.Asset, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+assetColumns+" FROM assets WHERE user_id = ? ORDER BY created_at DESC", userID)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var assets []*ingest.Asset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, asset)
	}
	return assets, rows.Err()
}

// DeleteAsset removes the asset and its rendition rows in one transaction
// and reports the distinct locations and byte total they occupied. Returns
// nil without error when the asset row no longer exists, so of two racing
// deletes only one observes the removal.
func (s *SQLiteDatabase) DeleteAsset(ctx context.Context, assetID string) (*ingest.AssetRemoval, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var assetSize int64
	var assetLocation string
	row := tx.QueryRowContext(ctx, "SELECT size, location FROM assets WHERE id = ?", assetID)
	if err := row.Scan(&assetSize, &assetLocation); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	// The ORIGINAL rendition shares the asset's file; count its location and
	// size exactly once.
	removal := &ingest.AssetRemoval{Bytes: assetSize}
	seen := map[string]struct{}{assetLocation: {}}

	rows, err := tx.QueryContext(ctx,
		"SELECT kind, size, location FROM renditions WHERE asset_id = ?", assetID)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var kind, location string
		var size int64
		if err := rows.Scan(&kind, &size, &location); err != nil {
			_ = rows.Close()
			return nil, err
		}
		if ingest.RenditionKind(kind) != ingest.KindOriginal {
			removal.Bytes += size
		}
		seen[location] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	if _, err := tx.ExecContext(ctx, "DELETE FROM renditions WHERE asset_id = ?", assetID); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM assets WHERE id = ?", assetID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	for location := range seen {
		removal.Locations = append(removal.Locations, location)
	}
	return removal, nil
}

func (s *SQLiteDatabase) SetAssetVisibility(ctx context.Context, assetID string, public bool) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE assets SET is_public = ? WHERE id = ?", public, assetID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("unknown asset %s", assetID)
	}
	return nil
}
