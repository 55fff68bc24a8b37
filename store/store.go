package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Store is the durable record of which application versions exist per
// platform. All uniqueness and atomicity guarantees are delegated to the
// database: the unique index on (app_name, version, platform) decides races
// between concurrent inserts, and every operation here is a single
// statement (or a lookup followed by a single statement).
type Store struct {
	db *gorm.DB
}

// New wraps an already opened gorm connection. The connection must have
// been opened with TranslateError so constraint violations surface as
// gorm.ErrDuplicatedKey.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates the app_versions table, its unique constraint and
// its secondary indexes.
func (s *Store) AutoMigrate() error {
	if err := s.db.AutoMigrate(&AppVersion{}); err != nil {
		return &StorageError{Inner: fmt.Errorf("migrate app_versions: %w", err)}
	}

	return nil
}

// Patch is the set of field changes for UpdateVersion. Nil fields are left
// untouched; set fields must be non-empty.
type Patch struct {
	AppName   *string
	Version   *string
	Platform  *string
	Timestamp *string
}

func (p Patch) empty() bool {
	return p.AppName == nil && p.Version == nil && p.Platform == nil &&
		p.Timestamp == nil
}

// CreateVersion records a newly published (app, version, platform) build.
// The row's created_at and updated_at are assigned by the store, never by
// the caller. A second insert for the same triple fails with
// DuplicateKeyError.
func (s *Store) CreateVersion(
	ctx context.Context,
	appName, version, platform, timestamp string,
) (*AppVersion, error) {
	if appName == "" || version == "" || platform == "" || timestamp == "" {
		return nil, &ValidationError{
			Reason: fmt.Sprintf(
				"All parameters must be provided: app_name=%q, version=%q, platform=%q, timestamp=%q",
				appName,
				version,
				platform,
				timestamp,
			),
		}
	}

	record := AppVersion{
		AppName:   appName,
		Version:   version,
		Platform:  platform,
		Timestamp: timestamp,
	}

	err := gorm.G[AppVersion](s.db).Create(ctx, &record)
	if err != nil {
		return nil, wrapErrorWithDetails(
			err,
			"create version record",
			fmt.Sprintf(
				"app_name=%s, version=%s, platform=%s",
				appName,
				version,
				platform,
			),
		)
	}

	return &record, nil
}

// UpdateVersion applies the patch to the record identified by id. The
// store rewrites updated_at as part of the same statement regardless of
// which fields changed; created_at is never touched. Changing the triple
// into an existing one fails with DuplicateKeyError.
func (s *Store) UpdateVersion(
	ctx context.Context,
	id uint,
	patch Patch,
) (*AppVersion, error) {
	if patch.empty() {
		return nil, &ValidationError{
			Reason: "at least one field must be provided for update",
		}
	}

	updates := map[string]any{}
	if patch.AppName != nil {
		if *patch.AppName == "" {
			return nil, &ValidationError{Reason: "app_name cannot be empty"}
		}
		updates["app_name"] = *patch.AppName
	}
	if patch.Version != nil {
		if *patch.Version == "" {
			return nil, &ValidationError{Reason: "version cannot be empty"}
		}
		updates["version"] = *patch.Version
	}
	if patch.Platform != nil {
		if *patch.Platform == "" {
			return nil, &ValidationError{Reason: "platform cannot be empty"}
		}
		updates["platform"] = *patch.Platform
	}
	if patch.Timestamp != nil {
		if *patch.Timestamp == "" {
			return nil, &ValidationError{Reason: "timestamp cannot be empty"}
		}
		updates["timestamp"] = *patch.Timestamp
	}

	detailString := fmt.Sprintf("id=%d", id)

	// Check that the record exists
	if _, err := s.GetVersionByID(ctx, id); err != nil {
		return nil, err
	}

	result := s.db.WithContext(ctx).
		Model(&AppVersion{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return nil, wrapErrorWithDetails(
			result.Error,
			"update version record",
			detailString,
		)
	}
	if result.RowsAffected == 0 {
		return nil, &NotFoundError{Search: detailString}
	}

	return s.GetVersionByID(ctx, id)
}

// GetVersionByID retrieves a single record by its surrogate key.
func (s *Store) GetVersionByID(ctx context.Context, id uint) (*AppVersion, error) {
	record, err := gorm.G[AppVersion](s.db).
		Where("id = ?", id).
		First(ctx)
	if err != nil {
		return nil, wrapErrorWithDetails(
			err,
			"get version record by id",
			fmt.Sprintf("id=%d", id),
		)
	}

	return &record, nil
}

// GetVersion retrieves the single record for an exact (app, version,
// platform) triple.
func (s *Store) GetVersion(
	ctx context.Context,
	appName, version, platform string,
) (*AppVersion, error) {
	if appName == "" || version == "" || platform == "" {
		return nil, &ValidationError{
			Reason: fmt.Sprintf(
				"All parameters must be provided: app_name=%q, version=%q, platform=%q",
				appName,
				version,
				platform,
			),
		}
	}

	record, err := gorm.G[AppVersion](s.db).
		Where(&AppVersion{AppName: appName, Version: version, Platform: platform}).
		First(ctx)
	if err != nil {
		return nil, wrapErrorWithDetails(
			err,
			"get version record",
			fmt.Sprintf(
				"app_name=%s, version=%s, platform=%s",
				appName,
				version,
				platform,
			),
		)
	}

	return &record, nil
}

// GetVersionsByApp returns every record for an application across all
// versions and platforms.
func (s *Store) GetVersionsByApp(
	ctx context.Context,
	appName string,
) ([]AppVersion, error) {
	if appName == "" {
		return nil, &ValidationError{Reason: "app_name cannot be empty"}
	}

	records, err := gorm.G[AppVersion](s.db).
		Where(&AppVersion{AppName: appName}).
		Order("created_at ASC").
		Find(ctx)
	if err != nil {
		return nil, wrapErrorWithDetails(
			err,
			"get versions by app",
			fmt.Sprintf("app_name=%s", appName),
		)
	}

	return records, nil
}

// GetVersionsByAppAndVersion returns the per-platform records for one
// version of an application.
func (s *Store) GetVersionsByAppAndVersion(
	ctx context.Context,
	appName, version string,
) ([]AppVersion, error) {
	if appName == "" || version == "" {
		return nil, &ValidationError{
			Reason: fmt.Sprintf(
				"All parameters must be provided: app_name=%q, version=%q",
				appName,
				version,
			),
		}
	}

	records, err := gorm.G[AppVersion](s.db).
		Where(&AppVersion{AppName: appName, Version: version}).
		Order("created_at ASC").
		Find(ctx)
	if err != nil {
		return nil, wrapErrorWithDetails(
			err,
			"get versions by app and version",
			fmt.Sprintf("app_name=%s, version=%s", appName, version),
		)
	}

	return records, nil
}

// GetVersionsByPlatform returns every record published for a platform.
func (s *Store) GetVersionsByPlatform(
	ctx context.Context,
	platform string,
) ([]AppVersion, error) {
	if platform == "" {
		return nil, &ValidationError{Reason: "platform cannot be empty"}
	}

	records, err := gorm.G[AppVersion](s.db).
		Where(&AppVersion{Platform: platform}).
		Order("created_at ASC").
		Find(ctx)
	if err != nil {
		return nil, wrapErrorWithDetails(
			err,
			"get versions by platform",
			fmt.Sprintf("platform=%s", platform),
		)
	}

	return records, nil
}

// GetVersionsByAppAndPlatform returns the version history for an app on a
// platform in insertion order. Version strings are opaque here; callers
// wanting semantic ordering must sort on their side.
func (s *Store) GetVersionsByAppAndPlatform(
	ctx context.Context,
	appName, platform string,
) ([]AppVersion, error) {
	if appName == "" || platform == "" {
		return nil, &ValidationError{
			Reason: fmt.Sprintf(
				"All parameters must be provided: app_name=%q, platform=%q",
				appName,
				platform,
			),
		}
	}

	records, err := gorm.G[AppVersion](s.db).
		Where(&AppVersion{AppName: appName, Platform: platform}).
		Order("created_at ASC").
		Find(ctx)
	if err != nil {
		return nil, wrapErrorWithDetails(
			err,
			"get versions by app and platform",
			fmt.Sprintf("app_name=%s, platform=%s", appName, platform),
		)
	}

	return records, nil
}

// GetLatestVersion returns the most recently recorded build for an app on
// a platform, "latest" meaning newest created_at, not highest version
// string.
func (s *Store) GetLatestVersion(
	ctx context.Context,
	appName, platform string,
) (*AppVersion, error) {
	if appName == "" || platform == "" {
		return nil, &ValidationError{
			Reason: fmt.Sprintf(
				"All parameters must be provided: app_name=%q, platform=%q",
				appName,
				platform,
			),
		}
	}

	record, err := gorm.G[AppVersion](s.db).
		Where(&AppVersion{AppName: appName, Platform: platform}).
		Order("created_at DESC, id DESC").
		First(ctx)
	if err != nil {
		return nil, wrapErrorWithDetails(
			err,
			"get latest version",
			fmt.Sprintf("app_name=%s, platform=%s", appName, platform),
		)
	}

	return &record, nil
}

// GetRecentVersions returns every record created at or after since, for
// change-feed and audit use.
func (s *Store) GetRecentVersions(
	ctx context.Context,
	since time.Time,
) ([]AppVersion, error) {
	records, err := gorm.G[AppVersion](s.db).
		Where("created_at >= ?", since).
		Order("created_at ASC").
		Find(ctx)
	if err != nil {
		return nil, wrapErrorWithDetails(
			err,
			"get recent versions",
			fmt.Sprintf("since=%s", since.Format(time.RFC3339)),
		)
	}

	return records, nil
}

// DeleteVersions removes every platform record for one version of an app
// and returns the removed rows. Deletion is not part of the record
// lifecycle itself; this exists for the registry's administrative delete
// endpoint and reuses NotFoundError when the version was never published.
func (s *Store) DeleteVersions(
	ctx context.Context,
	appName, version string,
) ([]AppVersion, error) {
	records, err := s.GetVersionsByAppAndVersion(ctx, appName, version)
	if err != nil {
		return nil, err
	}

	if len(records) == 0 {
		return nil, &NotFoundError{
			Search: fmt.Sprintf("app_name=%s, version=%s", appName, version),
		}
	}

	_, err = gorm.G[AppVersion](s.db).
		Where(&AppVersion{AppName: appName, Version: version}).
		Delete(ctx)
	if err != nil {
		return nil, wrapErrorWithDetails(
			err,
			"delete version records",
			fmt.Sprintf("app_name=%s, version=%s", appName, version),
		)
	}

	return records, nil
}
