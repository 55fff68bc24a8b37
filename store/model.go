package store

import (
	"time"
)

// AppVersion is one published build of an application: the (app_name,
// version, platform) triple plus the publisher-supplied timestamp and the
// row bookkeeping times. Version and Timestamp are opaque text; nothing in
// this package parses them.
type AppVersion struct {
	ID uint `gorm:"primaryKey" json:"id"`

	AppName  string `gorm:"size:255;not null;uniqueIndex:uniq_app_version_platform,priority:1;index:idx_app_versions_app_name;index:idx_app_versions_app_version,priority:1;index:idx_app_versions_app_platform,priority:1" json:"app_name"`
	Version  string `gorm:"size:255;not null;uniqueIndex:uniq_app_version_platform,priority:2;index:idx_app_versions_app_version,priority:2" json:"version"`
	Platform string `gorm:"size:255;not null;uniqueIndex:uniq_app_version_platform,priority:3;index:idx_app_versions_platform;index:idx_app_versions_app_platform,priority:2" json:"platform"`

	// Logical publish time supplied by the uploader, distinct from the
	// bookkeeping times below.
	Timestamp string `gorm:"size:255;not null" json:"timestamp"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP;index:idx_app_versions_created_at" json:"created_at"`
	// Maintained by the ORM on every write; callers cannot override it.
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (AppVersion) TableName() string {
	return "app_versions"
}
