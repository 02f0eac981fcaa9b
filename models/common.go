package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Entity holds the identity and timestamps shared by every table.
type Entity struct {
	ID       uint      `gorm:"primaryKey;column:id" json:"id"`
	CreateAt time.Time `gorm:"column:create_at;autoCreateTime" json:"create_at"`
	UpdateAt time.Time `gorm:"column:update_at;autoUpdateTime" json:"update_at"`
}

// NormalizeUUID trims and upper-cases a journal or deposit UUID.
func NormalizeUUID(uuid string) string {
	return strings.ToUpper(strings.TrimSpace(uuid))
}

// AutoMigrate creates or updates every table the server owns.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Journal{},
		&Deposit{},
		&TermOfUse{},
		&TermOfUseHistory{},
		&Whitelist{},
		&Blacklist{},
		&User{},
	)
}
