package models

import "gorm.io/gorm"

// Whitelist entries always accept deposits from the journal.
type Whitelist struct {
	Entity
	UUID    string `gorm:"column:uuid;size:36;uniqueIndex;not null" json:"uuid"`
	Comment string `gorm:"column:comment;type:text" json:"comment"`
}

func (Whitelist) TableName() string {
	return "whitelist"
}

func (w *Whitelist) BeforeSave(*gorm.DB) error {
	w.UUID = NormalizeUUID(w.UUID)
	return nil
}

// Blacklist entries refuse deposits unless the journal is also whitelisted.
type Blacklist struct {
	Entity
	UUID    string `gorm:"column:uuid;size:36;uniqueIndex;not null" json:"uuid"`
	Comment string `gorm:"column:comment;type:text" json:"comment"`
}

func (Blacklist) TableName() string {
	return "blacklist"
}

func (b *Blacklist) BeforeSave(*gorm.DB) error {
	b.UUID = NormalizeUUID(b.UUID)
	return nil
}
