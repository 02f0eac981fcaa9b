package models

import (
	"encoding/json"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Term of use history actions.
const (
	TermActionCreate = "create"
	TermActionUpdate = "update"
	TermActionDelete = "delete"
)

// TermOfUse is one clause of the terms journals must accept before depositing.
// KeyCode becomes the element name in the service document.
type TermOfUse struct {
	Entity
	Weight   int    `gorm:"column:weight;not null" json:"weight"`
	KeyCode  string `gorm:"column:key_code;not null" json:"key_code"`
	LangCode string `gorm:"column:lang_code;size:8;not null;default:'en-US'" json:"lang_code"`
	Content  string `gorm:"column:content;type:text;not null" json:"content"`
}

func (TermOfUse) TableName() string {
	return "term_of_use"
}

// TermOfUseHistory records every change to a term.
type TermOfUseHistory struct {
	Entity
	TermID    uint           `gorm:"column:term_id;not null;index" json:"term_id"`
	Action    string         `gorm:"column:action;size:8;not null" json:"action"`
	ChangeSet datatypes.JSON `gorm:"column:change_set" json:"change_set"`
	User      string         `gorm:"column:user" json:"user"`
}

func (TermOfUseHistory) TableName() string {
	return "term_of_use_history"
}

func (t *TermOfUse) AfterCreate(tx *gorm.DB) error {
	return t.recordHistory(tx, TermActionCreate)
}

func (t *TermOfUse) AfterUpdate(tx *gorm.DB) error {
	return t.recordHistory(tx, TermActionUpdate)
}

func (t *TermOfUse) AfterDelete(tx *gorm.DB) error {
	return t.recordHistory(tx, TermActionDelete)
}

func (t *TermOfUse) recordHistory(tx *gorm.DB, action string) error {
	changes, err := json.Marshal(map[string]interface{}{
		"weight":    t.Weight,
		"key_code":  t.KeyCode,
		"lang_code": t.LangCode,
		"content":   t.Content,
	})
	if err != nil {
		return err
	}
	user, _ := tx.Statement.Context.Value(HistoryUserKey{}).(string)
	if user == "" {
		user = "console"
	}
	return tx.Session(&gorm.Session{SkipHooks: true}).Create(&TermOfUseHistory{
		TermID:    t.ID,
		Action:    action,
		ChangeSet: datatypes.JSON(changes),
		User:      user,
	}).Error
}

// HistoryUserKey is the context key naming who made a change recorded in a
// history table.
type HistoryUserKey struct{}
