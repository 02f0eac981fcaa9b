package services

import (
	"context"
	"errors"
	"fmt"

	"pln-staging-api/config"
	"pln-staging-api/models"

	"gorm.io/gorm"
)

// AccessPolicy decides whether deposits from a journal are accepted.
type AccessPolicy struct {
	db            *gorm.DB
	defaultAccept bool
}

// NewAccessPolicy instantiates the policy. defaultAccept applies to journals
// on neither list.
func NewAccessPolicy(db *gorm.DB, defaultAccept bool) *AccessPolicy {
	if db == nil {
		db = config.DB
	}
	return &AccessPolicy{db: db, defaultAccept: defaultAccept}
}

// WithDB returns a copy bound to db, typically a transaction.
func (p *AccessPolicy) WithDB(db *gorm.DB) *AccessPolicy {
	return &AccessPolicy{db: db, defaultAccept: p.defaultAccept}
}

// IsAccepting applies, in order: whitelisted → true, blacklisted → false,
// otherwise the configured default.
func (p *AccessPolicy) IsAccepting(ctx context.Context, journalUUID string) (bool, error) {
	uuid := models.NormalizeUUID(journalUUID)

	whitelisted, err := p.IsWhitelisted(ctx, uuid)
	if err != nil {
		return false, err
	}
	if whitelisted {
		return true, nil
	}

	blacklisted, err := p.IsBlacklisted(ctx, uuid)
	if err != nil {
		return false, err
	}
	if blacklisted {
		return false, nil
	}

	return p.defaultAccept, nil
}

func (p *AccessPolicy) IsWhitelisted(ctx context.Context, uuid string) (bool, error) {
	return p.listed(ctx, &models.Whitelist{}, uuid)
}

func (p *AccessPolicy) IsBlacklisted(ctx context.Context, uuid string) (bool, error) {
	return p.listed(ctx, &models.Blacklist{}, uuid)
}

func (p *AccessPolicy) listed(ctx context.Context, model interface{}, uuid string) (bool, error) {
	err := p.db.WithContext(ctx).
		Where("uuid = ?", models.NormalizeUUID(uuid)).
		Take(model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check access list: %w", err)
	}
	return true, nil
}

// Whitelist adds uuid to the whitelist, updating the comment if present.
func (p *AccessPolicy) Whitelist(ctx context.Context, uuid, comment string) error {
	entry := models.Whitelist{UUID: models.NormalizeUUID(uuid), Comment: comment}
	return p.upsertEntry(ctx, &models.Whitelist{}, &entry, entry.UUID, comment)
}

// Blacklist adds uuid to the blacklist, updating the comment if present.
func (p *AccessPolicy) Blacklist(ctx context.Context, uuid, comment string) error {
	entry := models.Blacklist{UUID: models.NormalizeUUID(uuid), Comment: comment}
	return p.upsertEntry(ctx, &models.Blacklist{}, &entry, entry.UUID, comment)
}

func (p *AccessPolicy) upsertEntry(ctx context.Context, model, entry interface{}, uuid, comment string) error {
	var count int64
	if err := p.db.WithContext(ctx).Model(model).Where("uuid = ?", uuid).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check access list: %w", err)
	}
	if count > 0 {
		if err := p.db.WithContext(ctx).Model(model).Where("uuid = ?", uuid).Update("comment", comment).Error; err != nil {
			return fmt.Errorf("failed to update access list: %w", err)
		}
		return nil
	}
	if err := p.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to add access list entry: %w", err)
	}
	return nil
}

// Remove deletes uuid from both lists.
func (p *AccessPolicy) Remove(ctx context.Context, uuid string) error {
	uuid = models.NormalizeUUID(uuid)
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("uuid = ?", uuid).Delete(&models.Whitelist{}).Error; err != nil {
			return err
		}
		return tx.Where("uuid = ?", uuid).Delete(&models.Blacklist{}).Error
	})
}
