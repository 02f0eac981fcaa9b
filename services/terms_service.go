package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"pln-staging-api/config"
	"pln-staging-api/models"

	"gorm.io/gorm"
)

var termsTTL = 5 * time.Minute

// termKeyPattern limits key codes to XML NCNames; each key becomes an element
// name in the service document.
var termKeyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9._-]*$`)

type termsCacheEntry struct {
	terms       []models.TermOfUse
	lastUpdated time.Time
	fetchedAt   time.Time
}

// TermsService reads and maintains the published terms of use. Reads are
// cached for termsTTL; every write clears the cache.
type TermsService struct {
	db *gorm.DB

	mu    sync.RWMutex
	cache *termsCacheEntry
}

// NewTermsService instantiates the service.
func NewTermsService(db *gorm.DB) *TermsService {
	if db == nil {
		db = config.DB
	}
	return &TermsService{db: db}
}

func (s *TermsService) load(ctx context.Context, force bool) (*termsCacheEntry, error) {
	s.mu.RLock()
	cached := s.cache
	s.mu.RUnlock()

	if cached != nil && !force && time.Since(cached.fetchedAt) < termsTTL {
		return cached, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cache != nil && !force && time.Since(s.cache.fetchedAt) < termsTTL {
		return s.cache, nil
	}

	var rows []models.TermOfUse
	if err := s.db.WithContext(ctx).Order("weight ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load terms of use: %w", err)
	}

	entry := &termsCacheEntry{terms: rows, fetchedAt: time.Now()}
	for _, t := range rows {
		if t.UpdateAt.After(entry.lastUpdated) {
			entry.lastUpdated = t.UpdateAt
		}
	}
	s.cache = entry
	return entry, nil
}

// ClearCache invalidates the in-memory terms cache.
func (s *TermsService) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = nil
}

// Current returns the terms ordered by weight.
func (s *TermsService) Current(ctx context.Context) ([]models.TermOfUse, error) {
	entry, err := s.load(ctx, false)
	if err != nil {
		return nil, err
	}
	return entry.terms, nil
}

// LastUpdated returns the most recent modification time of any term, or the
// zero time when no terms exist.
func (s *TermsService) LastUpdated(ctx context.Context) (time.Time, error) {
	entry, err := s.load(ctx, false)
	if err != nil {
		return time.Time{}, err
	}
	return entry.lastUpdated, nil
}

// Set creates or replaces the term with keyCode. Changes are recorded in the
// term history by the model hooks.
func (s *TermsService) Set(ctx context.Context, keyCode, content string, weight int) (*models.TermOfUse, error) {
	keyCode = strings.TrimSpace(keyCode)
	if !termKeyPattern.MatchString(keyCode) {
		return nil, newError(ErrValidation, "Term key %q is not a valid element name.", keyCode)
	}
	defer s.ClearCache()

	var term models.TermOfUse
	err := s.db.WithContext(ctx).Where("key_code = ?", keyCode).Take(&term).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		term = models.TermOfUse{KeyCode: keyCode, Content: content, Weight: weight, LangCode: "en-US"}
		if err := s.db.WithContext(ctx).Create(&term).Error; err != nil {
			return nil, fmt.Errorf("failed to create term: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to load term: %w", err)
	default:
		term.Content = content
		term.Weight = weight
		if err := s.db.WithContext(ctx).Save(&term).Error; err != nil {
			return nil, fmt.Errorf("failed to update term: %w", err)
		}
	}
	return &term, nil
}

// Delete removes the term with keyCode.
func (s *TermsService) Delete(ctx context.Context, keyCode string) error {
	defer s.ClearCache()
	var term models.TermOfUse
	if err := s.db.WithContext(ctx).Where("key_code = ?", keyCode).Take(&term).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newError(ErrNotFound, "Term %s not found.", keyCode)
		}
		return fmt.Errorf("failed to load term: %w", err)
	}
	return s.db.WithContext(ctx).Delete(&term).Error
}

// History returns the recorded changes to a term, oldest first.
func (s *TermsService) History(ctx context.Context, termID uint) ([]models.TermOfUseHistory, error) {
	var rows []models.TermOfUseHistory
	err := s.db.WithContext(ctx).Where("term_id = ?", termID).Order("id ASC").Find(&rows).Error
	return rows, err
}
