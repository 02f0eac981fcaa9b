package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pln-staging-api/config"
	"pln-staging-api/models"
	"pln-staging-api/utils"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Placeholders stored for journals first seen through the service document.
const (
	unknownJournalTitle = "unknown"
	unknownJournalISSN  = "unknown"
	unknownJournalEmail = "unknown@unknown.com"
)

// JournalRegistry upserts journal records from protocol traffic.
type JournalRegistry struct {
	db  *gorm.DB
	now func() time.Time
	log *zap.SugaredLogger
}

// NewJournalRegistry instantiates the registry.
func NewJournalRegistry(db *gorm.DB) *JournalRegistry {
	if db == nil {
		db = config.DB
	}
	return &JournalRegistry{db: db, now: time.Now, log: config.Logger}
}

// WithDB returns a copy bound to db, typically a transaction.
func (r *JournalRegistry) WithDB(db *gorm.DB) *JournalRegistry {
	cp := *r
	cp.db = db
	return &cp
}

// Find loads a journal by UUID.
func (r *JournalRegistry) Find(ctx context.Context, uuid string) (*models.Journal, error) {
	var journal models.Journal
	err := r.db.WithContext(ctx).Where("uuid = ?", models.NormalizeUUID(uuid)).Take(&journal).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, newError(ErrNotFound, "Journal %s not found.", models.NormalizeUUID(uuid))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load journal: %w", err)
	}
	return &journal, nil
}

// UpsertFromRequest backs the service document handshake. A missing journal
// is created with placeholder metadata; an existing one only has its contact
// time refreshed (and its URL filled in if it had none).
func (r *JournalRegistry) UpsertFromRequest(ctx context.Context, uuid, journalURL string) (*models.Journal, error) {
	journal, err := r.Find(ctx, uuid)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	now := r.now()
	if journal == nil {
		journal = models.NewJournal(uuid)
		journal.Title = unknownJournalTitle
		journal.ISSN = unknownJournalISSN
		journal.Email = unknownJournalEmail
		journal.URL = journalURL
		journal.MarkContacted(now)
		if err := r.db.WithContext(ctx).Create(journal).Error; err != nil {
			return nil, fmt.Errorf("failed to create journal: %w", err)
		}
		r.log.Infow("journal registered", "journal_uuid", journal.UUID, "url", journalURL)
		return journal, nil
	}

	if journal.URL == "" {
		journal.URL = journalURL
	}
	if journal.Status != models.JournalStatusNew {
		journal.Status = models.JournalStatusHealthy
	}
	journal.MarkContacted(now)
	if err := r.db.WithContext(ctx).Save(journal).Error; err != nil {
		return nil, fmt.Errorf("failed to update journal: %w", err)
	}
	return journal, nil
}

// UpsertFromXml merges journal metadata carried in a deposit document into
// the journal identified by uuid, creating it if needed. Values present in the
// XML replace stored ones; absent values leave the record untouched.
func (r *JournalRegistry) UpsertFromXml(ctx context.Context, doc *ParsedDocument, uuid string) (*models.Journal, error) {
	journal, err := r.Find(ctx, uuid)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if journal == nil {
		journal = models.NewJournal(uuid)
	}

	meta, err := extractJournalMetadata(doc)
	if err != nil {
		return nil, err
	}
	meta.applyTo(journal, r.log)
	journal.MarkContacted(r.now())

	if err := r.db.WithContext(ctx).Save(journal).Error; err != nil {
		return nil, fmt.Errorf("failed to save journal: %w", err)
	}
	return journal, nil
}

// Touch records a successful contact and sets the health status.
func (r *JournalRegistry) Touch(ctx context.Context, journal *models.Journal, status string) error {
	journal.MarkContacted(r.now())
	journal.Status = status
	return r.db.WithContext(ctx).Model(journal).Updates(map[string]interface{}{
		"contacted": journal.Contacted,
		"status":    journal.Status,
	}).Error
}

// DepositsForJournal lists a journal's deposits, oldest first.
func (r *JournalRegistry) DepositsForJournal(ctx context.Context, journalID uint) ([]models.Deposit, error) {
	var deposits []models.Deposit
	if err := r.db.WithContext(ctx).
		Where("journal_id = ?", journalID).
		Order("received ASC, id ASC").
		Find(&deposits).Error; err != nil {
		return nil, fmt.Errorf("failed to list deposits: %w", err)
	}
	return deposits, nil
}

type journalMetadata struct {
	title, issn, url, email, publisherName, publisherURL, ojsVersion string
}

func extractJournalMetadata(doc *ParsedDocument) (*journalMetadata, error) {
	meta := &journalMetadata{}
	fields := []struct {
		expr string
		dst  *string
	}{
		{"//atom:title", &meta.title},
		{"//pkp:issn", &meta.issn},
		{"//pkp:journal_url", &meta.url},
		{"//atom:email", &meta.email},
		{"//pkp:publisherName", &meta.publisherName},
		{"//pkp:publisherUrl", &meta.publisherURL},
		{"//pkp:content/@ojsVersion", &meta.ojsVersion},
	}
	for _, f := range fields {
		v, err := doc.ValueOr(f.expr, "")
		if err != nil {
			return nil, err
		}
		*f.dst = v
	}

	if len(meta.issn) > 9 {
		return nil, newError(ErrValidation, "ISSN %q is too long.", meta.issn)
	}
	if len(meta.url) > 2048 || len(meta.publisherURL) > 2048 {
		return nil, newError(ErrValidation, "Journal URL is too long.")
	}
	return meta, nil
}

func (m *journalMetadata) applyTo(journal *models.Journal, log *zap.SugaredLogger) {
	setIfPresent(&journal.Title, m.title)
	setIfPresent(&journal.ISSN, m.issn)
	setIfPresent(&journal.URL, m.url)
	setIfPresent(&journal.PublisherName, m.publisherName)
	setIfPresent(&journal.PublisherURL, m.publisherURL)
	setIfPresent(&journal.OjsVersion, m.ojsVersion)
	if m.email != "" {
		if utils.ValidateEmail(m.email) {
			journal.Email = m.email
		} else {
			log.Warnw("ignoring invalid journal email", "journal_uuid", journal.UUID, "email", m.email)
		}
	}
}

func setIfPresent(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}
