package services

import (
	"context"
	"fmt"
	"time"

	"pln-staging-api/config"
	"pln-staging-api/models"

	"gorm.io/gorm"
)

// Statement is the status view of a deposit returned to the journal.
type Statement struct {
	JournalUUID      string
	JournalTitle     string
	DepositUUID      string
	Action           string
	State            string
	StateDescription string
	PlnState         string
	Received         time.Time
	Volume           int
	Issue            int
	PubDate          *time.Time
	ChecksumType     string
	ChecksumValue    string
	URL              string
	Size             int64
	HarvestAttempts  int
	License          models.LicenseTerms

	PackageSize          *int64
	PackageChecksumType  string
	PackageChecksumValue string
	DepositDate          *time.Time
	DepositReceipt       string

	ErrorLog []string
}

// StatementService renders deposit statements and records that the journal
// polled successfully.
type StatementService struct {
	journals *JournalRegistry
}

// NewStatementService instantiates the service.
func NewStatementService(db *gorm.DB) *StatementService {
	if db == nil {
		db = config.DB
	}
	return &StatementService{journals: NewJournalRegistry(db)}
}

// WithDB returns a copy bound to db, typically a transaction.
func (s *StatementService) WithDB(db *gorm.DB) *StatementService {
	return &StatementService{journals: s.journals.WithDB(db)}
}

// Render builds the statement for deposit. The deposit must be owned by
// journal; on success the journal is marked healthy and contacted.
func (s *StatementService) Render(ctx context.Context, journal *models.Journal, deposit *models.Deposit) (*Statement, error) {
	if journal == nil || deposit == nil || deposit.JournalID != journal.ID {
		return nil, newError(ErrForbiddenCrossReference, "Deposit does not belong to journal.")
	}
	if err := s.journals.Touch(ctx, journal, models.JournalStatusHealthy); err != nil {
		return nil, fmt.Errorf("failed to record journal contact: %w", err)
	}
	return NewStatement(journal, deposit), nil
}

// NewStatement copies the fields of a deposit into a statement view.
func NewStatement(journal *models.Journal, deposit *models.Deposit) *Statement {
	st := &Statement{
		JournalUUID:      journal.UUID,
		JournalTitle:     journal.String(),
		DepositUUID:      deposit.DepositUUID,
		Action:           deposit.Action,
		State:            deposit.State,
		StateDescription: models.StateDescriptions[deposit.State],
		Received:         deposit.Received,
		Volume:           deposit.Volume,
		Issue:            deposit.Issue,
		PubDate:          deposit.PubDate,
		ChecksumType:     deposit.ChecksumType,
		ChecksumValue:    deposit.ChecksumValue,
		URL:              deposit.URL,
		Size:             deposit.Size,
		HarvestAttempts:  deposit.HarvestAttempts,
		License:          deposit.LicenseTerms(),
		PackageSize:      deposit.PackageSize,
		DepositDate:      deposit.DepositDate,
		ErrorLog:         append([]string(nil), deposit.ErrorLog...),
	}
	if deposit.PlnState != nil {
		st.PlnState = *deposit.PlnState
	}
	if deposit.PackageChecksumType != nil {
		st.PackageChecksumType = *deposit.PackageChecksumType
	}
	if deposit.PackageChecksumValue != nil {
		st.PackageChecksumValue = *deposit.PackageChecksumValue
	}
	if deposit.DepositReceipt != nil {
		st.DepositReceipt = *deposit.DepositReceipt
	}
	return st
}
