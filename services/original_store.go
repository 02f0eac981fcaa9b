package services

import (
	"fmt"
	"os"
	"path/filepath"

	"pln-staging-api/models"
)

// OriginalStore locates the package a journal originally submitted. The
// harvester writes packages; the server only reads them.
type OriginalStore interface {
	Open(journal *models.Journal, deposit *models.Deposit) (*os.File, error)
}

// FileOriginalStore keeps packages under Root/<journal uuid>/<deposit uuid>.zip.
type FileOriginalStore struct {
	Root string
}

// NewFileOriginalStore returns a store rooted at root.
func NewFileOriginalStore(root string) *FileOriginalStore {
	return &FileOriginalStore{Root: root}
}

// Path returns where the package for deposit is kept.
func (s *FileOriginalStore) Path(journal *models.Journal, deposit *models.Deposit) string {
	return filepath.Join(s.Root, journal.UUID, deposit.DepositUUID+".zip")
}

// Open opens the stored package. A missing file is reported as ErrNotFound.
func (s *FileOriginalStore) Open(journal *models.Journal, deposit *models.Deposit) (*os.File, error) {
	f, err := os.Open(s.Path(journal, deposit))
	if os.IsNotExist(err) {
		return nil, newError(ErrNotFound, "Original deposit %s is not available.", deposit.DepositUUID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open original deposit: %w", err)
	}
	return f, nil
}
