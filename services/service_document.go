package services

import (
	"context"
	"time"

	"pln-staging-api/config"
	"pln-staging-api/models"

	version "github.com/hashicorp/go-version"
)

// ServiceDocument is the handshake returned to a journal before it deposits.
type ServiceDocument struct {
	OnBehalfOf        string
	Accepting         bool
	TermsAccepted     bool
	MaxUploadBytes    int64
	ChecksumAlgorithm string
	Message           string
	Terms             []models.TermOfUse
	TermsUpdated      time.Time
}

// NetworkMessage picks the message shown in the journal's network status
// widget from the OJS version it reported.
func NetworkMessage(cfg config.SwordConfig, ojsVersion string) string {
	if ojsVersion == "" {
		return cfg.NetworkMessageDefault
	}
	if VersionAtLeast(ojsVersion, cfg.MinOjsVersion) {
		return cfg.NetworkMessageAccepting
	}
	return cfg.NetworkMessageOldVersion
}

// VersionAtLeast compares dotted version strings of any length. Versions that
// cannot be parsed are treated as too old.
func VersionAtLeast(have, want string) bool {
	h, err := version.NewVersion(have)
	if err != nil {
		return false
	}
	w, err := version.NewVersion(want)
	if err != nil {
		return true
	}
	return h.GreaterThanOrEqual(w)
}

// BuildServiceDocument assembles the service document for journal.
func BuildServiceDocument(ctx context.Context, cfg config.SwordConfig, terms *TermsService, journal *models.Journal, accepting bool) (*ServiceDocument, error) {
	current, err := terms.Current(ctx)
	if err != nil {
		return nil, err
	}
	updated, err := terms.LastUpdated(ctx)
	if err != nil {
		return nil, err
	}
	return &ServiceDocument{
		OnBehalfOf:        journal.UUID,
		Accepting:         accepting,
		TermsAccepted:     journal.TermsAccepted,
		MaxUploadBytes:    cfg.MaxUploadBytes,
		ChecksumAlgorithm: cfg.ChecksumAlgorithm,
		Message:           NetworkMessage(cfg, journal.OjsVersion),
		Terms:             current,
		TermsUpdated:      updated,
	}, nil
}
