package services

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"pln-staging-api/config"
	"pln-staging-api/models"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	testJournalUUID = "44428B12-CDC4-453E-8157-319004CD8CE6"
	testDepositUUID = "F93A8108-B705-4763-A592-B718B00BD4EA"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := config.OpenDB(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), logger.Silent)
	require.NoError(t, err)
	require.NoError(t, models.AutoMigrate(db))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

func testSwordConfig() config.SwordConfig {
	return config.SwordConfig{
		DefaultAccept:            true,
		MaxUploadBytes:           1 << 20,
		ChecksumAlgorithm:        config.DefaultChecksumAlgorithm,
		MinOjsVersion:            config.DefaultMinOjsVersion,
		NetworkMessageDefault:    "default",
		NetworkMessageAccepting:  "accepting",
		NetworkMessageOldVersion: "old",
	}
}

func createJournal(t *testing.T, db *gorm.DB, uuid string) *models.Journal {
	t.Helper()
	journal := models.NewJournal(uuid)
	journal.URL = "http://example.com/ojs/index.php/test"
	journal.Title = "Test Journal"
	journal.Email = "editor@example.com"
	journal.TermsAccepted = true
	journal.Status = models.JournalStatusHealthy
	require.NoError(t, db.Create(journal).Error)
	return journal
}

// depositXML builds a deposit entry the way the OJS PLN plugin sends it.
type depositXML struct {
	UUID          string
	Volume        int
	Checksum      string
	Size          int64
	Extra         string
	OmitChecksum  bool
	ContentURL    string
	JournalTitle  string
	PublisherName string
}

func (d depositXML) String() string {
	if d.UUID == "" {
		d.UUID = testDepositUUID
	}
	if d.Volume == 0 {
		d.Volume = 1
	}
	if d.Checksum == "" {
		d.Checksum = "deadbeef"
	}
	if d.Size == 0 {
		d.Size = 3613
	}
	if d.ContentURL == "" {
		d.ContentURL = "http://example.com/ojs/index.php/test/pln/deposits/" + d.UUID
	}
	if d.JournalTitle == "" {
		d.JournalTitle = "Intl J Testing"
	}
	if d.PublisherName == "" {
		d.PublisherName = "Test Publisher"
	}
	checksum := fmt.Sprintf(` checksumValue="%s"`, d.Checksum)
	if d.OmitChecksum {
		checksum = ""
	}
	return fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?>
<entry xmlns="http://www.w3.org/2005/Atom" xmlns:dcterms="http://purl.org/dc/terms/" xmlns:pkp="http://pkp.sfu.ca/SWORD">
  <email>editor@example.com</email>
  <title>%s</title>
  <pkp:journal_url>http://example.com/ojs/index.php/test</pkp:journal_url>
  <pkp:publisherName>%s</pkp:publisherName>
  <pkp:publisherUrl>http://publisher.example.com</pkp:publisherUrl>
  <pkp:issn>1234-5678</pkp:issn>
  <id>urn:uuid:%s</id>
  <updated>2016-04-22T12:35:48Z</updated>
  <pkp:content size="%d" volume="%d" issue="2" pubdate="2016-04-22" checksumType="SHA-1"%s ojsVersion="3.1.2.0">%s</pkp:content>
  <pkp:license>
    <pkp:publishingMode>Open</pkp:publishingMode>
    <pkp:openAccessPolicy>Yes.</pkp:openAccessPolicy>
    <pkp:licenseURL>http://example.com/license</pkp:licenseURL>
    <pkp:copyrightHolder>  </pkp:copyrightHolder>
  </pkp:license>%s
</entry>`, d.JournalTitle, d.PublisherName, d.UUID, d.Size, d.Volume, checksum, d.ContentURL, d.Extra)
}

func parseDeposit(t *testing.T, d depositXML) *ParsedDocument {
	t.Helper()
	doc, err := ParseXML([]byte(d.String()))
	require.NoError(t, err)
	return doc
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}
