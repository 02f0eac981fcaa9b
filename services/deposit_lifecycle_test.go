package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"pln-staging-api/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestCreateFromXml(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	journal := createJournal(t, db, testJournalUUID)
	lifecycle := NewDepositLifecycle(db, testSwordConfig())

	deposit, err := lifecycle.CreateFromXml(ctx, journal, parseDeposit(t, depositXML{}), models.ActionAdd)
	require.NoError(t, err)

	stored, err := lifecycle.Find(ctx, strings.ToLower(testDepositUUID))
	require.NoError(t, err)
	assert.Equal(t, deposit.ID, stored.ID)

	assert.Equal(t, testDepositUUID, stored.DepositUUID)
	assert.Equal(t, journal.ID, stored.JournalID)
	assert.Equal(t, models.ActionAdd, stored.Action)
	assert.Equal(t, models.StateDepositedByJournal, stored.State)
	assert.Equal(t, 0, stored.HarvestAttempts)
	assert.Equal(t, "sha-1", stored.ChecksumType)
	assert.Equal(t, "DEADBEEF", stored.ChecksumValue)
	assert.Equal(t, 1, stored.Volume)
	assert.Equal(t, 2, stored.Issue)
	assert.EqualValues(t, 3613, stored.Size)
	assert.Equal(t, "3.1.2.0", stored.JournalVersion)
	assert.Equal(t, "http://example.com/ojs/index.php/test/pln/deposits/"+testDepositUUID, stored.URL)
	require.NotNil(t, stored.PubDate)
	assert.Equal(t, "2016-04-22", stored.PubDate.Format("2006-01-02"))
	assert.Equal(t, models.LicenseTerms{
		"publishingMode":   "Open",
		"openAccessPolicy": "Yes.",
		"licenseURL":       "http://example.com/license",
	}, stored.LicenseTerms())
	assert.Empty(t, stored.ErrorLog)
	assert.Contains(t, stored.ProcessingLog, "Deposit created by journal.")
}

func TestCreateFromXmlMissingChecksum(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	journal := createJournal(t, db, testJournalUUID)
	lifecycle := NewDepositLifecycle(db, testSwordConfig())

	_, err := lifecycle.CreateFromXml(ctx, journal, parseDeposit(t, depositXML{OmitChecksum: true}), models.ActionAdd)
	require.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, ErrorMessage(err), "checksumValue")

	var count int64
	require.NoError(t, db.Model(&models.Deposit{}).Count(&count).Error)
	assert.Zero(t, count, "nothing is persisted on failure")
}

func TestCreateFromXmlValidation(t *testing.T) {
	cases := map[string]depositXML{
		"bad uuid":         {UUID: "not-a-uuid"},
		"non hex checksum": {Checksum: "xyz"},
		"relative url":     {ContentURL: "/deposits/1"},
		"too large":        {Size: 2 << 20},
		"long url":         {ContentURL: "http://example.com/" + strings.Repeat("a", 2048)},
	}
	for name, d := range cases {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			db := newTestDB(t)
			journal := createJournal(t, db, testJournalUUID)

			_, err := NewDepositLifecycle(db, testSwordConfig()).CreateFromXml(ctx, journal, parseDeposit(t, d), models.ActionAdd)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestCreateFromXmlDuplicate(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	journal := createJournal(t, db, testJournalUUID)
	lifecycle := NewDepositLifecycle(db, testSwordConfig())

	_, err := lifecycle.CreateFromXml(ctx, journal, parseDeposit(t, depositXML{}), models.ActionAdd)
	require.NoError(t, err)

	_, err = lifecycle.CreateFromXml(ctx, journal, parseDeposit(t, depositXML{Volume: 9}), models.ActionAdd)
	assert.ErrorIs(t, err, ErrDuplicateDeposit)

	stored, err := lifecycle.Find(ctx, testDepositUUID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Volume)
}

func TestCreateFromXmlLosesInsertRace(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	journal := createJournal(t, db, testJournalUUID)
	lifecycle := NewDepositLifecycle(db, testSwordConfig())

	// Another request inserts the same UUID between the lookup and the insert.
	inserted := false
	require.NoError(t, db.Callback().Query().After("gorm:query").Register("test:rival_insert", func(tx *gorm.DB) {
		if inserted || tx.Statement.Table != "deposit" {
			return
		}
		inserted = true
		rival := models.NewDeposit(journal.ID, time.Now())
		rival.SetDepositUUID(testDepositUUID)
		rival.Action = models.ActionAdd
		rival.URL = "http://example.com/ojs/index.php/test/pln/deposits/rival"
		require.NoError(t, db.Session(&gorm.Session{NewDB: true}).Create(rival).Error)
	}))

	_, err := lifecycle.CreateFromXml(ctx, journal, parseDeposit(t, depositXML{}), models.ActionAdd)
	require.True(t, inserted)
	assert.ErrorIs(t, err, ErrDuplicateDeposit)

	var count int64
	require.NoError(t, db.Model(&models.Deposit{}).Where("deposit_uuid = ?", testDepositUUID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestCreateFromXmlKeepsURLQuery(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	journal := createJournal(t, db, testJournalUUID)

	d := depositXML{ContentURL: "http://example.com/ojs/index.php/test/pln?page=1&amp;copy=2&amp;reg=3"}
	deposit, err := NewDepositLifecycle(db, testSwordConfig()).CreateFromXml(ctx, journal, parseDeposit(t, d), models.ActionAdd)
	require.NoError(t, err)
	assert.Equal(t, "http://example.com/ojs/index.php/test/pln?page=1&copy=2&reg=3", deposit.URL)
}

func TestCreateFromXmlWithEditActionUpdatesExisting(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	journal := createJournal(t, db, testJournalUUID)
	lifecycle := NewDepositLifecycle(db, testSwordConfig())

	first, err := lifecycle.CreateFromXml(ctx, journal, parseDeposit(t, depositXML{}), models.ActionAdd)
	require.NoError(t, err)

	second, err := lifecycle.CreateFromXml(ctx, journal, parseDeposit(t, depositXML{Volume: 5}), models.ActionEdit)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 5, second.Volume)
	assert.Equal(t, models.ActionEdit, second.Action)
}

func TestUpdateFromXmlPreservesIdentityAndAppendsLog(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	journal := createJournal(t, db, testJournalUUID)
	lifecycle := NewDepositLifecycle(db, testSwordConfig())

	deposit, err := lifecycle.CreateFromXml(ctx, journal, parseDeposit(t, depositXML{}), models.ActionAdd)
	require.NoError(t, err)
	require.NoError(t, lifecycle.Transition(ctx, deposit, models.StateProcessing, ""))

	updated, err := lifecycle.UpdateFromXml(ctx, journal, deposit, parseDeposit(t, depositXML{Volume: 2, Checksum: "cafe"}))
	require.NoError(t, err)

	stored, err := lifecycle.Find(ctx, testDepositUUID)
	require.NoError(t, err)
	assert.Equal(t, updated.ID, stored.ID)
	assert.Equal(t, testDepositUUID, stored.DepositUUID)
	assert.Equal(t, models.StateProcessing, stored.State, "edits keep the state")
	assert.Equal(t, 2, stored.Volume)
	assert.Equal(t, "CAFE", stored.ChecksumValue)

	created := strings.Index(stored.ProcessingLog, "Deposit created by journal.")
	edited := strings.Index(stored.ProcessingLog, "Deposit updated by journal.")
	require.GreaterOrEqual(t, created, 0)
	require.GreaterOrEqual(t, edited, 0)
	assert.Less(t, created, edited)
}

func TestUpdateFromXmlRejectsOtherJournal(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	owner := createJournal(t, db, testJournalUUID)
	intruder := createJournal(t, db, "AC54ED1A-9795-4EED-94FD-D80CB62E0C84")
	lifecycle := NewDepositLifecycle(db, testSwordConfig())

	deposit, err := lifecycle.CreateFromXml(ctx, owner, parseDeposit(t, depositXML{}), models.ActionAdd)
	require.NoError(t, err)

	_, err = lifecycle.UpdateFromXml(ctx, intruder, deposit, parseDeposit(t, depositXML{Volume: 3}))
	assert.ErrorIs(t, err, ErrForbiddenCrossReference)

	_, err = lifecycle.CreateFromXml(ctx, intruder, parseDeposit(t, depositXML{Volume: 3}), models.ActionEdit)
	assert.ErrorIs(t, err, ErrForbiddenCrossReference)
}

func TestUpdateFromXmlRejectsDifferentUUID(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	journal := createJournal(t, db, testJournalUUID)
	lifecycle := NewDepositLifecycle(db, testSwordConfig())

	deposit, err := lifecycle.CreateFromXml(ctx, journal, parseDeposit(t, depositXML{}), models.ActionAdd)
	require.NoError(t, err)

	_, err = lifecycle.UpdateFromXml(ctx, journal, deposit, parseDeposit(t, depositXML{UUID: "B156FACD-5210-4111-B4C2-D5C0C348D93A"}))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestUpdateFromXmlReportedError(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	journal := createJournal(t, db, testJournalUUID)
	lifecycle := NewDepositLifecycle(db, testSwordConfig())

	deposit, err := lifecycle.CreateFromXml(ctx, journal, parseDeposit(t, depositXML{}), models.ActionAdd)
	require.NoError(t, err)

	doc := parseDeposit(t, depositXML{Extra: "\n  <pkp:error>Package could not be built.</pkp:error>"})
	updated, err := lifecycle.UpdateFromXml(ctx, journal, deposit, doc)
	require.NoError(t, err)
	assert.Equal(t, models.StateError, updated.State)
	assert.Equal(t, []string{"Package could not be built."}, []string(updated.ErrorLog))
}

func TestRecordError(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	journal := createJournal(t, db, testJournalUUID)
	lifecycle := NewDepositLifecycle(db, testSwordConfig())

	deposit, err := lifecycle.CreateFromXml(ctx, journal, parseDeposit(t, depositXML{}), models.ActionAdd)
	require.NoError(t, err)

	require.NoError(t, lifecycle.RecordError(ctx, deposit, "harvest failed"))
	require.NoError(t, lifecycle.RecordError(ctx, deposit, "harvest failed again"))

	stored, err := lifecycle.Find(ctx, testDepositUUID)
	require.NoError(t, err)
	assert.Equal(t, models.StateError, stored.State)
	assert.Equal(t, []string{"harvest failed", "harvest failed again"}, []string(stored.ErrorLog))
	assert.Contains(t, stored.ProcessingLog, "harvest failed again")
}

func TestRecordErrorKeepsTerminalState(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	journal := createJournal(t, db, testJournalUUID)
	lifecycle := NewDepositLifecycle(db, testSwordConfig())

	deposit, err := lifecycle.CreateFromXml(ctx, journal, parseDeposit(t, depositXML{}), models.ActionAdd)
	require.NoError(t, err)
	require.NoError(t, lifecycle.Transition(ctx, deposit, models.StateAcknowledged, "done"))

	require.NoError(t, lifecycle.RecordError(ctx, deposit, "late failure"))
	assert.Equal(t, models.StateAcknowledged, deposit.State)
	assert.Len(t, deposit.ErrorLog, 1)
}

func TestTransitions(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	journal := createJournal(t, db, testJournalUUID)
	lifecycle := NewDepositLifecycle(db, testSwordConfig())

	deposit, err := lifecycle.CreateFromXml(ctx, journal, parseDeposit(t, depositXML{}), models.ActionAdd)
	require.NoError(t, err)

	require.NoError(t, lifecycle.Transition(ctx, deposit, models.StateProcessing, ""))
	require.NoError(t, lifecycle.Transition(ctx, deposit, models.StateProcessed, "validated"))

	err = lifecycle.Transition(ctx, deposit, models.StateProcessing, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	err = lifecycle.Transition(ctx, deposit, "bogus", "")
	assert.ErrorIs(t, err, ErrValidation)

	require.NoError(t, lifecycle.Transition(ctx, deposit, models.StateError, "bag invalid"))
	assert.Equal(t, models.StateError, deposit.State)
	assert.Equal(t, []string{"bag invalid"}, []string(deposit.ErrorLog))

	err = lifecycle.Transition(ctx, deposit, models.StatePackaged, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestPackagingAndSending(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	journal := createJournal(t, db, testJournalUUID)
	lifecycle := NewDepositLifecycle(db, testSwordConfig())
	lifecycle.now = fixedClock(time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC))

	deposit, err := lifecycle.CreateFromXml(ctx, journal, parseDeposit(t, depositXML{}), models.ActionAdd)
	require.NoError(t, err)

	require.NoError(t, lifecycle.RecordHarvestAttempt(ctx, deposit))
	require.NoError(t, lifecycle.RecordHarvestAttempt(ctx, deposit))
	require.NoError(t, lifecycle.Transition(ctx, deposit, models.StateProcessed, ""))

	err = lifecycle.RecordPackage(ctx, deposit, 2048, "SHA-1", "not hex")
	assert.ErrorIs(t, err, ErrValidation)

	require.NoError(t, lifecycle.RecordPackage(ctx, deposit, 2048, "SHA-1", "abc123"))
	require.NoError(t, lifecycle.RecordSent(ctx, deposit, "http://pln.example.com/receipt/1"))
	require.NoError(t, lifecycle.SetPlnState(ctx, deposit, "inProgress"))

	stored, err := lifecycle.Find(ctx, testDepositUUID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.HarvestAttempts)
	assert.Equal(t, models.StateSent, stored.State)
	require.NotNil(t, stored.PackageSize)
	assert.EqualValues(t, 2048, *stored.PackageSize)
	require.NotNil(t, stored.PackageChecksumType)
	assert.Equal(t, "sha-1", *stored.PackageChecksumType)
	require.NotNil(t, stored.PackageChecksumValue)
	assert.Equal(t, "ABC123", *stored.PackageChecksumValue)
	require.NotNil(t, stored.DepositReceipt)
	assert.Equal(t, "http://pln.example.com/receipt/1", *stored.DepositReceipt)
	require.NotNil(t, stored.PlnState)
	assert.Equal(t, "inProgress", *stored.PlnState)
	assert.Contains(t, stored.ProcessingLog, "2024-05-06T07:08:09Z\nHarvest attempt 1.\n\n")
}
