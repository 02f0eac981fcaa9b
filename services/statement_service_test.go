package services

import (
	"context"
	"testing"
	"time"

	"pln-staging-api/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderMarksJournalHealthy(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	journal := createJournal(t, db, testJournalUUID)
	journal.Status = models.JournalStatusUnhealthy
	require.NoError(t, db.Save(journal).Error)

	lifecycle := NewDepositLifecycle(db, testSwordConfig())
	deposit, err := lifecycle.CreateFromXml(ctx, journal, parseDeposit(t, depositXML{}), models.ActionAdd)
	require.NoError(t, err)
	require.NoError(t, lifecycle.SetPlnState(ctx, deposit, "agreement"))

	service := NewStatementService(db)
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	service.journals.now = fixedClock(now)

	st, err := service.Render(ctx, journal, deposit)
	require.NoError(t, err)
	assert.Equal(t, testDepositUUID, st.DepositUUID)
	assert.Equal(t, models.StateDepositedByJournal, st.State)
	assert.Equal(t, "agreement", st.PlnState)
	assert.Equal(t, "DEADBEEF", st.ChecksumValue)
	assert.Equal(t, "Test Journal", st.JournalTitle)
	assert.NotEmpty(t, st.StateDescription)

	var stored models.Journal
	require.NoError(t, db.First(&stored, journal.ID).Error)
	assert.Equal(t, models.JournalStatusHealthy, stored.Status)
	assert.True(t, stored.Contacted.Equal(now))
}

func TestRenderRejectsForeignDeposit(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	owner := createJournal(t, db, testJournalUUID)
	other := createJournal(t, db, "AC54ED1A-9795-4EED-94FD-D80CB62E0C84")
	other.Status = models.JournalStatusUnhealthy
	require.NoError(t, db.Save(other).Error)

	deposit, err := NewDepositLifecycle(db, testSwordConfig()).CreateFromXml(ctx, owner, parseDeposit(t, depositXML{}), models.ActionAdd)
	require.NoError(t, err)

	_, err = NewStatementService(db).Render(ctx, other, deposit)
	assert.ErrorIs(t, err, ErrForbiddenCrossReference)

	var stored models.Journal
	require.NoError(t, db.First(&stored, other.ID).Error)
	assert.Equal(t, models.JournalStatusUnhealthy, stored.Status, "a refused statement does not touch the journal")
}

func TestNewStatementCopiesPackageMetadata(t *testing.T) {
	size := int64(99)
	receipt := "http://pln.example.com/r/1"
	deposit := models.NewDeposit(1, time.Now())
	deposit.SetDepositUUID(testDepositUUID)
	deposit.SetPackageChecksum("MD5", "abc")
	deposit.PackageSize = &size
	deposit.DepositReceipt = &receipt
	deposit.AddErrorLog("first")

	st := NewStatement(&models.Journal{UUID: testJournalUUID}, deposit)
	assert.Equal(t, "md5", st.PackageChecksumType)
	assert.Equal(t, "ABC", st.PackageChecksumValue)
	assert.Equal(t, &size, st.PackageSize)
	assert.Equal(t, receipt, st.DepositReceipt)
	assert.Equal(t, testJournalUUID, st.JournalTitle)

	deposit.AddErrorLog("second")
	assert.Equal(t, []string{"first"}, st.ErrorLog, "the statement owns its copy of the error log")
}
