package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"pln-staging-api/config"
	"pln-staging-api/models"
	"pln-staging-api/utils"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const maxURLLength = 2048

// DepositLifecycle creates deposits from SWORD documents and moves them
// through the lifecycle states. Callers are expected to have applied the
// access policy before creating or updating a deposit.
type DepositLifecycle struct {
	db  *gorm.DB
	cfg config.SwordConfig
	now func() time.Time
	log *zap.SugaredLogger
}

// NewDepositLifecycle instantiates the lifecycle service.
func NewDepositLifecycle(db *gorm.DB, cfg config.SwordConfig) *DepositLifecycle {
	if db == nil {
		db = config.DB
	}
	return &DepositLifecycle{db: db, cfg: cfg, now: time.Now, log: config.Logger}
}

// WithDB returns a copy bound to db, typically a transaction.
func (l *DepositLifecycle) WithDB(db *gorm.DB) *DepositLifecycle {
	cp := *l
	cp.db = db
	return &cp
}

// Find loads a deposit by its UUID.
func (l *DepositLifecycle) Find(ctx context.Context, depositUUID string) (*models.Deposit, error) {
	var deposit models.Deposit
	err := l.db.WithContext(ctx).Where("deposit_uuid = ?", models.NormalizeUUID(depositUUID)).Take(&deposit).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, newError(ErrNotFound, "Deposit %s not found.", models.NormalizeUUID(depositUUID))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load deposit: %w", err)
	}
	return &deposit, nil
}

// CreateFromXml records a new deposit for journal. If the UUID already exists
// the request only succeeds with action "edit", in which case it is applied
// as an update. Nothing is persisted when validation fails.
func (l *DepositLifecycle) CreateFromXml(ctx context.Context, journal *models.Journal, doc *ParsedDocument, action string) (*models.Deposit, error) {
	if action != models.ActionAdd && action != models.ActionEdit {
		return nil, newError(ErrValidation, "Unknown deposit action %q.", action)
	}

	fields, err := l.extract(doc)
	if err != nil {
		return nil, err
	}

	existing, err := l.Find(ctx, fields.depositUUID)
	switch {
	case err == nil:
		if action != models.ActionEdit {
			return nil, newError(ErrDuplicateDeposit, "Deposit %s already exists.", fields.depositUUID)
		}
		return l.applyUpdate(ctx, journal, existing, fields)
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	now := l.now()
	deposit := models.NewDeposit(journal.ID, now)
	deposit.SetDepositUUID(fields.depositUUID)
	deposit.Action = action
	fields.applyTo(deposit)
	deposit.AddToProcessingLog("Deposit created by journal.", now)

	if err := l.db.WithContext(ctx).Create(deposit).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, newError(ErrDuplicateDeposit, "Deposit %s already exists.", fields.depositUUID)
		}
		return nil, fmt.Errorf("failed to create deposit: %w", err)
	}
	l.log.Infow("deposit created",
		"journal_uuid", journal.UUID,
		"deposit_uuid", deposit.DepositUUID,
		"size", deposit.Size,
	)
	return deposit, nil
}

// UpdateFromXml re-applies a SWORD document to an existing deposit. The
// processing and error logs are appended to, never cleared, and the state is
// kept unless the document reports an error.
func (l *DepositLifecycle) UpdateFromXml(ctx context.Context, journal *models.Journal, deposit *models.Deposit, doc *ParsedDocument) (*models.Deposit, error) {
	if deposit.JournalID != journal.ID {
		return nil, newError(ErrForbiddenCrossReference, "Deposit does not belong to journal.")
	}
	fields, err := l.extract(doc)
	if err != nil {
		return nil, err
	}
	if models.NormalizeUUID(fields.depositUUID) != deposit.DepositUUID {
		return nil, newError(ErrValidation, "Deposit UUID %s does not match %s.", fields.depositUUID, deposit.DepositUUID)
	}
	return l.applyUpdate(ctx, journal, deposit, fields)
}

func (l *DepositLifecycle) applyUpdate(ctx context.Context, journal *models.Journal, deposit *models.Deposit, fields *depositFields) (*models.Deposit, error) {
	if deposit.JournalID != journal.ID {
		return nil, newError(ErrForbiddenCrossReference, "Deposit does not belong to journal.")
	}

	now := l.now()
	deposit.Action = models.ActionEdit
	fields.applyTo(deposit)
	deposit.AddToProcessingLog("Deposit updated by journal.", now)
	if fields.reportedError != "" {
		applyError(deposit, fields.reportedError, now)
	}

	if err := l.db.WithContext(ctx).Save(deposit).Error; err != nil {
		return nil, fmt.Errorf("failed to update deposit: %w", err)
	}
	l.log.Infow("deposit updated",
		"journal_uuid", journal.UUID,
		"deposit_uuid", deposit.DepositUUID,
		"state", deposit.State,
	)
	return deposit, nil
}

// RecordError logs a processing failure against the deposit and moves it to
// status-error unless it is already terminal.
func (l *DepositLifecycle) RecordError(ctx context.Context, deposit *models.Deposit, message string) error {
	applyError(deposit, message, l.now())
	if err := l.db.WithContext(ctx).Save(deposit).Error; err != nil {
		return fmt.Errorf("failed to record deposit error: %w", err)
	}
	l.log.Warnw("deposit error recorded", "deposit_uuid", deposit.DepositUUID, "error", message)
	return nil
}

func applyError(deposit *models.Deposit, message string, now time.Time) {
	deposit.AddErrorLog(message)
	deposit.AddToProcessingLog("Error: "+message, now)
	if !deposit.IsTerminal() {
		deposit.State = models.StateError
	}
}

// Transition moves the deposit forward to state. Moving to status-error
// records note as the error.
func (l *DepositLifecycle) Transition(ctx context.Context, deposit *models.Deposit, state, note string) error {
	if !models.IsKnownState(state) {
		return newError(ErrValidation, "Unknown deposit state %q.", state)
	}
	if !models.CanTransition(deposit.State, state) {
		return newError(ErrInvalidTransition, "Cannot move deposit from %s to %s.", deposit.State, state)
	}
	if state == models.StateError {
		if note == "" {
			note = "Deposit processing failed."
		}
		return l.RecordError(ctx, deposit, note)
	}

	now := l.now()
	entry := fmt.Sprintf("State changed from %s to %s.", deposit.State, state)
	if note != "" {
		entry += "\n" + note
	}
	deposit.State = state
	deposit.AddToProcessingLog(entry, now)
	if err := l.db.WithContext(ctx).Save(deposit).Error; err != nil {
		return fmt.Errorf("failed to save deposit state: %w", err)
	}
	l.log.Infow("deposit state changed", "deposit_uuid", deposit.DepositUUID, "state", state)
	return nil
}

// RecordHarvestAttempt counts one attempt to fetch the deposit from the
// journal. The retry policy lives with the harvester.
func (l *DepositLifecycle) RecordHarvestAttempt(ctx context.Context, deposit *models.Deposit) error {
	if deposit.IsTerminal() {
		return newError(ErrInvalidTransition, "Deposit %s is in terminal state %s.", deposit.DepositUUID, deposit.State)
	}
	deposit.HarvestAttempts++
	deposit.AddToProcessingLog(fmt.Sprintf("Harvest attempt %d.", deposit.HarvestAttempts), l.now())
	return l.db.WithContext(ctx).Save(deposit).Error
}

// RecordPackage stores the processed package metadata and moves the deposit
// to packaged.
func (l *DepositLifecycle) RecordPackage(ctx context.Context, deposit *models.Deposit, size int64, checksumType, checksumValue string) error {
	if !utils.IsHex(checksumValue) {
		return newError(ErrValidation, "Package checksum %q is not hexadecimal.", checksumValue)
	}
	if !models.CanTransition(deposit.State, models.StatePackaged) {
		return newError(ErrInvalidTransition, "Cannot package deposit in state %s.", deposit.State)
	}
	deposit.PackageSize = &size
	deposit.SetPackageChecksum(checksumType, checksumValue)
	return l.Transition(ctx, deposit, models.StatePackaged, fmt.Sprintf("Package is %d bytes.", size))
}

// RecordSent stores the network's deposit receipt and moves the deposit to sent.
func (l *DepositLifecycle) RecordSent(ctx context.Context, deposit *models.Deposit, receipt string) error {
	if len(receipt) > maxURLLength {
		return newError(ErrValidation, "Deposit receipt URL is too long.")
	}
	if !models.CanTransition(deposit.State, models.StateSent) {
		return newError(ErrInvalidTransition, "Cannot send deposit in state %s.", deposit.State)
	}
	now := l.now()
	deposit.DepositDate = &now
	if receipt != "" {
		deposit.DepositReceipt = &receipt
	}
	return l.Transition(ctx, deposit, models.StateSent, "Deposit receipt: "+receipt)
}

// SetPlnState records the state reported by the preservation network. It is
// surfaced alongside the lifecycle state and never replaces it.
func (l *DepositLifecycle) SetPlnState(ctx context.Context, deposit *models.Deposit, plnState string) error {
	plnState = strings.TrimSpace(plnState)
	if plnState == "" {
		return newError(ErrValidation, "PLN state is required.")
	}
	deposit.PlnState = &plnState
	deposit.AddToProcessingLog("PLN state is now "+plnState+".", l.now())
	return l.db.WithContext(ctx).Save(deposit).Error
}

// depositFields are the values read from a SWORD deposit entry.
type depositFields struct {
	depositUUID    string
	volume         int
	issue          int
	pubDate        *time.Time
	checksumType   string
	checksumValue  string
	url            string
	size           int64
	fileType       string
	journalVersion string
	license        models.LicenseTerms
	reportedError  string
}

func (l *DepositLifecycle) extract(doc *ParsedDocument) (*depositFields, error) {
	f := &depositFields{license: models.LicenseTerms{}}

	id, err := required(doc, "//atom:id", "depositUuid")
	if err != nil {
		return nil, err
	}
	f.depositUUID = models.NormalizeUUID(strings.TrimPrefix(strings.ToLower(id), "urn:uuid:"))
	if !utils.ValidateUUID(f.depositUUID) {
		return nil, newError(ErrValidation, "Deposit UUID %q is not a valid UUID.", id)
	}

	if f.checksumValue, err = required(doc, "//pkp:content/@checksumValue", "checksumValue"); err != nil {
		return nil, err
	}
	if !utils.IsHex(f.checksumValue) {
		return nil, newError(ErrValidation, "Checksum value %q is not hexadecimal.", f.checksumValue)
	}

	rawURL, err := required(doc, "//pkp:content", "url")
	if err != nil {
		return nil, err
	}
	f.url = rawURL
	if len(f.url) > maxURLLength {
		return nil, newError(ErrValidation, "Deposit URL is longer than %d characters.", maxURLLength)
	}
	if parsed, err := url.ParseRequestURI(f.url); err != nil || parsed.Host == "" {
		return nil, newError(ErrValidation, "Deposit URL %q is not valid.", f.url)
	}

	if f.checksumType, err = doc.ValueOr("//pkp:content/@checksumType", l.cfg.ChecksumAlgorithm); err != nil {
		return nil, err
	}
	if f.volume, err = optionalInt(doc, "//pkp:content/@volume", "volume"); err != nil {
		return nil, err
	}
	if f.issue, err = optionalInt(doc, "//pkp:content/@issue", "issue"); err != nil {
		return nil, err
	}

	rawSize, err := doc.ValueOr("//pkp:content/@size", "0")
	if err != nil {
		return nil, err
	}
	if f.size, err = strconv.ParseInt(rawSize, 10, 64); err != nil || f.size < 0 {
		return nil, newError(ErrValidation, "Deposit size %q is not a valid number.", rawSize)
	}
	if l.cfg.MaxUploadBytes > 0 && f.size > l.cfg.MaxUploadBytes {
		return nil, newError(ErrValidation, "Deposit size %d exceeds the maximum of %d.", f.size, l.cfg.MaxUploadBytes)
	}

	rawPubDate, err := doc.ValueOr("//pkp:content/@pubdate", "")
	if err != nil {
		return nil, err
	}
	if rawPubDate != "" {
		pubDate, err := parseDate(rawPubDate)
		if err != nil {
			return nil, newError(ErrValidation, "Publication date %q is not valid.", rawPubDate)
		}
		f.pubDate = &pubDate
	}

	if f.fileType, err = doc.ValueOr("//pkp:content/@mimeType", ""); err != nil {
		return nil, err
	}
	if f.journalVersion, err = doc.ValueOr("//pkp:content/@ojsVersion", models.DefaultJournalVersion); err != nil {
		return nil, err
	}

	licenseNodes, err := doc.Query("//pkp:license/*")
	if err != nil {
		return nil, err
	}
	for _, node := range licenseNodes {
		if value := strings.TrimSpace(node.InnerText()); value != "" {
			f.license[node.Data] = value
		}
	}

	if f.reportedError, err = doc.ValueOr("//pkp:error", ""); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *depositFields) applyTo(d *models.Deposit) {
	d.Volume = f.volume
	d.Issue = f.issue
	d.PubDate = f.pubDate
	d.SetChecksumType(f.checksumType)
	d.SetChecksumValue(f.checksumValue)
	d.URL = f.url
	d.Size = f.size
	d.FileType = f.fileType
	d.JournalVersion = f.journalVersion
	d.License = datatypes.NewJSONType(models.LicenseTerms{})
	for k, v := range f.license {
		d.AddLicense(k, v)
	}
}

// required reads a mandatory value and reports its absence as a validation
// failure naming the deposit field.
func required(doc *ParsedDocument, expr, field string) (string, error) {
	v, err := doc.Value(expr)
	if errors.Is(err, ErrMissingRequiredField) || (err == nil && v == "") {
		return "", newError(ErrValidation, "Missing required field %s.", field)
	}
	return v, err
}

func optionalInt(doc *ParsedDocument, expr, field string) (int, error) {
	raw, err := doc.ValueOr(expr, "")
	if err != nil || raw == "" {
		return 0, err
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, newError(ErrValidation, "Field %s value %q is not a number.", field, raw)
	}
	return n, nil
}

func parseDate(raw string) (time.Time, error) {
	var lastErr error
	for _, layout := range []string{"2006-01-02", time.RFC3339, "2006-01-02 15:04:05"} {
		t, err := time.Parse(layout, raw)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
