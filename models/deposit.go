package models

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// DefaultJournalVersion is assumed when a deposit does not report the OJS
// version that generated it.
const DefaultJournalVersion = "2.4.8"

// Deposit actions.
const (
	ActionAdd  = "add"
	ActionEdit = "edit"
)

// Deposit lifecycle states. StateError is reachable from any non-terminal
// state; the others only move forward in the order listed.
const (
	StateDepositedByJournal = "depositedByJournal"
	StateProcessing         = "processing"
	StateProcessed          = "processed"
	StatePackaged           = "packaged"
	StateSent               = "sent"
	StateAcknowledged       = "acknowledged"
	StateError              = "status-error"
)

var stateOrder = map[string]int{
	StateDepositedByJournal: 0,
	StateProcessing:         1,
	StateProcessed:          2,
	StatePackaged:           3,
	StateSent:               4,
	StateAcknowledged:       5,
}

// StateDescriptions are the human readable labels used in statements.
var StateDescriptions = map[string]string{
	StateDepositedByJournal: "Deposit has been received from the journal.",
	StateProcessing:         "Deposit is being harvested and validated.",
	StateProcessed:          "Deposit has been harvested and validated.",
	StatePackaged:           "Deposit has been packaged for the preservation network.",
	StateSent:               "Deposit has been sent to the preservation network.",
	StateAcknowledged:       "Deposit has been acknowledged by the preservation network.",
	StateError:              "Deposit processing failed.",
}

// IsKnownState reports whether state is one of the lifecycle states.
func IsKnownState(state string) bool {
	_, ok := stateOrder[state]
	return ok || state == StateError
}

// IsTerminalState reports whether no further transition is allowed.
func IsTerminalState(state string) bool {
	return state == StateAcknowledged || state == StateError
}

// CanTransition reports whether a deposit may move from one state to another.
func CanTransition(from, to string) bool {
	if IsTerminalState(from) {
		return false
	}
	if to == StateError {
		return true
	}
	fromIdx, okFrom := stateOrder[from]
	toIdx, okTo := stateOrder[to]
	return okFrom && okTo && toIdx > fromIdx
}

// LicenseTerms maps license element names to their text. Keys are unique and
// insertion order is not significant.
type LicenseTerms map[string]string

// Deposit is one package submitted by a journal, tracked through the
// lifecycle states above.
type Deposit struct {
	Entity
	JournalID      uint                             `gorm:"column:journal_id;not null;index" json:"journal_id"`
	JournalVersion string                           `gorm:"column:journal_version;size:15;not null;default:'2.4.8'" json:"journal_version"`
	License        datatypes.JSONType[LicenseTerms] `gorm:"column:license" json:"license"`
	FileType       string                           `gorm:"column:file_type" json:"file_type"`
	DepositUUID    string                           `gorm:"column:deposit_uuid;size:36;uniqueIndex;not null" json:"deposit_uuid"`
	Received       time.Time                        `gorm:"column:received;not null" json:"received"`
	Action         string                           `gorm:"column:action;size:8;not null" json:"action"`
	Volume         int                              `gorm:"column:volume" json:"volume"`
	Issue          int                              `gorm:"column:issue" json:"issue"`
	PubDate        *time.Time                       `gorm:"column:pub_date;type:date" json:"pub_date,omitempty"`
	ChecksumType   string                           `gorm:"column:checksum_type" json:"checksum_type"`
	ChecksumValue  string                           `gorm:"column:checksum_value" json:"checksum_value"`
	URL            string                           `gorm:"column:url;size:2048;not null" json:"url"`
	Size           int64                            `gorm:"column:size" json:"size"`
	State          string                           `gorm:"column:state;size:32;not null;index" json:"state"`
	ErrorLog       datatypes.JSONSlice[string]      `gorm:"column:error_log" json:"error_log"`
	PlnState       *string                          `gorm:"column:pln_state" json:"pln_state,omitempty"`

	PackageSize          *int64     `gorm:"column:package_size" json:"package_size,omitempty"`
	PackageChecksumType  *string    `gorm:"column:package_checksum_type" json:"package_checksum_type,omitempty"`
	PackageChecksumValue *string    `gorm:"column:package_checksum_value" json:"package_checksum_value,omitempty"`
	DepositDate          *time.Time `gorm:"column:deposit_date;type:date" json:"deposit_date,omitempty"`
	DepositReceipt       *string    `gorm:"column:deposit_receipt;size:2048" json:"deposit_receipt,omitempty"`

	ProcessingLog   string `gorm:"column:processing_log;type:text" json:"processing_log"`
	HarvestAttempts int    `gorm:"column:harvest_attempts;not null" json:"harvest_attempts"`
}

func (Deposit) TableName() string {
	return "deposit"
}

// NewDeposit returns a deposit in its initial state, owned by journalID.
func NewDeposit(journalID uint, now time.Time) *Deposit {
	return &Deposit{
		JournalID:      journalID,
		JournalVersion: DefaultJournalVersion,
		License:        datatypes.NewJSONType(LicenseTerms{}),
		Received:       now,
		State:          StateDepositedByJournal,
		ErrorLog:       datatypes.JSONSlice[string]{},
	}
}

func (d *Deposit) String() string {
	return d.DepositUUID
}

// SetDepositUUID stores the UUID upper-cased.
func (d *Deposit) SetDepositUUID(uuid string) {
	d.DepositUUID = NormalizeUUID(uuid)
}

// SetChecksumType stores the algorithm name lower-cased.
func (d *Deposit) SetChecksumType(checksumType string) {
	d.ChecksumType = strings.ToLower(strings.TrimSpace(checksumType))
}

// SetChecksumValue stores the hex digest upper-cased.
func (d *Deposit) SetChecksumValue(value string) {
	d.ChecksumValue = strings.ToUpper(strings.TrimSpace(value))
}

// SetPackageChecksum records the checksum of the processed package using the
// same normalization as the source checksum.
func (d *Deposit) SetPackageChecksum(checksumType, value string) {
	t := strings.ToLower(strings.TrimSpace(checksumType))
	v := strings.ToUpper(strings.TrimSpace(value))
	d.PackageChecksumType = &t
	d.PackageChecksumValue = &v
}

// LicenseTerms returns the license mapping, never nil.
func (d *Deposit) LicenseTerms() LicenseTerms {
	terms := d.License.Data()
	if terms == nil {
		terms = LicenseTerms{}
	}
	return terms
}

// AddLicense sets a license entry. Blank values are dropped.
func (d *Deposit) AddLicense(key, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	terms := d.LicenseTerms()
	terms[key] = value
	d.License = datatypes.NewJSONType(terms)
}

// AddToProcessingLog appends a timestamped entry.
func (d *Deposit) AddToProcessingLog(content string, now time.Time) {
	d.ProcessingLog += fmt.Sprintf("%s\n%s\n\n", now.Format(time.RFC3339), content)
}

// AddErrorLog appends to the error log.
func (d *Deposit) AddErrorLog(message string) {
	d.ErrorLog = append(d.ErrorLog, message)
}

// IsTerminal reports whether the deposit has reached a terminal state.
func (d *Deposit) IsTerminal() bool {
	return IsTerminalState(d.State)
}
