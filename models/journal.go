package models

import (
	"strings"
	"time"
)

// Journal health statuses.
const (
	JournalStatusNew       = "new"
	JournalStatusHealthy   = "healthy"
	JournalStatusUnhealthy = "unhealthy"
	JournalStatusTriggered = "triggered"
	JournalStatusAbandoned = "abandoned"
)

// GatewayURLSuffix is appended to a journal's URL to build its ping endpoint.
const GatewayURLSuffix = "/gateway/plugin/PLNGatewayPlugin"

// Journal is an OJS instance that deposits content, identified by UUID.
type Journal struct {
	Entity
	UUID          string     `gorm:"column:uuid;size:36;uniqueIndex;not null" json:"uuid"`
	Contacted     time.Time  `gorm:"column:contacted;not null" json:"contacted"`
	Notified      *time.Time `gorm:"column:notified" json:"notified,omitempty"`
	OjsVersion    string     `gorm:"column:ojs_version;size:12" json:"ojs_version,omitempty"`
	Title         string     `gorm:"column:title" json:"title"`
	ISSN          string     `gorm:"column:issn;size:9" json:"issn"`
	URL           string     `gorm:"column:url;size:2048;not null" json:"url"`
	Status        string     `gorm:"column:status;size:16;not null;index" json:"status"`
	TermsAccepted bool       `gorm:"column:terms_accepted;not null" json:"terms_accepted"`
	Email         string     `gorm:"column:email;not null" json:"email"`
	PublisherName string     `gorm:"column:publisher_name" json:"publisher_name,omitempty"`
	PublisherURL  string     `gorm:"column:publisher_url;size:2048" json:"publisher_url,omitempty"`
}

func (Journal) TableName() string {
	return "journal"
}

// NewJournal returns a journal in the "new" state, contacted now.
func NewJournal(uuid string) *Journal {
	return &Journal{
		UUID:      NormalizeUUID(uuid),
		Status:    JournalStatusNew,
		Contacted: time.Now(),
	}
}

// GatewayURL is the URL the health check pings.
func (j *Journal) GatewayURL() string {
	return strings.TrimRight(j.URL, "/") + GatewayURLSuffix
}

// MarkContacted records a successful interaction with the journal.
func (j *Journal) MarkContacted(now time.Time) {
	j.Contacted = now
}

// String returns the title, or the UUID when no title is known.
func (j *Journal) String() string {
	if j.Title != "" {
		return j.Title
	}
	return j.UUID
}
