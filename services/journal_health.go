package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"
	"time"

	"pln-staging-api/config"
	"pln-staging-api/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// maxGatewayResponse bounds how much of a gateway reply is read.
const maxGatewayResponse = 1 << 20

// Notifier delivers an HTML message to the given recipients.
type Notifier func(to []string, subject, html string) error

// PingResult is what a journal's gateway reported.
type PingResult struct {
	HTTPStatus    int
	OjsVersion    string
	PluginVersion string
	Title         string
	TermsAccepted bool
	Error         string
}

// SweepSummary describes one health sweep.
type SweepSummary struct {
	Checked   int
	Unhealthy []string
	Notified  int
}

// JournalHealthService pings journal gateways and flags journals that have
// gone quiet.
type JournalHealthService struct {
	db         *gorm.DB
	client     *http.Client
	notify     Notifier
	recipients []string
	now        func() time.Time
	log        *zap.SugaredLogger
}

// NewJournalHealthService instantiates the service. A nil client gets a 30s
// timeout; a nil notifier sends mail through config.SendMail.
func NewJournalHealthService(db *gorm.DB, client *http.Client, notify Notifier, recipients []string) *JournalHealthService {
	if db == nil {
		db = config.DB
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if notify == nil {
		notify = config.SendMail
	}
	return &JournalHealthService{
		db:         db,
		client:     client,
		notify:     notify,
		recipients: recipients,
		now:        time.Now,
		log:        config.Logger,
	}
}

// Ping fetches the journal's gateway document and records what it reports.
// A failed ping marks the journal unhealthy and is returned as an error.
func (s *JournalHealthService) Ping(ctx context.Context, journal *models.Journal) (*PingResult, error) {
	result, pingErr := s.fetchGateway(ctx, journal.GatewayURL())
	if pingErr != nil {
		result.Error = pingErr.Error()
		// A journal that has never answered stays new until it does.
		if journal.Status != models.JournalStatusNew {
			journal.Status = models.JournalStatusUnhealthy
		}
		s.log.Warnw("journal ping failed", "journal_uuid", journal.UUID, "url", journal.GatewayURL(), "error", pingErr)
	} else {
		journal.Status = models.JournalStatusHealthy
		journal.TermsAccepted = result.TermsAccepted
		journal.MarkContacted(s.now())
		if result.OjsVersion != "" {
			journal.OjsVersion = result.OjsVersion
		}
		if (journal.Title == "" || journal.Title == unknownJournalTitle) && result.Title != "" {
			journal.Title = result.Title
		}
	}
	if err := s.db.WithContext(ctx).Save(journal).Error; err != nil {
		return result, fmt.Errorf("failed to save journal: %w", err)
	}
	return result, pingErr
}

func (s *JournalHealthService) fetchGateway(ctx context.Context, gatewayURL string) (*PingResult, error) {
	result := &PingResult{}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, gatewayURL, nil)
	if err != nil {
		return result, fmt.Errorf("invalid gateway url: %w", err)
	}
	req.Header.Set("Accept", "text/xml, application/xml")

	resp, err := s.client.Do(req)
	if err != nil {
		return result, fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()
	result.HTTPStatus = resp.StatusCode

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxGatewayResponse))
	if err != nil {
		return result, fmt.Errorf("failed to read gateway response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return result, fmt.Errorf("gateway returned HTTP %d", resp.StatusCode)
	}

	doc, err := ParseXML(body)
	if err != nil {
		return result, fmt.Errorf("gateway response: %s", ErrorMessage(err))
	}
	if result.OjsVersion, err = doc.ValueOr("//ojsInfo/release", ""); err != nil {
		return result, err
	}
	if result.PluginVersion, err = doc.ValueOr("//pluginInfo/release", ""); err != nil {
		return result, err
	}
	if result.Title, err = doc.ValueOr("//journalInfo/title", ""); err != nil {
		return result, err
	}
	accepted, err := doc.ValueOr("//terms/@termsAccepted", "no")
	if err != nil {
		return result, err
	}
	result.TermsAccepted = strings.EqualFold(accepted, "yes") || strings.EqualFold(accepted, "true")
	return result, nil
}

// PingAll pings every journal that has not been abandoned. Individual
// failures are logged and counted, not returned.
func (s *JournalHealthService) PingAll(ctx context.Context) (ok, failed int, err error) {
	var journals []models.Journal
	if err := s.db.WithContext(ctx).
		Where("status <> ?", models.JournalStatusAbandoned).
		Order("id ASC").
		Find(&journals).Error; err != nil {
		return 0, 0, fmt.Errorf("failed to list journals: %w", err)
	}
	for i := range journals {
		if _, err := s.Ping(ctx, &journals[i]); err != nil {
			failed++
			continue
		}
		ok++
	}
	return ok, failed, nil
}

// Sweep marks journals not contacted within staleAfter as unhealthy and
// notifies operators once per episode, recording the notification time.
func (s *JournalHealthService) Sweep(ctx context.Context, staleAfter time.Duration) (*SweepSummary, error) {
	now := s.now()
	cutoff := now.Add(-staleAfter)

	var stale []models.Journal
	if err := s.db.WithContext(ctx).
		Where("contacted < ? AND status NOT IN ?", cutoff, []string{models.JournalStatusAbandoned, models.JournalStatusNew}).
		Order("contacted ASC").
		Find(&stale).Error; err != nil {
		return nil, fmt.Errorf("failed to list stale journals: %w", err)
	}

	summary := &SweepSummary{Checked: len(stale)}
	var toNotify []models.Journal
	for i := range stale {
		j := &stale[i]
		summary.Unhealthy = append(summary.Unhealthy, j.UUID)
		if j.Notified == nil || j.Notified.Before(j.Contacted) {
			toNotify = append(toNotify, *j)
		}
		if j.Status != models.JournalStatusUnhealthy {
			if err := s.db.WithContext(ctx).Model(j).Update("status", models.JournalStatusUnhealthy).Error; err != nil {
				return summary, fmt.Errorf("failed to mark journal unhealthy: %w", err)
			}
		}
	}

	if len(toNotify) == 0 || len(s.recipients) == 0 {
		return summary, nil
	}

	body, err := renderHealthNotice(toNotify, staleAfter)
	if err != nil {
		return summary, err
	}
	subject := fmt.Sprintf("[PLN staging] %d journal(s) have not contacted the network", len(toNotify))
	if err := s.notify(s.recipients, subject, body); err != nil {
		return summary, fmt.Errorf("failed to send health notice: %w", err)
	}

	ids := make([]uint, 0, len(toNotify))
	for _, j := range toNotify {
		ids = append(ids, j.ID)
	}
	if err := s.db.WithContext(ctx).Model(&models.Journal{}).Where("id IN ?", ids).Update("notified", now).Error; err != nil {
		return summary, fmt.Errorf("failed to record notification: %w", err)
	}
	summary.Notified = len(toNotify)
	return summary, nil
}

var healthNoticeTemplate = template.Must(template.New("notice").Parse(`<p>The following journals have not contacted the staging server in the last {{.Days}} day(s):</p>
<ul>
{{range .Journals}}<li>{{.Title}} ({{.UUID}}), last contact {{.Contacted.Format "2006-01-02 15:04"}}, {{.URL}}</li>
{{end}}</ul>`))

func renderHealthNotice(journals []models.Journal, staleAfter time.Duration) (string, error) {
	if len(journals) == 0 {
		return "", errors.New("no journals to report")
	}
	var buf bytes.Buffer
	err := healthNoticeTemplate.Execute(&buf, map[string]interface{}{
		"Days":     int(staleAfter.Hours() / 24),
		"Journals": journals,
	})
	return buf.String(), err
}
