package controllers

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"pln-staging-api/config"
	"pln-staging-api/middleware"
	"pln-staging-api/models"
	"pln-staging-api/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	journalUUID      = "44428B12-CDC4-453E-8157-319004CD8CE6"
	otherJournalUUID = "AC54ED1A-9795-4EED-94FD-D80CB62E0C84"
	depositUUID      = "F93A8108-B705-4763-A592-B718B00BD4EA"
	journalURL       = "http://example.com/ojs/index.php/test"
)

type testServer struct {
	db        *gorm.DB
	router    *gin.Engine
	cfg       config.SwordConfig
	originals string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	t.Setenv("JWT_SECRET", "test-secret")

	dir := t.TempDir()
	db, err := config.OpenDB(sqlite.Open(filepath.Join(dir, "test.db")), logger.Silent)
	require.NoError(t, err)
	require.NoError(t, models.AutoMigrate(db))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	cfg := config.SwordConfig{
		DefaultAccept:            true,
		MaxUploadBytes:           1 << 20,
		ChecksumAlgorithm:        config.DefaultChecksumAlgorithm,
		MinOjsVersion:            config.DefaultMinOjsVersion,
		NetworkMessageDefault:    "default",
		NetworkMessageAccepting:  "accepting",
		NetworkMessageOldVersion: "old",
		OriginalsPath:            filepath.Join(dir, "originals"),
	}

	sword := NewSwordController(db, cfg, nil, nil)
	auth := NewAuthController(db)
	admin := NewDepositAdminController(db, cfg, services.NewJournalHealthService(db, nil, func([]string, string, string) error { return nil }, nil))

	router := gin.New()
	sw := router.Group(SwordBasePath)
	sw.Use(middleware.OptionalAuth())
	sw.GET("/sd-iri", sword.ServiceDocument)
	sw.POST("/col-iri/:uuid", sword.CreateDeposit)
	sw.GET("/cont-iri/:journal_uuid/:deposit_uuid/state", sword.Statement)
	sw.PUT("/cont-iri/:journal_uuid/:deposit_uuid/edit", sword.EditDeposit)
	sw.GET("/original/:journal_uuid/:deposit_uuid", sword.OriginalDeposit)

	router.POST("/api/v1/login", auth.Login)
	ops := router.Group("/api/v1")
	ops.Use(middleware.AuthMiddleware(db), middleware.RequireRole(models.RoleOperator, models.RoleAdmin))
	ops.GET("/profile", auth.GetProfile)
	ops.GET("/deposits/:uuid", admin.GetDeposit)
	ops.POST("/deposits/:uuid/state", admin.UpdateState)
	ops.POST("/deposits/:uuid/harvest-attempts", admin.RecordHarvestAttempt)
	ops.POST("/deposits/:uuid/package", admin.RecordPackage)
	ops.POST("/deposits/:uuid/sent", admin.RecordSent)
	ops.POST("/deposits/:uuid/pln-state", admin.SetPlnState)
	ops.POST("/deposits/:uuid/errors", admin.RecordError)
	ops.GET("/journals/:uuid", admin.GetJournal)
	ops.GET("/journals/:uuid/deposits", admin.ListJournalDeposits)

	return &testServer{db: db, router: router, cfg: cfg, originals: cfg.OriginalsPath}
}

func (s *testServer) do(t *testing.T, method, path string, body io.Reader, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) createJournal(t *testing.T, uuid string) *models.Journal {
	t.Helper()
	journal := models.NewJournal(uuid)
	journal.URL = journalURL
	journal.Title = "Test Journal"
	journal.Email = "editor@example.com"
	journal.TermsAccepted = true
	journal.Status = models.JournalStatusHealthy
	require.NoError(t, s.db.Create(journal).Error)
	return journal
}

func (s *testServer) createOperator(t *testing.T, email string, role int) models.User {
	t.Helper()
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	user := models.User{Email: email, Name: "Operator", Password: hash, RoleID: role, Enabled: true}
	require.NoError(t, s.db.Create(&user).Error)
	return user
}

func (s *testServer) deposit(t *testing.T, journal string, entry string) *httptest.ResponseRecorder {
	t.Helper()
	return s.do(t, http.MethodPost, SwordBasePath+"/col-iri/"+journal, strings.NewReader(entry), map[string]string{
		"Content-Type": "application/atom+xml;type=entry",
	})
}

func bearer(t *testing.T, user models.User) map[string]string {
	t.Helper()
	token, err := GenerateToken(user)
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + token}
}

// depositEntry is an ATOM entry as sent by the OJS PLN plugin.
func depositEntry(uuid string, volume int, extra string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?>
<entry xmlns="http://www.w3.org/2005/Atom" xmlns:dcterms="http://purl.org/dc/terms/" xmlns:pkp="http://pkp.sfu.ca/SWORD">
  <email>editor@example.com</email>
  <title>Intl J Testing</title>
  <pkp:journal_url>%s</pkp:journal_url>
  <pkp:publisherName>Test Publisher</pkp:publisherName>
  <pkp:publisherUrl>http://publisher.example.com</pkp:publisherUrl>
  <pkp:issn>1234-5678</pkp:issn>
  <id>urn:uuid:%s</id>
  <updated>2016-04-22T12:35:48Z</updated>
  <pkp:content size="3613" volume="%d" issue="2" pubdate="2016-04-22" checksumType="SHA-1" checksumValue="deadbeef" ojsVersion="3.1.2.0">%s/pln/deposits/%s</pkp:content>
  <pkp:license>
    <pkp:publishingMode>Open</pkp:publishingMode>
    <pkp:licenseURL>http://example.com/license</pkp:licenseURL>
  </pkp:license>%s
</entry>`, journalURL, uuid, volume, journalURL, uuid, extra)
}
