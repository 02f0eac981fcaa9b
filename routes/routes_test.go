package routes

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"pln-staging-api/config"
	"pln-staging-api/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm/logger"
)

func TestSetupRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("LOGS_TOKEN", "")

	db, err := config.OpenDB(sqlite.Open(filepath.Join(t.TempDir(), "routes.db")), logger.Silent)
	require.NoError(t, err)
	require.NoError(t, models.AutoMigrate(db))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	defer sqlDB.Close()

	router := gin.New()
	SetupRoutes(router, Dependencies{
		DB:    db,
		Sword: config.SwordConfig{DefaultAccept: true, MaxUploadBytes: 1 << 20, ChecksumAlgorithm: "SHA-1", MinOjsVersion: "2.4.8"},
	})

	tests := []struct {
		method  string
		path    string
		headers map[string]string
		want    int
	}{
		{http.MethodGet, "/api/v1/health", nil, http.StatusOK},
		{http.MethodGet, "/api/sword/2.0/sd-iri", nil, http.StatusBadRequest},
		{http.MethodGet, "/api/sword/2.0/sd-iri.xml", map[string]string{
			"On-Behalf-Of": "44428B12-CDC4-453E-8157-319004CD8CE6",
			"Journal-Url":  "http://example.com/ojs",
		}, http.StatusOK},
		{http.MethodPost, "/api/sword/2.0/col-iri/F93A8108-B705-4763-A592-B718B00BD4EA", nil, http.StatusNotFound},
		{http.MethodGet, "/api/v1/deposits/F93A8108-B705-4763-A592-B718B00BD4EA", nil, http.StatusUnauthorized},
		{http.MethodPost, "/api/v1/journals/44428B12-CDC4-453E-8157-319004CD8CE6/ping", nil, http.StatusUnauthorized},
		{http.MethodGet, "/monitor/summary", nil, http.StatusOK},
		{http.MethodGet, "/logs", nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}
