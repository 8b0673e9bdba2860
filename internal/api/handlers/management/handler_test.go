package management

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/qbridge-dev/qbridge/internal/auth"
	"github.com/qbridge-dev/qbridge/internal/config"
	"github.com/qbridge-dev/qbridge/internal/usage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const managementKey = "management-key"

func newTestHandler(t *testing.T, mutate func(cfg *config.Config)) (*Handler, *gin.Engine, *auth.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := auth.NewStore(t.TempDir())
	require.NoError(t, err)

	hash, err := bcrypt.GenerateFromPassword([]byte(managementKey), bcrypt.MinCost)
	require.NoError(t, err)

	cfg := &config.Config{
		RemoteManagement: config.RemoteManagement{SecretKey: string(hash)},
	}
	if mutate != nil {
		mutate(cfg)
	}

	stats := usage.NewStats()
	stats.HandleUsage(context.Background(), usage.Record{
		Kind:        usage.KindTool,
		Name:        "MathTool",
		Success:     true,
		Duration:    5 * time.Millisecond,
		RequestedAt: time.Now(),
	})

	h := NewHandler(Options{Config: cfg, Store: store, Stats: stats})

	engine := gin.New()
	group := engine.Group("/v0/management")
	group.Use(h.Middleware())
	group.GET("/config", h.GetConfig)
	group.GET("/debug", h.GetDebug)
	group.GET("/usage", h.GetUsage)
	group.GET("/auth-files", h.ListAuthFiles)
	group.GET("/auth-files/download", h.DownloadAuthFile)
	group.POST("/auth-files", h.UploadAuthFile)
	group.PATCH("/auth-files/disabled", h.SetAuthFileDisabled)
	group.DELETE("/auth-files", h.DeleteAuthFile)
	group.GET("/okta/users", h.ListOktaUsers)

	return h, engine, store
}

func authedRequest(method, target string, body string) *http.Request {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Authorization", "Bearer "+managementKey)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func TestMiddlewareRequiresKey(t *testing.T) {
	_, engine, _ := newTestHandler(t, nil)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v0/management/debug", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v0/management/debug", nil)
	req.Header.Set("Authorization", "Bearer wrong-key")
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, authedRequest(http.MethodGet, "/v0/management/debug", ""))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMiddlewareAcceptsManagementKeyHeader(t *testing.T) {
	_, engine, _ := newTestHandler(t, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v0/management/debug", nil)
	req.Header.Set("X-Management-Key", managementKey)
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMiddlewareForbiddenWithoutSecret(t *testing.T) {
	_, engine, _ := newTestHandler(t, func(cfg *config.Config) {
		cfg.RemoteManagement.SecretKey = ""
	})

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, authedRequest(http.MethodGet, "/v0/management/debug", ""))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestGetConfigRedactsSecrets(t *testing.T) {
	_, engine, _ := newTestHandler(t, func(cfg *config.Config) {
		cfg.Okta.ClientSecret = "okta-secret"
		cfg.Okta.APIToken = "ssws-token"
		cfg.TVM.ClientSecret = "tvm-secret"
		cfg.AWS.SecretAccessKey = "aws-secret"
	})

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, authedRequest(http.MethodGet, "/v0/management/config", ""))
	require.Equal(t, http.StatusOK, w.Code)

	var got config.Config
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "***", got.Okta.ClientSecret)
	assert.Equal(t, "***", got.Okta.APIToken)
	assert.Equal(t, "***", got.TVM.ClientSecret)
	assert.Equal(t, "***", got.AWS.SecretAccessKey)
	assert.Equal(t, "***", got.RemoteManagement.SecretKey)
}

func TestAuthFileLifecycle(t *testing.T) {
	_, engine, _ := newTestHandler(t, nil)

	body := `{"type":"okta","email":"user@example.com","access_token":"tok"}`
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, authedRequest(http.MethodPost, "/v0/management/auth-files?name=okta-user@example.com.json", body))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, authedRequest(http.MethodGet, "/v0/management/auth-files", ""))
	require.Equal(t, http.StatusOK, w.Code)
	var listing struct {
		Files []struct {
			Name     string `json:"name"`
			Type     string `json:"type"`
			Email    string `json:"email"`
			Disabled bool   `json:"disabled"`
		} `json:"files"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listing))
	require.Len(t, listing.Files, 1)
	assert.Equal(t, "okta-user@example.com.json", listing.Files[0].Name)
	assert.Equal(t, "okta", listing.Files[0].Type)
	assert.Equal(t, "user@example.com", listing.Files[0].Email)
	assert.False(t, listing.Files[0].Disabled)

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, authedRequest(http.MethodPatch, "/v0/management/auth-files/disabled",
		`{"name":"okta-user@example.com.json","disabled":true}`))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, authedRequest(http.MethodGet, "/v0/management/auth-files", ""))
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listing))
	require.Len(t, listing.Files, 1)
	assert.True(t, listing.Files[0].Disabled)

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, authedRequest(http.MethodGet, "/v0/management/auth-files/download?name=okta-user@example.com.json", ""))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"access_token":"tok"`)

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, authedRequest(http.MethodDelete, "/v0/management/auth-files?name=okta-user@example.com.json", ""))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, authedRequest(http.MethodGet, "/v0/management/auth-files", ""))
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listing))
	assert.Empty(t, listing.Files)
}

func TestUploadRejectsInvalidJSON(t *testing.T) {
	_, engine, _ := newTestHandler(t, nil)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, authedRequest(http.MethodPost, "/v0/management/auth-files?name=broken.json", "not json"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestDownloadRejectsPathTraversal(t *testing.T) {
	_, engine, _ := newTestHandler(t, nil)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, authedRequest(http.MethodGet, "/v0/management/auth-files/download?name=..%2Fsecret.json", ""))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetUsageSnapshot(t *testing.T) {
	_, engine, _ := newTestHandler(t, nil)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, authedRequest(http.MethodGet, "/v0/management/usage", ""))
	require.Equal(t, http.StatusOK, w.Code)

	var snapshot usage.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snapshot))
	assert.Equal(t, int64(1), snapshot.Totals[usage.KindTool])
	require.Len(t, snapshot.Entries, 1)
	assert.Equal(t, "MathTool", snapshot.Entries[0].Name)
}

func TestOktaAdminUnconfigured(t *testing.T) {
	_, engine, _ := newTestHandler(t, nil)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, authedRequest(http.MethodGet, "/v0/management/okta/users", ""))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
