package api

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/qbridge-dev/qbridge/internal/auth"
	"github.com/qbridge-dev/qbridge/internal/auth/okta"
	"github.com/qbridge-dev/qbridge/internal/config"
	"github.com/qbridge-dev/qbridge/internal/constant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, mutate func(cfg *config.Config)) (*Server, *auth.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := auth.NewStore(t.TempDir())
	require.NoError(t, err)

	cfg := &config.Config{
		Host: "localhost",
		Port: 8080,
		Okta: config.OktaConfig{
			OrgURL:       "https://example.okta.com",
			AuthServerID: "default",
			ClientID:     "client-id",
			Scopes:       []string{"openid", "profile", "email"},
		},
		Salesforce: config.SalesforceConfig{
			Domain:   "login.salesforce.com",
			ClientID: "sf-client-id",
			Scopes:   []string{"openid", "email", "profile", "api"},
		},
	}
	if mutate != nil {
		mutate(cfg)
	}

	return NewServer(cfg, Options{Store: store}), store
}

func fakeIDToken(t *testing.T, email string) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none"}`))
	claims, err := json.Marshal(map[string]interface{}{"sub": "00u1", "email": email})
	require.NoError(t, err)
	payload := base64.RawURLEncoding.EncodeToString(claims)
	return header + "." + payload + ".sig"
}

func TestIndexListsConfiguredFlows(t *testing.T) {
	s, _ := newTestServer(t, nil)

	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `href="/login"`)
	assert.Contains(t, body, `href="/auth/salesforce/login"`)
	// No SAML provider configured, so no SAML link.
	assert.NotContains(t, body, `href="/saml/login"`)
}

func TestOktaLoginRedirectsWithPKCE(t *testing.T) {
	s, _ := newTestServer(t, nil)

	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/login", nil))

	require.Equal(t, http.StatusFound, w.Code)
	location, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "example.okta.com", location.Host)
	assert.Equal(t, "/oauth2/default/v1/authorize", location.Path)

	query := location.Query()
	assert.Equal(t, "client-id", query.Get("client_id"))
	assert.Equal(t, "S256", query.Get("code_challenge_method"))
	assert.NotEmpty(t, query.Get("code_challenge"))
	assert.NotEmpty(t, query.Get("state"))

	_, ok := s.takeFlowState(query.Get("state"))
	assert.True(t, ok, "login must leave a redeemable flow state")
}

func TestOktaCallbackRejectsUnknownState(t *testing.T) {
	s, _ := newTestServer(t, nil)

	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/authorization-code/callback?code=abc&state=bogus", nil))

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "State mismatch")
}

func TestOktaCallbackRequiresCode(t *testing.T) {
	s, _ := newTestServer(t, nil)

	loginRec := httptest.NewRecorder()
	s.engine.ServeHTTP(loginRec, httptest.NewRequest(http.MethodGet, "/login", nil))
	location, err := url.Parse(loginRec.Header().Get("Location"))
	require.NoError(t, err)
	state := location.Query().Get("state")

	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/authorization-code/callback?state="+state, nil))

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "No authorization code received")
}

func TestOktaCallbackExchangesAndStoresTokens(t *testing.T) {
	var idToken string
	issuer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/oauth2/default/v1/token", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.Form.Get("grant_type"))
		assert.Equal(t, "auth-code", r.Form.Get("code"))
		assert.NotEmpty(t, r.Form.Get("code_verifier"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  "access-token",
			"refresh_token": "refresh-token",
			"id_token":      idToken,
			"token_type":    "Bearer",
			"scope":         "openid profile email",
			"expires_in":    3600,
		})
	}))
	defer issuer.Close()

	s, store := newTestServer(t, func(cfg *config.Config) {
		cfg.Okta.OrgURL = issuer.URL
	})
	idToken = fakeIDToken(t, "user@example.com")

	loginRec := httptest.NewRecorder()
	s.engine.ServeHTTP(loginRec, httptest.NewRequest(http.MethodGet, "/login", nil))
	location, err := url.Parse(loginRec.Header().Get("Location"))
	require.NoError(t, err)
	state := location.Query().Get("state")

	w := httptest.NewRecorder()
	target := fmt.Sprintf("/authorization-code/callback?code=auth-code&state=%s", state)
	s.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))

	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/profile", w.Header().Get("Location"))

	record, err := store.Latest(constant.Okta)
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", record.Email)

	storage, err := okta.LoadTokenFromFile(record.Path)
	require.NoError(t, err)
	assert.Equal(t, "access-token", storage.AccessToken)
	assert.Equal(t, "refresh-token", storage.RefreshToken)

	// The state is single use.
	w = httptest.NewRecorder()
	s.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProfileRedirectsToLoginWithoutToken(t *testing.T) {
	s, _ := newTestServer(t, nil)

	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/profile", nil))

	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))
}

func TestSalesforceLoginRedirectsWithChallenge(t *testing.T) {
	s, _ := newTestServer(t, nil)

	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/salesforce/login", nil))

	require.Equal(t, http.StatusFound, w.Code)
	location, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "login.salesforce.com", location.Host)
	assert.Equal(t, "/services/oauth2/authorize", location.Path)

	query := location.Query()
	assert.Equal(t, "sf-client-id", query.Get("client_id"))
	assert.Equal(t, "S256", query.Get("code_challenge_method"))
	assert.Equal(t, "openid email profile api", query.Get("scope"))
	assert.NotEmpty(t, query.Get("state"))
}

func TestSalesforceCallbackRejectsUnknownState(t *testing.T) {
	s, _ := newTestServer(t, nil)

	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/salesforce/callback?code=abc&state=bogus", nil))

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid state parameter")
}

func TestSessionTokensUnknownSession(t *testing.T) {
	s, _ := newTestServer(t, nil)

	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/tokens/nope", nil))

	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "Session not found")
}

func TestSessionTokensReturnsStoredJSON(t *testing.T) {
	s, store := newTestServer(t, nil)

	path := store.FilePath(constant.Salesforce, "user@example.com")
	require.NoError(t, store.Write(path, []byte(`{"type":"salesforce","access_token":"tok","instance_url":"https://org.my.salesforce.com"}`)))
	s.sessionMu.Lock()
	s.sessions["session-1"] = path
	s.sessionMu.Unlock()

	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/tokens/session-1", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "tok", jsonField(t, w.Body.Bytes(), "access_token"))
}

func TestManagementHiddenWithoutSecretKey(t *testing.T) {
	s, _ := newTestServer(t, nil)

	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v0/management/config", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFlowStateSingleUse(t *testing.T) {
	s, _ := newTestServer(t, nil)

	s.putFlowState("state-1", flowState{verifier: "v"})
	entry, ok := s.takeFlowState("state-1")
	require.True(t, ok)
	assert.Equal(t, "v", entry.verifier)

	_, ok = s.takeFlowState("state-1")
	assert.False(t, ok)
}

func jsonField(t *testing.T, data []byte, key string) string {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &m))
	value, _ := m[key].(string)
	return value
}

func TestTokenPreviewTruncates(t *testing.T) {
	assert.Equal(t, "N/A", tokenPreview(""))
	assert.Equal(t, "short...", tokenPreview("short"))
	long := strings.Repeat("a", 80)
	assert.Equal(t, strings.Repeat("a", 50)+"...", tokenPreview(long))
}
