package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qbridge-dev/qbridge/internal/config"
)

func newTestAdmin(t *testing.T, handler http.Handler) (*OktaAdmin, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := &config.Config{}
	cfg.Okta.OrgURL = server.URL
	cfg.Okta.APIToken = "test-api-token"

	admin, err := NewOktaAdmin(cfg)
	require.NoError(t, err)
	return admin, server
}

func TestNewOktaAdminRequiresConfiguration(t *testing.T) {
	cfg := &config.Config{}
	_, err := NewOktaAdmin(cfg)
	assert.Error(t, err)

	cfg.Okta.OrgURL = "https://dev-1234.okta.com"
	_, err = NewOktaAdmin(cfg)
	assert.Error(t, err)

	cfg.Okta.APIToken = "token"
	_, err = NewOktaAdmin(cfg)
	assert.NoError(t, err)
}

func TestListUsersSendsAuthAndQuery(t *testing.T) {
	var gotAuth, gotSearch, gotLimit string
	admin, _ := newTestAdmin(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/users", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		gotSearch = r.URL.Query().Get("search")
		gotLimit = r.URL.Query().Get("limit")
		_, _ = w.Write([]byte(`[{"id":"00u1","status":"ACTIVE","profile":{"email":"a@example.com","login":"a@example.com"}}]`))
	}))

	users, err := admin.ListUsers(context.Background(), `profile.email eq "a@example.com"`, 0)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "00u1", users[0].ID)
	assert.Equal(t, "a@example.com", users[0].Profile.Email)
	assert.Equal(t, "SSWS test-api-token", gotAuth)
	assert.Equal(t, `profile.email eq "a@example.com"`, gotSearch)
	assert.Equal(t, "25", gotLimit)
}

func TestCreateUserActivateFlagAndBody(t *testing.T) {
	var gotActivate string
	var gotBody map[string]interface{}
	admin, _ := newTestAdmin(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/users", r.URL.Path)
		gotActivate = r.URL.Query().Get("activate")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"id":"00u2","status":"ACTIVE","profile":{"firstName":"Ada","lastName":"Lovelace","email":"ada@example.com","login":"ada@example.com"}}`))
	}))

	profile := UserProfile{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     "ada@example.com",
		Login:     "ada@example.com",
	}
	credentials := &UserCredentials{Password: &PasswordCredential{Value: "correct-horse"}}

	user, err := admin.CreateUser(context.Background(), profile, credentials, true)
	require.NoError(t, err)
	assert.Equal(t, "00u2", user.ID)
	assert.Equal(t, "true", gotActivate)

	profileBody := gotBody["profile"].(map[string]interface{})
	assert.Equal(t, "Ada", profileBody["firstName"])
	credentialsBody := gotBody["credentials"].(map[string]interface{})
	passwordBody := credentialsBody["password"].(map[string]interface{})
	assert.Equal(t, "correct-horse", passwordBody["value"])
}

func TestDeactivateUserHitsLifecycleEndpoint(t *testing.T) {
	var gotPath string
	admin, _ := newTestAdmin(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))

	require.NoError(t, admin.DeactivateUser(context.Background(), "00u3"))
	assert.Equal(t, "/api/v1/users/00u3/lifecycle/deactivate", gotPath)
}

func TestDeleteUserNoContent(t *testing.T) {
	admin, _ := newTestAdmin(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNoContent)
	}))

	assert.NoError(t, admin.DeleteUser(context.Background(), "00u3"))
}

func TestAPIErrorDecoding(t *testing.T) {
	admin, _ := newTestAdmin(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"errorCode":"E0000007","errorSummary":"Not found: Resource not found: missing (User)","errorId":"oae123"}`))
	}))

	_, err := admin.GetUser(context.Background(), "missing")
	require.Error(t, err)

	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "E0000007", apiErr.ErrorCode)
	assert.Contains(t, apiErr.Error(), "E0000007")
}

func TestAPIErrorNonJSONBody(t *testing.T) {
	admin, _ := newTestAdmin(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream unavailable"))
	}))

	err := admin.DeactivateUser(context.Background(), "00u1")
	require.Error(t, err)

	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, "upstream unavailable", apiErr.ErrorSummary)
}

func TestListApplicationsFilter(t *testing.T) {
	var gotFilter string
	admin, _ := newTestAdmin(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/apps", r.URL.Path)
		gotFilter = r.URL.Query().Get("filter")
		_, _ = w.Write([]byte(`[{"id":"0oa1","name":"oidc_client","label":"QBridge","status":"ACTIVE","signOnMode":"OPENID_CONNECT"}]`))
	}))

	apps, err := admin.ListApplications(context.Background(), `status eq "ACTIVE"`)
	require.NoError(t, err)
	require.Len(t, apps, 1)
	assert.Equal(t, "QBridge", apps[0].Label)
	assert.Equal(t, `status eq "ACTIVE"`, gotFilter)
}

func TestAssignUserToApplication(t *testing.T) {
	var gotBody map[string]interface{}
	admin, _ := newTestAdmin(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/apps/0oa1/users", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"id":"00u1","scope":"USER","status":"PROVISIONED"}`))
	}))

	assigned, err := admin.AssignUserToApplication(context.Background(), "0oa1", "00u1")
	require.NoError(t, err)
	assert.Equal(t, "USER", assigned.Scope)
	assert.Equal(t, "00u1", gotBody["id"])
	assert.Equal(t, "USER", gotBody["scope"])
}
