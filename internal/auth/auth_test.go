package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var testConfig = Config{Secret: "test-secret", Issuer: "timely.identity"}

func TestParseRoundTripsIssuedToken(t *testing.T) {
	token, err := Issue(testConfig, "user-a", "Alice", []string{ScopeTimesheetWrite}, time.Minute)
	require.NoError(t, err)

	claims, err := Parse(token, testConfig)
	require.NoError(t, err)
	require.Equal(t, "user-a", claims.Subject)
	require.Equal(t, "Alice", claims.Name)
	require.True(t, claims.HasScope(ScopeTimesheetWrite))
	require.True(t, claims.HasScope(ScopeTimesheetRead), "write implies read")
}

func TestParseRejectsInvalidTokens(t *testing.T) {
	_, err := Parse("", testConfig)
	require.ErrorIs(t, err, ErrMissingToken)

	wrongSecret, err := Issue(Config{Secret: "other", Issuer: testConfig.Issuer}, "user-a", "", nil, time.Minute)
	require.NoError(t, err)
	_, err = Parse(wrongSecret, testConfig)
	require.ErrorIs(t, err, ErrInvalidToken)

	expired, err := Issue(testConfig, "user-a", "", nil, -time.Minute)
	require.NoError(t, err)
	_, err = Parse(expired, testConfig)
	require.ErrorIs(t, err, ErrInvalidToken)

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": testConfig.Issuer,
		"exp": time.Now().Add(time.Minute).Unix(),
	}).SignedString([]byte(testConfig.Secret))
	require.NoError(t, err)
	_, err = Parse(noSubject, testConfig)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestNormalizeScopesAcceptsSpaceDelimitedString(t *testing.T) {
	scopes := normalizeScopes("timesheet:read  timesheet:write")
	require.Len(t, scopes, 2)
}

func TestMiddleware(t *testing.T) {
	var seen *Claims
	handler := NewMiddleware(testConfig).Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/projects", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Contains(t, rr.Body.String(), `"type":"unauthorized"`)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Nil(t, seen)

	token, err := Issue(testConfig, "user-b", "Bob", []string{ScopeTimesheetRead}, time.Minute)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/v1/projects", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.NotNil(t, seen)
	require.Equal(t, "user-b", seen.Subject)
}
