package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coreos/go-oidc"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"flowconsole/backend/internal/config"
)

// NoOpLogger for testing
type NoOpLogger struct{}

func (l *NoOpLogger) Debug(msg string, args ...any) {}
func (l *NoOpLogger) Info(msg string, args ...any)  {}
func (l *NoOpLogger) Error(msg string, args ...any) {}

// MockKeySet satisfies oidc.KeySet to bypass signature verification
type MockKeySet struct{}

func (m *MockKeySet) VerifySignature(ctx context.Context, jwtToken string) ([]byte, error) {
	parts := strings.Split(jwtToken, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("malformed jwt")
	}
	return base64.RawURLEncoding.DecodeString(parts[1])
}

const testIssuer = "https://test-issuer.com"

func fakeToken(t *testing.T, claims map[string]any) string {
	t.Helper()
	headerBytes, err := json.Marshal(map[string]any{"alg": "RS256", "typ": "JWT", "kid": "test-key"})
	assert.NoError(t, err)
	payload, err := json.Marshal(claims)
	assert.NoError(t, err)
	return base64.RawURLEncoding.EncodeToString(headerBytes) + "." +
		base64.RawURLEncoding.EncodeToString(payload) + "." +
		base64.RawURLEncoding.EncodeToString([]byte("fakesignature"))
}

func testVerifier() *oidc.IDTokenVerifier {
	return oidc.NewVerifier(testIssuer, &MockKeySet{}, &oidc.Config{
		ClientID:          "test-client",
		SkipClientIDCheck: true,
	})
}

func invoke(a *Auth, token string) (*httptest.ResponseRecorder, string) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/workflows", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var gotCustomer string
	handler := a.RequireAuth(func(c echo.Context) error {
		gotCustomer = CustomerID(c)
		return c.NoContent(http.StatusOK)
	})
	if err := handler(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec, gotCustomer
}

func TestRequireAuth_ValidToken(t *testing.T) {
	a := NewWithVerifier(testVerifier(), &NoOpLogger{})

	token := fakeToken(t, map[string]any{
		"iss":   testIssuer,
		"aud":   "test-client",
		"sub":   "user-123",
		"email": "user@acme.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
		"iat":   time.Now().Add(-time.Minute).Unix(),
	})

	rec, customer := invoke(a, token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-123", customer)
}

func TestRequireAuth_EmailFallbackWhenNoSubject(t *testing.T) {
	a := NewWithVerifier(testVerifier(), &NoOpLogger{})

	token := fakeToken(t, map[string]any{
		"iss":   testIssuer,
		"aud":   "test-client",
		"email": "user@acme.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
		"iat":   time.Now().Add(-time.Minute).Unix(),
	})

	rec, customer := invoke(a, token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user@acme.com", customer)
}

func TestRequireAuth_MissingToken(t *testing.T) {
	a := NewWithVerifier(testVerifier(), &NoOpLogger{})

	rec, _ := invoke(a, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuth_MalformedToken(t *testing.T) {
	a := NewWithVerifier(testVerifier(), &NoOpLogger{})

	rec, _ := invoke(a, "not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuth_ExpiredToken(t *testing.T) {
	a := NewWithVerifier(testVerifier(), &NoOpLogger{})

	token := fakeToken(t, map[string]any{
		"iss": testIssuer,
		"aud": "test-client",
		"sub": "user-123",
		"exp": time.Now().Add(-time.Hour).Unix(),
		"iat": time.Now().Add(-2 * time.Hour).Unix(),
	})

	rec, _ := invoke(a, token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuth_TokenWithoutIdentity(t *testing.T) {
	a := NewWithVerifier(testVerifier(), &NoOpLogger{})

	token := fakeToken(t, map[string]any{
		"iss": testIssuer,
		"aud": "test-client",
		"exp": time.Now().Add(time.Hour).Unix(),
		"iat": time.Now().Add(-time.Minute).Unix(),
	})

	rec, _ := invoke(a, token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuth_DevBypass(t *testing.T) {
	cfg := &config.Config{
		Environment:   "DEV",
		DevModeBypass: true,
	}
	a, err := New(context.Background(), cfg, &NoOpLogger{})
	assert.NoError(t, err)

	rec, customer := invoke(a, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "dev@localhost", customer)
}

func TestNew_IncompleteConfigIsAnError(t *testing.T) {
	cfg := &config.Config{Environment: "PROD"}
	_, err := New(context.Background(), cfg, &NoOpLogger{})
	assert.Error(t, err)
}
