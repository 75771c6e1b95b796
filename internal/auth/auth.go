package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc"
	"github.com/labstack/echo/v4"
	"golang.org/x/oauth2"

	"flowconsole/backend/internal/config"
)

// customerIDKey is the request-context key carrying the authenticated
// caller's customer id.
const customerIDKey = "customer_id"

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// Auth verifies bearer tokens issued by the configured OIDC provider and
// resolves the caller's customer identity.
type Auth struct {
	oauth2Config *oauth2.Config
	apiVerifier  *oidc.IDTokenVerifier
	logger       Logger
	devMode      bool
	authBypass   bool
}

// New creates a new Auth object using values from the application
// configuration. It establishes a connection to the provider and prepares a
// token verifier.
func New(ctx context.Context, cfg *config.Config, logger Logger) (*Auth, error) {
	isDev := strings.ToUpper(cfg.Environment) == "DEV"
	shouldBypass := isDev && cfg.DevModeBypass

	var oauth2Config *oauth2.Config
	var apiVerifier *oidc.IDTokenVerifier

	if !shouldBypass {
		if cfg.Auth.IssuerURL == "" || cfg.Auth.ClientID == "" {
			return nil, errors.New("auth configuration is incomplete")
		}

		provider, err := oidc.NewProvider(ctx, cfg.Auth.IssuerURL)
		if err != nil {
			return nil, err
		}

		oauth2Config = &oauth2.Config{
			ClientID:     cfg.Auth.ClientID,
			ClientSecret: cfg.Auth.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  cfg.Auth.RedirectURL,
			Scopes:       []string{ScopeOpenID},
		}

		// Access tokens often have a different audience than the client id
		// (e.g. "api://default"), so the audience check is skipped here.
		apiVerifier = provider.Verifier(&oidc.Config{SkipClientIDCheck: true})
	}

	return &Auth{
		oauth2Config: oauth2Config,
		apiVerifier:  apiVerifier,
		logger:       logger,
		devMode:      isDev,
		authBypass:   shouldBypass,
	}, nil
}

// NewWithVerifier creates an Auth around an existing verifier. Used by tests
// to bypass provider discovery.
func NewWithVerifier(verifier *oidc.IDTokenVerifier, logger Logger) *Auth {
	return &Auth{apiVerifier: verifier, logger: logger}
}

// RequireAuth is echo middleware that ensures a valid bearer token is
// present and injects the caller's customer id into the request context.
// Requests without a resolvable identity are rejected with 401; identity is
// never silently defaulted.
func (a *Auth) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if a.authBypass {
			setCustomerID(c, "dev@localhost")
			return next(c)
		}

		authHeader := c.Request().Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
		}
		rawToken := strings.TrimPrefix(authHeader, "Bearer ")

		token, err := a.apiVerifier.Verify(c.Request().Context(), rawToken)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid token: "+err.Error())
		}

		var claims struct {
			Subject string `json:"sub"`
			Email   string `json:"email"`
		}
		if err := token.Claims(&claims); err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "failed to parse token claims")
		}

		customerID := claims.Subject
		if customerID == "" {
			customerID = claims.Email
		}
		if customerID == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "token carries no identity")
		}

		setCustomerID(c, customerID)
		return next(c)
	}
}

// CustomerID returns the authenticated caller's customer id from the echo
// context, or empty when unauthenticated.
func CustomerID(c echo.Context) string {
	id, _ := c.Get(customerIDKey).(string)
	return id
}

func setCustomerID(c echo.Context, id string) {
	c.Set(customerIDKey, id)
}
