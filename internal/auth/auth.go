// Package auth exchanges account credentials for the session token the
// private-message server expects.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultLoginURL is the account login endpoint.
const DefaultLoginURL = "http://chatango.com/login"

// ErrNoToken is returned when the login response sets no auth cookie,
// which is how the server reports bad credentials.
var ErrNoToken = errors.New("auth: no token in login response")

var tokenCookie = regexp.MustCompile(`(?i)auth\.chatango\.com ?= ?([^;]*)`)

// HTTPLogin posts the login form and reads the token from the
// Set-Cookie headers of the response.
type HTTPLogin struct {
	URL    string
	Client *http.Client
	Logger zerolog.Logger
}

// NewHTTPLogin returns a login client for loginURL, or DefaultLoginURL
// when it is empty.
func NewHTTPLogin(loginURL string, logger zerolog.Logger) *HTTPLogin {
	if loginURL == "" {
		loginURL = DefaultLoginURL
	}
	return &HTTPLogin{
		URL: loginURL,
		Client: &http.Client{
			Timeout: 15 * time.Second,
			// The token is on the first response; never follow the redirect.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		Logger: logger.With().Str("module", "auth").Logger(),
	}
}

// Authenticate implements roomlink.Authenticator.
func (l *HTTPLogin) Authenticate(ctx context.Context, name, password string) (string, error) {
	form := url.Values{
		"user_id":     {name},
		"password":    {password},
		"storecookie": {"on"},
		"checkerrors": {"yes"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.URL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("auth: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("auth: login request: %w", err)
	}
	defer resp.Body.Close()

	token := Token(resp.Header)
	if token == "" {
		l.Logger.Warn().Str("user", name).Int("status", resp.StatusCode).Msg("login returned no token")
		return "", ErrNoToken
	}
	l.Logger.Debug().Str("user", name).Msg("login succeeded")
	return token, nil
}

// Token returns the first non-empty auth cookie value in h.
func Token(h http.Header) string {
	for _, v := range h.Values("Set-Cookie") {
		if m := tokenCookie.FindStringSubmatch(v); m != nil && m[1] != "" {
			return m[1]
		}
	}
	return ""
}
