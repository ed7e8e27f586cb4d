package stt

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

const (
	saluteOAuthURL      = "https://ngw.devices.sberbank.ru:9443/api/v2/oauth"
	saluteTokenTimeout  = 10 * time.Second
	saluteRefreshMargin = time.Minute
)

// saluteTokenSource fetches access tokens with the client authorization key.
// Each request carries a fresh RqUID.
type saluteTokenSource struct {
	client  *http.Client
	url     string
	authKey string
	scope   string
}

func (s *saluteTokenSource) Token() (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(context.Background(), saluteTokenTimeout)
	defer cancel()

	form := url.Values{"scope": {s.scope}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("salute oauth: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("RqUID", uuid.NewString())
	req.Header.Set("Authorization", "Basic "+s.authKey)

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresAt   int64  `json:"expires_at"`
	}
	if err := doJSON(s.client, req, "salute", "oauth", &body); err != nil {
		return nil, err
	}
	if body.AccessToken == "" {
		return nil, fmt.Errorf("salute oauth: empty access token")
	}

	expiry := time.UnixMilli(body.ExpiresAt)
	slog.Info("salute access token obtained", "expires_at", expiry.UTC().Format(time.RFC3339))
	return &oauth2.Token{AccessToken: body.AccessToken, TokenType: "Bearer", Expiry: expiry}, nil
}

// newSaluteTokenSource caches the token and refreshes it once less than a minute is left.
func newSaluteTokenSource(client *http.Client, oauthURL, authKey, scope string) oauth2.TokenSource {
	src := &saluteTokenSource{client: client, url: oauthURL, authKey: authKey, scope: scope}
	return oauth2.ReuseTokenSourceWithExpiry(nil, src, saluteRefreshMargin)
}
