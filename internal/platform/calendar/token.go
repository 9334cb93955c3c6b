package calendar

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/go-querystring/query"
)

const (
	calendarScope  = "https://www.googleapis.com/auth/calendar"
	jwtBearerGrant = "urn:ietf:params:oauth:grant-type:jwt-bearer"
)

type tokenRequest struct {
	GrantType    string `url:"grant_type"`
	Assertion    string `url:"assertion,omitempty"`
	ClientID     string `url:"client_id,omitempty"`
	ClientSecret string `url:"client_secret,omitempty"`
	RefreshToken string `url:"refresh_token,omitempty"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

type assertionClaims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// tokenSource exchanges credentials for an access token and caches it until shortly before expiry.
type tokenSource struct {
	tokenURL string
	http     *http.Client
	request  func(now time.Time) (tokenRequest, error)
	now      func() time.Time

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// newServiceAccountSource signs an RS256 assertion per exchange (OAuth 2.0 JWT bearer grant).
func newServiceAccountSource(email string, key *rsa.PrivateKey, tokenURL string, hc *http.Client) *tokenSource {
	return &tokenSource{
		tokenURL: tokenURL,
		http:     hc,
		now:      time.Now,
		request: func(now time.Time) (tokenRequest, error) {
			claims := assertionClaims{
				Scope: calendarScope,
				RegisteredClaims: jwt.RegisteredClaims{
					Issuer:    email,
					Audience:  jwt.ClaimStrings{tokenURL},
					IssuedAt:  jwt.NewNumericDate(now),
					ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
				},
			}
			signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
			if err != nil {
				return tokenRequest{}, fmt.Errorf("sign assertion: %w", err)
			}
			return tokenRequest{GrantType: jwtBearerGrant, Assertion: signed}, nil
		},
	}
}

func newRefreshTokenSource(clientID, clientSecret, refreshToken, tokenURL string, hc *http.Client) *tokenSource {
	return &tokenSource{
		tokenURL: tokenURL,
		http:     hc,
		now:      time.Now,
		request: func(time.Time) (tokenRequest, error) {
			return tokenRequest{
				GrantType:    "refresh_token",
				ClientID:     clientID,
				ClientSecret: clientSecret,
				RefreshToken: refreshToken,
			}, nil
		},
	}
}

func (s *tokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.token != "" && now.Before(s.expiry.Add(-time.Minute)) {
		return s.token, nil
	}

	req, err := s.request(now)
	if err != nil {
		return "", err
	}
	form, err := query.Values(req)
	if err != nil {
		return "", fmt.Errorf("encode token request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := s.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("token exchange: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return "", fmt.Errorf("token exchange: status=%d body=%s", res.StatusCode, strings.TrimSpace(string(body)))
	}

	var tr tokenResponse
	if err := json.NewDecoder(res.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", errors.New("token exchange: empty access token")
	}

	s.token = tr.AccessToken
	s.expiry = now.Add(time.Duration(tr.ExpiresIn) * time.Second)
	return s.token, nil
}
