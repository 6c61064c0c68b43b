// Package oauth implements the redirect-based social sign-in flow.
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

var ErrUnknownProvider = errors.New("unknown oauth provider")

// ErrExchangeFailed covers every failure between receiving a callback code and
// holding a provider session, including code replay.
var ErrExchangeFailed = errors.New("oauth exchange failed")

// SocialUser is the subset of provider profile data the callback needs.
type SocialUser struct {
	ID    string
	Email string
	Name  string
}

type Service struct {
	providers map[string]*oauth2.Config
	userInfo  map[string]string
	client    *http.Client
}

// Config holds one provider's client credentials.
type Config struct {
	ClientID     string
	ClientSecret string
}

// New builds the provider set. Providers without credentials are left out and
// reported as unknown. redirectBase is the public base URL of the API; the
// callback lands on redirectBase/api/auth/callback/{provider}.
func New(redirectBase string, google, github Config) *Service {
	s := &Service{
		providers: map[string]*oauth2.Config{},
		userInfo: map[string]string{
			"google": "https://www.googleapis.com/oauth2/v2/userinfo",
			"github": "https://api.github.com/user",
		},
		client: &http.Client{Timeout: 15 * time.Second},
	}
	base := strings.TrimRight(redirectBase, "/")
	if google.ClientID != "" {
		s.providers["google"] = &oauth2.Config{
			ClientID:     google.ClientID,
			ClientSecret: google.ClientSecret,
			Endpoint:     endpoints.Google,
			RedirectURL:  base + "/api/auth/callback/google",
			Scopes:       []string{"openid", "email", "profile"},
		}
	}
	if github.ClientID != "" {
		s.providers["github"] = &oauth2.Config{
			ClientID:     github.ClientID,
			ClientSecret: github.ClientSecret,
			Endpoint:     endpoints.GitHub,
			RedirectURL:  base + "/api/auth/callback/github",
			Scopes:       []string{"user:email"},
		}
	}
	return s
}

// NewWithConfigs builds a service from explicit oauth2 configs. Used by tests
// to point exchanges at a fake provider.
func NewWithConfigs(providers map[string]*oauth2.Config, userInfo map[string]string) *Service {
	return &Service{
		providers: providers,
		userInfo:  userInfo,
		client:    &http.Client{Timeout: 15 * time.Second},
	}
}

// Providers lists the configured provider names.
func (s *Service) Providers() []string {
	names := make([]string, 0, len(s.providers))
	for name := range s.providers {
		names = append(names, name)
	}
	return names
}

// AuthURL returns the provider consent URL. state is round-tripped through the
// provider and comes back on the callback.
func (s *Service) AuthURL(provider, state string) (string, error) {
	cfg, ok := s.providers[strings.ToLower(provider)]
	if !ok {
		return "", ErrUnknownProvider
	}
	return cfg.AuthCodeURL(state, oauth2.AccessTypeOffline), nil
}

// Exchange trades a callback authorization code for a provider token. Codes
// are single-use on the provider side; the caller additionally guards against
// replaying a code this service already consumed.
func (s *Service) Exchange(ctx context.Context, provider, code string) (*oauth2.Token, error) {
	cfg, ok := s.providers[strings.ToLower(provider)]
	if !ok {
		return nil, ErrUnknownProvider
	}
	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}
	return token, nil
}

// FetchUser loads the provider profile for an exchanged token.
func (s *Service) FetchUser(ctx context.Context, provider string, token *oauth2.Token) (SocialUser, error) {
	name := strings.ToLower(provider)
	cfg, ok := s.providers[name]
	if !ok {
		return SocialUser{}, ErrUnknownProvider
	}
	infoURL, ok := s.userInfo[name]
	if !ok {
		return SocialUser{}, ErrUnknownProvider
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, infoURL, nil)
	if err != nil {
		return SocialUser{}, fmt.Errorf("build userinfo request: %w", err)
	}
	resp, err := cfg.Client(contextWithClient(ctx, s.client), token).Do(req)
	if err != nil {
		return SocialUser{}, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return SocialUser{}, fmt.Errorf("%w: userinfo status %d", ErrExchangeFailed, resp.StatusCode)
	}

	switch name {
	case "github":
		var u struct {
			ID    int64  `json:"id"`
			Login string `json:"login"`
			Email string `json:"email"`
			Name  string `json:"name"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
			return SocialUser{}, fmt.Errorf("decode userinfo: %w", err)
		}
		display := u.Name
		if display == "" {
			display = u.Login
		}
		return SocialUser{ID: strconv.FormatInt(u.ID, 10), Email: u.Email, Name: display}, nil
	default:
		var u struct {
			ID    string `json:"id"`
			Email string `json:"email"`
			Name  string `json:"name"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
			return SocialUser{}, fmt.Errorf("decode userinfo: %w", err)
		}
		return SocialUser{ID: u.ID, Email: u.Email, Name: u.Name}, nil
	}
}

func contextWithClient(ctx context.Context, client *http.Client) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, client)
}
