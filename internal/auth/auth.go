// Package auth implements Kakao OAuth login for the interview service:
// authorization-code exchange, user info lookup, and token refresh.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/jvvv94/kairos-ai/internal/models"
	"golang.org/x/oauth2"
)

// Kakao endpoint and API defaults.
const (
	DefaultAuthURL     = "https://kauth.kakao.com/oauth/authorize"
	DefaultTokenURL    = "https://kauth.kakao.com/oauth/token"
	DefaultUserInfoURL = "https://kapi.kakao.com/v2/user/me"
)

// Errors returned by the auth service.
var (
	ErrExchangeFailed = errors.New("authorization code exchange failed")
	ErrRefreshFailed  = errors.New("token refresh failed")
	ErrUserInfoFailed = errors.New("user info lookup failed")
)

// Opts holds configuration options for the auth service.
type Opts struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
	UserInfoURL  string
}

// Option configures the auth service.
type Option func(*Opts)

// WithClientID sets the Kakao REST API key.
func WithClientID(id string) Option {
	return func(o *Opts) { o.ClientID = id }
}

// WithClientSecret sets the Kakao client secret.
func WithClientSecret(secret string) Option {
	return func(o *Opts) { o.ClientSecret = secret }
}

// WithRedirectURL sets the OAuth redirect URL registered with Kakao.
func WithRedirectURL(url string) Option {
	return func(o *Opts) { o.RedirectURL = url }
}

// WithEndpoints overrides the provider endpoints; used by tests.
func WithEndpoints(authURL, tokenURL, userInfoURL string) Option {
	return func(o *Opts) {
		o.AuthURL = authURL
		o.TokenURL = tokenURL
		o.UserInfoURL = userInfoURL
	}
}

// Service performs the OAuth dance against Kakao.
type Service struct {
	conf        *oauth2.Config
	userInfoURL string
}

// NewService creates a Kakao auth service.
func NewService(opts ...Option) (*Service, error) {
	cfg := Opts{
		AuthURL:     DefaultAuthURL,
		TokenURL:    DefaultTokenURL,
		UserInfoURL: DefaultUserInfoURL,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("Kakao client ID not set")
	}

	return &Service{
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		userInfoURL: cfg.UserInfoURL,
	}, nil
}

// Login exchanges an authorization code for tokens and resolves the user
// identity. The refresh token is returned separately so the handler can move
// it into an HTTP-only cookie instead of the response body.
func (s *Service) Login(ctx context.Context, code string) (*models.AuthResult, string, error) {
	tok, err := s.conf.Exchange(ctx, code)
	if err != nil {
		slog.Warn("Auth.Login: code exchange rejected", "error", err)
		return nil, "", fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}

	user, err := s.fetchUser(ctx, tok)
	if err != nil {
		return nil, "", err
	}
	slog.Info("Auth.Login succeeded", "userID", user.ID)

	return &models.AuthResult{
		User:      user,
		Token:     tok.AccessToken,
		ExpiresIn: expiresIn(tok),
	}, tok.RefreshToken, nil
}

// Refresh trades a refresh token for a fresh access token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*models.AuthResult, string, error) {
	src := s.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		slog.Warn("Auth.Refresh: refresh rejected", "error", err)
		return nil, "", fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}

	// Kakao rotates refresh tokens near expiry; fall back to the old one
	// when no replacement is issued.
	newRefresh := tok.RefreshToken
	if newRefresh == "" {
		newRefresh = refreshToken
	}
	return &models.AuthResult{
		Token:     tok.AccessToken,
		ExpiresIn: expiresIn(tok),
	}, newRefresh, nil
}

// kakaoUserInfo is the slice of Kakao's /v2/user/me response the service
// reads.
type kakaoUserInfo struct {
	ID           int64 `json:"id"`
	KakaoAccount struct {
		Email   string `json:"email"`
		Profile struct {
			Nickname string `json:"nickname"`
		} `json:"profile"`
	} `json:"kakao_account"`
}

func (s *Service) fetchUser(ctx context.Context, tok *oauth2.Token) (*models.AuthUser, error) {
	client := s.conf.Client(ctx, tok)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUserInfoFailed, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		slog.Error("Auth.fetchUser: request failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrUserInfoFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slog.Error("Auth.fetchUser: unexpected status", "status", resp.StatusCode)
		return nil, fmt.Errorf("%w: status %d", ErrUserInfoFailed, resp.StatusCode)
	}

	var info kakaoUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUserInfoFailed, err)
	}
	if info.ID == 0 {
		return nil, fmt.Errorf("%w: response carried no user ID", ErrUserInfoFailed)
	}

	return &models.AuthUser{
		ID:       strconv.FormatInt(info.ID, 10),
		Nickname: info.KakaoAccount.Profile.Nickname,
		Email:    info.KakaoAccount.Email,
	}, nil
}

// expiresIn converts the token expiry to whole seconds from now.
func expiresIn(tok *oauth2.Token) int64 {
	if tok.Expiry.IsZero() {
		return 0
	}
	return int64(time.Until(tok.Expiry) / time.Second)
}
