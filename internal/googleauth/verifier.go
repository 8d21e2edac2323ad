// Package googleauth verifies Google OAuth access tokens against the userinfo
// endpoint and enforces the single-account allowlist.
package googleauth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/oauth2"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

var (
	// ErrInvalidToken means Google rejected the token or it was blank.
	ErrInvalidToken = errors.New("invalid access token")
	// ErrForbidden means the token is valid but belongs to another account.
	ErrForbidden = errors.New("account not allowed")
)

const defaultCacheTTL = 5 * time.Minute

// User is the subset of Google profile data the API exposes.
type User struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Config configures a Verifier.
type Config struct {
	AllowedEmail string
	// Endpoint overrides the Google API base URL.
	Endpoint string
	CacheTTL time.Duration
}

// Verifier checks bearer tokens. Successful lookups are cached by token hash.
type Verifier struct {
	allowedEmail string
	endpoint     string
	cache        *cache.Cache
}

// NewVerifier builds a Verifier. AllowedEmail is required.
func NewVerifier(cfg Config) (*Verifier, error) {
	allowed := strings.TrimSpace(cfg.AllowedEmail)
	if allowed == "" {
		return nil, errors.New("googleauth: allowed email is required")
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Verifier{
		allowedEmail: allowed,
		endpoint:     strings.TrimSpace(cfg.Endpoint),
		cache:        cache.New(ttl, 2*ttl),
	}, nil
}

// Verify resolves the token owner and checks it against the allowlist.
func (v *Verifier) Verify(ctx context.Context, token string) (User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return User{}, ErrInvalidToken
	}
	key := tokenKey(token)
	if cached, ok := v.cache.Get(key); ok {
		return v.authorize(cached.(User))
	}

	user, err := v.lookup(ctx, token)
	if err != nil {
		return User{}, err
	}
	v.cache.SetDefault(key, user)
	return v.authorize(user)
}

func (v *Verifier) authorize(user User) (User, error) {
	if !strings.EqualFold(user.Email, v.allowedEmail) {
		return user, ErrForbidden
	}
	return user, nil
}

func (v *Verifier) lookup(ctx context.Context, token string) (User, error) {
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
	}))
	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if v.endpoint != "" {
		opts = append(opts, option.WithEndpoint(strings.TrimRight(v.endpoint, "/")+"/"))
	}
	svc, err := oauth2api.NewService(ctx, opts...)
	if err != nil {
		return User{}, fmt.Errorf("googleauth: new service: %w", err)
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return User{}, ctxErr
		}
		return User{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if strings.TrimSpace(info.Email) == "" {
		return User{}, ErrInvalidToken
	}
	return User{Email: info.Email, Name: info.Name}, nil
}

func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
