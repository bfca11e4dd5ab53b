package gigachat

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/medtriage/platform/pkg/common/logger"
	"github.com/medtriage/platform/pkg/gateway/httpclient"
	"github.com/medtriage/platform/pkg/observability/metrics"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

var ErrMissingAuthKey = errors.New("gigachat authorization key is not set")

// Token is a bearer token with the moment it stops being reused.
type Token struct {
	Value  string    `json:"value"`
	Expiry time.Time `json:"expiry"`
}

func (t Token) validAt(now time.Time) bool {
	return t.Value != "" && now.Before(t.Expiry)
}

// TokenStore shares a token between holders, typically across processes.
type TokenStore interface {
	Load(ctx context.Context) (Token, error)
	Save(ctx context.Context, token Token) error
}

type MemoryStore struct {
	mu    sync.Mutex
	token Token
}

func (s *MemoryStore) Load(context.Context) (Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, nil
}

func (s *MemoryStore) Save(_ context.Context, token Token) error {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	return nil
}

type RedisStore struct {
	client *redis.Client
	key    string
}

func NewRedisStore(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = "gigachat:access_token"
	}
	return &RedisStore{client: client, key: key}
}

func (s *RedisStore) Load(ctx context.Context) (Token, error) {
	raw, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Token{}, nil
	}
	if err != nil {
		return Token{}, err
	}
	var token Token
	if err := json.Unmarshal(raw, &token); err != nil {
		return Token{}, fmt.Errorf("decode cached token: %w", err)
	}
	return token, nil
}

func (s *RedisStore) Save(ctx context.Context, token Token) error {
	ttl := time.Until(token.Expiry)
	if ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(token)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key, raw, ttl).Err()
}

type AuthConfig struct {
	URL string
	// AuthorizationKey is base64("client_id:client_secret") as issued by the
	// vendor console.
	AuthorizationKey string
	Scope            string
	TTL              time.Duration
}

// TokenHolder owns the access token of one client. Concurrent callers are
// serialized so that at most one exchange is in flight.
type TokenHolder struct {
	cfg   AuthConfig
	http  *http.Client
	store TokenStore
	now   func() time.Time

	mu      sync.Mutex
	token   Token
	revoked string
}

func NewTokenHolder(cfg AuthConfig, client *http.Client, store TokenStore) *TokenHolder {
	if cfg.TTL <= 0 {
		cfg.TTL = 25 * time.Minute
	}
	if cfg.Scope == "" {
		cfg.Scope = "GIGACHAT_API_PERS"
	}
	return &TokenHolder{cfg: cfg, http: client, store: store, now: time.Now}
}

// Valid returns the cached token while it is fresh, otherwise exchanges the
// authorization key for a new one.
func (h *TokenHolder) Valid(ctx context.Context) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	if h.token.validAt(now) {
		return h.token.Value, nil
	}

	if h.store != nil {
		shared, err := h.store.Load(ctx)
		if err != nil {
			logger.Log.WithError(err).Warn("gigachat token store unavailable")
		} else if shared.validAt(now) && shared.Value != h.revoked {
			h.token = shared
			return shared.Value, nil
		}
	}

	var value string
	err := httpclient.Retry(ctx, 2, 200*time.Millisecond, httpclient.IsTimeout, func() error {
		var err error
		value, err = h.exchange(ctx)
		return err
	})
	if err != nil {
		metrics.TokenRefreshes.WithLabelValues("error").Inc()
		return "", err
	}
	metrics.TokenRefreshes.WithLabelValues("ok").Inc()

	h.token = Token{Value: value, Expiry: h.now().Add(h.cfg.TTL)}
	if h.store != nil {
		if err := h.store.Save(ctx, h.token); err != nil {
			logger.Log.WithError(err).Warn("failed to share gigachat token")
		}
	}
	logger.Log.WithField("expires_at", h.token.Expiry).Info("gigachat token refreshed")
	return value, nil
}

func (h *TokenHolder) exchange(ctx context.Context) (string, error) {
	if h.cfg.AuthorizationKey == "" {
		return "", ErrMissingAuthKey
	}
	clientID, secret, err := splitAuthorizationKey(h.cfg.AuthorizationKey)
	if err != nil {
		return "", err
	}

	cc := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: secret,
		TokenURL:     h.cfg.URL,
		Scopes:       []string{h.cfg.Scope},
		AuthStyle:    oauth2.AuthStyleInHeader,
	}

	base := h.http
	if base == nil {
		base = http.DefaultClient
	}
	exchangeClient := &http.Client{
		Timeout:   30 * time.Second,
		Transport: rqUIDTransport{base: base.Transport},
	}

	tok, err := cc.Token(context.WithValue(ctx, oauth2.HTTPClient, exchangeClient))
	if err != nil {
		return "", fmt.Errorf("gigachat auth: %w", err)
	}
	return tok.AccessToken, nil
}

func splitAuthorizationKey(key string) (string, string, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(key))
	if err != nil {
		return "", "", fmt.Errorf("decode authorization key: %w", err)
	}
	id, secret, ok := strings.Cut(string(raw), ":")
	if !ok || id == "" {
		return "", "", errors.New("authorization key must encode client_id:client_secret")
	}
	return id, secret, nil
}

// rqUIDTransport stamps every request with a fresh RqUID, which the vendor
// requires for request tracing.
type rqUIDTransport struct {
	base http.RoundTripper
}

func (t rqUIDTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	clone := req.Clone(req.Context())
	clone.Header.Set("RqUID", uuid.New().String())
	clone.Header.Set("Accept", "application/json")
	return base.RoundTrip(clone)
}

// Invalidate drops the cached token so the next call exchanges a new one.
func (h *TokenHolder) Invalidate() {
	h.mu.Lock()
	h.revoked = h.token.Value
	h.token = Token{}
	h.mu.Unlock()
}
