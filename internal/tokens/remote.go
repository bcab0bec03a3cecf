package tokens

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"github.com/odyssey-erp/odyssey-access/internal/session"
	"github.com/odyssey-erp/odyssey-access/internal/shared"
)

// RemoteConfig configures RemoteIssuer.
type RemoteConfig struct {
	BaseURL       string
	Timeout       time.Duration
	RetryAttempts int
	RatePerSecond float64
	Burst         int
}

// RemoteIssuer delegates credential minting to an external service.
type RemoteIssuer struct {
	client  *http.Client
	baseURL string
	limiter *rate.Limiter
	logger  *slog.Logger
}

var _ session.TokenIssuer = (*RemoteIssuer)(nil)

// NewRemoteIssuer builds a client with bounded retries and an outbound rate limit.
func NewRemoteIssuer(cfg RemoteConfig, logger *slog.Logger) *RemoteIssuer {
	if logger == nil {
		logger = slog.Default()
	}
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.RetryAttempts
	retryClient.RetryWaitMin = 100 * time.Millisecond
	retryClient.RetryWaitMax = 2 * time.Second
	if cfg.Timeout > 0 {
		retryClient.HTTPClient.Timeout = cfg.Timeout
	}
	retryClient.Logger = nil

	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &RemoteIssuer{
		client:  retryClient.StandardClient(),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}
}

type refreshRequest struct {
	UserID       int64          `json:"userId"`
	RefreshToken string         `json:"refreshToken"`
	Claims       session.Claims `json:"claims"`
}

// Issue implements session.TokenIssuer.
func (r *RemoteIssuer) Issue(ctx context.Context, claims session.Claims) (session.Credentials, error) {
	return r.post(ctx, "/issue", claims)
}

// Refresh implements session.TokenIssuer. The remote side receives the
// current claims and answers 401 when the token is bound to other ones.
func (r *RemoteIssuer) Refresh(ctx context.Context, refreshToken string, current session.Claims) (session.Credentials, error) {
	return r.post(ctx, "/refresh", refreshRequest{UserID: current.UserID, RefreshToken: refreshToken, Claims: current})
}

func (r *RemoteIssuer) post(ctx context.Context, path string, payload any) (session.Credentials, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return session.Credentials{}, fmt.Errorf("tokens: remote %s: %w", path, err)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return session.Credentials{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return session.Credentials{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return session.Credentials{}, fmt.Errorf("tokens: remote %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		_, _ = io.Copy(io.Discard, resp.Body)
		return session.Credentials{}, fmt.Errorf("tokens: remote %s rejected: %w", path, shared.ErrInvalidToken)
	case resp.StatusCode >= 300:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		r.logger.Warn("remote issuer error", slog.String("path", path), slog.Int("status", resp.StatusCode), slog.String("body", string(snippet)))
		return session.Credentials{}, fmt.Errorf("tokens: remote %s: unexpected status %d", path, resp.StatusCode)
	}

	var creds session.Credentials
	if err := json.NewDecoder(resp.Body).Decode(&creds); err != nil {
		return session.Credentials{}, fmt.Errorf("tokens: decode remote %s: %w", path, err)
	}
	if creds.AccessToken == "" {
		return session.Credentials{}, fmt.Errorf("tokens: remote %s returned no access token", path)
	}
	return creds, nil
}
