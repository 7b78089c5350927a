package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"notionmail/internal/types"
)

const (
	// msTokenURLFormat is the Microsoft identity platform v2 token endpoint.
	msTokenURLFormat = "https://login.microsoftonline.com/%s/oauth2/v2.0/token"

	// DefaultTenant addresses personal Microsoft accounts.
	DefaultTenant = "consumers"

	// MailSendScope is the fixed scope requested on every exchange.
	MailSendScope = "https://graph.microsoft.com/Mail.Send offline_access"

	// DefaultExpiryMargin is how long before expiry a cached token stops being
	// handed out.
	DefaultExpiryMargin = 5 * time.Minute
)

// TokenURL returns the token endpoint for tenant.
func TokenURL(tenant string) string {
	if tenant == "" {
		tenant = DefaultTenant
	}
	return fmt.Sprintf(msTokenURLFormat, tenant)
}

// TokenManagerConfig holds the configuration for creating a TokenManager.
type TokenManagerConfig struct {
	ClientID     string
	RefreshToken types.SecretString
	Tenant       string
	TokenURL     string        // Override for testing; defaults to TokenURL(Tenant)
	ExpiryMargin time.Duration // Defaults to DefaultExpiryMargin
	Clock        types.Clock
	Logger       *slog.Logger

	// OnRotate, when set, is called with the new refresh token whenever the
	// identity platform issues one that differs from the token in use.
	OnRotate func(newRefreshToken string)
}

// TokenManager obtains Graph access tokens with the refresh-token grant and
// caches them until shortly before expiry. A rotated refresh token is adopted
// for the rest of the process and announced in the log; it is never persisted,
// so operators must copy it into the stored secret themselves.
type TokenManager struct {
	base         *BaseClient
	clientID     string
	tokenURL     string
	margin       time.Duration
	clock        types.Clock
	logger       *slog.Logger
	onRotate     func(string)
	refreshToken string
	cached       *oauth2.Token
}

// NewTokenManager creates a TokenManager. Exchanges get one retry on 429/5xx.
func NewTokenManager(httpClient *http.Client, cfg TokenManagerConfig) *TokenManager {
	base := NewBaseClient(
		httpClient,
		"ms-identity",
		RetryPolicy{
			MaxRetries: 1,
			MinWait:    500 * time.Millisecond,
			MaxWait:    5 * time.Second,
		},
		"NotionMail/1.0",
		WithSleepFunc(time.Sleep),
	)
	return NewTokenManagerWithBase(base, cfg)
}

// NewTokenManagerWithBase creates a TokenManager with a pre-configured
// BaseClient.
func NewTokenManagerWithBase(base *BaseClient, cfg TokenManagerConfig) *TokenManager {
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = TokenURL(cfg.Tenant)
	}

	margin := cfg.ExpiryMargin
	if margin <= 0 {
		margin = DefaultExpiryMargin
	}

	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &TokenManager{
		base:         base,
		clientID:     cfg.ClientID,
		tokenURL:     tokenURL,
		margin:       margin,
		clock:        clock,
		logger:       logger,
		onRotate:     cfg.OnRotate,
		refreshToken: cfg.RefreshToken.Unmask(),
	}
}

// msTokenResponse is the token endpoint's success or error body.
type msTokenResponse struct {
	TokenType        string `json:"token_type"`
	Scope            string `json:"scope"`
	ExpiresIn        int64  `json:"expires_in"`
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// Token returns a valid access token, exchanging the refresh token only when
// the cached one is missing or within the expiry margin.
func (m *TokenManager) Token(ctx context.Context) (string, error) {
	if m.cached != nil && m.clock.Now().Before(m.cached.Expiry.Add(-m.margin)) {
		return m.cached.AccessToken, nil
	}

	if m.refreshToken == "" {
		return "", types.NewAppError(types.ErrCodeTokenMissing, "refresh token is not configured", nil)
	}

	tok, err := m.exchange(ctx)
	if err != nil {
		return "", err
	}
	m.cached = tok
	return tok.AccessToken, nil
}

// exchange performs one refresh-token grant.
func (m *TokenManager) exchange(ctx context.Context) (*oauth2.Token, error) {
	params := url.Values{}
	params.Set("client_id", m.clientID)
	params.Set("grant_type", "refresh_token")
	params.Set("refresh_token", m.refreshToken)
	params.Set("scope", MailSendScope)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.tokenURL, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create token request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := m.base.Do(req)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeTokenRefresh, "token refresh failed: "+types.MessageOf(err), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeTokenRefresh, "token refresh failed: unreadable response", err)
	}

	var tr msTokenResponse
	_ = json.Unmarshal(body, &tr)

	if tr.AccessToken == "" {
		return nil, types.NewAppError(types.ErrCodeTokenRefresh, "token refresh failed: "+describeTokenFailure(resp.StatusCode, tr), nil)
	}

	now := m.clock.Now()
	tok := &oauth2.Token{
		AccessToken:  tr.AccessToken,
		TokenType:    tr.TokenType,
		RefreshToken: m.refreshToken,
		Expiry:       now.Add(time.Duration(tr.ExpiresIn) * time.Second),
	}

	if tr.RefreshToken != "" && tr.RefreshToken != m.refreshToken {
		m.refreshToken = tr.RefreshToken
		tok.RefreshToken = tr.RefreshToken
		m.logger.WarnContext(ctx, "refresh token rotated; update the stored secret with the new value",
			"new_refresh_token", tr.RefreshToken,
		)
		if m.onRotate != nil {
			m.onRotate(tr.RefreshToken)
		}
	}

	m.logger.DebugContext(ctx, "access token refreshed", "expires_at", tok.Expiry)
	return tok, nil
}

// describeTokenFailure picks the most useful explanation from a failed
// exchange: error_description, then error, then the HTTP status.
func describeTokenFailure(status int, tr msTokenResponse) string {
	switch {
	case tr.ErrorDescription != "":
		return tr.ErrorDescription
	case tr.Error != "":
		return tr.Error
	default:
		return fmt.Sprintf("HTTP %d", status)
	}
}
