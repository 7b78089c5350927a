package external

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

	"notionmail/internal/types"
)

// graphAPIBase is the default Microsoft Graph base URL.
// Overridable in tests via GraphMailerConfig.BaseURL.
const graphAPIBase = "https://graph.microsoft.com"

// GraphMailerConfig holds the configuration for creating a GraphMailer.
type GraphMailerConfig struct {
	Tokens  TokenSource
	BaseURL string // Override for testing; defaults to graphAPIBase
	Logger  *slog.Logger
}

// GraphMailer implements Mailer with the Graph sendMail action of the signed
// in account. Sends are attempted exactly once.
type GraphMailer struct {
	base    *BaseClient
	tokens  TokenSource
	baseURL string
	logger  *slog.Logger
}

// NewGraphMailer creates a GraphMailer that never retries a send.
func NewGraphMailer(httpClient *http.Client, cfg GraphMailerConfig) *GraphMailer {
	base := NewBaseClient(
		httpClient,
		"graph-mail",
		NoRetryPolicy(),
		"NotionMail/1.0",
		WithSleepFunc(time.Sleep),
	)
	return NewGraphMailerWithBase(base, cfg)
}

// NewGraphMailerWithBase creates a GraphMailer with a pre-configured
// BaseClient.
func NewGraphMailerWithBase(base *BaseClient, cfg GraphMailerConfig) *GraphMailer {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = graphAPIBase
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &GraphMailer{
		base:    base,
		tokens:  cfg.Tokens,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

// ---------------------------------------------------------------------------
// Payload Construction
// ---------------------------------------------------------------------------

type graphSendMailPayload struct {
	Message         graphMessage `json:"message"`
	SaveToSentItems bool         `json:"saveToSentItems"`
}

type graphMessage struct {
	Subject      string           `json:"subject"`
	Body         graphItemBody    `json:"body"`
	ToRecipients []graphRecipient `json:"toRecipients"`
}

type graphItemBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type graphRecipient struct {
	EmailAddress graphEmailAddress `json:"emailAddress"`
}

type graphEmailAddress struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

func buildSendMailPayload(msg Message) graphSendMailPayload {
	return graphSendMailPayload{
		Message: graphMessage{
			Subject: msg.Subject,
			Body: graphItemBody{
				ContentType: "HTML",
				Content:     msg.HTML,
			},
			ToRecipients: []graphRecipient{
				{EmailAddress: graphEmailAddress{Address: msg.ToAddress, Name: msg.ToName}},
			},
		},
		SaveToSentItems: true,
	}
}

// ---------------------------------------------------------------------------
// Mailer Implementation
// ---------------------------------------------------------------------------

// Send delivers msg. Token failures are returned unchanged; any non-2xx
// answer from Graph becomes an ErrCodeSend error.
func (g *GraphMailer) Send(ctx context.Context, msg Message) error {
	token, err := g.tokens.Token(ctx)
	if err != nil {
		return err
	}

	body, err := json.Marshal(buildSendMailPayload(msg))
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to marshal sendMail payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1.0/me/sendMail", bytes.NewReader(body))
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create sendMail request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := g.base.Do(req)
	if err != nil {
		return types.NewAppError(types.ErrCodeSend, types.MessageOf(err), err)
	}
	defer resp.Body.Close()

	// Graph answers 202 Accepted on success.
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	return g.handleErrorResponse(resp)
}

// ---------------------------------------------------------------------------
// Error Handling
// ---------------------------------------------------------------------------

// graphErrorResponse is the JSON error body returned by Graph.
type graphErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (g *GraphMailer) handleErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	msg := fmt.Sprintf("HTTP %d", resp.StatusCode)
	var gErr graphErrorResponse
	if err := json.Unmarshal(body, &gErr); err == nil && gErr.Error.Message != "" {
		msg = gErr.Error.Message
	}

	g.logger.Warn("graph sendMail rejected",
		"status", resp.StatusCode,
		"code", gErr.Error.Code,
		"body", truncateBody(body),
	)

	return types.NewAppError(types.ErrCodeSend, msg, nil)
}

// Compile-time assertions.
var (
	_ Mailer      = (*GraphMailer)(nil)
	_ TokenSource = (*TokenManager)(nil)
)
