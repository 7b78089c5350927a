package external

import (
	"context"
)

// ---------------------------------------------------------------------------
// Credentials (Microsoft identity platform)
// ---------------------------------------------------------------------------

// TokenSource supplies bearer tokens for Graph calls.
type TokenSource interface {
	// Token returns an access token valid for at least the configured margin.
	Token(ctx context.Context) (string, error)
}

// ---------------------------------------------------------------------------
// Mail delivery (Microsoft Graph)
// ---------------------------------------------------------------------------

// Message is one personalized email with a single recipient.
type Message struct {
	ToAddress string
	ToName    string
	Subject   string
	HTML      string
}

// Mailer abstracts the mail-send API.
type Mailer interface {
	// Send transmits msg once. It never retries.
	Send(ctx context.Context, msg Message) error
}

// ---------------------------------------------------------------------------
// Record store (Notion)
// ---------------------------------------------------------------------------

// PageStore is the subset of the Notion API the row store needs.
type PageStore interface {
	QueryDatabase(ctx context.Context, databaseID string, filter any, startCursor string) (*NotionQueryResult, error)
	UpdatePage(ctx context.Context, pageID string, properties map[string]any) error
}

// TemplateSource is the subset of the Notion API the renderer needs.
type TemplateSource interface {
	GetPage(ctx context.Context, pageID string) (*NotionPage, error)
	ListBlockChildren(ctx context.Context, blockID string, startCursor string) (*NotionBlockList, error)
}

var (
	_ PageStore      = (*NotionClient)(nil)
	_ TemplateSource = (*NotionClient)(nil)
)
