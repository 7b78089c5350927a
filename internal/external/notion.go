package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"notionmail/internal/types"
)

const (
	// notionAPIBase is the default Notion API base URL.
	// Overridable in tests via NotionClientConfig.BaseURL.
	notionAPIBase = "https://api.notion.com"

	// notionVersion pins the API revision the property and block shapes below
	// are decoded against.
	notionVersion = "2022-06-28"

	// notionPageSize is the maximum page size Notion accepts for list endpoints.
	notionPageSize = 100
)

// NotionClientConfig holds the configuration for creating a NotionClient.
type NotionClientConfig struct {
	Token   types.SecretString
	BaseURL string // Override for testing; defaults to notionAPIBase
	Logger  *slog.Logger
}

// NotionClient talks to the Notion REST API through BaseClient. It returns
// Notion's wire shapes; the row store and template renderer translate them
// into domain types.
type NotionClient struct {
	base    *BaseClient
	token   types.SecretString
	baseURL string
	logger  *slog.Logger
}

// NewNotionClient creates a NotionClient with the default retry policy.
func NewNotionClient(httpClient *http.Client, cfg NotionClientConfig) *NotionClient {
	base := NewBaseClient(
		httpClient,
		"notion",
		DefaultRetryPolicy(),
		"NotionMail/1.0",
		WithSleepFunc(time.Sleep),
	)
	return NewNotionClientWithBase(base, cfg)
}

// NewNotionClientWithBase creates a NotionClient with a pre-configured
// BaseClient. Tests use it to disable real sleeps.
func NewNotionClientWithBase(base *BaseClient, cfg NotionClientConfig) *NotionClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = notionAPIBase
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &NotionClient{
		base:    base,
		token:   cfg.Token,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

// ---------------------------------------------------------------------------
// Wire types
// ---------------------------------------------------------------------------

// NotionPage is a database row or a standalone page.
type NotionPage struct {
	ID         string                    `json:"id"`
	Properties map[string]NotionProperty `json:"properties"`
}

// NotionProperty is one typed property value. Only the field matching Type is
// populated by Notion.
type NotionProperty struct {
	Type     string           `json:"type"`
	Title    []NotionRichText `json:"title,omitempty"`
	RichText []NotionRichText `json:"rich_text,omitempty"`
	Email    *string          `json:"email,omitempty"`
	Checkbox *bool            `json:"checkbox,omitempty"`
	Select   *NotionSelect    `json:"select,omitempty"`
	Date     *NotionDate      `json:"date,omitempty"`
	Relation []NotionRelation `json:"relation,omitempty"`
}

// NotionRichText is a single styled run of inline text.
type NotionRichText struct {
	Type        string            `json:"type,omitempty"`
	PlainText   string            `json:"plain_text"`
	Href        *string           `json:"href,omitempty"`
	Annotations NotionAnnotations `json:"annotations"`
}

// NotionAnnotations carries the style flags of a rich text run.
type NotionAnnotations struct {
	Bold          bool   `json:"bold"`
	Italic        bool   `json:"italic"`
	Strikethrough bool   `json:"strikethrough"`
	Underline     bool   `json:"underline"`
	Code          bool   `json:"code"`
	Color         string `json:"color,omitempty"`
}

// NotionSelect is the value of a select property.
type NotionSelect struct {
	Name string `json:"name"`
}

// NotionDate is the value of a date property.
type NotionDate struct {
	Start string `json:"start"`
}

// NotionRelation is one linked page of a relation property.
type NotionRelation struct {
	ID string `json:"id"`
}

// NotionQueryResult is one page of a database query.
type NotionQueryResult struct {
	Results    []NotionPage `json:"results"`
	HasMore    bool         `json:"has_more"`
	NextCursor string       `json:"next_cursor"`
}

// NotionBlock is one content block. Notion nests the type-specific payload
// under a key equal to the block type, so Content holds that object.
type NotionBlock struct {
	ID          string
	Type        string
	HasChildren bool
	Content     NotionBlockContent
}

// NotionBlockContent is the union of the payload fields of the block types
// the renderer understands.
type NotionBlockContent struct {
	RichText []NotionRichText `json:"rich_text,omitempty"`
	Checked  bool             `json:"checked,omitempty"`
	Language string           `json:"language,omitempty"`
	Caption  []NotionRichText `json:"caption,omitempty"`
	// Image blocks carry either an external URL or a Notion-hosted file.
	FileType string          `json:"type,omitempty"`
	External *NotionFileLink `json:"external,omitempty"`
	File     *NotionFileLink `json:"file,omitempty"`
}

// NotionFileLink is the location of an image or file.
type NotionFileLink struct {
	URL string `json:"url"`
}

// ImageURL returns the location of an image block, whichever kind it is.
func (c NotionBlockContent) ImageURL() string {
	if c.External != nil && c.External.URL != "" {
		return c.External.URL
	}
	if c.File != nil {
		return c.File.URL
	}
	return ""
}

// UnmarshalJSON lifts the payload stored under the block's type key into
// Content.
func (b *NotionBlock) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var header struct {
		ID          string `json:"id"`
		Type        string `json:"type"`
		HasChildren bool   `json:"has_children"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return err
	}
	b.ID = header.ID
	b.Type = header.Type
	b.HasChildren = header.HasChildren
	b.Content = NotionBlockContent{}

	payload, ok := raw[header.Type]
	if !ok || len(payload) == 0 || bytes.Equal(payload, []byte("null")) {
		return nil
	}
	// Payloads of block types we do not render may have any shape.
	if err := json.Unmarshal(payload, &b.Content); err != nil {
		b.Content = NotionBlockContent{}
	}
	return nil
}

// NotionBlockList is one page of block children.
type NotionBlockList struct {
	Results    []NotionBlock `json:"results"`
	HasMore    bool          `json:"has_more"`
	NextCursor string        `json:"next_cursor"`
}

// notionErrorResponse is the JSON error body returned by Notion.
type notionErrorResponse struct {
	Object  string `json:"object"`
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ---------------------------------------------------------------------------
// Operations
// ---------------------------------------------------------------------------

// QueryDatabase returns one page of rows of databaseID matching filter.
// An empty startCursor requests the first page.
func (c *NotionClient) QueryDatabase(ctx context.Context, databaseID string, filter any, startCursor string) (*NotionQueryResult, error) {
	payload := map[string]any{"page_size": notionPageSize}
	if filter != nil {
		payload["filter"] = filter
	}
	if startCursor != "" {
		payload["start_cursor"] = startCursor
	}

	var result NotionQueryResult
	path := "/v1/databases/" + url.PathEscape(databaseID) + "/query"
	if err := c.doJSON(ctx, http.MethodPost, path, payload, &result, types.ErrCodeStoreUnreachable); err != nil {
		return nil, err
	}
	return &result, nil
}

// UpdatePage patches the given properties of pageID. Properties not present
// in the map are left untouched by Notion.
func (c *NotionClient) UpdatePage(ctx context.Context, pageID string, properties map[string]any) error {
	payload := map[string]any{"properties": properties}
	path := "/v1/pages/" + url.PathEscape(pageID)
	return c.doJSON(ctx, http.MethodPatch, path, payload, nil, types.ErrCodeStoreWrite)
}

// GetPage retrieves a page and its properties.
func (c *NotionClient) GetPage(ctx context.Context, pageID string) (*NotionPage, error) {
	var page NotionPage
	path := "/v1/pages/" + url.PathEscape(pageID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &page, types.ErrCodeTemplateFetch); err != nil {
		return nil, err
	}
	return &page, nil
}

// ListBlockChildren returns one page of the direct children of blockID.
func (c *NotionClient) ListBlockChildren(ctx context.Context, blockID string, startCursor string) (*NotionBlockList, error) {
	q := url.Values{}
	q.Set("page_size", fmt.Sprint(notionPageSize))
	if startCursor != "" {
		q.Set("start_cursor", startCursor)
	}

	var list NotionBlockList
	path := "/v1/blocks/" + url.PathEscape(blockID) + "/children?" + q.Encode()
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &list, types.ErrCodeTemplateFetch); err != nil {
		return nil, err
	}
	return &list, nil
}

// ---------------------------------------------------------------------------
// HTTP Helpers
// ---------------------------------------------------------------------------

// doJSON issues one Notion request. Failures of any kind are reported with
// failCode so callers can tell listing, writing and template fetches apart.
func (c *NotionClient) doJSON(ctx context.Context, method, path string, in, out any, failCode types.ErrorCode) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to marshal Notion request", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create Notion request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token.Unmask())
	req.Header.Set("Notion-Version", notionVersion)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.base.Do(req)
	if err != nil {
		return types.NewAppError(failCode, types.MessageOf(err), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.handleErrorResponse(resp, method+" "+req.URL.Path, failCode)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return types.NewAppError(failCode, "failed to decode Notion response", err)
	}
	return nil
}

// handleErrorResponse maps a non-2xx Notion response to an AppError whose
// message is Notion's own explanation when the body carries one.
func (c *NotionClient) handleErrorResponse(resp *http.Response, operation string, failCode types.ErrorCode) error {
	body, _ := io.ReadAll(resp.Body)

	msg := fmt.Sprintf("HTTP %d", resp.StatusCode)
	var nErr notionErrorResponse
	if err := json.Unmarshal(body, &nErr); err == nil && nErr.Message != "" {
		msg = nErr.Message
	}

	c.logger.Warn("notion request failed",
		"operation", operation,
		"status", resp.StatusCode,
		"code", nErr.Code,
		"body", truncateBody(body),
	)

	return types.NewAppError(failCode, msg, nil)
}
