// Package rowstore maps recipient rows of the Notion database onto types.Row
// and writes status changes back as partial property patches.
package rowstore

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"notionmail/internal/config"
	"notionmail/internal/external"
	"notionmail/internal/types"
)

// maxRichTextLength is Notion's limit on the content of one rich text object.
const maxRichTextLength = 2000

// Config holds the dependencies of a Store.
type Config struct {
	Client     external.PageStore
	DatabaseID string
	Columns    config.ColumnConfig
	Logger     *slog.Logger
}

// Store reads eligible rows and patches row status columns.
type Store struct {
	client     external.PageStore
	databaseID string
	cols       config.ColumnConfig
	logger     *slog.Logger
}

// New creates a Store.
func New(cfg Config) *Store {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		client:     cfg.Client,
		databaseID: cfg.DatabaseID,
		cols:       cfg.Columns,
		logger:     logger,
	}
}

// eligibilityFilter selects rows whose send flag is checked and whose status
// is empty or the retry sentinel.
func (s *Store) eligibilityFilter() map[string]any {
	return map[string]any{
		"and": []any{
			map[string]any{
				"property": s.cols.Send,
				"checkbox": map[string]any{"equals": true},
			},
			map[string]any{
				"or": []any{
					map[string]any{
						"property": s.cols.Status,
						"select":   map[string]any{"is_empty": true},
					},
					map[string]any{
						"property": s.cols.Status,
						"select":   map[string]any{"equals": string(types.SendStatusRetrying)},
					},
				},
			},
		},
	}
}

// ListEligible returns every eligible row in the order Notion returns them.
// Any failure is reported as ErrCodeStoreUnreachable.
func (s *Store) ListEligible(ctx context.Context) ([]types.Row, error) {
	filter := s.eligibilityFilter()

	var (
		rows   []types.Row
		cursor string
	)
	for {
		page, err := s.client.QueryDatabase(ctx, s.databaseID, filter, cursor)
		if err != nil {
			if types.CodeOf(err) == types.ErrCodeStoreUnreachable {
				return nil, err
			}
			return nil, types.NewAppError(types.ErrCodeStoreUnreachable, types.MessageOf(err), err)
		}
		for _, p := range page.Results {
			rows = append(rows, s.decodeRow(p))
		}
		if !page.HasMore || page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	s.logger.DebugContext(ctx, "listed eligible rows", "count", len(rows))
	return rows, nil
}

// Update writes the non-nil fields of u to row rowID. An empty update is a
// no-op.
func (s *Store) Update(ctx context.Context, rowID string, u types.RowUpdate) error {
	if u.IsEmpty() {
		return nil
	}

	props := make(map[string]any, 4)
	if u.ValidationStatus != nil {
		props[s.cols.Validation] = map[string]any{
			"rich_text": []any{
				map[string]any{
					"type": "text",
					"text": map[string]any{"content": truncateRunes(*u.ValidationStatus, maxRichTextLength)},
				},
			},
		}
	}
	if u.SendStatus != nil {
		if *u.SendStatus == types.SendStatusNone {
			props[s.cols.Status] = map[string]any{"select": nil}
		} else {
			props[s.cols.Status] = map[string]any{"select": map[string]any{"name": string(*u.SendStatus)}}
		}
	}
	if u.SentAt != nil {
		props[s.cols.SentAt] = map[string]any{"date": map[string]any{"start": u.SentAt.UTC().Format(time.RFC3339)}}
	}
	if u.SendFlag != nil {
		props[s.cols.Send] = map[string]any{"checkbox": *u.SendFlag}
	}

	return s.client.UpdatePage(ctx, rowID, props)
}

// decodeRow reads the configured columns of a page. Missing or mistyped
// properties decode as empty values.
func (s *Store) decodeRow(p external.NotionPage) types.Row {
	row := types.Row{ID: p.ID}

	if prop, ok := p.Properties[s.cols.Name]; ok {
		row.Name = strings.TrimSpace(textOf(prop))
	}
	if prop, ok := p.Properties[s.cols.Email]; ok {
		row.Email = strings.TrimSpace(textOf(prop))
	}
	if prop, ok := p.Properties[s.cols.Send]; ok && prop.Checkbox != nil {
		row.SendFlag = *prop.Checkbox
	}
	if prop, ok := p.Properties[s.cols.Template]; ok && len(prop.Relation) > 0 {
		row.TemplateID = prop.Relation[0].ID
	}
	if prop, ok := p.Properties[s.cols.Validation]; ok {
		row.ValidationStatus = textOf(prop)
	}
	if prop, ok := p.Properties[s.cols.Status]; ok && prop.Select != nil {
		row.SendStatus = types.SendStatus(prop.Select.Name)
	}
	if prop, ok := p.Properties[s.cols.SentAt]; ok && prop.Date != nil {
		row.SentAt = parseNotionDate(prop.Date.Start)
	}

	return row
}

// textOf returns the plain text of a title, rich_text or email property.
func textOf(prop external.NotionProperty) string {
	switch prop.Type {
	case "email":
		if prop.Email != nil {
			return *prop.Email
		}
		return ""
	case "title":
		return joinPlain(prop.Title)
	case "rich_text":
		return joinPlain(prop.RichText)
	default:
		return ""
	}
}

func joinPlain(runs []external.NotionRichText) string {
	var sb strings.Builder
	for _, r := range runs {
		sb.WriteString(r.PlainText)
	}
	return sb.String()
}

// parseNotionDate accepts both datetime and date-only starts.
func parseNotionDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return &t
	}
	return nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
