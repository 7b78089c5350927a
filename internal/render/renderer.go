// Package render turns a template page into a personalized email.
//
// The page title becomes the subject and the page's child blocks become the
// HTML body. Conversion is split from fetching: ConvertBlocks is a pure
// function over Block values, while Renderer handles the record store, the
// recipient-name placeholder and final sanitizing.
package render

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/sync/errgroup"

	"notionmail/internal/external"
	"notionmail/internal/types"
)

// FallbackSubject is used when the template page has no title.
const FallbackSubject = "(No subject)"

// namePlaceholder matches the recipient-name token in any letter case.
var namePlaceholder = regexp.MustCompile(`(?i)\{\{name\}\}`)

// Rendered is a ready-to-send email for one recipient.
type Rendered struct {
	Subject string
	HTML    string
}

// Config holds the dependencies of a Renderer.
type Config struct {
	Source external.TemplateSource
	Policy *bluemonday.Policy // defaults to EmailPolicy()
	Logger *slog.Logger
}

// Renderer fetches and renders template pages.
type Renderer struct {
	source external.TemplateSource
	policy *bluemonday.Policy
	logger *slog.Logger
}

// NewRenderer creates a Renderer.
func NewRenderer(cfg Config) *Renderer {
	policy := cfg.Policy
	if policy == nil {
		policy = EmailPolicy()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{
		source: cfg.Source,
		policy: policy,
		logger: logger,
	}
}

// EmailPolicy allows exactly the markup ConvertBlocks emits. Links are
// limited to absolute http, https and mailto URLs and are left without rel.
func EmailPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowURLSchemes("http", "https", "mailto")
	p.RequireParseableURLs(true)
	p.AllowElements(
		"p", "br", "hr",
		"h1", "h2", "h3",
		"ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em", "s", "u",
	)
	p.AllowAttrs("href").OnElements("a")
	p.AllowAttrs("src", "alt").OnElements("img")
	p.AllowAttrs("class").Matching(regexp.MustCompile(`^language-[\w+#.-]+$`)).OnElements("code")
	return p
}

// Render fetches templateID and returns its subject and body with every
// {{name}} replaced by recipientName. Fetch failures are reported as
// ErrCodeTemplateFetch.
func (r *Renderer) Render(ctx context.Context, templateID, recipientName string) (*Rendered, error) {
	var (
		subject string
		blocks  []Block
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		subject, err = r.fetchSubject(gCtx, templateID)
		return err
	})
	g.Go(func() error {
		var err error
		blocks, err = r.fetchBlocks(gCtx, templateID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, types.NewAppError(types.ErrCodeTemplateFetch, types.MessageOf(err), err)
	}

	body := restoreTextQuotes(r.policy.Sanitize(ConvertBlocks(blocks)))

	r.logger.DebugContext(ctx, "template rendered",
		"template_id", templateID,
		"blocks", len(blocks),
	)

	return &Rendered{
		Subject: namePlaceholder.ReplaceAllLiteralString(subject, recipientName),
		HTML:    namePlaceholder.ReplaceAllLiteralString(body, escapeText(recipientName)),
	}, nil
}

// quoteUnescaper reverts the quote entities the sanitizer writes into text.
var quoteUnescaper = strings.NewReplacer("&#34;", `"`, "&#39;", "'")

// restoreTextQuotes puts literal quotes back into text content so only &, <
// and > stay escaped there. Attribute values inside tags are left as written.
func restoreTextQuotes(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for s != "" {
		lt := strings.IndexByte(s, '<')
		if lt < 0 {
			sb.WriteString(quoteUnescaper.Replace(s))
			break
		}
		sb.WriteString(quoteUnescaper.Replace(s[:lt]))
		s = s[lt:]

		gt := strings.IndexByte(s, '>')
		if gt < 0 {
			sb.WriteString(s)
			break
		}
		sb.WriteString(s[:gt+1])
		s = s[gt+1:]
	}
	return sb.String()
}

// fetchSubject returns the plain text of the page's title property.
func (r *Renderer) fetchSubject(ctx context.Context, pageID string) (string, error) {
	page, err := r.source.GetPage(ctx, pageID)
	if err != nil {
		return "", err
	}
	for _, prop := range page.Properties {
		if prop.Type != "title" {
			continue
		}
		var sb strings.Builder
		for _, t := range prop.Title {
			sb.WriteString(t.PlainText)
		}
		if s := strings.TrimSpace(sb.String()); s != "" {
			return s, nil
		}
	}
	return FallbackSubject, nil
}

// fetchBlocks walks every page of the template's children in order.
func (r *Renderer) fetchBlocks(ctx context.Context, pageID string) ([]Block, error) {
	var (
		blocks []Block
		cursor string
	)
	for {
		list, err := r.source.ListBlockChildren(ctx, pageID, cursor)
		if err != nil {
			return nil, err
		}
		for _, nb := range list.Results {
			blocks = append(blocks, FromNotion(nb))
		}
		if !list.HasMore || list.NextCursor == "" {
			return blocks, nil
		}
		cursor = list.NextCursor
	}
}
