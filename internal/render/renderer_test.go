package render

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"notionmail/internal/external"
	"notionmail/internal/types"
)

type MockTemplateSource struct {
	mock.Mock
}

func (m *MockTemplateSource) GetPage(ctx context.Context, pageID string) (*external.NotionPage, error) {
	args := m.Called(ctx, pageID)
	if v := args.Get(0); v != nil {
		return v.(*external.NotionPage), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockTemplateSource) ListBlockChildren(ctx context.Context, blockID, startCursor string) (*external.NotionBlockList, error) {
	args := m.Called(ctx, blockID, startCursor)
	if v := args.Get(0); v != nil {
		return v.(*external.NotionBlockList), args.Error(1)
	}
	return nil, args.Error(1)
}

func titledPage(title string) *external.NotionPage {
	return &external.NotionPage{
		ID: "tpl-1",
		Properties: map[string]external.NotionProperty{
			"Name": {Type: "title", Title: []external.NotionRichText{{PlainText: title}}},
		},
	}
}

func notionPara(text string) external.NotionBlock {
	return external.NotionBlock{
		Type:    "paragraph",
		Content: external.NotionBlockContent{RichText: []external.NotionRichText{{PlainText: text}}},
	}
}

func TestRender_ReplacesPlaceholderCaseInsensitively(t *testing.T) {
	src := new(MockTemplateSource)
	src.On("GetPage", mock.Anything, "tpl-1").Return(titledPage("Hi {{Name}}, {{name}}!"), nil)
	src.On("ListBlockChildren", mock.Anything, "tpl-1", "").Return(&external.NotionBlockList{
		Results: []external.NotionBlock{notionPara("Dear {{NAME}}, hello {{name}}.")},
	}, nil)

	r := NewRenderer(Config{Source: src})
	got, err := r.Render(context.Background(), "tpl-1", "Ann")

	require.NoError(t, err)
	assert.Equal(t, "Hi Ann, Ann!", got.Subject)
	assert.Equal(t, "<p>Dear Ann, hello Ann.</p>", got.HTML)
	src.AssertExpectations(t)
}

func TestRender_NameIsEscapedInBody(t *testing.T) {
	src := new(MockTemplateSource)
	src.On("GetPage", mock.Anything, "tpl-1").Return(titledPage("For {{name}}"), nil)
	src.On("ListBlockChildren", mock.Anything, "tpl-1", "").Return(&external.NotionBlockList{
		Results: []external.NotionBlock{notionPara("Hi {{name}}")},
	}, nil)

	r := NewRenderer(Config{Source: src})
	got, err := r.Render(context.Background(), "tpl-1", "Tom & <Jerry>")

	require.NoError(t, err)
	assert.Equal(t, "For Tom & <Jerry>", got.Subject)
	assert.Contains(t, got.HTML, "Hi Tom &amp; &lt;Jerry&gt;")
}

func TestRender_FollowsPaginationInOrder(t *testing.T) {
	src := new(MockTemplateSource)
	src.On("GetPage", mock.Anything, "tpl-1").Return(titledPage("Subject"), nil)
	src.On("ListBlockChildren", mock.Anything, "tpl-1", "").Return(&external.NotionBlockList{
		Results:    []external.NotionBlock{notionPara("one")},
		HasMore:    true,
		NextCursor: "c2",
	}, nil)
	src.On("ListBlockChildren", mock.Anything, "tpl-1", "c2").Return(&external.NotionBlockList{
		Results: []external.NotionBlock{notionPara("two")},
	}, nil)

	r := NewRenderer(Config{Source: src})
	got, err := r.Render(context.Background(), "tpl-1", "Ann")

	require.NoError(t, err)
	assert.Equal(t, "<p>one</p>\n<p>two</p>", got.HTML)
	src.AssertExpectations(t)
}

func TestRender_FallbackSubject(t *testing.T) {
	src := new(MockTemplateSource)
	src.On("GetPage", mock.Anything, "tpl-1").Return(&external.NotionPage{ID: "tpl-1"}, nil)
	src.On("ListBlockChildren", mock.Anything, "tpl-1", "").Return(&external.NotionBlockList{}, nil)

	r := NewRenderer(Config{Source: src})
	got, err := r.Render(context.Background(), "tpl-1", "Ann")

	require.NoError(t, err)
	assert.Equal(t, FallbackSubject, got.Subject)
	assert.Equal(t, "", got.HTML)
}

func TestRender_FetchFailureIsTemplateFetchError(t *testing.T) {
	src := new(MockTemplateSource)
	src.On("GetPage", mock.Anything, "tpl-1").Return(titledPage("S"), nil).Maybe()
	src.On("ListBlockChildren", mock.Anything, "tpl-1", "").
		Return(nil, types.NewAppError(types.ErrCodeUpstreamDown, "Could not find block with ID: tpl-1.", nil))

	r := NewRenderer(Config{Source: src})
	_, err := r.Render(context.Background(), "tpl-1", "Ann")

	require.Error(t, err)
	assert.Equal(t, types.ErrCodeTemplateFetch, types.CodeOf(err))
	assert.Equal(t, "Could not find block with ID: tpl-1.", types.MessageOf(err))
}

func TestRender_SanitizesUnsafeLinks(t *testing.T) {
	evil := "javascript:alert(1)"
	src := new(MockTemplateSource)
	src.On("GetPage", mock.Anything, "tpl-1").Return(titledPage("S"), nil)
	src.On("ListBlockChildren", mock.Anything, "tpl-1", "").Return(&external.NotionBlockList{
		Results: []external.NotionBlock{{
			Type: "paragraph",
			Content: external.NotionBlockContent{RichText: []external.NotionRichText{
				{PlainText: "click", Href: &evil},
			}},
		}},
	}, nil)

	r := NewRenderer(Config{Source: src})
	got, err := r.Render(context.Background(), "tpl-1", "Ann")

	require.NoError(t, err)
	assert.NotContains(t, got.HTML, "javascript:")
	assert.Contains(t, got.HTML, "click")
}

func TestRender_KeepsSafeLinks(t *testing.T) {
	href := "https://example.com/offer"
	src := new(MockTemplateSource)
	src.On("GetPage", mock.Anything, "tpl-1").Return(titledPage("S"), nil)
	src.On("ListBlockChildren", mock.Anything, "tpl-1", "").Return(&external.NotionBlockList{
		Results: []external.NotionBlock{{
			Type: "paragraph",
			Content: external.NotionBlockContent{RichText: []external.NotionRichText{
				{PlainText: "offer", Href: &href, Annotations: external.NotionAnnotations{Bold: true}},
			}},
		}},
	}, nil)

	r := NewRenderer(Config{Source: src})
	got, err := r.Render(context.Background(), "tpl-1", "Ann")

	require.NoError(t, err)
	assert.Contains(t, got.HTML, `href="https://example.com/offer"`)
	assert.Contains(t, got.HTML, "<strong>offer</strong>")
}

func TestRender_LinksCarryNoRel(t *testing.T) {
	web := "https://example.com/offer?a=1&b=2"
	mail := "mailto:team@example.com"
	src := new(MockTemplateSource)
	src.On("GetPage", mock.Anything, "tpl-1").Return(titledPage("S"), nil)
	src.On("ListBlockChildren", mock.Anything, "tpl-1", "").Return(&external.NotionBlockList{
		Results: []external.NotionBlock{{
			Type: "paragraph",
			Content: external.NotionBlockContent{RichText: []external.NotionRichText{
				{PlainText: "offer", Href: &web},
				{PlainText: " or "},
				{PlainText: "write us", Href: &mail},
			}},
		}},
	}, nil)

	r := NewRenderer(Config{Source: src})
	got, err := r.Render(context.Background(), "tpl-1", "Ann")

	require.NoError(t, err)
	assert.Equal(t, `<p><a href="https://example.com/offer?a=1&amp;b=2">offer</a> or <a href="mailto:team@example.com">write us</a></p>`, got.HTML)
	assert.NotContains(t, got.HTML, "nofollow")
}

func TestRender_QuotesInTextStayLiteral(t *testing.T) {
	src := new(MockTemplateSource)
	src.On("GetPage", mock.Anything, "tpl-1").Return(titledPage(`"Big" news`), nil)
	src.On("ListBlockChildren", mock.Anything, "tpl-1", "").Return(&external.NotionBlockList{
		Results: []external.NotionBlock{notionPara(`She said "hi" & it's <fine>, {{name}}`)},
	}, nil)

	r := NewRenderer(Config{Source: src})
	got, err := r.Render(context.Background(), "tpl-1", `O'Neil "Jr"`)

	require.NoError(t, err)
	assert.Equal(t, `"Big" news`, got.Subject)
	assert.Equal(t, `<p>She said "hi" &amp; it's &lt;fine&gt;, O'Neil "Jr"</p>`, got.HTML)
}

func TestRestoreTextQuotes(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"text only", "&#34;a&#34; &#39;b&#39;", `"a" 'b'`},
		{"attribute untouched", `<a href="x?q=&#34;y&#34;">&#34;z&#34;</a>`, `<a href="x?q=&#34;y&#34;">"z"</a>`},
		{"escaped entity text kept", "&amp;#34;", "&amp;#34;"},
		{"unterminated tag", "&#39;a<b", "'a<b"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, restoreTextQuotes(tt.in))
		})
	}
}

func TestFromNotion_CarriesKindPayload(t *testing.T) {
	href := "https://example.com"
	todo := FromNotion(external.NotionBlock{
		Type: "to_do",
		Content: external.NotionBlockContent{
			RichText: []external.NotionRichText{{PlainText: "t", Href: &href, Annotations: external.NotionAnnotations{Code: true}}},
			Checked:  true,
		},
	})
	assert.Equal(t, BlockToDo, todo.Kind)
	assert.True(t, todo.Checked)
	assert.Equal(t, []RichText{{Text: "t", Href: href, Annotations: Annotations{Code: true}}}, todo.Text)

	img := FromNotion(external.NotionBlock{
		Type: "image",
		Content: external.NotionBlockContent{
			File:    &external.NotionFileLink{URL: "https://files.example.com/x.png"},
			Caption: []external.NotionRichText{{PlainText: "cap"}},
		},
	})
	assert.Equal(t, BlockImage, img.Kind)
	assert.Equal(t, "https://files.example.com/x.png", img.URL)
	assert.Equal(t, "cap", PlainText(img.Text))

	unknown := FromNotion(external.NotionBlock{Type: "synced_block"})
	assert.Equal(t, BlockUnsupported, unknown.Kind)
}
