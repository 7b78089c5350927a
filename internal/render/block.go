package render

import "notionmail/internal/external"

// BlockKind is the closed set of content blocks the renderer knows.
type BlockKind int

const (
	// BlockUnsupported is any block type without a mapping. It renders as
	// nothing.
	BlockUnsupported BlockKind = iota
	BlockParagraph
	BlockHeading1
	BlockHeading2
	BlockHeading3
	BlockBulletedListItem
	BlockNumberedListItem
	BlockToDo
	BlockQuote
	BlockCode
	BlockDivider
	BlockImage
)

var notionKinds = map[string]BlockKind{
	"paragraph":          BlockParagraph,
	"heading_1":          BlockHeading1,
	"heading_2":          BlockHeading2,
	"heading_3":          BlockHeading3,
	"bulleted_list_item": BlockBulletedListItem,
	"numbered_list_item": BlockNumberedListItem,
	"to_do":              BlockToDo,
	"quote":              BlockQuote,
	"code":               BlockCode,
	"divider":            BlockDivider,
	"image":              BlockImage,
}

// KindOf maps a Notion block type name to a BlockKind.
func KindOf(notionType string) BlockKind {
	return notionKinds[notionType]
}

// Block is one content block. Which payload fields are meaningful depends on
// Kind: Text for text-bearing kinds and as the alt text of images, Checked for
// to-dos, URL for images and Language for code.
type Block struct {
	Kind     BlockKind
	Text     []RichText
	Checked  bool
	URL      string
	Language string
}

// RichText is one run of inline text with its styling.
type RichText struct {
	Text        string
	Href        string
	Annotations Annotations
}

// Annotations are the inline style flags of a run.
type Annotations struct {
	Bold          bool
	Italic        bool
	Strikethrough bool
	Underline     bool
	Code          bool
}

// FromNotion converts a Notion block into a Block, carrying only the fields
// its kind uses.
func FromNotion(nb external.NotionBlock) Block {
	kind := KindOf(nb.Type)
	b := Block{Kind: kind}

	switch kind {
	case BlockUnsupported, BlockDivider:
	case BlockImage:
		b.URL = nb.Content.ImageURL()
		b.Text = richTextFromNotion(nb.Content.Caption)
	case BlockToDo:
		b.Text = richTextFromNotion(nb.Content.RichText)
		b.Checked = nb.Content.Checked
	case BlockCode:
		b.Text = richTextFromNotion(nb.Content.RichText)
		b.Language = nb.Content.Language
	default:
		b.Text = richTextFromNotion(nb.Content.RichText)
	}
	return b
}

func richTextFromNotion(runs []external.NotionRichText) []RichText {
	if len(runs) == 0 {
		return nil
	}
	out := make([]RichText, 0, len(runs))
	for _, r := range runs {
		rt := RichText{
			Text: r.PlainText,
			Annotations: Annotations{
				Bold:          r.Annotations.Bold,
				Italic:        r.Annotations.Italic,
				Strikethrough: r.Annotations.Strikethrough,
				Underline:     r.Annotations.Underline,
				Code:          r.Annotations.Code,
			},
		}
		if r.Href != nil {
			rt.Href = *r.Href
		}
		out = append(out, rt)
	}
	return out
}

// PlainText concatenates the text of runs without markup.
func PlainText(runs []RichText) string {
	var n int
	for _, r := range runs {
		n += len(r.Text)
	}
	buf := make([]byte, 0, n)
	for _, r := range runs {
		buf = append(buf, r.Text...)
	}
	return string(buf)
}
