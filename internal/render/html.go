package render

import (
	"html"
	"strings"
)

// Checklist glyphs.
const (
	checkedBox   = "☑"
	uncheckedBox = "☐"
)

var textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// escapeText escapes the three characters that matter in element content.
func escapeText(s string) string {
	return textEscaper.Replace(s)
}

// listKind is the kind of list container currently open, if any.
type listKind int

const (
	listNone listKind = iota
	listBullet
	listNumber
)

func (k listKind) open() string {
	if k == listNumber {
		return "<ol>"
	}
	return "<ul>"
}

func (k listKind) close() string {
	if k == listNumber {
		return "</ol>"
	}
	return "</ul>"
}

func listKindOf(kind BlockKind) listKind {
	switch kind {
	case BlockBulletedListItem:
		return listBullet
	case BlockNumberedListItem:
		return listNumber
	default:
		return listNone
	}
}

// converter accumulates output while walking a block sequence.
type converter struct {
	parts    []string
	openList listKind
}

// switchList closes the open container when want differs from it and opens
// want if it is a list.
func (c *converter) switchList(want listKind) {
	if c.openList == want {
		return
	}
	if c.openList != listNone {
		c.parts = append(c.parts, c.openList.close())
	}
	if want != listNone {
		c.parts = append(c.parts, want.open())
	}
	c.openList = want
}

// ConvertBlocks renders blocks in order as HTML, one element per line.
// Consecutive list items of the same kind share a container; any other block
// closes it, including unsupported blocks, which otherwise produce no output.
// The result depends only on blocks.
func ConvertBlocks(blocks []Block) string {
	c := &converter{}
	for _, b := range blocks {
		c.switchList(listKindOf(b.Kind))
		if markup, ok := blockHTML(b); ok {
			c.parts = append(c.parts, markup)
		}
	}
	c.switchList(listNone)
	return strings.Join(c.parts, "\n")
}

// blockHTML returns the markup of a single block. ok is false for blocks that
// render as nothing.
func blockHTML(b Block) (markup string, ok bool) {
	switch b.Kind {
	case BlockParagraph:
		return "<p>" + RichTextHTML(b.Text) + "</p>", true
	case BlockHeading1:
		return "<h1>" + RichTextHTML(b.Text) + "</h1>", true
	case BlockHeading2:
		return "<h2>" + RichTextHTML(b.Text) + "</h2>", true
	case BlockHeading3:
		return "<h3>" + RichTextHTML(b.Text) + "</h3>", true
	case BlockBulletedListItem, BlockNumberedListItem:
		return "<li>" + RichTextHTML(b.Text) + "</li>", true
	case BlockToDo:
		box := uncheckedBox
		if b.Checked {
			box = checkedBox
		}
		return "<p>" + box + " " + RichTextHTML(b.Text) + "</p>", true
	case BlockQuote:
		return "<blockquote>" + RichTextHTML(b.Text) + "</blockquote>", true
	case BlockCode:
		open := "<code>"
		if b.Language != "" && b.Language != "plain text" {
			open = `<code class="language-` + html.EscapeString(strings.ReplaceAll(b.Language, " ", "-")) + `">`
		}
		return "<pre>" + open + escapeText(PlainText(b.Text)) + "</code></pre>", true
	case BlockDivider:
		return "<hr>", true
	case BlockImage:
		if b.URL == "" {
			return "", false
		}
		return `<img src="` + html.EscapeString(b.URL) + `" alt="` + html.EscapeString(PlainText(b.Text)) + `">`, true
	default:
		return "", false
	}
}

// RichTextHTML renders inline runs. Each run's text is escaped and its line
// breaks become <br>; styles wrap from the inside out as code, bold, italic,
// strikethrough, underline, then the link.
func RichTextHTML(runs []RichText) string {
	var sb strings.Builder
	for _, r := range runs {
		sb.WriteString(runHTML(r))
	}
	return sb.String()
}

func runHTML(r RichText) string {
	s := strings.ReplaceAll(escapeText(r.Text), "\n", "<br>")

	a := r.Annotations
	if a.Code {
		s = "<code>" + s + "</code>"
	}
	if a.Bold {
		s = "<strong>" + s + "</strong>"
	}
	if a.Italic {
		s = "<em>" + s + "</em>"
	}
	if a.Strikethrough {
		s = "<s>" + s + "</s>"
	}
	if a.Underline {
		s = "<u>" + s + "</u>"
	}
	if r.Href != "" {
		s = `<a href="` + html.EscapeString(r.Href) + `">` + s + "</a>"
	}
	return s
}
