// internal/htmlutil/totext.go
package htmlutil

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var newlineRunRe = regexp.MustCompile(`\n{3,}`)

// ToPlainText converts HTML to the plain text typed into the editor.
// Block elements become newlines, list items become bullets, and
// script/style subtrees are dropped.
func ToPlainText(markup string) string {
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		// A parse failure on fragment input is effectively impossible;
		// fall back to the raw text with tags stripped.
		return strings.TrimSpace(stripTags(markup))
	}

	var b strings.Builder
	walk(doc, &b)

	out := newlineRunRe.ReplaceAllString(b.String(), "\n\n")
	return strings.TrimSpace(out)
}

func walk(n *html.Node, b *strings.Builder) {
	if n.Type == html.ElementNode {
		switch n.DataAtom {
		case atom.Script, atom.Style, atom.Noscript:
			return
		case atom.Br:
			b.WriteByte('\n')
			return
		case atom.Li:
			b.WriteString("\n• ")
		case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6, atom.P, atom.Div,
			atom.Ul, atom.Ol, atom.Blockquote, atom.Pre, atom.Table, atom.Tr:
			b.WriteByte('\n')
		}
	}

	if n.Type == html.TextNode {
		b.WriteString(n.Data)
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, b)
	}

	if n.Type == html.ElementNode {
		switch n.DataAtom {
		case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6, atom.P, atom.Div,
			atom.Ul, atom.Ol, atom.Blockquote, atom.Pre, atom.Table, atom.Tr:
			b.WriteByte('\n')
		}
	}
}

var tagRe = regexp.MustCompile(`<[^>]*>`)

func stripTags(s string) string {
	return tagRe.ReplaceAllString(s, "")
}
