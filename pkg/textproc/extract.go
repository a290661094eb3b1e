// Package textproc reduces HTML documents to plain text fit for narration.
package textproc

import (
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ExtractText parses HTML and returns the visible text of the document
// body. Scripts, styles and citation markers are stripped; block elements
// become paragraph breaks.
func ExtractText(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", err
	}

	root := findBody(doc)
	if root == nil {
		root = doc
	}

	var b strings.Builder
	traverse(root, &b)
	return normalize(b.String()), nil
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == atom.Body {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if res := findBody(c); res != nil {
			return res
		}
	}
	return nil
}

func traverse(n *html.Node, b *strings.Builder) {
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
		return
	}

	if n.Type == html.ElementNode {
		// Skip elements that never contain speakable text.
		// <sup> drops citation markers like [1].
		switch n.DataAtom {
		case atom.Script, atom.Style, atom.Noscript, atom.Head, atom.Nav, atom.Sup:
			return
		case atom.Br:
			b.WriteString("\n")
			return
		}
		if isBlock(n.DataAtom) {
			b.WriteString("\n")
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		traverse(c, b)
	}

	if n.Type == html.ElementNode && isBlock(n.DataAtom) {
		b.WriteString("\n")
	}
}

func isBlock(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Div, atom.Section, atom.Article, atom.Header, atom.Footer,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
		atom.Ul, atom.Ol, atom.Li, atom.Blockquote, atom.Pre,
		atom.Table, atom.Tr, atom.Figure, atom.Figcaption:
		return true
	}
	return false
}

// normalize collapses intra-line whitespace and turns the block breaks
// inserted by traverse into paragraph separators.
func normalize(raw string) string {
	var blocks []string
	for _, line := range strings.Split(raw, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		blocks = append(blocks, strings.Join(fields, " "))
	}
	return strings.Join(blocks, "\n\n")
}
