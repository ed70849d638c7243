// Package markup interprets the light markdown that bot replies carry.
// Replies are parsed with goldmark; bare URLs are linkified.
package markup

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// Link is a hyperlink found in a message.
type Link struct {
	Text string
	URL  string
}

var md = goldmark.New(
	goldmark.WithExtensions(extension.Linkify),
	goldmark.WithParserOptions(
		parser.WithASTTransformers(util.Prioritized(externalLinks{}, 100)),
	),
)

func parse(content string) (ast.Node, []byte) {
	src := []byte(content)
	return md.Parser().Parse(text.NewReader(src)), src
}

// Links returns the links in content in document order.
func Links(content string) []Link {
	doc, src := parse(content)

	var links []Link
	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Link:
			links = append(links, Link{Text: inlineText(node, src), URL: string(node.Destination)})
			return ast.WalkSkipChildren, nil
		case *ast.AutoLink:
			links = append(links, Link{Text: string(node.Label(src)), URL: autoLinkURL(node, src)})
		}
		return ast.WalkContinue, nil
	})
	return links
}

// Plain renders content as plain text. Links keep their text followed by the
// URL in parentheses; block elements end with a newline.
func Plain(content string) string {
	doc, src := parse(content)

	var b strings.Builder
	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Text:
			if entering {
				b.Write(node.Segment.Value(src))
				if node.HardLineBreak() || node.SoftLineBreak() {
					b.WriteByte('\n')
				}
			}
		case *ast.String:
			if entering {
				b.Write(node.Value)
			}
		case *ast.AutoLink:
			if entering {
				b.WriteString(autoLinkURL(node, src))
			}
		case *ast.Link:
			if !entering {
				label := inlineText(node, src)
				if label != string(node.Destination) {
					fmt.Fprintf(&b, " (%s)", node.Destination)
				}
			}
		case *ast.ListItem:
			if entering {
				b.WriteString("• ")
			}
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			if entering {
				lines := n.Lines()
				for i := 0; i < lines.Len(); i++ {
					seg := lines.At(i)
					b.Write(seg.Value(src))
				}
				return ast.WalkSkipChildren, nil
			}
		case *ast.Paragraph, *ast.Heading, *ast.TextBlock:
			if !entering && !strings.HasSuffix(b.String(), "\n") {
				b.WriteByte('\n')
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimRight(b.String(), "\n")
}

// HTML renders content as an HTML fragment. Raw HTML in the content is
// omitted and links open in a new tab.
func HTML(content string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(content), &buf); err != nil {
		return "", fmt.Errorf("failed to render markup: %w", err)
	}
	return buf.String(), nil
}

func inlineText(n ast.Node, src []byte) string {
	var b strings.Builder
	ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := c.(type) {
		case *ast.Text:
			b.Write(node.Segment.Value(src))
		case *ast.String:
			b.Write(node.Value)
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}

func autoLinkURL(n *ast.AutoLink, src []byte) string {
	url := string(n.URL(src))
	if n.AutoLinkType == ast.AutoLinkEmail && !strings.HasPrefix(url, "mailto:") {
		return "mailto:" + url
	}
	if n.AutoLinkType == ast.AutoLinkURL && strings.HasPrefix(url, "www.") {
		return "http://" + url
	}
	return url
}

// externalLinks marks every link to open in a new browsing context.
type externalLinks struct{}

func (externalLinks) Transform(doc *ast.Document, reader text.Reader, pc parser.Context) {
	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n.Kind() {
		case ast.KindLink, ast.KindAutoLink:
			n.SetAttributeString("target", []byte("_blank"))
			n.SetAttributeString("rel", []byte("noopener noreferrer"))
		}
		return ast.WalkContinue, nil
	})
}
