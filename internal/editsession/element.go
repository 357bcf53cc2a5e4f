package editsession

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Kind is a coarse classification of a selected element, used to tailor the
// edit prompt.
type Kind string

const (
	KindHeading   Kind = "heading"
	KindText      Kind = "text"
	KindImage     Kind = "image"
	KindLink      Kind = "link"
	KindButton    Kind = "button"
	KindContainer Kind = "container"
	KindList      Kind = "list"
	KindMedia     Kind = "media"
	KindForm      Kind = "form"
	KindOther     Kind = "other"
)

// Element identifies the element a session edits.
type Element struct {
	// ID keys the element's chat history. Defaults to Selector.
	ID       string `json:"id"`
	Selector string `json:"selector"`
	Tag      string `json:"tag"`
	Kind     Kind   `json:"kind"`
}

// Classify maps a tag name to its Kind.
func Classify(tag string) Kind {
	switch atom.Lookup([]byte(strings.ToLower(strings.TrimSpace(tag)))) {
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		return KindHeading
	case atom.P, atom.Span, atom.Strong, atom.Em, atom.B, atom.I, atom.Small,
		atom.Blockquote, atom.Label, atom.Td, atom.Th, atom.Figcaption:
		return KindText
	case atom.Img, atom.Svg:
		return KindImage
	case atom.A:
		return KindLink
	case atom.Button:
		return KindButton
	case atom.Div, atom.Section, atom.Article, atom.Header, atom.Footer,
		atom.Main, atom.Nav, atom.Aside, atom.Figure:
		return KindContainer
	case atom.Ul, atom.Ol, atom.Li, atom.Dl:
		return KindList
	case atom.Video, atom.Audio, atom.Iframe, atom.Source:
		return KindMedia
	case atom.Form, atom.Input, atom.Textarea, atom.Select:
		return KindForm
	}
	return KindOther
}

// fragment is one parsed section body. Rendering it back yields the section
// content with the edits applied.
type fragment struct {
	root *html.Node
	doc  *goquery.Document
}

func parseFragment(content string) (*fragment, error) {
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(content), body)
	if err != nil {
		return nil, fmt.Errorf("parse section html: %w", err)
	}
	root := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	for _, n := range nodes {
		root.AppendChild(n)
	}
	return &fragment{root: root, doc: goquery.NewDocumentFromNode(root)}, nil
}

func (f *fragment) find(m goquery.Matcher) *goquery.Selection {
	return f.doc.FindMatcher(m).First()
}

func (f *fragment) render() (string, error) {
	var buf bytes.Buffer
	for c := f.root.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return "", fmt.Errorf("render section html: %w", err)
		}
	}
	return buf.String(), nil
}

// locate finds the first section containing an element matching m.
// Sections that do not parse are skipped.
func locate(contents []string, m goquery.Matcher) (int, *fragment, *goquery.Selection) {
	for i, c := range contents {
		f, err := parseFragment(c)
		if err != nil {
			continue
		}
		if sel := f.find(m); sel.Length() > 0 {
			return i, f, sel
		}
	}
	return -1, nil, nil
}
