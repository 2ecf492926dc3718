// Copyright 2025 The Fieldex Authors
// SPDX-License-Identifier: Apache-2.0

// Package htmlutils provides utility functions for working with HTML and
// hOCR documents.
package htmlutils

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

// Node2string appends the whitespace-normalized text content of n to sb.
// Text runs are separated by a single space.
func Node2string(n *html.Node, sb *strings.Builder) {
	if n.Type == html.TextNode {
		tmp := strings.Join(strings.Fields(n.Data), " ")
		// OCR engines emit U+FFFD for unrecognized glyphs; it carries no text.
		tmp = strings.ReplaceAll(tmp, string(utf8.RuneError), "")

		if len(tmp) > 0 {
			if sb.Len() != 0 {
				sb.WriteByte(' ')
			}

			sb.WriteString(tmp)
		}

		return
	}

	for child := n.FirstChild; child != nil; child = child.NextSibling {
		Node2string(child, sb)
	}
}

// Text returns the text content of n.
func Text(n *html.Node) string {
	var sb strings.Builder

	Node2string(n, &sb)

	return sb.String()
}

// AsNode parses r as an HTML document, honouring the declared charset.
func AsNode(r io.Reader, contentType string) (*html.Node, error) {
	rr, err := charset.NewReader(r, contentType)
	if err != nil {
		return nil, fmt.Errorf("detecting charset: %w", err)
	}

	n, err := html.Parse(rr)
	if err != nil {
		return nil, fmt.Errorf("parsing body as HTML: %w", err)
	}

	return n, nil
}

// Attr returns the value of the named attribute, or "".
func Attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			return a.Val
		}
	}

	return ""
}

// HasClass reports whether n is an element carrying the given CSS class.
func HasClass(n *html.Node, class string) bool {
	if n.Type != html.ElementNode {
		return false
	}

	for _, c := range strings.Fields(Attr(n, "class")) {
		if c == class {
			return true
		}
	}

	return false
}

// Walk visits n and its descendants in document order. Returning false from
// fn skips the children of the visited node.
func Walk(n *html.Node, fn func(*html.Node) bool) {
	if !fn(n) {
		return
	}

	for child := n.FirstChild; child != nil; child = child.NextSibling {
		Walk(child, fn)
	}
}

// TitleProperties splits an hOCR title attribute such as
// `bbox 10 20 300 40; x_wconf 93` into its named properties.
func TitleProperties(title string) map[string][]string {
	props := make(map[string][]string)

	for _, part := range strings.Split(title, ";") {
		f := strings.Fields(part)
		if len(f) == 0 {
			continue
		}

		props[f[0]] = f[1:]
	}

	return props
}

// BBox extracts the `bbox x0 y0 x1 y1` property of an hOCR title.
func BBox(title string) (x0, y0, x1, y1 float64, ok bool) {
	v, found := TitleProperties(title)["bbox"]
	if !found || len(v) != 4 {
		return 0, 0, 0, 0, false
	}

	var c [4]float64

	for i, s := range v {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, 0, 0, 0, false
		}

		c[i] = f
	}

	return c[0], c[1], c[2], c[3], true
}
