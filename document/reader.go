// Copyright 2025 The Fieldex Authors
// SPDX-License-Identifier: Apache-2.0

package document

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/jcodagnone/fieldex/spatial"
	"github.com/jcodagnone/fieldex/utils/htmlutils"
	"golang.org/x/net/html"
)

// ErrEmptyDocument is returned when a reader finds no page at all.
var ErrEmptyDocument = errors.New("document has no pages")

// ReadJSON decodes a document in its JSON representation.
func ReadJSON(r io.Reader) (*Document, error) {
	var d Document
	if err := json.NewDecoder(r).Decode(&d); err != nil {
		return nil, fmt.Errorf("decoding document: %w", err)
	}

	if len(d.Pages) == 0 {
		return nil, ErrEmptyDocument
	}

	d.Normalize()

	return &d, nil
}

// ReadHOCR converts an hOCR file into a document: every ocr_line becomes one
// block, numbered in document order within its page.
func ReadHOCR(r io.Reader, id string) (*Document, error) {
	root, err := htmlutils.AsNode(r, "text/html; charset=utf-8")
	if err != nil {
		return nil, err
	}

	d := &Document{ID: id}

	htmlutils.Walk(root, func(n *html.Node) bool {
		if !htmlutils.HasClass(n, "ocr_page") {
			return true
		}

		d.Pages = append(d.Pages, readHOCRPage(n, len(d.Pages)+1))

		return false
	})

	if len(d.Pages) == 0 {
		return nil, ErrEmptyDocument
	}

	d.Normalize()

	return d, nil
}

func readHOCRPage(n *html.Node, fallbackNumber int) Page {
	title := htmlutils.Attr(n, "title")
	page := Page{Number: fallbackNumber}

	if v, ok := htmlutils.TitleProperties(title)["ppageno"]; ok && len(v) == 1 {
		if no, err := strconv.Atoi(v[0]); err == nil {
			page.Number = no + 1 // ppageno is zero based
		}
	}

	if x0, y0, x1, y1, ok := htmlutils.BBox(title); ok {
		page.Width, page.Height = x1-x0, y1-y0
	}

	htmlutils.Walk(n, func(c *html.Node) bool {
		if !htmlutils.HasClass(c, "ocr_line") && !htmlutils.HasClass(c, "ocr_caption") &&
			!htmlutils.HasClass(c, "ocr_header") && !htmlutils.HasClass(c, "ocr_textfloat") {
			return true
		}

		var box spatial.Rect
		if x0, y0, x1, y1, ok := htmlutils.BBox(htmlutils.Attr(c, "title")); ok {
			box = spatial.FromCorners(x0, y0, x1, y1)
		}

		idx := len(page.Blocks)
		page.Blocks = append(page.Blocks, TextBlock{
			Text:      htmlutils.Text(c),
			LineIndex: idx,
			Position:  idx,
			Box:       box,
		})

		return false
	})

	return page
}
