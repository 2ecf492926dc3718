// Copyright 2025 The Fieldex Authors
// SPDX-License-Identifier: Apache-2.0

package htmlutils

import (
	"strings"
	"testing"

	"golang.org/x/net/html"
)

func TestNode2string(t *testing.T) {
	tests := []struct {
		expected string
		input    string
	}{
		{"foo bar", "<div><pre>foo</pre><span>bar</span>"},
		{"ao", "<span>a�o</span>"},
		{"a b c", "<p>  a \n b</p><p>c</p>"},
	}

	for _, test := range tests {
		n, err := html.Parse(strings.NewReader(test.input))
		if err != nil {
			t.Fatalf("parsing HTML `%s': %s", test.input, err)
		}

		if got := Text(n); got != test.expected {
			t.Errorf("`%s': expected `%v' but got `%v'", test.input, test.expected, got)
		}
	}
}

func TestAsNode(t *testing.T) {
	n, err := AsNode(strings.NewReader(`<html><body><span class="ocr_line x">hi</span></body></html>`), "text/html; charset=utf-8")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	var found int

	Walk(n, func(c *html.Node) bool {
		if HasClass(c, "ocr_line") {
			found++
		}

		return true
	})

	if found != 1 {
		t.Errorf("expected one ocr_line, got %d", found)
	}
}

func TestBBox(t *testing.T) {
	tests := []struct {
		title string
		ok    bool
		want  [4]float64
	}{
		{"bbox 10 20 300 40; x_wconf 93", true, [4]float64{10, 20, 300, 40}},
		{"x_wconf 93; bbox 1 2 3 4", true, [4]float64{1, 2, 3, 4}},
		{"bbox 1 2 3", false, [4]float64{}},
		{"bbox a b c d", false, [4]float64{}},
		{"", false, [4]float64{}},
	}

	for _, tt := range tests {
		x0, y0, x1, y1, ok := BBox(tt.title)
		if ok != tt.ok {
			t.Errorf("%q: ok = %v, want %v", tt.title, ok, tt.ok)

			continue
		}

		if got := [4]float64{x0, y0, x1, y1}; got != tt.want {
			t.Errorf("%q: got %v, want %v", tt.title, got, tt.want)
		}
	}
}

func TestTitleProperties(t *testing.T) {
	p := TitleProperties("image \"page.png\"; bbox 0 0 2480 3508; ppageno 0")
	if got := p["ppageno"]; len(got) != 1 || got[0] != "0" {
		t.Errorf("ppageno = %v", got)
	}
}
