package main

import (
	"reflect"
	"testing"
	"unicode/utf8"
)

func TestWrapText(t *testing.T) {
	for _, tt := range []struct {
		name  string
		text  string
		width int
		want  []string
	}{
		{"empty", "", 10, []string{""}},
		{"fits", "hello", 10, []string{"hello"}},
		{"breaks on space", "hello world", 8, []string{"hello", "world"}},
		{"no space forces hard break", "abcdefghij", 4, []string{"abcd", "efgh", "ij"}},
		{"multibyte at wrap column", "ééééé", 3, []string{"ééé", "éé"}},
		{"multibyte with spaces", "héllo wörld", 6, []string{"héllo", "wörld"}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			got := wrapText(tt.text, tt.width)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("wrapText(%q, %d) = %q, want %q", tt.text, tt.width, got, tt.want)
			}
			for _, line := range got {
				if !utf8.ValidString(line) {
					t.Errorf("line %q is not valid UTF-8", line)
				}
			}
		})
	}
}
