package xref

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractWorkItemRef(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		wantID int
		wantOK bool
	}{
		{name: "empty body", body: "", wantOK: false},
		{name: "no marker", body: "no marker here", wantOK: false},
		{name: "plain marker mid text", body: "text AB#123 more", wantID: 123, wantOK: true},
		{name: "markdown link", body: "text [AB#46](url)", wantID: 46, wantOK: true},
		{name: "marker at end", body: "desc\nAB#9", wantID: 9, wantOK: true},
		{name: "first marker wins", body: "AB#1 and AB#2", wantID: 1, wantOK: true},
		{name: "marker without digits", body: "AB#]", wantOK: false},
		{name: "marker followed by letters", body: "see AB#abc", wantOK: false},
		{name: "zero is not an id", body: "AB#0", wantOK: false},
		{name: "overflowing digits", body: "AB#99999999999999999999999", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := ExtractWorkItemRef(tt.body)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantID, id)
			}
		})
	}
}

func TestComposeLinkedBodyRoundTrip(t *testing.T) {
	bodies := []string{
		"",
		"plain description",
		"multi\nline\nbody",
		"trailing bracket ] and hash #",
		"unicode body ✓",
	}
	ids := []int{1, 42, 77, 123456}

	for _, body := range bodies {
		for _, id := range ids {
			linked := ComposeLinkedBody(body, id)
			got, ok := ExtractWorkItemRef(linked)
			assert.True(t, ok, "body %q id %d", body, id)
			assert.Equal(t, id, got, "body %q", body)
		}
	}
}

func TestComposeLinkedBody(t *testing.T) {
	assert.Equal(t, "original text\nAB#15", ComposeLinkedBody("original text", 15))
}

func TestStripTrailingLink(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "link in middle", body: "desc [AB#5](url) trailing", want: "desc "},
		{name: "no link", body: "plain desc", want: "plain desc"},
		{name: "bare marker is kept", body: "desc\nAB#5", want: "desc\nAB#5"},
		{name: "link at start", body: "[AB#5](url)", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripTrailingLink(tt.body))
		})
	}
}
