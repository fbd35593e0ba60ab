// Package xref reads and writes the AB#<id> marker that links a GitHub issue
// to its work item. The marker in the issue body is the only durable link
// between the two systems
package xref

import (
	"strconv"
	"strings"
)

const (
	// Marker prefixes the work item id in issue bodies
	Marker = "AB#"
	// LinkMarker is the markdown link form rendered by the Boards integration
	LinkMarker = "[" + Marker
)

// ExtractWorkItemRef returns the work item id from the first AB# marker in
// body. The id is the run of digits right after the marker; ok is false when
// there is no marker or no usable id
func ExtractWorkItemRef(body string) (id int, ok bool) {
	if body == "" {
		return 0, false
	}

	start := strings.Index(body, Marker)
	if start == -1 {
		return 0, false
	}

	rest := body[start+len(Marker):]
	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}

	id, err := strconv.Atoi(rest[:end])
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// ComposeLinkedBody appends the marker for workItemID on its own line
func ComposeLinkedBody(body string, workItemID int) string {
	return body + "\n" + Marker + strconv.Itoa(workItemID)
}

// StripTrailingLink cuts body at the first markdown-link marker so the
// back-reference is not echoed into the work item description
func StripTrailingLink(body string) string {
	if idx := strings.Index(body, LinkMarker); idx != -1 {
		return body[:idx]
	}
	return body
}
