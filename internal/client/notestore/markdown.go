package notestore

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown produces the markdown export document for a note: a title
// heading, a small metadata footer, and the raw content in between. The
// renderer is deliberately dumb; note content is already markdown-ish text.
func RenderMarkdown(n *Note) []byte {
	var b strings.Builder

	title := strings.TrimSpace(n.Title)
	if title == "" {
		title = "Untitled"
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	b.WriteString(n.Content)
	if !strings.HasSuffix(n.Content, "\n") {
		b.WriteByte('\n')
	}

	updated := time.UnixMilli(n.UpdatedAt).UTC().Format(time.RFC3339)
	fmt.Fprintf(&b, "\n<!-- notedav:%s updated:%s -->\n", n.ID, updated)

	return []byte(b.String())
}

// ParseMarkdown builds a note from an externally created markdown file.
// The first heading becomes the title; everything after it is content.
// Used by the import phase for .md files dropped into the remote folder by
// other tools.
func ParseMarkdown(name string, data []byte, deviceID string) *Note {
	text := string(data)
	title := strings.TrimSuffix(name, ".md")
	content := text

	lines := strings.SplitN(text, "\n", 2)
	if len(lines) > 0 && strings.HasPrefix(lines[0], "# ") {
		title = strings.TrimSpace(strings.TrimPrefix(lines[0], "# "))
		if len(lines) == 2 {
			content = strings.TrimLeft(lines[1], "\n")
		} else {
			content = ""
		}
	}

	note := NewNote(title, content, deviceID)
	note.SyncStatus = StatusPending
	return note
}
