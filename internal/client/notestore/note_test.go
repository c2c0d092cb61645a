package notestore

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNote_TouchIsMonotonic(t *testing.T) {
	note := NewNote("t", "c", "device-a")
	note.SyncStatus = StatusSynced

	before := note.UpdatedAt
	note.Touch("device-b")
	assert.Greater(t, note.UpdatedAt, before)
	assert.Equal(t, "device-b", note.DeviceID)
	assert.Equal(t, StatusPending, note.SyncStatus)

	// two touches within the same milli still move forward
	prev := note.UpdatedAt
	note.Touch("device-b")
	assert.Greater(t, note.UpdatedAt, prev)
}

func TestNote_TouchKeepsLocalOnly(t *testing.T) {
	note := NewNote("t", "c", "d")
	note.Touch("d")
	assert.Equal(t, StatusLocalOnly, note.SyncStatus)
}

func TestNote_Unsynced(t *testing.T) {
	note := NewNote("t", "c", "d")
	assert.True(t, note.Unsynced())

	note.SyncStatus = StatusSynced
	assert.False(t, note.Unsynced())

	note.SyncStatus = StatusConflict
	assert.False(t, note.Unsynced(), "conflicts wait for the user, not the uploader")
}

func TestNote_MarkdownFileName(t *testing.T) {
	note := NewNote("a/b:c?", "", "d")
	name := note.MarkdownFileName()
	assert.Equal(t, "a-b-c-."+note.ID+".md", name)

	note.Title = "   "
	assert.Equal(t, "untitled."+note.ID+".md", note.MarkdownFileName())
}

func TestRenderParseMarkdownRoundtrip(t *testing.T) {
	note := NewNote("Shopping", "milk\neggs\n", "device-a")

	data := RenderMarkdown(note)
	text := string(data)
	assert.True(t, strings.HasPrefix(text, "# Shopping\n"))
	assert.Contains(t, text, "milk\neggs\n")
	assert.Contains(t, text, "notedav:"+note.ID)

	parsed := ParseMarkdown("whatever.md", data, "device-b")
	require.NotNil(t, parsed)
	assert.Equal(t, "Shopping", parsed.Title)
	assert.True(t, strings.HasPrefix(parsed.Content, "milk\neggs"))
	assert.Equal(t, StatusPending, parsed.SyncStatus)
	assert.NotEqual(t, note.ID, parsed.ID, "parsing always mints a fresh id")
}

func TestParseMarkdown_NoHeading(t *testing.T) {
	parsed := ParseMarkdown("ideas.md", []byte("just some text"), "d")
	assert.Equal(t, "ideas", parsed.Title)
	assert.Equal(t, "just some text", parsed.Content)
}
