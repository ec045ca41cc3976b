// internal/attachments/metadata_test.go
package attachments

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const conversationSnapshot = `
<div data-comment-id="1001" class="is-public">
  <div class="actor"><span class="name">Ada Lovelace</span></div>
  <time title="March 7, 2024 10:00" datetime="2024-03-07T10:00:00Z"></time>
  <div class="zd-comment">
    <p>logs attached</p>
    <a class="attachment" href="https://files.example.com/att/1?name=server+log%281%29.txt">server lo...</a>
  </div>
</div>
<div data-comment-id="1002" class="is-public">
  <div class="actor"><span class="name">Grace Hopper</span></div>
  <time title="March 8, 2024 09:30" datetime="2024-03-08T09:30:00Z"></time>
  <div class="zd-comment">
    <a href="https://bigfiles.example.com/download?ticketAttachmentId=77">heapdump.hprof</a>
    <a href="https://example.com/unrelated">not an attachment</a>
  </div>
</div>
<div data-comment-id="1003" class="is-private">
  <div class="actor"><span class="name">Internal Bot</span></div>
  <time title="March 9, 2024 12:00" datetime="2024-03-09T12:00:00Z"></time>
  <div class="zd-comment">
    <a href="https://bigfiles.example.com/download?ticketAttachmentId=78">private.bin</a>
  </div>
</div>
`

func TestParseConversationExtractsAttachmentAnchor(t *testing.T) {
	links, err := ParseConversation(strings.NewReader(conversationSnapshot))
	require.NoError(t, err)
	require.Len(t, links, 2, "private external links are not listed")

	want := LinkMetadata{
		Text:      "server log(1).txt",
		Href:      "https://files.example.com/att/1?name=server+log%281%29.txt",
		Download:  "server log(1).txt",
		CommentID: "1001",
		Author:    "Ada Lovelace",
		Time:      "March 7, 2024 10:00",
		Timestamp: "2024-03-07T10:00:00Z",
	}
	if diff := cmp.Diff(want, links[0]); diff != "" {
		t.Errorf("attachment link mismatch (-want +got):\n%s", diff)
	}
}

func TestParseConversationFlagsExternalLinks(t *testing.T) {
	links, err := ParseConversation(strings.NewReader(conversationSnapshot))
	require.NoError(t, err)
	require.Len(t, links, 2)

	external := links[1]
	assert.Equal(t, "heapdump.hprof", external.Text)
	assert.Equal(t, "1002", external.CommentID)
	assert.Equal(t, "Grace Hopper", external.Author)
	assert.True(t, external.MissingCORSHeader, "external hosts cannot be bulk downloaded")
}

func TestParseConversationEmpty(t *testing.T) {
	links, err := ParseConversation(strings.NewReader("<div>no attachments here</div>"))
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestSortLinksNewestFirstThenName(t *testing.T) {
	links := []LinkMetadata{
		{Text: "b.txt", Timestamp: "2024-03-07T10:00:00Z"},
		{Text: "z.txt", Timestamp: "2024-03-08T10:00:00Z"},
		{Text: "a.txt", Timestamp: "2024-03-07T10:00:00Z"},
	}
	SortLinks(links)

	assert.Equal(t, "z.txt", links[0].Text)
	assert.Equal(t, "a.txt", links[1].Text)
	assert.Equal(t, "b.txt", links[2].Text)
}

func TestFileNameFromHref(t *testing.T) {
	cases := []struct {
		name string
		href string
		want string
	}{
		{"plus becomes space", "https://h/att/1?name=server+log.txt", "server log.txt"},
		{"percent decoding", "https://h/att/2?name=report%20%282%29.pdf", "report (2).pdf"},
		{"no query string", "https://h/att/3", "https://h/att/3"},
		{"plain name", "https://h/att/4?name=simple.txt", "simple.txt"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, FileNameFromHref(tc.href))
		})
	}
}
