// ABOUTME: Message content as an ordered list of typed segments
// ABOUTME: Also carries the reply reference attached to inbound and outbound messages

package contact

import (
	"strings"
	"time"
)

// SegmentKind identifies a content segment.
type SegmentKind string

// Segment kinds understood by the runtime.
const (
	SegmentText      SegmentKind = "text"
	SegmentImage     SegmentKind = "image"
	SegmentEmoji     SegmentKind = "emoji"
	SegmentMention   SegmentKind = "mention"
	SegmentForwarded SegmentKind = "forwarded"
	SegmentJSON      SegmentKind = "json"
	SegmentXML       SegmentKind = "xml"
)

// Segment is one piece of message content. Which fields are set depends on Kind.
type Segment struct {
	Kind SegmentKind `json:"type"`

	Text   string `json:"text,omitempty"`   // text; display text for emoji and mention
	URL    string `json:"url,omitempty"`    // image
	ID     string `json:"id,omitempty"`     // emoji, forwarded
	Target int64  `json:"target,omitempty"` // mention
	Data   string `json:"data,omitempty"`   // json, xml
}

// Content is an ordered message body.
type Content []Segment

// Text returns content holding a single text segment.
func Text(s string) Content {
	return Content{{Kind: SegmentText, Text: s}}
}

// PlainText concatenates the text segments and mention display texts.
func (c Content) PlainText() string {
	var b strings.Builder
	for _, seg := range c {
		switch seg.Kind {
		case SegmentText, SegmentMention:
			b.WriteString(seg.Text)
		}
	}
	return b.String()
}

// Reply references an earlier message.
type Reply struct {
	To        int64     // sender of the referenced message
	Time      time.Time // when it was sent
	Summary   string
	MessageID string
}
