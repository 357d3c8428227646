// ABOUTME: JSON shapes exchanged with the oicq-webapi gateway
// ABOUTME: Converts wire segments, replies and events into runtime types

package webapi

import (
	"encoding/json"
	"time"

	"github.com/2389/coven-bot/internal/contact"
	"github.com/2389/coven-bot/internal/protocol"
)

// Frame type tags on the push channel.
const (
	frameMessage = "msg"
	frameRevoke  = "revoke"
	frameEvent   = "event"
)

// Channel type tags inside msg and revoke frames.
const (
	channelPrivate = "private"
	channelGroup   = "group"
)

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type wireSegment struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	URL         string `json:"url,omitempty"`
	ID          string `json:"id,omitempty"`
	ReplaceText string `json:"replaceText,omitempty"`
	Target      int64  `json:"target,omitempty"`
	DisplayText string `json:"displayText,omitempty"`
	Data        string `json:"data,omitempty"`
}

type wireReply struct {
	To      int64  `json:"to"`
	Time    int64  `json:"time"`
	Summary string `json:"summary"`
	ID      string `json:"id"`
}

type messageData struct {
	Type        string        `json:"type"`
	Time        int64         `json:"time"`
	Sender      int64         `json:"sender"`
	SenderNick  string        `json:"sender_nick"`
	MsgID       string        `json:"msgID"`
	MsgContent  []wireSegment `json:"msgContent"`
	Known       bool          `json:"known"`
	Channel     int64         `json:"channel"`
	ChannelName string        `json:"channel_name"`
	Reply       *wireReply    `json:"reply,omitempty"`
}

type revokeData struct {
	Type    string `json:"type"`
	Time    int64  `json:"time"`
	Revoker int64  `json:"revoker"`
	Channel int64  `json:"channel"`
	MsgID   string `json:"msgID"`
	Known   bool   `json:"known"`
}

type eventData struct {
	Type       string `json:"type"`
	Time       int64  `json:"time"`
	UserID     int64  `json:"user_id"`
	UserName   string `json:"user_name"`
	GroupID    int64  `json:"group_id"`
	GroupName  string `json:"group_name"`
	OperatorID int64  `json:"operator_id"`
	EventID    string `json:"event_id"`
	Comment    string `json:"comment"`
	Duration   int64  `json:"duration"` // seconds
	Admin      bool   `json:"admin"`
}

type status struct {
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
}

type listResponse[T any] struct {
	Status status `json:"status"`
	List   []T    `json:"list"`
}

type friendEntry struct {
	ID       int64  `json:"id"`
	Nickname string `json:"nickname"`
}

type groupEntry struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type memberEntry struct {
	ID       int64  `json:"id"`
	Nickname string `json:"nickname"`
	Alias    string `json:"alias"`
}

func (m memberEntry) displayName() string {
	if m.Alias == "" {
		return m.Nickname
	}
	return m.Alias
}

type basicInfo struct {
	Status   status `json:"status"`
	ID       int64  `json:"id"`
	Nickname string `json:"nickname"`
}

type probeInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type callResponse struct {
	Status status `json:"status"`
	MsgID  string `json:"msgID,omitempty"`
}

type sendRequest struct {
	Dest    int64         `json:"dest"`
	Via     int64         `json:"via,omitempty"`
	Content []wireSegment `json:"content"`
	Reply   *wireReply    `json:"reply,omitempty"`
}

type revokeRequest struct {
	Dest  int64  `json:"dest"`
	MsgID string `json:"msgID"`
}

type dealRequest struct {
	Subject int64  `json:"subject"`
	EventID string `json:"eventID"`
	Accept  bool   `json:"accept"`
}

func unixTime(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}

// toSegment converts a wire segment. ok is false for unknown segment types.
func (s wireSegment) toSegment() (contact.Segment, bool) {
	switch contact.SegmentKind(s.Type) {
	case contact.SegmentText:
		return contact.Segment{Kind: contact.SegmentText, Text: s.Text}, true
	case contact.SegmentImage:
		return contact.Segment{Kind: contact.SegmentImage, URL: s.URL}, true
	case contact.SegmentEmoji:
		return contact.Segment{Kind: contact.SegmentEmoji, ID: s.ID, Text: s.ReplaceText}, true
	case contact.SegmentMention:
		return contact.Segment{Kind: contact.SegmentMention, Target: s.Target, Text: s.DisplayText}, true
	case contact.SegmentForwarded:
		return contact.Segment{Kind: contact.SegmentForwarded, ID: s.ID}, true
	case contact.SegmentJSON:
		return contact.Segment{Kind: contact.SegmentJSON, Data: s.Data}, true
	case contact.SegmentXML:
		return contact.Segment{Kind: contact.SegmentXML, Data: s.Data}, true
	default:
		return contact.Segment{}, false
	}
}

func fromSegment(seg contact.Segment) wireSegment {
	w := wireSegment{Type: string(seg.Kind)}
	switch seg.Kind {
	case contact.SegmentText:
		w.Text = seg.Text
	case contact.SegmentImage:
		w.URL = seg.URL
	case contact.SegmentEmoji:
		w.ID, w.ReplaceText = seg.ID, seg.Text
	case contact.SegmentMention:
		w.Target, w.DisplayText = seg.Target, seg.Text
	case contact.SegmentForwarded:
		w.ID = seg.ID
	case contact.SegmentJSON, contact.SegmentXML:
		w.Data = seg.Data
	}
	return w
}

func (r *wireReply) toReply() *contact.Reply {
	if r == nil {
		return nil
	}
	return &contact.Reply{To: r.To, Time: unixTime(r.Time), Summary: r.Summary, MessageID: r.ID}
}

func fromReply(r *contact.Reply) *wireReply {
	if r == nil {
		return nil
	}
	w := &wireReply{To: r.To, Summary: r.Summary, ID: r.MessageID}
	if !r.Time.IsZero() {
		w.Time = r.Time.Unix()
	}
	return w
}

func (e eventData) toEvent() protocol.Event {
	return protocol.Event{
		Kind:       protocol.EventKind(e.Type),
		Time:       unixTime(e.Time),
		UserID:     e.UserID,
		UserName:   e.UserName,
		GroupID:    e.GroupID,
		GroupName:  e.GroupName,
		OperatorID: e.OperatorID,
		EventID:    e.EventID,
		Comment:    e.Comment,
		Duration:   time.Duration(e.Duration) * time.Second,
		Admin:      e.Admin,
	}
}
