// ABOUTME: Builders for frames the fake gateway pushes
// ABOUTME: Field names follow the oicq-webapi push format

package gatewaytest

// Segment is one wire content segment.
type Segment struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	URL         string `json:"url,omitempty"`
	ID          string `json:"id,omitempty"`
	ReplaceText string `json:"replaceText,omitempty"`
	Target      int64  `json:"target,omitempty"`
	DisplayText string `json:"displayText,omitempty"`
	Data        string `json:"data,omitempty"`
}

// Text returns a single text segment slice.
func Text(s string) []Segment {
	return []Segment{{Type: "text", Text: s}}
}

// Reply is a reply reference on a pushed message.
type Reply struct {
	To      int64  `json:"to"`
	Time    int64  `json:"time"`
	Summary string `json:"summary"`
	ID      string `json:"id"`
}

// Message is the data of a msg frame.
type Message struct {
	Type        string    `json:"type"` // private or group
	Time        int64     `json:"time"`
	Sender      int64     `json:"sender"`
	SenderNick  string    `json:"sender_nick"`
	MsgID       string    `json:"msgID"`
	MsgContent  []Segment `json:"msgContent"`
	Known       bool      `json:"known"`
	Channel     int64     `json:"channel"`
	ChannelName string    `json:"channel_name"`
	Reply       *Reply    `json:"reply,omitempty"`
}

// Revoke is the data of a revoke frame.
type Revoke struct {
	Type    string `json:"type"`
	Time    int64  `json:"time"`
	Revoker int64  `json:"revoker"`
	Channel int64  `json:"channel"`
	MsgID   string `json:"msgID"`
	Known   bool   `json:"known"`
}

// Event is the data of an event frame.
type Event struct {
	Type       string `json:"type"`
	Time       int64  `json:"time,omitempty"`
	UserID     int64  `json:"user_id,omitempty"`
	UserName   string `json:"user_name,omitempty"`
	GroupID    int64  `json:"group_id,omitempty"`
	GroupName  string `json:"group_name,omitempty"`
	OperatorID int64  `json:"operator_id,omitempty"`
	EventID    string `json:"event_id,omitempty"`
	Comment    string `json:"comment,omitempty"`
	Duration   int64  `json:"duration,omitempty"`
	Admin      bool   `json:"admin,omitempty"`
}

// PushMessage pushes a msg frame.
func (s *Server) PushMessage(m Message) error {
	return s.Push("msg", m)
}

// PushRevoke pushes a revoke frame.
func (s *Server) PushRevoke(r Revoke) error {
	return s.Push("revoke", r)
}

// PushEvent pushes an event frame.
func (s *Server) PushEvent(e Event) error {
	return s.Push("event", e)
}
