// Package models defines bot reply shapes rendered by the messaging layer.
package models

// ReplyKind identifies one of the three structured reply shapes the bot can
// produce. Errors never surface to the end user as raw text; bad input always
// resolves to one of these.
type ReplyKind string

const (
	ReplyKindText    ReplyKind = "text"
	ReplyKindList    ReplyKind = "interactive_list"
	ReplyKindButtons ReplyKind = "interactive_buttons"
)

// ListRow is a selectable row in an interactive list section.
type ListRow struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// ListSection groups rows under an optional section title.
type ListSection struct {
	Title string    `json:"title,omitempty"`
	Rows  []ListRow `json:"rows"`
}

// Button is a tappable quick-reply button.
type Button struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Reply is the structured reply produced by the conversation bot. Exactly the
// fields for its Kind are populated; the transport renders it into the
// provider's message schema.
type Reply struct {
	Kind     ReplyKind     `json:"kind"`
	Header   string        `json:"header,omitempty"`
	Body     string        `json:"body"`
	Footer   string        `json:"footer,omitempty"`
	Button   string        `json:"button,omitempty"` // list open button label
	Sections []ListSection `json:"sections,omitempty"`
	Buttons  []Button      `json:"buttons,omitempty"`
}

// TextReply builds a plain text reply.
func TextReply(body string) *Reply {
	return &Reply{Kind: ReplyKindText, Body: body}
}

// ListReply builds an interactive list reply.
func ListReply(header, body, footer, button string, sections []ListSection) *Reply {
	return &Reply{
		Kind:     ReplyKindList,
		Header:   header,
		Body:     body,
		Footer:   footer,
		Button:   button,
		Sections: sections,
	}
}

// ButtonsReply builds an interactive quick-reply buttons reply.
func ButtonsReply(header, body, footer string, buttons []Button) *Reply {
	return &Reply{
		Kind:    ReplyKindButtons,
		Header:  header,
		Body:    body,
		Footer:  footer,
		Buttons: buttons,
	}
}
