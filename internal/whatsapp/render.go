package whatsapp

import (
	"context"
	"fmt"

	"github.com/taskerhq/taskerchat/internal/models"
)

// ListRow, ListSection and Button mirror the interactive message schema of
// the Cloud API messages endpoint.
type ListRow struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

type ListSection struct {
	Title string    `json:"title,omitempty"`
	Rows  []ListRow `json:"rows"`
}

type Button struct {
	ID    string
	Title string
}

// renderSections converts reply sections to the wire schema.
func renderSections(sections []models.ListSection) []ListSection {
	out := make([]ListSection, 0, len(sections))
	for _, s := range sections {
		rows := make([]ListRow, 0, len(s.Rows))
		for _, r := range s.Rows {
			rows = append(rows, ListRow{ID: r.ID, Title: r.Title, Description: r.Description})
		}
		out = append(out, ListSection{Title: s.Title, Rows: rows})
	}
	return out
}

func renderButtons(buttons []models.Button) []Button {
	out := make([]Button, 0, len(buttons))
	for _, b := range buttons {
		out = append(out, Button{ID: b.ID, Title: b.Title})
	}
	return out
}

// SendReply dispatches a structured bot reply to the matching message shape.
func (c *Client) SendReply(ctx context.Context, to string, reply *models.Reply) (string, error) {
	switch reply.Kind {
	case models.ReplyKindText:
		return c.SendText(ctx, to, reply.Body)
	case models.ReplyKindList:
		return c.SendInteractiveList(ctx, to, reply.Header, reply.Body, reply.Footer, reply.Button, renderSections(reply.Sections))
	case models.ReplyKindButtons:
		return c.SendInteractiveButtons(ctx, to, reply.Header, reply.Body, reply.Footer, renderButtons(reply.Buttons))
	default:
		return "", fmt.Errorf("unsupported reply kind %q", reply.Kind)
	}
}
