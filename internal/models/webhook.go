// Package models defines the WhatsApp Cloud API webhook wire types.
//
// Field shapes follow the provider's messages webhook schema:
// entry[].changes[].value.{messages[], statuses[], contacts[], metadata}.
package models

// WebhookPayload is the top-level inbound webhook body.
type WebhookPayload struct {
	Object string         `json:"object"`
	Entry  []WebhookEntry `json:"entry"`
}

type WebhookEntry struct {
	ID      string          `json:"id"`
	Changes []WebhookChange `json:"changes"`
}

type WebhookChange struct {
	Field string       `json:"field"`
	Value WebhookValue `json:"value"`
}

type WebhookValue struct {
	MessagingProduct string            `json:"messaging_product"`
	Metadata         WebhookMetadata   `json:"metadata"`
	Contacts         []WebhookContact  `json:"contacts,omitempty"`
	Messages         []InboundMessage  `json:"messages,omitempty"`
	Statuses         []StatusUpdate    `json:"statuses,omitempty"`
	Errors           []ProviderError   `json:"errors,omitempty"`
}

type WebhookMetadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

type WebhookContact struct {
	Profile WebhookProfile `json:"profile"`
	WaID    string         `json:"wa_id"`
}

type WebhookProfile struct {
	Name string `json:"name"`
}

// InboundMessage is a single message event inside a webhook change.
type InboundMessage struct {
	From        string              `json:"from"`
	ID          string              `json:"id"`
	Timestamp   string              `json:"timestamp"`
	Type        string              `json:"type"`
	Text        *InboundText        `json:"text,omitempty"`
	Image       *InboundMedia       `json:"image,omitempty"`
	Document    *InboundDocument    `json:"document,omitempty"`
	Audio       *InboundMedia       `json:"audio,omitempty"`
	Video       *InboundMedia       `json:"video,omitempty"`
	Location    *InboundLocation    `json:"location,omitempty"`
	Interactive *InboundInteractive `json:"interactive,omitempty"`
}

type InboundText struct {
	Body string `json:"body"`
}

type InboundMedia struct {
	Caption  string `json:"caption,omitempty"`
	MimeType string `json:"mime_type"`
	Sha256   string `json:"sha256,omitempty"`
	ID       string `json:"id"`
}

type InboundDocument struct {
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
	MimeType string `json:"mime_type"`
	Sha256   string `json:"sha256,omitempty"`
	ID       string `json:"id"`
}

type InboundLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name,omitempty"`
	Address   string  `json:"address,omitempty"`
}

// InboundInteractive carries a list-row or button selection.
type InboundInteractive struct {
	Type        string             `json:"type"` // list_reply or button_reply
	ListReply   *InteractiveReply  `json:"list_reply,omitempty"`
	ButtonReply *InteractiveReply  `json:"button_reply,omitempty"`
}

type InteractiveReply struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// SelectionID returns the chosen row or button id, if any.
func (i *InboundInteractive) SelectionID() string {
	if i == nil {
		return ""
	}
	if i.ListReply != nil {
		return i.ListReply.ID
	}
	if i.ButtonReply != nil {
		return i.ButtonReply.ID
	}
	return ""
}

// StatusUpdate is a delivery-status event for an outbound message.
type StatusUpdate struct {
	ID          string          `json:"id"` // provider message id (wamid)
	Status      string          `json:"status"`
	Timestamp   string          `json:"timestamp"`
	RecipientID string          `json:"recipient_id"`
	Errors      []ProviderError `json:"errors,omitempty"`
}

// ProviderError is the Graph API error detail embedded in webhook events.
type ProviderError struct {
	Code    int    `json:"code"`
	Title   string `json:"title,omitempty"`
	Message string `json:"message,omitempty"`
	Details string `json:"error_data,omitempty"`
}
