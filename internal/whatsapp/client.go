// Package whatsapp is a thin client for the WhatsApp Cloud API.
//
// It covers the message send endpoint (text, media, interactive list and
// button payloads) and the business encryption endpoint used to register the
// flow public key. Higher-level persistence and retries live in the
// messaging package.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL is the Graph API root used when no override is configured.
const DefaultBaseURL = "https://graph.facebook.com/v20.0"

// DefaultTimeout bounds a single Graph API call.
const DefaultTimeout = 30 * time.Second

// Opts holds the client configuration assembled from options.
type Opts struct {
	BaseURL       string
	AccessToken   string
	PhoneNumberID string
	HTTPClient    *http.Client
}

// Option configures a Client.
type Option func(*Opts)

// WithBaseURL overrides the Graph API root, mainly for tests.
func WithBaseURL(u string) Option {
	return func(o *Opts) { o.BaseURL = strings.TrimRight(u, "/") }
}

// WithAccessToken sets the bearer token for all calls.
func WithAccessToken(token string) Option {
	return func(o *Opts) { o.AccessToken = token }
}

// WithPhoneNumberID sets the sending phone number id.
func WithPhoneNumberID(id string) Option {
	return func(o *Opts) { o.PhoneNumberID = id }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// Client talks to the Cloud API for one phone number.
type Client struct {
	opts Opts
}

// NewClient builds a Client. Access token and phone number id are required.
func NewClient(options ...Option) (*Client, error) {
	opts := Opts{
		BaseURL:    DefaultBaseURL,
		HTTPClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range options {
		opt(&opts)
	}
	if opts.AccessToken == "" {
		return nil, fmt.Errorf("whatsapp client requires an access token")
	}
	if opts.PhoneNumberID == "" {
		return nil, fmt.Errorf("whatsapp client requires a phone number id")
	}
	return &Client{opts: opts}, nil
}

// graphError is the Cloud API error envelope.
type graphError struct {
	Error struct {
		Message   string `json:"message"`
		Type      string `json:"type"`
		Code      int    `json:"code"`
		FBTraceID string `json:"fbtrace_id"`
	} `json:"error"`
}

// sendResponse is the success envelope of the messages endpoint.
type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// SendText sends a plain text message and returns the provider message id.
func (c *Client) SendText(ctx context.Context, to, body string) (string, error) {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "text",
		"text":              map[string]any{"body": body, "preview_url": false},
	}
	return c.sendMessage(ctx, payload)
}

// SendInteractiveList sends a list menu.
func (c *Client) SendInteractiveList(ctx context.Context, to, header, body, footer, button string, sections []ListSection) (string, error) {
	interactive := map[string]any{
		"type": "list",
		"body": map[string]string{"text": body},
		"action": map[string]any{
			"button":   button,
			"sections": sections,
		},
	}
	if header != "" {
		interactive["header"] = map[string]string{"type": "text", "text": header}
	}
	if footer != "" {
		interactive["footer"] = map[string]string{"text": footer}
	}
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "interactive",
		"interactive":       interactive,
	}
	return c.sendMessage(ctx, payload)
}

// SendInteractiveButtons sends up to three reply buttons.
func (c *Client) SendInteractiveButtons(ctx context.Context, to, header, body, footer string, buttons []Button) (string, error) {
	actions := make([]map[string]any, 0, len(buttons))
	for _, b := range buttons {
		actions = append(actions, map[string]any{
			"type":  "reply",
			"reply": map[string]string{"id": b.ID, "title": b.Title},
		})
	}
	interactive := map[string]any{
		"type":   "button",
		"body":   map[string]string{"text": body},
		"action": map[string]any{"buttons": actions},
	}
	if header != "" {
		interactive["header"] = map[string]string{"type": "text", "text": header}
	}
	if footer != "" {
		interactive["footer"] = map[string]string{"text": footer}
	}
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "interactive",
		"interactive":       interactive,
	}
	return c.sendMessage(ctx, payload)
}

// SendMedia sends an image, document, audio or video by link.
func (c *Client) SendMedia(ctx context.Context, to, mediaType, link, caption string) (string, error) {
	media := map[string]any{"link": link}
	if caption != "" && (mediaType == "image" || mediaType == "document" || mediaType == "video") {
		media["caption"] = caption
	}
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              mediaType,
		mediaType:           media,
	}
	return c.sendMessage(ctx, payload)
}

// SendTemplate sends a pre-approved template message.
func (c *Client) SendTemplate(ctx context.Context, to, name, language string, components []map[string]any) (string, error) {
	template := map[string]any{
		"name":     name,
		"language": map[string]string{"code": language},
	}
	if len(components) > 0 {
		template["components"] = components
	}
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "template",
		"template":          template,
	}
	return c.sendMessage(ctx, payload)
}

func (c *Client) sendMessage(ctx context.Context, payload map[string]any) (string, error) {
	endpoint := fmt.Sprintf("%s/%s/messages", c.opts.BaseURL, c.opts.PhoneNumberID)
	respBody, err := c.post(ctx, endpoint, payload, "")
	if err != nil {
		return "", err
	}
	var parsed sendResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse send response: %w", err)
	}
	if len(parsed.Messages) == 0 {
		return "", fmt.Errorf("send response contained no message id")
	}
	return parsed.Messages[0].ID, nil
}

// UploadBusinessPublicKey registers the flow encryption public key with the
// business encryption endpoint.
func (c *Client) UploadBusinessPublicKey(ctx context.Context, publicPEM string) error {
	endpoint := fmt.Sprintf("%s/%s/whatsapp_business_encryption", c.opts.BaseURL, c.opts.PhoneNumberID)
	form := url.Values{"business_public_key": {publicPEM}}
	_, err := c.post(ctx, endpoint, nil, form.Encode())
	if err != nil {
		return fmt.Errorf("failed to upload business public key: %w", err)
	}
	slog.Info("Business public key uploaded", "phone_number_id", c.opts.PhoneNumberID)
	return nil
}

// post issues one Graph API call. Exactly one of payload (JSON) or form
// (urlencoded) is used.
func (c *Client) post(ctx context.Context, endpoint string, payload map[string]any, form string) ([]byte, error) {
	var body io.Reader
	contentType := "application/json"
	if form != "" {
		body = strings.NewReader(form)
		contentType = "application/x-www-form-urlencoded"
	} else {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.opts.AccessToken)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("graph api request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read graph api response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var ge graphError
		if err := json.Unmarshal(respBody, &ge); err == nil && ge.Error.Message != "" {
			return nil, fmt.Errorf("graph api error %d (%s): %s", ge.Error.Code, ge.Error.Type, ge.Error.Message)
		}
		return nil, fmt.Errorf("graph api returned status %d", resp.StatusCode)
	}
	return respBody, nil
}
