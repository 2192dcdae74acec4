package api

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/taskerhq/taskerchat/internal/bot"
	"github.com/taskerhq/taskerchat/internal/config"
	"github.com/taskerhq/taskerchat/internal/flowcrypto"
	"github.com/taskerhq/taskerchat/internal/messaging"
	"github.com/taskerhq/taskerchat/internal/models"
	"github.com/taskerhq/taskerchat/internal/session"
	"github.com/taskerhq/taskerchat/internal/store"
	"github.com/taskerhq/taskerchat/internal/webhook"
)

type nullSender struct{}

func (nullSender) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return messaging.CanonicalizePhone(recipient)
}
func (nullSender) SendText(ctx context.Context, conversationID int64, to, body string) error {
	return nil
}
func (nullSender) SendReply(ctx context.Context, conversationID int64, to string, reply *models.Reply) error {
	return nil
}

func newTestServer(t *testing.T, options ...Option) (*Server, *store.InMemoryStore) {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	st := store.NewInMemoryStore()
	b := bot.New(cfg, session.NewMemoryStore(), st)
	processor := webhook.NewProcessor(st, b, nullSender{})

	opts := append([]Option{WithVerifyToken("verify-me"), WithAppSecret("app-secret")}, options...)
	srv, err := NewServer(st, processor, opts...)
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	return srv, st
}

func TestNewServerRequiresSecret(t *testing.T) {
	st := store.NewInMemoryStore()
	if _, err := NewServer(st, nil); err == nil {
		t.Error("expected error without app secret")
	}
	if _, err := NewServer(st, nil, WithAllowInsecure(true)); err != nil {
		t.Errorf("insecure opt-out should be allowed: %v", err)
	}
}

func TestWebhookVerification(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=12345", nil)
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "12345" {
		t.Errorf("expected challenge echo, got %q", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", nil)
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("wrong token must be rejected, got %d", rec.Code)
	}
}

func webhookBody(t *testing.T) []byte {
	t.Helper()
	payload := models.WebhookPayload{
		Object: "whatsapp_business_account",
		Entry: []models.WebhookEntry{{
			Changes: []models.WebhookChange{{
				Field: "messages",
				Value: models.WebhookValue{
					Messages: []models.InboundMessage{{
						From: "923001234567",
						ID:   "wamid.x",
						Type: "text",
						Text: &models.InboundText{Body: "hi"},
					}},
				},
			}},
		}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	return body
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	srv, st := newTestServer(t)
	body := webhookBody(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", "sha256=deadbeef")
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad signature, got %d", rec.Code)
	}

	// missing header fails the same way
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for missing signature, got %d", rec.Code)
	}

	conversations, _ := st.ListConversations()
	if len(conversations) != 0 {
		t.Error("rejected payloads must not be processed")
	}
}

func TestWebhookAcceptsSignedPayload(t *testing.T) {
	srv, st := newTestServer(t)
	body := webhookBody(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", flowcrypto.SignPayload("app-secret", body))
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	conversations, err := st.ListConversations()
	if err != nil {
		t.Fatalf("ListConversations failed: %v", err)
	}
	if len(conversations) != 1 {
		t.Fatalf("expected 1 conversation after ingest, got %d", len(conversations))
	}
	messages, _ := st.ListMessages(conversations[0].ID)
	if len(messages) != 1 || messages[0].Content != "hi" {
		t.Errorf("inbound message not persisted: %+v", messages)
	}
}

func TestWebhookInsecureModeSkipsSignature(t *testing.T) {
	srv, _ := newTestServer(t, WithAppSecret(""), WithAllowInsecure(true))
	body := webhookBody(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("insecure mode must accept unsigned payloads, got %d", rec.Code)
	}
}

func flowEnvelope(t *testing.T, pub *rsa.PublicKey, payload []byte) ([]byte, []byte, []byte) {
	t.Helper()
	aesKey := make([]byte, 16)
	rand.Read(aesKey)
	iv := make([]byte, 12)
	rand.Read(iv)

	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, aesKey, nil)
	if err != nil {
		t.Fatalf("wrap failed: %v", err)
	}
	block, _ := aes.NewCipher(aesKey)
	gcm, _ := cipher.NewGCM(block)
	sealed := gcm.Seal(nil, iv, payload, nil)

	env, err := json.Marshal(flowcrypto.RequestEnvelope{
		EncryptedFlowData: base64.StdEncoding.EncodeToString(sealed),
		EncryptedAESKey:   base64.StdEncoding.EncodeToString(wrapped),
		InitialVector:     base64.StdEncoding.EncodeToString(iv),
	})
	if err != nil {
		t.Fatalf("envelope marshal failed: %v", err)
	}
	return env, aesKey, iv
}

func TestFlowPingRoundTrip(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("keygen failed: %v", err)
	}
	srv, _ := newTestServer(t, WithFlowKey(key))

	env, aesKey, iv := flowEnvelope(t, &key.PublicKey, []byte(`{"version":"3.0","action":"ping"}`))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/flow", bytes.NewReader(env))
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	sealed, err := base64.StdEncoding.DecodeString(rec.Body.String())
	if err != nil {
		t.Fatalf("response is not base64: %v", err)
	}
	block, _ := aes.NewCipher(aesKey)
	gcm, _ := cipher.NewGCM(block)
	plaintext, err := gcm.Open(nil, flowcrypto.FlipIV(iv), sealed, nil)
	if err != nil {
		t.Fatalf("response must decrypt with flipped IV: %v", err)
	}
	var parsed struct {
		Data struct {
			Status string `json:"status"`
		} `json:"data"`
	}
	if err := json.Unmarshal(plaintext, &parsed); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	if parsed.Data.Status != "active" {
		t.Errorf("ping must answer active, got %q", parsed.Data.Status)
	}
}

func TestFlowDecryptFailureReturns421(t *testing.T) {
	serverKey, _ := rsa.GenerateKey(rand.Reader, 2048)
	strangerKey, _ := rsa.GenerateKey(rand.Reader, 2048)
	srv, _ := newTestServer(t, WithFlowKey(serverKey))

	env, _, _ := flowEnvelope(t, &strangerKey.PublicKey, []byte(`{"action":"ping"}`))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/flow", bytes.NewReader(env))
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusMisdirectedRequest {
		t.Errorf("expected 421 for undecryptable envelope, got %d", rec.Code)
	}
}

func TestFlowUnconfiguredReturns404(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/flow", bytes.NewReader([]byte(`{}`)))
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 without a flow key, got %d", rec.Code)
	}
}

func TestReadAPI(t *testing.T) {
	srv, st := newTestServer(t)

	contact, _ := st.GetOrCreateContact("923001234567", "Ali")
	conv, _ := st.ActiveConversation(contact.ID)
	st.SaveMessage(&models.Message{
		ConversationID: conv.ID,
		Direction:      models.DirectionInbound,
		Type:           models.MessageTypeText,
		Content:        "hello",
		Status:         models.MessageStatusDelivered,
	})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/conversations", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("conversations: expected 200, got %d", rec.Code)
	}
	var convResp struct {
		Status string                `json:"status"`
		Result []models.Conversation `json:"result"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&convResp); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if convResp.Status != "ok" || len(convResp.Result) != 1 {
		t.Fatalf("unexpected conversations response: %+v", convResp)
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/conversations/1/messages", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("messages: expected 200, got %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !bytes.Contains(body, []byte(`"hello"`)) {
		t.Errorf("messages response missing content: %s", body)
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/conversations/abc/messages", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad id must 400, got %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}
