package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/taskerhq/taskerchat/internal/flowcrypto"
	"github.com/taskerhq/taskerchat/internal/models"
)

// handleWebhookVerify answers the provider's subscription handshake: echo
// hub.challenge when the verify token matches.
func (s *Server) handleWebhookVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")

	if mode != "subscribe" || token == "" || token != s.opts.VerifyToken {
		slog.Warn("Webhook verification rejected", "mode", mode, "remote", r.RemoteAddr)
		writeError(w, http.StatusForbidden, "verification failed")
		return
	}

	slog.Info("Webhook verification succeeded", "remote", r.RemoteAddr)
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(challenge))
}

// handleWebhook validates the signature and hands the payload to the
// processor. The provider retries on non-2xx, so payload-level problems
// still return 200 after being logged; only unreadable requests are 4xx.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	if s.opts.AppSecret != "" {
		sig := r.Header.Get("X-Hub-Signature-256")
		if !flowcrypto.ValidateSignature(s.opts.AppSecret, body, sig) {
			slog.Warn("Webhook signature rejected", "remote", r.RemoteAddr, "has_header", sig != "")
			writeError(w, http.StatusUnauthorized, "invalid signature")
			return
		}
	}

	var payload models.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	if err := s.processor.Process(r.Context(), &payload); err != nil {
		// Processor errors are systemic; a retry might succeed.
		slog.Error("Webhook processing failed", "error", err)
		writeError(w, http.StatusInternalServerError, "processing failed")
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(nil))
}

// handleFlow serves the encrypted flow data-exchange endpoint. Decryption
// failures return 421 so the client refreshes its public key.
func (s *Server) handleFlow(w http.ResponseWriter, r *http.Request) {
	if s.opts.FlowKey == nil {
		writeError(w, http.StatusNotFound, "flow endpoint not configured")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	var env flowcrypto.RequestEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		writeError(w, http.StatusBadRequest, "invalid envelope")
		return
	}

	req, err := flowcrypto.DecryptRequest(s.opts.FlowKey, &env)
	if err != nil {
		if errors.Is(err, flowcrypto.ErrFlowPayloadParse) {
			writeError(w, http.StatusBadRequest, "invalid flow payload")
			return
		}
		// 421 tells the client to refresh the business public key.
		slog.Warn("Flow decryption failed", "error", err)
		w.WriteHeader(http.StatusMisdirectedRequest)
		return
	}

	response := s.flowResponse(req.Payload)
	encrypted, err := req.EncryptResponse(response)
	if err != nil {
		slog.Error("Flow response encryption failed", "error", err)
		writeError(w, http.StatusInternalServerError, "encryption failed")
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(encrypted))
}

// flowResponse builds the plaintext response for a decrypted flow request.
func (s *Server) flowResponse(payload flowcrypto.Payload) map[string]any {
	switch payload.Action {
	case "ping":
		return map[string]any{"data": map[string]any{"status": "active"}}
	case "INIT":
		return map[string]any{
			"screen": "WELCOME",
			"data":   map[string]any{},
		}
	default:
		// data_exchange and anything unrecognized echo the screen back;
		// screen logic lives in the flow definition, not the server.
		screen := payload.Screen
		if screen == "" {
			screen = "WELCOME"
		}
		data := payload.Data
		if data == nil {
			data = map[string]any{}
		}
		return map[string]any{"screen": screen, "data": data}
	}
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	conversations, err := s.store.ListConversations()
	if err != nil {
		slog.Error("Failed to list conversations", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(conversations))
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid conversation id")
		return
	}
	messages, err := s.store.ListMessages(id)
	if err != nil {
		slog.Error("Failed to list messages", "conversation_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(messages))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("healthy", nil))
}
