// Package flowcrypto implements the envelope encryption used by WhatsApp
// Flow data-exchange requests.
//
// Each request carries an AES-128 key wrapped with the business's RSA public
// key (OAEP, SHA-256), an IV, and the AES-GCM sealed payload. The response is
// sealed with the same key but the bitwise complement of the request IV, so a
// response can never be replayed as a request.
package flowcrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// TagLength is the byte length of the GCM authentication tag appended to the
// flow ciphertext.
const TagLength = 16

var (
	// ErrAESKeyDecrypt means the wrapped AES key could not be unwrapped
	// with our private key, usually a stale public key on Meta's side.
	ErrAESKeyDecrypt = errors.New("failed to decrypt AES key")
	// ErrFlowDataDecrypt means the payload failed GCM authentication.
	ErrFlowDataDecrypt = errors.New("failed to decrypt flow data")
	// ErrFlowPayloadParse means the decrypted payload was not valid JSON.
	ErrFlowPayloadParse = errors.New("failed to parse flow payload")
)

// RequestEnvelope is the encrypted body POSTed to the flow endpoint.
type RequestEnvelope struct {
	EncryptedFlowData string `json:"encrypted_flow_data"`
	EncryptedAESKey   string `json:"encrypted_aes_key"`
	InitialVector     string `json:"initial_vector"`
}

// Payload is the decrypted flow request.
type Payload struct {
	Version   string         `json:"version"`
	Action    string         `json:"action"`
	Screen    string         `json:"screen,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	FlowToken string         `json:"flow_token,omitempty"`
}

// Request is a decrypted envelope plus the material needed to seal the
// response.
type Request struct {
	Payload Payload

	aesKey []byte
	iv     []byte
}

// DecryptRequest unwraps the AES key with priv, opens the GCM payload and
// parses it. The returned Request holds the key material for EncryptResponse
// and must not outlive the request it belongs to.
func DecryptRequest(priv *rsa.PrivateKey, env *RequestEnvelope) (*Request, error) {
	wrappedKey, err := base64.StdEncoding.DecodeString(env.EncryptedAESKey)
	if err != nil {
		return nil, fmt.Errorf("%w: bad base64 key: %v", ErrAESKeyDecrypt, err)
	}
	iv, err := base64.StdEncoding.DecodeString(env.InitialVector)
	if err != nil {
		return nil, fmt.Errorf("%w: bad base64 iv: %v", ErrFlowDataDecrypt, err)
	}
	sealed, err := base64.StdEncoding.DecodeString(env.EncryptedFlowData)
	if err != nil {
		return nil, fmt.Errorf("%w: bad base64 data: %v", ErrFlowDataDecrypt, err)
	}

	aesKey, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, wrappedKey, nil)
	if err != nil {
		// Never include key material or the OAEP internals in the error.
		return nil, ErrAESKeyDecrypt
	}

	if len(sealed) < TagLength {
		return nil, fmt.Errorf("%w: ciphertext shorter than tag", ErrFlowDataDecrypt)
	}

	plaintext, err := openGCM(aesKey, iv, sealed)
	if err != nil {
		return nil, ErrFlowDataDecrypt
	}

	var payload Payload
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFlowPayloadParse, err)
	}

	return &Request{Payload: payload, aesKey: aesKey, iv: iv}, nil
}

// EncryptResponse seals v with the request's AES key and the flipped IV and
// returns the base64 body expected by the flow client.
func (r *Request) EncryptResponse(v any) (string, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode flow response: %w", err)
	}

	block, err := aes.NewCipher(r.aesKey)
	if err != nil {
		return "", fmt.Errorf("failed to build response cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, len(r.iv))
	if err != nil {
		return "", fmt.Errorf("failed to build response GCM: %w", err)
	}

	sealed := gcm.Seal(nil, FlipIV(r.iv), plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// FlipIV returns the bitwise complement of iv. The flow protocol requires
// responses to use the inverted request IV.
func FlipIV(iv []byte) []byte {
	flipped := make([]byte, len(iv))
	for i, b := range iv {
		flipped[i] = ^b
	}
	return flipped
}

func openGCM(key, iv, sealed []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, len(iv))
	if err != nil {
		return nil, err
	}
	return gcm.Open(nil, iv, sealed, nil)
}
