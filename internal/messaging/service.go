// Package messaging defines the outbound message service and its provider
// implementations.
//
// A Service validates recipients and delivers bot replies. The cloud
// implementation records every send in the store before it leaves the
// process, so delivery receipts arriving on the webhook can be correlated by
// provider id.
package messaging

import (
	"context"
	"fmt"
	"strings"

	"github.com/taskerhq/taskerchat/internal/models"
)

// MinPhoneDigits is the shortest recipient accepted after canonicalization.
const MinPhoneDigits = 7

// Service delivers messages to a phone number through some provider.
type Service interface {
	// ValidateAndCanonicalizeRecipient strips formatting and checks the
	// number is plausible. Returns the digits-only form.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)
	// SendText delivers a plain text message within a conversation.
	SendText(ctx context.Context, conversationID int64, to, body string) error
	// SendReply delivers a structured bot reply within a conversation.
	SendReply(ctx context.Context, conversationID int64, to string, reply *models.Reply) error
}

// CanonicalizePhone keeps only digits, dropping +, spaces, dashes and
// parentheses. Shared by all provider implementations.
func CanonicalizePhone(recipient string) (string, error) {
	var sb strings.Builder
	for _, r := range recipient {
		switch {
		case r >= '0' && r <= '9':
			sb.WriteRune(r)
		case r == '+' || r == ' ' || r == '-' || r == '(' || r == ')':
			// formatting, ignore
		default:
			return "", fmt.Errorf("%w: unexpected character %q", models.ErrInvalidPhoneNumber, r)
		}
	}
	digits := sb.String()
	if len(digits) < MinPhoneDigits {
		return "", fmt.Errorf("%w: too short", models.ErrInvalidPhoneNumber)
	}
	return digits, nil
}
