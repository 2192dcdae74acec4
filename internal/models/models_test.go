package models

import "testing"

func TestCanTransitionStatus(t *testing.T) {
	cases := []struct {
		from, to MessageStatus
		want     bool
	}{
		{MessageStatusPending, MessageStatusSent, true},
		{MessageStatusSent, MessageStatusDelivered, true},
		{MessageStatusDelivered, MessageStatusRead, true},
		{MessageStatusPending, MessageStatusRead, true},
		{MessageStatusPending, MessageStatusFailed, true},
		{MessageStatusSent, MessageStatusFailed, true},
		// regressions must be rejected
		{MessageStatusRead, MessageStatusSent, false},
		{MessageStatusDelivered, MessageStatusSent, false},
		{MessageStatusSent, MessageStatusSent, false},
		{MessageStatusSent, MessageStatusPending, false},
		// failed is terminal
		{MessageStatusFailed, MessageStatusSent, false},
		{MessageStatusFailed, MessageStatusRead, false},
		{MessageStatusFailed, MessageStatusFailed, false},
	}
	for _, c := range cases {
		if got := CanTransitionStatus(c.from, c.to); got != c.want {
			t.Errorf("CanTransitionStatus(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestParseProviderStatus(t *testing.T) {
	for in, want := range map[string]MessageStatus{
		"sent":      MessageStatusSent,
		"delivered": MessageStatusDelivered,
		"read":      MessageStatusRead,
		"failed":    MessageStatusFailed,
	} {
		got, ok := ParseProviderStatus(in)
		if !ok || got != want {
			t.Errorf("ParseProviderStatus(%q) = %v, %v; want %v, true", in, got, ok, want)
		}
	}
	if _, ok := ParseProviderStatus("warmup"); ok {
		t.Error("expected unknown provider status to be rejected")
	}
}

func TestInteractiveSelectionID(t *testing.T) {
	var nilSel *InboundInteractive
	if id := nilSel.SelectionID(); id != "" {
		t.Errorf("nil interactive should have empty selection, got %q", id)
	}
	list := &InboundInteractive{Type: "list_reply", ListReply: &InteractiveReply{ID: "menu_track"}}
	if id := list.SelectionID(); id != "menu_track" {
		t.Errorf("expected menu_track, got %q", id)
	}
	btn := &InboundInteractive{Type: "button_reply", ButtonReply: &InteractiveReply{ID: "menu_main"}}
	if id := btn.SelectionID(); id != "menu_main" {
		t.Errorf("expected menu_main, got %q", id)
	}
}

func TestIsValidMessageType(t *testing.T) {
	if !IsValidMessageType(MessageTypeInteractive) {
		t.Error("interactive should be a valid message type")
	}
	if IsValidMessageType(MessageType("sticker")) {
		t.Error("sticker is not a supported message type")
	}
}
