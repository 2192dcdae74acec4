package bot

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/taskerhq/taskerchat/internal/config"
	"github.com/taskerhq/taskerchat/internal/models"
	"github.com/taskerhq/taskerchat/internal/session"
)

type fakeStorage struct {
	notes   []models.ConversationNote
	orders  []models.WorkOrder
	noteErr error
}

func (f *fakeStorage) SaveNote(n models.ConversationNote) error {
	if f.noteErr != nil {
		return f.noteErr
	}
	f.notes = append(f.notes, n)
	return nil
}

func (f *fakeStorage) WorkOrders(customerID *int64) ([]models.WorkOrder, error) {
	if customerID == nil {
		return nil, nil
	}
	var out []models.WorkOrder
	for _, o := range f.orders {
		if o.CustomerID == *customerID {
			out = append(out, o)
		}
	}
	return out, nil
}

func mustLoadConfig(t *testing.T) *config.Business {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("failed to load default config: %v", err)
	}
	cfg.Helpline = "0300-1234567"
	cfg.Email = "support@example.com"
	cfg.Website = "https://example.com"
	cfg.Address = "1 Main Street"
	return cfg
}

func newTestBot(t *testing.T) (*Bot, *fakeStorage, session.Store) {
	t.Helper()
	cfg := mustLoadConfig(t)
	storage := &fakeStorage{}
	sessions := session.NewMemoryStore()
	b := New(cfg, sessions, storage)
	// Monday 10:00 in the configured timezone, inside business hours.
	b.now = func() time.Time {
		return time.Date(2025, 6, 2, 10, 0, 0, 0, cfg.Location())
	}
	return b, storage, sessions
}

func testInput(text string) Input {
	cid := int64(42)
	return Input{
		Text:  text,
		Phone: "923001234567",
		Conversation: &models.Conversation{
			ID:        1,
			ContactID: 1,
			Status:    models.ConversationOpen,
		},
		Contact: &models.Contact{
			ID:           1,
			PhoneNumber:  "923001234567",
			WhatsAppName: "Ali",
			CustomerID:   &cid,
		},
	}
}

func TestFirstMessageGreetsAndOpensMenu(t *testing.T) {
	b, _, sessions := newTestBot(t)

	reply, err := b.ProcessMessage(context.Background(), testInput("anything at all"))
	if err != nil {
		t.Fatalf("ProcessMessage failed: %v", err)
	}
	if reply == nil || reply.Kind != models.ReplyKindList {
		t.Fatalf("expected interactive list welcome, got %+v", reply)
	}
	if got := sessions.Get("923001234567"); got != session.StateMainMenu {
		t.Errorf("expected state main_menu after greeting, got %q", got)
	}
}

func TestGreetingIdempotence(t *testing.T) {
	b, _, _ := newTestBot(t)
	ctx := context.Background()

	first, err := b.ProcessMessage(ctx, testInput("hi"))
	if err != nil {
		t.Fatalf("first greeting failed: %v", err)
	}
	second, err := b.ProcessMessage(ctx, testInput("hello"))
	if err != nil {
		t.Fatalf("second greeting failed: %v", err)
	}
	if first.Kind != second.Kind {
		t.Errorf("greeting replies differ in kind: %q vs %q", first.Kind, second.Kind)
	}
	if !strings.Contains(first.Header, "Welcome") {
		t.Errorf("first contact must be welcomed, got header %q", first.Header)
	}
	if second.Kind != models.ReplyKindList {
		t.Errorf("repeated greeting must still open the menu, got %q", second.Kind)
	}
	if len(first.Sections) != 1 || len(second.Sections) != 1 ||
		len(first.Sections[0].Rows) != len(second.Sections[0].Rows) {
		t.Errorf("greeting menus differ: %+v vs %+v", first.Sections, second.Sections)
	}
}

func TestFirstContactGreetingTokenGetsWelcome(t *testing.T) {
	for _, token := range []string{"hi", "hello", "salam", "menu", "0"} {
		b, _, sessions := newTestBot(t)

		reply, err := b.ProcessMessage(context.Background(), testInput(token))
		if err != nil {
			t.Fatalf("token %q: %v", token, err)
		}
		if reply == nil || reply.Kind != models.ReplyKindList {
			t.Fatalf("token %q: expected welcome list, got %+v", token, reply)
		}
		if !strings.Contains(reply.Header, "Welcome") {
			t.Errorf("token %q: first contact must get the welcome header, got %q", token, reply.Header)
		}
		if got := sessions.Get("923001234567"); got != session.StateMainMenu {
			t.Errorf("token %q: expected main_menu, got %q", token, got)
		}
	}
}

func TestResetTokensFromEveryState(t *testing.T) {
	states := []session.State{
		session.StateNew, session.StateMainMenu, session.StateCheckStatus,
		session.StateTalkAgent, session.StateOtherMessage,
	}
	tokens := []string{"menu", "START", "Hi", "hello", "main", "0", "Salam", "hey"}

	for _, st := range states {
		for _, tok := range tokens {
			b, storage, sessions := newTestBot(t)
			sessions.Set("923001234567", st)

			reply, err := b.ProcessMessage(context.Background(), testInput(tok))
			if err != nil {
				t.Fatalf("state %q token %q: %v", st, tok, err)
			}
			if reply == nil || reply.Kind != models.ReplyKindList {
				t.Errorf("state %q token %q: expected menu list, got %+v", st, tok, reply)
			}
			if got := sessions.Get("923001234567"); got != session.StateMainMenu {
				t.Errorf("state %q token %q: expected main_menu, got %q", st, tok, got)
			}
			if len(storage.notes) != 0 {
				t.Errorf("state %q token %q: reset token must not be captured as a note", st, tok)
			}
		}
	}
}

func TestBotDisabledStaysSilent(t *testing.T) {
	b, _, sessions := newTestBot(t)
	sessions.Set("923001234567", session.StateMainMenu)

	in := testInput("1")
	in.Conversation.BotDisabled = true

	reply, err := b.ProcessMessage(context.Background(), in)
	if err != nil {
		t.Fatalf("ProcessMessage failed: %v", err)
	}
	if reply != nil {
		t.Errorf("expected nil reply when bot is disabled, got %+v", reply)
	}
	if got := sessions.Get("923001234567"); got != session.StateMainMenu {
		t.Errorf("silent handling must not change state, got %q", got)
	}
}

func TestMainMenuNumericAndTokenDispatch(t *testing.T) {
	cases := []struct {
		input     string
		wantState session.State
	}{
		{"1", session.StateCheckStatus},
		{"menu_track", session.StateCheckStatus},
		{"4", session.StateTalkAgent},
		{"menu_agent", session.StateTalkAgent},
		{"6", session.StateOtherMessage},
		{"menu_other", session.StateOtherMessage},
	}
	for _, tc := range cases {
		b, _, sessions := newTestBot(t)
		sessions.Set("923001234567", session.StateMainMenu)

		reply, err := b.ProcessMessage(context.Background(), testInput(tc.input))
		if err != nil {
			t.Fatalf("input %q: %v", tc.input, err)
		}
		if reply == nil {
			t.Fatalf("input %q: expected a reply", tc.input)
		}
		if got := sessions.Get("923001234567"); got != tc.wantState {
			t.Errorf("input %q: expected state %q, got %q", tc.input, tc.wantState, got)
		}
	}
}

func TestMainMenuInvalidOptionKeepsState(t *testing.T) {
	b, _, sessions := newTestBot(t)
	sessions.Set("923001234567", session.StateMainMenu)

	reply, err := b.ProcessMessage(context.Background(), testInput("banana"))
	if err != nil {
		t.Fatalf("ProcessMessage failed: %v", err)
	}
	if reply == nil || reply.Kind != models.ReplyKindButtons {
		t.Fatalf("expected buttons reply for invalid option, got %+v", reply)
	}
	if got := sessions.Get("923001234567"); got != session.StateMainMenu {
		t.Errorf("invalid option must keep main_menu, got %q", got)
	}
}

func TestOrderLookupDeterminism(t *testing.T) {
	b, storage, sessions := newTestBot(t)
	storage.orders = []models.WorkOrder{
		{ID: 7, Number: "WO-2025-00123", CustomerID: 42, Status: "scheduled", ServiceName: "AC Repair"},
		{ID: 8, Number: "WO-2025-00456", CustomerID: 42, Status: "completed", ServiceName: "Plumbing"},
	}

	for _, input := range []string{"WO-2025-00123", "wo-2025-00123", "00123", "123"} {
		sessions.Set("923001234567", session.StateCheckStatus)
		reply, err := b.ProcessMessage(context.Background(), testInput(input))
		if err != nil {
			t.Fatalf("input %q: %v", input, err)
		}
		if reply == nil || reply.Kind != models.ReplyKindText {
			t.Fatalf("input %q: expected text summary, got %+v", input, reply)
		}
		if !strings.Contains(reply.Body, "WO-2025-00123") || !strings.Contains(reply.Body, "scheduled") {
			t.Errorf("input %q: summary missing order details: %q", input, reply.Body)
		}
		if got := sessions.Get("923001234567"); got != session.StateMainMenu {
			t.Errorf("input %q: expected main_menu after success, got %q", input, got)
		}
	}
}

func TestOrderLookupNotFoundKeepsCheckStatus(t *testing.T) {
	b, storage, sessions := newTestBot(t)
	storage.orders = []models.WorkOrder{
		{ID: 7, Number: "WO-2025-00123", CustomerID: 42, Status: "scheduled", ServiceName: "AC Repair"},
	}
	sessions.Set("923001234567", session.StateCheckStatus)

	reply, err := b.ProcessMessage(context.Background(), testInput("999999"))
	if err != nil {
		t.Fatalf("ProcessMessage failed: %v", err)
	}
	if reply == nil || reply.Kind != models.ReplyKindButtons {
		t.Fatalf("expected retry buttons, got %+v", reply)
	}
	if got := sessions.Get("923001234567"); got != session.StateCheckStatus {
		t.Errorf("not-found must keep check_status so retry works, got %q", got)
	}
}

func TestOrderLookupTryAgainButtonReprompts(t *testing.T) {
	b, storage, sessions := newTestBot(t)
	storage.orders = []models.WorkOrder{
		{ID: 7, Number: "WO-2025-00123", CustomerID: 42, Status: "scheduled", ServiceName: "AC Repair"},
	}
	sessions.Set("923001234567", session.StateCheckStatus)

	reply, err := b.ProcessMessage(context.Background(), testInput("menu_track"))
	if err != nil {
		t.Fatalf("ProcessMessage failed: %v", err)
	}
	if reply == nil || reply.Kind != models.ReplyKindText {
		t.Fatalf("expected order-number prompt, got %+v", reply)
	}
	if !strings.Contains(reply.Body, "order number") {
		t.Errorf("button tap must re-issue the prompt, not look itself up: %q", reply.Body)
	}
	if got := sessions.Get("923001234567"); got != session.StateCheckStatus {
		t.Errorf("re-prompt must keep check_status, got %q", got)
	}
}

func TestAgentMessageCapturesNote(t *testing.T) {
	b, storage, sessions := newTestBot(t)
	sessions.Set("923001234567", session.StateTalkAgent)

	reply, err := b.ProcessMessage(context.Background(), testInput("my AC is still broken"))
	if err != nil {
		t.Fatalf("ProcessMessage failed: %v", err)
	}
	if reply == nil || reply.Kind != models.ReplyKindText {
		t.Fatalf("expected text acknowledgment, got %+v", reply)
	}
	if len(storage.notes) != 1 {
		t.Fatalf("expected 1 note, got %d", len(storage.notes))
	}
	note := storage.notes[0]
	if note.Kind != models.NoteAgentRequest {
		t.Errorf("expected agent_request note, got %q", note.Kind)
	}
	if note.Body != "my AC is still broken" {
		t.Errorf("unexpected note body %q", note.Body)
	}
	if note.ID == "" {
		t.Error("note ID must be assigned")
	}
	if got := sessions.Get("923001234567"); got != session.StateMainMenu {
		t.Errorf("expected main_menu after capture, got %q", got)
	}
}

func TestOtherMessageCapturesGeneralInquiry(t *testing.T) {
	b, storage, sessions := newTestBot(t)
	sessions.Set("923001234567", session.StateOtherMessage)

	if _, err := b.ProcessMessage(context.Background(), testInput("do you service Lahore?")); err != nil {
		t.Fatalf("ProcessMessage failed: %v", err)
	}
	if len(storage.notes) != 1 || storage.notes[0].Kind != models.NoteGeneralInquiry {
		t.Fatalf("expected one general_inquiry note, got %+v", storage.notes)
	}
}

func TestNoteSaveFailurePropagates(t *testing.T) {
	b, storage, sessions := newTestBot(t)
	storage.noteErr = errors.New("disk full")
	sessions.Set("923001234567", session.StateTalkAgent)

	reply, err := b.ProcessMessage(context.Background(), testInput("please help"))
	if err == nil {
		t.Fatal("expected error when note save fails")
	}
	if reply != nil {
		t.Errorf("failed capture must not acknowledge, got %+v", reply)
	}
	if got := sessions.Get("923001234567"); got != session.StateTalkAgent {
		t.Errorf("failed capture must keep talk_agent, got %q", got)
	}
}

func TestAfterHoursAcknowledgmentMentionsHours(t *testing.T) {
	b, storage, sessions := newTestBot(t)
	// Monday 22:00, after closing.
	b.now = func() time.Time {
		return time.Date(2025, 6, 2, 22, 0, 0, 0, b.cfg.Location())
	}
	sessions.Set("923001234567", session.StateTalkAgent)

	reply, err := b.ProcessMessage(context.Background(), testInput("call me back"))
	if err != nil {
		t.Fatalf("ProcessMessage failed: %v", err)
	}
	if !strings.Contains(reply.Body, "closed") && !strings.Contains(reply.Body, "hours") {
		t.Errorf("after-hours acknowledgment should mention availability: %q", reply.Body)
	}
	if len(storage.notes) != 1 {
		t.Errorf("after-hours message must still be captured, got %d notes", len(storage.notes))
	}
}

func TestIsBusinessHours(t *testing.T) {
	b, _, _ := newTestBot(t)
	loc := b.cfg.Location()

	cases := []struct {
		name string
		t    time.Time
		want bool
	}{
		{"monday opening instant", time.Date(2025, 6, 2, 8, 0, 0, 0, loc), true},
		{"monday last second", time.Date(2025, 6, 2, 19, 59, 59, 0, loc), true},
		{"monday closing instant", time.Date(2025, 6, 2, 20, 0, 0, 0, loc), false},
		{"monday before open", time.Date(2025, 6, 2, 7, 59, 59, 0, loc), false},
		{"saturday midday", time.Date(2025, 6, 7, 12, 0, 0, 0, loc), true},
		{"sunday midday", time.Date(2025, 6, 8, 12, 0, 0, 0, loc), false},
	}
	for _, tc := range cases {
		if got := b.IsBusinessHours(tc.t); got != tc.want {
			t.Errorf("%s: IsBusinessHours(%v) = %v, want %v", tc.name, tc.t, got, tc.want)
		}
	}
}

func TestMatchWorkOrder(t *testing.T) {
	orders := []models.WorkOrder{
		{ID: 7, Number: "WO-2025-00123"},
		{ID: 8, Number: "WO-2025-00456"},
	}
	cases := []struct {
		input string
		want  int64 // 0 means no match
	}{
		{"WO-2025-00123", 7},
		{"wo-2025-00456", 8},
		{"00123", 7},
		{"123", 7},
		{"456", 8},
		{"7", 7},
		{"999999", 0},
		{"", 0},
	}
	for _, tc := range cases {
		got := MatchWorkOrder(orders, tc.input)
		switch {
		case tc.want == 0 && got != nil:
			t.Errorf("input %q: expected no match, got %s", tc.input, got.Number)
		case tc.want != 0 && got == nil:
			t.Errorf("input %q: expected order %d, got none", tc.input, tc.want)
		case tc.want != 0 && got != nil && got.ID != tc.want:
			t.Errorf("input %q: expected order %d, got %d", tc.input, tc.want, got.ID)
		}
	}
}
