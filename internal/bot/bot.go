// Package bot implements the conversation state machine for the support chat.
//
// The bot consumes an inbound text or interactive selection plus the phone's
// current session state and produces a structured reply and a possible state
// transition. It never talks to the provider directly; the webhook pipeline
// renders replies through the messaging transport.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/taskerhq/taskerchat/internal/config"
	"github.com/taskerhq/taskerchat/internal/models"
	"github.com/taskerhq/taskerchat/internal/session"
)

// Storage is the slice of the persistence layer the bot needs: notes it
// writes and the work-order read model it queries.
type Storage interface {
	SaveNote(n models.ConversationNote) error
	WorkOrders(customerID *int64) ([]models.WorkOrder, error)
}

// Input carries everything the bot needs to process one inbound message.
type Input struct {
	// Text is the trimmed message text, or an interactive selection token
	// (menu_* row or button id).
	Text         string
	Phone        string
	Conversation *models.Conversation
	Contact      *models.Contact
}

// Bot is the menu state machine. It is stateless itself; all conversation
// position lives in the session store.
type Bot struct {
	cfg      *config.Business
	sessions session.Store
	storage  Storage
	now      func() time.Time
}

// New creates a Bot with the injected business configuration.
func New(cfg *config.Business, sessions session.Store, storage Storage) *Bot {
	return &Bot{cfg: cfg, sessions: sessions, storage: storage, now: time.Now}
}

// resetTokens force the main menu from any state, pre-empting state-specific
// handling. Matched case-insensitively.
var resetTokens = map[string]bool{
	"menu": true, "start": true, "hi": true, "hello": true, "main": true,
	"0": true, "salam": true, "assalam": true, "aoa": true, "helo": true, "hey": true,
}

// Menu selection tokens. Numeric aliases 1-6 map onto these in order.
const (
	tokenMain        = "menu_main"
	tokenTrack       = "menu_track"
	tokenBookings    = "menu_bookings"
	tokenBookingInfo = "menu_booking_info"
	tokenAgent       = "menu_agent"
	tokenContact     = "menu_contact"
	tokenOther       = "menu_other"
)

var numericAliases = map[string]string{
	"1": tokenTrack,
	"2": tokenBookings,
	"3": tokenBookingInfo,
	"4": tokenAgent,
	"5": tokenContact,
	"6": tokenOther,
}

// ProcessMessage runs one step of the state machine. A nil reply with a nil
// error means the bot deliberately stays silent (staff takeover).
func (b *Bot) ProcessMessage(ctx context.Context, in Input) (*models.Reply, error) {
	if in.Conversation != nil && in.Conversation.BotDisabled {
		slog.Debug("Bot silent: conversation has bot disabled", "phone", in.Phone, "conversation_id", in.Conversation.ID)
		return nil, nil
	}

	text := strings.TrimSpace(in.Text)
	state := b.sessions.Get(in.Phone)
	slog.Debug("Bot processing message", "phone", in.Phone, "state", state, "text_length", len(text))

	// Global resets win over whatever state we are in. A reset from a
	// fresh session is a first contact and greets like one.
	if resetTokens[strings.ToLower(text)] || strings.EqualFold(text, tokenMain) {
		b.sessions.Set(in.Phone, session.StateMainMenu)
		if state == session.StateNew {
			return b.welcomeReply(in.Contact), nil
		}
		return b.mainMenuReply(), nil
	}

	switch state {
	case session.StateMainMenu:
		return b.handleMainMenu(ctx, in, text)
	case session.StateCheckStatus:
		return b.handleCheckStatus(ctx, in, text)
	case session.StateTalkAgent:
		return b.handleCapture(ctx, in, text, models.NoteAgentRequest)
	case session.StateOtherMessage:
		return b.handleCapture(ctx, in, text, models.NoteGeneralInquiry)
	default: // StateNew or anything unknown: greet and open the menu
		b.sessions.Set(in.Phone, session.StateMainMenu)
		return b.welcomeReply(in.Contact), nil
	}
}

func (b *Bot) handleMainMenu(ctx context.Context, in Input, text string) (*models.Reply, error) {
	token := strings.ToLower(text)
	if alias, ok := numericAliases[token]; ok {
		token = alias
	}

	switch token {
	case tokenTrack:
		b.sessions.Set(in.Phone, session.StateCheckStatus)
		return b.trackPrompt(), nil

	case tokenBookings:
		return b.bookingsReply(in.Contact)

	case tokenBookingInfo:
		body := fmt.Sprintf("To book a service with %s, call our helpline %s or visit %s. Once booked, you will receive your order number here on WhatsApp.",
			b.cfg.CompanyName, b.cfg.Helpline, b.cfg.Website)
		return models.TextReply(body), nil

	case tokenAgent:
		b.sessions.Set(in.Phone, session.StateTalkAgent)
		return models.TextReply("Please type the message you would like to send to our support team. Reply 0 to go back to the menu."), nil

	case tokenContact:
		body := fmt.Sprintf("%s\nHelpline: %s\nEmail: %s\nAddress: %s",
			b.cfg.CompanyName, b.cfg.Helpline, b.cfg.Email, b.cfg.Address)
		return models.TextReply(body), nil

	case tokenOther:
		b.sessions.Set(in.Phone, session.StateOtherMessage)
		return models.TextReply("Please describe your inquiry and we will route it to the right team. Reply 0 to go back to the menu."), nil

	default:
		// Unrecognized input keeps the menu state.
		return models.ButtonsReply("Invalid Option", "Sorry, that is not a valid option. Tap below to see the menu again.", "",
			[]models.Button{{ID: tokenMain, Title: "Main Menu"}}), nil
	}
}

func (b *Bot) trackPrompt() *models.Reply {
	return models.TextReply("Please send your order number (for example WO-2025-00123). Reply 0 to go back to the menu.")
}

func (b *Bot) handleCheckStatus(ctx context.Context, in Input, text string) (*models.Reply, error) {
	// The not-found reply carries a Try Again button; tapping it re-issues
	// the prompt instead of being looked up as an order number.
	if strings.EqualFold(text, tokenTrack) {
		return b.trackPrompt(), nil
	}

	var customerID *int64
	if in.Contact != nil {
		customerID = in.Contact.CustomerID
	}
	orders, err := b.storage.WorkOrders(customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load work orders: %w", err)
	}

	order := MatchWorkOrder(orders, text)
	if order == nil {
		// Not found is a normal branch, not an error. State stays in
		// check_status so the retry button actually means retry.
		slog.Debug("Bot order lookup found nothing", "phone", in.Phone, "input_length", len(text))
		return models.ButtonsReply("Order Not Found",
			fmt.Sprintf("We could not find an order matching %q. Please check the number and try again, or go back to the menu.", text),
			"",
			[]models.Button{
				{ID: tokenTrack, Title: "Try Again"},
				{ID: tokenMain, Title: "Main Menu"},
			}), nil
	}

	b.sessions.Set(in.Phone, session.StateMainMenu)
	body := fmt.Sprintf("Order %s\nService: %s\nStatus: %s", order.Number, order.ServiceName, order.Status)
	if order.ScheduledAt != nil {
		body += fmt.Sprintf("\nScheduled: %s", order.ScheduledAt.In(b.cfg.Location()).Format("Mon, 2 Jan 2006 15:04"))
	}
	slog.Info("Bot resolved order lookup", "phone", in.Phone, "order", order.Number)
	return models.TextReply(body), nil
}

// handleCapture persists the contact's free-form message as a conversation
// note and acknowledges. Persistence failures propagate; the webhook pipeline
// logs them and the user gets no false acknowledgment.
func (b *Bot) handleCapture(ctx context.Context, in Input, text string, kind models.NoteKind) (*models.Reply, error) {
	if in.Conversation == nil {
		return nil, fmt.Errorf("cannot capture %s note without a conversation", kind)
	}
	note := models.ConversationNote{
		ID:             uuid.NewString(),
		ConversationID: in.Conversation.ID,
		Kind:           kind,
		Body:           text,
		CreatedAt:      b.now(),
	}
	if err := b.storage.SaveNote(note); err != nil {
		return nil, fmt.Errorf("failed to save %s note: %w", kind, err)
	}
	slog.Info("Bot captured note", "phone", in.Phone, "kind", kind, "conversation_id", in.Conversation.ID)

	b.sessions.Set(in.Phone, session.StateMainMenu)
	var ack string
	if kind == models.NoteAgentRequest {
		ack = "Thank you, your message has been forwarded to our support team."
	} else {
		ack = "Thank you, we have recorded your inquiry."
	}
	return models.TextReply(ack + " " + b.availabilityNotice(b.now())), nil
}

func (b *Bot) bookingsReply(contact *models.Contact) (*models.Reply, error) {
	if contact == nil || contact.CustomerID == nil {
		return models.TextReply("We could not find bookings linked to this WhatsApp number. If you have an order number, use Track Order from the menu."), nil
	}
	orders, err := b.storage.WorkOrders(contact.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load bookings: %w", err)
	}
	if len(orders) == 0 {
		return models.TextReply("You have no bookings on record. Call our helpline " + b.cfg.Helpline + " to book a service."), nil
	}
	var sb strings.Builder
	sb.WriteString("Your bookings:\n")
	for _, o := range orders {
		fmt.Fprintf(&sb, "- %s (%s): %s\n", o.Number, o.ServiceName, o.Status)
	}
	return models.TextReply(strings.TrimRight(sb.String(), "\n")), nil
}

func (b *Bot) welcomeReply(contact *models.Contact) *models.Reply {
	now := b.now()
	name := ""
	if contact != nil && contact.WhatsAppName != "" {
		name = " " + contact.WhatsAppName
	}
	header := fmt.Sprintf("Welcome to %s", b.cfg.CompanyName)
	body := fmt.Sprintf("%s%s! How can we help you today? %s",
		b.timeOfDayGreeting(now), name, b.availabilityNotice(now))
	return models.ListReply(header, body, b.cfg.CompanyName, "Menu", b.menuSections())
}

func (b *Bot) mainMenuReply() *models.Reply {
	return models.ListReply("Main Menu", "Please choose an option.", b.cfg.CompanyName, "Menu", b.menuSections())
}

func (b *Bot) menuSections() []models.ListSection {
	return []models.ListSection{{
		Title: "Support",
		Rows: []models.ListRow{
			{ID: tokenTrack, Title: "Track Order", Description: "Check the status of a work order"},
			{ID: tokenBookings, Title: "My Bookings", Description: "See bookings linked to this number"},
			{ID: tokenBookingInfo, Title: "Booking Info", Description: "How to book a service"},
			{ID: tokenAgent, Title: "Talk to an Agent", Description: "Leave a message for our team"},
			{ID: tokenContact, Title: "Contact Info", Description: "Helpline, email and address"},
			{ID: tokenOther, Title: "Other Inquiry", Description: "Anything else"},
		},
	}}
}
