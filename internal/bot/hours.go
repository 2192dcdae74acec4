package bot

import "time"

// IsBusinessHours reports whether the support desk is staffed at t.
// Staffed Monday through Saturday from the configured open hour up to but
// excluding the close hour; Sunday is always closed. Pure function of t in
// the business time zone, no side effects.
func (b *Bot) IsBusinessHours(t time.Time) bool {
	local := t.In(b.cfg.Location())
	if local.Weekday() == time.Sunday {
		return false
	}
	h := local.Hour()
	return h >= b.cfg.OpenHour && h < b.cfg.CloseHour
}

// timeOfDayGreeting returns the salutation for the local hour.
func (b *Bot) timeOfDayGreeting(t time.Time) string {
	switch h := t.In(b.cfg.Location()).Hour(); {
	case h < 12:
		return "Good morning"
	case h < 17:
		return "Good afternoon"
	default:
		return "Good evening"
	}
}

// availabilityNotice is appended to greetings and acknowledgments. The
// wording differs with the staffed state; it never changes behavior.
func (b *Bot) availabilityNotice(t time.Time) string {
	if b.IsBusinessHours(t) {
		return "Our team typically responds within a few minutes."
	}
	return "We are currently unavailable. Our team will get back to you during business hours (Mon-Sat)."
}
