package channel

import (
	"fmt"
	"strings"
	"time"

	"reminderd/internal/reminder"
)

// Message is the channel-neutral reminder payload.
type Message struct {
	Type          string    `json:"type"`
	Title         string    `json:"title"`
	Body          string    `json:"message"`
	ReminderCount int       `json:"reminderCount"`
	Timestamp     time.Time `json:"timestamp"`
	Test          bool      `json:"test,omitempty"`
}

const TypeWaterReminder = "water-reminder"

// WaterReminder builds the default payload for a reminder event.
func WaterReminder(ev reminder.Event) Message {
	return Message{
		Type:          TypeWaterReminder,
		Title:         "💧 Time to Drink Water!",
		Body:          fmt.Sprintf("Stay hydrated! This is your reminder #%d today.", ev.ReminderCount),
		ReminderCount: ev.ReminderCount,
		Timestamp:     ev.Timestamp,
		Test:          ev.Test,
	}
}

// Greeting returns the recipient's display name, falling back to "there".
func Greeting(to Recipient) string {
	if name := strings.TrimSpace(to.Username); name != "" {
		return name
	}
	return "there"
}

// ShortText is the one-line form used by SMS and chat channels.
func ShortText(to Recipient, msg Message) string {
	return fmt.Sprintf("💧 Hi %s! Time to drink water! This is reminder #%d today. Stay hydrated!",
		Greeting(to), msg.ReminderCount)
}
