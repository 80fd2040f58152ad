package eventbus

// Reminder lifecycle event types.
const (
	ReminderArmed     = "reminder.armed"
	ReminderDisarmed  = "reminder.disarmed"
	ReminderFired     = "reminder.fired"
	ReminderDelivered = "reminder.delivered"
	ReminderRemoved   = "reminder.removed"
	ChannelsChanged   = "dispatch.channels_changed"
)
