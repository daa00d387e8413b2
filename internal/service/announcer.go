package service

// Announcer is the presentation seam: spoken cues, countdown digits, and
// transient notifications. The UI implements it; services never talk to the
// screen directly. (Also keeps the presentation layer from importing back
// into the services.)
type Announcer interface {
	// Say speaks a voice cue.
	Say(text string)
	// Countdown shows a countdown digit; 0 is the capture moment.
	Countdown(n int)
	// Notify surfaces a transient notification.
	Notify(message string)
}

// NopAnnouncer discards all cues.
type NopAnnouncer struct{}

func (NopAnnouncer) Say(string)    {}
func (NopAnnouncer) Countdown(int) {}
func (NopAnnouncer) Notify(string) {}
