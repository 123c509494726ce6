package models

// Attendee is one entry in the event roster. Records are loaded in bulk
// before doors open and stay immutable until the next full reload.
type Attendee struct {
	ID       string `json:"id"`
	EventID  string `json:"event_id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}
