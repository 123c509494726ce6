package models

// EventStats is derived from the attendee cache and the check-in store.
// Never persisted as a source of truth; always rebuildable.
type EventStats struct {
	EventID      string  `json:"event_id"`
	Total        int     `json:"total"`
	CheckedIn    int     `json:"checked_in"`
	NoShow       int     `json:"no_show"`
	PendingSync  int     `json:"pending_sync"`
	CheckinRate  float64 `json:"checkin_rate"`
	SyncDegraded bool    `json:"sync_degraded"`
}
