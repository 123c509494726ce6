package services

import (
	"github.com/prudhvinik1/doorsync/internal/models"
)

// Stats derives the event summary from the two source stores. It is
// recomputed on demand and never persisted; the roster and the check-in
// log remain the only sources of truth.
func (s *CheckinService) Stats() models.EventStats {
	total := s.cache.Count()
	checkedIn := len(s.checkins.CheckedInAttendees())

	stats := models.EventStats{
		EventID:      s.checkins.EventID(),
		Total:        total,
		CheckedIn:    checkedIn,
		NoShow:       total - checkedIn,
		PendingSync:  s.checkins.PendingCount(),
		SyncDegraded: s.engine.Degraded(),
	}
	if stats.NoShow < 0 {
		// Overrides and foreign-roster merges can push admissions past the
		// cached roster size.
		stats.NoShow = 0
	}
	if total > 0 {
		stats.CheckinRate = float64(checkedIn) / float64(total) * 100
	}
	return stats
}
