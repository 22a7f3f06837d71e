package attendance

import (
	"time"

	"github.com/kozaktomas/facegate/internal/database"
)

// IsDuplicate reports whether the person already has a record strictly closer than
// buffer to ts, on either side. Status does not take part in the decision; any status
// may follow any other.
func IsDuplicate(personID string, ts time.Time, status database.Status, recent []database.AttendanceRecord, buffer time.Duration) bool {
	if buffer <= 0 {
		return false
	}
	for _, r := range recent {
		if r.PersonID != personID {
			continue
		}
		delta := ts.Sub(r.Timestamp)
		if delta < 0 {
			delta = -delta
		}
		if delta < buffer {
			return true
		}
	}
	return false
}

// NextStatus suggests the status following last in the daily cycle
// IN, OUT, BREAK, LUNCH, IN. An empty or unknown last status suggests IN.
func NextStatus(last database.Status) database.Status {
	switch last {
	case database.StatusIn:
		return database.StatusOut
	case database.StatusOut:
		return database.StatusBreak
	case database.StatusBreak:
		return database.StatusLunch
	default:
		return database.StatusIn
	}
}
