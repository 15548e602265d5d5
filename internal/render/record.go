package render

import (
	"fmt"
	"time"

	"voice-session-client/internal/models"
)

// FormatRecord renders an exported transcript record as one line.
func FormatRecord(rec models.TranscriptRecord) string {
	kind := "partial"
	if rec.Final {
		kind = "final"
	}
	ts := time.UnixMilli(rec.Timestamp).Format("15:04:05.000")
	return fmt.Sprintf("%s %-7s %-4s %s: %s", ts, kind, rec.Speaker, rec.UtteranceID, rec.Text)
}
