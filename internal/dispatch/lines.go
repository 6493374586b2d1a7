package dispatch

import (
	"fmt"
	"strings"

	"github.com/zulandar/linegrade/internal/models"
	"github.com/zulandar/linegrade/internal/transcript"
)

// RepLines returns the transcript entries spoken by the sales rep, keeping
// each entry's absolute position as its line index. A speaker matches when
// it equals one of roles ignoring case and surrounding space. Entries with
// no text are skipped.
func RepLines(entries []transcript.Entry, roles []string) []models.Line {
	want := make(map[string]bool, len(roles))
	for _, r := range roles {
		if r = strings.ToLower(strings.TrimSpace(r)); r != "" {
			want[r] = true
		}
	}

	var lines []models.Line
	for i, e := range entries {
		if !want[strings.ToLower(strings.TrimSpace(e.Speaker))] {
			continue
		}
		text := strings.TrimSpace(e.Text)
		if text == "" {
			continue
		}
		lines = append(lines, models.Line{LineIndex: i, Text: text})
	}
	return lines
}

// Batch splits lines into consecutive chunks of at most size lines.
func Batch(lines []models.Line, size int) [][]models.Line {
	if size <= 0 || len(lines) == 0 {
		return nil
	}
	batches := make([][]models.Line, 0, (len(lines)+size-1)/size)
	for start := 0; start < len(lines); start += size {
		end := start + size
		if end > len(lines) {
			end = len(lines)
		}
		batches = append(batches, lines[start:end])
	}
	return batches
}

// ValidateRequest checks that a request can be dispatched.
// Returns a list of validation errors (empty if valid).
func ValidateRequest(req Request) []string {
	var errs []string
	if strings.TrimSpace(req.SessionID) == "" {
		errs = append(errs, "session id is required")
	}
	if len(req.SessionID) > 64 {
		errs = append(errs, fmt.Sprintf("session id is %d characters (max 64)", len(req.SessionID)))
	}
	for i, e := range req.Transcript {
		if strings.TrimSpace(e.Speaker) == "" {
			errs = append(errs, fmt.Sprintf("transcript[%d]: speaker is required", i))
		}
	}
	return errs
}
