package telegraph

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/zulandar/linegrade/internal/models"
)

// Color constants for event severity.
const (
	ColorSuccess = "#36a64f"
	ColorInfo    = "#2196f3"
	ColorWarning = "#ff9800"
	ColorError   = "#e53935"
)

// maxErrorLen truncates job errors so one noisy failure cannot blow past
// platform message limits.
const maxErrorLen = 500

// MaxDigestEvents caps the attachments in one alert message. Slack rejects
// more than 100 attachments and Discord more than 10 embeds.
const MaxDigestEvents = 10

// severityColor maps a severity string to a sidebar color.
func severityColor(severity string) string {
	switch severity {
	case "success":
		return ColorSuccess
	case "warning":
		return ColorWarning
	case "error":
		return ColorError
	default:
		return ColorInfo
	}
}

// FormatFailedJob renders a permanently failed batch job.
func FormatFailedJob(job models.Job) FormattedEvent {
	body := truncate(strings.TrimSpace(job.Error), maxErrorLen)
	if body == "" {
		body = "no error recorded"
	}
	return FormattedEvent{
		Title:    fmt.Sprintf("Batch %d/%d of session %s failed", job.BatchIndex+1, job.TotalBatches, job.SessionID),
		Body:     body,
		Severity: "error",
		Color:    severityColor("error"),
		Fields: []Field{
			{Name: "Job", Value: job.ID, Short: true},
			{Name: "Attempts", Value: fmt.Sprintf("%d/%d", job.Attempts, job.MaxAttempts), Short: true},
			{Name: "Requeue", Value: "lg requeue " + job.SessionID, Short: false},
		},
	}
}

// FailureDigest builds one message covering jobs, led by any lead events.
// The message carries at most MaxDigestEvents attachments; jobs past the
// cap are summarised in the text.
func FailureDigest(jobs []models.Job, lead ...FormattedEvent) OutboundMessage {
	msg := OutboundMessage{Text: failureHeadline(len(jobs))}
	msg.Events = append(msg.Events, lead...)
	room := max(MaxDigestEvents-len(msg.Events), 0)
	for i, j := range jobs {
		if i == room {
			msg.Text += fmt.Sprintf(" (%d more not shown)", len(jobs)-room)
			break
		}
		msg.Events = append(msg.Events, FormatFailedJob(j))
	}
	return msg
}

// FormatReclaim reports a supervisor sweep that found expired leases.
func FormatReclaim(requeued, failed int64) FormattedEvent {
	severity := "warning"
	if failed == 0 {
		severity = "info"
	}
	return FormattedEvent{
		Title:    "Expired leases reclaimed",
		Body:     fmt.Sprintf("%d job(s) returned to the queue, %d exhausted their attempts.", requeued, failed),
		Severity: severity,
		Color:    severityColor(severity),
		Fields: []Field{
			{Name: "Requeued", Value: strconv.FormatInt(requeued, 10), Short: true},
			{Name: "Failed", Value: strconv.FormatInt(failed, 10), Short: true},
		},
	}
}

func failureHeadline(n int) string {
	if n == 1 {
		return ":rotating_light: 1 grading batch failed permanently"
	}
	return fmt.Sprintf(":rotating_light: %d grading batches failed permanently", n)
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
