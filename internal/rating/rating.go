// Package rating talks to the external language-rating service that labels
// each sales-rep utterance and suggests better phrasings.
package rating

import (
	"context"
	"errors"
	"strings"
)

// Rating labels returned by the service.
const (
	Excellent         = "excellent"
	Good              = "good"
	Poor              = "poor"
	MissedOpportunity = "missed-opportunity"
)

// MaxAlternatives caps the suggested rephrasings kept per line.
const MaxAlternatives = 3

// ErrMalformed is returned when the service answers with a payload that is
// not a valid rating.
var ErrMalformed = errors.New("rating: malformed response")

// Context carries conversation details used to build the prompt.
type Context struct {
	RepName      string
	CustomerName string
}

// Result is a rated utterance.
type Result struct {
	Rating       string   `json:"rating"`
	Alternatives []string `json:"alternatives"`
}

// Rater rates one utterance.
type Rater interface {
	Rate(ctx context.Context, text string, rc Context) (Result, error)
}

// NormalizeLabel maps the label spellings seen from models onto the
// canonical set. ok is false for anything unrecognized.
func NormalizeLabel(label string) (string, bool) {
	l := strings.ToLower(strings.TrimSpace(label))
	l = strings.NewReplacer("_", "-", " ", "-").Replace(l)
	switch l {
	case Excellent, Good, Poor, MissedOpportunity:
		return l, true
	case "missedopportunity":
		return MissedOpportunity, true
	default:
		return "", false
	}
}

// cleanAlternatives trims, drops empties and duplicates, and caps the list.
func cleanAlternatives(alts []string) []string {
	out := make([]string, 0, MaxAlternatives)
	seen := make(map[string]struct{}, len(alts))
	for _, a := range alts {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if _, dup := seen[a]; dup {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
		if len(out) == MaxAlternatives {
			break
		}
	}
	return out
}
