// Package phrasecache stores ratings of previously seen utterances so that
// repeated phrases skip the rating service.
//
// Callers look entries up by normalized text (see Normalize). The cache is
// an accelerator only: the worker reaches it through a Guard, which turns
// every backend failure into a miss.
package phrasecache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Entry is a cached rating.
type Entry struct {
	Rating       string   `json:"rating"`
	Alternatives []string `json:"alternatives"`
}

// Cache looks up and stores entries by normalized text.
type Cache interface {
	Get(ctx context.Context, text string) (Entry, bool, error)
	Put(ctx context.Context, text string, e Entry) error
}

// Normalize canonicalizes an utterance for cache lookup: Unicode NFKC,
// case folded, runs of whitespace collapsed to one space, trimmed.
// Punctuation is kept, since "Sure." and "Sure?" can rate differently.
func Normalize(text string) string {
	s := norm.NFKC.String(text)
	s = cases.Fold().String(s)

	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}

// Key returns the fixed-width storage key for normalized text.
func Key(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
