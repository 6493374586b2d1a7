// Package transcript defines the conversation input handed to the dispatcher.
package transcript

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Entry is one utterance of a conversation.
type Entry struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// Decode reads a JSON array of entries.
func Decode(r io.Reader) ([]Entry, error) {
	var entries []Entry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, fmt.Errorf("transcript: decode: %w", err)
	}
	return entries, nil
}

// ReadFile decodes the transcript stored at path.
func ReadFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("transcript: open %s: %w", path, err)
	}
	defer f.Close()
	return Decode(f)
}
