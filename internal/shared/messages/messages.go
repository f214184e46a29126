package messages

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
)

// InstitutionPlaceholder is replaced by the institution name in message texts.
const InstitutionPlaceholder = "{institution}"

type MessageText struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Render substitutes the institution name into title and body.
func (m MessageText) Render(institutionName string) MessageText {
	return MessageText{
		Title: strings.ReplaceAll(m.Title, InstitutionPlaceholder, institutionName),
		Body:  strings.ReplaceAll(m.Body, InstitutionPlaceholder, institutionName),
	}
}

type Messages struct {
	RelinkRequired MessageText `json:"relink_required"`
	SyncFailed     MessageText `json:"sync_failed"`
}

// Defaults are used when no messages file is configured and for any text
// the file leaves empty.
func Defaults() Messages {
	return Messages{
		RelinkRequired: MessageText{
			Title: "Reconnect " + InstitutionPlaceholder,
			Body:  "Your connection to " + InstitutionPlaceholder + " needs attention. Sign in again to keep your transactions up to date.",
		},
		SyncFailed: MessageText{
			Title: "Sync problem",
			Body:  "We couldn't refresh " + InstitutionPlaceholder + ". We'll try again later.",
		},
	}
}

var (
	loaded   Messages
	loadOnce sync.Once
	loadErr  error
)

// Load reads the notifications JSON file and caches the result.
// An empty path yields the defaults. Safe to call from multiple goroutines.
func Load(path string) (*Messages, error) {
	loadOnce.Do(func() {
		if path == "" {
			loaded = Defaults()
			return
		}
		data, err := os.ReadFile(path)
		if err != nil {
			loadErr = fmt.Errorf("failed to read messages file: %w", err)
			return
		}
		loaded, loadErr = Parse(data)
	})
	if loadErr != nil {
		return nil, loadErr
	}
	return &loaded, nil
}

// Parse decodes a messages document over the defaults.
func Parse(data []byte) (Messages, error) {
	msgs := Defaults()
	var file Messages
	if err := json.Unmarshal(data, &file); err != nil {
		return Messages{}, fmt.Errorf("failed to parse messages file: %w", err)
	}
	mergeText(&msgs.RelinkRequired, file.RelinkRequired)
	mergeText(&msgs.SyncFailed, file.SyncFailed)
	return msgs, nil
}

func mergeText(dst *MessageText, src MessageText) {
	if src.Title != "" {
		dst.Title = src.Title
	}
	if src.Body != "" {
		dst.Body = src.Body
	}
}
