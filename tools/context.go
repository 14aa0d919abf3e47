package tools

import (
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcp-ollama/pkg/backend"
)

// ParseContext returns the conversation context supplied by the caller.
// The context is either a JSON array of messages, or a string holding one.
// Entries are not validated and are sent to the backend as is.
func ParseContext(v any) ([]backend.ChatMessage, error) {
	var raw []byte
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		val = strings.TrimSpace(val)
		if val == "" {
			return nil, nil
		}
		raw = []byte(val)
	case []backend.ChatMessage:
		return val, nil
	default:
		js, err := json.Marshal(val)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		raw = js
	}

	var msgs []backend.ChatMessage
	if err := json.Unmarshal(raw, &msgs); err != nil {
		return nil, errors.WithMessage(err, "context must be a JSON array of messages")
	}
	return msgs, nil
}
