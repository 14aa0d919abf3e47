package validation

import (
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
)

const (
	// MaxInputLength is the default cap for user messages and prompts.
	MaxInputLength = 10000
	// MaxSystemPromptLength is the cap for system prompts.
	MaxSystemPromptLength = 5000
	// MaxSuffixLength is the cap for completion suffixes.
	MaxSuffixLength = 1000
)

// ModelName returns false when v is nil, not a string,
// or empty after trimming whitespace.
// Model name syntax is intentionally not checked.
func ModelName(v any) bool {
	name, ok := v.(string)
	if !ok {
		return false
	}
	return strings.TrimSpace(name) != ""
}

// Sanitize trims leading and trailing whitespace and truncates the result
// to maxLength code points. Non-string input yields an empty string.
func Sanitize(v any, maxLength int) string {
	text, ok := v.(string)
	if !ok {
		return ""
	}
	text = strings.TrimSpace(text)
	if maxLength < 0 {
		return text
	}

	count := 0
	for i := range text {
		if count == maxLength {
			return text[:i]
		}
		count++
	}
	return text
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Struct validates v against its `validate` struct tags.
func Struct(v any) error {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	if err := validate.Struct(v); err != nil {
		return errors.WithMessage(err, "validation failed")
	}
	return nil
}
