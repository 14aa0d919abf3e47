// Package jsonutil provides helpers for JSON supplied by tool callers.
package jsonutil

import (
	"bytes"
	"encoding/json"
)

var fence = []byte("```")

// CleanJSON returns the JSON object or array embedded in the text,
// dropping a surrounding markdown code fence and any text before the first
// opening or after the last closing brace or bracket.
// Text without JSON delimiters is returned as is.
func CleanJSON(bs []byte) []byte {
	bs = trimFence(bytes.TrimSpace(bs))

	start := firstIndex(bytes.IndexByte(bs, '{'), bytes.IndexByte(bs, '['))
	if start >= 0 {
		bs = bs[start:]
	}
	end := max(bytes.LastIndexByte(bs, '}'), bytes.LastIndexByte(bs, ']'))
	if end >= 0 {
		bs = bs[:end+1]
	}
	return bs
}

func firstIndex(a, b int) int {
	switch {
	case a == -1:
		return b
	case b == -1:
		return a
	default:
		return min(a, b)
	}
}

// trimFence removes ```json ... ``` around the content
func trimFence(bs []byte) []byte {
	start := bytes.Index(bs, fence)
	if start == -1 {
		return bs
	}
	content := bs[start+len(fence):]
	// skip the language tag
	if nl := bytes.IndexByte(content, '\n'); nl >= 0 && bytes.IndexAny(content[:nl], "{[") == -1 {
		content = content[nl+1:]
	}
	if end := bytes.LastIndex(content, fence); end >= 0 {
		content = content[:end]
	}
	return bytes.TrimSpace(content)
}

// ToJSON returns the compact JSON of the value, or an empty string.
func ToJSON(val any) string {
	js, _ := json.Marshal(val)
	return string(js)
}

// ToJSONIndent returns the JSON of the value indented with tabs.
func ToJSONIndent(val any) string {
	js, _ := json.MarshalIndent(val, "", "\t")
	return string(js)
}
