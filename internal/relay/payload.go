package relay

import (
	"fmt"
	"unicode/utf8"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxLoggedData bounds result.data in logged messages. CDP returns
// screenshots and PDFs base64-encoded in that field.
const maxLoggedData = 100

// Summarize returns a loggable form of a text message. JSON payloads are
// returned decoded, with a long result.data string cut to maxLoggedData
// characters plus a note of how many were omitted. Anything else is
// returned as raw text.
func Summarize(data []byte) any {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return string(data)
	}

	msg, ok := v.(map[string]any)
	if !ok {
		return v
	}
	result, ok := msg["result"].(map[string]any)
	if !ok {
		return msg
	}
	if s, ok := result["data"].(string); ok {
		result["data"] = truncate(s, maxLoggedData)
	}
	return msg
}

func truncate(s string, limit int) string {
	n := utf8.RuneCountInString(s)
	if n <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit]) + fmt.Sprintf("... (%d characters omitted)", n-limit)
}
