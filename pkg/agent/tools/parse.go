package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

func parseInput[T any](input json.RawMessage, toolName string) (T, error) {
	var params T
	if err := json.Unmarshal(input, &params); err != nil {
		return params, fmt.Errorf("%s: invalid input: %w", toolName, err)
	}
	return params, nil
}

// ObjectArgs reads text as a JSON object of tool arguments. Single-quoted
// objects such as {'url': 'http://x'} are accepted too, since that is how
// people tend to type them into a chat box.
func ObjectArgs(text string) (json.RawMessage, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "{") {
		return nil, false
	}
	for _, candidate := range []string{text, strings.ReplaceAll(text, "'", `"`)} {
		var obj map[string]any
		if err := json.Unmarshal([]byte(candidate), &obj); err == nil {
			var buf bytes.Buffer
			if err := json.Compact(&buf, []byte(candidate)); err == nil {
				return buf.Bytes(), true
			}
		}
	}
	return nil, false
}
