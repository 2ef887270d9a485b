package parse

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

const ellipsis = "…"

// Summary renders an opaque payload as one short line of text.
//
// An object carrying a string "message" field yields that message, a bare string
// yields itself, and anything else is rendered as compact JSON. The result is
// cut to at most max runes (ellipsis included) when max is positive.
func Summary(payload any, max int) string {
	var s string
	switch v := payload.(type) {
	case nil:
		s = "null"
	case string:
		s = v
	case map[string]any:
		if msg, ok := v["message"].(string); ok {
			s = msg
		} else {
			s = compact(v)
		}
	default:
		s = compact(v)
	}

	s = strings.Join(strings.Fields(s), " ")
	return truncate(s, max)
}

func compact(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

func truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	if max == 1 {
		return ellipsis
	}
	runes := []rune(s)
	return string(runes[:max-1]) + ellipsis
}
