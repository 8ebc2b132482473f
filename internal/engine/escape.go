package engine

import (
	"strconv"
	"strings"
)

// DecodeLegacyText walks a decoded JSON value tree (records, sequences,
// strings, numbers, booleans, null) and rewrites every string through
// unescapeText. Older receiver firmware ran beacon names through
// JavaScript's escape() before reporting them; decoding is applied uniformly
// over the whole tree rather than field by field.
func DecodeLegacyText(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			out[k] = DecodeLegacyText(child)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			out[i] = DecodeLegacyText(child)
		}
		return out
	case string:
		return unescapeText(val)
	default:
		return v
	}
}

// unescapeText reverses JavaScript's escape(): %uXXXX for code points above
// 0xFF, %XX for single Latin-1 bytes. Malformed sequences and plain text
// pass through untouched, so already-decoded names round-trip.
func unescapeText(s string) string {
	if !strings.Contains(s, "%") {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		if s[i] != '%' {
			b.WriteByte(s[i])
			i++
			continue
		}
		if i+6 <= len(s) && (s[i+1] == 'u' || s[i+1] == 'U') {
			if n, err := strconv.ParseUint(s[i+2:i+6], 16, 32); err == nil {
				b.WriteRune(rune(n))
				i += 6
				continue
			}
		}
		if i+3 <= len(s) {
			if n, err := strconv.ParseUint(s[i+1:i+3], 16, 16); err == nil {
				b.WriteRune(rune(n))
				i += 3
				continue
			}
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String()
}
