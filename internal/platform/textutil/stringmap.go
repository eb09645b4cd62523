package textutil

import "strings"

// ParsePairs parses "k1=v1,k2=v2" into a map with lower-cased keys.
// Entries without "=" or with a blank key or value are skipped.
func ParsePairs(raw string) map[string]string {
	pairs := make(map[string]string)
	for _, entry := range strings.Split(raw, ",") {
		name, value, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		putLower(pairs, name, value)
	}
	return pairs
}

// LowerKeys returns a copy of values with trimmed, lower-cased keys and trimmed values.
// Blank keys and values are dropped; later duplicates win in map iteration order.
func LowerKeys(values map[string]string) map[string]string {
	out := make(map[string]string, len(values))
	for key, value := range values {
		putLower(out, key, value)
	}
	return out
}

func putLower(dst map[string]string, key, value string) {
	key = strings.ToLower(strings.TrimSpace(key))
	value = strings.TrimSpace(value)
	if key == "" || value == "" {
		return
	}
	dst[key] = value
}
