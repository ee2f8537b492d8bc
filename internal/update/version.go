package update

import (
	"fmt"
	"regexp"
	"strings"
)

// versionRe extracts a dotted release version, with the -N build suffix
// some daemons append (e.g. 1.2.9-5).
var versionRe = regexp.MustCompile(`(\d+\.\d+\.\d+(-\d+)?)`)

// Stringify renders a feed or RPC value as a string. Daemon getinfo
// responses report numeric version fields, release feeds report tags.
func Stringify(v any) string {
	if v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		// JSON numbers decode as float64; keep integers undecorated.
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%v", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// Normalize reduces a raw version value to a comparable string: trimmed,
// leading v stripped, and the dotted version extracted when one is
// embedded in a longer tag.
func Normalize(v string) string {
	v = strings.TrimSpace(v)
	v = strings.TrimPrefix(v, "v")
	if m := versionRe.FindString(v); m != "" {
		return m
	}
	return v
}
