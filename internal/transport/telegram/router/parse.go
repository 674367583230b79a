package router

import (
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// tokenizeCommandLine splits on whitespace. Single or double quotes group
// words and a backslash escapes the next rune.
func tokenizeCommandLine(s string) []string {
	var (
		out   []string
		cur   strings.Builder
		quote rune
		esc   bool
		inTok bool
	)
	flush := func() {
		if inTok {
			out = append(out, cur.String())
			cur.Reset()
			inTok = false
		}
	}
	for _, r := range s {
		switch {
		case esc:
			cur.WriteRune(r)
			esc = false
		case r == '\\':
			esc = true
			inTok = true
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote = r
			inTok = true
		case unicode.IsSpace(r):
			flush()
		default:
			cur.WriteRune(r)
			inTok = true
		}
	}
	flush()
	return out
}

// parseFlags separates positional args from --key value, --key=value and
// bare --flag forms. A lone "--" ends flag parsing. Keys are lowercased.
func parseFlags(args []string) (pos []string, flags map[string]string, bools map[string]bool) {
	flags = map[string]string{}
	bools = map[string]bool{}
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--" {
			pos = append(pos, args[i+1:]...)
			break
		}
		if !strings.HasPrefix(a, "--") || len(a) == 2 {
			pos = append(pos, a)
			continue
		}
		name, val, hasVal := strings.Cut(a[2:], "=")
		key := strings.ToLower(name)
		if hasVal {
			flags[key] = val
			continue
		}
		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "--") {
			flags[key] = args[i+1]
			i++
			continue
		}
		bools[key] = true
	}
	return pos, flags, bools
}

// skipFields drops the first n whitespace-separated fields of s and
// returns the rest without surrounding whitespace.
func skipFields(s string, n int) string {
	i := 0
	for ; n > 0; n-- {
		for i < len(s) && isSpaceByte(s[i]) {
			i++
		}
		if i >= len(s) {
			return ""
		}
		for i < len(s) && !isSpaceByte(s[i]) {
			i++
		}
	}
	return strings.TrimSpace(s[i:])
}

func isSpaceByte(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

func newReqID() string {
	return uuid.NewString()[:8]
}
