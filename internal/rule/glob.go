package rule

import (
	"regexp"
	"strings"

	"github.com/Iron-Ham/mergepipe/internal/errors"
)

// GlobToRegex translates a glob into an anchored regular expression.
//
//	**      any run of characters including /
//	*       any run of characters except /
//	?       one character except /
//	{a,b}   alternation
//	[!x]    negated class
//	\x      literal x
//
// Regular-expression metacharacters outside these forms are escaped. Commas
// always act as alternation separators, even outside braces.
func GlobToRegex(glob string) string {
	var b strings.Builder
	b.WriteString("^")

	runes := []rune(glob)
	escaping := false
	for i := 0; i < len(runes); i++ {
		c := runes[i]

		if escaping {
			b.WriteString(regexp.QuoteMeta(string(c)))
			escaping = false
			continue
		}

		switch c {
		case '\\':
			escaping = true
		case '*':
			if i+1 < len(runes) && runes[i+1] == '*' {
				b.WriteString(".*")
				i++
			} else {
				b.WriteString("[^/]*")
			}
		case '?':
			b.WriteString("[^/]")
		case '.', '(', ')', '+', '|', '^', '$', '@', '%':
			b.WriteByte('\\')
			b.WriteRune(c)
		case '{':
			b.WriteString("(?:")
		case '}':
			b.WriteString(")")
		case ',':
			b.WriteString("|")
		case '[':
			b.WriteString("[")
			if i+1 < len(runes) && runes[i+1] == '!' {
				b.WriteString("^")
				i++
			} else if i+1 < len(runes) && runes[i+1] == '^' {
				b.WriteString(`\^`)
				i++
			}
		default:
			b.WriteRune(c)
		}
	}

	b.WriteString("$")
	return b.String()
}

// CompilePathPattern compiles a glob (or a regular expression when isRegex
// is set) that must match an entire path. Matching is case-insensitive
// unless caseSensitive is set.
func CompilePathPattern(pattern string, isRegex, caseSensitive bool) (*regexp.Regexp, error) {
	expr := GlobToRegex(pattern)
	if isRegex {
		expr = "^(?:" + pattern + ")$"
	}
	if !caseSensitive {
		expr = "(?i)" + expr
	}

	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, errors.NewValidationError("invalid file pattern").
			WithField("pattern").
			WithValue(pattern).
			WithCause(err)
	}
	return re, nil
}
