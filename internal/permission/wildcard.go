package permission

import (
	"regexp"
	"strings"
)

// MatchPattern reports whether value matches a glob-style pattern.
// Exact matches and the "*" / "**" shortcuts are handled without compiling;
// everything else goes through an anchored regex where `*` matches within a
// path segment, `**` crosses segments, and `?` matches a single
// non-separator character. Pure function, safe for concurrent use.
func MatchPattern(pattern, value string) bool {
	if pattern == value || pattern == "*" || pattern == "**" {
		return true
	}
	if !strings.ContainsAny(pattern, "*?[") {
		return false
	}

	re, err := compilePattern(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(value)
}

// compilePattern translates a glob into an anchored regex:
//
//	**  (optionally followed by /) -> .*
//	*                              -> [^/]*
//	?                              -> [^/]
//	[...]                          -> passed through
//
// Inside a class a leading `!` negates and a leading `]` is a literal
// member. An unterminated `[` is escaped as a literal. All other regex
// metacharacters are escaped.
func compilePattern(pattern string) (*regexp.Regexp, error) {
	var sb strings.Builder
	sb.WriteString("^")

	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch c {
		case '*':
			if i+1 < len(pattern) && pattern[i+1] == '*' {
				sb.WriteString(".*")
				i++
				// "**/" collapses so "src/**/file" also matches "src/file"
				if i+1 < len(pattern) && pattern[i+1] == '/' {
					i++
				}
			} else {
				sb.WriteString("[^/]*")
			}
		case '?':
			sb.WriteString("[^/]")
		case '[':
			// A leading ! negates the class; a ] right after the opening
			// (or the negation) is a member, not the terminator.
			j := i + 1
			if j < len(pattern) && (pattern[j] == '!' || pattern[j] == '^') {
				j++
			}
			if j < len(pattern) && pattern[j] == ']' {
				j++
			}
			end := strings.IndexByte(pattern[j:], ']')
			if end < 0 {
				sb.WriteString(`\[`)
				continue
			}
			end += j

			sb.WriteByte('[')
			k := i + 1
			if k < end && (pattern[k] == '!' || pattern[k] == '^') {
				sb.WriteByte('^')
				k++
			}
			if k < end && pattern[k] == ']' {
				sb.WriteString(`\]`)
				k++
			}
			sb.WriteString(pattern[k:end])
			sb.WriteByte(']')
			i = end
		default:
			sb.WriteString(regexp.QuoteMeta(string(c)))
		}
	}

	sb.WriteString("$")
	return regexp.Compile(sb.String())
}
