package router

import (
	"regexp"
	"strings"

	"github.com/tenzoki/ipcbus/internal/errs"
)

// isGlob reports whether pattern contains any of the wildcard metacharacters
// the router recognizes (spec §4.5): `*`, `?`, `[`.
func isGlob(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[")
}

// CompileGlobPattern translates a glob pattern into an anchored regexp: `*`
// becomes any run of characters, `?` any single character, `[...]` a
// character class passed through verbatim, and every other regexp
// metacharacter is escaped. Exported so pubsub (C7) can compile pattern
// subscriptions with the same rule (spec §4.5, §4.7).
func CompileGlobPattern(pattern string) (*regexp.Regexp, error) {
	return compileGlob(pattern)
}

func compileGlob(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")
	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		case '[':
			end := strings.IndexRune(string(runes[i:]), ']')
			if end < 0 {
				b.WriteString(regexp.QuoteMeta(string(r)))
				continue
			}
			class := string(runes[i : i+end+1])
			b.WriteString(class)
			i += end
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, &errs.PatternCompile{Cause: err}
	}
	return re, nil
}
