package staging

import (
	"regexp"
	"strconv"

	"github.com/nathanielparke/cannoli/internal/command"
)

var placeholderRe = regexp.MustCompile(`\$(root|\d+)`)

// Substitution maps the placeholders of a built command to one worker's
// local paths. Files is indexed by registration order.
type Substitution struct {
	Files []string
	Root  string
}

// Resolve returns tokens with every known placeholder replaced. Placeholders
// may sit anywhere inside a token. Unknown ones are left as written.
func (s Substitution) Resolve(tokens []string) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = placeholderRe.ReplaceAllStringFunc(t, func(m string) string {
			if v, ok := s.lookup(m); ok {
				return v
			}
			return m
		})
	}
	return out
}

// Unresolved returns the placeholders in tokens that s cannot resolve.
func (s Substitution) Unresolved(tokens []string) []string {
	var missing []string
	for _, t := range tokens {
		for _, m := range placeholderRe.FindAllString(t, -1) {
			if _, ok := s.lookup(m); !ok {
				missing = append(missing, m)
			}
		}
	}
	return missing
}

func (s Substitution) lookup(placeholder string) (string, bool) {
	if placeholder == command.RootPlaceholder {
		return s.Root, s.Root != ""
	}
	i, err := strconv.Atoi(placeholder[1:])
	if err != nil || i < 0 || i >= len(s.Files) {
		return "", false
	}
	return s.Files[i], true
}
