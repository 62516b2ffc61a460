package voice

import "strings"

// DefaultKeywords are the distress phrases that raise an SOS prompt.
var DefaultKeywords = []string{
	"help", "danger", "risk", "emergency", "sos", "save me",
	"accident", "crash", "attack", "need assistance",
}

// Matcher finds distress keywords in a transcript. Matching is a
// case-insensitive substring search, so inflections such as "crashed" or
// "dangerous" count. Runs of whitespace compare equal to a single space.
type Matcher struct {
	keywords []keyword
}

type keyword struct {
	needle string
	name   string
}

// NewMatcher prepares keywords. An empty list uses DefaultKeywords.
func NewMatcher(keywords []string) *Matcher {
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}
	m := &Matcher{keywords: make([]keyword, 0, len(keywords))}
	for _, k := range keywords {
		needle := squash(k)
		if needle == "" {
			continue
		}
		m.keywords = append(m.keywords, keyword{needle: needle, name: k})
	}
	return m
}

// Match returns the keyword occurring earliest in text. On a tie the longer
// keyword wins.
func (m *Matcher) Match(text string) (string, bool) {
	hay := squash(text)
	best, bestAt := -1, -1
	for i, k := range m.keywords {
		at := strings.Index(hay, k.needle)
		if at < 0 {
			continue
		}
		if best < 0 || at < bestAt || (at == bestAt && len(k.needle) > len(m.keywords[best].needle)) {
			best, bestAt = i, at
		}
	}
	if best < 0 {
		return "", false
	}
	return m.keywords[best].name, true
}

func squash(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
