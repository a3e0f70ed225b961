package publicsuffix

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/net/idna"

	"github.com/mjl-/regdomain/mlog"
)

// ErrRuleSyntax is returned for a line of a public suffix list that is not a
// valid rule.
var ErrRuleSyntax = errors.New("publicsuffix: bad rule syntax")

// Kind is the type of a rule.
type Kind byte

const (
	KindNormal    Kind = iota // E.g. "co.uk".
	KindWildcard              // E.g. "*.ck", any single label in place of the "*".
	KindException             // E.g. "!www.ck", carves out a name matched by a wildcard.
)

func (k Kind) String() string {
	switch k {
	case KindNormal:
		return "normal"
	case KindWildcard:
		return "wildcard"
	case KindException:
		return "exception"
	}
	return fmt.Sprintf("kind%d", k)
}

// Rule is a single rule from a public suffix list.
//
// Labels are in the order they appear in the rule, left to right, lower case
// and in ASCII form (IDNA A-labels). A wildcard rule has "*" as first label. An
// exception rule does not have the leading "!" in its labels.
type Rule struct {
	Kind   Kind
	Labels []string
}

// String returns the rule as it would appear in a public suffix list, with
// ASCII labels.
func (r Rule) String() string {
	s := strings.Join(r.Labels, ".")
	if r.Kind == KindException {
		return "!" + s
	}
	return s
}

// ParseRule parses a single line of a cleaned public suffix list. Only the first
// whitespace-delimited word of the line is used. Unicode labels are converted to
// IDNA A-labels.
func ParseRule(line string) (Rule, error) {
	words := strings.Fields(line)
	if len(words) == 0 {
		return Rule{}, fmt.Errorf("%w: empty rule", ErrRuleSyntax)
	}
	s := words[0]

	r := Rule{Kind: KindNormal}
	if strings.HasPrefix(s, "!") {
		r.Kind = KindException
		s = s[1:]
	}
	if s == "" {
		return Rule{}, fmt.Errorf("%w: empty rule", ErrRuleSyntax)
	}

	t := strings.Split(s, ".")
	if r.Kind == KindException && len(t) == 1 {
		return Rule{}, fmt.Errorf("%w: exception rule with single label", ErrRuleSyntax)
	}
	for i, w := range t {
		switch {
		case w == "":
			return Rule{}, fmt.Errorf("%w: empty label", ErrRuleSyntax)
		case w == "*":
			if r.Kind == KindException {
				return Rule{}, fmt.Errorf("%w: wildcard in exception rule", ErrRuleSyntax)
			} else if i != 0 {
				return Rule{}, fmt.Errorf("%w: wildcard must be first label", ErrRuleSyntax)
			}
			r.Kind = KindWildcard
		case strings.Contains(w, "*"):
			return Rule{}, fmt.Errorf("%w: wildcard must be a whole label", ErrRuleSyntax)
		default:
			a, err := asciiLabel(w)
			if err != nil {
				return Rule{}, fmt.Errorf("%w: label %q: %v", ErrRuleSyntax, w, err)
			}
			t[i] = a
		}
	}
	r.Labels = t
	return r, nil
}

func asciiLabel(s string) (string, error) {
	if isASCII(s) {
		return strings.ToLower(s), nil
	}
	a, err := idna.Lookup.ToASCII(s)
	if err != nil {
		return "", err
	}
	return strings.ToLower(a), nil
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

// ParseRules parses cleaned lines into rules. Lines that are not valid rules are
// logged and skipped, so a single bad line does not prevent building an index.
// The number of skipped lines is returned.
func ParseRules(elog *slog.Logger, lines []string) (rules []Rule, skipped int) {
	log := mlog.New("publicsuffix", elog)

	rules = make([]Rule, 0, len(lines))
	for _, line := range lines {
		r, err := ParseRule(line)
		if err != nil {
			log.Infox("skipping rule", err, slog.String("line", line))
			skipped++
			continue
		}
		rules = append(rules, r)
	}
	return rules, skipped
}
