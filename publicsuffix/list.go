//go:generate sh -c "curl https://publicsuffix.org/list/public_suffix_list.dat >testdata/public_suffix_list.dat"

// Package publicsuffix implements lookups of registrable domains with a public
// suffix list, https://publicsuffix.org/list/.
//
// A public suffix is a domain under which names can be registered, like "com"
// and "co.uk". The registrable domain of a name is its public suffix plus one
// label: for "www.example.co.uk" it is "example.co.uk". Also known as eTLD+1 or
// the organizational domain.
//
// Rules are parsed from a cleaned list (see Clean and ParseRule) and indexed
// with Build. The resulting Index answers lookups, handling wildcard rules
// ("*.ck") and exception rules ("!www.ck"). An Index can be saved and loaded
// in a compact binary form, see Save and Load.
package publicsuffix

import (
	"io"
	"log/slog"

	"github.com/mjl-/regdomain/mlog"
)

// ParseList reads a public suffix list, see Clean, and returns an index of its
// rules. Invalid rules are logged and skipped.
func ParseList(elog *slog.Logger, r io.Reader, icannOnly bool) (*Index, error) {
	log := mlog.New("publicsuffix", elog)

	lines, err := Clean(r, icannOnly)
	if err != nil {
		return nil, err
	}
	rules, skipped := ParseRules(elog, lines)
	x := Build(rules)
	log.Debug("parsed public suffix list",
		slog.Int("lines", len(lines)),
		slog.Int("skipped", skipped),
		slog.Int("rules", x.Len()),
		slog.Bool("icannonly", icannOnly))
	return x, nil
}
